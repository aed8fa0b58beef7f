package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeTasks(roomIDs ...string) Input {
	in := Input{
		Grid:  Grid{Days: 1, SlotsPerDay: 2},
		Rooms: rooms(30, roomIDs...),
	}
	for _, id := range []string{"t1", "t2", "t3"} {
		in.Tasks = append(in.Tasks, Task{ID: id, Duration: 1, RequiredCapacity: 20, Rooms: roomIDs})
	}
	return in
}

func TestBacktrackingSingleRoomTwoSlotsFails(t *testing.T) {
	m, c := mustModel(t, threeTasks("r1"))

	res := (&Backtracking{}).Generate(context.Background(), m, c, Budget{MaxSteps: 1000}, nil)

	assert.Equal(t, StatusFailed, res.Status)
	require.NotNil(t, res.Diagnostics)
	assert.Contains(t, res.Diagnostics.Reason, "room-slots")
	assert.Empty(t, res.Assignments)
}

func TestBacktrackingTwoRoomsSucceeds(t *testing.T) {
	in := threeTasks("r1", "r2")
	m, c := mustModel(t, in)

	first := (&Backtracking{}).Generate(context.Background(), m, c, Budget{MaxSteps: 1000}, nil)
	second := (&Backtracking{}).Generate(context.Background(), m, c, Budget{MaxSteps: 1000}, nil)

	require.Equal(t, StatusSucceeded, first.Status)
	assert.Len(t, first.Assignments, 3)
	assert.True(t, c.IsFeasible(first.Assignments))
	requireSound(t, in, first.Assignments)
	assert.Equal(t, first.Assignments, second.Assignments, "fixed ordering is deterministic")
}

func TestBacktrackingEmptyTaskSet(t *testing.T) {
	m, c := mustModel(t, Input{Grid: Grid{Days: 1, SlotsPerDay: 1}})
	rec := &recorder{}

	for _, s := range []Strategy{&Backtracking{}, &Genetic{}, &Hybrid{}} {
		res := s.Generate(context.Background(), m, c, Budget{MaxSteps: 10}, rec.observe)
		assert.Equal(t, StatusSucceeded, res.Status, s.Name())
		assert.NotNil(t, res.Assignments)
		assert.Empty(t, res.Assignments)
	}
	require.NotEmpty(t, rec.events)
	assert.Equal(t, 100.0, rec.events[len(rec.events)-1].Percent)
}

func TestBacktrackingSolvesTermWeek(t *testing.T) {
	in := termInput(6, 4)
	// cross-cohort conflicts and a double-invigilated exam tighten the search
	in.Tasks[0].Conflicts = []string{"c1-s0", "c2-s0", "c3-s0"}
	in.Tasks[5].InvigilatorsRequired = 2
	m, c := mustModel(t, in)
	rec := &recorder{}

	res := (&Backtracking{}).Generate(context.Background(), m, c, Budget{TimeLimit: 5 * time.Second}, rec.observe)

	require.Equal(t, StatusSucceeded, res.Status)
	assert.Len(t, res.Assignments, len(in.Tasks))
	assert.Empty(t, c.Violations(res.Assignments))
	requireSound(t, in, res.Assignments)
	assert.Equal(t, c.Score(res.Assignments), res.Penalty)
	rec.requireMonotonic(t)
	last := rec.events[len(rec.events)-1]
	assert.Equal(t, PhaseDone, last.Phase)
	assert.NotNil(t, last.Solution)
}

func TestBacktrackingCohortOverloadIsDiagnosed(t *testing.T) {
	in := Input{
		Grid:  Grid{Days: 1, SlotsPerDay: 2},
		Rooms: rooms(30, "r1", "r2", "r3"),
		Tasks: []Task{
			{ID: "math", Cohorts: []string{"11B"}, Duration: 1, Rooms: []string{"r1", "r2", "r3"}},
			{ID: "chem", Cohorts: []string{"11B"}, Duration: 1, Rooms: []string{"r1", "r2", "r3"}},
			{ID: "phys", Cohorts: []string{"11B"}, Duration: 1, Rooms: []string{"r1", "r2", "r3"}},
		},
	}
	m, c := mustModel(t, in)

	res := (&Backtracking{}).Generate(context.Background(), m, c, Budget{MaxSteps: 100}, nil)

	require.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Diagnostics.Reason, "cohort 11B")
	assert.ElementsMatch(t, []string{"math", "chem", "phys"}, res.Diagnostics.Unplaced)
}

func TestBacktrackingSearchExhaustionReportsUnplaced(t *testing.T) {
	// three mutually conflicting exams in two slots pass every preflight but cannot be placed
	in := Input{
		Grid:  Grid{Days: 1, SlotsPerDay: 2},
		Rooms: rooms(30, "r1", "r2", "r3"),
		Tasks: []Task{
			{ID: "a", Duration: 1, Rooms: []string{"r1", "r2", "r3"}, Conflicts: []string{"b", "c"}},
			{ID: "b", Duration: 1, Rooms: []string{"r1", "r2", "r3"}, Conflicts: []string{"c"}},
			{ID: "c", Duration: 1, Rooms: []string{"r1", "r2", "r3"}},
		},
	}
	m, c := mustModel(t, in)

	res := (&Backtracking{}).Generate(context.Background(), m, c, Budget{MaxSteps: 10_000}, nil)

	require.Equal(t, StatusFailed, res.Status)
	// forward checking rejects the second placement, so only one exam is ever kept
	assert.Equal(t, 1, res.Diagnostics.Placed)
	assert.Len(t, res.Diagnostics.Unplaced, 2)
	assert.NotEmpty(t, res.Diagnostics.Hardest)
}

func TestBacktrackingRevisitsInvigilatorChoice(t *testing.T) {
	// a's least-loaded pick is x, which b also needs; only a=y, b=x works
	in := Input{
		Grid:         Grid{Days: 1, SlotsPerDay: 1},
		Rooms:        rooms(30, "r1", "r2"),
		Invigilators: people(KindInvigilator, "x", "y"),
		Tasks: []Task{
			{ID: "a", Cohorts: []string{"10A"}, Duration: 1, Rooms: []string{"r1", "r2"}, Invigilators: []string{"x", "y"}},
			{ID: "b", Cohorts: []string{"11B"}, Duration: 1, Rooms: []string{"r1", "r2"}, Invigilators: []string{"x"}},
		},
	}
	m, c := mustModel(t, in)

	for _, s := range []Strategy{&Backtracking{}, &Hybrid{}} {
		res := s.Generate(context.Background(), m, c, Budget{MaxSteps: 1000}, nil)

		require.Equal(t, StatusSucceeded, res.Status, s.Name())
		require.Len(t, res.Assignments, 2)
		assert.True(t, c.IsFeasible(res.Assignments))
		requireSound(t, in, res.Assignments)
		for _, a := range res.Assignments {
			if a.TaskID == "a" {
				assert.Equal(t, []string{"y"}, a.Invigilators)
			}
		}
	}
}

func TestBacktrackingTriesEveryInvigilatorSubset(t *testing.T) {
	in := Input{
		Grid:         Grid{Days: 1, SlotsPerDay: 1},
		Rooms:        rooms(30, "r1", "r2", "r3"),
		Invigilators: people(KindInvigilator, "x", "y", "z", "w"),
		Tasks: []Task{
			{ID: "a", Duration: 1, Rooms: []string{"r1", "r2", "r3"}, Invigilators: []string{"x", "y", "z", "w"}, InvigilatorsRequired: 2},
			{ID: "b", Duration: 1, Rooms: []string{"r1", "r2", "r3"}, Invigilators: []string{"x"}},
			{ID: "c", Duration: 1, Rooms: []string{"r1", "r2", "r3"}, Invigilators: []string{"y"}},
		},
	}
	m, c := mustModel(t, in)

	res := (&Backtracking{}).Generate(context.Background(), m, c, Budget{MaxSteps: 1000}, nil)

	require.Equal(t, StatusSucceeded, res.Status)
	requireSound(t, in, res.Assignments)
	for _, a := range res.Assignments {
		if a.TaskID == "a" {
			assert.ElementsMatch(t, []string{"z", "w"}, a.Invigilators)
		}
	}
}

func TestBacktrackingRoomSupplyCountsUsableRoomsOnly(t *testing.T) {
	// lab exists but no task may use it, so three hall exams cannot fit two slots
	in := threeTasks("hall")
	in.Rooms = append(in.Rooms, rooms(30, "lab")...)
	m, c := mustModel(t, in)

	res := (&Backtracking{}).Generate(context.Background(), m, c, Budget{MaxSteps: 1000}, nil)

	require.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Diagnostics.Reason, "need 3 room-slots but only 2 exist")
}

func TestBacktrackingStepBudget(t *testing.T) {
	m, c := mustModel(t, termInput(6, 4))

	res := (&Backtracking{}).Generate(context.Background(), m, c, Budget{MaxSteps: 3}, nil)

	require.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, "step budget exhausted", res.Diagnostics.Reason)
	assert.Equal(t, int64(3), res.Steps)
}

func TestBacktrackingHonoursCancellation(t *testing.T) {
	m, c := mustModel(t, termInput(6, 4))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := (&Backtracking{}).Generate(ctx, m, c, Budget{TimeLimit: time.Second}, nil)

	assert.Equal(t, StatusCancelled, res.Status)
	assert.False(t, res.Feasible)
}
