package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkerInput() Input {
	return Input{
		Grid:         Grid{Days: 2, SlotsPerDay: 4, MorningSlots: 2},
		Rooms:        []Resource{{ID: "r1", Capacity: 30}, {ID: "r2", Capacity: 60, Availability: []TimeSlot{{Day: 0, Index: 0}, {Day: 0, Index: 1}}}},
		Invigilators: people(KindInvigilator, "i1", "i2"),
		Cohorts:      []Resource{{ID: "10A", Kind: KindCohort}},
		Tasks: []Task{
			{ID: "math", Cohorts: []string{"10A"}, Duration: 2, RequiredCapacity: 25, Rooms: []string{"r1", "r2"}, Invigilators: []string{"i1", "i2"}, Difficulty: 5},
			{ID: "bio", Cohorts: []string{"10A"}, Duration: 1, RequiredCapacity: 25, Rooms: []string{"r1", "r2"}, Invigilators: []string{"i1", "i2"}},
			{ID: "art", Cohorts: []string{"10B"}, Duration: 1, RequiredCapacity: 50, Rooms: []string{"r1", "r2"}, Invigilators: []string{"i1", "i2"}, Conflicts: []string{"bio"}},
		},
		Soft:                map[string]float64{SoftCohortGap: 1, SoftInvigilatorBalance: 0, SoftMorningDifficulty: 3},
		DifficultyThreshold: 4,
	}
}

func at(day, idx int) TimeSlot { return TimeSlot{Day: day, Index: idx} }

func constraintsOf(vs []Violation) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Constraint
	}
	return out
}

func TestCheckerAcceptsValidSchedule(t *testing.T) {
	_, c := mustModel(t, checkerInput())
	as := []Assignment{
		{TaskID: "math", Start: at(0, 0), Room: "r1", Invigilators: []string{"i1"}},
		{TaskID: "bio", Start: at(0, 2), Room: "r1", Invigilators: []string{"i1"}},
		{TaskID: "art", Start: at(0, 0), Room: "r2", Invigilators: []string{"i2"}},
	}
	assert.True(t, c.IsFeasible(as))
	assert.Empty(t, c.Violations(as))
	ev := c.Evaluate(as)
	assert.True(t, ev.Feasible)
	assert.Zero(t, ev.Penalty)
}

func TestCheckerDetectsOverlaps(t *testing.T) {
	_, c := mustModel(t, checkerInput())

	t.Run("room", func(t *testing.T) {
		vs := c.Violations([]Assignment{
			{TaskID: "math", Start: at(1, 0), Room: "r1", Invigilators: []string{"i1"}},
			{TaskID: "art", Start: at(1, 1), Room: "r1", Invigilators: []string{"i2"}},
		})
		assert.Contains(t, constraintsOf(vs), HardRoomOverlap)
		assert.Contains(t, constraintsOf(vs), HardRoomCapacity)
	})

	t.Run("invigilator", func(t *testing.T) {
		vs := c.Violations([]Assignment{
			{TaskID: "math", Start: at(0, 0), Room: "r1", Invigilators: []string{"i1"}},
			{TaskID: "art", Start: at(0, 1), Room: "r2", Invigilators: []string{"i1"}},
		})
		require.Len(t, vs, 1)
		assert.Equal(t, HardInvigilatorOverlap, vs[0].Constraint)
		assert.Equal(t, []string{"math", "art"}, vs[0].Tasks)
		assert.Equal(t, "i1", vs[0].Resource)
	})

	t.Run("cohort", func(t *testing.T) {
		vs := c.Violations([]Assignment{
			{TaskID: "math", Start: at(0, 0), Room: "r1", Invigilators: []string{"i1"}},
			{TaskID: "bio", Start: at(0, 1), Room: "r2", Invigilators: []string{"i2"}},
		})
		require.Len(t, vs, 1)
		assert.Equal(t, HardCohortOverlap, vs[0].Constraint)
		assert.Equal(t, &TimeSlot{Day: 0, Index: 1}, vs[0].Slot)
	})

	t.Run("adjacent is not overlap", func(t *testing.T) {
		assert.True(t, c.IsFeasible([]Assignment{
			{TaskID: "math", Start: at(0, 0), Room: "r1", Invigilators: []string{"i1"}},
			{TaskID: "bio", Start: at(0, 2), Room: "r1", Invigilators: []string{"i1"}},
		}))
	})
}

func TestCheckerStaticConstraints(t *testing.T) {
	_, c := mustModel(t, checkerInput())

	vs := c.Violations([]Assignment{
		{TaskID: "art", Start: at(1, 0), Room: "r2", Invigilators: []string{"i2"}},
		{TaskID: "bio", Start: at(1, 0), Room: "r1", Invigilators: []string{"i1"}},
	})
	assert.ElementsMatch(t, []string{HardRoomAvailability, HardExplicitConflicts}, constraintsOf(vs))

	vs = c.Violations([]Assignment{
		{TaskID: "math", Start: at(0, 3), Room: "r1", Invigilators: []string{"i1"}},
		{TaskID: "ghost", Start: at(0, 0), Room: "r1"},
		{TaskID: "bio", Start: at(0, 0), Room: "r9", Invigilators: []string{"i1"}},
		{TaskID: "art", Start: at(0, 0), Room: "r2", Invigilators: []string{"i1", "i2"}},
	})
	assert.ElementsMatch(t, []string{HardWithinDay, violationUnknownTask, violationInvalidRoom, violationInvalidInvigilator}, constraintsOf(vs))
}

func TestCheckerOptionalHardConstraintsCanBeDisabled(t *testing.T) {
	in := checkerInput()
	in.Hard = []string{HardRoomCapacity}
	_, c := mustModel(t, in)

	assert.True(t, c.IsFeasible([]Assignment{
		{TaskID: "art", Start: at(1, 0), Room: "r2", Invigilators: []string{"i2"}},
		{TaskID: "bio", Start: at(1, 0), Room: "r1", Invigilators: []string{"i1"}},
	}), "availability and explicit conflicts are off")
}

func TestCheckerScore(t *testing.T) {
	_, c := mustModel(t, checkerInput())

	// math at index 2 is one slot past the two-slot morning: 3 * 1
	// bio on the same day at index 0 leaves a one-slot gap before math: 1 * 1
	as := []Assignment{
		{TaskID: "bio", Start: at(0, 0), Room: "r1", Invigilators: []string{"i1"}},
		{TaskID: "math", Start: at(0, 2), Room: "r1", Invigilators: []string{"i1"}},
	}
	assert.Equal(t, 3.0, c.Score(as)-1)
	assert.Equal(t, c.Score(as), c.Score(as), "deterministic")

	// a different day carries no gap penalty
	as[0].Start = at(1, 0)
	assert.Equal(t, 3.0, c.Score(as))
}

func TestCheckerScoreBalanceAndDailyLoad(t *testing.T) {
	in := Input{
		Grid:              Grid{Days: 1, SlotsPerDay: 4},
		Rooms:             rooms(10, "r"),
		Invigilators:      people(KindInvigilator, "i1", "i2"),
		MaxDailyPerCohort: 1,
		Soft:              map[string]float64{SoftCohortGap: 0, SoftInvigilatorBalance: 1, SoftCohortDailyLoad: 5},
		Tasks: []Task{
			{ID: "a", Cohorts: []string{"x"}, Duration: 1, Rooms: []string{"r"}, Invigilators: []string{"i1", "i2"}},
			{ID: "b", Cohorts: []string{"x"}, Duration: 1, Rooms: []string{"r"}, Invigilators: []string{"i1", "i2"}},
		},
	}
	_, c := mustModel(t, in)

	// loads 2 and 0 around a mean of 1 deviate by 2; two exams on one day exceed the cap by 1
	score := c.Score([]Assignment{
		{TaskID: "a", Start: at(0, 0), Room: "r", Invigilators: []string{"i1"}},
		{TaskID: "b", Start: at(0, 1), Room: "r", Invigilators: []string{"i1"}},
	})
	assert.Equal(t, 2.0+5.0, score)

	score = c.Score([]Assignment{
		{TaskID: "a", Start: at(0, 0), Room: "r", Invigilators: []string{"i1"}},
		{TaskID: "b", Start: at(0, 1), Room: "r", Invigilators: []string{"i2"}},
	})
	assert.Equal(t, 5.0, score)
}
