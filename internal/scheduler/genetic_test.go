package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneticNeverWorsensFeasibleSeed(t *testing.T) {
	in := Input{
		Grid:                Grid{Days: 1, SlotsPerDay: 5, MorningSlots: 1},
		Rooms:               rooms(30, "r1"),
		DifficultyThreshold: 5,
		Soft:                map[string]float64{SoftMorningDifficulty: 10, SoftCohortGap: 0, SoftInvigilatorBalance: 0},
		Tasks:               []Task{{ID: "calculus", Duration: 1, Rooms: []string{"r1"}, Difficulty: 5}},
	}
	m, c := mustModel(t, in)
	seed := []Assignment{{TaskID: "calculus", Start: at(0, 4), Room: "r1"}}
	require.Equal(t, 40.0, c.Score(seed))

	res := (&Genetic{Seed: seed}).Generate(context.Background(), m, c, Budget{Generations: 20, Seed: 7}, nil)

	require.Equal(t, StatusSucceeded, res.Status)
	assert.True(t, res.Feasible)
	assert.LessOrEqual(t, res.Penalty, 40.0)
	assert.True(t, c.IsFeasible(res.Assignments))
	assert.Equal(t, c.Score(res.Assignments), res.Penalty)
}

func TestGeneticIsDeterministicForSeed(t *testing.T) {
	in := termInput(4, 3)
	m, c := mustModel(t, in)
	b := Budget{Generations: 15, Seed: 42}

	first := (&Genetic{}).Generate(context.Background(), m, c, b, nil)
	second := (&Genetic{}).Generate(context.Background(), m, c, b, nil)

	require.Equal(t, StatusSucceeded, first.Status)
	assert.Equal(t, first.Assignments, second.Assignments)
	assert.Equal(t, first.Penalty, second.Penalty)
	assert.Equal(t, first.Generations, second.Generations)
}

func TestGeneticProducesSoundSchedule(t *testing.T) {
	in := termInput(4, 3)
	m, c := mustModel(t, in)
	rec := &recorder{}

	res := (&Genetic{}).Generate(context.Background(), m, c, Budget{Generations: 60, Seed: 3}, rec.observe)

	require.Equal(t, StatusSucceeded, res.Status)
	assert.Len(t, res.Assignments, len(in.Tasks))
	assert.Empty(t, c.Violations(res.Assignments))
	requireSound(t, in, res.Assignments)
	rec.requireMonotonic(t)

	// once feasible, reported penalties never go up
	best := -1.0
	for _, ev := range rec.events {
		if !ev.Feasible {
			continue
		}
		if best >= 0 {
			require.LessOrEqual(t, ev.BestPenalty, best)
		}
		best = ev.BestPenalty
	}
	assert.Equal(t, 100.0, rec.events[len(rec.events)-1].Percent)
}

func TestGeneticReportsInfeasibleInstance(t *testing.T) {
	m, c := mustModel(t, threeTasks("r1"))

	res := (&Genetic{}).Generate(context.Background(), m, c, Budget{Generations: 5, Seed: 1}, nil)

	require.Equal(t, StatusFailed, res.Status)
	assert.False(t, res.Feasible)
	require.NotNil(t, res.Diagnostics)
	assert.Contains(t, res.Diagnostics.Reason, "no hard-feasible schedule")
	assert.NotEmpty(t, res.Diagnostics.Violations)
	assert.Equal(t, 5, res.Generations)
}

func TestGeneticHonoursCancellation(t *testing.T) {
	m, c := mustModel(t, termInput(3, 3))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := (&Genetic{}).Generate(ctx, m, c, Budget{Generations: 100, Seed: 1}, nil)

	assert.Equal(t, StatusCancelled, res.Status)
	assert.Zero(t, res.Generations)
}
