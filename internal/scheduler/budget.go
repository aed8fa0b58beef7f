package scheduler

import (
	"errors"
	"time"
)

// Budget bounds a search. At least one of TimeLimit or MaxSteps must be set.
type Budget struct {
	TimeLimit        time.Duration
	MaxSteps         int64
	Generations      int
	PopulationSize   int
	StagnationLimit  int
	MutationRate     float64
	CrossoverRate    float64
	TournamentSize   int
	LocalSearchMoves int
	HardPenalty      float64
	Seed             int64
	HybridCSPShare   float64
}

// ErrUnbounded is returned by Validate when neither a time nor a step limit is set.
var ErrUnbounded = errors.New("budget requires a time limit or a step limit")

// Validate checks that the budget terminates.
func (b Budget) Validate() error {
	if b.TimeLimit <= 0 && b.MaxSteps <= 0 {
		return ErrUnbounded
	}
	return nil
}

// WithDefaults fills zero fields with working values.
func (b Budget) WithDefaults() Budget {
	if b.Generations <= 0 {
		b.Generations = 200
	}
	if b.PopulationSize <= 1 {
		b.PopulationSize = 30
	}
	if b.StagnationLimit <= 0 {
		b.StagnationLimit = 40
	}
	if b.MutationRate <= 0 || b.MutationRate > 1 {
		b.MutationRate = 0.3
	}
	if b.CrossoverRate <= 0 || b.CrossoverRate > 1 {
		b.CrossoverRate = 0.8
	}
	if b.TournamentSize <= 1 {
		b.TournamentSize = 3
	}
	if b.LocalSearchMoves <= 0 {
		b.LocalSearchMoves = 50
	}
	if b.HardPenalty <= 0 {
		b.HardPenalty = 1000
	}
	if b.HybridCSPShare <= 0 || b.HybridCSPShare >= 1 {
		b.HybridCSPShare = 0.5
	}
	return b
}
