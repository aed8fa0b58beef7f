package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// StrategyName tags a search strategy in run configuration.
type StrategyName string

const (
	StrategyCSP     StrategyName = "CSP_BACKTRACK"
	StrategyGenetic StrategyName = "GENETIC"
	StrategyHybrid  StrategyName = "HYBRID"
)

// ParseStrategy resolves a configured strategy tag, case-insensitively.
func ParseStrategy(raw string) (StrategyName, error) {
	switch StrategyName(strings.ToUpper(strings.TrimSpace(raw))) {
	case StrategyCSP:
		return StrategyCSP, nil
	case StrategyGenetic:
		return StrategyGenetic, nil
	case StrategyHybrid:
		return StrategyHybrid, nil
	default:
		return "", invalid("strategy", fmt.Sprintf("unknown strategy %q", raw))
	}
}

// Status is the outcome of a search.
type Status string

const (
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Phase names reported in progress events.
const (
	PhaseConstruct = "construct"
	PhaseOptimise  = "optimise"
	PhaseDone      = "done"
)

// Event is one progress report from a running strategy. Solution is set only when
// a new best feasible solution was found.
type Event struct {
	Phase       string
	Percent     float64
	Feasible    bool
	BestPenalty float64
	Placed      int
	Total       int
	Generation  int
	Steps       int64
	Solution    []Assignment
}

// Observer receives progress events on the strategy goroutine. It must not block.
type Observer func(Event)

// Diagnostics explains a failed or partial search.
type Diagnostics struct {
	Reason     string      `json:"reason"`
	Placed     int         `json:"placed"`
	Total      int         `json:"total"`
	Unplaced   []string    `json:"unplaced,omitempty"`
	Hardest    []string    `json:"hardest,omitempty"`
	Violations []Violation `json:"violations,omitempty"`
}

// Result is the final outcome of Generate. On CANCELLED, Assignments holds the best
// feasible solution found before cancellation, if any.
type Result struct {
	Status      Status
	Feasible    bool
	Assignments []Assignment
	Penalty     float64
	Diagnostics *Diagnostics
	Steps       int64
	Generations int
}

// Strategy searches for a schedule. Implementations check ctx after every task placement
// and every generation, and never share mutable state between calls.
type Strategy interface {
	Name() StrategyName
	Generate(ctx context.Context, m *Model, c *Checker, b Budget, observe Observer) Result
}

// NewStrategy builds the strategy for a tag.
func NewStrategy(name StrategyName) (Strategy, error) {
	switch name {
	case StrategyCSP:
		return &Backtracking{}, nil
	case StrategyGenetic:
		return &Genetic{}, nil
	case StrategyHybrid:
		return &Hybrid{}, nil
	default:
		return nil, invalid("strategy", fmt.Sprintf("unknown strategy %q", name))
	}
}

func emptyResult(observe Observer) Result {
	notify(observe, Event{Phase: PhaseDone, Percent: 100, Feasible: true, Solution: []Assignment{}})
	return Result{Status: StatusSucceeded, Feasible: true, Assignments: []Assignment{}}
}

func notify(observe Observer, ev Event) {
	if observe != nil {
		observe(ev)
	}
}

// clock enforces the wall-clock and step parts of a Budget.
type clock struct {
	deadline time.Time
	maxSteps int64
	steps    int64
}

func newClock(b Budget) *clock {
	c := &clock{maxSteps: b.MaxSteps}
	if b.TimeLimit > 0 {
		c.deadline = time.Now().Add(b.TimeLimit)
	}
	return c
}

func (c *clock) tick() { c.steps++ }

func (c *clock) exhausted() (string, bool) {
	if c.maxSteps > 0 && c.steps >= c.maxSteps {
		return "step budget exhausted", true
	}
	if !c.deadline.IsZero() && time.Now().After(c.deadline) {
		return "time budget exhausted", true
	}
	return "", false
}

// fraction returns how much of the time budget has elapsed, in [0, 1].
func (c *clock) fraction(limit time.Duration) float64 {
	if c.deadline.IsZero() || limit <= 0 {
		return 0
	}
	left := time.Until(c.deadline)
	f := 1 - float64(left)/float64(limit)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
