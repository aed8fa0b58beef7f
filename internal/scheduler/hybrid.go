package scheduler

import (
	"context"
	"time"
)

// Hybrid runs Backtracking for a feasible seed, then hands it to Genetic. Both phases
// share one wall-clock budget; HybridCSPShare caps the construction phase.
type Hybrid struct {
	Window int
}

// Name implements Strategy.
func (h *Hybrid) Name() StrategyName { return StrategyHybrid }

// Generate implements Strategy.
func (h *Hybrid) Generate(ctx context.Context, m *Model, c *Checker, b Budget, observe Observer) Result {
	if len(m.tasks) == 0 {
		return emptyResult(observe)
	}
	b = b.WithDefaults()
	began := time.Now()

	cspBudget := b
	if b.TimeLimit > 0 {
		cspBudget.TimeLimit = time.Duration(float64(b.TimeLimit) * b.HybridCSPShare)
	}
	csp := &Backtracking{Window: h.Window}
	seedRes, seed := csp.search(ctx, m, c, cspBudget, scaled(observe, 0, 50))
	if seedRes.Status != StatusSucceeded {
		return seedRes
	}

	gaBudget := b
	if b.TimeLimit > 0 {
		gaBudget.TimeLimit = b.TimeLimit - time.Since(began)
		if gaBudget.TimeLimit <= 0 {
			return finish(seedRes, observe)
		}
	}
	if b.MaxSteps > 0 {
		gaBudget.MaxSteps = b.MaxSteps - seedRes.Steps
		if gaBudget.MaxSteps <= 0 {
			return finish(seedRes, observe)
		}
	}

	ga := &Genetic{seed: seed}
	res := ga.Generate(ctx, m, c, gaBudget, scaled(observe, 50, 100))
	res.Steps += seedRes.Steps
	switch {
	case res.Status == StatusFailed:
		// the optimiser starts from a feasible seed, so this only happens on internal trouble
		seedRes.Steps = res.Steps
		return finish(seedRes, observe)
	case res.Status == StatusCancelled && !res.Feasible:
		res.Feasible = true
		res.Assignments = seedRes.Assignments
		res.Penalty = seedRes.Penalty
	}
	return res
}

func finish(res Result, observe Observer) Result {
	notify(observe, Event{
		Phase:       PhaseDone,
		Percent:     100,
		Feasible:    true,
		BestPenalty: res.Penalty,
		Placed:      len(res.Assignments),
		Total:       len(res.Assignments),
		Steps:       res.Steps,
	})
	return res
}

// scaled maps a phase's 0..100 progress onto lo..hi of the overall run.
func scaled(observe Observer, lo, hi float64) Observer {
	if observe == nil {
		return nil
	}
	return func(ev Event) {
		ev.Percent = lo + ev.Percent*(hi-lo)/100
		if ev.Phase == PhaseDone && hi < 100 {
			ev.Phase = PhaseConstruct
		}
		observe(ev)
	}
}
