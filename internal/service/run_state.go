package service

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/noah-isme/sma-schedule-engine/internal/dto"
	"github.com/noah-isme/sma-schedule-engine/internal/models"
	"github.com/noah-isme/sma-schedule-engine/internal/scheduler"
)

// errCancelledByCaller is the context cause of a run cancelled through Cancel.
var errCancelledByCaller = errors.New("run cancelled by caller")

// runState is the in-process record of one run. The progress pointer has a single writer
// (the run goroutine, or the caller holding mu for state transitions) and any number of readers.
type runState struct {
	mu   sync.Mutex
	run  models.ScheduleRun
	plan *runPlan

	progress        atomic.Pointer[dto.ProgressView]
	cancelRequested bool
	mirrorLimiter   *rate.Limiter
	lastPhase       string
	dirtySolution   bool

	doneOnce sync.Once
	done     chan struct{}
}

func newRunState(run models.ScheduleRun, plan *runPlan, mirrorEvery time.Duration) *runState {
	limit := rate.Inf
	if mirrorEvery > 0 {
		limit = rate.Every(mirrorEvery)
	}
	st := &runState{
		run:           run,
		plan:          plan,
		mirrorLimiter: rate.NewLimiter(limit, 1),
		done:          make(chan struct{}),
	}
	if run.Status.Finished() {
		st.markDone()
	}
	return st
}

func (st *runState) markDone() {
	st.doneOnce.Do(func() { close(st.done) })
}

// snapshot copies the run under the lock.
func (st *runState) snapshot() models.ScheduleRun {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.run
}

// publishLocked stores a progress view derived from the run record. Caller holds mu.
func (st *runState) publishLocked(now time.Time) *dto.ProgressView {
	prev := st.progress.Load()
	view := &dto.ProgressView{
		RunID:       st.run.ID,
		Status:      string(st.run.Status),
		Percent:     st.run.Progress,
		BestPenalty: st.run.BestPenalty,
		Feasible:    st.run.Result.Feasible,
		UpdatedAt:   now,
	}
	if st.plan != nil {
		view.Total = st.plan.model.TaskCount()
	}
	if prev != nil && st.run.Status == models.RunStatusRunning {
		view.Phase = prev.Phase
		view.Placed = prev.Placed
		view.Generation = prev.Generation
	}
	if st.run.Status.Finished() && st.run.Result.Feasible {
		view.Placed = len(st.run.Result.Assignments)
	}
	st.progress.Store(view)
	return view
}

// advance folds a strategy event into the published view. Percent never decreases and the
// best penalty never increases while the run is searching.
func (st *runState) advance(ev scheduler.Event, now time.Time) *dto.ProgressView {
	prev := st.progress.Load()
	view := &dto.ProgressView{
		RunID:      st.run.ID,
		Status:     string(models.RunStatusRunning),
		Phase:      ev.Phase,
		Percent:    ev.Percent,
		Feasible:   ev.Feasible,
		Placed:     ev.Placed,
		Total:      ev.Total,
		Generation: ev.Generation,
		UpdatedAt:  now,
	}
	if ev.Feasible {
		penalty := ev.BestPenalty
		view.BestPenalty = &penalty
	}
	if prev != nil {
		if prev.Percent > view.Percent {
			view.Percent = prev.Percent
		}
		if prev.BestPenalty != nil && (view.BestPenalty == nil || *prev.BestPenalty < *view.BestPenalty) {
			penalty := *prev.BestPenalty
			view.BestPenalty = &penalty
			view.Feasible = true
		}
	}
	if view.Percent > 100 {
		view.Percent = 100
	}
	st.progress.Store(view)
	return view
}

func (st *runState) view() *dto.ProgressView {
	if v := st.progress.Load(); v != nil {
		cp := *v
		return &cp
	}
	return nil
}

func cloneAssignments(in []scheduler.Assignment) []scheduler.Assignment {
	out := make([]scheduler.Assignment, len(in))
	for i, a := range in {
		a.Invigilators = append([]string(nil), a.Invigilators...)
		out[i] = a
	}
	return out
}
