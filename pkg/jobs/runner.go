package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrBusy is returned when the admission limit is reached.
	ErrBusy = errors.New("runner at capacity")
	// ErrDuplicate is returned when a job with the same ID is already active.
	ErrDuplicate = errors.New("job already active")
	// ErrNotStarted is returned by Launch before Start or after Stop.
	ErrNotStarted = errors.New("runner not started")
	// ErrDeadline is the cancellation cause of a job that outlived its deadline.
	ErrDeadline = errors.New("job deadline exceeded")
	// ErrStopped is the cancellation cause of jobs interrupted by Stop.
	ErrStopped = errors.New("runner stopped")
)

// Job describes one unit of background work.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Deadline time.Duration
	Enqueued time.Time
}

// Handler processes a job. ctx carries the cancellation cause, see context.Cause.
type Handler func(context.Context, Job) error

// RunnerConfig configures admission and logging.
type RunnerConfig struct {
	MaxActive int
	Logger    *zap.Logger
}

type activeJob struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// Runner executes each job on its own goroutine with an individually cancellable context.
// Jobs never share state through the runner; it only tracks their cancel handles.
type Runner struct {
	name      string
	maxActive int
	logger    *zap.Logger

	ctx     context.Context
	cancel  context.CancelCauseFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	active  map[string]*activeJob
	started bool
}

// NewRunner builds a runner. MaxActive <= 0 disables admission control.
func NewRunner(name string, cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Runner{
		name:      name,
		maxActive: cfg.MaxActive,
		logger:    cfg.Logger,
		active:    make(map[string]*activeJob),
	}
}

// Start enables Launch. Safe to call once.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.ctx, r.cancel = context.WithCancelCause(ctx)
	r.started = true
	r.logger.Sugar().Infow("runner started", "runner", r.name, "max_active", r.maxActive)
}

// Stop cancels every active job and waits for them to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	r.cancel(ErrStopped)
	r.mu.Unlock()
	r.wg.Wait()
	r.logger.Sugar().Infow("runner stopped", "runner", r.name)
}

// Launch runs handler for job on a new goroutine.
func (r *Runner) Launch(job Job, handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		return fmt.Errorf("runner %s: %w", r.name, ErrNotStarted)
	}
	if _, exists := r.active[job.ID]; exists {
		return fmt.Errorf("runner %s job %s: %w", r.name, job.ID, ErrDuplicate)
	}
	if r.maxActive > 0 && len(r.active) >= r.maxActive {
		return fmt.Errorf("runner %s: %w", r.name, ErrBusy)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	ctx, cancel := context.WithCancelCause(r.ctx)
	var stopTimer context.CancelFunc = func() {}
	if job.Deadline > 0 {
		ctx, stopTimer = context.WithTimeoutCause(ctx, job.Deadline, ErrDeadline)
	}

	entry := &activeJob{cancel: cancel, done: make(chan struct{})}
	r.active[job.ID] = entry
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		defer close(entry.done)
		defer func() {
			stopTimer()
			cancel(nil)
			r.mu.Lock()
			delete(r.active, job.ID)
			r.mu.Unlock()
		}()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Sugar().Errorw("job panicked", "runner", r.name, "job_id", job.ID, "type", job.Type, "panic", rec)
			}
		}()

		if err := handler(ctx, job); err != nil {
			r.logger.Sugar().Warnw("job returned error", "runner", r.name, "job_id", job.ID, "type", job.Type, "error", err)
		}
	}()

	return nil
}

// Cancel requests cancellation of an active job. It reports whether the job was found.
func (r *Runner) Cancel(id string, cause error) bool {
	r.mu.Lock()
	entry, ok := r.active[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	entry.cancel(cause)
	return true
}

// Done returns a channel closed when the job exits, or nil if it is not active.
func (r *Runner) Done(id string) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.active[id]; ok {
		return entry.done
	}
	return nil
}

// Active reports the number of running jobs.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
