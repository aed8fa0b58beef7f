package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-schedule-engine/internal/dto"
	"github.com/noah-isme/sma-schedule-engine/internal/models"
	"github.com/noah-isme/sma-schedule-engine/internal/repository"
	"github.com/noah-isme/sma-schedule-engine/internal/scheduler"
	appErrors "github.com/noah-isme/sma-schedule-engine/pkg/errors"
	"github.com/noah-isme/sma-schedule-engine/pkg/jobs"
	"github.com/noah-isme/sma-schedule-engine/pkg/tracing"
)

// ScheduleStore is the versioned committed-schedule store.
type ScheduleStore interface {
	Read(ctx context.Context, scope string) (*models.CommittedSchedule, error)
	Commit(ctx context.Context, scope, runID string, assignments []scheduler.Assignment, expectedVersion int64) (int64, error)
	Previous(ctx context.Context, scope string) (*models.CommittedSchedule, error)
	Rollback(ctx context.Context, scope string, expectedVersion int64) (*models.CommittedSchedule, error)
}

// RunStore persists run records across restarts.
type RunStore interface {
	Save(ctx context.Context, run *models.ScheduleRun) error
	FindByID(ctx context.Context, id string) (*models.ScheduleRun, error)
	ListByStatus(ctx context.Context, statuses ...models.ScheduleRunStatus) ([]models.ScheduleRun, error)
}

// ProgressMirror shares progress snapshots with other replicas.
type ProgressMirror interface {
	Set(ctx context.Context, view *dto.ProgressView) error
	Get(ctx context.Context, runID string) (*dto.ProgressView, error)
}

// RunLauncher executes searches in the background.
type RunLauncher interface {
	Launch(job jobs.Job, handler jobs.Handler) error
	Cancel(id string, cause error) bool
}

const (
	runJobType    = "schedule_run"
	mirrorTimeout = 250 * time.Millisecond
)

// ScheduleRunConfig tunes the orchestrator.
type ScheduleRunConfig struct {
	Defaults        RunDefaults
	BudgetGrace     time.Duration
	RunRetention    time.Duration
	CleanupInterval time.Duration
	MirrorInterval  time.Duration
}

// ScheduleRunService owns the lifecycle of generation runs: it validates configurations,
// launches searches on the runner, publishes progress and applies or rolls back results
// against the schedule store.
type ScheduleRunService struct {
	store     ScheduleStore
	runs      RunStore
	mirror    ProgressMirror
	runner    RunLauncher
	metrics   *MetricsService
	tracer    *tracing.Provider
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ScheduleRunConfig
	now       func() time.Time
	newID     func() string
	strategy  func(scheduler.StrategyName) (scheduler.Strategy, error)

	mu     sync.RWMutex
	states map[string]*runState
}

// NewScheduleRunService wires orchestrator dependencies. runs and mirror may be nil.
func NewScheduleRunService(
	store ScheduleStore,
	runs RunStore,
	mirror ProgressMirror,
	runner RunLauncher,
	metrics *MetricsService,
	tracer *tracing.Provider,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ScheduleRunConfig,
) *ScheduleRunService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracer == nil {
		tracer = tracing.Noop()
	}
	if cfg.RunRetention <= 0 {
		cfg.RunRetention = time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	return &ScheduleRunService{
		store:     store,
		runs:      runs,
		mirror:    mirror,
		runner:    runner,
		metrics:   metrics,
		tracer:    tracer,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
		strategy:  scheduler.NewStrategy,
		states:    make(map[string]*runState),
	}
}

func (s *ScheduleRunService) state(id string) (*runState, error) {
	s.mu.RLock()
	st, ok := s.states[id]
	s.mu.RUnlock()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("schedule run %s not found", id))
	}
	return st, nil
}

func (s *ScheduleRunService) register(st *runState) {
	s.mu.Lock()
	s.states[st.run.ID] = st
	s.mu.Unlock()
}

func (s *ScheduleRunService) plan(req dto.CreateScheduleRunRequest) (*runPlan, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WithDetails(
			appErrors.Wrap(err, appErrors.ErrInvalidConfig.Code, appErrors.ErrInvalidConfig.Status, "invalid run configuration"),
			err.Error(),
		)
	}
	return buildPlan(req, s.cfg.Defaults)
}

// Validate checks a configuration without registering a run and reports its task count.
func (s *ScheduleRunService) Validate(req dto.CreateScheduleRunRequest) (int, error) {
	plan, err := s.plan(req)
	if err != nil {
		return 0, err
	}
	return plan.model.TaskCount(), nil
}

// Create validates a configuration and registers a PENDING run.
func (s *ScheduleRunService) Create(ctx context.Context, req dto.CreateScheduleRunRequest) (*dto.ScheduleRunResponse, error) {
	plan, err := s.plan(req)
	if err != nil {
		return nil, err
	}

	now := s.now()
	run := models.ScheduleRun{
		ID:        s.newID(),
		Scope:     plan.scope,
		Strategy:  string(plan.strategy),
		Status:    models.RunStatusPending,
		Config:    plan.raw,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.runs != nil {
		if err := s.runs.Save(ctx, &run); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist schedule run")
		}
	}
	st := newRunState(run, plan, s.cfg.MirrorInterval)
	st.mu.Lock()
	st.publishLocked(now)
	st.mu.Unlock()
	s.register(st)

	s.logger.Info("schedule run created",
		zap.String("run_id", run.ID),
		zap.String("scope", run.Scope),
		zap.String("strategy", run.Strategy),
		zap.Int("tasks", plan.model.TaskCount()),
	)
	resp := toRunResponse(run)
	return &resp, nil
}

// Start moves a PENDING run to RUNNING and launches its search.
func (s *ScheduleRunService) Start(ctx context.Context, id string) error {
	st, err := s.state(id)
	if err != nil {
		return err
	}

	st.mu.Lock()
	if err := models.ValidateRunTransition(st.run.Status, models.RunStatusRunning); err != nil {
		st.mu.Unlock()
		return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("run %s is %s", id, st.run.Status))
	}
	head, err := s.store.Read(ctx, st.run.Scope)
	if err != nil {
		st.mu.Unlock()
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read committed schedule")
	}

	prev := st.run
	now := s.now()
	st.run.Status = models.RunStatusRunning
	st.run.BaseVersion = head.Version
	st.run.StartedAt = &now
	st.run.UpdatedAt = now

	job := jobs.Job{ID: id, Type: runJobType, Enqueued: now}
	if limit := st.plan.budget.TimeLimit; limit > 0 {
		job.Deadline = limit + s.cfg.BudgetGrace
	}
	if err := s.runner.Launch(job, func(ctx context.Context, _ jobs.Job) error {
		s.execute(ctx, st)
		return nil
	}); err != nil {
		st.run = prev
		st.mu.Unlock()
		if errors.Is(err, jobs.ErrBusy) {
			return appErrors.ErrBusy
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to launch schedule run")
	}
	// the search goroutine blocks on mu until the RUNNING record is stored
	st.publishLocked(now)
	snapshot := st.run
	s.metrics.RunStarted()
	s.persist(ctx, snapshot)
	st.mu.Unlock()

	s.logger.Info("schedule run started",
		zap.String("run_id", id),
		zap.Int64("base_version", snapshot.BaseVersion),
		zap.Duration("deadline", job.Deadline),
	)
	return nil
}

// execute runs on the runner goroutine for the lifetime of the search.
func (s *ScheduleRunService) execute(ctx context.Context, st *runState) {
	run := st.snapshot()
	ctx, span := s.tracer.StartSpan(ctx, "schedule.run",
		attribute.String("run.id", run.ID),
		attribute.String("run.scope", run.Scope),
		attribute.String("run.strategy", run.Strategy),
		attribute.Int("run.tasks", st.plan.model.TaskCount()),
	)
	defer span.End()
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		s.logger.Error("schedule run panicked",
			zap.String("run_id", run.ID),
			zap.String("strategy", run.Strategy),
			zap.Any("panic", rec),
		)
		tracing.SetError(ctx, fmt.Errorf("search panicked: %v", rec))
		s.finish(context.WithoutCancel(ctx), st, scheduler.Result{
			Status:      scheduler.StatusFailed,
			Diagnostics: &scheduler.Diagnostics{Reason: "internal search error", Total: st.plan.model.TaskCount()},
		})
	}()

	strategy, err := s.strategy(st.plan.strategy)
	if err != nil {
		s.finish(ctx, st, scheduler.Result{
			Status:      scheduler.StatusFailed,
			Diagnostics: &scheduler.Diagnostics{Reason: err.Error()},
		})
		return
	}
	res := strategy.Generate(ctx, st.plan.model, st.plan.checker, st.plan.budget, func(ev scheduler.Event) {
		s.observe(ctx, st, ev)
	})
	s.finish(ctx, st, res)
}

// observe handles one strategy event on the run goroutine.
func (s *ScheduleRunService) observe(ctx context.Context, st *runState, ev scheduler.Event) {
	view := st.advance(ev, s.now())
	if ev.Phase != st.lastPhase {
		tracing.AddEvent(ctx, "phase."+ev.Phase, attribute.Float64("percent", view.Percent))
		st.lastPhase = ev.Phase
	}

	if ev.Solution != nil {
		st.mu.Lock()
		st.run.Result = models.RunResult{
			Feasible:    true,
			Penalty:     ev.BestPenalty,
			Assignments: cloneAssignments(ev.Solution),
			Steps:       ev.Steps,
			Generations: ev.Generation,
		}
		st.run.BestPenalty = view.BestPenalty
		st.run.Progress = view.Percent
		st.dirtySolution = true
		st.mu.Unlock()
	}

	if !st.mirrorLimiter.Allow() {
		return
	}
	s.mirrorView(ctx, view)
	st.mu.Lock()
	var snapshot *models.ScheduleRun
	if st.dirtySolution {
		st.dirtySolution = false
		st.run.Progress = view.Percent
		st.run.UpdatedAt = view.UpdatedAt
		cp := st.run
		snapshot = &cp
	}
	st.mu.Unlock()
	if snapshot != nil {
		s.persist(ctx, *snapshot)
	}
}

// finish maps the search result and the context cause onto the run's terminal status.
func (s *ScheduleRunService) finish(ctx context.Context, st *runState, res scheduler.Result) {
	cause := context.Cause(ctx)
	now := s.now()

	st.mu.Lock()
	run := &st.run
	if errors.Is(cause, jobs.ErrStopped) && !st.cancelRequested {
		// interrupted by shutdown; the persisted RUNNING record is restarted by Recover
		run.UpdatedAt = now
		snapshot := *run
		st.mu.Unlock()
		s.persist(context.WithoutCancel(ctx), snapshot)
		s.metrics.RunFinished(snapshot.Strategy, "INTERRUPTED", now.Sub(*snapshot.StartedAt), nil)
		return
	}

	var status models.ScheduleRunStatus
	var reason string
	switch {
	case st.cancelRequested:
		status = models.RunStatusCancelled
	case res.Status == scheduler.StatusSucceeded:
		status = models.RunStatusSucceeded
	case res.Status == scheduler.StatusCancelled && errors.Is(cause, jobs.ErrDeadline) && res.Feasible:
		status = models.RunStatusSucceeded
	case res.Status == scheduler.StatusCancelled && errors.Is(cause, jobs.ErrDeadline):
		status, reason = models.RunStatusFailed, "budget exceeded without a feasible schedule"
	case res.Status == scheduler.StatusCancelled:
		status = models.RunStatusCancelled
	default:
		status, reason = models.RunStatusFailed, "no feasible schedule found"
		if res.Diagnostics != nil && res.Diagnostics.Reason != "" {
			reason = res.Diagnostics.Reason
		}
	}

	if status == models.RunStatusSucceeded {
		if len(res.Assignments) != st.plan.model.TaskCount() || !st.plan.checker.IsFeasible(res.Assignments) {
			status, reason = models.RunStatusFailed, "search returned a schedule that violates hard constraints"
		}
	}

	run.Status = status
	run.FinishedAt = &now
	run.UpdatedAt = now
	run.Result.Steps = res.Steps
	run.Result.Generations = res.Generations
	switch status {
	case models.RunStatusSucceeded:
		penalty := res.Penalty
		run.Progress = 100
		run.BestPenalty = &penalty
		run.Result = models.RunResult{
			Feasible:    true,
			Penalty:     res.Penalty,
			Assignments: cloneAssignments(res.Assignments),
			Steps:       res.Steps,
			Generations: res.Generations,
		}
	case models.RunStatusFailed:
		run.ErrorMessage = &reason
		run.BestPenalty = nil
		run.Result = models.RunResult{
			Diagnostics: res.Diagnostics,
			Steps:       res.Steps,
			Generations: res.Generations,
		}
		if run.Result.Diagnostics == nil {
			run.Result.Diagnostics = &scheduler.Diagnostics{Reason: reason}
		}
	case models.RunStatusCancelled:
		run.Result.Diagnostics = res.Diagnostics
	}
	if view := st.progress.Load(); view != nil && view.Percent > run.Progress {
		run.Progress = view.Percent
	}
	view := st.publishLocked(now)
	snapshot := *run
	st.mu.Unlock()
	st.markDone()

	bg := context.WithoutCancel(ctx)
	s.mirrorView(bg, view)
	s.persist(bg, snapshot)
	s.metrics.RunFinished(snapshot.Strategy, string(status), now.Sub(*snapshot.StartedAt), snapshot.BestPenalty)
	if status == models.RunStatusFailed {
		tracing.SetError(ctx, errors.New(reason))
	}
	tracing.AddEvent(ctx, "run.finished", attribute.String("status", string(status)))

	fields := []zap.Field{
		zap.String("run_id", snapshot.ID),
		zap.String("status", string(status)),
		zap.Int64("steps", res.Steps),
		zap.Duration("elapsed", now.Sub(*snapshot.StartedAt)),
	}
	if snapshot.BestPenalty != nil {
		fields = append(fields, zap.Float64("penalty", *snapshot.BestPenalty))
	}
	if reason != "" {
		fields = append(fields, zap.String("reason", reason))
	}
	s.logger.Info("schedule run finished", fields...)
}

// Progress returns the latest published progress snapshot.
func (s *ScheduleRunService) Progress(ctx context.Context, id string) (*dto.ProgressView, error) {
	if st, err := s.state(id); err == nil {
		return st.view(), nil
	}
	if s.mirror != nil {
		view, err := s.mirror.Get(ctx, id)
		if err != nil {
			s.logger.Warn("progress mirror read failed", zap.String("run_id", id), zap.Error(err))
		} else if view != nil {
			return view, nil
		}
	}
	run, err := s.loadPersisted(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.ProgressView{
		RunID:       run.ID,
		Status:      string(run.Status),
		Percent:     run.Progress,
		BestPenalty: run.BestPenalty,
		Feasible:    run.Result.Feasible,
		Placed:      len(run.Result.Assignments),
		UpdatedAt:   run.UpdatedAt,
	}, nil
}

// Get returns the run detail including its working solution or diagnostics.
func (s *ScheduleRunService) Get(ctx context.Context, id string) (*dto.ScheduleRunResponse, error) {
	if st, err := s.state(id); err == nil {
		resp := toRunResponse(st.snapshot())
		return &resp, nil
	}
	run, err := s.loadPersisted(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toRunResponse(*run)
	return &resp, nil
}

func (s *ScheduleRunService) loadPersisted(ctx context.Context, id string) (*models.ScheduleRun, error) {
	if s.runs == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("schedule run %s not found", id))
	}
	run, err := s.runs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("schedule run %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule run")
	}
	return run, nil
}

// Wait blocks until the run's search has ended or ctx is done.
func (s *ScheduleRunService) Wait(ctx context.Context, id string) (*dto.ScheduleRunResponse, error) {
	st, err := s.state(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-st.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	resp := toRunResponse(st.snapshot())
	return &resp, nil
}

// Cancel stops a run. A PENDING run is cancelled at once; a RUNNING run becomes CANCELLED
// when its search reaches the next checkpoint. Cancelling a CANCELLED run is a no-op.
func (s *ScheduleRunService) Cancel(ctx context.Context, id string) error {
	st, err := s.state(id)
	if err != nil {
		return err
	}
	st.mu.Lock()
	switch st.run.Status {
	case models.RunStatusCancelled:
		st.mu.Unlock()
		return nil
	case models.RunStatusPending:
		now := s.now()
		st.run.Status = models.RunStatusCancelled
		st.run.FinishedAt = &now
		st.run.UpdatedAt = now
		view := st.publishLocked(now)
		snapshot := st.run
		st.mu.Unlock()
		st.markDone()
		s.mirrorView(ctx, view)
		s.persist(ctx, snapshot)
		s.logger.Info("schedule run cancelled before start", zap.String("run_id", id))
		return nil
	case models.RunStatusRunning:
		if !st.cancelRequested {
			st.cancelRequested = true
			s.runner.Cancel(id, errCancelledByCaller)
			s.logger.Info("schedule run cancellation requested", zap.String("run_id", id))
		}
		st.mu.Unlock()
		return nil
	default:
		status := st.run.Status
		st.mu.Unlock()
		return appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("run %s is %s", id, status))
	}
}

// Apply commits a SUCCEEDED run's solution with a compare-and-swap on the version the run
// started from. Applying an APPLIED run returns the same version again.
func (s *ScheduleRunService) Apply(ctx context.Context, id string) (*dto.ApplyResponse, error) {
	st, err := s.state(id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	run := &st.run

	if run.Status == models.RunStatusApplied && run.AppliedVersion != nil {
		return &dto.ApplyResponse{RunID: id, Scope: run.Scope, Version: *run.AppliedVersion, Status: string(run.Status)}, nil
	}
	if err := models.ValidateRunTransition(run.Status, models.RunStatusApplied); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("run %s is %s", id, run.Status))
	}

	began := time.Now()
	version, err := s.store.Commit(ctx, run.Scope, id, run.Result.Assignments, run.BaseVersion)
	s.metrics.ObserveStore("commit", time.Since(began))
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			s.metrics.RecordApplyConflict()
			s.logger.Warn("schedule apply conflict", zap.String("run_id", id), zap.String("scope", run.Scope), zap.Int64("base_version", run.BaseVersion))
			return nil, appErrors.Clone(appErrors.ErrConflict,
				fmt.Sprintf("scope %s moved past version %d since run %s started", run.Scope, run.BaseVersion, id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit schedule")
	}

	now := s.now()
	run.Status = models.RunStatusApplied
	run.AppliedVersion = &version
	run.UpdatedAt = now
	view := st.publishLocked(now)
	snapshot := *run

	s.mirrorView(ctx, view)
	s.persist(ctx, snapshot)
	s.logger.Info("schedule run applied", zap.String("run_id", id), zap.String("scope", run.Scope), zap.Int64("version", version))
	return &dto.ApplyResponse{RunID: id, Scope: run.Scope, Version: version, Status: string(run.Status)}, nil
}

// Rollback restores the scope's previous committed snapshot of an APPLIED run.
func (s *ScheduleRunService) Rollback(ctx context.Context, id string) (*dto.RollbackResponse, error) {
	st, err := s.state(id)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	run := &st.run

	if err := models.ValidateRunTransition(run.Status, models.RunStatusRolledBack); err != nil || run.AppliedVersion == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("run %s is %s", id, run.Status))
	}

	began := time.Now()
	restored, err := s.store.Rollback(ctx, run.Scope, *run.AppliedVersion)
	s.metrics.ObserveStore("rollback", time.Since(began))
	switch {
	case errors.Is(err, repository.ErrNoRollbackTarget):
		return nil, appErrors.Clone(appErrors.ErrNoRollbackTarget, fmt.Sprintf("scope %s has no previous schedule", run.Scope))
	case errors.Is(err, repository.ErrVersionConflict):
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("scope %s is no longer at version %d applied by run %s", run.Scope, *run.AppliedVersion, id))
	case err != nil:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to roll back schedule")
	}

	now := s.now()
	run.Status = models.RunStatusRolledBack
	run.UpdatedAt = now
	view := st.publishLocked(now)
	snapshot := *run

	s.mirrorView(ctx, view)
	s.persist(ctx, snapshot)
	s.logger.Info("schedule run rolled back", zap.String("run_id", id), zap.String("scope", run.Scope), zap.Int64("restored_version", restored.Version))
	return &dto.RollbackResponse{RunID: id, Scope: run.Scope, RestoredVersion: restored.Version, Status: string(run.Status)}, nil
}

// Schedule reads the committed schedule of a scope.
func (s *ScheduleRunService) Schedule(ctx context.Context, scope string) (*models.CommittedSchedule, error) {
	began := time.Now()
	snap, err := s.store.Read(ctx, scope)
	s.metrics.ObserveStore("read", time.Since(began))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read committed schedule")
	}
	return snap, nil
}

// PreviousSchedule returns the rollback target of a scope.
func (s *ScheduleRunService) PreviousSchedule(ctx context.Context, scope string) (*models.CommittedSchedule, error) {
	began := time.Now()
	snap, err := s.store.Previous(ctx, scope)
	s.metrics.ObserveStore("previous", time.Since(began))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read previous schedule")
	}
	if snap == nil {
		return nil, appErrors.Clone(appErrors.ErrNoRollbackTarget, fmt.Sprintf("scope %s has no previous schedule", scope))
	}
	return snap, nil
}

// Recover re-registers persisted runs after a restart. With resume set, runs that were
// searching are restarted from PENDING; otherwise they are left alone.
func (s *ScheduleRunService) Recover(ctx context.Context, resume bool) (int, error) {
	if s.runs == nil {
		return 0, nil
	}
	runs, err := s.runs.ListByStatus(ctx,
		models.RunStatusPending, models.RunStatusRunning, models.RunStatusSucceeded, models.RunStatusApplied)
	if err != nil {
		return 0, fmt.Errorf("list recoverable runs: %w", err)
	}
	restarted := 0
	for _, run := range runs {
		req, err := decodeRequest(run.Config)
		if err != nil {
			s.logger.Warn("skip unrecoverable run", zap.String("run_id", run.ID), zap.Error(err))
			continue
		}
		plan, err := buildPlan(req, s.cfg.Defaults)
		if err != nil {
			s.logger.Warn("skip unrecoverable run", zap.String("run_id", run.ID), zap.Error(err))
			continue
		}
		interrupted := run.Status == models.RunStatusRunning
		if interrupted && !resume {
			continue
		}
		if interrupted {
			run.Status = models.RunStatusPending
			run.StartedAt = nil
			run.Progress = 0
			run.BestPenalty = nil
			run.Result = models.RunResult{}
		}
		st := newRunState(run, plan, s.cfg.MirrorInterval)
		st.mu.Lock()
		st.publishLocked(s.now())
		st.mu.Unlock()
		s.register(st)
		if interrupted {
			if err := s.Start(ctx, run.ID); err != nil {
				s.logger.Warn("failed to restart run", zap.String("run_id", run.ID), zap.Error(err))
				continue
			}
			restarted++
		}
	}
	s.logger.Info("schedule runs recovered", zap.Int("loaded", len(runs)), zap.Int("restarted", restarted))
	return restarted, nil
}

// StartCleanup evicts finished runs from memory once they are older than the retention.
func (s *ScheduleRunService) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.evict(s.now()); n > 0 {
					s.logger.Debug("evicted finished schedule runs", zap.Int("count", n))
				}
			}
		}
	}()
}

func (s *ScheduleRunService) evict(now time.Time) int {
	cutoff := now.Add(-s.cfg.RunRetention)
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, st := range s.states {
		run := st.snapshot()
		if !run.Status.IsTerminal() || run.UpdatedAt.After(cutoff) {
			continue
		}
		delete(s.states, id)
		evicted++
	}
	return evicted
}

func (s *ScheduleRunService) persist(ctx context.Context, run models.ScheduleRun) {
	if s.runs == nil {
		return
	}
	if err := s.runs.Save(ctx, &run); err != nil {
		s.logger.Error("failed to persist schedule run", zap.String("run_id", run.ID), zap.String("status", string(run.Status)), zap.Error(err))
	}
}

func (s *ScheduleRunService) mirrorView(ctx context.Context, view *dto.ProgressView) {
	if s.mirror == nil || view == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
	defer cancel()
	if err := s.mirror.Set(ctx, view); err != nil {
		s.metrics.RecordMirrorFailure()
		s.logger.Debug("progress mirror write failed", zap.String("run_id", view.RunID), zap.Error(err))
	}
}

func toRunResponse(run models.ScheduleRun) dto.ScheduleRunResponse {
	return dto.ScheduleRunResponse{
		ID:             run.ID,
		Scope:          run.Scope,
		Strategy:       run.Strategy,
		Status:         string(run.Status),
		Progress:       run.Progress,
		BestPenalty:    run.BestPenalty,
		BaseVersion:    run.BaseVersion,
		AppliedVersion: run.AppliedVersion,
		Feasible:       run.Result.Feasible,
		Penalty:        run.Result.Penalty,
		Assignments:    run.Result.Assignments,
		Diagnostics:    run.Result.Diagnostics,
		Error:          run.ErrorMessage,
		CreatedAt:      run.CreatedAt,
		StartedAt:      run.StartedAt,
		FinishedAt:     run.FinishedAt,
	}
}
