package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
)

// ScheduleRunRepository persists generation runs so they survive a restart.
type ScheduleRunRepository struct {
	db *sqlx.DB
}

// NewScheduleRunRepository constructs repository.
func NewScheduleRunRepository(db *sqlx.DB) *ScheduleRunRepository {
	return &ScheduleRunRepository{db: db}
}

const scheduleRunSchema = `CREATE TABLE IF NOT EXISTS schedule_runs (
	id TEXT PRIMARY KEY,
	scope TEXT NOT NULL,
	strategy TEXT NOT NULL,
	status TEXT NOT NULL,
	progress DOUBLE PRECISION NOT NULL DEFAULT 0,
	best_penalty DOUBLE PRECISION NULL,
	config TEXT NOT NULL,
	base_version BIGINT NOT NULL DEFAULT 0,
	applied_version BIGINT NULL,
	result TEXT NOT NULL,
	error_message TEXT NULL,
	created_at TIMESTAMP NOT NULL,
	started_at TIMESTAMP NULL,
	finished_at TIMESTAMP NULL,
	updated_at TIMESTAMP NOT NULL
)`

const scheduleRunColumns = `id, scope, strategy, status, progress, best_penalty, config, base_version, applied_version, result, error_message, created_at, started_at, finished_at, updated_at`

// Migrate creates the runs table when missing.
func (r *ScheduleRunRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, scheduleRunSchema); err != nil {
		return fmt.Errorf("migrate schedule runs: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_schedule_runs_status ON schedule_runs (status)`); err != nil {
		return fmt.Errorf("migrate schedule runs index: %w", err)
	}
	return nil
}

// Save inserts the run or overwrites its mutable columns.
func (r *ScheduleRunRepository) Save(ctx context.Context, run *models.ScheduleRun) error {
	if run == nil {
		return fmt.Errorf("schedule run payload is nil")
	}
	query := r.db.Rebind(`INSERT INTO schedule_runs (` + scheduleRunColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	status = excluded.status,
	progress = excluded.progress,
	best_penalty = excluded.best_penalty,
	base_version = excluded.base_version,
	applied_version = excluded.applied_version,
	result = excluded.result,
	error_message = excluded.error_message,
	started_at = excluded.started_at,
	finished_at = excluded.finished_at,
	updated_at = excluded.updated_at`)
	config := string(run.Config)
	if config == "" {
		config = "{}"
	}
	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.Scope, run.Strategy, string(run.Status), run.Progress, run.BestPenalty,
		config, run.BaseVersion, run.AppliedVersion, run.Result, run.ErrorMessage,
		run.CreatedAt, run.StartedAt, run.FinishedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save schedule run %s: %w", run.ID, err)
	}
	return nil
}

// FindByID loads a run by identifier.
func (r *ScheduleRunRepository) FindByID(ctx context.Context, id string) (*models.ScheduleRun, error) {
	query := r.db.Rebind(`SELECT ` + scheduleRunColumns + ` FROM schedule_runs WHERE id = ?`)
	var run models.ScheduleRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find schedule run %s: %w", id, err)
	}
	return &run, nil
}

// ListByStatus returns runs in any of the given statuses, oldest first.
func (r *ScheduleRunRepository) ListByStatus(ctx context.Context, statuses ...models.ScheduleRunStatus) ([]models.ScheduleRun, error) {
	if len(statuses) == 0 {
		return []models.ScheduleRun{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+scheduleRunColumns+` FROM schedule_runs WHERE status IN (?) ORDER BY created_at ASC`, statuses)
	if err != nil {
		return nil, fmt.Errorf("build schedule run list query: %w", err)
	}
	var runs []models.ScheduleRun
	if err := r.db.SelectContext(ctx, &runs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list schedule runs: %w", err)
	}
	return runs, nil
}
