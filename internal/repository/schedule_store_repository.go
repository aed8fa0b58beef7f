package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
	"github.com/noah-isme/sma-schedule-engine/internal/scheduler"
)

var (
	// ErrVersionConflict reports a compare-and-swap miss on a scope's committed version.
	ErrVersionConflict = errors.New("committed schedule version conflict")
	// ErrNoRollbackTarget reports that a scope keeps no previous snapshot.
	ErrNoRollbackTarget = errors.New("no previous committed schedule")
)

// ScheduleStore keeps one committed schedule per scope plus one rollback level.
type ScheduleStore interface {
	Read(ctx context.Context, scope string) (*models.CommittedSchedule, error)
	Commit(ctx context.Context, scope, runID string, assignments []scheduler.Assignment, expectedVersion int64) (int64, error)
	Previous(ctx context.Context, scope string) (*models.CommittedSchedule, error)
	Rollback(ctx context.Context, scope string, expectedVersion int64) (*models.CommittedSchedule, error)
}

var (
	_ ScheduleStore = (*SQLScheduleStore)(nil)
	_ ScheduleStore = (*MemoryScheduleStore)(nil)
)

// SQLScheduleStore persists committed schedules through sqlx. Queries are written with
// '?' placeholders and rebound for the connected driver.
type SQLScheduleStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLScheduleStore constructs the store.
func NewSQLScheduleStore(db *sqlx.DB) *SQLScheduleStore {
	return &SQLScheduleStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

var scheduleStoreSchema = []string{
	`CREATE TABLE IF NOT EXISTS schedule_scopes (
	scope TEXT PRIMARY KEY,
	current_version BIGINT NOT NULL,
	previous_version BIGINT NULL,
	high_water BIGINT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS committed_schedules (
	scope TEXT NOT NULL,
	version BIGINT NOT NULL,
	run_id TEXT NOT NULL,
	assignments TEXT NOT NULL,
	committed_at TIMESTAMP NOT NULL,
	PRIMARY KEY (scope, version)
)`,
}

// Migrate creates the store tables when missing.
func (s *SQLScheduleStore) Migrate(ctx context.Context) error {
	for _, stmt := range scheduleStoreSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate schedule store: %w", err)
		}
	}
	return nil
}

const snapshotColumns = `c.scope, c.version, c.run_id, c.assignments, c.committed_at`

// Read returns the current snapshot, or an empty version-0 schedule when nothing was committed.
func (s *SQLScheduleStore) Read(ctx context.Context, scope string) (*models.CommittedSchedule, error) {
	query := s.db.Rebind(`SELECT ` + snapshotColumns + ` FROM schedule_scopes s
JOIN committed_schedules c ON c.scope = s.scope AND c.version = s.current_version
WHERE s.scope = ?`)
	var snap models.CommittedSchedule
	if err := s.db.GetContext(ctx, &snap, query, scope); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.CommittedSchedule{Scope: scope, Assignments: models.AssignmentSet{}}, nil
		}
		return nil, fmt.Errorf("read committed schedule: %w", err)
	}
	return &snap, nil
}

// Previous returns the rollback target of scope, or nil when there is none.
func (s *SQLScheduleStore) Previous(ctx context.Context, scope string) (*models.CommittedSchedule, error) {
	query := s.db.Rebind(`SELECT ` + snapshotColumns + ` FROM schedule_scopes s
JOIN committed_schedules c ON c.scope = s.scope AND c.version = s.previous_version
WHERE s.scope = ?`)
	var snap models.CommittedSchedule
	if err := s.db.GetContext(ctx, &snap, query, scope); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read previous schedule: %w", err)
	}
	return &snap, nil
}

// Commit replaces the current snapshot of scope when it is still at expectedVersion.
// The old snapshot becomes the rollback target and anything older is pruned.
func (s *SQLScheduleStore) Commit(ctx context.Context, scope, runID string, assignments []scheduler.Assignment, expectedVersion int64) (int64, error) {
	now := s.now()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var version int64
	advance := s.db.Rebind(`UPDATE schedule_scopes
SET previous_version = current_version, current_version = high_water + 1, high_water = high_water + 1, updated_at = ?
WHERE scope = ? AND current_version = ?
RETURNING current_version`)
	err = tx.GetContext(ctx, &version, advance, now, scope, expectedVersion)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if expectedVersion != 0 {
			return 0, ErrVersionConflict
		}
		create := s.db.Rebind(`INSERT INTO schedule_scopes (scope, current_version, previous_version, high_water, updated_at)
VALUES (?, 1, NULL, 1, ?) ON CONFLICT (scope) DO NOTHING`)
		res, err := tx.ExecContext(ctx, create, scope, now)
		if err != nil {
			return 0, fmt.Errorf("create schedule scope: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return 0, fmt.Errorf("schedule scope rows affected: %w", err)
		} else if n == 0 {
			return 0, ErrVersionConflict
		}
		version = 1
	case err != nil:
		return 0, fmt.Errorf("advance schedule version: %w", err)
	}

	insert := s.db.Rebind(`INSERT INTO committed_schedules (scope, version, run_id, assignments, committed_at) VALUES (?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insert, scope, version, runID, models.AssignmentSet(assignments), now); err != nil {
		return 0, fmt.Errorf("insert committed schedule: %w", err)
	}
	if expectedVersion != 0 {
		prune := s.db.Rebind(`DELETE FROM committed_schedules WHERE scope = ? AND version <> ? AND version <> ?`)
		if _, err := tx.ExecContext(ctx, prune, scope, version, expectedVersion); err != nil {
			return 0, fmt.Errorf("prune committed schedules: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit schedule: %w", err)
	}
	return version, nil
}

// Rollback restores the previous snapshot of scope when its current version is expectedVersion.
// The restored snapshot keeps its original version and the scope has no rollback target afterwards.
func (s *SQLScheduleStore) Rollback(ctx context.Context, scope string, expectedVersion int64) (*models.CommittedSchedule, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin rollback: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var head struct {
		Current  int64         `db:"current_version"`
		Previous sql.NullInt64 `db:"previous_version"`
	}
	selectHead := s.db.Rebind(`SELECT current_version, previous_version FROM schedule_scopes WHERE scope = ?`)
	if err := tx.GetContext(ctx, &head, selectHead, scope); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRollbackTarget
		}
		return nil, fmt.Errorf("load schedule scope: %w", err)
	}
	if head.Current != expectedVersion {
		return nil, ErrVersionConflict
	}
	if !head.Previous.Valid {
		return nil, ErrNoRollbackTarget
	}

	restore := s.db.Rebind(`UPDATE schedule_scopes SET current_version = previous_version, previous_version = NULL, updated_at = ?
WHERE scope = ? AND current_version = ? AND previous_version IS NOT NULL`)
	res, err := tx.ExecContext(ctx, restore, s.now(), scope, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("restore schedule version: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("schedule scope rows affected: %w", err)
	} else if n == 0 {
		return nil, ErrVersionConflict
	}

	var snap models.CommittedSchedule
	load := s.db.Rebind(`SELECT ` + snapshotColumns + ` FROM committed_schedules c WHERE c.scope = ? AND c.version = ?`)
	if err := tx.GetContext(ctx, &snap, load, scope, head.Previous.Int64); err != nil {
		return nil, fmt.Errorf("load restored schedule: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rollback: %w", err)
	}
	return &snap, nil
}
