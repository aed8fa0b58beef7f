package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/sma-schedule-engine/internal/scheduler"
)

// ScheduleRunStatus captures generation run lifecycle states.
type ScheduleRunStatus string

const (
	RunStatusPending    ScheduleRunStatus = "PENDING"
	RunStatusRunning    ScheduleRunStatus = "RUNNING"
	RunStatusSucceeded  ScheduleRunStatus = "SUCCEEDED"
	RunStatusFailed     ScheduleRunStatus = "FAILED"
	RunStatusCancelled  ScheduleRunStatus = "CANCELLED"
	RunStatusApplied    ScheduleRunStatus = "APPLIED"
	RunStatusRolledBack ScheduleRunStatus = "ROLLED_BACK"
)

var runTransitions = map[ScheduleRunStatus][]ScheduleRunStatus{
	RunStatusPending:   {RunStatusRunning, RunStatusCancelled},
	RunStatusRunning:   {RunStatusSucceeded, RunStatusFailed, RunStatusCancelled},
	RunStatusSucceeded: {RunStatusApplied},
	RunStatusApplied:   {RunStatusRolledBack},
}

// ValidateRunTransition reports whether a run may move from one status to another.
func ValidateRunTransition(from, to ScheduleRunStatus) error {
	for _, next := range runTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("invalid run transition %s -> %s", from, to)
}

// IsTerminal reports whether no further transition leaves the status.
func (s ScheduleRunStatus) IsTerminal() bool {
	return len(runTransitions[s]) == 0
}

// Finished reports whether the search for the run has ended.
func (s ScheduleRunStatus) Finished() bool {
	return s != RunStatusPending && s != RunStatusRunning
}

// ScheduleRun is one generation attempt for a scope.
type ScheduleRun struct {
	ID             string            `db:"id" json:"id"`
	Scope          string            `db:"scope" json:"scope"`
	Strategy       string            `db:"strategy" json:"strategy"`
	Status         ScheduleRunStatus `db:"status" json:"status"`
	Progress       float64           `db:"progress" json:"progress"`
	BestPenalty    *float64          `db:"best_penalty" json:"best_penalty,omitempty"`
	Config         types.JSONText    `db:"config" json:"-"`
	BaseVersion    int64             `db:"base_version" json:"base_version"`
	AppliedVersion *int64            `db:"applied_version" json:"applied_version,omitempty"`
	Result         RunResult         `db:"result" json:"result"`
	ErrorMessage   *string           `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	StartedAt      *time.Time        `db:"started_at" json:"started_at,omitempty"`
	FinishedAt     *time.Time        `db:"finished_at" json:"finished_at,omitempty"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
}

// RunResult is the working solution of a run, persisted as JSON.
type RunResult struct {
	Feasible    bool                   `json:"feasible"`
	Penalty     float64                `json:"penalty"`
	Assignments []scheduler.Assignment `json:"assignments,omitempty"`
	Diagnostics *scheduler.Diagnostics `json:"diagnostics,omitempty"`
	Steps       int64                  `json:"steps"`
	Generations int                    `json:"generations"`
}

// Value marshals the result to JSON for persistence.
func (r RunResult) Value() (driver.Value, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal run result: %w", err)
	}
	return string(data), nil
}

// Scan unmarshals JSON payloads into the result.
func (r *RunResult) Scan(value interface{}) error {
	data, err := jsonBytes(value, "RunResult")
	if err != nil || len(data) == 0 {
		*r = RunResult{}
		return err
	}
	if err := json.Unmarshal(data, r); err != nil {
		return fmt.Errorf("unmarshal run result: %w", err)
	}
	return nil
}

func jsonBytes(value interface{}, target string) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported type %T for %s", value, target)
	}
}
