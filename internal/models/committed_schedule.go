package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/sma-schedule-engine/internal/scheduler"
)

// CommittedSchedule is the authoritative assignment set of a scope at one version.
type CommittedSchedule struct {
	Scope       string        `db:"scope" json:"scope"`
	Version     int64         `db:"version" json:"version"`
	RunID       string        `db:"run_id" json:"run_id,omitempty"`
	Assignments AssignmentSet `db:"assignments" json:"assignments"`
	CommittedAt time.Time     `db:"committed_at" json:"committed_at"`
}

// AssignmentSet stores assignments as a JSON array column.
type AssignmentSet []scheduler.Assignment

// Value marshals the set, writing an empty array for nil.
func (s AssignmentSet) Value() (driver.Value, error) {
	if s == nil {
		s = AssignmentSet{}
	}
	data, err := json.Marshal([]scheduler.Assignment(s))
	if err != nil {
		return nil, fmt.Errorf("marshal assignments: %w", err)
	}
	return string(data), nil
}

// Scan unmarshals a JSON array column.
func (s *AssignmentSet) Scan(value interface{}) error {
	data, err := jsonBytes(value, "AssignmentSet")
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*s = AssignmentSet{}
		return nil
	}
	var out []scheduler.Assignment
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("unmarshal assignments: %w", err)
	}
	if out == nil {
		out = []scheduler.Assignment{}
	}
	*s = out
	return nil
}

// Clone returns a deep copy so callers never alias stored snapshots.
func (c *CommittedSchedule) Clone() *CommittedSchedule {
	if c == nil {
		return nil
	}
	out := *c
	out.Assignments = make(AssignmentSet, len(c.Assignments))
	for i, a := range c.Assignments {
		a.Invigilators = append([]string(nil), a.Invigilators...)
		out.Assignments[i] = a
	}
	return &out
}
