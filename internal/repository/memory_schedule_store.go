package repository

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/sma-schedule-engine/internal/models"
	"github.com/noah-isme/sma-schedule-engine/internal/scheduler"
)

type scopeHead struct {
	current   *models.CommittedSchedule
	previous  *models.CommittedSchedule
	highWater int64
}

// MemoryScheduleStore is a process-local ScheduleStore. Snapshots are copied on the way
// in and out, so readers never share slices with writers.
type MemoryScheduleStore struct {
	mu     sync.RWMutex
	scopes map[string]*scopeHead
	now    func() time.Time
}

// NewMemoryScheduleStore constructs an empty store.
func NewMemoryScheduleStore() *MemoryScheduleStore {
	return &MemoryScheduleStore{
		scopes: make(map[string]*scopeHead),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Read implements ScheduleStore.
func (s *MemoryScheduleStore) Read(_ context.Context, scope string) (*models.CommittedSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	head := s.scopes[scope]
	if head == nil || head.current == nil {
		return &models.CommittedSchedule{Scope: scope, Assignments: models.AssignmentSet{}}, nil
	}
	return head.current.Clone(), nil
}

// Previous implements ScheduleStore.
func (s *MemoryScheduleStore) Previous(_ context.Context, scope string) (*models.CommittedSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	head := s.scopes[scope]
	if head == nil {
		return nil, nil
	}
	return head.previous.Clone(), nil
}

// Commit implements ScheduleStore.
func (s *MemoryScheduleStore) Commit(_ context.Context, scope, runID string, assignments []scheduler.Assignment, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	head := s.scopes[scope]
	if head == nil {
		head = &scopeHead{}
		s.scopes[scope] = head
	}
	var current int64
	if head.current != nil {
		current = head.current.Version
	}
	if current != expectedVersion {
		return 0, ErrVersionConflict
	}
	head.highWater++
	next := (&models.CommittedSchedule{
		Scope:       scope,
		Version:     head.highWater,
		RunID:       runID,
		Assignments: models.AssignmentSet(assignments),
		CommittedAt: s.now(),
	}).Clone()
	head.previous = head.current
	head.current = next
	return next.Version, nil
}

// Rollback implements ScheduleStore.
func (s *MemoryScheduleStore) Rollback(_ context.Context, scope string, expectedVersion int64) (*models.CommittedSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	head := s.scopes[scope]
	if head == nil || head.current == nil {
		return nil, ErrNoRollbackTarget
	}
	if head.current.Version != expectedVersion {
		return nil, ErrVersionConflict
	}
	if head.previous == nil {
		return nil, ErrNoRollbackTarget
	}
	head.current, head.previous = head.previous, nil
	return head.current.Clone(), nil
}
