package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-schedule-engine/internal/scheduler"
)

func memoryAssignments(room string) []scheduler.Assignment {
	return []scheduler.Assignment{
		{TaskID: "math-10", Start: scheduler.TimeSlot{Day: 0, Index: 1}, Room: room, Invigilators: []string{"inv-1"}},
	}
}

func TestMemoryScheduleStoreEmptyScope(t *testing.T) {
	store := NewMemoryScheduleStore()

	snap, err := store.Read(context.Background(), "term-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Version)
	assert.Empty(t, snap.Assignments)

	prev, err := store.Previous(context.Background(), "term-1")
	require.NoError(t, err)
	assert.Nil(t, prev)

	_, err = store.Rollback(context.Background(), "term-1", 0)
	assert.ErrorIs(t, err, ErrNoRollbackTarget)
}

func TestMemoryScheduleStoreCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryScheduleStore()

	v1, err := store.Commit(ctx, "term-1", "run-1", memoryAssignments("hall"), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1)

	_, err = store.Rollback(ctx, "term-1", v1)
	assert.ErrorIs(t, err, ErrNoRollbackTarget)

	v2, err := store.Commit(ctx, "term-1", "run-2", memoryAssignments("lab"), v1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2)

	prev, err := store.Previous(ctx, "term-1")
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "run-1", prev.RunID)

	_, err = store.Rollback(ctx, "term-1", v1)
	assert.ErrorIs(t, err, ErrVersionConflict)

	restored, err := store.Rollback(ctx, "term-1", v2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), restored.Version)
	assert.Equal(t, "hall", restored.Assignments[0].Room)

	prev, err = store.Previous(ctx, "term-1")
	require.NoError(t, err)
	assert.Nil(t, prev)

	v3, err := store.Commit(ctx, "term-1", "run-3", memoryAssignments("lab"), v1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v3, "versions are not reused after a rollback")
}

func TestMemoryScheduleStoreCommitConflict(t *testing.T) {
	ctx := context.Background()
	var store ScheduleStore = NewMemoryScheduleStore()

	_, err := store.Commit(ctx, "term-1", "run-1", memoryAssignments("hall"), 0)
	require.NoError(t, err)

	_, err = store.Commit(ctx, "term-1", "run-2", memoryAssignments("lab"), 0)
	assert.ErrorIs(t, err, ErrVersionConflict)

	snap, err := store.Read(ctx, "term-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", snap.RunID)
}

func TestMemoryScheduleStoreSnapshotsAreCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryScheduleStore()
	in := memoryAssignments("hall")

	_, err := store.Commit(ctx, "term-1", "run-1", in, 0)
	require.NoError(t, err)
	in[0].Invigilators[0] = "changed"

	snap, err := store.Read(ctx, "term-1")
	require.NoError(t, err)
	snap.Assignments[0].Room = "changed"

	again, err := store.Read(ctx, "term-1")
	require.NoError(t, err)
	assert.Equal(t, "hall", again.Assignments[0].Room)
	assert.Equal(t, []string{"inv-1"}, again.Assignments[0].Invigilators)
}

func TestMemoryScheduleStoreConcurrentCommits(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryScheduleStore()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Commit(ctx, "term-1", "run", memoryAssignments("hall"), 0); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}
