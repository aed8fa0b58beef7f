package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blockUntilDone(ctx context.Context, _ Job) error {
	<-ctx.Done()
	return context.Cause(ctx)
}

func TestRunnerLaunchRequiresStart(t *testing.T) {
	r := NewRunner("test", RunnerConfig{})
	err := r.Launch(Job{ID: "a"}, blockUntilDone)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestRunnerAdmissionAndDuplicate(t *testing.T) {
	r := NewRunner("test", RunnerConfig{MaxActive: 1})
	r.Start(context.Background())
	defer r.Stop()

	require.NoError(t, r.Launch(Job{ID: "a"}, blockUntilDone))
	assert.ErrorIs(t, r.Launch(Job{ID: "a"}, blockUntilDone), ErrDuplicate)
	assert.ErrorIs(t, r.Launch(Job{ID: "b"}, blockUntilDone), ErrBusy)
	assert.Equal(t, 1, r.Active())
}

func TestRunnerCancelPropagatesCause(t *testing.T) {
	r := NewRunner("test", RunnerConfig{})
	r.Start(context.Background())
	defer r.Stop()

	cause := errors.New("user cancel")
	got := make(chan error, 1)
	require.NoError(t, r.Launch(Job{ID: "a"}, func(ctx context.Context, _ Job) error {
		<-ctx.Done()
		got <- context.Cause(ctx)
		return nil
	}))

	done := r.Done("a")
	require.NotNil(t, done)
	assert.True(t, r.Cancel("a", cause))

	select {
	case err := <-got:
		assert.ErrorIs(t, err, cause)
	case <-time.After(time.Second):
		t.Fatal("job did not observe cancellation")
	}
	<-done
	assert.False(t, r.Cancel("a", cause))
	assert.Equal(t, 0, r.Active())
}

func TestRunnerDeadlineCause(t *testing.T) {
	r := NewRunner("test", RunnerConfig{})
	r.Start(context.Background())
	defer r.Stop()

	got := make(chan error, 1)
	require.NoError(t, r.Launch(Job{ID: "slow", Deadline: 20 * time.Millisecond}, func(ctx context.Context, _ Job) error {
		<-ctx.Done()
		got <- context.Cause(ctx)
		return nil
	}))

	select {
	case err := <-got:
		assert.ErrorIs(t, err, ErrDeadline)
	case <-time.After(time.Second):
		t.Fatal("deadline not enforced")
	}
}

func TestRunnerStopWaitsAndRecoversPanics(t *testing.T) {
	r := NewRunner("test", RunnerConfig{})
	r.Start(context.Background())

	require.NoError(t, r.Launch(Job{ID: "p"}, func(context.Context, Job) error { panic("boom") }))
	require.NoError(t, r.Launch(Job{ID: "b"}, blockUntilDone))

	r.Stop()
	assert.Equal(t, 0, r.Active())
	assert.ErrorIs(t, r.Launch(Job{ID: "c"}, blockUntilDone), ErrNotStarted)
}
