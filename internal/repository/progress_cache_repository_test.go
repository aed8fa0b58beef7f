package repository

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-schedule-engine/internal/dto"
)

func TestProgressCacheRepositoryDisabled(t *testing.T) {
	repo := NewProgressCacheRepository(nil, 0)
	ctx := context.Background()

	assert.False(t, repo.Enabled())
	require.NoError(t, repo.Set(ctx, &dto.ProgressView{RunID: "run-1", Percent: 10}))
	view, err := repo.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Nil(t, view)
	assert.NoError(t, repo.Delete(ctx, "run-1"))
}

func TestProgressCacheRepositorySurfacesConnectionErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	repo := NewProgressCacheRepository(client, time.Minute)

	assert.True(t, repo.Enabled())
	err := repo.Set(context.Background(), &dto.ProgressView{RunID: "run-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis set progress run-1")

	_, err = repo.Get(context.Background(), "run-1")
	assert.Error(t, err)
}

func TestProgressKey(t *testing.T) {
	assert.Equal(t, "schedule-run:progress:abc", progressKey("abc"))
}
