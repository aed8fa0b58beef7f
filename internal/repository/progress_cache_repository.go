package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/sma-schedule-engine/internal/dto"
)

const progressKeyPrefix = "schedule-run:progress:"

// ProgressCacheRepository mirrors run progress snapshots into Redis so any instance can
// answer progress polls. A nil client disables the mirror.
type ProgressCacheRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewProgressCacheRepository constructs the mirror.
func NewProgressCacheRepository(client *redis.Client, ttl time.Duration) *ProgressCacheRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ProgressCacheRepository{client: client, ttl: ttl}
}

// Enabled reports whether a Redis client is configured.
func (r *ProgressCacheRepository) Enabled() bool {
	return r != nil && r.client != nil
}

func progressKey(runID string) string {
	return progressKeyPrefix + runID
}

// Set stores the snapshot under the run key.
func (r *ProgressCacheRepository) Set(ctx context.Context, view *dto.ProgressView) error {
	if !r.Enabled() || view == nil {
		return nil
	}
	payload, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("marshal progress for %s: %w", view.RunID, err)
	}
	if err := r.client.Set(ctx, progressKey(view.RunID), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set progress %s: %w", view.RunID, err)
	}
	return nil
}

// Get loads a mirrored snapshot; it returns nil without error on a miss.
func (r *ProgressCacheRepository) Get(ctx context.Context, runID string) (*dto.ProgressView, error) {
	if !r.Enabled() {
		return nil, nil
	}
	raw, err := r.client.Get(ctx, progressKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get progress %s: %w", runID, err)
	}
	var view dto.ProgressView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, fmt.Errorf("unmarshal progress for %s: %w", runID, err)
	}
	return &view, nil
}

// Delete drops the mirrored snapshot of a run.
func (r *ProgressCacheRepository) Delete(ctx context.Context, runID string) error {
	if !r.Enabled() {
		return nil
	}
	if err := r.client.Del(ctx, progressKey(runID)).Err(); err != nil {
		return fmt.Errorf("redis delete progress %s: %w", runID, err)
	}
	return nil
}
