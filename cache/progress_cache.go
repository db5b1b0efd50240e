// Package cache holds the Redis-backed caches: export progress for polling
// and websocket fan-out, and balance reads that would otherwise hit the
// ledger on every page load.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"soundscape/model"
)

// progressTTL outlives any plausible render; abandoned keys expire on their
// own.
const progressTTL = 2 * time.Hour

// Progress is the cached render state of one export job.
type Progress struct {
	JobID       string          `json:"jobId"`
	Status      model.JobStatus `json:"status"`
	ChunksDone  int             `json:"chunksDone"`
	ChunksTotal int             `json:"chunksTotal"`
	Error       string          `json:"error,omitempty"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ProgressCache stores per-job render progress in Redis.
type ProgressCache struct {
	client *redis.Client
}

func NewProgressCache(client *redis.Client) *ProgressCache {
	return &ProgressCache{client: client}
}

func progressKey(jobID string) string {
	return fmt.Sprintf("export:progress:%s", jobID)
}

// Set overwrites the job's progress snapshot.
func (c *ProgressCache) Set(ctx context.Context, p Progress) error {
	p.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	if err := c.client.Set(ctx, progressKey(p.JobID), data, progressTTL).Err(); err != nil {
		return fmt.Errorf("failed to store progress: %w", err)
	}
	return nil
}

// SetIfAbsent stores the snapshot only when the job has no record yet and
// reports whether this call created it. Concurrent start retries use the
// progress key as an election record, so only one caller wins.
func (c *ProgressCache) SetIfAbsent(ctx context.Context, p Progress) (bool, error) {
	p.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("failed to marshal progress: %w", err)
	}
	won, err := c.client.SetNX(ctx, progressKey(p.JobID), data, progressTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to store progress: %w", err)
	}
	return won, nil
}

// Get returns the job's progress snapshot; found is false when nothing was
// ever stored or the key expired.
func (c *ProgressCache) Get(ctx context.Context, jobID string) (Progress, bool, error) {
	data, err := c.client.Get(ctx, progressKey(jobID)).Bytes()
	if err == redis.Nil {
		return Progress{}, false, nil
	}
	if err != nil {
		return Progress{}, false, fmt.Errorf("failed to read progress: %w", err)
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return Progress{}, false, fmt.Errorf("failed to unmarshal progress: %w", err)
	}
	return p, true, nil
}
