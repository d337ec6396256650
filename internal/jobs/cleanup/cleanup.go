package cleanup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultRetention = 30 * 24 * time.Hour

type objectStore interface {
	ListOlderThan(ctx context.Context, prefix string, cutoff time.Time) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// Job removes scan photos once they are older than the retention window.
type Job struct {
	storage   objectStore
	prefix    string
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func New() *Job {
	return &Job{
		retention: defaultRetention,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
}

func NewScanPhotoCleanupJob(storage objectStore, prefix string, retention time.Duration, logger *zap.Logger) *Job {
	j := New()
	j.storage = storage
	j.prefix = prefix
	if retention > 0 {
		j.retention = retention
	}
	if logger != nil {
		j.logger = logger
	}
	return j
}

func (j *Job) Run(ctx context.Context) error {
	if j.storage == nil {
		return nil
	}

	cutoff := j.now().Add(-j.retention)
	keys, err := j.storage.ListOlderThan(ctx, j.prefix, cutoff)
	if err != nil {
		return fmt.Errorf("list stale scan photos: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	deleted := 0
	for _, key := range keys {
		if err := j.storage.Delete(ctx, key); err != nil {
			j.logger.Warn("failed to delete scan photo", zap.Error(err), zap.String("object_key", key))
			continue
		}
		deleted++
	}

	j.logger.Info("cleanup stale scan photos completed", zap.Int("deleted", deleted), zap.Int("found", len(keys)))
	return nil
}
