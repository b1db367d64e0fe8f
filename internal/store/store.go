// Package store keeps import job records. Backends: memory, Redis, Postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"hr-bulk-import/internal/config"
	"hr-bulk-import/internal/models"
)

var (
	// ErrNotFound is returned by Get for unknown or evicted job IDs.
	ErrNotFound = errors.New("import job not found")
	// ErrJobFinalized is returned by Put when the stored job already has CompletedAt set.
	ErrJobFinalized = errors.New("import job already finalized")
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 50

// JobStore is safe for concurrent use by many jobs. Each job has a single writer.
type JobStore interface {
	Put(ctx context.Context, job models.ImportJob) error
	Get(ctx context.Context, id string) (models.ImportJob, error)
	// List returns the most recently started jobs first.
	List(ctx context.Context, limit int) ([]models.ImportJob, error)
}

// Evictor drops terminal jobs whose retention has passed.
type Evictor interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Open builds the backend named by cfg.JobStore. The returned close func is never nil.
func Open(ctx context.Context, cfg config.Config, log *zerolog.Logger) (JobStore, func(), error) {
	switch cfg.JobStore {
	case "", "memory":
		log.Info().Dur("ttl", cfg.JobTTL).Msg("job store: memory")
		return NewMemoryStore(cfg.JobTTL), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, func() {}, fmt.Errorf("ping redis: %w", err)
		}
		log.Info().Str("addr", cfg.RedisAddr).Dur("ttl", cfg.JobTTL).Msg("job store: redis")
		return NewRedisStore(client, cfg.JobTTL), func() { _ = client.Close() }, nil
	case "postgres":
		pg, err := NewPostgresStore(ctx, cfg.PostgresDSN, cfg.JobTTL)
		if err != nil {
			return nil, func() {}, err
		}
		if err := pg.RunMigrations(ctx); err != nil {
			pg.Close()
			return nil, func() {}, err
		}
		log.Info().Dur("ttl", cfg.JobTTL).Msg("job store: postgres")
		return pg, pg.Close, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown job store %q", cfg.JobStore)
	}
}

// Shared reports whether st is visible to other processes. An in-memory store
// cannot hand jobs from the API to a separate worker.
func Shared(st JobStore) bool {
	_, inProcess := st.(*MemoryStore)
	return !inProcess
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return DefaultListLimit
	}
	return limit
}
