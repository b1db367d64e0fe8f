package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"hr-bulk-import/internal/config"
)

// Task is one async import waiting for a worker.
type Task struct {
	JobID      string
	ImportType string
	SourceKey  string
	SourceName string
	EnqueuedAt time.Time
}

// RedisQueue coordinates the ready list and in-flight leases of async imports.
type RedisQueue struct {
	client        *redis.Client
	readyKey      string
	inflightKey   string
	metaPrefix    string
	visibilityTTL time.Duration
	dlqKey        string
}

// NewRedisQueue builds a queue client from config.
func NewRedisQueue(cfg config.Config) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewRedisQueueWithClient(client, cfg)
}

// NewRedisQueueWithClient shares an existing client.
func NewRedisQueueWithClient(client *redis.Client, cfg config.Config) *RedisQueue {
	visibility := cfg.VisibilityTimeout
	if visibility == 0 {
		visibility = 10 * time.Minute
	}
	dlq := cfg.DLQName
	if dlq == "" {
		dlq = "imports:dlq"
	}
	return &RedisQueue{
		client:        client,
		readyKey:      "imports:queue:ready",
		inflightKey:   "imports:queue:inflight",
		metaPrefix:    "imports:queue:meta:",
		visibilityTTL: visibility,
		dlqKey:        dlq,
	}
}

// Client exposes the underlying Redis client for health checks.
func (q *RedisQueue) Client() *redis.Client {
	return q.client
}

func (q *RedisQueue) metaKey(jobID string) string {
	return q.metaPrefix + jobID
}

// Enqueue records the task metadata and appends the job to the ready list.
func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	if t.JobID == "" {
		return errors.New("enqueue: empty job id")
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.metaKey(t.JobID),
		"import_type", t.ImportType,
		"source_key", t.SourceKey,
		"source_name", t.SourceName,
		"enqueued_at", t.EnqueuedAt.UnixMilli(),
	)
	pipe.RPush(ctx, q.readyKey, t.JobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue %s: %w", t.JobID, err)
	}
	return nil
}

// DequeueWithLease pops the oldest task and places it into in-flight with a visibility deadline.
// ok is false when the queue is empty.
func (q *RedisQueue) DequeueWithLease(ctx context.Context) (Task, bool, error) {
	res, err := dequeueScript.Run(ctx, q.client, []string{q.readyKey, q.inflightKey},
		time.Now().Add(q.visibilityTTL).UnixMilli()).Result()
	if errors.Is(err, redis.Nil) {
		return Task{}, false, nil
	}
	if err != nil {
		return Task{}, false, fmt.Errorf("dequeue: %w", err)
	}
	jobID, ok := res.(string)
	if !ok {
		return Task{}, false, fmt.Errorf("unexpected type from dequeue script: %T", res)
	}
	t, err := q.task(ctx, jobID)
	if err != nil {
		return Task{JobID: jobID}, true, err
	}
	return t, true, nil
}

func (q *RedisQueue) task(ctx context.Context, jobID string) (Task, error) {
	meta, err := q.client.HGetAll(ctx, q.metaKey(jobID)).Result()
	if err != nil {
		return Task{JobID: jobID}, fmt.Errorf("read task meta %s: %w", jobID, err)
	}
	t := Task{
		JobID:      jobID,
		ImportType: meta["import_type"],
		SourceKey:  meta["source_key"],
		SourceName: meta["source_name"],
	}
	if ms, err := strconv.ParseInt(meta["enqueued_at"], 10, 64); err == nil {
		t.EnqueuedAt = time.UnixMilli(ms)
	}
	if t.SourceKey == "" {
		return t, fmt.Errorf("task %s has no source metadata", jobID)
	}
	return t, nil
}

// ExtendLease pushes the visibility deadline forward for an in-flight job.
func (q *RedisQueue) ExtendLease(ctx context.Context, jobID string, extension time.Duration) error {
	return q.client.ZAddXX(ctx, q.inflightKey, redis.Z{
		Score:  float64(time.Now().Add(extension).UnixMilli()),
		Member: jobID,
	}).Err()
}

// Ack removes a job from in-flight tracking and its meta record.
func (q *RedisQueue) Ack(ctx context.Context, jobID string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.inflightKey, jobID)
	pipe.Del(ctx, q.metaKey(jobID))
	_, err := pipe.Exec(ctx)
	return err
}

// ReapExpired removes leases that timed out and returns their tasks. Imports are
// not idempotent, so reaped tasks are handed back for finalization, never re-queued.
func (q *RedisQueue) ReapExpired(ctx context.Context, now time.Time, limit int64) ([]Task, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.inflightKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("scan expired leases: %w", err)
	}

	tasks := make([]Task, 0, len(ids))
	for _, id := range ids {
		// another worker may reap the same lease; only the one that removes it owns it
		removed, err := q.client.ZRem(ctx, q.inflightKey, id).Result()
		if err != nil {
			return tasks, fmt.Errorf("release lease %s: %w", id, err)
		}
		if removed == 0 {
			continue
		}
		t, _ := q.task(ctx, id)
		_ = q.client.Del(ctx, q.metaKey(id)).Err()
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// DLQPush appends to the dead-letter queue for operational inspection.
func (q *RedisQueue) DLQPush(ctx context.Context, jobID string) error {
	return q.client.RPush(ctx, q.dlqKey, jobID).Err()
}

// DLQPeek reads the latest dead-lettered job IDs.
func (q *RedisQueue) DLQPeek(ctx context.Context, count int64) ([]string, error) {
	return q.client.LRange(ctx, q.dlqKey, 0, count-1).Result()
}

// ReadyDepth returns how many imports wait for a worker.
func (q *RedisQueue) ReadyDepth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.readyKey).Result()
}

var dequeueScript = redis.NewScript(`
local job = redis.call('LPOP', KEYS[1])
if job then
  redis.call('ZADD', KEYS[2], ARGV[1], job)
  return job
end
return nil
`)
