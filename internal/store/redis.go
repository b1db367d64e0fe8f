package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"hr-bulk-import/internal/models"
)

// RedisStore keeps each job as a JSON document in a hash, with a sorted-set
// index by start time. Terminal jobs expire after ttl.
type RedisStore struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	indexKey  string
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client:    client,
		ttl:       ttl,
		keyPrefix: "imports:job:",
		indexKey:  "imports:index",
	}
}

func (s *RedisStore) jobKey(id string) string {
	return s.keyPrefix + id
}

func (s *RedisStore) Put(ctx context.Context, job models.ImportJob) error {
	doc, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	done := "0"
	if job.Done() {
		done = "1"
	}
	res, err := putScript.Run(ctx, s.client,
		[]string{s.jobKey(job.ID), s.indexKey},
		doc, done, job.StartedAt.UnixMilli(), job.ID, s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("put job: %w", err)
	}
	if res == 0 {
		return ErrJobFinalized
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (models.ImportJob, error) {
	doc, err := s.client.HGet(ctx, s.jobKey(id), "doc").Bytes()
	if errors.Is(err, redis.Nil) {
		return models.ImportJob{}, ErrNotFound
	}
	if err != nil {
		return models.ImportJob{}, fmt.Errorf("get job: %w", err)
	}
	var job models.ImportJob
	if err := json.Unmarshal(doc, &job); err != nil {
		return models.ImportJob{}, fmt.Errorf("unmarshal job: %w", err)
	}
	return job, nil
}

func (s *RedisStore) List(ctx context.Context, limit int) ([]models.ImportJob, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey, 0, int64(clampLimit(limit))-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list job ids: %w", err)
	}
	if len(ids) == 0 {
		return []models.ImportJob{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGet(ctx, s.jobKey(id), "doc")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load jobs: %w", err)
	}

	out := make([]models.ImportJob, 0, len(ids))
	for _, c := range cmds {
		doc, err := c.Bytes()
		if err != nil {
			// expired since the index was read
			continue
		}
		var job models.ImportJob
		if err := json.Unmarshal(doc, &job); err != nil {
			return nil, fmt.Errorf("unmarshal job: %w", err)
		}
		out = append(out, job)
	}
	return out, nil
}

// DeleteExpired prunes index entries whose job hash has already expired.
func (s *RedisStore) DeleteExpired(ctx context.Context, _ time.Time) (int, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("scan index: %w", err)
	}
	n := 0
	for _, id := range ids {
		exists, err := s.client.Exists(ctx, s.jobKey(id)).Result()
		if err != nil {
			return n, fmt.Errorf("check job %s: %w", id, err)
		}
		if exists == 0 {
			if err := s.client.ZRem(ctx, s.indexKey, id).Err(); err != nil {
				return n, fmt.Errorf("prune job %s: %w", id, err)
			}
			n++
		}
	}
	return n, nil
}

// putScript refuses to overwrite a finalized job and sets its TTL on finalization.
var putScript = redis.NewScript(`
local key = KEYS[1]
local index = KEYS[2]
if redis.call('HGET', key, 'done') == '1' then
  return 0
end
redis.call('HSET', key, 'doc', ARGV[1], 'done', ARGV[2])
redis.call('ZADD', index, ARGV[3], ARGV[4])
local ttl = tonumber(ARGV[5])
if ARGV[2] == '1' and ttl > 0 then
  redis.call('PEXPIRE', key, ttl)
end
return 1
`)
