package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"hr-bulk-import/internal/models"
)

// MemoryStore keeps jobs in process memory. Terminal jobs older than ttl are
// dropped by DeleteExpired; a zero ttl keeps them forever.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]models.ImportJob
	ttl  time.Duration
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{jobs: make(map[string]models.ImportJob), ttl: ttl}
}

func (s *MemoryStore) Put(_ context.Context, job models.ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.jobs[job.ID]; ok && cur.Done() {
		return ErrJobFinalized
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (models.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.ImportJob{}, ErrNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]models.ImportJob, error) {
	s.mu.RLock()
	out := make([]models.ImportJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].StartedAt.Equal(out[b].StartedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].StartedAt.After(out[b].StartedAt)
	})
	if limit = clampLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, j := range s.jobs {
		if j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}
