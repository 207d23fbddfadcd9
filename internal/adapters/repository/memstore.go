package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/pitchvision/pkg/metrics"
)

const defaultRetention = 1000

// MemoryStore is an in-memory Store. Jobs are kept in creation order.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]*Job
	order     []string
	active    int
	retention int
	now       func() time.Time
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		byID:      make(map[string]*Job),
		retention: defaultRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create implements Store.Create.
func (s *MemoryStore) Create(_ context.Context, job Job) (Job, error) { //nolint:gocritic // Job by value
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = StatusQueued
	job.CreatedAt = s.now()
	job.StartedAt, job.FinishedAt = nil, nil

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[job.ID]; ok {
		return Job{}, fmt.Errorf("%w: %s", ErrDuplicateID, job.ID)
	}
	stored := job
	s.byID[job.ID] = &stored
	s.order = append(s.order, job.ID)
	s.active++
	s.evict()
	metrics.UpdateActiveJobs(s.active)
	metrics.RecordJob(string(StatusQueued))
	return stored, nil
}

// Update implements Store.Update. Entering running or a terminal state stamps the
// matching timestamp.
func (s *MemoryStore) Update(_ context.Context, id string, fn func(*Job)) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if cur.Status.Terminal() {
		return Job{}, fmt.Errorf("%w: %s is %s", ErrTerminal, id, cur.Status)
	}

	next := *cur
	fn(&next)
	next.ID, next.CreatedAt = cur.ID, cur.CreatedAt

	if next.Status != cur.Status {
		now := s.now()
		if next.Status == StatusRunning && next.StartedAt == nil {
			next.StartedAt = &now
		}
		if next.Status.Terminal() {
			next.FinishedAt = &now
			s.active--
			metrics.UpdateActiveJobs(s.active)
		}
		metrics.RecordJob(string(next.Status))
	}
	*cur = next
	if next.Status.Terminal() {
		s.evict()
	}
	return next, nil
}

// Get implements Store.Get.
func (s *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.byID[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *j, nil
}

// List implements Store.List.
func (s *MemoryStore) List(_ context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := min(limit, len(s.order))
	out := make([]Job, 0, n)
	for i := len(s.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, *s.byID[s.order[i]])
	}
	return out, nil
}

// Count implements Store.Count.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Active returns the number of queued and running jobs.
func (s *MemoryStore) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// evict drops the oldest finished jobs above retention. Callers hold mu.
func (s *MemoryStore) evict() {
	excess := len(s.order) - s.retention
	if excess <= 0 {
		return
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if excess > 0 && s.byID[id].Status.Terminal() {
			delete(s.byID, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}
