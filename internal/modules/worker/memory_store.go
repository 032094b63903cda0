// README: In-process worker store for local runs and tests.
package worker

import (
	"context"
	"sync"
	"time"

	"fixit/internal/geo"
	"fixit/internal/types"
)

type MemoryStore struct {
	mu      sync.RWMutex
	workers map[types.ID]*Worker
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{workers: make(map[types.ID]*Worker)}
}

func (s *MemoryStore) Upsert(_ context.Context, w *Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := w.clone()
	if prev, ok := s.workers[w.ID]; ok {
		next.CreatedAt = prev.CreatedAt
		if next.Location == nil {
			next.Location = prev.Location
			next.LocationUpdatedAt = prev.LocationUpdatedAt
		}
	}
	s.workers[w.ID] = next
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id types.ID) (*Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return w.clone(), nil
}

func (s *MemoryStore) SetAvailability(_ context.Context, id types.ID, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[id]
	if !ok {
		return ErrNotFound
	}
	w.Available = available
	w.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) UpdateLocation(_ context.Context, id types.ID, p types.Point, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workers[id]
	if !ok {
		return ErrNotFound
	}
	w.Location = &p
	w.LocationUpdatedAt = &at
	w.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListCandidates(_ context.Context, q CandidateQuery) ([]*Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Worker
	for _, w := range s.workers {
		if !w.Eligible(q.Skill) || w.Location == nil {
			continue
		}
		if geo.HaversineKm(q.Center, *w.Location) > q.RadiusKm {
			continue
		}
		out = append(out, w.clone())
	}
	return out, nil
}

func (s *MemoryStore) ListIndexable(_ context.Context) ([]types.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []types.ID
	for id, w := range s.workers {
		if w.Status == StatusVerified && w.Available && w.Location != nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
