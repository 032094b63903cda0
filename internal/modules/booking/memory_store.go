// README: In-process booking store; the mutex makes Transition an atomic CAS like the Postgres UPDATE.
package booking

import (
	"context"
	"fmt"
	"sync"

	"fixit/internal/types"
)

type MemoryStore struct {
	mu       sync.Mutex
	bookings map[types.ID]*Booking
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bookings: make(map[types.ID]*Booking)}
}

func (s *MemoryStore) Create(_ context.Context, b *Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookings[b.ID]; ok {
		return fmt.Errorf("create booking %s: duplicate id", b.ID)
	}
	s.bookings[b.ID] = b.clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id types.ID) (*Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b.clone(), nil
}

func (s *MemoryStore) Transition(_ context.Context, req TransitionRequest) (*Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[req.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if b.Status != req.From {
		return nil, &ConflictError{BookingID: req.ID, Expected: req.From, Actual: b.Status}
	}
	b.Status = req.To
	b.StatusVersion++
	if req.WorkerID != nil {
		w := *req.WorkerID
		b.WorkerID = &w
	}
	if req.FinalCost != nil {
		fc := *req.FinalCost
		b.FinalCost = &fc
	}
	b.UpdatedAt = req.Entry.CreatedAt
	b.StatusHistory = append(b.StatusHistory, req.Entry)
	return b.clone(), nil
}
