// README: In-process location sample store; keeps full history like the Postgres table.
package location

import (
	"context"
	"sync"

	"fixit/internal/types"
)

type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	samples []Sample
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, smp Sample) (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.samples {
		if s.samples[i].BookingID == smp.BookingID && s.samples[i].WorkerID == smp.WorkerID {
			s.samples[i].IsActive = false
		}
	}
	s.nextID++
	smp.ID = s.nextID
	smp.IsActive = true
	s.samples = append(s.samples, smp)
	return smp, nil
}

func (s *MemoryStore) Deactivate(_ context.Context, bookingID, workerID types.ID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.samples {
		if s.samples[i].BookingID == bookingID && s.samples[i].WorkerID == workerID && s.samples[i].IsActive {
			s.samples[i].IsActive = false
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) LatestActive(_ context.Context, bookingID types.ID) (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *Sample
	for i := range s.samples {
		smp := &s.samples[i]
		if smp.BookingID != bookingID || !smp.IsActive {
			continue
		}
		if best == nil || smp.Timestamp.After(best.Timestamp) {
			best = smp
		}
	}
	if best == nil {
		return Sample{}, ErrNoSample
	}
	return *best, nil
}

// ActiveCount reports how many of the pair's rows are active.
func (s *MemoryStore) ActiveCount(bookingID, workerID types.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, smp := range s.samples {
		if smp.BookingID == bookingID && smp.WorkerID == workerID && smp.IsActive {
			n++
		}
	}
	return n
}
