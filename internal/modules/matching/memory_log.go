// README: In-process dispatch log used when Redis is not configured.
package matching

import (
	"context"
	"sync"

	"fixit/internal/types"
)

// MemoryDispatchLog is the in-process DispatchLog used when Redis is not configured.
type MemoryDispatchLog struct {
	mu       sync.Mutex
	notified map[types.ID]map[types.ID]bool
}

func NewMemoryDispatchLog() *MemoryDispatchLog {
	return &MemoryDispatchLog{notified: make(map[types.ID]map[types.ID]bool)}
}

func (l *MemoryDispatchLog) RecordDispatch(_ context.Context, bookingID types.ID, workerIDs []types.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.notified[bookingID]
	if !ok {
		set = make(map[types.ID]bool)
		l.notified[bookingID] = set
	}
	for _, w := range workerIDs {
		set[w] = true
	}
	return nil
}

func (l *MemoryDispatchLog) Notified(_ context.Context, bookingID types.ID) (map[types.ID]bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[types.ID]bool, len(l.notified[bookingID]))
	for w := range l.notified[bookingID] {
		out[w] = true
	}
	return out, nil
}
