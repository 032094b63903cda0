// README: Device-fed position source: worker apps push fixes over HTTP, the tracker pulls them.
package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"fixit/internal/types"
)

// PositionSource reads the worker's current position for a tracked booking.
type PositionSource interface {
	CurrentPosition(ctx context.Context, bookingID, workerID types.ID) (Fix, error)
}

type deviceSlot struct {
	latest  *Fix
	seen    bool
	failure *GeolocationError
	ready   chan struct{}
}

// DeviceRegistry holds the newest fix or error each device reported.
type DeviceRegistry struct {
	mu    sync.Mutex
	slots map[sessionKey]*deviceSlot
	now   func() time.Time
}

func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{slots: make(map[sessionKey]*deviceSlot), now: time.Now}
}

func (r *DeviceRegistry) slot(k sessionKey) *deviceSlot {
	s, ok := r.slots[k]
	if !ok {
		s = &deviceSlot{ready: make(chan struct{})}
		r.slots[k] = s
	}
	return s
}

// wake releases readers blocked on the slot. Callers hold r.mu.
func (s *deviceSlot) wake() {
	close(s.ready)
	s.ready = make(chan struct{})
}

// Push records a fix. Fixes older than the newest one already held are ignored.
func (r *DeviceRegistry) Push(bookingID, workerID types.ID, fix Fix) error {
	if !fix.Point().Valid() {
		return ErrValidation
	}
	if fix.Timestamp.IsZero() {
		fix.Timestamp = r.now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slot(sessionKey{bookingID, workerID})
	if s.latest != nil && !fix.Timestamp.After(s.latest.Timestamp) {
		return nil
	}
	s.latest = &fix
	s.seen = false
	s.failure = nil
	s.wake()
	return nil
}

// Fail records a device-side error such as a revoked location permission.
func (r *DeviceRegistry) Fail(bookingID, workerID types.ID, kind GeolocationKind, message string) error {
	if !kind.Valid() {
		return ErrValidation
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slot(sessionKey{bookingID, workerID})
	s.failure = &GeolocationError{Kind: kind, Message: message, At: r.now().UTC()}
	s.wake()
	return nil
}

// CurrentPosition returns the newest unseen fix or the pending device error, waiting
// for one until ctx ends. A deadline yields a timeout GeolocationError.
func (r *DeviceRegistry) CurrentPosition(ctx context.Context, bookingID, workerID types.ID) (Fix, error) {
	k := sessionKey{bookingID, workerID}
	for {
		r.mu.Lock()
		s := r.slot(k)
		if s.failure != nil {
			err := s.failure
			s.failure = nil
			r.mu.Unlock()
			return Fix{}, err
		}
		if s.latest != nil && !s.seen {
			s.seen = true
			fix := *s.latest
			r.mu.Unlock()
			return fix, nil
		}
		ready := s.ready
		r.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Fix{}, &GeolocationError{Kind: GeoTimeout, Message: "no fix from device", At: r.now().UTC()}
			}
			return Fix{}, ctx.Err()
		}
	}
}

// Forget drops the pair's slot once tracking stops.
func (r *DeviceRegistry) Forget(bookingID, workerID types.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := sessionKey{bookingID, workerID}
	if s, ok := r.slots[k]; ok {
		s.wake()
		delete(r.slots, k)
	}
}
