// README: Tracker runs one sampling loop per (booking, worker) and persists accepted fixes.
package location

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"fixit/internal/config"
	"fixit/internal/geo"
	"fixit/internal/types"
)

// Sink receives every accepted sample after it is stored, for example a realtime mirror.
type Sink interface {
	Publish(ctx context.Context, s Sample) error
}

// clearer is implemented by sinks that hold state to remove when tracking stops.
type clearer interface {
	Clear(ctx context.Context, bookingID, workerID types.ID) error
}

type forgetter interface {
	Forget(bookingID, workerID types.ID)
}

type Session struct {
	BookingID types.ID
	WorkerID  types.ID
	StartedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
	errs   chan *GeolocationError
}

// Errors reports recoverable sampling failures. Errors are dropped when nobody reads.
func (s *Session) Errors() <-chan *GeolocationError { return s.errs }

// Done is closed once the sampling loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) report(e *GeolocationError) {
	select {
	case s.errs <- e:
	default:
	}
}

type Tracker struct {
	store  Store
	feed   Feed
	source PositionSource
	sinks  []Sink
	cfg    config.TrackingConfig
	now    func() time.Time

	mu       sync.Mutex
	sessions map[sessionKey]*Session
	pending  sync.WaitGroup
}

func NewTracker(store Store, feed Feed, source PositionSource, cfg config.TrackingConfig, sinks ...Sink) *Tracker {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 5 * time.Second
	}
	if cfg.SampleTimeout <= 0 {
		cfg.SampleTimeout = 10 * time.Second
	}
	if cfg.ErrorBuffer <= 0 {
		cfg.ErrorBuffer = 8
	}
	return &Tracker{
		store:    store,
		feed:     feed,
		source:   source,
		sinks:    sinks,
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[sessionKey]*Session),
	}
}

// Start begins sampling for the pair. A second Start for a live pair returns
// ErrAlreadyStarted. The session outlives ctx; only Stop or Close ends it.
func (t *Tracker) Start(ctx context.Context, bookingID, workerID types.ID) (*Session, error) {
	if bookingID == "" || workerID == "" {
		return nil, ErrValidation
	}
	k := sessionKey{bookingID, workerID}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[k]; ok {
		return nil, ErrAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Session{
		BookingID: bookingID,
		WorkerID:  workerID,
		StartedAt: t.now().UTC(),
		cancel:    cancel,
		done:      make(chan struct{}),
		errs:      make(chan *GeolocationError, t.cfg.ErrorBuffer),
	}
	t.sessions[k] = s
	go t.run(loopCtx, s)
	log.Printf("tracking started booking=%s worker=%s", bookingID, workerID)
	return s, nil
}

// Active reports whether a session for the pair is running.
func (t *Tracker) Active(bookingID, workerID types.ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[sessionKey{bookingID, workerID}]
	return ok
}

func (t *Tracker) run(ctx context.Context, s *Session) {
	defer close(s.done)
	ticker := time.NewTicker(t.cfg.SampleInterval)
	defer ticker.Stop()

	var last *Sample
	for {
		if next := t.sample(ctx, s, last); next != nil {
			last = next
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sample reads one fix and stores it when it passes the movement filter. It returns
// the stored sample, or nil when nothing was stored.
func (t *Tracker) sample(ctx context.Context, s *Session, last *Sample) *Sample {
	readCtx, cancel := context.WithTimeout(ctx, t.cfg.SampleTimeout)
	fix, err := t.source.CurrentPosition(readCtx, s.BookingID, s.WorkerID)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		gerr := asGeolocationError(err, t.now())
		log.Printf("tracking sample failed booking=%s worker=%s kind=%s: %v", s.BookingID, s.WorkerID, gerr.Kind, err)
		s.report(gerr)
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}
	if fix.Timestamp.IsZero() {
		fix.Timestamp = t.now().UTC()
	}
	if !t.shouldAppend(last, fix) {
		return nil
	}

	smp := Sample{
		BookingID: s.BookingID,
		WorkerID:  s.WorkerID,
		Lat:       fix.Lat,
		Lng:       fix.Lng,
		Accuracy:  fix.Accuracy,
		Heading:   fix.Heading,
		Speed:     fix.Speed,
		Timestamp: fix.Timestamp,
		IsActive:  true,
	}
	// the write finishes even if Stop lands meanwhile; Stop waits for it before deactivating
	writeCtx, cancelWrite := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.SampleTimeout)
	defer cancelWrite()
	saved, err := t.store.Append(writeCtx, smp)
	if err != nil {
		log.Printf("tracking append failed booking=%s worker=%s: %v", s.BookingID, s.WorkerID, err)
		return nil
	}
	if t.feed != nil {
		if err := t.feed.Publish(writeCtx, saved); err != nil {
			log.Printf("tracking publish failed booking=%s: %v", s.BookingID, err)
		}
	}
	for _, sink := range t.sinks {
		if err := sink.Publish(writeCtx, saved); err != nil {
			log.Printf("tracking sink failed booking=%s: %v", s.BookingID, err)
		}
	}
	return &saved
}

// shouldAppend drops stale fixes and fixes that barely moved, unless the heartbeat
// interval has passed since the last stored sample.
func (t *Tracker) shouldAppend(last *Sample, fix Fix) bool {
	if last == nil {
		return true
	}
	if !fix.Timestamp.After(last.Timestamp) {
		return false
	}
	if t.cfg.Heartbeat > 0 && fix.Timestamp.Sub(last.Timestamp) >= t.cfg.Heartbeat {
		return true
	}
	movedMeters := geo.HaversineKm(last.Point(), fix.Point()) * 1000
	return movedMeters >= t.cfg.MinMoveMeters
}

func asGeolocationError(err error, now time.Time) *GeolocationError {
	var gerr *GeolocationError
	if errors.As(err, &gerr) {
		return gerr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &GeolocationError{Kind: GeoTimeout, Message: err.Error(), At: now.UTC()}
	}
	return &GeolocationError{Kind: GeoUnavailable, Message: err.Error(), At: now.UTC()}
}

// Stop ends the pair's session, waits for an in-flight write, then deactivates
// every active row for the pair and tells stream subscribers tracking ended.
// Stopping a pair that never started is not an error. If ctx ends before the
// loop exits, Stop returns ctx.Err() and the deactivation runs once it does.
func (t *Tracker) Stop(ctx context.Context, bookingID, workerID types.ID) error {
	k := sessionKey{bookingID, workerID}
	t.mu.Lock()
	s := t.sessions[k]
	delete(t.sessions, k)
	t.mu.Unlock()

	if s != nil {
		s.cancel()
		select {
		case <-s.done:
		case <-ctx.Done():
			t.pending.Add(1)
			go func() {
				defer t.pending.Done()
				<-s.done
				lateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.SampleTimeout)
				defer cancel()
				if err := t.finish(lateCtx, bookingID, workerID, true); err != nil {
					log.Printf("tracking late deactivate failed booking=%s worker=%s: %v", bookingID, workerID, err)
				}
			}()
			return ctx.Err()
		}
	}
	return t.finish(ctx, bookingID, workerID, s != nil)
}

// finish deactivates the pair's rows, clears sinks and publishes the end marker.
func (t *Tracker) finish(ctx context.Context, bookingID, workerID types.ID, hadSession bool) error {
	if f, ok := t.source.(forgetter); ok {
		f.Forget(bookingID, workerID)
	}

	n, err := t.store.Deactivate(ctx, bookingID, workerID)
	if err != nil {
		return err
	}
	for _, sink := range t.sinks {
		if c, ok := sink.(clearer); ok {
			if err := c.Clear(ctx, bookingID, workerID); err != nil {
				log.Printf("tracking sink clear failed booking=%s: %v", bookingID, err)
			}
		}
	}
	if !hadSession && n == 0 {
		return nil
	}
	if t.feed != nil {
		end := Sample{BookingID: bookingID, WorkerID: workerID, Timestamp: t.now().UTC(), IsActive: false}
		if err := t.feed.Publish(ctx, end); err != nil {
			log.Printf("tracking publish end failed booking=%s: %v", bookingID, err)
		}
	}
	log.Printf("tracking stopped booking=%s worker=%s deactivated=%d", bookingID, workerID, n)
	return nil
}

// StopBooking is Stop for callers that cannot act on the error.
func (t *Tracker) StopBooking(ctx context.Context, bookingID, workerID types.ID) {
	if err := t.Stop(ctx, bookingID, workerID); err != nil {
		log.Printf("tracking stop failed booking=%s worker=%s: %v", bookingID, workerID, err)
	}
}

// Close stops every running session and waits for deactivations left over from
// stops whose context ended early.
func (t *Tracker) Close(ctx context.Context) {
	t.mu.Lock()
	keys := make([]sessionKey, 0, len(t.sessions))
	for k := range t.sessions {
		keys = append(keys, k)
	}
	t.mu.Unlock()
	for _, k := range keys {
		t.StopBooking(ctx, k.bookingID, k.workerID)
	}

	drained := make(chan struct{})
	go func() {
		t.pending.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		log.Printf("tracking close: pending deactivations still running: %v", ctx.Err())
	}
}
