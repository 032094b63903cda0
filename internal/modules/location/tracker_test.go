// README: Tracker tests: session lifecycle, movement filter, error reporting and stop semantics.
package location

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fixit/internal/config"
	"fixit/internal/types"
)

// scriptedSource hands out one queued result per read, blocking until one is queued.
type scriptedSource struct {
	next chan sourceResult
}

type sourceResult struct {
	fix Fix
	err error
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{next: make(chan sourceResult, 16)}
}

func (s *scriptedSource) CurrentPosition(ctx context.Context, _, _ types.ID) (Fix, error) {
	select {
	case r := <-s.next:
		return r.fix, r.err
	case <-ctx.Done():
		return Fix{}, ctx.Err()
	}
}

type recordingSink struct {
	mu      sync.Mutex
	samples []Sample
	cleared int
}

func (s *recordingSink) Publish(_ context.Context, smp Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, smp)
	return nil
}

func (s *recordingSink) Clear(context.Context, types.ID, types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared++
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

func trackingConfig() config.TrackingConfig {
	return config.TrackingConfig{
		SampleInterval: 5 * time.Millisecond,
		SampleTimeout:  200 * time.Millisecond,
		MinMoveMeters:  10,
		Heartbeat:      time.Minute,
		ErrorBuffer:    4,
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func fixAt(sec int, lat, lng float64) Fix {
	return Fix{Lat: lat, Lng: lng, Accuracy: 5, Timestamp: t0.Add(time.Duration(sec) * time.Second)}
}

func TestTrackerStartTwiceFails(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), NewHub(4), newScriptedSource(), trackingConfig())
	ctx := context.Background()
	if _, err := tr.Start(ctx, "b1", "w1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tr.Close(ctx)
	if _, err := tr.Start(ctx, "b1", "w1"); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	if _, err := tr.Start(ctx, "b1", "w2"); err != nil {
		t.Fatalf("other worker on same booking: %v", err)
	}
}

func TestTrackerStopNeverStarted(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store, NewHub(4), newScriptedSource(), trackingConfig())
	if err := tr.Stop(context.Background(), "b-none", "w-none"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if n := store.ActiveCount("b-none", "w-none"); n != 0 {
		t.Fatalf("active rows = %d", n)
	}
	if err := tr.Stop(context.Background(), "b-none", "w-none"); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestTrackerAppendsAndDeactivates(t *testing.T) {
	store := NewMemoryStore()
	src := newScriptedSource()
	sink := &recordingSink{}
	tr := NewTracker(store, NewHub(4), src, trackingConfig(), sink)
	ctx := context.Background()

	if _, err := tr.Start(ctx, "b1", "w1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	src.next <- sourceResult{fix: fixAt(1, 12.90, 77.50)}
	// ~1 m away: dropped by the movement filter
	src.next <- sourceResult{fix: fixAt(2, 12.90001, 77.50)}
	// ~1.1 km away: stored
	src.next <- sourceResult{fix: fixAt(3, 12.91, 77.50)}
	// older than the last stored fix: dropped
	src.next <- sourceResult{fix: fixAt(2, 12.95, 77.50)}
	// barely moved but past the heartbeat: stored
	src.next <- sourceResult{fix: fixAt(120, 12.91, 77.50)}

	eventually(t, func() bool { return sink.count() == 3 })
	if n := store.ActiveCount("b1", "w1"); n != 1 {
		t.Fatalf("active rows while tracking = %d, want 1", n)
	}
	latest, err := store.LatestActive(ctx, "b1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !latest.Timestamp.Equal(t0.Add(120 * time.Second)) {
		t.Fatalf("latest timestamp = %v", latest.Timestamp)
	}

	if err := tr.Stop(ctx, "b1", "w1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if tr.Active("b1", "w1") {
		t.Fatal("session still active after stop")
	}
	if n := store.ActiveCount("b1", "w1"); n != 0 {
		t.Fatalf("active rows after stop = %d", n)
	}
	if _, err := store.LatestActive(ctx, "b1"); !errors.Is(err, ErrNoSample) {
		t.Fatalf("expected ErrNoSample, got %v", err)
	}
	if sink.cleared != 1 {
		t.Fatalf("sink cleared %d times", sink.cleared)
	}
}

func TestTrackerReportsGeolocationErrorsAndKeepsRunning(t *testing.T) {
	store := NewMemoryStore()
	src := newScriptedSource()
	tr := NewTracker(store, NewHub(4), src, trackingConfig())
	ctx := context.Background()

	sess, err := tr.Start(ctx, "b1", "w1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tr.Close(ctx)

	src.next <- sourceResult{err: &GeolocationError{Kind: GeoPermissionDenied}}
	src.next <- sourceResult{err: errors.New("gps chip asleep")}

	for _, want := range []GeolocationKind{GeoPermissionDenied, GeoUnavailable} {
		select {
		case gerr := <-sess.Errors():
			if gerr.Kind != want {
				t.Fatalf("kind = %s, want %s", gerr.Kind, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no %s error reported", want)
		}
	}

	src.next <- sourceResult{fix: fixAt(1, 12.9, 77.5)}
	eventually(t, func() bool { return store.ActiveCount("b1", "w1") == 1 })
}

func TestTrackerReportsTimeout(t *testing.T) {
	cfg := trackingConfig()
	cfg.SampleTimeout = 10 * time.Millisecond
	tr := NewTracker(NewMemoryStore(), NewHub(4), newScriptedSource(), cfg)
	ctx := context.Background()

	sess, err := tr.Start(ctx, "b1", "w1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tr.Close(ctx)

	select {
	case gerr := <-sess.Errors():
		if gerr.Kind != GeoTimeout {
			t.Fatalf("kind = %s, want timeout", gerr.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no timeout reported")
	}
}

func TestTrackerStopWaitsForLoop(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), NewHub(4), newScriptedSource(), trackingConfig())
	ctx := context.Background()
	sess, err := tr.Start(ctx, "b1", "w1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := tr.Stop(ctx, "b1", "w1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	select {
	case <-sess.Done():
	default:
		t.Fatal("loop still running after Stop returned")
	}
	if _, err := tr.Start(ctx, "b1", "w1"); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	tr.Close(ctx)
}

func TestTrackerWithDeviceRegistry(t *testing.T) {
	store := NewMemoryStore()
	devices := NewDeviceRegistry()
	tr := NewTracker(store, NewHub(4), devices, trackingConfig())
	ctx := context.Background()

	sess, err := tr.Start(ctx, "b1", "w1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer tr.Close(ctx)

	if err := devices.Push("b1", "w1", fixAt(1, 12.9, 77.5)); err != nil {
		t.Fatalf("push: %v", err)
	}
	eventually(t, func() bool { return store.ActiveCount("b1", "w1") == 1 })

	if err := devices.Fail("b1", "w1", GeoPermissionDenied, "revoked"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	// reads that find no new fix report timeouts, so skip those
	deadline := time.After(2 * time.Second)
	for {
		select {
		case gerr := <-sess.Errors():
			if gerr.Kind == GeoTimeout {
				continue
			}
			if gerr.Kind != GeoPermissionDenied || gerr.Message != "revoked" {
				t.Fatalf("error = %+v", gerr)
			}
			return
		case <-deadline:
			t.Fatal("device failure not reported")
		}
	}
}

// slowStore holds every append for delay and signals when the first one begins.
type slowStore struct {
	*MemoryStore
	delay   time.Duration
	writing chan struct{}
	once    sync.Once
}

func (s *slowStore) Append(ctx context.Context, smp Sample) (Sample, error) {
	s.once.Do(func() { close(s.writing) })
	time.Sleep(s.delay)
	return s.MemoryStore.Append(ctx, smp)
}

func TestTrackerStopDuringSlowWriteStillDeactivates(t *testing.T) {
	store := &slowStore{MemoryStore: NewMemoryStore(), delay: 150 * time.Millisecond, writing: make(chan struct{})}
	hub := NewHub(4)
	src := newScriptedSource()
	tr := NewTracker(store, hub, src, trackingConfig())
	ctx := context.Background()

	feed, err := hub.Subscribe(ctx, "b1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer feed.Close()

	if _, err := tr.Start(ctx, "b1", "w1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	src.next <- sourceResult{fix: fixAt(1, 12.90, 77.50)}
	<-store.writing

	stopCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := tr.Stop(stopCtx, "b1", "w1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if tr.Active("b1", "w1") {
		t.Fatal("session still registered after stop")
	}

	// Close waits for the deactivation that Stop handed off
	tr.Close(ctx)
	if n := store.ActiveCount("b1", "w1"); n != 0 {
		t.Fatalf("active rows after late write = %d, want 0", n)
	}

	written := <-feed.C()
	end := <-feed.C()
	if !written.IsActive || end.IsActive {
		t.Fatalf("feed order: written=%+v end=%+v", written, end)
	}
}

func TestTrackerStopPublishesEndMarkerOnlyForLiveSessions(t *testing.T) {
	hub := NewHub(4)
	tr := NewTracker(NewMemoryStore(), hub, newScriptedSource(), trackingConfig())
	ctx := context.Background()
	feed, err := hub.Subscribe(ctx, "b1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer feed.Close()

	if err := tr.Stop(ctx, "b1", "w1"); err != nil {
		t.Fatalf("stop never started: %v", err)
	}
	select {
	case smp := <-feed.C():
		t.Fatalf("unexpected feed message for a pair that never started: %+v", smp)
	default:
	}

	if _, err := tr.Start(ctx, "b1", "w1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := tr.Stop(ctx, "b1", "w1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	select {
	case smp := <-feed.C():
		if smp.IsActive || smp.WorkerID != "w1" {
			t.Fatalf("end marker = %+v", smp)
		}
	default:
		t.Fatal("no end marker after stop")
	}
}
