// README: Backend tests for location storage and feeds; Postgres and Redis cases need FIXIT_TEST_DSN / FIXIT_TEST_REDIS_ADDR.
package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"fixit/internal/testkit"
	"fixit/internal/types"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.LatestActive(ctx, "b1"); !errors.Is(err, ErrNoSample) {
		t.Fatalf("expected ErrNoSample, got %v", err)
	}
	speed := 4.2
	first, err := store.Append(ctx, at(1, 12.90, 77.50))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	second := at(2, 12.91, 77.51)
	second.Speed = &speed
	if _, err := store.Append(ctx, second); err != nil {
		t.Fatalf("append: %v", err)
	}
	if first.ID == 0 {
		t.Fatalf("append did not assign an id")
	}

	latest, err := store.LatestActive(ctx, "b1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if !latest.Timestamp.Equal(t0.Add(2*time.Second)) || latest.Speed == nil || *latest.Speed != speed {
		t.Fatalf("latest = %+v", latest)
	}

	n, err := store.Deactivate(ctx, "b1", "w1")
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	// only the newest row was still active
	if n != 1 {
		t.Fatalf("deactivated %d rows, want 1", n)
	}
	if n, _ := store.Deactivate(ctx, "b1", "w1"); n != 0 {
		t.Fatalf("second deactivate changed %d rows", n)
	}
	if _, err := store.LatestActive(ctx, "b1"); !errors.Is(err, ErrNoSample) {
		t.Fatalf("expected ErrNoSample after deactivate, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestPostgresStore(t *testing.T) {
	db := testkit.Postgres(t, "location_samples")
	exerciseStore(t, NewPostgresStore(db))
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub(1)
	ctx := context.Background()
	sub, err := hub.Subscribe(ctx, "b1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_ = hub.Publish(ctx, at(1, 1, 1))
	_ = hub.Publish(ctx, at(2, 1, 1))

	got := <-sub.C()
	if !got.Timestamp.Equal(t0.Add(time.Second)) {
		t.Fatalf("got %v", got.Timestamp)
	}
	_ = sub.Close()
	_ = sub.Close()
	if _, ok := <-sub.C(); ok {
		t.Fatal("channel should be closed")
	}
	// publishing after the last subscriber left is a no-op
	if err := hub.Publish(ctx, at(3, 1, 1)); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestRedisFeed(t *testing.T) {
	client := testkit.Redis(t, channelPrefix)
	feed := NewRedisFeed(client, 4)
	ctx := context.Background()

	sub, err := feed.Subscribe(ctx, "b-redis")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	smp := at(1, 12.9, 77.5)
	smp.BookingID = "b-redis"
	if err := feed.Publish(ctx, smp); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case got := <-sub.C():
		if got.BookingID != "b-redis" || !got.Timestamp.Equal(smp.Timestamp) || got.Lat != 12.9 {
			t.Fatalf("got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sample not delivered")
	}
}

type fakeRef struct {
	path    string
	value   interface{}
	deleted bool
}

func (r *fakeRef) Set(_ context.Context, v interface{}) error {
	r.value = v
	return nil
}

func (r *fakeRef) Delete(context.Context) error {
	r.deleted = true
	return nil
}

func TestRTDBMirror(t *testing.T) {
	refs := map[string]*fakeRef{}
	m := &RTDBMirror{ref: func(path string) rtdbRef {
		if r, ok := refs[path]; ok {
			return r
		}
		r := &fakeRef{path: path}
		refs[path] = r
		return r
	}}
	ctx := context.Background()

	if err := m.Publish(ctx, at(1, 12.9, 77.5)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	r := refs["booking_locations/b1/w1"]
	if r == nil {
		t.Fatalf("refs = %v", refs)
	}
	entry, ok := r.value.(rtdbEntry)
	if !ok || entry.Lat != 12.9 || entry.Status != "active" || entry.Timestamp != t0.Add(time.Second).UnixMilli() {
		t.Fatalf("entry = %+v", r.value)
	}
	if err := m.Clear(ctx, "b1", "w1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !r.deleted {
		t.Fatal("mirror entry not deleted")
	}
}

type recordingUpdater struct {
	id types.ID
	p  types.Point
}

func (u *recordingUpdater) UpdateLocation(_ context.Context, id types.ID, p types.Point) error {
	u.id, u.p = id, p
	return nil
}

func TestWorkerSnapshotSink(t *testing.T) {
	u := &recordingUpdater{}
	if err := NewWorkerSnapshotSink(u).Publish(context.Background(), at(1, 12.9, 77.5)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if u.id != "w1" || u.p.Lat != 12.9 {
		t.Fatalf("update = %+v", u)
	}
}
