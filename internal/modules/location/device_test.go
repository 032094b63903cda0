package location

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDeviceRegistryReturnsEachFixOnce(t *testing.T) {
	r := NewDeviceRegistry()
	if err := r.Push("b1", "w1", fixAt(1, 12.9, 77.5)); err != nil {
		t.Fatalf("push: %v", err)
	}
	fix, err := r.CurrentPosition(context.Background(), "b1", "w1")
	if err != nil {
		t.Fatalf("current position: %v", err)
	}
	if fix.Lat != 12.9 {
		t.Fatalf("fix = %+v", fix)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.CurrentPosition(ctx, "b1", "w1")
	var gerr *GeolocationError
	if !errors.As(err, &gerr) || gerr.Kind != GeoTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestDeviceRegistryWakesWaitingReader(t *testing.T) {
	r := NewDeviceRegistry()
	got := make(chan Fix, 1)
	go func() {
		fix, err := r.CurrentPosition(context.Background(), "b1", "w1")
		if err == nil {
			got <- fix
		}
	}()
	time.Sleep(10 * time.Millisecond)
	if err := r.Push("b1", "w1", fixAt(2, 12.91, 77.51)); err != nil {
		t.Fatalf("push: %v", err)
	}
	select {
	case fix := <-got:
		if fix.Lat != 12.91 {
			t.Fatalf("fix = %+v", fix)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reader not woken")
	}
}

func TestDeviceRegistryIgnoresOlderFixesAndValidates(t *testing.T) {
	r := NewDeviceRegistry()
	ctx := context.Background()
	_ = r.Push("b1", "w1", fixAt(5, 12.95, 77.5))
	_ = r.Push("b1", "w1", fixAt(3, 12.93, 77.5))
	fix, err := r.CurrentPosition(ctx, "b1", "w1")
	if err != nil || fix.Lat != 12.95 {
		t.Fatalf("fix = %+v, err = %v", fix, err)
	}
	if err := r.Push("b1", "w1", Fix{Lat: 91, Lng: 0}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if err := r.Fail("b1", "w1", "exploded", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestDeviceRegistryFailureIsReportedOnce(t *testing.T) {
	r := NewDeviceRegistry()
	_ = r.Fail("b1", "w1", GeoUnavailable, "no satellites")
	_, err := r.CurrentPosition(context.Background(), "b1", "w1")
	var gerr *GeolocationError
	if !errors.As(err, &gerr) || gerr.Kind != GeoUnavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
	_ = r.Push("b1", "w1", fixAt(1, 12.9, 77.5))
	if _, err := r.CurrentPosition(context.Background(), "b1", "w1"); err != nil {
		t.Fatalf("after failure: %v", err)
	}
}
