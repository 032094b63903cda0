// README: Tracker sinks: Firebase RTDB mirror for mobile clients and the worker directory snapshot.
package location

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/db"

	"fixit/internal/types"
)

// rtdbEntry mirrors a single tracked worker under /booking_locations/{booking}/{worker}.
type rtdbEntry struct {
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Accuracy  float64  `json:"accuracy"`
	Heading   *float64 `json:"heading,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Status    string   `json:"status"`
	Timestamp int64    `json:"timestamp"`
}

type rtdbRef interface {
	Set(ctx context.Context, v interface{}) error
	Delete(ctx context.Context) error
}

// RTDBMirror lets apps that already listen to Firebase follow a booking without
// polling the API.
type RTDBMirror struct {
	ref func(path string) rtdbRef
}

func NewRTDBMirror(client *db.Client) *RTDBMirror {
	return &RTDBMirror{ref: func(path string) rtdbRef { return client.NewRef(path) }}
}

func mirrorPath(bookingID, workerID types.ID) string {
	return fmt.Sprintf("booking_locations/%s/%s", bookingID, workerID)
}

func (m *RTDBMirror) Publish(ctx context.Context, s Sample) error {
	entry := rtdbEntry{
		Lat:       s.Lat,
		Lng:       s.Lng,
		Accuracy:  s.Accuracy,
		Heading:   s.Heading,
		Speed:     s.Speed,
		Status:    "active",
		Timestamp: s.Timestamp.UnixMilli(),
	}
	if err := m.ref(mirrorPath(s.BookingID, s.WorkerID)).Set(ctx, entry); err != nil {
		return fmt.Errorf("mirror location to RTDB: %w", err)
	}
	return nil
}

func (m *RTDBMirror) Clear(ctx context.Context, bookingID, workerID types.ID) error {
	if err := m.ref(mirrorPath(bookingID, workerID)).Delete(ctx); err != nil {
		return fmt.Errorf("clear RTDB location: %w", err)
	}
	return nil
}

type locationUpdater interface {
	UpdateLocation(ctx context.Context, id types.ID, p types.Point) error
}

// WorkerSnapshotSink keeps the directory's last-known worker position current while
// a booking is tracked, so later matching sees where the worker actually is.
type WorkerSnapshotSink struct {
	workers locationUpdater
}

func NewWorkerSnapshotSink(workers locationUpdater) *WorkerSnapshotSink {
	return &WorkerSnapshotSink{workers: workers}
}

func (s *WorkerSnapshotSink) Publish(ctx context.Context, smp Sample) error {
	return s.workers.UpdateLocation(ctx, smp.WorkerID, smp.Point())
}
