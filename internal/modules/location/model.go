// README: Live location samples, device fixes and the geolocation error taxonomy.
package location

import (
	"errors"
	"fmt"
	"time"

	"fixit/internal/types"
)

var (
	ErrAlreadyStarted = errors.New("tracking already started for booking and worker")
	ErrNotTracking    = errors.New("tracking not started for booking and worker")
	ErrNoSample       = errors.New("no active location sample")
	ErrValidation     = errors.New("invalid location request")
)

// Sample is one persisted position of a worker scoped to a booking.
// Speed is in metres per second as reported by the device.
type Sample struct {
	ID        int64     `json:"id,omitempty"`
	BookingID types.ID  `json:"booking_id"`
	WorkerID  types.ID  `json:"worker_id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy"`
	Heading   *float64  `json:"heading,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	IsActive  bool      `json:"is_active"`
}

func (s Sample) Point() types.Point {
	return types.Point{Lat: s.Lat, Lng: s.Lng}
}

// Fix is a raw position reading from a device.
type Fix struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy"`
	Heading   *float64  `json:"heading,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (f Fix) Point() types.Point {
	return types.Point{Lat: f.Lat, Lng: f.Lng}
}

type GeolocationKind string

const (
	GeoPermissionDenied GeolocationKind = "permission_denied"
	GeoTimeout          GeolocationKind = "timeout"
	GeoUnavailable      GeolocationKind = "unavailable"
)

func (k GeolocationKind) Valid() bool {
	switch k {
	case GeoPermissionDenied, GeoTimeout, GeoUnavailable:
		return true
	}
	return false
}

// GeolocationError is a recoverable sampling failure. The tracker keeps running.
type GeolocationError struct {
	Kind    GeolocationKind `json:"kind"`
	Message string          `json:"message,omitempty"`
	At      time.Time       `json:"at"`
}

func (e *GeolocationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("geolocation %s", e.Kind)
	}
	return fmt.Sprintf("geolocation %s: %s", e.Kind, e.Message)
}

type sessionKey struct {
	bookingID types.ID
	workerID  types.ID
}
