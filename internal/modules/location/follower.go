// README: Follower folds samples into the customer-facing view: ordering, distance and ETA.
package location

import (
	"time"

	"fixit/internal/geo"
	"fixit/internal/types"
)

const (
	EtaReported = "reported"
	EtaObserved = "observed"
	EtaAverage  = "average"
)

type View struct {
	BookingID  types.ID    `json:"booking_id"`
	WorkerID   types.ID    `json:"worker_id"`
	Position   types.Point `json:"position"`
	Accuracy   float64     `json:"accuracy"`
	Heading    *float64    `json:"heading,omitempty"`
	SpeedKmh   *float64    `json:"speed_kmh,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	DistanceKm *float64    `json:"distance_km,omitempty"`
	EtaMinutes *float64    `json:"eta_minutes,omitempty"`
	EtaSource  string      `json:"eta_source,omitempty"`
	// Stopped marks the last view of a subscription: tracking for the booking ended.
	Stopped bool `json:"stopped,omitempty"`
}

type SpeedModel struct {
	MinKmh float64
	AvgKmh float64
	MaxKmh float64
}

// Follower is not safe for concurrent use; a subscription owns one.
type Follower struct {
	dest  *types.Point
	speed SpeedModel
	last  *Sample
	view  View
}

func NewFollower(dest *types.Point, speed SpeedModel) *Follower {
	if speed.AvgKmh <= 0 {
		speed.AvgKmh = 25
	}
	if speed.MaxKmh <= 0 {
		speed.MaxKmh = 120
	}
	return &Follower{dest: dest, speed: speed}
}

// Apply folds s into the view. Samples not newer than the last applied one are
// discarded, so out-of-order and duplicate deliveries never move the view back.
func (f *Follower) Apply(s Sample) (View, bool) {
	if f.last != nil && !s.Timestamp.After(f.last.Timestamp) {
		return f.view, false
	}
	v := View{
		BookingID: s.BookingID,
		WorkerID:  s.WorkerID,
		Position:  s.Point(),
		Accuracy:  s.Accuracy,
		Heading:   s.Heading,
		Timestamp: s.Timestamp,
	}
	if s.Speed != nil {
		kmh := geo.MpsToKmh(*s.Speed)
		v.SpeedKmh = &kmh
	}
	if f.dest != nil {
		d := geo.HaversineKm(s.Point(), *f.dest)
		speed, source := f.etaSpeed(s)
		eta := geo.EtaMinutes(d, speed, 0)
		v.DistanceKm = &d
		v.EtaMinutes = &eta
		v.EtaSource = source
	}
	prev := s
	f.last = &prev
	f.view = v
	return v, true
}

// etaSpeed prefers the device's reported speed, then the speed observed between the
// last two samples, then the assumed average.
func (f *Follower) etaSpeed(s Sample) (float64, string) {
	if s.Speed != nil {
		if kmh := geo.MpsToKmh(*s.Speed); kmh >= f.speed.MinKmh && kmh > 0 {
			return kmh, EtaReported
		}
	}
	if f.last != nil {
		hours := s.Timestamp.Sub(f.last.Timestamp).Hours()
		if hours > 0 {
			kmh := geo.HaversineKm(f.last.Point(), s.Point()) / hours
			if kmh >= f.speed.MinKmh && kmh > 0 && kmh <= f.speed.MaxKmh {
				return kmh, EtaObserved
			}
		}
	}
	return f.speed.AvgKmh, EtaAverage
}

// End returns the final view after tracking stopped for the booking.
func (f *Follower) End(bookingID types.ID) View {
	v := f.view
	v.BookingID = bookingID
	v.Stopped = true
	return v
}

// Latest returns the current view and whether any sample has been applied.
func (f *Follower) Latest() (View, bool) {
	return f.view, f.last != nil
}
