// README: Matching service ranks nearby eligible workers for a booking and offers it to them.
package matching

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"fixit/internal/config"
	"fixit/internal/geo"
	"fixit/internal/modules/booking"
	"fixit/internal/modules/notification"
	"fixit/internal/modules/worker"
	"fixit/internal/types"
)

const notifyTimeout = 10 * time.Second

type Directory interface {
	ListCandidates(ctx context.Context, skill string, center types.Point, radiusKm float64) ([]*worker.Worker, error)
}

type Service struct {
	directory Directory
	notifier  notification.Dispatcher
	dispatch  DispatchLog
	cfg       config.MatchingConfig

	wg sync.WaitGroup
}

func NewService(directory Directory, notifier notification.Dispatcher, dispatch DispatchLog, cfg config.MatchingConfig) *Service {
	if cfg.RadiusKm <= 0 {
		cfg.RadiusKm = 10
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 5
	}
	if cfg.AvgSpeedKmh <= 0 {
		cfg.AvgSpeedKmh = 25
	}
	if len(cfg.RadiusStepsKm) == 0 {
		cfg.RadiusStepsKm = []float64{cfg.RadiusKm}
	}
	return &Service{directory: directory, notifier: notifier, dispatch: dispatch, cfg: cfg}
}

// FindCandidates returns at most limit eligible workers within radiusKm of the booking,
// best first. Non-positive radiusKm or limit fall back to the configured defaults.
// An empty result is not an error.
func (s *Service) FindCandidates(ctx context.Context, b *booking.Booking, radiusKm float64, limit int) ([]Candidate, error) {
	if b == nil || b.Geo == nil {
		return nil, fmt.Errorf("%w: booking has no location", booking.ErrValidation)
	}
	if radiusKm <= 0 {
		radiusKm = s.cfg.RadiusKm
	}
	if limit <= 0 {
		limit = s.cfg.Limit
	}

	workers, err := s.directory.ListCandidates(ctx, b.ServiceType, *b.Geo, radiusKm)
	if err != nil {
		return nil, fmt.Errorf("list candidate workers: %w", err)
	}

	out := make([]Candidate, 0, len(workers))
	for _, w := range workers {
		// the directory may over-approximate; eligibility and distance are re-checked here
		if w == nil || w.Location == nil || !w.Eligible(b.ServiceType) {
			continue
		}
		d := geo.HaversineKm(*w.Location, *b.Geo)
		if d > radiusKm {
			continue
		}
		out = append(out, Candidate{
			Worker:     w,
			DistanceKm: d,
			EtaMinutes: geo.EtaMinutes(d, s.cfg.AvgSpeedKmh, s.cfg.DispatchBufferMin),
		})
	}
	rank(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindWithWidening searches the configured radius steps in order and returns the first
// non-empty result. Candidates are never invented when every step comes back empty.
func (s *Service) FindWithWidening(ctx context.Context, b *booking.Booking, limit int) ([]Candidate, float64, error) {
	for _, radius := range s.cfg.RadiusStepsKm {
		cands, err := s.FindCandidates(ctx, b, radius, limit)
		if err != nil {
			return nil, 0, err
		}
		if len(cands) > 0 {
			return cands, radius, nil
		}
		log.Printf("matching: no candidates booking=%s radius_km=%.1f", b.ID, radius)
	}
	return nil, 0, ErrNoWorkersAvailable
}

// Dispatch offers the booking to candidates that have not been offered it yet. The
// offer is not a reservation; acceptance is decided by the booking transition.
func (s *Service) Dispatch(ctx context.Context, b *booking.Booking, cands []Candidate) (int, error) {
	var notified map[types.ID]bool
	if s.dispatch != nil {
		var err error
		if notified, err = s.dispatch.Notified(ctx, b.ID); err != nil {
			return 0, fmt.Errorf("load dispatch log: %w", err)
		}
	}

	fresh := make([]types.ID, 0, len(cands))
	for _, c := range cands {
		if notified[c.Worker.ID] {
			continue
		}
		fresh = append(fresh, c.Worker.ID)
		s.offer(ctx, b, c)
	}
	if s.dispatch != nil && len(fresh) > 0 {
		if err := s.dispatch.RecordDispatch(ctx, b.ID, fresh); err != nil {
			return len(fresh), fmt.Errorf("record dispatch: %w", err)
		}
	}
	log.Printf("matching: dispatched booking=%s workers=%d", b.ID, len(fresh))
	return len(fresh), nil
}

func (s *Service) offer(ctx context.Context, b *booking.Booking, c Candidate) {
	if s.notifier == nil {
		return
	}
	n := notification.Notification{
		UserID:  c.Worker.UserID,
		Title:   "New booking request",
		Message: fmt.Sprintf("%s job %.1f km away", b.ServiceType, c.DistanceKm),
		Type:    notification.TypeBookingRequest,
		Data: map[string]string{
			"booking_id":  string(b.ID),
			"distance_km": fmt.Sprintf("%.2f", c.DistanceKm),
			"eta_minutes": fmt.Sprintf("%.0f", c.EtaMinutes),
		},
	}
	base := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(base, notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, n); err != nil {
			log.Printf("matching: offer failed booking=%s worker=%s err=%v", b.ID, c.Worker.ID, err)
		}
	}()
}

// Wait blocks until in-flight offers are delivered or have failed.
func (s *Service) Wait() {
	s.wg.Wait()
}
