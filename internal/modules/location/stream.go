// README: Stream serves customers a booking's live position: backfill, then ordered live samples.
package location

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"fixit/internal/config"
	"fixit/internal/types"
)

// Destinations resolves where a booking's worker is heading.
type Destinations interface {
	Destination(ctx context.Context, bookingID types.ID) (*types.Point, error)
}

type Stream struct {
	store Store
	feed  Feed
	dest  Destinations
	speed SpeedModel

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func NewStream(store Store, feed Feed, dest Destinations, cfg config.TrackingConfig) *Stream {
	return &Stream{
		store: store,
		feed:  feed,
		dest:  dest,
		speed: SpeedModel{
			MinKmh: cfg.StreamMinSpeedKmh,
			AvgKmh: cfg.StreamAvgSpeedKmh,
			MaxKmh: cfg.StreamMaxSpeedKmh,
		},
		subs: make(map[*Subscription]struct{}),
	}
}

type Subscription struct {
	BookingID types.ID

	stream *Stream
	feed   FeedSubscription
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Done is closed once the subscription stops delivering.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close stops delivery and waits for the listener to exit. It must not be called from
// inside the update callback.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		_ = s.feed.Close()
		<-s.done
		s.stream.remove(s)
	})
}

func (s *Stream) destination(ctx context.Context, bookingID types.ID) (*types.Point, error) {
	if s.dest == nil {
		return nil, nil
	}
	return s.dest.Destination(ctx, bookingID)
}

// Subscribe delivers the booking's latest active sample first, if any, then live
// samples in timestamp order. onUpdate is always called from one goroutine. When
// tracking stops, onUpdate gets a final view with Stopped set and Done closes;
// Close must still be called.
func (s *Stream) Subscribe(ctx context.Context, bookingID types.ID, onUpdate func(View)) (*Subscription, error) {
	if bookingID == "" || onUpdate == nil {
		return nil, ErrValidation
	}
	dest, err := s.destination(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	// subscribe before reading the backfill so no sample falls in between
	feedSub, err := s.feed.Subscribe(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	backfill, err := s.store.LatestActive(ctx, bookingID)
	hasBackfill := err == nil
	if err != nil && !errors.Is(err, ErrNoSample) {
		_ = feedSub.Close()
		return nil, fmt.Errorf("load latest location: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &Subscription{
		BookingID: bookingID,
		stream:    s,
		feed:      feedSub,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	follower := NewFollower(dest, s.speed)
	go func() {
		defer close(sub.done)
		if hasBackfill {
			if v, ok := follower.Apply(backfill); ok {
				onUpdate(v)
			}
		}
		for {
			select {
			case <-loopCtx.Done():
				return
			case smp, ok := <-feedSub.C():
				if !ok {
					return
				}
				if !smp.IsActive {
					onUpdate(follower.End(bookingID))
					_ = feedSub.Close()
					return
				}
				if v, applied := follower.Apply(smp); applied {
					onUpdate(v)
				}
			}
		}
	}()
	return sub, nil
}

// Unsubscribe is sub.Close; safe to call more than once.
func (s *Stream) Unsubscribe(sub *Subscription) {
	if sub != nil {
		sub.Close()
	}
}

// Latest builds a one-off view from the newest active sample.
func (s *Stream) Latest(ctx context.Context, bookingID types.ID) (View, error) {
	dest, err := s.destination(ctx, bookingID)
	if err != nil {
		return View{}, err
	}
	smp, err := s.store.LatestActive(ctx, bookingID)
	if err != nil {
		return View{}, err
	}
	v, _ := NewFollower(dest, s.speed).Apply(smp)
	return v, nil
}

// Active reports how many subscriptions are open.
func (s *Stream) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Stream) remove(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub)
}

// Close ends subscriptions nobody closed; each one is logged as a leak.
func (s *Stream) Close() {
	s.mu.Lock()
	leftover := make([]*Subscription, 0, len(s.subs))
	for sub := range s.subs {
		leftover = append(leftover, sub)
	}
	s.mu.Unlock()
	for _, sub := range leftover {
		log.Printf("location stream: closing leaked subscription booking=%s", sub.BookingID)
		sub.Close()
	}
}
