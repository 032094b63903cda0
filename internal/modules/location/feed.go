// README: Per-booking sample feed contract and the in-process hub implementation.
package location

import (
	"context"
	"log"
	"sync"

	"fixit/internal/types"
)

// Feed fans samples out to the booking's live subscribers. Delivery is best effort;
// a subscriber that falls behind may miss samples and recovers on the next one.
// A sample with IsActive false is the end marker published when tracking stops.
type Feed interface {
	Publish(ctx context.Context, s Sample) error
	// Subscribe returns once the subscription is live, so samples published after it
	// returns are delivered.
	Subscribe(ctx context.Context, bookingID types.ID) (FeedSubscription, error)
}

type FeedSubscription interface {
	C() <-chan Sample
	Close() error
}

type hubClient struct {
	hub       *Hub
	bookingID types.ID
	send      chan Sample
	once      sync.Once
}

func (c *hubClient) C() <-chan Sample { return c.send }

func (c *hubClient) Close() error {
	c.once.Do(func() { c.hub.unregister(c) })
	return nil
}

// Hub is the single-process Feed.
type Hub struct {
	mu      sync.RWMutex
	clients map[types.ID]map[*hubClient]struct{}
	buffer  int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{clients: make(map[types.ID]map[*hubClient]struct{}), buffer: buffer}
}

func (h *Hub) Subscribe(_ context.Context, bookingID types.ID) (FeedSubscription, error) {
	c := &hubClient{hub: h, bookingID: bookingID, send: make(chan Sample, h.buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[bookingID]
	if !ok {
		set = make(map[*hubClient]struct{})
		h.clients[bookingID] = set
	}
	set[c] = struct{}{}
	return c, nil
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[c.bookingID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.bookingID)
		}
	}
	close(c.send)
}

func (h *Hub) Publish(_ context.Context, s Sample) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[s.BookingID] {
		select {
		case c.send <- s:
		default:
			if !s.IsActive {
				// an end marker displaces the oldest queued sample
				select {
				case <-c.send:
				default:
				}
				select {
				case c.send <- s:
					continue
				default:
				}
			}
			log.Printf("location hub: drop sample booking=%s ts=%s", s.BookingID, s.Timestamp)
		}
	}
	return nil
}
