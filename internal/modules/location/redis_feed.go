// README: Redis Pub/Sub feed so API replicas share live samples.
package location

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"fixit/internal/types"
)

const channelPrefix = "location:booking:"

type RedisFeed struct {
	redis  *redis.Client
	buffer int
}

func NewRedisFeed(client *redis.Client, buffer int) *RedisFeed {
	if buffer <= 0 {
		buffer = 32
	}
	return &RedisFeed{redis: client, buffer: buffer}
}

func channelFor(bookingID types.ID) string {
	return channelPrefix + string(bookingID)
}

func (f *RedisFeed) Publish(ctx context.Context, s Sample) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := f.redis.Publish(ctx, channelFor(s.BookingID), payload).Err(); err != nil {
		return fmt.Errorf("publish location sample: %w", err)
	}
	return nil
}

func (f *RedisFeed) Subscribe(ctx context.Context, bookingID types.ID) (FeedSubscription, error) {
	pubsub := f.redis.Subscribe(ctx, channelFor(bookingID))
	// wait for the subscribe confirmation so nothing published afterwards is lost
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe location feed: %w", err)
	}
	sub := &redisSubscription{
		pubsub: pubsub,
		out:    make(chan Sample, f.buffer),
		done:   make(chan struct{}),
	}
	go sub.pump()
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	out    chan Sample
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) C() <-chan Sample { return s.out }

func (s *redisSubscription) pump() {
	defer close(s.out)
	for msg := range s.pubsub.Channel() {
		var smp Sample
		if err := json.Unmarshal([]byte(msg.Payload), &smp); err != nil {
			log.Printf("location feed: bad payload on %s: %v", msg.Channel, err)
			continue
		}
		select {
		case s.out <- smp:
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}
