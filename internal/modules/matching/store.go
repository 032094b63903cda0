// README: Dispatch log backed by Redis: when a booking was offered and to which workers.
package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fixit/internal/types"
)

const (
	dispatchKeyPrefix = "matching:booking:%s:dispatched_at"
	notifiedKeyPrefix = "matching:booking:%s:notified"
	// bookings should resolve well within 7 days
	keyTTL = 7 * 24 * time.Hour
)

type DispatchLog interface {
	RecordDispatch(ctx context.Context, bookingID types.ID, workerIDs []types.ID) error
	Notified(ctx context.Context, bookingID types.ID) (map[types.ID]bool, error)
}

type RedisDispatchLog struct {
	redis *redis.Client
}

func NewRedisDispatchLog(redis *redis.Client) *RedisDispatchLog {
	return &RedisDispatchLog{redis: redis}
}

// RecordDispatch keeps the first dispatch time and adds the notified workers to the booking's set.
func (s *RedisDispatchLog) RecordDispatch(ctx context.Context, bookingID types.ID, workerIDs []types.ID) error {
	pipe := s.redis.Pipeline()
	pipe.SetNX(ctx, dispatchedAtKey(bookingID), time.Now().UTC().Format(time.RFC3339), keyTTL)
	if len(workerIDs) > 0 {
		members := make([]interface{}, len(workerIDs))
		for i, w := range workerIDs {
			members[i] = string(w)
		}
		pipe.SAdd(ctx, notifiedKey(bookingID), members...)
		pipe.Expire(ctx, notifiedKey(bookingID), keyTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// DispatchedAt returns when the booking was first dispatched, and whether it has been.
func (s *RedisDispatchLog) DispatchedAt(ctx context.Context, bookingID types.ID) (time.Time, bool, error) {
	val, err := s.redis.Get(ctx, dispatchedAtKey(bookingID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// Notified lists workers already offered the booking, so a widened search can skip them.
func (s *RedisDispatchLog) Notified(ctx context.Context, bookingID types.ID) (map[types.ID]bool, error) {
	members, err := s.redis.SMembers(ctx, notifiedKey(bookingID)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[types.ID]bool, len(members))
	for _, m := range members {
		out[types.ID(m)] = true
	}
	return out, nil
}

func dispatchedAtKey(bookingID types.ID) string {
	return fmt.Sprintf(dispatchKeyPrefix, string(bookingID))
}

func notifiedKey(bookingID types.ID) string {
	return fmt.Sprintf(notifiedKeyPrefix, string(bookingID))
}
