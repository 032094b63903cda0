// README: Redis GEO index in front of a worker store for fast nearby lookups.
package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"fixit/internal/types"
)

const workerGeoKey = "directory:workers:geo"

// GeoIndexedStore keeps available workers' positions in a Redis GEO set. The wrapped
// store stays the source of truth; a failed index read falls back to it.
type GeoIndexedStore struct {
	Store
	redis *redis.Client
}

func NewGeoIndexedStore(inner Store, client *redis.Client) *GeoIndexedStore {
	return &GeoIndexedStore{Store: inner, redis: client}
}

func (s *GeoIndexedStore) Upsert(ctx context.Context, w *Worker) error {
	if err := s.Store.Upsert(ctx, w); err != nil {
		return err
	}
	s.sync(ctx, w.ID)
	return nil
}

func (s *GeoIndexedStore) SetAvailability(ctx context.Context, id types.ID, available bool) error {
	if err := s.Store.SetAvailability(ctx, id, available); err != nil {
		return err
	}
	s.sync(ctx, id)
	return nil
}

func (s *GeoIndexedStore) UpdateLocation(ctx context.Context, id types.ID, p types.Point, at time.Time) error {
	if err := s.Store.UpdateLocation(ctx, id, p, at); err != nil {
		return err
	}
	s.sync(ctx, id)
	return nil
}

func (s *GeoIndexedStore) ListCandidates(ctx context.Context, q CandidateQuery) ([]*Worker, error) {
	ids, err := s.nearby(ctx, q.Center, q.RadiusKm)
	if err != nil {
		log.Printf("worker geo index unavailable, falling back to store: %v", err)
		return s.Store.ListCandidates(ctx, q)
	}
	out := make([]*Worker, 0, len(ids))
	for _, id := range ids {
		w, err := s.Store.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s.redis.ZRem(ctx, workerGeoKey, string(id))
			continue
		}
		if err != nil {
			return nil, err
		}
		if w.Eligible(q.Skill) && w.Location != nil {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *GeoIndexedStore) nearby(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := s.redis.GeoSearch(ctx, workerGeoKey, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}

// sync mirrors one worker into the index: present only while verified, available and located.
func (s *GeoIndexedStore) sync(ctx context.Context, id types.ID) {
	w, err := s.Store.Get(ctx, id)
	if err != nil {
		log.Printf("worker geo index sync id=%s: %v", id, err)
		return
	}
	if w.Status != StatusVerified || !w.Available || w.Location == nil {
		err = s.redis.ZRem(ctx, workerGeoKey, string(id)).Err()
	} else {
		err = s.redis.GeoAdd(ctx, workerGeoKey, &redis.GeoLocation{
			Name:      string(id),
			Longitude: w.Location.Lng,
			Latitude:  w.Location.Lat,
		}).Err()
	}
	if err != nil {
		log.Printf("worker geo index sync id=%s: %v", id, err)
	}
}

// Rebuild drops the index and re-adds every indexable worker from the wrapped store.
func (s *GeoIndexedStore) Rebuild(ctx context.Context) error {
	ids, err := s.Store.ListIndexable(ctx)
	if err != nil {
		return err
	}
	if err := s.redis.Del(ctx, workerGeoKey).Err(); err != nil {
		return err
	}
	for _, id := range ids {
		s.sync(ctx, id)
	}
	log.Printf("worker geo index rebuilt workers=%d", len(ids))
	return nil
}
