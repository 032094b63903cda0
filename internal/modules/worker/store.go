// README: Worker store interface and its PostgreSQL implementation.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fixit/internal/geo"
	"fixit/internal/types"
)

type Store interface {
	Upsert(ctx context.Context, w *Worker) error
	Get(ctx context.Context, id types.ID) (*Worker, error)
	SetAvailability(ctx context.Context, id types.ID, available bool) error
	UpdateLocation(ctx context.Context, id types.ID, p types.Point, at time.Time) error
	ListCandidates(ctx context.Context, q CandidateQuery) ([]*Worker, error)
	// ListIndexable returns ids of verified, available workers with a known location.
	ListIndexable(ctx context.Context) ([]types.ID, error)
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const workerColumns = `id, user_id, name, skills, available, status, lat, lng,
	location_updated_at, rating, hourly_rate, currency, created_at, updated_at`

func (s *PostgresStore) Upsert(ctx context.Context, w *Worker) error {
	var lat, lng *float64
	if w.Location != nil {
		lat, lng = &w.Location.Lat, &w.Location.Lng
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO workers (
			id, user_id, name, skills, available, status, lat, lng,
			location_updated_at, rating, hourly_rate, currency, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			skills = EXCLUDED.skills,
			available = EXCLUDED.available,
			status = EXCLUDED.status,
			lat = COALESCE(EXCLUDED.lat, workers.lat),
			lng = COALESCE(EXCLUDED.lng, workers.lng),
			location_updated_at = COALESCE(EXCLUDED.location_updated_at, workers.location_updated_at),
			rating = EXCLUDED.rating,
			hourly_rate = EXCLUDED.hourly_rate,
			currency = EXCLUDED.currency,
			updated_at = EXCLUDED.updated_at`,
		string(w.ID), string(w.UserID), w.Name, w.Skills, w.Available, string(w.Status),
		lat, lng, w.LocationUpdatedAt, w.Rating, w.HourlyRate.Amount, w.HourlyRate.Currency,
		w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert worker: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id types.ID) (*Worker, error) {
	row := s.db.QueryRow(ctx, `SELECT `+workerColumns+` FROM workers WHERE id = $1`, string(id))
	w, err := scanWorker(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return w, err
}

func (s *PostgresStore) SetAvailability(ctx context.Context, id types.ID, available bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE workers SET available = $1, updated_at = now() WHERE id = $2`, available, string(id))
	if err != nil {
		return fmt.Errorf("set availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateLocation(ctx context.Context, id types.ID, p types.Point, at time.Time) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE workers SET lat = $1, lng = $2, location_updated_at = $3, updated_at = now()
		WHERE id = $4`, p.Lat, p.Lng, at, string(id))
	if err != nil {
		return fmt.Errorf("update worker location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCandidates prefilters with a bounding box around the center; exact distance is
// computed by the caller.
func (s *PostgresStore) ListCandidates(ctx context.Context, q CandidateQuery) ([]*Worker, error) {
	minLat, maxLat, minLng, maxLng := geo.BoundingBox(q.Center, q.RadiusKm)
	rows, err := s.db.Query(ctx, `
		SELECT `+workerColumns+`
		FROM workers
		WHERE status = $1
		  AND available
		  AND $2 = ANY(skills)
		  AND lat BETWEEN $3 AND $4
		  AND lng BETWEEN $5 AND $6`,
		string(StatusVerified), NormalizeSkill(q.Skill), minLat, maxLat, minLng, maxLng,
	)
	if err != nil {
		return nil, fmt.Errorf("list candidate workers: %w", err)
	}
	defer rows.Close()

	var out []*Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListIndexable(ctx context.Context) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM workers
		WHERE status = $1 AND available AND lat IS NOT NULL AND lng IS NOT NULL`,
		string(StatusVerified),
	)
	if err != nil {
		return nil, fmt.Errorf("list indexable workers: %w", err)
	}
	defer rows.Close()

	var ids []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, types.ID(id))
	}
	return ids, rows.Err()
}

func scanWorker(row pgx.Row) (*Worker, error) {
	var w Worker
	var lat, lng *float64
	err := row.Scan(
		&w.ID, &w.UserID, &w.Name, &w.Skills, &w.Available, &w.Status, &lat, &lng,
		&w.LocationUpdatedAt, &w.Rating, &w.HourlyRate.Amount, &w.HourlyRate.Currency,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		w.Location = &types.Point{Lat: *lat, Lng: *lng}
	}
	return &w, nil
}
