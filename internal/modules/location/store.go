// README: Location sample store interface and its PostgreSQL implementation.
package location

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fixit/internal/types"
)

type Store interface {
	// Append saves s as the pair's only active sample, deactivating earlier ones.
	Append(ctx context.Context, s Sample) (Sample, error)
	// Deactivate clears the active flag on all of the pair's rows and reports how many changed.
	Deactivate(ctx context.Context, bookingID, workerID types.ID) (int64, error)
	// LatestActive returns the newest active sample for the booking or ErrNoSample.
	LatestActive(ctx context.Context, bookingID types.ID) (Sample, error)
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, smp Sample) (Sample, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return Sample{}, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE location_samples SET is_active = FALSE
		WHERE booking_id = $1 AND worker_id = $2 AND is_active`,
		string(smp.BookingID), string(smp.WorkerID),
	)
	if err != nil {
		return Sample{}, fmt.Errorf("deactivate previous samples: %w", err)
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO location_samples (
			booking_id, worker_id, lat, lng, accuracy, heading, speed, recorded_at, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		RETURNING id`,
		string(smp.BookingID), string(smp.WorkerID), smp.Lat, smp.Lng, smp.Accuracy,
		smp.Heading, smp.Speed, smp.Timestamp,
	).Scan(&smp.ID)
	if err != nil {
		return Sample{}, fmt.Errorf("insert location sample: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Sample{}, err
	}
	smp.IsActive = true
	return smp, nil
}

func (s *PostgresStore) Deactivate(ctx context.Context, bookingID, workerID types.ID) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE location_samples SET is_active = FALSE
		WHERE booking_id = $1 AND worker_id = $2 AND is_active`,
		string(bookingID), string(workerID),
	)
	if err != nil {
		return 0, fmt.Errorf("deactivate location: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) LatestActive(ctx context.Context, bookingID types.ID) (Sample, error) {
	var smp Sample
	err := s.db.QueryRow(ctx, `
		SELECT id, booking_id, worker_id, lat, lng, accuracy, heading, speed, recorded_at, is_active
		FROM location_samples
		WHERE booking_id = $1 AND is_active
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1`, string(bookingID),
	).Scan(
		&smp.ID, &smp.BookingID, &smp.WorkerID, &smp.Lat, &smp.Lng, &smp.Accuracy,
		&smp.Heading, &smp.Speed, &smp.Timestamp, &smp.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sample{}, ErrNoSample
	}
	if err != nil {
		return Sample{}, err
	}
	return smp, nil
}
