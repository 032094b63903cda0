// README: Booking store interface and its PostgreSQL implementation (CAS via conditional UPDATE).
package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fixit/internal/types"
)

// TransitionRequest is a compare-and-swap status update: it applies only while the
// stored status equals From.
type TransitionRequest struct {
	ID        types.ID
	From      Status
	To        Status
	WorkerID  *types.ID
	FinalCost *types.Money
	Entry     HistoryEntry
}

type Store interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id types.ID) (*Booking, error)
	// Transition returns *ConflictError when the stored status differs from req.From
	// and ErrNotFound when the booking does not exist.
	Transition(ctx context.Context, req TransitionRequest) (*Booking, error)
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *PostgresStore) Create(ctx context.Context, b *Booking) error {
	if len(b.StatusHistory) != 1 {
		return fmt.Errorf("create booking %s: want exactly one history entry, got %d", b.ID, len(b.StatusHistory))
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var lat, lng *float64
	if b.Geo != nil {
		lat, lng = &b.Geo.Lat, &b.Geo.Lng
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO bookings (
			id, customer_id, worker_id, service_type, address,
			geo_lat, geo_lng, status, status_version, scheduled_at,
			estimated_cost, final_cost, currency, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15
		)`,
		string(b.ID),
		string(b.CustomerID),
		idPtr(b.WorkerID),
		b.ServiceType,
		b.Address,
		lat, lng,
		string(b.Status),
		b.StatusVersion,
		b.ScheduledAt,
		b.EstimatedCost.Amount,
		amountPtr(b.FinalCost),
		currencyOf(b.EstimatedCost),
		b.CreatedAt,
		b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	if err := appendHistory(ctx, tx, b.ID, b.StatusHistory[0]); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Get(ctx context.Context, id types.ID) (*Booking, error) {
	return getBooking(ctx, s.db, id)
}

func (s *PostgresStore) Transition(ctx context.Context, req TransitionRequest) (*Booking, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE bookings
		SET status = $1,
		    status_version = status_version + 1,
		    worker_id = COALESCE($2, worker_id),
		    final_cost = COALESCE($3, final_cost),
		    updated_at = $4
		WHERE id = $5 AND status = $6`,
		string(req.To),
		idPtr(req.WorkerID),
		amountPtr(req.FinalCost),
		req.Entry.CreatedAt,
		string(req.ID),
		string(req.From),
	)
	if err != nil {
		return nil, fmt.Errorf("update booking status: %w", err)
	}
	if tag.RowsAffected() != 1 {
		var actual string
		err := tx.QueryRow(ctx, `SELECT status FROM bookings WHERE id = $1`, string(req.ID)).Scan(&actual)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return nil, &ConflictError{BookingID: req.ID, Expected: req.From, Actual: Status(actual)}
	}
	if err := appendHistory(ctx, tx, req.ID, req.Entry); err != nil {
		return nil, err
	}
	b, err := getBooking(ctx, tx, req.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func appendHistory(ctx context.Context, tx pgx.Tx, id types.ID, e HistoryEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO booking_status_history (
			booking_id, status, actor_type, actor_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(id),
		string(e.Status),
		e.ActorType,
		idPtr(e.ActorID),
		e.Details,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append booking history: %w", err)
	}
	return nil
}

func getBooking(ctx context.Context, q querier, id types.ID) (*Booking, error) {
	row := q.QueryRow(ctx, `
		SELECT id, customer_id, worker_id, service_type, address,
		       geo_lat, geo_lng, status, status_version, scheduled_at,
		       estimated_cost, final_cost, currency, created_at, updated_at
		FROM bookings
		WHERE id = $1`, string(id),
	)

	var b Booking
	var workerID *string
	var lat, lng *float64
	var finalCost *int64
	var currency string
	err := row.Scan(
		&b.ID, &b.CustomerID, &workerID, &b.ServiceType, &b.Address,
		&lat, &lng, &b.Status, &b.StatusVersion, &b.ScheduledAt,
		&b.EstimatedCost.Amount, &finalCost, &currency, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if workerID != nil {
		w := types.ID(*workerID)
		b.WorkerID = &w
	}
	if lat != nil && lng != nil {
		b.Geo = &types.Point{Lat: *lat, Lng: *lng}
	}
	b.EstimatedCost.Currency = currency
	if finalCost != nil {
		b.FinalCost = &types.Money{Amount: *finalCost, Currency: currency}
	}

	rows, err := q.Query(ctx, `
		SELECT status, actor_type, actor_id, details, created_at
		FROM booking_status_history
		WHERE booking_id = $1
		ORDER BY id ASC`, string(id),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var e HistoryEntry
		var actorID *string
		if err := rows.Scan(&e.Status, &e.ActorType, &actorID, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actorID != nil {
			a := types.ID(*actorID)
			e.ActorID = &a
		}
		b.StatusHistory = append(b.StatusHistory, e)
	}
	return &b, rows.Err()
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func amountPtr(v *types.Money) *int64 {
	if v == nil {
		return nil
	}
	n := v.Amount
	return &n
}

func currencyOf(m types.Money) string {
	if m.Currency == "" {
		return types.DefaultCurrency
	}
	return m.Currency
}
