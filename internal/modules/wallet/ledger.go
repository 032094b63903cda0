// README: Wallet side-effect contract; completed bookings emit credit events for the ledger service.
package wallet

import (
	"context"
	"errors"
	"log"
	"time"

	"fixit/internal/types"
)

const creditRoutingKey = "wallet.credit"

var ErrInvalidCredit = errors.New("invalid wallet credit")

type Credit struct {
	// EventID is stable per booking so the ledger service can drop redelivered events.
	EventID     string      `json:"event_id"`
	BookingID   types.ID    `json:"booking_id"`
	WorkerID    types.ID    `json:"worker_id"`
	CustomerID  types.ID    `json:"customer_id"`
	Amount      types.Money `json:"amount"`
	CompletedAt time.Time   `json:"completed_at"`
}

// Ledger is the only wallet surface the booking core consumes.
type Ledger interface {
	CreditBookingCompleted(ctx context.Context, c Credit) error
}

type publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// EventLedger publishes credits to the event exchange; the ledger itself lives elsewhere.
type EventLedger struct {
	pub publisher
}

func NewEventLedger(pub publisher) *EventLedger {
	return &EventLedger{pub: pub}
}

func (l *EventLedger) CreditBookingCompleted(ctx context.Context, c Credit) error {
	c, err := normalize(c)
	if err != nil {
		return err
	}
	return l.pub.PublishJSON(ctx, creditRoutingKey, c)
}

// LogLedger records credits in the process log. It is the ledger when no broker is
// configured, so a completed booking always leaves a trace of what it owes.
type LogLedger struct{}

func (LogLedger) CreditBookingCompleted(_ context.Context, c Credit) error {
	c, err := normalize(c)
	if err != nil {
		return err
	}
	log.Printf("wallet credit event=%s booking=%s worker=%s amount=%d currency=%s", c.EventID, c.BookingID, c.WorkerID, c.Amount.Amount, c.Amount.Currency)
	return nil
}

func normalize(c Credit) (Credit, error) {
	if c.BookingID == "" || c.WorkerID == "" || c.Amount.Amount <= 0 {
		return c, ErrInvalidCredit
	}
	if c.EventID == "" {
		c.EventID = "booking-completed:" + string(c.BookingID)
	}
	return c, nil
}
