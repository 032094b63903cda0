// README: Notification dispatch contract plus log and AMQP implementations.
package notification

import (
	"context"
	"errors"
	"log"

	"fixit/internal/types"
)

const (
	TypeBookingCreated   = "booking_created"
	TypeBookingRequest   = "booking_request"
	TypeBookingAssigned  = "booking_assigned"
	TypeBookingStarted   = "booking_started"
	TypeBookingCompleted = "booking_completed"
	TypeBookingCancelled = "booking_cancelled"
)

var ErrMissingUser = errors.New("notification has no recipient")

type Notification struct {
	UserID  types.ID          `json:"user_id"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Type    string            `json:"type"`
	Data    map[string]string `json:"data,omitempty"`
}

// Dispatcher delivers a notification. Callers treat it as fire-and-forget:
// errors are logged, never propagated into booking results.
type Dispatcher interface {
	Notify(ctx context.Context, n Notification) error
}

// LogDispatcher only writes notifications to the log; used for local runs.
type LogDispatcher struct{}

func (LogDispatcher) Notify(_ context.Context, n Notification) error {
	if n.UserID == "" {
		return ErrMissingUser
	}
	log.Printf("notify user=%s type=%s title=%q", n.UserID, n.Type, n.Title)
	return nil
}

type publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// AMQPDispatcher hands notifications to an external notification service through
// the event exchange, routed as notify.<type>.
type AMQPDispatcher struct {
	pub publisher
}

func NewAMQPDispatcher(pub publisher) *AMQPDispatcher {
	return &AMQPDispatcher{pub: pub}
}

func (d *AMQPDispatcher) Notify(ctx context.Context, n Notification) error {
	if n.UserID == "" {
		return ErrMissingUser
	}
	return d.pub.PublishJSON(ctx, "notify."+n.Type, n)
}
