// README: Booking error taxonomy; sentinels for errors.Is plus typed errors carrying detail.
package booking

import (
	"errors"
	"fmt"

	"fixit/internal/types"
)

var (
	ErrValidation        = errors.New("invalid booking request")
	ErrNotFound          = errors.New("booking not found")
	ErrConflict          = errors.New("booking state conflict")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrForbidden         = errors.New("actor not allowed on booking")
)

// ConflictError means the stored status no longer matches the caller's expectation.
// The caller should refetch and retry, or report that the booking was already handled.
type ConflictError struct {
	BookingID types.ID
	Expected  Status
	Actual    Status
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("booking %s: expected status %s, found %s", e.BookingID, e.Expected, e.Actual)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// InvalidTransitionError is returned for edges outside AllowedTransitions. Never retried.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
