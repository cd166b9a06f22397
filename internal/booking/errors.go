package booking

import (
	"errors"
	"fmt"

	"agenda/internal/db"
	"agenda/internal/slots"
)

// ConfigurationError reports a misconfigured schedule. It is surfaced to the
// administrator, never to the booking client.
type ConfigurationError = slots.ConfigurationError

var (
	// ErrConflict means the window was taken between query and commit. The
	// caller should recompute availability and let the user pick again.
	ErrConflict = errors.New("the selected time is no longer available")
	// ErrStoreUnavailable wraps store failures; it is never reported as an empty result.
	ErrStoreUnavailable = errors.New("booking store unavailable")
	ErrNotFound         = errors.New("reservation not found")
	// ErrRescheduleDisabled is returned to clients when self-reschedule is turned off.
	ErrRescheduleDisabled = errors.New("rescheduling by clients is disabled")
	ErrBlockedClient      = errors.New("this phone number cannot book appointments")
)

// ValidationError reports a bad request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// storeError translates a store error into the booking taxonomy.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrConflict):
		return ErrConflict
	case errors.Is(err, db.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, db.ErrDuplicate):
		return invalid("phone_number", "is already registered")
	default:
		return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
	}
}
