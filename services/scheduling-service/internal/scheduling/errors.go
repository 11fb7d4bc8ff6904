package scheduling

import (
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
)

var (
	// ErrValidation marks malformed input; it is raised before any store access.
	ErrValidation = errors.New("invalid input")
	// ErrNotFound marks a referenced service, employee, appointment or schedule entry that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a lost booking race, a schedule edit blocked by live bookings or a duplicate date.
	ErrConflict = errors.New("conflict")
	// ErrConfiguration marks missing or malformed business settings.
	ErrConfiguration = errors.New("scheduling not configured")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
}

// ConflictError carries the appointments that block a write so the caller can resolve them.
type ConflictError struct {
	Reason       string
	Appointments []model.Appointment
}

func (e *ConflictError) Error() string {
	if len(e.Appointments) == 0 {
		return e.Reason
	}
	return fmt.Sprintf("%s (%d conflicting appointments)", e.Reason, len(e.Appointments))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func (e *ConflictError) Count() int {
	return len(e.Appointments)
}

func conflict(reason string, appts ...model.Appointment) *ConflictError {
	return &ConflictError{Reason: reason, Appointments: appts}
}

// AsConflict extracts the conflict details from err, wrapping bare ErrConflict values.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	if errors.Is(err, ErrConflict) {
		return &ConflictError{Reason: err.Error()}, true
	}
	return nil, false
}
