package scheduling

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
)

// Store is the persistence port of the engine. Implementations translate their own errors
// into ErrNotFound, ErrConflict and ErrConfiguration.
//
// InsertAppointment and UpdateAppointment must reject, with ErrConflict, any write that would
// leave two blocking appointments of one employee overlapping. InsertClosure and
// InsertOverride must reject a second entry for the same date with ErrConflict.
type Store interface {
	// InTx runs fn against a transactional view of the store. Reads made through tx are
	// isolated from concurrent writers until fn returns.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// Settings returns ErrConfiguration when the business has not been configured yet.
	Settings(ctx context.Context) (model.Settings, error)
	// SaveBusinessHours replaces the weekly hours and returns the new settings version.
	SaveBusinessHours(ctx context.Context, hours model.BusinessHours) (model.Settings, error)
	// SaveDefaultService records the service booked when a request names none, creating the
	// settings row if needed, and returns the new settings version.
	SaveDefaultService(ctx context.Context, serviceID string) (model.Settings, error)

	GetService(ctx context.Context, id string) (model.Service, error)
	GetEmployee(ctx context.Context, id string) (model.Employee, error)
	// ListEmployees returns employees with schedules and absences, ordered by id.
	ListEmployees(ctx context.Context, activeOnly bool) ([]model.Employee, error)

	InsertAbsence(ctx context.Context, a *model.Absence) error
	DeleteAbsence(ctx context.Context, id string) (model.Absence, error)
	ListAbsences(ctx context.Context, employeeID string) ([]model.Absence, error)

	// GetClosure and GetOverride return nil without error when the date has no entry.
	GetClosure(ctx context.Context, d model.Date) (*model.Closure, error)
	GetOverride(ctx context.Context, d model.Date) (*model.DateOverride, error)
	// ListClosures and ListOverrides treat a zero bound as unbounded.
	ListClosures(ctx context.Context, from, to model.Date) ([]model.Closure, error)
	ListOverrides(ctx context.Context, from, to model.Date) ([]model.DateOverride, error)
	InsertClosure(ctx context.Context, c *model.Closure) error
	InsertOverride(ctx context.Context, o *model.DateOverride) error
	DeleteClosure(ctx context.Context, id string) (model.Closure, error)
	DeleteOverride(ctx context.Context, id string) (model.DateOverride, error)

	// GetAppointment locks the row for the rest of the transaction when called through InTx.
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]model.Appointment, error)
	InsertAppointment(ctx context.Context, a *model.Appointment) error
	UpdateAppointment(ctx context.Context, a model.Appointment) error

	// ClaimIdempotencyKey locks key and returns the appointment id stored under it, or "" when
	// the key is new.
	ClaimIdempotencyKey(ctx context.Context, key string) (string, error)
	CompleteIdempotencyKey(ctx context.Context, key, appointmentID string) error

	AppendEvent(ctx context.Context, evt Event) error
}

// AppointmentFilter selects appointments whose interval intersects [From, To). Zero bounds are
// unbounded; empty EmployeeID, CustomerUserID and Statuses match everything. Results are ordered
// by start then id, reversed when NewestFirst is set.
type AppointmentFilter struct {
	From           time.Time
	To             time.Time
	EmployeeID     string
	CustomerUserID string
	Statuses       []model.Status
	NewestFirst    bool
	Limit          int
}

// Event is a domain event recorded in the same transaction as the change that caused it.
type Event struct {
	AggregateType string
	AggregateID   string
	Type          string
	Payload       map[string]any
}

// Cache stores computed availability per (date, duration). Implementations must be safe for
// concurrent use; a nil Cache disables caching.
//
// Every invalidation of a date advances its generation. A miss returns the generation seen, and
// Set discards the entry when the date was invalidated since, so a reader that computed from
// data older than a concurrent write cannot publish it.
type Cache interface {
	Get(ctx context.Context, d model.Date, minutes int) (times []string, gen int64, ok bool)
	Set(ctx context.Context, d model.Date, minutes int, gen int64, times []string)
	InvalidateDates(ctx context.Context, dates ...model.Date)
	InvalidateAll(ctx context.Context)
}
