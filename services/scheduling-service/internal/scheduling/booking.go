package scheduling

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const minCustomerNameLen = 3

// Caller is the already-authenticated identity behind a request.
type Caller struct {
	ID   string
	Role string
}

// Privileged callers are staff and admins; everyone else books as a customer.
func (c Caller) Privileged() bool {
	return c.Role == auth.RoleAdmin || c.Role == auth.RoleStaff
}

type CreateRequest struct {
	ServiceID  string
	Start      time.Time
	Customer   model.Customer
	EmployeeID string
	// IdempotencyKey makes retries of the same booking return the original appointment.
	IdempotencyKey string
}

// CreateAppointment books a new CONFIRMED appointment. Without ServiceID the business default
// service is booked. Without EmployeeID the first free active employee (by id) is assigned;
// with it, that employee is validated.
func (e *Engine) CreateAppointment(ctx context.Context, caller Caller, req CreateRequest) (model.Appointment, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.CreateAppointment",
		trace.WithAttributes(attribute.String("service_id", req.ServiceID)))
	defer span.End()

	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.EmployeeID = strings.TrimSpace(req.EmployeeID)
	req.Customer.Name = strings.TrimSpace(req.Customer.Name)
	req.Customer.Email = strings.TrimSpace(req.Customer.Email)
	req.Customer.Phone = strings.TrimSpace(req.Customer.Phone)
	if req.Start.IsZero() {
		return model.Appointment{}, validationf("start_time is required")
	}
	if len([]rune(req.Customer.Name)) < minCustomerNameLen {
		return model.Appointment{}, validationf("customer name must have at least %d characters", minCustomerNameLen)
	}
	if !caller.Privileged() {
		if req.Customer.Email == "" {
			return model.Appointment{}, validationf("customer email is required")
		}
		if req.Start.Before(e.now()) {
			return model.Appointment{}, validationf("start_time is in the past")
		}
	}
	if req.Customer.UserID == "" && !caller.Privileged() {
		req.Customer.UserID = caller.ID
	}

	var created model.Appointment
	err := e.store.InTx(ctx, func(ctx context.Context, tx Store) error {
		if req.IdempotencyKey != "" {
			existingID, err := tx.ClaimIdempotencyKey(ctx, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if existingID != "" {
				created, err = tx.GetAppointment(ctx, existingID)
				return err
			}
		}

		settings, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		serviceID, isDefault := req.ServiceID, false
		if serviceID == "" {
			if serviceID, err = defaultService(settings); err != nil {
				return err
			}
			isDefault = true
		}
		svc, err := e.bookableService(ctx, tx, serviceID, isDefault)
		if err != nil {
			return err
		}
		if req.EmployeeID != "" {
			if _, err := tx.GetEmployee(ctx, req.EmployeeID); err != nil {
				return err
			}
		}

		slot := availability.Interval{Start: req.Start, End: req.Start.Add(svc.Duration())}
		employeeID, err := e.assign(ctx, tx, settings, slot, req.EmployeeID, "")
		if err != nil {
			return err
		}

		now := e.now().UTC()
		appt := model.Appointment{
			ServiceID:  svc.ID,
			EmployeeID: employeeID,
			Start:      slot.Start,
			End:        slot.End,
			Status:     model.StatusConfirmed,
			Customer:   req.Customer,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.InsertAppointment(ctx, &appt); err != nil {
			return slotTaken(err)
		}
		if err := tx.AppendEvent(ctx, appointmentEvent(EventAppointmentConfirmed, appt, nil)); err != nil {
			return err
		}
		if req.IdempotencyKey != "" {
			if err := tx.CompleteIdempotencyKey(ctx, req.IdempotencyKey, appt.ID); err != nil {
				return err
			}
		}
		created = appt
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return model.Appointment{}, err
	}

	e.InvalidateDates(ctx, model.DateOf(created.Start, e.loc), model.DateOf(created.Start, e.loc))
	e.logger.Info("appointment confirmed",
		"appointment_id", created.ID,
		"employee_id", created.EmployeeID,
		"start_time", created.Start.UTC().Format(time.RFC3339),
	)
	return created, nil
}

// assign validates the slot against the day window and picks an employee. keepID, when set, is
// tried first and the slot falls back to any free employee if keepID cannot take it.
func (e *Engine) assign(ctx context.Context, tx Store, settings model.Settings, slot availability.Interval, preferredID, keepID string, exclude ...string) (string, error) {
	day := model.DateOf(slot.Start, e.loc)
	window, err := e.resolveWindow(ctx, tx, day, settings)
	if err != nil {
		return "", err
	}
	if !window.Admits(slot, e.loc) {
		return "", conflict("requested time is outside opening hours")
	}

	employees, err := tx.ListEmployees(ctx, true)
	if err != nil {
		return "", err
	}
	appts, err := tx.ListAppointments(ctx, AppointmentFilter{
		From:     slot.Start,
		To:       slot.End,
		Statuses: model.BlockingStatuses,
	})
	if err != nil {
		return "", err
	}
	busy := availability.IndexAppointments(appts, exclude...)

	req := availability.AssignRequest{Slot: slot, PreferredID: preferredID, Location: e.loc}
	if preferredID == "" && keepID != "" {
		req.PreferredID = keepID
		if id, err := availability.Assign(req, employees, busy); err == nil {
			return id, nil
		}
		req.PreferredID = ""
	}
	id, err := availability.Assign(req, employees, busy)
	switch {
	case errors.Is(err, availability.ErrPreferredUnavailable):
		return "", conflict("requested employee is not available at that time")
	case err != nil:
		return "", conflict("slot no longer available")
	}
	return id, nil
}

// slotTaken turns a storage-level overlap rejection into the retryable conflict callers expect.
func slotTaken(err error) error {
	if errors.Is(err, ErrConflict) {
		return conflict("slot no longer available")
	}
	return err
}

type RescheduleRequest struct {
	AppointmentID string
	NewStart      time.Time
	// EmployeeID moves the appointment to that employee. When empty the current employee is
	// kept if free, otherwise any free employee is assigned.
	EmployeeID string
	// ServiceID changes the service, and with it the end time.
	ServiceID string
}

func (e *Engine) RescheduleAppointment(ctx context.Context, req RescheduleRequest) (model.Appointment, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.RescheduleAppointment",
		trace.WithAttributes(attribute.String("appointment_id", req.AppointmentID)))
	defer span.End()

	if strings.TrimSpace(req.AppointmentID) == "" {
		return model.Appointment{}, validationf("appointment_id is required")
	}
	if req.NewStart.IsZero() {
		return model.Appointment{}, validationf("start_time is required")
	}

	var before, after model.Appointment
	err := e.store.InTx(ctx, func(ctx context.Context, tx Store) error {
		appt, err := tx.GetAppointment(ctx, req.AppointmentID)
		if err != nil {
			return err
		}
		if appt.Status != model.StatusConfirmed {
			return conflict("only confirmed appointments can be rescheduled")
		}
		before = appt

		settings, err := tx.Settings(ctx)
		if err != nil {
			return err
		}
		serviceID := appt.ServiceID
		if req.ServiceID != "" {
			serviceID = req.ServiceID
		}
		svc, err := tx.GetService(ctx, serviceID)
		if err != nil {
			return err
		}
		if req.EmployeeID != "" {
			if _, err := tx.GetEmployee(ctx, req.EmployeeID); err != nil {
				return err
			}
		}

		slot := availability.Interval{Start: req.NewStart, End: req.NewStart.Add(svc.Duration())}
		employeeID, err := e.assign(ctx, tx, settings, slot, req.EmployeeID, appt.EmployeeID, appt.ID)
		if err != nil {
			return err
		}

		appt.ServiceID = svc.ID
		appt.EmployeeID = employeeID
		appt.Start = slot.Start
		appt.End = slot.End
		appt.ReminderSent = false
		appt.UpdatedAt = e.now().UTC()
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return slotTaken(err)
		}
		after = appt
		return tx.AppendEvent(ctx, appointmentEvent(EventAppointmentRescheduled, appt, map[string]any{
			"previous_start_time":  before.Start.UTC().Format(time.RFC3339),
			"previous_employee_id": before.EmployeeID,
		}))
	})
	if err != nil {
		span.RecordError(err)
		return model.Appointment{}, err
	}

	e.InvalidateDates(ctx, model.DateOf(before.Start, e.loc), model.DateOf(before.Start, e.loc))
	e.InvalidateDates(ctx, model.DateOf(after.Start, e.loc), model.DateOf(after.Start, e.loc))
	e.logger.Info("appointment rescheduled",
		"appointment_id", after.ID,
		"employee_id", after.EmployeeID,
		"start_time", after.Start.UTC().Format(time.RFC3339),
	)
	return after, nil
}

// ReleaseAppointment returns the slot to AVAILABLE and clears the customer. Releasing an
// already released appointment is a no-op.
func (e *Engine) ReleaseAppointment(ctx context.Context, id string) error {
	ctx, span := e.tracer.Start(ctx, "scheduling.ReleaseAppointment",
		trace.WithAttributes(attribute.String("appointment_id", id)))
	defer span.End()

	if strings.TrimSpace(id) == "" {
		return validationf("appointment_id is required")
	}

	var released model.Appointment
	changed := false
	err := e.store.InTx(ctx, func(ctx context.Context, tx Store) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return err
		}
		switch appt.Status {
		case model.StatusAvailable:
			released = appt
			return nil
		case model.StatusCompleted:
			return conflict("completed appointments cannot be released")
		}

		prev := appt.Customer
		appt.Status = model.StatusAvailable
		appt.Customer = model.Customer{}
		appt.ReminderSent = false
		appt.UpdatedAt = e.now().UTC()
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		released, changed = appt, true
		return tx.AppendEvent(ctx, appointmentEvent(EventAppointmentReleased, appt, map[string]any{
			"customer_name":  prev.Name,
			"customer_email": prev.Email,
		}))
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	if changed {
		d := model.DateOf(released.Start, e.loc)
		e.InvalidateDates(ctx, d, d)
		e.logger.Info("appointment released", "appointment_id", released.ID, "employee_id", released.EmployeeID)
	}
	return nil
}

type StatusChange struct {
	AppointmentID string
	Status        model.Status
	// CustomerEmail must match the booking when a customer cancels.
	CustomerEmail string
}

var allowedTransitions = map[model.Status][]model.Status{
	model.StatusConfirmed: {model.StatusCompleted, model.StatusNoShow, model.StatusCancelled},
}

// UpdateStatus moves a confirmed appointment to COMPLETED, NO_SHOW or CANCELLED. Customers may
// only cancel their own bookings. Repeating the current status is a no-op.
func (e *Engine) UpdateStatus(ctx context.Context, caller Caller, req StatusChange) (model.Appointment, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.UpdateStatus",
		trace.WithAttributes(
			attribute.String("appointment_id", req.AppointmentID),
			attribute.String("status", string(req.Status)),
		))
	defer span.End()

	if strings.TrimSpace(req.AppointmentID) == "" {
		return model.Appointment{}, validationf("appointment_id is required")
	}
	if _, ok := model.ParseStatus(string(req.Status)); !ok {
		return model.Appointment{}, validationf("unknown status %q", req.Status)
	}
	if !caller.Privileged() && req.Status != model.StatusCancelled {
		return model.Appointment{}, validationf("customers can only cancel appointments")
	}

	var out model.Appointment
	changed := false
	err := e.store.InTx(ctx, func(ctx context.Context, tx Store) error {
		appt, err := tx.GetAppointment(ctx, req.AppointmentID)
		if err != nil {
			return err
		}
		if !caller.Privileged() && !strings.EqualFold(appt.Customer.Email, strings.TrimSpace(req.CustomerEmail)) {
			return notFound("appointment", req.AppointmentID)
		}
		if appt.Status == req.Status {
			out = appt
			return nil
		}
		if !transitionAllowed(appt.Status, req.Status) {
			return conflict("cannot move appointment from " + string(appt.Status) + " to " + string(req.Status))
		}

		now := e.now().UTC()
		appt.Status = req.Status
		appt.UpdatedAt = now
		if req.Status == model.StatusCancelled {
			appt.CancelledAt = &now
		}
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		out, changed = appt, true

		switch req.Status {
		case model.StatusCompleted:
			return tx.AppendEvent(ctx, appointmentEvent(EventReviewRequested, appt, nil))
		case model.StatusCancelled:
			return tx.AppendEvent(ctx, appointmentEvent(EventAppointmentCancelled, appt, map[string]any{
				"cancelled_by": caller.Role,
			}))
		default:
			return tx.AppendEvent(ctx, appointmentEvent(EventAppointmentNoShow, appt, nil))
		}
	})
	if err != nil {
		span.RecordError(err)
		return model.Appointment{}, err
	}
	if changed && out.Status == model.StatusCancelled {
		d := model.DateOf(out.Start, e.loc)
		e.InvalidateDates(ctx, d, d)
	}
	if changed {
		e.logger.Info("appointment status changed", "appointment_id", out.ID, "status", string(out.Status))
	}
	return out, nil
}

func transitionAllowed(from, to model.Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (e *Engine) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	if strings.TrimSpace(id) == "" {
		return model.Appointment{}, validationf("appointment_id is required")
	}
	return e.store.GetAppointment(ctx, id)
}

// ListAppointments returns appointments intersecting [from, to), for calendar views.
func (e *Engine) ListAppointments(ctx context.Context, from, to time.Time, limit int) ([]model.Appointment, error) {
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		return nil, validationf("to must be after from")
	}
	return e.store.ListAppointments(ctx, AppointmentFilter{From: from, To: to, Limit: clampLimit(limit)})
}

// ListCustomerAppointments returns the caller's own bookings in every status, newest first.
func (e *Engine) ListCustomerAppointments(ctx context.Context, caller Caller, limit int) ([]model.Appointment, error) {
	if strings.TrimSpace(caller.ID) == "" {
		return nil, validationf("customer identity is required")
	}
	return e.store.ListAppointments(ctx, AppointmentFilter{
		CustomerUserID: caller.ID,
		NewestFirst:    true,
		Limit:          clampLimit(limit),
	})
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 200
	case limit > 500:
		return 500
	}
	return limit
}
