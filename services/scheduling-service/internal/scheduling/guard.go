package scheduling

import (
	"context"
	"strings"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Schedule edits below share one shape: inside a single transaction, collect the live
// appointments the edit would orphan, reject with the full list if there are any, and write
// otherwise.

type ClosureRequest struct {
	Date   model.Date
	Reason string
}

// ProposeClosure closes a whole date unless live appointments exist on it.
func (e *Engine) ProposeClosure(ctx context.Context, req ClosureRequest) (model.Closure, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.ProposeClosure",
		trace.WithAttributes(attribute.String("date", req.Date.String())))
	defer span.End()

	if req.Date.IsZero() {
		return model.Closure{}, validationf("date is required")
	}

	closure := model.Closure{Date: req.Date, Reason: strings.TrimSpace(req.Reason)}
	err := e.store.InTx(ctx, func(ctx context.Context, tx Store) error {
		if err := e.ensureDateFree(ctx, tx, req.Date); err != nil {
			return err
		}
		from, to := e.dayBounds(req.Date)
		appts, err := tx.ListAppointments(ctx, AppointmentFilter{From: from, To: to, Statuses: model.LiveStatuses})
		if err != nil {
			return err
		}
		if len(appts) > 0 {
			return conflict("appointments exist on "+req.Date.String(), appts...)
		}

		closure.CreatedAt = e.now().UTC()
		if err := tx.InsertClosure(ctx, &closure); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, scheduleEvent(EventClosureCreated, closure.ID, map[string]any{
			"date":   closure.Date.String(),
			"reason": closure.Reason,
		}))
	})
	if err != nil {
		e.logGuardRejection("closure rejected", req.Date, err)
		span.RecordError(err)
		return model.Closure{}, err
	}
	e.InvalidateDates(ctx, req.Date, req.Date)
	e.logger.Info("closure created", "closure_id", closure.ID, "date", closure.Date.String())
	return closure, nil
}

type OverrideRequest struct {
	Date   model.Date
	Reason string
	// Open and Close are both set for special hours or both nil for a note-only override.
	Open  *model.ClockTime
	Close *model.ClockTime
}

// ProposeOverride sets special hours (or a note) for a date unless live appointments would fall
// outside the resulting window.
func (e *Engine) ProposeOverride(ctx context.Context, req OverrideRequest) (model.DateOverride, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.ProposeOverride",
		trace.WithAttributes(attribute.String("date", req.Date.String())))
	defer span.End()

	if req.Date.IsZero() {
		return model.DateOverride{}, validationf("date is required")
	}
	if (req.Open == nil) != (req.Close == nil) {
		return model.DateOverride{}, validationf("open_time and close_time must be given together")
	}
	if req.Open != nil {
		if err := (model.DayHours{Open: *req.Open, Close: *req.Close}).Validate(); err != nil {
			return model.DateOverride{}, validationf("%v", err)
		}
	}

	override := model.DateOverride{
		Date:   req.Date,
		Reason: strings.TrimSpace(req.Reason),
		Open:   req.Open,
		Close:  req.Close,
	}
	err := e.store.InTx(ctx, func(ctx context.Context, tx Store) error {
		if err := e.ensureDateFree(ctx, tx, req.Date); err != nil {
			return err
		}

		var hours model.BusinessHours
		if !override.HasHours() {
			settings, err := tx.Settings(ctx)
			if err != nil {
				return err
			}
			hours = settings.Hours
		}
		window := availability.ResolveWindow(req.Date, availability.DayConfig{Hours: hours, Override: &override})

		from, to := e.dayBounds(req.Date)
		appts, err := tx.ListAppointments(ctx, AppointmentFilter{From: from, To: to, Statuses: model.LiveStatuses})
		if err != nil {
			return err
		}
		if outside := e.outsideWindow(window, appts); len(outside) > 0 {
			return conflict("appointments fall outside the new hours on "+req.Date.String(), outside...)
		}

		override.CreatedAt = e.now().UTC()
		if err := tx.InsertOverride(ctx, &override); err != nil {
			return err
		}
		payload := map[string]any{"date": override.Date.String(), "reason": override.Reason}
		if override.HasHours() {
			payload["open_time"] = override.Open.String()
			payload["close_time"] = override.Close.String()
		}
		return tx.AppendEvent(ctx, scheduleEvent(EventOverrideCreated, override.ID, payload))
	})
	if err != nil {
		e.logGuardRejection("override rejected", req.Date, err)
		span.RecordError(err)
		return model.DateOverride{}, err
	}
	e.InvalidateDates(ctx, req.Date, req.Date)
	e.logger.Info("override created", "override_id", override.ID, "date", override.Date.String())
	return override, nil
}

// ensureDateFree enforces one closure or override per date across both kinds.
func (e *Engine) ensureDateFree(ctx context.Context, tx Store, d model.Date) error {
	closure, err := tx.GetClosure(ctx, d)
	if err != nil {
		return err
	}
	if closure != nil {
		return conflict(d.String() + " is already closed")
	}
	override, err := tx.GetOverride(ctx, d)
	if err != nil {
		return err
	}
	if override != nil {
		return conflict(d.String() + " already has special hours")
	}
	return nil
}

func (e *Engine) outsideWindow(window availability.Window, appts []model.Appointment) []model.Appointment {
	var out []model.Appointment
	for _, a := range appts {
		if !window.Admits(availability.Interval{Start: a.Start, End: a.End}, e.loc) {
			out = append(out, a)
		}
	}
	return out
}

type AbsenceRequest struct {
	EmployeeID string
	StartDate  model.Date
	EndDate    model.Date
	Reason     string
}

// ProposeAbsence records whole-day leave for an employee unless they hold live appointments
// on any of those days.
func (e *Engine) ProposeAbsence(ctx context.Context, req AbsenceRequest) (model.Absence, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.ProposeAbsence",
		trace.WithAttributes(attribute.String("employee_id", req.EmployeeID)))
	defer span.End()

	req.EmployeeID = strings.TrimSpace(req.EmployeeID)
	if req.EmployeeID == "" {
		return model.Absence{}, validationf("employee_id is required")
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return model.Absence{}, validationf("start_date and end_date are required")
	}
	if req.EndDate.Before(req.StartDate) {
		return model.Absence{}, validationf("end_date must not be before start_date")
	}

	absence := model.Absence{
		EmployeeID: req.EmployeeID,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Reason:     strings.TrimSpace(req.Reason),
	}
	err := e.store.InTx(ctx, func(ctx context.Context, tx Store) error {
		if _, err := tx.GetEmployee(ctx, req.EmployeeID); err != nil {
			return err
		}
		from, _ := e.dayBounds(req.StartDate)
		_, to := e.dayBounds(req.EndDate)
		appts, err := tx.ListAppointments(ctx, AppointmentFilter{
			From:       from,
			To:         to,
			EmployeeID: req.EmployeeID,
			Statuses:   model.LiveStatuses,
		})
		if err != nil {
			return err
		}
		if len(appts) > 0 {
			return conflict("employee has appointments during the absence", appts...)
		}
		if err := tx.InsertAbsence(ctx, &absence); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, scheduleEvent(EventAbsenceCreated, absence.ID, map[string]any{
			"employee_id": absence.EmployeeID,
			"start_date":  absence.StartDate.String(),
			"end_date":    absence.EndDate.String(),
		}))
	})
	if err != nil {
		e.logGuardRejection("absence rejected", req.StartDate, err)
		span.RecordError(err)
		return model.Absence{}, err
	}
	e.InvalidateDates(ctx, absence.StartDate, absence.EndDate)
	e.logger.Info("absence created", "absence_id", absence.ID, "employee_id", absence.EmployeeID)
	return absence, nil
}

// ProposeBusinessHours replaces the weekly hours unless a live appointment from now on would
// fall outside its new day window. Dates with a closure or an hours override keep their own
// window and are not affected.
func (e *Engine) ProposeBusinessHours(ctx context.Context, hours model.BusinessHours) (model.Settings, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.ProposeBusinessHours")
	defer span.End()

	if hours == nil {
		return model.Settings{}, validationf("business hours are required")
	}
	if err := hours.Validate(); err != nil {
		return model.Settings{}, validationf("%v", err)
	}

	var saved model.Settings
	err := e.store.InTx(ctx, func(ctx context.Context, tx Store) error {
		now := e.now()
		today := model.DateOf(now, e.loc)
		appts, err := tx.ListAppointments(ctx, AppointmentFilter{From: now, Statuses: model.LiveStatuses})
		if err != nil {
			return err
		}

		overrides, err := tx.ListOverrides(ctx, today, model.Date{})
		if err != nil {
			return err
		}
		byDate := make(map[model.Date]*model.DateOverride, len(overrides))
		for i := range overrides {
			byDate[overrides[i].Date] = &overrides[i]
		}
		closures, err := tx.ListClosures(ctx, today, model.Date{})
		if err != nil {
			return err
		}
		closed := make(map[model.Date]bool, len(closures))
		for _, c := range closures {
			closed[c.Date] = true
		}

		var outside []model.Appointment
		for _, a := range appts {
			d := model.DateOf(a.Start, e.loc)
			if closed[d] {
				continue
			}
			window := availability.ResolveWindow(d, availability.DayConfig{Hours: hours, Override: byDate[d]})
			if window.Source == availability.SourceOverride {
				continue
			}
			if !window.Admits(availability.Interval{Start: a.Start, End: a.End}, e.loc) {
				outside = append(outside, a)
			}
		}
		if len(outside) > 0 {
			return conflict("appointments fall outside the new business hours", outside...)
		}

		saved, err = tx.SaveBusinessHours(ctx, hours)
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, scheduleEvent(EventBusinessHoursChanged, "business_hours", map[string]any{
			"version": saved.Version,
		}))
	})
	if err != nil {
		e.logGuardRejection("business hours rejected", e.Today(), err)
		span.RecordError(err)
		return model.Settings{}, err
	}
	e.invalidateAll(ctx)
	e.logger.Info("business hours updated", "version", saved.Version)
	return saved, nil
}

func (e *Engine) logGuardRejection(msg string, d model.Date, err error) {
	if ce, ok := AsConflict(err); ok {
		e.logger.Warn(msg, "date", d.String(), "reason", ce.Reason, "conflicts", ce.Count())
	}
}

func (e *Engine) ListClosures(ctx context.Context, from, to model.Date) ([]model.Closure, error) {
	return e.store.ListClosures(ctx, from, to)
}

func (e *Engine) ListOverrides(ctx context.Context, from, to model.Date) ([]model.DateOverride, error) {
	return e.store.ListOverrides(ctx, from, to)
}

func (e *Engine) ListAbsences(ctx context.Context, employeeID string) ([]model.Absence, error) {
	if strings.TrimSpace(employeeID) == "" {
		return nil, validationf("employee_id is required")
	}
	if _, err := e.store.GetEmployee(ctx, employeeID); err != nil {
		return nil, err
	}
	return e.store.ListAbsences(ctx, employeeID)
}

func (e *Engine) DeleteClosure(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return validationf("id is required")
	}
	c, err := e.store.DeleteClosure(ctx, id)
	if err != nil {
		return err
	}
	e.InvalidateDates(ctx, c.Date, c.Date)
	e.logger.Info("closure deleted", "closure_id", id, "date", c.Date.String())
	return nil
}

func (e *Engine) DeleteOverride(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return validationf("id is required")
	}
	o, err := e.store.DeleteOverride(ctx, id)
	if err != nil {
		return err
	}
	e.InvalidateDates(ctx, o.Date, o.Date)
	e.logger.Info("override deleted", "override_id", id, "date", o.Date.String())
	return nil
}

func (e *Engine) DeleteAbsence(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return validationf("id is required")
	}
	a, err := e.store.DeleteAbsence(ctx, id)
	if err != nil {
		return err
	}
	e.InvalidateDates(ctx, a.StartDate, a.EndDate)
	e.logger.Info("absence deleted", "absence_id", id, "employee_id", a.EmployeeID)
	return nil
}
