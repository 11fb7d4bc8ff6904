package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/scheduling"
)

// Repository is the Postgres implementation of scheduling.Store. The zero-transaction value
// runs each call on the pool; InTx hands fn a copy bound to a SERIALIZABLE transaction.
type Repository struct {
	pool   *db.Pool
	q      db.Querier
	inTx   bool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool, q: pool, outbox: outbox.NewRepository()}
}

var _ scheduling.Store = (*Repository)(nil)

func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx scheduling.Store) error) error {
	if r.inTx {
		return fn(ctx, r)
	}
	err := r.pool.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		return fn(ctx, &Repository{pool: r.pool, q: tx, inTx: true, outbox: r.outbox})
	})
	return translate(err)
}

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "23P01", "23505":
		return true
	}
	return false
}

// IsSerialization reports a SERIALIZABLE abort; the caller lost a race and may retry.
func IsSerialization(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// translate maps driver errors onto the scheduling error kinds and leaves everything else,
// including errors already of those kinds, untouched.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case IsConflict(err):
		return fmt.Errorf("%w: %v", scheduling.ErrConflict, err)
	case IsSerialization(err):
		return fmt.Errorf("%w: concurrent update, retry: %v", scheduling.ErrConflict, err)
	}
	return err
}

func notFound(err error, kind, id string) error {
	if IsNotFound(err) {
		return fmt.Errorf("%w: %s %q", scheduling.ErrNotFound, kind, id)
	}
	return translate(err)
}

func dateValue(d model.Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func dateFrom(t time.Time) model.Date {
	return model.Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func nullableDate(d model.Date) any {
	if d.IsZero() {
		return nil
	}
	return dateValue(d)
}

// Settings and business hours.

func (r *Repository) Settings(ctx context.Context) (model.Settings, error) {
	var s model.Settings
	err := r.q.QueryRow(ctx, `
		SELECT version, COALESCE(default_service_id, ''), updated_at
		FROM business_settings
		WHERE id = 1
	`).Scan(&s.Version, &s.DefaultServiceID, &s.UpdatedAt)
	if IsNotFound(err) {
		return model.Settings{}, fmt.Errorf("%w: business settings missing", scheduling.ErrConfiguration)
	}
	if err != nil {
		return model.Settings{}, translate(err)
	}

	hours, err := r.businessHours(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	s.Hours = hours
	return s, nil
}

func (r *Repository) businessHours(ctx context.Context) (model.BusinessHours, error) {
	rows, err := r.q.Query(ctx, `SELECT weekday, open_minute, close_minute FROM business_hours`)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	hours := model.BusinessHours{}
	for rows.Next() {
		var weekday, opens, closes int
		if err := rows.Scan(&weekday, &opens, &closes); err != nil {
			return nil, err
		}
		h := model.DayHours{Open: model.ClockTime(opens), Close: model.ClockTime(closes)}
		if err := h.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", scheduling.ErrConfiguration, model.WeekdayName(time.Weekday(weekday)), err)
		}
		hours[time.Weekday(weekday)] = h
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return hours, nil
}

func (r *Repository) SaveBusinessHours(ctx context.Context, hours model.BusinessHours) (model.Settings, error) {
	if _, err := r.q.Exec(ctx, `DELETE FROM business_hours`); err != nil {
		return model.Settings{}, translate(err)
	}
	for wd, h := range hours {
		if _, err := r.q.Exec(ctx, `
			INSERT INTO business_hours (weekday, open_minute, close_minute)
			VALUES ($1, $2, $3)
		`, int(wd), int(h.Open), int(h.Close)); err != nil {
			return model.Settings{}, translate(err)
		}
	}

	var s model.Settings
	err := r.q.QueryRow(ctx, `
		INSERT INTO business_settings (id, version, updated_at)
		VALUES (1, 1, now())
		ON CONFLICT (id) DO UPDATE
		SET version = business_settings.version + 1,
			updated_at = now()
		RETURNING version, COALESCE(default_service_id, ''), updated_at
	`).Scan(&s.Version, &s.DefaultServiceID, &s.UpdatedAt)
	if err != nil {
		return model.Settings{}, translate(err)
	}
	s.Hours = hours
	return s, nil
}

func (r *Repository) SaveDefaultService(ctx context.Context, serviceID string) (model.Settings, error) {
	var def *string
	if serviceID != "" {
		def = &serviceID
	}
	var s model.Settings
	err := r.q.QueryRow(ctx, `
		INSERT INTO business_settings (id, version, default_service_id, updated_at)
		VALUES (1, 1, $1, now())
		ON CONFLICT (id) DO UPDATE
		SET version = business_settings.version + 1,
			default_service_id = EXCLUDED.default_service_id,
			updated_at = now()
		RETURNING version, COALESCE(default_service_id, ''), updated_at
	`, def).Scan(&s.Version, &s.DefaultServiceID, &s.UpdatedAt)
	if err != nil {
		return model.Settings{}, translate(err)
	}
	if s.Hours, err = r.businessHours(ctx); err != nil {
		return model.Settings{}, err
	}
	return s, nil
}

// SaveSettings is used by the seed tool: it replaces hours and the default service in one go.
func (r *Repository) SaveSettings(ctx context.Context, hours model.BusinessHours, defaultServiceID string) (model.Settings, error) {
	var saved model.Settings
	err := r.InTx(ctx, func(ctx context.Context, tx scheduling.Store) error {
		if _, err := tx.SaveBusinessHours(ctx, hours); err != nil {
			return err
		}
		s, err := tx.SaveDefaultService(ctx, defaultServiceID)
		if err != nil {
			return err
		}
		saved = s
		return nil
	})
	return saved, err
}

// Services and employees.

func (r *Repository) GetService(ctx context.Context, id string) (model.Service, error) {
	var s model.Service
	err := r.q.QueryRow(ctx, `
		SELECT id, name, duration_minutes, is_active
		FROM services
		WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.DurationMinutes, &s.IsActive)
	if err != nil {
		return model.Service{}, notFound(err, "service", id)
	}
	return s, nil
}

func (r *Repository) UpsertService(ctx context.Context, s model.Service) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO services (id, name, duration_minutes, is_active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
			duration_minutes = EXCLUDED.duration_minutes,
			is_active = EXCLUDED.is_active
	`, s.ID, s.Name, s.DurationMinutes, s.IsActive)
	return translate(err)
}

func (r *Repository) GetEmployee(ctx context.Context, id string) (model.Employee, error) {
	var e model.Employee
	err := r.q.QueryRow(ctx, `
		SELECT id, name, email, status
		FROM employees
		WHERE id = $1
	`, id).Scan(&e.ID, &e.Name, &e.Email, &e.Status)
	if err != nil {
		return model.Employee{}, notFound(err, "employee", id)
	}
	employees := []model.Employee{e}
	if err := r.attachSchedules(ctx, employees); err != nil {
		return model.Employee{}, err
	}
	return employees[0], nil
}

func (r *Repository) ListEmployees(ctx context.Context, activeOnly bool) ([]model.Employee, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, name, email, status
		FROM employees
		WHERE NOT $1 OR status = 'ACTIVE'
		ORDER BY id
	`, activeOnly)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var employees []model.Employee
	for rows.Next() {
		var e model.Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.Email, &e.Status); err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	if err := r.attachSchedules(ctx, employees); err != nil {
		return nil, err
	}
	return employees, nil
}

// attachSchedules loads shifts and absences for employees in two queries.
func (r *Repository) attachSchedules(ctx context.Context, employees []model.Employee) error {
	if len(employees) == 0 {
		return nil
	}
	ids := make([]string, len(employees))
	index := make(map[string]int, len(employees))
	for i, e := range employees {
		ids[i] = e.ID
		index[e.ID] = i
		employees[i].Schedule = model.WeeklySchedule{}
	}

	rows, err := r.q.Query(ctx, `
		SELECT employee_id, weekday, start_minute, end_minute
		FROM employee_shifts
		WHERE employee_id = ANY($1)
		ORDER BY employee_id, weekday, start_minute
	`, ids)
	if err != nil {
		return translate(err)
	}
	for rows.Next() {
		var employeeID string
		var weekday, start, end int
		if err := rows.Scan(&employeeID, &weekday, &start, &end); err != nil {
			rows.Close()
			return err
		}
		e := &employees[index[employeeID]]
		wd := time.Weekday(weekday)
		e.Schedule[wd] = append(e.Schedule[wd], model.Shift{Start: model.ClockTime(start), End: model.ClockTime(end)})
	}
	rows.Close()
	if rows.Err() != nil {
		return rows.Err()
	}

	absences, err := r.listAbsences(ctx, ids)
	if err != nil {
		return err
	}
	for _, a := range absences {
		e := &employees[index[a.EmployeeID]]
		e.Absences = append(e.Absences, a)
	}
	return nil
}

// UpsertEmployee replaces the employee row and its weekly shifts.
func (r *Repository) UpsertEmployee(ctx context.Context, e model.Employee) error {
	if err := e.Schedule.Normalize(); err != nil {
		return fmt.Errorf("%w: employee %s: %v", scheduling.ErrValidation, e.ID, err)
	}
	if e.Status == "" {
		e.Status = model.EmployeeActive
	}
	return r.InTx(ctx, func(ctx context.Context, tx scheduling.Store) error {
		q := tx.(*Repository).q
		if _, err := q.Exec(ctx, `
			INSERT INTO employees (id, name, email, status)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name,
				email = EXCLUDED.email,
				status = EXCLUDED.status
		`, e.ID, e.Name, e.Email, string(e.Status)); err != nil {
			return translate(err)
		}
		if _, err := q.Exec(ctx, `DELETE FROM employee_shifts WHERE employee_id = $1`, e.ID); err != nil {
			return translate(err)
		}
		for wd, shifts := range e.Schedule {
			for _, s := range shifts {
				if _, err := q.Exec(ctx, `
					INSERT INTO employee_shifts (employee_id, weekday, start_minute, end_minute)
					VALUES ($1, $2, $3, $4)
				`, e.ID, int(wd), int(s.Start), int(s.End)); err != nil {
					return translate(err)
				}
			}
		}
		return nil
	})
}

// Absences.

func (r *Repository) InsertAbsence(ctx context.Context, a *model.Absence) error {
	a.ID = uuid.NewString()
	_, err := r.q.Exec(ctx, `
		INSERT INTO employee_absences (id, employee_id, start_date, end_date, reason)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ID, a.EmployeeID, dateValue(a.StartDate), dateValue(a.EndDate), a.Reason)
	return translate(err)
}

func (r *Repository) DeleteAbsence(ctx context.Context, id string) (model.Absence, error) {
	var a model.Absence
	var start, end time.Time
	err := r.q.QueryRow(ctx, `
		DELETE FROM employee_absences
		WHERE id = $1
		RETURNING id, employee_id, start_date, end_date, reason
	`, id).Scan(&a.ID, &a.EmployeeID, &start, &end, &a.Reason)
	if err != nil {
		return model.Absence{}, notFound(err, "absence", id)
	}
	a.StartDate, a.EndDate = dateFrom(start), dateFrom(end)
	return a, nil
}

func (r *Repository) ListAbsences(ctx context.Context, employeeID string) ([]model.Absence, error) {
	return r.listAbsences(ctx, []string{employeeID})
}

func (r *Repository) listAbsences(ctx context.Context, employeeIDs []string) ([]model.Absence, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, employee_id, start_date, end_date, reason
		FROM employee_absences
		WHERE employee_id = ANY($1)
		ORDER BY employee_id, start_date
	`, employeeIDs)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []model.Absence
	for rows.Next() {
		var a model.Absence
		var start, end time.Time
		if err := rows.Scan(&a.ID, &a.EmployeeID, &start, &end, &a.Reason); err != nil {
			return nil, err
		}
		a.StartDate, a.EndDate = dateFrom(start), dateFrom(end)
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// Closures and overrides.

func (r *Repository) GetClosure(ctx context.Context, d model.Date) (*model.Closure, error) {
	var c model.Closure
	var date time.Time
	err := r.q.QueryRow(ctx, `
		SELECT id, date, reason, created_at
		FROM closures
		WHERE date = $1
	`, dateValue(d)).Scan(&c.ID, &date, &c.Reason, &c.CreatedAt)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	c.Date = dateFrom(date)
	return &c, nil
}

func (r *Repository) GetOverride(ctx context.Context, d model.Date) (*model.DateOverride, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, date, reason, open_minute, close_minute, created_at
		FROM date_overrides
		WHERE date = $1
	`, dateValue(d))
	if err != nil {
		return nil, translate(err)
	}
	overrides, err := scanOverrides(rows)
	if err != nil || len(overrides) == 0 {
		return nil, err
	}
	return &overrides[0], nil
}

func (r *Repository) ListClosures(ctx context.Context, from, to model.Date) ([]model.Closure, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, date, reason, created_at
		FROM closures
		WHERE ($1::date IS NULL OR date >= $1)
			AND ($2::date IS NULL OR date <= $2)
		ORDER BY date
	`, nullableDate(from), nullableDate(to))
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []model.Closure
	for rows.Next() {
		var c model.Closure
		var date time.Time
		if err := rows.Scan(&c.ID, &date, &c.Reason, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Date = dateFrom(date)
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) ListOverrides(ctx context.Context, from, to model.Date) ([]model.DateOverride, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, date, reason, open_minute, close_minute, created_at
		FROM date_overrides
		WHERE ($1::date IS NULL OR date >= $1)
			AND ($2::date IS NULL OR date <= $2)
		ORDER BY date
	`, nullableDate(from), nullableDate(to))
	if err != nil {
		return nil, translate(err)
	}
	return scanOverrides(rows)
}

func scanOverrides(rows pgx.Rows) ([]model.DateOverride, error) {
	defer rows.Close()
	var out []model.DateOverride
	for rows.Next() {
		var o model.DateOverride
		var date time.Time
		var opens, closes *int
		if err := rows.Scan(&o.ID, &date, &o.Reason, &opens, &closes, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Date = dateFrom(date)
		if opens != nil && closes != nil {
			openAt, closeAt := model.ClockTime(*opens), model.ClockTime(*closes)
			o.Open, o.Close = &openAt, &closeAt
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) InsertClosure(ctx context.Context, c *model.Closure) error {
	c.ID = uuid.NewString()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO closures (id, date, reason, created_at)
		VALUES ($1, $2, $3, $4)
	`, c.ID, dateValue(c.Date), c.Reason, c.CreatedAt)
	return translate(err)
}

func (r *Repository) InsertOverride(ctx context.Context, o *model.DateOverride) error {
	o.ID = uuid.NewString()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	var opens, closes *int
	if o.HasHours() {
		openMin, closeMin := int(*o.Open), int(*o.Close)
		opens, closes = &openMin, &closeMin
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO date_overrides (id, date, reason, open_minute, close_minute, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, o.ID, dateValue(o.Date), o.Reason, opens, closes, o.CreatedAt)
	return translate(err)
}

func (r *Repository) DeleteClosure(ctx context.Context, id string) (model.Closure, error) {
	var c model.Closure
	var date time.Time
	err := r.q.QueryRow(ctx, `
		DELETE FROM closures
		WHERE id = $1
		RETURNING id, date, reason, created_at
	`, id).Scan(&c.ID, &date, &c.Reason, &c.CreatedAt)
	if err != nil {
		return model.Closure{}, notFound(err, "closure", id)
	}
	c.Date = dateFrom(date)
	return c, nil
}

func (r *Repository) DeleteOverride(ctx context.Context, id string) (model.DateOverride, error) {
	rows, err := r.q.Query(ctx, `
		DELETE FROM date_overrides
		WHERE id = $1
		RETURNING id, date, reason, open_minute, close_minute, created_at
	`, id)
	if err != nil {
		return model.DateOverride{}, translate(err)
	}
	overrides, err := scanOverrides(rows)
	if err != nil {
		return model.DateOverride{}, translate(err)
	}
	if len(overrides) == 0 {
		return model.DateOverride{}, fmt.Errorf("%w: override %q", scheduling.ErrNotFound, id)
	}
	return overrides[0], nil
}

// Appointments.

const appointmentColumns = `id, service_id, employee_id, start_time, end_time, status,
	customer_user_id, customer_name, customer_email, customer_phone,
	reminder_sent, cancelled_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status string
	err := row.Scan(
		&a.ID,
		&a.ServiceID,
		&a.EmployeeID,
		&a.Start,
		&a.End,
		&status,
		&a.Customer.UserID,
		&a.Customer.Name,
		&a.Customer.Email,
		&a.Customer.Phone,
		&a.ReminderSent,
		&a.CancelledAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	a.Status = model.Status(status)
	return a, err
}

func (r *Repository) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	if r.inTx {
		query += ` FOR UPDATE`
	}
	a, err := scanAppointment(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return model.Appointment{}, notFound(err, "appointment", id)
	}
	return a, nil
}

func (r *Repository) ListAppointments(ctx context.Context, f scheduling.AppointmentFilter) ([]model.Appointment, error) {
	query, args := appointmentQuery(f)
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func (r *Repository) InsertAppointment(ctx context.Context, a *model.Appointment) error {
	a.ID = uuid.NewString()
	_, err := r.q.Exec(ctx, `
		INSERT INTO appointments
			(id, service_id, employee_id, start_time, end_time, status,
			 customer_user_id, customer_name, customer_email, customer_phone,
			 reminder_sent, cancelled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, a.ID, a.ServiceID, a.EmployeeID, a.Start, a.End, string(a.Status),
		a.Customer.UserID, a.Customer.Name, a.Customer.Email, a.Customer.Phone,
		a.ReminderSent, a.CancelledAt, a.CreatedAt, a.UpdatedAt)
	return translate(err)
}

func (r *Repository) UpdateAppointment(ctx context.Context, a model.Appointment) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE appointments
		SET service_id = $2,
			employee_id = $3,
			start_time = $4,
			end_time = $5,
			status = $6,
			customer_user_id = $7,
			customer_name = $8,
			customer_email = $9,
			customer_phone = $10,
			reminder_sent = $11,
			cancelled_at = $12,
			updated_at = $13
		WHERE id = $1
	`, a.ID, a.ServiceID, a.EmployeeID, a.Start, a.End, string(a.Status),
		a.Customer.UserID, a.Customer.Name, a.Customer.Email, a.Customer.Phone,
		a.ReminderSent, a.CancelledAt, a.UpdatedAt)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: appointment %q", scheduling.ErrNotFound, a.ID)
	}
	return nil
}

// appointmentQuery builds the filtered select; intervals match when they intersect [From, To).
func appointmentQuery(f scheduling.AppointmentFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !f.From.IsZero() {
		where = append(where, "end_time > "+arg(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "start_time < "+arg(f.To))
	}
	if f.EmployeeID != "" {
		where = append(where, "employee_id = "+arg(f.EmployeeID))
	}
	if f.CustomerUserID != "" {
		where = append(where, "customer_user_id = "+arg(f.CustomerUserID))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	if f.NewestFirst {
		query += ` ORDER BY start_time DESC, id DESC`
	} else {
		query += ` ORDER BY start_time, id`
	}
	if f.Limit > 0 {
		query += ` LIMIT ` + arg(f.Limit)
	}
	return query, args
}

// Idempotency keys.

func (r *Repository) ClaimIdempotencyKey(ctx context.Context, key string) (string, error) {
	if _, err := r.q.Exec(ctx, `
		INSERT INTO idempotency_keys (idempotency_key)
		VALUES ($1)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, key); err != nil {
		return "", translate(err)
	}
	var appointmentID string
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(appointment_id, '')
		FROM idempotency_keys
		WHERE idempotency_key = $1
		FOR UPDATE
	`, key).Scan(&appointmentID)
	return appointmentID, translate(err)
}

func (r *Repository) CompleteIdempotencyKey(ctx context.Context, key, appointmentID string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE idempotency_keys
		SET appointment_id = $2,
			updated_at = now()
		WHERE idempotency_key = $1
	`, key, appointmentID)
	return translate(err)
}

// AppendEvent writes evt to the outbox in the current transaction.
func (r *Repository) AppendEvent(ctx context.Context, evt scheduling.Event) error {
	row, err := outbox.NewEvent(evt.AggregateType, evt.AggregateID, evt.Type, evt.Payload)
	if err != nil {
		return err
	}
	return translate(r.outbox.Insert(ctx, r.q, row))
}
