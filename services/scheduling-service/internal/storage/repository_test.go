package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/scheduling"
)

func TestTranslate(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{&pgconn.PgError{Code: "23P01"}, scheduling.ErrConflict},
		{&pgconn.PgError{Code: "23505"}, scheduling.ErrConflict},
		{fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}), scheduling.ErrConflict},
	}
	for _, tc := range cases {
		if got := translate(tc.err); !errors.Is(got, tc.want) {
			t.Fatalf("translate(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}

	other := errors.New("boom")
	if translate(other) != other {
		t.Fatal("unrelated errors must pass through")
	}
	if translate(nil) != nil {
		t.Fatal("nil must stay nil")
	}
	if err := notFound(pgx.ErrNoRows, "service", "s1"); !errors.Is(err, scheduling.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDateConversion(t *testing.T) {
	d := model.Date{Year: 2030, Month: time.June, Day: 3}
	if got := dateFrom(dateValue(d)); got != d {
		t.Fatalf("round trip gave %v", got)
	}
	if nullableDate(model.Date{}) != nil {
		t.Fatal("zero date must be sent as NULL")
	}
}

func TestAppointmentQuery(t *testing.T) {
	from := time.Date(2030, time.June, 3, 0, 0, 0, 0, time.UTC)
	query, args := appointmentQuery(scheduling.AppointmentFilter{
		From:       from,
		To:         from.Add(24 * time.Hour),
		EmployeeID: "emp-a",
		Statuses:   model.BlockingStatuses,
		Limit:      10,
	})
	for _, want := range []string{"end_time > $1", "start_time < $2", "employee_id = $3", "status = ANY($4)", "LIMIT $5"} {
		if !strings.Contains(query, want) {
			t.Fatalf("query missing %q:\n%s", want, query)
		}
	}
	if len(args) != 5 {
		t.Fatalf("expected 5 args, got %d", len(args))
	}
	if statuses, ok := args[3].([]string); !ok || len(statuses) != 2 {
		t.Fatalf("statuses should be sent as a text array, got %#v", args[3])
	}

	if !strings.HasSuffix(query, "ORDER BY start_time, id LIMIT $5") {
		t.Fatalf("expected ascending order:\n%s", query)
	}

	mine, args := appointmentQuery(scheduling.AppointmentFilter{CustomerUserID: "user-1", NewestFirst: true})
	if !strings.Contains(mine, "WHERE customer_user_id = $1") || !strings.Contains(mine, "ORDER BY start_time DESC, id DESC") {
		t.Fatalf("unexpected customer query:\n%s", mine)
	}
	if len(args) != 1 || args[0] != "user-1" {
		t.Fatalf("unexpected args %v", args)
	}

	bare, args := appointmentQuery(scheduling.AppointmentFilter{})
	if strings.Contains(bare, "WHERE") || len(args) != 0 {
		t.Fatalf("empty filter should select everything: %s %v", bare, args)
	}
}

// TestRepositoryAgainstPostgres runs when SCHEDULING_TEST_DATABASE_URL points at a scratch
// database; the schema is (re)applied from migrations.
func TestRepositoryAgainstPostgres(t *testing.T) {
	dsn := os.Getenv("SCHEDULING_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SCHEDULING_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer pool.Close()

	schema, err := os.ReadFile("../../migrations/0001_init.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS inbox_events, outbox_events, idempotency_keys, appointments,
		date_overrides, closures, employee_absences, employee_shifts, employees, services, business_hours, business_settings CASCADE`); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := NewRepository(pool)
	nine, five := model.NewClock(9, 0), model.NewClock(17, 0)
	if _, err := repo.SaveSettings(ctx, model.BusinessHours{time.Monday: {Open: nine, Close: five}}, ""); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	if err := repo.UpsertService(ctx, model.Service{ID: "svc-60", Name: "Consultation", DurationMinutes: 60, IsActive: true}); err != nil {
		t.Fatalf("UpsertService: %v", err)
	}
	if err := repo.UpsertEmployee(ctx, model.Employee{
		ID:       "emp-a",
		Name:     "Alice",
		Schedule: model.WeeklySchedule{time.Monday: {{Start: nine, End: five}}},
	}); err != nil {
		t.Fatalf("UpsertEmployee: %v", err)
	}

	monday := model.Date{Year: 2030, Month: time.June, Day: 3}
	engine := scheduling.New(repo, scheduling.Config{Location: time.UTC, Now: func() time.Time {
		return time.Date(2030, time.June, 1, 8, 0, 0, 0, time.UTC)
	}})

	times, err := engine.GetAvailability(ctx, scheduling.AvailabilityQuery{Date: monday, ServiceID: "svc-60"})
	if err != nil || len(times) != 29 {
		t.Fatalf("expected 29 slots, got %d, %v", len(times), err)
	}

	start := monday.At(model.NewClock(10, 0), time.UTC)
	admin := scheduling.Caller{Role: "admin"}
	appt, err := engine.CreateAppointment(ctx, admin, scheduling.CreateRequest{
		ServiceID: "svc-60", Start: start, Customer: model.Customer{Name: "Ada Lovelace"},
	})
	if err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}

	overlap := model.Appointment{
		ServiceID: "svc-60", EmployeeID: "emp-a", Start: start.Add(30 * time.Minute), End: start.Add(90 * time.Minute),
		Status: model.StatusConfirmed, CreatedAt: start, UpdatedAt: start,
	}
	if err := repo.InsertAppointment(ctx, &overlap); !errors.Is(err, scheduling.ErrConflict) {
		t.Fatalf("exclusion constraint should reject the overlap, got %v", err)
	}

	_, err = engine.ProposeClosure(ctx, scheduling.ClosureRequest{Date: monday})
	if ce, ok := scheduling.AsConflict(err); !ok || ce.Count() != 1 || ce.Appointments[0].ID != appt.ID {
		t.Fatalf("expected closure conflict on %s, got %v", appt.ID, err)
	}
}
