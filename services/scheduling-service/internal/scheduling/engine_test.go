package scheduling_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/scheduling"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/scheduling/schedtest"
)

var (
	monday = model.Date{Year: 2030, Month: time.June, Day: 3}
	now    = time.Date(2030, time.June, 1, 8, 0, 0, 0, time.UTC)
	admin  = scheduling.Caller{ID: "admin-1", Role: auth.RoleAdmin}
	guest  = scheduling.Caller{Role: auth.RoleCustomer}
)

func clock(t *testing.T, s string) model.ClockTime {
	t.Helper()
	c, err := model.ParseClock(s)
	if err != nil {
		t.Fatalf("ParseClock(%q): %v", s, err)
	}
	return c
}

func at(t *testing.T, d model.Date, s string) time.Time {
	t.Helper()
	return d.At(clock(t, s), time.UTC)
}

type fixture struct {
	engine *scheduling.Engine
	store  *schedtest.MemStore
	cache  *schedtest.MemCache
}

func newFixture(t *testing.T, employees ...string) fixture {
	t.Helper()
	store := schedtest.NewMemStore()
	store.PutSettings(model.BusinessHours{
		time.Monday:  {Open: clock(t, "09:00"), Close: clock(t, "17:00")},
		time.Tuesday: {Open: clock(t, "09:00"), Close: clock(t, "17:00")},
	})
	store.PutService(model.Service{ID: "svc-60", Name: "Consultation", DurationMinutes: 60, IsActive: true})
	store.PutService(model.Service{ID: "svc-30", Name: "Check-up", DurationMinutes: 30, IsActive: true})
	store.PutService(model.Service{ID: "svc-old", Name: "Retired", DurationMinutes: 30})
	for _, id := range employees {
		store.PutEmployee(model.Employee{
			ID:     id,
			Name:   id,
			Status: model.EmployeeActive,
			Schedule: model.WeeklySchedule{
				time.Monday:  {{Start: clock(t, "09:00"), End: clock(t, "17:00")}},
				time.Tuesday: {{Start: clock(t, "09:00"), End: clock(t, "17:00")}},
			},
		})
	}
	cache := schedtest.NewMemCache()
	engine := scheduling.New(store, scheduling.Config{
		Location: time.UTC,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Cache:    cache,
		Now:      func() time.Time { return now },
	})
	return fixture{engine: engine, store: store, cache: cache}
}

func (f fixture) book(t *testing.T, serviceID string, start time.Time) model.Appointment {
	t.Helper()
	appt, err := f.engine.CreateAppointment(context.Background(), admin, scheduling.CreateRequest{
		ServiceID: serviceID,
		Start:     start,
		Customer:  model.Customer{Name: "Ada Lovelace", Email: "ada@example.com"},
	})
	if err != nil {
		t.Fatalf("CreateAppointment(%s): %v", start.Format(time.RFC3339), err)
	}
	return appt
}

func (f fixture) availability(t *testing.T, d model.Date, serviceID string) []string {
	t.Helper()
	times, err := f.engine.GetAvailability(context.Background(), scheduling.AvailabilityQuery{Date: d, ServiceID: serviceID})
	if err != nil {
		t.Fatalf("GetAvailability: %v", err)
	}
	return times
}

func TestAvailabilitySingleEmployeeFullDay(t *testing.T) {
	f := newFixture(t, "emp-a")
	times := f.availability(t, monday, "svc-60")
	if len(times) != 29 {
		t.Fatalf("expected 29 slots, got %d: %v", len(times), times)
	}
	if times[0] != "09:00" || times[len(times)-1] != "16:00" {
		t.Fatalf("unexpected bounds %s..%s", times[0], times[len(times)-1])
	}
	if !slices.IsSorted(times) {
		t.Fatalf("times must be sorted: %v", times)
	}
}

func TestAvailabilityExcludesBookedInterval(t *testing.T) {
	f := newFixture(t, "emp-a")
	f.book(t, "svc-60", at(t, monday, "10:00"))

	times := f.availability(t, monday, "svc-60")
	if len(times) != 22 {
		t.Fatalf("expected 22 slots, got %d: %v", len(times), times)
	}
	for _, blocked := range []string{"09:15", "09:30", "09:45", "10:00", "10:15", "10:30", "10:45"} {
		if slices.Contains(times, blocked) {
			t.Fatalf("%s overlaps the booking and must not be offered", blocked)
		}
	}
	for _, ok := range []string{"09:00", "11:00"} {
		if !slices.Contains(times, ok) {
			t.Fatalf("%s only touches the booking and must be offered", ok)
		}
	}
}

func TestAvailabilityByDuration(t *testing.T) {
	f := newFixture(t, "emp-a")
	times, err := f.engine.GetAvailability(context.Background(), scheduling.AvailabilityQuery{Date: monday, DurationMinutes: 30})
	if err != nil {
		t.Fatalf("GetAvailability: %v", err)
	}
	if times[len(times)-1] != "16:30" {
		t.Fatalf("expected last slot 16:30, got %s", times[len(times)-1])
	}
}

func TestAvailabilityErrors(t *testing.T) {
	f := newFixture(t, "emp-a")
	ctx := context.Background()

	if _, err := f.engine.GetAvailability(ctx, scheduling.AvailabilityQuery{ServiceID: "svc-60"}); !errors.Is(err, scheduling.ErrValidation) {
		t.Fatalf("missing date: expected validation error, got %v", err)
	}
	if _, err := f.engine.GetAvailability(ctx, scheduling.AvailabilityQuery{Date: monday, DurationMinutes: -5}); !errors.Is(err, scheduling.ErrValidation) {
		t.Fatalf("negative duration: expected validation error, got %v", err)
	}
	if _, err := f.engine.GetAvailability(ctx, scheduling.AvailabilityQuery{Date: monday, ServiceID: "svc-old"}); !errors.Is(err, scheduling.ErrValidation) {
		t.Fatalf("inactive service: expected validation error, got %v", err)
	}
	if _, err := f.engine.GetAvailability(ctx, scheduling.AvailabilityQuery{Date: monday, ServiceID: "nope"}); !errors.Is(err, scheduling.ErrNotFound) {
		t.Fatalf("unknown service: expected not found, got %v", err)
	}
}

func TestDefaultServiceFallback(t *testing.T) {
	f := newFixture(t, "emp-a")
	ctx := context.Background()
	request := scheduling.CreateRequest{
		Start:    at(t, monday, "10:00"),
		Customer: model.Customer{Name: "Ada Lovelace", Email: "ada@example.com"},
	}

	if _, err := f.engine.GetAvailability(ctx, scheduling.AvailabilityQuery{Date: monday}); !errors.Is(err, scheduling.ErrConfiguration) {
		t.Fatalf("availability without default: expected configuration error, got %v", err)
	}
	if _, err := f.engine.CreateAppointment(ctx, guest, request); !errors.Is(err, scheduling.ErrConfiguration) {
		t.Fatalf("booking without default: expected configuration error, got %v", err)
	}

	if _, err := f.engine.SetDefaultService(ctx, " "); !errors.Is(err, scheduling.ErrValidation) {
		t.Fatalf("blank default: expected validation error, got %v", err)
	}
	if _, err := f.engine.SetDefaultService(ctx, "nope"); !errors.Is(err, scheduling.ErrNotFound) {
		t.Fatalf("unknown default: expected not found, got %v", err)
	}
	if _, err := f.engine.SetDefaultService(ctx, "svc-old"); !errors.Is(err, scheduling.ErrValidation) {
		t.Fatalf("inactive default: expected validation error, got %v", err)
	}
	settings, err := f.engine.SetDefaultService(ctx, "svc-30")
	if err != nil {
		t.Fatalf("SetDefaultService: %v", err)
	}
	if settings.DefaultServiceID != "svc-30" || settings.Version != 2 || len(settings.Hours) != 2 {
		t.Fatalf("unexpected settings %+v", settings)
	}

	if got, want := f.availability(t, monday, ""), f.availability(t, monday, "svc-30"); !slices.Equal(got, want) {
		t.Fatalf("default availability %v differs from svc-30 %v", got, want)
	}
	appt, err := f.engine.CreateAppointment(ctx, guest, request)
	if err != nil {
		t.Fatalf("CreateAppointment with default: %v", err)
	}
	if appt.ServiceID != "svc-30" || !appt.End.Equal(at(t, monday, "10:30")) {
		t.Fatalf("unexpected appointment %+v", appt)
	}
}

func TestDefaultServiceRetiredLater(t *testing.T) {
	f := newFixture(t, "emp-a")
	ctx := context.Background()
	if _, err := f.engine.SetDefaultService(ctx, "svc-30"); err != nil {
		t.Fatalf("SetDefaultService: %v", err)
	}
	f.store.PutService(model.Service{ID: "svc-30", Name: "Check-up", DurationMinutes: 30})

	if _, err := f.engine.GetAvailability(ctx, scheduling.AvailabilityQuery{Date: monday}); !errors.Is(err, scheduling.ErrConfiguration) {
		t.Fatalf("inactive default: expected configuration error, got %v", err)
	}
}

func TestAvailabilityWithoutSettingsIsEmpty(t *testing.T) {
	store := schedtest.NewMemStore()
	store.PutService(model.Service{ID: "svc-60", DurationMinutes: 60, IsActive: true})
	engine := scheduling.New(store, scheduling.Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return now },
	})
	times, err := engine.GetAvailability(context.Background(), scheduling.AvailabilityQuery{Date: monday, ServiceID: "svc-60"})
	if err != nil {
		t.Fatalf("expected degrade to empty, got %v", err)
	}
	if times == nil || len(times) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", times)
	}
}

func TestAvailabilityDropsPastTimesToday(t *testing.T) {
	f := newFixture(t, "emp-a")
	late := time.Date(2030, time.June, 3, 12, 5, 0, 0, time.UTC)
	engine := scheduling.New(f.store, scheduling.Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return late },
	})
	times, err := engine.GetAvailability(context.Background(), scheduling.AvailabilityQuery{Date: monday, ServiceID: "svc-60"})
	if err != nil {
		t.Fatalf("GetAvailability: %v", err)
	}
	if times[0] != "12:15" {
		t.Fatalf("expected first slot 12:15, got %v", times)
	}
	past, err := engine.GetAvailability(context.Background(), scheduling.AvailabilityQuery{Date: monday.AddDays(-7), ServiceID: "svc-60"})
	if err != nil || len(past) != 0 {
		t.Fatalf("past date: expected empty, got %v, %v", past, err)
	}
}

func TestAvailabilityCacheInvalidatedByBooking(t *testing.T) {
	f := newFixture(t, "emp-a")
	first := f.availability(t, monday, "svc-60")
	f.availability(t, monday, "svc-60")
	if f.cache.Hits != 1 {
		t.Fatalf("expected one cache hit, got %d", f.cache.Hits)
	}

	f.book(t, "svc-60", at(t, monday, "09:00"))
	if f.cache.Cached(monday) {
		t.Fatalf("booking must invalidate the date")
	}
	if after := f.availability(t, monday, "svc-60"); len(after) >= len(first) {
		t.Fatalf("expected fewer slots after booking, got %d vs %d", len(after), len(first))
	}
}

// racingStore invalidates the date the first time availability reads its appointments, as a
// booking committed by a concurrent request would.
type racingStore struct {
	*schedtest.MemStore
	cache *schedtest.MemCache
	date  model.Date
	once  sync.Once
}

func (s *racingStore) ListAppointments(ctx context.Context, f scheduling.AppointmentFilter) ([]model.Appointment, error) {
	appts, err := s.MemStore.ListAppointments(ctx, f)
	s.once.Do(func() { s.cache.InvalidateDates(ctx, s.date) })
	return appts, err
}

func TestAvailabilityNotCachedAcrossConcurrentInvalidation(t *testing.T) {
	f := newFixture(t, "emp-a")
	engine := scheduling.New(&racingStore{MemStore: f.store, cache: f.cache, date: monday}, scheduling.Config{
		Location: time.UTC,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Cache:    f.cache,
		Now:      func() time.Time { return now },
	})
	query := scheduling.AvailabilityQuery{Date: monday, ServiceID: "svc-60"}

	if _, err := engine.GetAvailability(context.Background(), query); err != nil {
		t.Fatalf("GetAvailability: %v", err)
	}
	if f.cache.Cached(monday) || f.cache.StaleSets != 1 {
		t.Fatalf("result computed before the invalidation must not be cached (stale sets %d)", f.cache.StaleSets)
	}

	if _, err := engine.GetAvailability(context.Background(), query); err != nil {
		t.Fatalf("GetAvailability: %v", err)
	}
	if !f.cache.Cached(monday) {
		t.Fatal("a clean recomputation should be cached")
	}
}

func TestOfferedSlotsAreBookable(t *testing.T) {
	seed := newFixture(t, "emp-a", "emp-b")
	seed.book(t, "svc-60", at(t, monday, "10:00"))
	seed.book(t, "svc-60", at(t, monday, "10:00"))
	seed.book(t, "svc-30", at(t, monday, "13:00"))

	for _, s := range seed.availability(t, monday, "svc-60") {
		f := newFixture(t, "emp-a", "emp-b")
		f.book(t, "svc-60", at(t, monday, "10:00"))
		f.book(t, "svc-60", at(t, monday, "10:00"))
		f.book(t, "svc-30", at(t, monday, "13:00"))
		f.book(t, "svc-60", at(t, monday, s))
	}
}

func TestCreateAppointmentAssignsFirstFreeEmployee(t *testing.T) {
	f := newFixture(t, "emp-b", "emp-a")
	start := at(t, monday, "10:00")

	first := f.book(t, "svc-60", start)
	second := f.book(t, "svc-60", start)
	if first.EmployeeID != "emp-a" || second.EmployeeID != "emp-b" {
		t.Fatalf("expected emp-a then emp-b, got %s then %s", first.EmployeeID, second.EmployeeID)
	}
	if first.Status != model.StatusConfirmed || !first.End.Equal(start.Add(time.Hour)) {
		t.Fatalf("unexpected appointment %+v", first)
	}

	_, err := f.engine.CreateAppointment(context.Background(), admin, scheduling.CreateRequest{
		ServiceID: "svc-60",
		Start:     start.Add(30 * time.Minute),
		Customer:  model.Customer{Name: "Grace Hopper"},
	})
	if !errors.Is(err, scheduling.ErrConflict) {
		t.Fatalf("expected conflict when every employee is busy, got %v", err)
	}
}

func TestCreateAppointmentRejections(t *testing.T) {
	f := newFixture(t, "emp-a")
	ctx := context.Background()
	cases := []struct {
		name   string
		caller scheduling.Caller
		req    scheduling.CreateRequest
		want   error
	}{
		{"short name", admin, scheduling.CreateRequest{ServiceID: "svc-60", Start: at(t, monday, "10:00"), Customer: model.Customer{Name: "Al"}}, scheduling.ErrValidation},
		{"guest without email", guest, scheduling.CreateRequest{ServiceID: "svc-60", Start: at(t, monday, "10:00"), Customer: model.Customer{Name: "Alan"}}, scheduling.ErrValidation},
		{"guest in the past", guest, scheduling.CreateRequest{ServiceID: "svc-60", Start: now.Add(-time.Hour), Customer: model.Customer{Name: "Alan", Email: "a@example.com"}}, scheduling.ErrValidation},
		{"inactive service", admin, scheduling.CreateRequest{ServiceID: "svc-old", Start: at(t, monday, "10:00"), Customer: model.Customer{Name: "Alan"}}, scheduling.ErrValidation},
		{"unknown service", admin, scheduling.CreateRequest{ServiceID: "nope", Start: at(t, monday, "10:00"), Customer: model.Customer{Name: "Alan"}}, scheduling.ErrNotFound},
		{"unknown employee", admin, scheduling.CreateRequest{ServiceID: "svc-60", EmployeeID: "ghost", Start: at(t, monday, "10:00"), Customer: model.Customer{Name: "Alan"}}, scheduling.ErrNotFound},
		{"before opening", admin, scheduling.CreateRequest{ServiceID: "svc-60", Start: at(t, monday, "08:30"), Customer: model.Customer{Name: "Alan"}}, scheduling.ErrConflict},
		{"runs past closing", admin, scheduling.CreateRequest{ServiceID: "svc-60", Start: at(t, monday, "16:30"), Customer: model.Customer{Name: "Alan"}}, scheduling.ErrConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.engine.CreateAppointment(ctx, tc.caller, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if n := len(f.store.Events()); n != 0 {
		t.Fatalf("rejected bookings must not emit events, got %d", n)
	}
}

func TestCreateAppointmentPreferredEmployee(t *testing.T) {
	f := newFixture(t, "emp-a", "emp-b")
	ctx := context.Background()
	req := scheduling.CreateRequest{
		ServiceID:  "svc-60",
		EmployeeID: "emp-b",
		Start:      at(t, monday, "10:00"),
		Customer:   model.Customer{Name: "Alan Turing"},
	}
	appt, err := f.engine.CreateAppointment(ctx, admin, req)
	if err != nil || appt.EmployeeID != "emp-b" {
		t.Fatalf("expected emp-b, got %+v, %v", appt, err)
	}
	_, err = f.engine.CreateAppointment(ctx, admin, req)
	ce, ok := scheduling.AsConflict(err)
	if !ok || ce.Reason != "requested employee is not available at that time" {
		t.Fatalf("expected preferred-employee conflict, got %v", err)
	}
}

func TestCreateAppointmentIdempotencyKey(t *testing.T) {
	f := newFixture(t, "emp-a", "emp-b")
	req := scheduling.CreateRequest{
		ServiceID:      "svc-60",
		Start:          at(t, monday, "10:00"),
		Customer:       model.Customer{Name: "Ada Lovelace", Email: "ada@example.com"},
		IdempotencyKey: "key-1",
	}
	first, err := f.engine.CreateAppointment(context.Background(), guest, req)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.engine.CreateAppointment(context.Background(), guest, req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("replay must return the original appointment: %s vs %s", first.ID, second.ID)
	}
	if got := f.store.EventTypes(); len(got) != 1 || got[0] != scheduling.EventAppointmentConfirmed {
		t.Fatalf("expected one confirmed event, got %v", got)
	}
}

func TestConcurrentBookingsExactlyOneWins(t *testing.T) {
	f := newFixture(t, "emp-a")
	start := at(t, monday, "10:00")

	const workers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.CreateAppointment(context.Background(), admin, scheduling.CreateRequest{
				ServiceID: "svc-60",
				Start:     start,
				Customer:  model.Customer{Name: "Racer"},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, scheduling.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 1 || conflicts != workers-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d and %d", workers-1, ok, conflicts)
	}
}

func TestRescheduleKeepsEmployeeAndIgnoresItself(t *testing.T) {
	f := newFixture(t, "emp-a", "emp-b")
	appt := f.book(t, "svc-60", at(t, monday, "10:00"))

	moved, err := f.engine.RescheduleAppointment(context.Background(), scheduling.RescheduleRequest{
		AppointmentID: appt.ID,
		NewStart:      at(t, monday, "10:30"),
	})
	if err != nil {
		t.Fatalf("RescheduleAppointment: %v", err)
	}
	if moved.EmployeeID != appt.EmployeeID {
		t.Fatalf("expected employee %s kept, got %s", appt.EmployeeID, moved.EmployeeID)
	}
	if !moved.End.Equal(at(t, monday, "11:30")) {
		t.Fatalf("unexpected end %s", moved.End)
	}
	types := f.store.EventTypes()
	if types[len(types)-1] != scheduling.EventAppointmentRescheduled {
		t.Fatalf("expected rescheduled event, got %v", types)
	}
}

func TestRescheduleFallsBackAndConflicts(t *testing.T) {
	f := newFixture(t, "emp-a", "emp-b")
	ctx := context.Background()
	mine := f.book(t, "svc-60", at(t, monday, "09:00"))
	f.book(t, "svc-60", at(t, monday, "14:00"))

	moved, err := f.engine.RescheduleAppointment(ctx, scheduling.RescheduleRequest{AppointmentID: mine.ID, NewStart: at(t, monday, "14:00")})
	if err != nil {
		t.Fatalf("RescheduleAppointment: %v", err)
	}
	if moved.EmployeeID != "emp-b" {
		t.Fatalf("expected fallback to emp-b, got %s", moved.EmployeeID)
	}

	other := f.book(t, "svc-60", at(t, monday, "09:00"))
	if _, err := f.engine.RescheduleAppointment(ctx, scheduling.RescheduleRequest{AppointmentID: other.ID, NewStart: at(t, monday, "14:30")}); !errors.Is(err, scheduling.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := f.engine.RescheduleAppointment(ctx, scheduling.RescheduleRequest{AppointmentID: "missing", NewStart: at(t, monday, "11:00")}); !errors.Is(err, scheduling.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	got, _ := f.engine.GetAppointment(ctx, other.ID)
	if !got.Start.Equal(other.Start) {
		t.Fatalf("failed reschedule must leave the appointment unchanged")
	}
}

func TestReleaseReturnsSlot(t *testing.T) {
	f := newFixture(t, "emp-a")
	ctx := context.Background()
	appt := f.book(t, "svc-60", at(t, monday, "10:00"))

	if err := f.engine.ReleaseAppointment(ctx, appt.ID); err != nil {
		t.Fatalf("ReleaseAppointment: %v", err)
	}
	if err := f.engine.ReleaseAppointment(ctx, appt.ID); err != nil {
		t.Fatalf("second release must be a no-op, got %v", err)
	}
	got, _ := f.engine.GetAppointment(ctx, appt.ID)
	if got.Status != model.StatusAvailable || got.Customer.Name != "" {
		t.Fatalf("unexpected released appointment %+v", got)
	}
	if n := len(f.availability(t, monday, "svc-60")); n != 29 {
		t.Fatalf("released slot should be offered again, got %d slots", n)
	}
	if err := f.engine.ReleaseAppointment(ctx, "missing"); !errors.Is(err, scheduling.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateStatusTransitions(t *testing.T) {
	f := newFixture(t, "emp-a")
	ctx := context.Background()
	done := f.book(t, "svc-60", at(t, monday, "09:00"))
	cancel := f.book(t, "svc-60", at(t, monday, "11:00"))

	if _, err := f.engine.UpdateStatus(ctx, admin, scheduling.StatusChange{AppointmentID: done.ID, Status: model.StatusCompleted}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.engine.UpdateStatus(ctx, admin, scheduling.StatusChange{AppointmentID: done.ID, Status: model.StatusCancelled}); !errors.Is(err, scheduling.ErrConflict) {
		t.Fatalf("completed -> cancelled must conflict, got %v", err)
	}
	if err := f.engine.ReleaseAppointment(ctx, done.ID); !errors.Is(err, scheduling.ErrConflict) {
		t.Fatalf("completed appointments cannot be released, got %v", err)
	}

	if _, err := f.engine.UpdateStatus(ctx, guest, scheduling.StatusChange{AppointmentID: cancel.ID, Status: model.StatusCompleted, CustomerEmail: "ada@example.com"}); !errors.Is(err, scheduling.ErrValidation) {
		t.Fatalf("customers may only cancel, got %v", err)
	}
	if _, err := f.engine.UpdateStatus(ctx, guest, scheduling.StatusChange{AppointmentID: cancel.ID, Status: model.StatusCancelled, CustomerEmail: "eve@example.com"}); !errors.Is(err, scheduling.ErrNotFound) {
		t.Fatalf("foreign email must look like a missing appointment, got %v", err)
	}
	got, err := f.engine.UpdateStatus(ctx, guest, scheduling.StatusChange{AppointmentID: cancel.ID, Status: model.StatusCancelled, CustomerEmail: "ADA@example.com"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.CancelledAt == nil {
		t.Fatalf("cancel must stamp CancelledAt")
	}
	if _, err := f.engine.UpdateStatus(ctx, admin, scheduling.StatusChange{AppointmentID: cancel.ID, Status: model.StatusCancelled}); err != nil {
		t.Fatalf("repeating the status must be a no-op, got %v", err)
	}

	want := []string{
		scheduling.EventAppointmentConfirmed,
		scheduling.EventAppointmentConfirmed,
		scheduling.EventReviewRequested,
		scheduling.EventAppointmentCancelled,
	}
	if got := f.store.EventTypes(); !slices.Equal(got, want) {
		t.Fatalf("events: got %v want %v", got, want)
	}
}

func TestListAppointmentsRange(t *testing.T) {
	f := newFixture(t, "emp-a")
	f.book(t, "svc-60", at(t, monday, "09:00"))
	f.book(t, "svc-60", at(t, monday.AddDays(1), "09:00"))

	from, to := monday.Midnight(time.UTC), monday.AddDays(1).Midnight(time.UTC)
	got, err := f.engine.ListAppointments(context.Background(), from, to, 0)
	if err != nil || len(got) != 1 {
		t.Fatalf("expected one appointment on monday, got %d, %v", len(got), err)
	}
	if _, err := f.engine.ListAppointments(context.Background(), to, from, 0); !errors.Is(err, scheduling.ErrValidation) {
		t.Fatalf("inverted range: expected validation error, got %v", err)
	}
}

func TestListCustomerAppointmentsNewestFirst(t *testing.T) {
	f := newFixture(t, "emp-a")
	ada := scheduling.Caller{ID: "user-ada", Role: auth.RoleCustomer}
	for _, s := range []string{"09:00", "11:00"} {
		if _, err := f.engine.CreateAppointment(context.Background(), ada, scheduling.CreateRequest{
			ServiceID: "svc-60",
			Start:     at(t, monday, s),
			Customer:  model.Customer{Name: "Ada Lovelace", Email: "ada@example.com"},
		}); err != nil {
			t.Fatalf("CreateAppointment(%s): %v", s, err)
		}
	}
	f.book(t, "svc-60", at(t, monday, "13:00"))

	got, err := f.engine.ListCustomerAppointments(context.Background(), ada, 0)
	if err != nil {
		t.Fatalf("ListCustomerAppointments: %v", err)
	}
	if len(got) != 2 || !got[0].Start.Equal(at(t, monday, "11:00")) || got[0].Customer.UserID != "user-ada" {
		t.Fatalf("expected ada's two bookings newest first, got %+v", got)
	}

	other := scheduling.Caller{ID: "user-grace", Role: auth.RoleCustomer}
	if got, err := f.engine.ListCustomerAppointments(context.Background(), other, 0); err != nil || len(got) != 0 {
		t.Fatalf("another customer sees %d appointments, %v", len(got), err)
	}
	if _, err := f.engine.ListCustomerAppointments(context.Background(), guest, 0); !errors.Is(err, scheduling.ErrValidation) {
		t.Fatalf("anonymous caller: expected validation error, got %v", err)
	}
}
