package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	otelx "github.com/md-rashed-zaman/slotbook/libs/otel"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxDurationMinutes = 24 * 60

type Config struct {
	Location *time.Location
	Logger   *slog.Logger
	Cache    Cache
	// Now defaults to time.Now.
	Now func() time.Time
}

// Engine answers availability queries and performs every booking and schedule write.
type Engine struct {
	store  Store
	loc    *time.Location
	logger *slog.Logger
	cache  Cache
	now    func() time.Time
	tracer trace.Tracer
}

func New(store Store, cfg Config) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		store:  store,
		loc:    cfg.Location,
		logger: cfg.Logger,
		cache:  cfg.Cache,
		now:    cfg.Now,
		tracer: otelx.Tracer("scheduling"),
	}
}

func (e *Engine) Location() *time.Location { return e.loc }

// Today is the current calendar date in the business timezone.
func (e *Engine) Today() model.Date {
	return model.DateOf(e.now(), e.loc)
}

type AvailabilityQuery struct {
	Date model.Date
	// ServiceID takes precedence over DurationMinutes when both are set. With neither, the
	// business default service is used.
	ServiceID       string
	DurationMinutes int
}

// GetAvailability returns bookable "HH:MM" start times for the date, sorted ascending.
// Missing business settings degrade to an empty list when the duration is known; without a
// service, a duration or a default service the query fails with ErrConfiguration.
func (e *Engine) GetAvailability(ctx context.Context, q AvailabilityQuery) ([]string, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.GetAvailability",
		trace.WithAttributes(attribute.String("date", q.Date.String())))
	defer span.End()

	if q.Date.IsZero() {
		return nil, validationf("date is required")
	}
	minutes := q.DurationMinutes
	serviceID, isDefault := strings.TrimSpace(q.ServiceID), false
	if serviceID == "" && minutes == 0 {
		settings, err := e.store.Settings(ctx)
		if err != nil {
			return nil, err
		}
		if serviceID, err = defaultService(settings); err != nil {
			return nil, err
		}
		isDefault = true
	}
	if serviceID != "" {
		svc, err := e.bookableService(ctx, e.store, serviceID, isDefault)
		if err != nil {
			return nil, err
		}
		minutes = svc.DurationMinutes
	}
	if minutes <= 0 || minutes > maxDurationMinutes {
		return nil, validationf("duration must be between 1 and %d minutes", maxDurationMinutes)
	}

	times, gen, ok := e.cacheGet(ctx, q.Date, minutes)
	if !ok {
		computed, err := e.computeAvailability(ctx, q.Date, minutes)
		if errors.Is(err, ErrConfiguration) {
			e.logger.Warn("availability requested before settings exist", "err", err)
			return []string{}, nil
		}
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		e.cacheSet(ctx, q.Date, minutes, gen, computed)
		times = computed
	}
	if times = e.dropPast(q.Date, times); times == nil {
		times = []string{}
	}
	return times, nil
}

func defaultService(settings model.Settings) (string, error) {
	if settings.DefaultServiceID == "" {
		return "", fmt.Errorf("%w: no default service configured", ErrConfiguration)
	}
	return settings.DefaultServiceID, nil
}

// bookableService loads an active service. A dangling default service is a configuration
// problem rather than a bad request.
func (e *Engine) bookableService(ctx context.Context, s Store, id string, isDefault bool) (model.Service, error) {
	svc, err := s.GetService(ctx, id)
	if isDefault && errors.Is(err, ErrNotFound) {
		return model.Service{}, fmt.Errorf("%w: default service %q does not exist", ErrConfiguration, id)
	}
	if err != nil {
		return model.Service{}, err
	}
	if !svc.IsActive {
		if isDefault {
			return model.Service{}, fmt.Errorf("%w: default service %q is inactive", ErrConfiguration, id)
		}
		return model.Service{}, validationf("service %q is not bookable", svc.ID)
	}
	return svc, nil
}

func (e *Engine) computeAvailability(ctx context.Context, d model.Date, minutes int) ([]string, error) {
	settings, err := e.store.Settings(ctx)
	if err != nil {
		return nil, err
	}
	window, err := e.resolveWindow(ctx, e.store, d, settings)
	if err != nil {
		return nil, err
	}
	if window.Closed {
		return []string{}, nil
	}

	employees, err := e.store.ListEmployees(ctx, true)
	if err != nil {
		return nil, err
	}
	bounds := window.Bounds(e.loc)
	appts, err := e.store.ListAppointments(ctx, AppointmentFilter{
		From:     bounds.Start,
		To:       bounds.End,
		Statuses: model.BlockingStatuses,
	})
	if err != nil {
		return nil, err
	}

	return availability.Calculate(availability.Input{
		Window:    window,
		Duration:  time.Duration(minutes) * time.Minute,
		Location:  e.loc,
		Employees: employees,
		Busy:      availability.IndexAppointments(appts),
	}), nil
}

func (e *Engine) resolveWindow(ctx context.Context, s Store, d model.Date, settings model.Settings) (availability.Window, error) {
	closure, err := s.GetClosure(ctx, d)
	if err != nil {
		return availability.Window{}, err
	}
	override, err := s.GetOverride(ctx, d)
	if err != nil {
		return availability.Window{}, err
	}
	return availability.ResolveWindow(d, availability.DayConfig{
		Hours:    settings.Hours,
		Closure:  closure,
		Override: override,
	}), nil
}

// dropPast removes start times that already passed when d is today.
func (e *Engine) dropPast(d model.Date, times []string) []string {
	now := e.now().In(e.loc)
	today := model.DateOf(now, e.loc)
	switch {
	case d.Before(today):
		return []string{}
	case d.After(today):
		return times
	}
	out := make([]string, 0, len(times))
	for _, s := range times {
		c, err := model.ParseClock(s)
		if err != nil {
			continue
		}
		if !d.At(c, e.loc).Before(now) {
			out = append(out, s)
		}
	}
	return out
}

// InvalidateDates drops cached availability for every date in [from, to].
func (e *Engine) InvalidateDates(ctx context.Context, from, to model.Date) {
	if e.cache == nil {
		return
	}
	if to.Before(from) {
		from, to = to, from
	}
	const maxSpan = 366
	var dates []model.Date
	for d := from; !d.After(to); d = d.AddDays(1) {
		if len(dates) == maxSpan {
			e.cache.InvalidateAll(ctx)
			return
		}
		dates = append(dates, d)
	}
	e.cache.InvalidateDates(ctx, dates...)
}

func (e *Engine) invalidateAll(ctx context.Context) {
	if e.cache != nil {
		e.cache.InvalidateAll(ctx)
	}
}

func (e *Engine) cacheGet(ctx context.Context, d model.Date, minutes int) ([]string, int64, bool) {
	if e.cache == nil {
		return nil, 0, false
	}
	return e.cache.Get(ctx, d, minutes)
}

func (e *Engine) cacheSet(ctx context.Context, d model.Date, minutes int, gen int64, times []string) {
	if e.cache != nil {
		e.cache.Set(ctx, d, minutes, gen, times)
	}
}

// dayBounds is [midnight, next midnight) of d in the business timezone.
func (e *Engine) dayBounds(d model.Date) (time.Time, time.Time) {
	return d.Midnight(e.loc), d.AddDays(1).Midnight(e.loc)
}
