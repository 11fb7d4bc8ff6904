// Package schedtest provides in-memory implementations of the scheduling ports for tests.
package schedtest

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/scheduling"
)

// MemStore is a scheduling.Store backed by maps. InTx serializes transactions with a single
// lock and restores the previous state when fn fails.
type MemStore struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   state
}

type state struct {
	settings     *model.Settings
	services     map[string]model.Service
	employees    map[string]model.Employee
	absences     map[string]model.Absence
	closures     map[string]model.Closure
	overrides    map[string]model.DateOverride
	appointments map[string]model.Appointment
	idempotency  map[string]string
	events       []scheduling.Event
}

func NewMemStore() *MemStore {
	return &MemStore{st: state{
		services:     map[string]model.Service{},
		employees:    map[string]model.Employee{},
		absences:     map[string]model.Absence{},
		closures:     map[string]model.Closure{},
		overrides:    map[string]model.DateOverride{},
		appointments: map[string]model.Appointment{},
		idempotency:  map[string]string{},
	}}
}

func (s state) clone() state {
	out := state{
		services:     cloneMap(s.services),
		employees:    cloneMap(s.employees),
		absences:     cloneMap(s.absences),
		closures:     cloneMap(s.closures),
		overrides:    cloneMap(s.overrides),
		appointments: cloneMap(s.appointments),
		idempotency:  cloneMap(s.idempotency),
		events:       slices.Clone(s.events),
	}
	if s.settings != nil {
		cp := *s.settings
		out.settings = &cp
	}
	return out
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// txStore shares the MemStore state but is only handed out while txMu is held.
type txStore struct {
	*MemStore
}

func (s *MemStore) InTx(ctx context.Context, fn func(ctx context.Context, tx scheduling.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(ctx, txStore{s}); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// Nested transactions join the outer one.
func (t txStore) InTx(ctx context.Context, fn func(ctx context.Context, tx scheduling.Store) error) error {
	return fn(ctx, t)
}

// Seeding helpers.

func (s *MemStore) PutSettings(hours model.BusinessHours) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.settings = &model.Settings{Version: 1, Hours: hours, UpdatedAt: time.Now().UTC()}
}

func (s *MemStore) PutService(svc model.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.services[svc.ID] = svc
}

// PutEmployee stores emp; its Absences are stored separately and reattached on read.
func (s *MemStore) PutEmployee(emp model.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if emp.Status == "" {
		emp.Status = model.EmployeeActive
	}
	for _, a := range emp.Absences {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.EmployeeID = emp.ID
		s.st.absences[a.ID] = a
	}
	emp.Absences = nil
	s.st.employees[emp.ID] = emp
}

// PutAppointment stores a without the overlap check so tests can build arbitrary histories.
func (s *MemStore) PutAppointment(a model.Appointment) model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.st.appointments[a.ID] = a
	return a
}

func (s *MemStore) Events() []scheduling.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.events)
}

func (s *MemStore) EventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.st.events))
	for _, e := range s.st.events {
		out = append(out, e.Type)
	}
	return out
}

func (s *MemStore) Closures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.closures)
}

// scheduling.Store

func (s *MemStore) Settings(ctx context.Context) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st.settings == nil {
		return model.Settings{}, scheduling.ErrConfiguration
	}
	return *s.st.settings, nil
}

func (s *MemStore) SaveBusinessHours(ctx context.Context, hours model.BusinessHours) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := model.Settings{Version: 1}
	if s.st.settings != nil {
		next = *s.st.settings
		next.Version++
	}
	next.Hours = hours
	next.UpdatedAt = time.Now().UTC()
	s.st.settings = &next
	return next, nil
}

func (s *MemStore) SaveDefaultService(ctx context.Context, serviceID string) (model.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := model.Settings{Version: 1, Hours: model.BusinessHours{}}
	if s.st.settings != nil {
		next = *s.st.settings
		next.Version++
	}
	next.DefaultServiceID = serviceID
	next.UpdatedAt = time.Now().UTC()
	s.st.settings = &next
	return next, nil
}

func (s *MemStore) GetService(ctx context.Context, id string) (model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.st.services[id]
	if !ok {
		return model.Service{}, fmt.Errorf("%w: service %q", scheduling.ErrNotFound, id)
	}
	return svc, nil
}

func (s *MemStore) GetEmployee(ctx context.Context, id string) (model.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	emp, ok := s.st.employees[id]
	if !ok {
		return model.Employee{}, fmt.Errorf("%w: employee %q", scheduling.ErrNotFound, id)
	}
	emp.Absences = s.absencesOf(id)
	return emp, nil
}

func (s *MemStore) ListEmployees(ctx context.Context, activeOnly bool) ([]model.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Employee, 0, len(s.st.employees))
	for _, emp := range s.st.employees {
		if activeOnly && emp.Status != model.EmployeeActive {
			continue
		}
		emp.Absences = s.absencesOf(emp.ID)
		out = append(out, emp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) absencesOf(employeeID string) []model.Absence {
	var out []model.Absence
	for _, a := range s.st.absences {
		if a.EmployeeID == employeeID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out
}

func (s *MemStore) InsertAbsence(ctx context.Context, a *model.Absence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = uuid.NewString()
	s.st.absences[a.ID] = *a
	return nil
}

func (s *MemStore) DeleteAbsence(ctx context.Context, id string) (model.Absence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.st.absences[id]
	if !ok {
		return model.Absence{}, fmt.Errorf("%w: absence %q", scheduling.ErrNotFound, id)
	}
	delete(s.st.absences, id)
	return a, nil
}

func (s *MemStore) ListAbsences(ctx context.Context, employeeID string) ([]model.Absence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.absencesOf(employeeID), nil
}

func (s *MemStore) GetClosure(ctx context.Context, d model.Date) (*model.Closure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.st.closures {
		if c.Date == d {
			return &c, nil
		}
	}
	return nil, nil
}

func (s *MemStore) GetOverride(ctx context.Context, d model.Date) (*model.DateOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.st.overrides {
		if o.Date == d {
			return &o, nil
		}
	}
	return nil, nil
}

func inRange(d, from, to model.Date) bool {
	if !from.IsZero() && d.Before(from) {
		return false
	}
	if !to.IsZero() && d.After(to) {
		return false
	}
	return true
}

func (s *MemStore) ListClosures(ctx context.Context, from, to model.Date) ([]model.Closure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Closure
	for _, c := range s.st.closures {
		if inRange(c.Date, from, to) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *MemStore) ListOverrides(ctx context.Context, from, to model.Date) ([]model.DateOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.DateOverride
	for _, o := range s.st.overrides {
		if inRange(o.Date, from, to) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *MemStore) InsertClosure(ctx context.Context, c *model.Closure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.st.closures {
		if existing.Date == c.Date {
			return fmt.Errorf("%w: closure on %s exists", scheduling.ErrConflict, c.Date)
		}
	}
	c.ID = uuid.NewString()
	s.st.closures[c.ID] = *c
	return nil
}

func (s *MemStore) InsertOverride(ctx context.Context, o *model.DateOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.st.overrides {
		if existing.Date == o.Date {
			return fmt.Errorf("%w: override on %s exists", scheduling.ErrConflict, o.Date)
		}
	}
	o.ID = uuid.NewString()
	s.st.overrides[o.ID] = *o
	return nil
}

func (s *MemStore) DeleteClosure(ctx context.Context, id string) (model.Closure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.closures[id]
	if !ok {
		return model.Closure{}, fmt.Errorf("%w: closure %q", scheduling.ErrNotFound, id)
	}
	delete(s.st.closures, id)
	return c, nil
}

func (s *MemStore) DeleteOverride(ctx context.Context, id string) (model.DateOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.st.overrides[id]
	if !ok {
		return model.DateOverride{}, fmt.Errorf("%w: override %q", scheduling.ErrNotFound, id)
	}
	delete(s.st.overrides, id)
	return o, nil
}

func (s *MemStore) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.st.appointments[id]
	if !ok {
		return model.Appointment{}, fmt.Errorf("%w: appointment %q", scheduling.ErrNotFound, id)
	}
	return a, nil
}

func (s *MemStore) ListAppointments(ctx context.Context, f scheduling.AppointmentFilter) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.st.appointments {
		if !f.From.IsZero() && !a.End.After(f.From) {
			continue
		}
		if !f.To.IsZero() && !a.Start.Before(f.To) {
			continue
		}
		if f.EmployeeID != "" && a.EmployeeID != f.EmployeeID {
			continue
		}
		if f.CustomerUserID != "" && a.Customer.UserID != f.CustomerUserID {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, a.Status) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	if f.NewestFirst {
		slices.Reverse(out)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// overlapping mirrors the exclusion constraint on blocking appointments.
func (s *MemStore) overlapping(a model.Appointment) bool {
	if !a.Status.Blocking() {
		return false
	}
	for _, other := range s.st.appointments {
		if other.ID == a.ID || other.EmployeeID != a.EmployeeID || !other.Status.Blocking() {
			continue
		}
		if other.Overlaps(a.Start, a.End) {
			return true
		}
	}
	return false
}

func (s *MemStore) InsertAppointment(ctx context.Context, a *model.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = uuid.NewString()
	if s.overlapping(*a) {
		return fmt.Errorf("%w: overlapping appointment", scheduling.ErrConflict)
	}
	s.st.appointments[a.ID] = *a
	return nil
}

func (s *MemStore) UpdateAppointment(ctx context.Context, a model.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.appointments[a.ID]; !ok {
		return fmt.Errorf("%w: appointment %q", scheduling.ErrNotFound, a.ID)
	}
	if s.overlapping(a) {
		return fmt.Errorf("%w: overlapping appointment", scheduling.ErrConflict)
	}
	s.st.appointments[a.ID] = a
	return nil
}

func (s *MemStore) ClaimIdempotencyKey(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.idempotency[key], nil
}

func (s *MemStore) CompleteIdempotencyKey(ctx context.Context, key, appointmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.idempotency[key] = appointmentID
	return nil
}

func (s *MemStore) AppendEvent(ctx context.Context, evt scheduling.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.events = append(s.st.events, evt)
	return nil
}
