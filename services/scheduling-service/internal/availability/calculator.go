package availability

import (
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
)

// Input is a consistent snapshot for one availability computation.
type Input struct {
	Window    Window
	Duration  time.Duration
	Location  *time.Location
	Employees []model.Employee
	Busy      *BusyIndex
	// NotBefore drops start times earlier than it. The zero value keeps every start time.
	NotBefore time.Time
}

// Slots returns the bookable start instants in ascending order. A start time t is bookable
// when t+duration stays inside the window and at least one active employee covers the slot
// without an overlapping blocking appointment.
func Slots(in Input) []time.Time {
	if in.Window.Closed || in.Duration <= 0 {
		return nil
	}
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	bounds := in.Window.Bounds(loc)

	var out []time.Time
	for t := range NewGrid(bounds.Start, bounds.End).All() {
		slot := Interval{Start: t, End: t.Add(in.Duration)}
		if slot.End.After(bounds.End) {
			break
		}
		if !in.NotBefore.IsZero() && t.Before(in.NotBefore) {
			continue
		}
		if anyEmployeeFree(in.Employees, in.Busy, slot, loc) {
			out = append(out, t)
		}
	}
	return out
}

// Calculate formats Slots as "HH:MM" in the business timezone.
func Calculate(in Input) []string {
	slots := Slots(in)
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	out := make([]string, 0, len(slots))
	for _, t := range slots {
		out = append(out, t.In(loc).Format("15:04"))
	}
	return out
}

func anyEmployeeFree(employees []model.Employee, busy *BusyIndex, slot Interval, loc *time.Location) bool {
	for _, emp := range employees {
		if isFree(emp, busy, slot, loc) {
			return true
		}
	}
	return false
}

func isFree(emp model.Employee, busy *BusyIndex, slot Interval, loc *time.Location) bool {
	if emp.Status != model.EmployeeActive {
		return false
	}
	if !Covers(emp, slot.Start, slot.End.Sub(slot.Start), loc) {
		return false
	}
	return !busy.Busy(emp.ID, slot)
}
