package availability

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps treats both intervals as half-open: [a,b) overlaps [c,d) iff a < d && c < b.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Contains reports whether o lies entirely inside i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// BusyIndex keeps each employee's blocking intervals sorted by start so an overlap test is a
// binary search plus one comparison against the running maximum end.
type BusyIndex struct {
	byEmployee map[string]*employeeBusy
}

type employeeBusy struct {
	intervals []Interval
	maxEnd    []time.Time
	dirty     bool
}

func NewBusyIndex() *BusyIndex {
	return &BusyIndex{byEmployee: map[string]*employeeBusy{}}
}

// IndexAppointments indexes every appointment whose status blocks the employee's time,
// skipping the ids listed in exclude.
func IndexAppointments(appts []model.Appointment, exclude ...string) *BusyIndex {
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	idx := NewBusyIndex()
	for _, a := range appts {
		if !a.Status.Blocking() {
			continue
		}
		if _, ok := skip[a.ID]; ok {
			continue
		}
		idx.Add(a.EmployeeID, Interval{Start: a.Start, End: a.End})
	}
	return idx
}

func (b *BusyIndex) Add(employeeID string, iv Interval) {
	eb := b.byEmployee[employeeID]
	if eb == nil {
		eb = &employeeBusy{}
		b.byEmployee[employeeID] = eb
	}
	eb.intervals = append(eb.intervals, iv)
	eb.dirty = true
}

// Busy reports whether employeeID has any indexed interval overlapping iv.
func (b *BusyIndex) Busy(employeeID string, iv Interval) bool {
	if b == nil {
		return false
	}
	eb := b.byEmployee[employeeID]
	if eb == nil || len(eb.intervals) == 0 {
		return false
	}
	eb.prepare()

	// Every interval before idx starts before iv ends; one of them overlaps iff the latest end among them is after iv.Start.
	idx := sort.Search(len(eb.intervals), func(i int) bool {
		return !eb.intervals[i].Start.Before(iv.End)
	})
	if idx == 0 {
		return false
	}
	return eb.maxEnd[idx-1].After(iv.Start)
}

func (eb *employeeBusy) prepare() {
	if !eb.dirty {
		return
	}
	sort.Slice(eb.intervals, func(i, j int) bool {
		return eb.intervals[i].Start.Before(eb.intervals[j].Start)
	})
	eb.maxEnd = make([]time.Time, len(eb.intervals))
	for i, iv := range eb.intervals {
		eb.maxEnd[i] = iv.End
		if i > 0 && eb.maxEnd[i-1].After(iv.End) {
			eb.maxEnd[i] = eb.maxEnd[i-1]
		}
	}
	eb.dirty = false
}
