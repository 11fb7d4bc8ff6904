package availability

import (
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
)

// Covers reports whether emp is on shift for the whole of [start, start+duration) and has no
// absence on that calendar day. The slot must fit inside a single shift.
func Covers(emp model.Employee, start time.Time, duration time.Duration, loc *time.Location) bool {
	if duration <= 0 {
		return false
	}
	day := model.DateOf(start, loc)
	shifts := emp.Schedule[day.Weekday()]
	if len(shifts) == 0 {
		return false
	}

	slot := Interval{Start: start, End: start.Add(duration)}
	covered := false
	for _, s := range shifts {
		shift := Interval{Start: day.At(s.Start, loc), End: day.At(s.End, loc)}
		if shift.Contains(slot) {
			covered = true
			break
		}
	}
	if !covered {
		return false
	}

	for _, a := range emp.Absences {
		if a.Covers(day) {
			return false
		}
	}
	return true
}
