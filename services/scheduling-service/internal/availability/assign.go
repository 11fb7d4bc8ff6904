package availability

import (
	"errors"
	"sort"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
)

var (
	// ErrNoneAvailable means no active employee can take the slot.
	ErrNoneAvailable = errors.New("no employee available for the requested time")
	// ErrPreferredUnavailable means the requested employee is off shift, absent, archived or busy.
	ErrPreferredUnavailable = errors.New("requested employee is not available at that time")
)

type AssignRequest struct {
	Slot        Interval
	PreferredID string
	Location    *time.Location
}

// Assign picks the employee for a slot. A preferred employee is validated as-is; otherwise the
// first free active employee in ascending id order wins.
func Assign(req AssignRequest, employees []model.Employee, busy *BusyIndex) (string, error) {
	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}

	if req.PreferredID != "" {
		for _, emp := range employees {
			if emp.ID != req.PreferredID {
				continue
			}
			if isFree(emp, busy, req.Slot, loc) {
				return emp.ID, nil
			}
			return "", ErrPreferredUnavailable
		}
		return "", ErrPreferredUnavailable
	}

	ordered := make([]model.Employee, len(employees))
	copy(ordered, employees)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	for _, emp := range ordered {
		if isFree(emp, busy, req.Slot, loc) {
			return emp.ID, nil
		}
	}
	return "", ErrNoneAvailable
}
