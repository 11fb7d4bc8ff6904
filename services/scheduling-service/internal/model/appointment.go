package model

import "time"

type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusNoShow    Status = "NO_SHOW"
)

func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusAvailable, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return st, true
	}
	return "", false
}

// Blocking statuses hold the employee's time; no two blocking appointments of one employee overlap.
func (s Status) Blocking() bool {
	return s == StatusConfirmed || s == StatusCompleted
}

// Live statuses represent a real customer booking that schedule edits must not orphan.
func (s Status) Live() bool {
	return s == StatusConfirmed || s == StatusCompleted || s == StatusNoShow
}

var BlockingStatuses = []Status{StatusConfirmed, StatusCompleted}

var LiveStatuses = []Status{StatusConfirmed, StatusCompleted, StatusNoShow}

type Customer struct {
	UserID string
	Name   string
	Email  string
	Phone  string
}

type Appointment struct {
	ID           string
	ServiceID    string
	EmployeeID   string
	Start        time.Time
	End          time.Time
	Status       Status
	Customer     Customer
	ReminderSent bool
	CancelledAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Overlaps uses half-open intervals: [start,end) overlaps [a.Start,a.End) iff start < a.End && a.Start < end.
func (a Appointment) Overlaps(start, end time.Time) bool {
	return start.Before(a.End) && a.Start.Before(end)
}
