package model

import (
	"time"
)

type Service struct {
	ID              string
	Name            string
	DurationMinutes int
	IsActive        bool
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

type EmployeeStatus string

const (
	EmployeeActive   EmployeeStatus = "ACTIVE"
	EmployeeArchived EmployeeStatus = "ARCHIVED"
)

type Employee struct {
	ID       string
	Name     string
	Email    string
	Status   EmployeeStatus
	Schedule WeeklySchedule
	Absences []Absence
}

// Absence blocks whole days from StartDate through EndDate inclusive.
type Absence struct {
	ID         string
	EmployeeID string
	StartDate  Date
	EndDate    Date
	Reason     string
}

func (a Absence) Covers(d Date) bool {
	return !d.Before(a.StartDate) && !d.After(a.EndDate)
}

// Settings is the business-wide schedule configuration. Version increases on every change so
// callers can tell snapshots apart.
type Settings struct {
	Version          int64
	DefaultServiceID string
	Hours            BusinessHours
	UpdatedAt        time.Time
}

// DateOverride replaces the weekly hours for one date. When Open and Close are both nil the
// override is a note only and the weekly hours still apply.
type DateOverride struct {
	ID        string
	Date      Date
	Reason    string
	Open      *ClockTime
	Close     *ClockTime
	CreatedAt time.Time
}

func (o DateOverride) HasHours() bool {
	return o.Open != nil && o.Close != nil
}

// Closure marks a date with no bookable time.
type Closure struct {
	ID        string
	Date      Date
	Reason    string
	CreatedAt time.Time
}
