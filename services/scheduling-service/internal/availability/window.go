package availability

import (
	"time"

	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/model"
)

type WindowSource string

const (
	SourceClosure  WindowSource = "closure"
	SourceOverride WindowSource = "override"
	SourceWeekly   WindowSource = "weekly"
)

// Window is the bookable boundary for one date. A closed window has no bookable time.
type Window struct {
	Date   model.Date
	Open   model.ClockTime
	Close  model.ClockTime
	Closed bool
	Source WindowSource
}

// DayConfig is everything the resolver needs for a single date.
type DayConfig struct {
	Hours    model.BusinessHours
	Closure  *model.Closure
	Override *model.DateOverride
}

// ResolveWindow applies, in order: closure, override with hours, weekly hours. A note-only
// override falls through to the weekly hours.
func ResolveWindow(d model.Date, cfg DayConfig) Window {
	if cfg.Closure != nil {
		return Window{Date: d, Closed: true, Source: SourceClosure}
	}
	if cfg.Override != nil && cfg.Override.HasHours() {
		opens, closes := *cfg.Override.Open, *cfg.Override.Close
		if opens >= closes {
			return Window{Date: d, Closed: true, Source: SourceOverride}
		}
		return Window{Date: d, Open: opens, Close: closes, Source: SourceOverride}
	}
	hours, ok := cfg.Hours[d.Weekday()]
	if !ok || hours.Open >= hours.Close {
		return Window{Date: d, Closed: true, Source: SourceWeekly}
	}
	return Window{Date: d, Open: hours.Open, Close: hours.Close, Source: SourceWeekly}
}

// Bounds returns the window as absolute instants in loc.
func (w Window) Bounds(loc *time.Location) Interval {
	return Interval{Start: w.Date.At(w.Open, loc), End: w.Date.At(w.Close, loc)}
}

// Admits reports whether iv fits inside the window.
func (w Window) Admits(iv Interval, loc *time.Location) bool {
	if w.Closed {
		return false
	}
	return w.Bounds(loc).Contains(iv)
}
