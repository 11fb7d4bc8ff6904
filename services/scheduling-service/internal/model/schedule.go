package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Shift is a contiguous on-duty interval on one weekday.
type Shift struct {
	Start ClockTime `json:"start" yaml:"start"`
	End   ClockTime `json:"end" yaml:"end"`
}

func (s Shift) Validate() error {
	if !s.Start.Valid() || !s.End.Valid() || s.Start >= s.End {
		return fmt.Errorf("shift %s-%s: start must be before end", s.Start, s.End)
	}
	return nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func ParseWeekday(name string) (time.Weekday, error) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", name)
	}
	return wd, nil
}

func WeekdayName(wd time.Weekday) string {
	return strings.ToLower(wd.String())
}

// WeeklySchedule maps a weekday to its shifts, ordered by start and non-overlapping.
type WeeklySchedule map[time.Weekday][]Shift

// NewWeeklySchedule builds a schedule from weekday names, sorting and validating shifts.
func NewWeeklySchedule(byName map[string][]Shift) (WeeklySchedule, error) {
	ws := WeeklySchedule{}
	for name, shifts := range byName {
		wd, err := ParseWeekday(name)
		if err != nil {
			return nil, err
		}
		if len(shifts) == 0 {
			continue
		}
		ws[wd] = append([]Shift(nil), shifts...)
	}
	if err := ws.Normalize(); err != nil {
		return nil, err
	}
	return ws, nil
}

// Normalize sorts every day's shifts and rejects invalid or overlapping ones.
func (ws WeeklySchedule) Normalize() error {
	for wd, shifts := range ws {
		sort.Slice(shifts, func(i, j int) bool { return shifts[i].Start < shifts[j].Start })
		for i, s := range shifts {
			if err := s.Validate(); err != nil {
				return fmt.Errorf("%s: %w", WeekdayName(wd), err)
			}
			if i > 0 && shifts[i-1].End > s.Start {
				return fmt.Errorf("%s: shifts %s-%s and %s-%s overlap", WeekdayName(wd),
					shifts[i-1].Start, shifts[i-1].End, s.Start, s.End)
			}
		}
		ws[wd] = shifts
	}
	return nil
}

func (ws WeeklySchedule) MarshalJSON() ([]byte, error) {
	out := make(map[string][]Shift, len(ws))
	for wd, shifts := range ws {
		out[WeekdayName(wd)] = shifts
	}
	return json.Marshal(out)
}

func (ws *WeeklySchedule) UnmarshalJSON(b []byte) error {
	var raw map[string][]Shift
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := NewWeeklySchedule(raw)
	if err != nil {
		return err
	}
	*ws = parsed
	return nil
}

// DayHours is the business open/close window for one weekday.
type DayHours struct {
	Open  ClockTime `json:"open" yaml:"open"`
	Close ClockTime `json:"close" yaml:"close"`
}

func (h DayHours) Validate() error {
	if !h.Open.Valid() || !h.Close.Valid() || h.Open >= h.Close {
		return fmt.Errorf("hours %s-%s: open must be before close", h.Open, h.Close)
	}
	return nil
}

// BusinessHours holds at most one window per weekday. A missing weekday is closed.
type BusinessHours map[time.Weekday]DayHours

// NewBusinessHours builds business hours from weekday names; nil entries mean closed.
func NewBusinessHours(byName map[string]*DayHours) (BusinessHours, error) {
	bh := BusinessHours{}
	for name, hours := range byName {
		wd, err := ParseWeekday(name)
		if err != nil {
			return nil, err
		}
		if hours == nil {
			continue
		}
		if err := hours.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		bh[wd] = *hours
	}
	return bh, nil
}

func (bh BusinessHours) Validate() error {
	for wd, h := range bh {
		if err := h.Validate(); err != nil {
			return fmt.Errorf("%s: %w", WeekdayName(wd), err)
		}
	}
	return nil
}

func (bh BusinessHours) MarshalJSON() ([]byte, error) {
	out := make(map[string]*DayHours, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if h, ok := bh[wd]; ok {
			h := h
			out[WeekdayName(wd)] = &h
		} else {
			out[WeekdayName(wd)] = nil
		}
	}
	return json.Marshal(out)
}

func (bh *BusinessHours) UnmarshalJSON(b []byte) error {
	var raw map[string]*DayHours
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := NewBusinessHours(raw)
	if err != nil {
		return err
	}
	*bh = parsed
	return nil
}
