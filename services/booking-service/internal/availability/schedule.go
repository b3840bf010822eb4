package availability

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

var (
	ErrInvalidDate = errors.New("invalid date format, expected YYYY-MM-DD")
	ErrPastDate    = errors.New("date is in the past")
	ErrOutOfRange  = errors.New("date is beyond the booking window")
)

// Schedule describes the bookable grid of a business day: slots of SlotDuration laid from
// WorkStart up to WorkEnd (offsets from local midnight), bookable up to LookaheadDays ahead.
type Schedule struct {
	WorkStart     time.Duration
	WorkEnd       time.Duration
	SlotDuration  time.Duration
	LookaheadDays int
	Location      *time.Location
}

// Slot is one offerable appointment start on the grid.
type Slot struct {
	Date  string
	Time  string
	Start time.Time
	End   time.Time
}

// Label is the 24-hour "HH:MM" form shown to clients.
func (s Slot) Label() string { return s.Time }

func (s Schedule) Validate() error {
	if s.SlotDuration <= 0 {
		return errors.New("slot duration must be positive")
	}
	if s.WorkStart < 0 || s.WorkEnd > 24*time.Hour {
		return errors.New("working hours must lie within a day")
	}
	if s.WorkStart >= s.WorkEnd {
		return fmt.Errorf("work start %s must be before work end %s", FormatClock(s.WorkStart), FormatClock(s.WorkEnd))
	}
	if s.LookaheadDays < 0 {
		return errors.New("lookahead days must not be negative")
	}
	return nil
}

// Loc is the business location, UTC when unset.
func (s Schedule) Loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// Today returns the business-local calendar date of now.
func (s Schedule) Today(now time.Time) string {
	return now.In(s.Loc()).Format(DateLayout)
}

// ParseDay validates date against the booking window and returns local midnight of that day.
// Checks run in order: format, past, beyond lookahead.
func (s Schedule) ParseDay(date string, now time.Time) (time.Time, error) {
	loc := s.Loc()
	day, err := time.ParseInLocation(DateLayout, strings.TrimSpace(date), loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	if day.Before(today) {
		return time.Time{}, ErrPastDate
	}
	if day.After(today.AddDate(0, 0, s.LookaheadDays)) {
		return time.Time{}, ErrOutOfRange
	}
	return day, nil
}

// Window returns the working-hours interval of day.
func (s Schedule) Window(day time.Time) Interval {
	return Interval{Start: clockOn(day, s.WorkStart), End: clockOn(day, s.WorkEnd)}
}

// Compute returns the free slots of date, ascending. Slots overlapping busy, or not strictly
// after now, are dropped. An empty result is a fully booked day, not an error.
// Every slot ends by WorkEnd, so a remainder shorter than SlotDuration is not offered.
func (s Schedule) Compute(date string, busy []Interval, now time.Time) ([]Slot, error) {
	day, err := s.ParseDay(date, now)
	if err != nil {
		return nil, err
	}
	win := s.Window(day)
	starts := AvailableSlots(win.Start, win.End, s.SlotDuration, s.SlotDuration, busy, now)

	slots := make([]Slot, 0, len(starts))
	for _, start := range starts {
		slots = append(slots, Slot{
			Date:  day.Format(DateLayout),
			Time:  start.Format(ClockLayout),
			Start: start,
			End:   start.Add(s.SlotDuration),
		})
	}
	return slots, nil
}

// ReservedIntervals turns booked "HH:MM" labels on date into busy intervals of one slot each.
// Labels that do not parse are skipped. A label off the grid blocks every slot it overlaps.
func (s Schedule) ReservedIntervals(date string, times []string) []Interval {
	day, err := time.ParseInLocation(DateLayout, date, s.Loc())
	if err != nil {
		return nil
	}
	out := make([]Interval, 0, len(times))
	for _, label := range times {
		offset, err := ParseClock(label)
		if err != nil {
			continue
		}
		start := clockOn(day, offset)
		out = append(out, Interval{Start: start, End: start.Add(s.SlotDuration)})
	}
	return out
}

// At returns the instant of clock label on date in the business location.
func (s Schedule) At(date, clock string) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, date, s.Loc())
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	offset, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return clockOn(day, offset), nil
}

// ParseClock parses a 24-hour "HH:MM" label into an offset from midnight.
func ParseClock(label string) (time.Duration, error) {
	label = strings.TrimSpace(label)
	if len(label) != len(ClockLayout) {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", label)
	}
	t, err := time.Parse(ClockLayout, label)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", label)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func FormatClock(offset time.Duration) string {
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	return fmt.Sprintf("%02d:%02d", h, m)
}

// clockOn builds the wall-clock time offset after midnight of day, so DST shifts keep labels stable.
func clockOn(day time.Time, offset time.Duration) time.Time {
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}
