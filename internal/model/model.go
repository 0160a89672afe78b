package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Event is a single scheduled occurrence (class, consultation, exam, ...).
// References to courses, instructors and students are opaque ids owned by
// external services and are never validated here.
type Event struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	AllDay bool      `json:"allDay"`

	// Type is a free-form category tag used for display grouping.
	Type string `json:"type"`

	CourseID     string   `json:"courseId,omitempty"`
	InstructorID string   `json:"instructorId,omitempty"`
	StudentIDs   []string `json:"studentIds"`

	Location string `json:"location,omitempty"`
	Color    string `json:"color,omitempty"`

	// RRule is an RFC 5545 recurrence rule without the "RRULE:" prefix,
	// e.g. "FREQ=WEEKLY;COUNT=10". Empty for single events.
	RRule   string      `json:"rrule,omitempty"`
	ExDates []time.Time `json:"exDates,omitempty"`

	// Source is the subscription id for events pulled from an ICS feed.
	Source string `json:"source,omitempty"`

	// RecurrenceID is set on expanded instances of a recurring event and
	// holds the generated occurrence start.
	RecurrenceID *time.Time `json:"recurrenceId,omitempty"`
}

// Recurring reports whether the event carries a recurrence rule.
func (e Event) Recurring() bool {
	return e.RRule != ""
}

// Duration is End-Start; negative for malformed events.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Clone returns a deep copy so callers can't mutate store-owned slices.
func (e Event) Clone() Event {
	out := e
	if e.StudentIDs != nil {
		out.StudentIDs = append([]string(nil), e.StudentIDs...)
	}
	if e.ExDates != nil {
		out.ExDates = append([]time.Time(nil), e.ExDates...)
	}
	if e.RecurrenceID != nil {
		rid := *e.RecurrenceID
		out.RecurrenceID = &rid
	}
	return out
}

// WorkingHours is a daily window in "HH:MM" form.
type WorkingHours struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// Preferences configures time zone, week layout and working hours.
type Preferences struct {
	Timezone             string       `yaml:"timezone" json:"timezone"`
	WorkingHours         WorkingHours `yaml:"working_hours" json:"workingHours"`
	WeekStartDay         int          `yaml:"week_start_day" json:"weekStartDay"`
	DefaultEventDuration int          `yaml:"default_event_duration" json:"defaultEventDuration"`

	ShowWeekends    bool `yaml:"show_weekends" json:"showWeekends"`
	ShowWeekNumbers bool `yaml:"show_week_numbers" json:"showWeekNumbers"`
	Use24Hour       bool `yaml:"use_24_hour" json:"use24Hour"`
}

const (
	DefaultTimezone          = "UTC"
	DefaultWorkingHoursStart = "08:00"
	DefaultWorkingHoursEnd   = "18:00"
	DefaultEventDuration     = 60
)

// DefaultPreferences returns the preferences used when nothing is configured.
func DefaultPreferences() Preferences {
	return Preferences{
		Timezone: DefaultTimezone,
		WorkingHours: WorkingHours{
			Start: DefaultWorkingHoursStart,
			End:   DefaultWorkingHoursEnd,
		},
		WeekStartDay:         0,
		DefaultEventDuration: DefaultEventDuration,
		ShowWeekends:         true,
		ShowWeekNumbers:      false,
		Use24Hour:            true,
	}
}

// Location resolves Timezone, falling back to UTC for empty or unknown names.
func (p Preferences) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WorkingHoursRange returns the working window as minutes from midnight.
// Malformed bounds, or an end not after start, yield the defaults.
func (p Preferences) WorkingHoursRange() (startMin, endMin int) {
	s, okS := ParseClock(p.WorkingHours.Start)
	e, okE := ParseClock(p.WorkingHours.End)
	if !okS || !okE || e <= s {
		s, _ = ParseClock(DefaultWorkingHoursStart)
		e, _ = ParseClock(DefaultWorkingHoursEnd)
	}
	return s, e
}

// EventDuration is DefaultEventDuration as a time.Duration (60m if unset).
func (p Preferences) EventDuration() time.Duration {
	if p.DefaultEventDuration <= 0 {
		return DefaultEventDuration * time.Minute
	}
	return time.Duration(p.DefaultEventDuration) * time.Minute
}

// WeekStart returns WeekStartDay clamped into 0..6.
func (p Preferences) WeekStart() time.Weekday {
	if p.WeekStartDay < 0 || p.WeekStartDay > 6 {
		return time.Sunday
	}
	return time.Weekday(p.WeekStartDay)
}

// ParseClock parses "HH:MM" (24h, "24:00" allowed) into minutes from midnight.
func ParseClock(s string) (int, bool) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, false
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, false
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, false
	}
	return h*60 + m, true
}

// ErrInvalidPreferences is wrapped by Validate failures.
var ErrInvalidPreferences = errors.New("invalid preferences")

// Validate reports the first unusable field. Views never need it since
// every accessor falls back to defaults; it exists for callers that want
// to reject bad input instead of silently correcting it.
func (p Preferences) Validate() error {
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return fmt.Errorf("%w: timezone %q", ErrInvalidPreferences, p.Timezone)
		}
	}
	s, okS := ParseClock(p.WorkingHours.Start)
	e, okE := ParseClock(p.WorkingHours.End)
	if !okS || !okE || e <= s {
		return fmt.Errorf("%w: working hours %q-%q", ErrInvalidPreferences, p.WorkingHours.Start, p.WorkingHours.End)
	}
	if p.WeekStartDay < 0 || p.WeekStartDay > 6 {
		return fmt.Errorf("%w: week start day %d", ErrInvalidPreferences, p.WeekStartDay)
	}
	if p.DefaultEventDuration <= 0 {
		return fmt.Errorf("%w: default event duration %d", ErrInvalidPreferences, p.DefaultEventDuration)
	}
	return nil
}
