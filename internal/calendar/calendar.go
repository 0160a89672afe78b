package calendar

import (
	"time"

	"learncal/internal/model"
)

// Calendar ties a Store, Preferences and a Navigator together. It holds no
// global state; the owner passes it where it's needed. Like Store it is
// not safe for concurrent use.
type Calendar struct {
	store *Store
	prefs model.Preferences
	nav   *Navigator
	now   func() time.Time
}

type Option func(*Calendar)

// WithClock replaces time.Now for "today", navigation and event defaults.
func WithClock(now func() time.Time) Option {
	return func(c *Calendar) {
		c.now = now
	}
}

// WithStore uses an existing store instead of a fresh one.
func WithStore(s *Store) Option {
	return func(c *Calendar) {
		c.store = s
	}
}

func New(prefs model.Preferences, opts ...Option) *Calendar {
	c := &Calendar{prefs: prefs, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = NewStore()
	}
	c.store.now = c.now
	c.store.SetDefaultDuration(prefs.EventDuration())
	c.nav = NewNavigator(c.now)
	return c
}

func (c *Calendar) Store() *Store {
	return c.store
}

func (c *Calendar) Navigator() *Navigator {
	return c.nav
}

func (c *Calendar) Preferences() model.Preferences {
	return c.prefs
}

// SetPreferences replaces the preferences; later views and new events
// pick them up.
func (c *Calendar) SetPreferences(p model.Preferences) {
	c.prefs = p
	c.store.SetDefaultDuration(p.EventDuration())
}

func (c *Calendar) Location() *time.Location {
	return c.prefs.Location()
}

// EventsForDate returns events rendering on d's day in the calendar zone.
func (c *Calendar) EventsForDate(d time.Time) []model.Event {
	day := StartOfDay(d.In(c.Location()))
	return EventsOn(Expand(c.store.All(), day, day.AddDate(0, 0, 1)), day)
}

// EventsInRange returns events (recurring ones expanded) whose span
// intersects [from, to), ordered by start.
func (c *Calendar) EventsInRange(from, to time.Time) []model.Event {
	out := make([]model.Event, 0)
	for _, ev := range Expand(c.store.All(), from, to) {
		s, e := span(ev, c.Location())
		if s.Before(to) && e.After(from) {
			out = append(out, ev)
		}
	}
	sortByStart(out)
	return out
}

func (c *Calendar) gridOptions() GridOptions {
	return GridOptionsFor(c.prefs, c.now(), c.nav.Selected)
}

func (c *Calendar) MonthGrid() View {
	return BuildMonth(c.store.All(), c.nav.Current, c.gridOptions())
}

func (c *Calendar) WeekGrid() View {
	return BuildWeek(c.store.All(), c.nav.Current, c.gridOptions())
}

func (c *Calendar) DayGrid() View {
	return BuildDay(c.store.All(), c.nav.Current, c.gridOptions())
}

func (c *Calendar) YearGrid() View {
	return BuildYear(c.store.All(), c.nav.Current, c.gridOptions())
}

// View builds the grid for the navigator's active mode.
func (c *Calendar) View() View {
	return Build(c.nav.Mode, c.store.All(), c.nav.Current, c.gridOptions())
}

// ViewAt builds the grid for mode around ref without touching the
// navigator.
func (c *Calendar) ViewAt(mode ViewMode, ref time.Time) View {
	return Build(mode, c.store.All(), ref.In(c.Location()), GridOptionsFor(c.prefs, c.now(), ref))
}

// CheckAvailability checks [start, end) against every stored event except
// excludeID.
func (c *Calendar) CheckAvailability(start, end time.Time, excludeID string) Availability {
	return CheckAvailability(c.store.All(), start, end, excludeID, c.Location())
}

func (c *Calendar) WithinWorkingHours(start, end time.Time) bool {
	return WithinWorkingHours(c.prefs, start, end)
}

func (c *Calendar) FreeSlots(date time.Time, duration time.Duration) []Range {
	return FreeSlots(c.store.All(), c.prefs, date, duration)
}

// Upcoming lists the next limit events from now.
func (c *Calendar) Upcoming(limit int) []model.Event {
	return c.store.Upcoming(c.now(), limit)
}

// Stats summarises the stored events.
type Stats struct {
	Total     int            `json:"total"`
	AllDay    int            `json:"allDay"`
	Recurring int            `json:"recurring"`
	Upcoming  int            `json:"upcoming"`
	ByType    map[string]int `json:"byType"`
}

func (c *Calendar) Stats() Stats {
	now := c.now()
	st := Stats{ByType: make(map[string]int)}
	for _, ev := range c.store.All() {
		st.Total++
		st.ByType[ev.Type]++
		if ev.AllDay {
			st.AllDay++
		}
		if ev.Recurring() {
			st.Recurring++
		}
		if !ev.Start.Before(now) {
			st.Upcoming++
		}
	}
	return st
}
