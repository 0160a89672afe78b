package calendar

import (
	"sort"
	"time"

	"learncal/internal/model"
)

// TimeSlot is one hourly row of a day or week view.
type TimeSlot struct {
	Hour   int           `json:"hour"`
	Label  string        `json:"label"`
	Start  time.Time     `json:"start"`
	End    time.Time     `json:"end"`
	Events []model.Event `json:"events"`
}

// IsSameDay reports whether a and b share year, month and day, each read in
// its own location.
func IsSameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// StartOfDay truncates t to local midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay is the last nanosecond of t's local day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// WeekStart returns midnight of the first day of the week containing date,
// with weeks beginning on weekStart.
func WeekStart(date time.Time, weekStart time.Weekday) time.Time {
	d := StartOfDay(date)
	diff := (int(d.Weekday()) - int(weekStart) + 7) % 7
	return d.AddDate(0, 0, -diff)
}

// OccursOn reports whether ev renders on date's local day. Timed events
// match every day their span touches; all-day events only their start day.
func OccursOn(ev model.Event, date time.Time) bool {
	loc := date.Location()
	if ev.AllDay {
		return IsSameDay(ev.Start.In(loc), date)
	}
	day := StartOfDay(date)
	startDay := StartOfDay(ev.Start.In(loc))
	endDay := StartOfDay(ev.End.In(loc))
	return !day.Before(startDay) && !day.After(endDay)
}

// EventsOn filters events rendering on date, ordered by start.
func EventsOn(events []model.Event, date time.Time) []model.Event {
	out := make([]model.Event, 0)
	for _, ev := range events {
		if OccursOn(ev, date) {
			out = append(out, ev)
		}
	}
	sortByStart(out)
	return out
}

// TimeSlotsFor builds hourly slots for date from startHour (inclusive) to
// endHour (exclusive). An event starting on date sits in the slot of its
// start hour. One carried over from an earlier day sits in the first slot,
// provided it is still running then.
func TimeSlotsFor(date time.Time, startHour, endHour int, events []model.Event) []TimeSlot {
	if startHour < 0 {
		startHour = 0
	}
	if endHour > 24 {
		endHour = 24
	}
	loc := date.Location()
	day := StartOfDay(date)

	slots := make([]TimeSlot, 0, max(endHour-startHour, 0))
	for h := startHour; h < endHour; h++ {
		start := time.Date(day.Year(), day.Month(), day.Day(), h, 0, 0, 0, loc)
		slots = append(slots, TimeSlot{
			Hour:   h,
			Label:  start.Format("15:04"),
			Start:  start,
			End:    start.Add(time.Hour),
			Events: make([]model.Event, 0),
		})
	}
	if len(slots) == 0 {
		return slots
	}

	for _, ev := range events {
		s := ev.Start.In(loc)
		switch startDay := StartOfDay(s); {
		case startDay.Equal(day):
			if i := s.Hour() - startHour; i >= 0 && i < len(slots) {
				slots[i].Events = append(slots[i].Events, ev)
			}
		case startDay.Before(day) && ev.End.After(slots[0].Start):
			slots[0].Events = append(slots[0].Events, ev)
		}
	}
	return slots
}

func sortByStart(events []model.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
}
