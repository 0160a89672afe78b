package calendar

import (
	"time"

	"learncal/internal/model"
)

// FreeSlotStep is the granularity at which FreeSlots probes candidates.
const FreeSlotStep = 30 * time.Minute

// Availability is the outcome of a conflict check.
type Availability struct {
	Available     bool          `json:"available"`
	Conflicts     []model.Event `json:"conflicts"`
	ConflictCount int           `json:"conflictCount"`
}

// Range is a proposed [Start, End) interval.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CheckAvailability scans events for overlaps with [start, end). Touching
// endpoints don't conflict. All-day events occupy their whole days in loc.
// An event whose id equals excludeID is ignored.
//
// This is a linear scan over the expanded window; an interval tree would
// be the place to start if stores grow large.
func CheckAvailability(events []model.Event, start, end time.Time, excludeID string, loc *time.Location) Availability {
	if loc == nil {
		loc = time.UTC
	}
	res := Availability{Available: true, Conflicts: make([]model.Event, 0)}
	for _, ev := range Expand(events, start, end) {
		if excludeID != "" && ev.ID == excludeID {
			continue
		}
		evStart, evEnd := span(ev, loc)
		if evStart.Before(end) && evEnd.After(start) {
			res.Conflicts = append(res.Conflicts, ev)
		}
	}
	res.ConflictCount = len(res.Conflicts)
	res.Available = res.ConflictCount == 0
	return res
}

// span returns the interval an event blocks. All-day events cover
// [midnight of start day, midnight after end day); an end that is already
// a midnight past start is treated as exclusive.
func span(ev model.Event, loc *time.Location) (time.Time, time.Time) {
	if !ev.AllDay {
		return ev.Start, ev.End
	}
	start := StartOfDay(ev.Start.In(loc))
	endLocal := ev.End.In(loc)
	end := StartOfDay(endLocal)
	if !(endLocal.Equal(end) && end.After(start)) {
		end = end.AddDate(0, 0, 1)
	}
	if end.Before(start) {
		end = start.AddDate(0, 0, 1)
	}
	return start, end
}

// WithinWorkingHours reports whether [start, end) lies on a single local
// day inside the working window of p.
func WithinWorkingHours(p model.Preferences, start, end time.Time) bool {
	loc := p.Location()
	s := start.In(loc)
	e := end.In(loc)
	if !e.After(s) {
		return false
	}
	whStart, whEnd := p.WorkingHoursRange()
	day := StartOfDay(s)
	open := atMinute(day, whStart)
	closeAt := atMinute(day, whEnd)
	return !s.Before(open) && !e.After(closeAt)
}

// FreeSlots lists conflict-free ranges of length duration inside date's
// working hours, probing every FreeSlotStep. duration <= 0 uses the
// preference default.
func FreeSlots(events []model.Event, p model.Preferences, date time.Time, duration time.Duration) []Range {
	if duration <= 0 {
		duration = p.EventDuration()
	}
	loc := p.Location()
	whStart, whEnd := p.WorkingHoursRange()
	day := StartOfDay(date.In(loc))
	open := atMinute(day, whStart)
	closeAt := atMinute(day, whEnd)

	dayEvents := Expand(events, open, closeAt)
	out := make([]Range, 0)
	for t := open; !t.Add(duration).After(closeAt); t = t.Add(FreeSlotStep) {
		if CheckAvailability(dayEvents, t, t.Add(duration), "", loc).Available {
			out = append(out, Range{Start: t, End: t.Add(duration)})
		}
	}
	return out
}

func atMinute(day time.Time, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 0, minute, 0, 0, day.Location())
}
