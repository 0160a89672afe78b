package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "learncal/internal/log"
	"learncal/internal/model"
)

// MaxOccurrencesPerEvent caps how many instances one series may produce in
// a single expansion window.
const MaxOccurrencesPerEvent = 5000

const allDaySlack = 48 * time.Hour

// ErrInvalidRecurrence is returned when an event's RRule can't be parsed.
var ErrInvalidRecurrence = errors.New("invalid recurrence rule")

// ValidateRRule checks that rule is accepted by the recurrence engine.
// An empty rule is valid.
func ValidateRRule(rule string) error {
	if rule == "" {
		return nil
	}
	if _, err := rrule.StrToRRule(rule); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecurrence, err)
	}
	return nil
}

// Expand replaces every recurring event with its concrete instances whose
// span intersects [from, to]. Single events pass through unchanged.
// Instances keep the series id and carry RecurrenceID, so expanding an
// already expanded list is a no-op.
func Expand(events []model.Event, from, to time.Time) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if !ev.Recurring() || ev.RecurrenceID != nil {
			out = append(out, ev)
			continue
		}
		out = append(out, expandSeries(ev, from, to)...)
	}
	return out
}

func expandSeries(ev model.Event, from, to time.Time) []model.Event {
	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		// Stored before validation existed or imported raw; render the
		// first occurrence only.
		appLog.Error("expand: failed to parse RRULE", err, "id", ev.ID, "rrule", ev.RRule)
		return []model.Event{ev}
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	dur := ev.Duration()
	if dur < 0 {
		dur = 0
	}

	// Pull the window back by the duration so instances that started
	// earlier but are still running are included. All-day instances block
	// whole local days whatever their stored end, and the viewer's zone may
	// differ from the event's, so widen by a day on each side plus one
	// more at the front. Callers clip instances by span.
	pullBack, pushOut := dur, time.Duration(0)
	if ev.AllDay {
		pullBack += allDaySlack
		pushOut = allDaySlack / 2
	}
	rangeStart := from.Add(-pullBack).In(ev.Start.Location())
	rangeEnd := to.Add(pushOut).In(ev.Start.Location())
	starts := set.Between(rangeStart, rangeEnd, true)

	if len(starts) > MaxOccurrencesPerEvent {
		appLog.Warn("expand: truncated occurrences for series",
			"id", ev.ID,
			"cap", MaxOccurrencesPerEvent,
			"found", len(starts),
		)
		starts = starts[:MaxOccurrencesPerEvent]
	}

	out := make([]model.Event, 0, len(starts))
	for _, s := range starts {
		inst := ev.Clone()
		inst.Start = s
		inst.End = s.Add(dur)
		rid := s
		inst.RecurrenceID = &rid
		out = append(out, inst)
	}
	return out
}
