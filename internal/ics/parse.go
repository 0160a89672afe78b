package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "learncal/internal/log"
	"learncal/internal/model"
)

// Source identifies where an ICS payload came from.
type Source struct {
	ID  string
	URL string
}

const (
	propCourseID     = ical.ComponentProperty("X-LEARNCAL-COURSE-ID")
	propInstructorID = ical.ComponentProperty("X-LEARNCAL-INSTRUCTOR-ID")
	propStudentIDs   = ical.ComponentProperty("X-LEARNCAL-STUDENT-IDS")
	propCategories   = ical.ComponentProperty("CATEGORIES")
	propColor        = ical.ComponentProperty("COLOR")
	propRecurrenceID = ical.ComponentProperty("RECURRENCE-ID")
)

// Parse converts every VEVENT of body into an Event. Floating and all-day
// times are read in loc. VEVENTs overriding one instance of a series
// (RECURRENCE-ID) become standalone events and the series gets an EXDATE
// for that instance. Broken VEVENTs are logged and skipped.
func Parse(src Source, body []byte, loc *time.Location) ([]model.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.UTC
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, err
	}

	events := make([]model.Event, 0)
	overrides := make(map[string][]time.Time)
	for _, ve := range cal.Events() {
		ev, rid, perr := parseVEvent(ve, loc)
		if perr != nil {
			appLog.Error("ics vevent parse failed", perr, "id", src.ID, "url", redactURL(src.URL))
			continue
		}
		if rid != nil {
			overrides[ev.ID] = append(overrides[ev.ID], *rid)
			ev.ID = ev.ID + "@" + rid.UTC().Format("20060102T150405Z")
			ev.RRule = ""
			ev.ExDates = nil
		}
		events = append(events, ev)
	}

	for i := range events {
		if rids, ok := overrides[events[i].ID]; ok && events[i].Recurring() {
			events[i].ExDates = append(events[i].ExDates, rids...)
		}
	}

	appLog.Info("ics parse completed", "id", src.ID, "url", redactURL(src.URL), "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (model.Event, *time.Time, error) {
	ev := model.Event{
		Type:       "default",
		StudentIDs: []string{},
	}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return ev, nil, errors.New("missing UID")
	}
	ev.ID = uid.Value

	ev.Title = propValue(ve, ical.ComponentPropertySummary)
	ev.Description = propValue(ve, ical.ComponentPropertyDescription)
	ev.Location = propValue(ve, ical.ComponentPropertyLocation)
	ev.Color = propValue(ve, propColor)
	ev.CourseID = propValue(ve, propCourseID)
	ev.InstructorID = propValue(ve, propInstructorID)
	if cat := unescapeList(propValue(ve, propCategories)); cat != "" {
		// Only the first category maps to the event type.
		ev.Type, _, _ = strings.Cut(cat, ",")
	}
	if ids := unescapeList(propValue(ve, propStudentIDs)); ids != "" {
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ev.StudentIDs = append(ev.StudentIDs, id)
			}
		}
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return ev, nil, errors.New("missing DTSTART")
	}
	ev.AllDay = isDateValue(dtStart)

	if ev.AllDay {
		start, err := parseICSTime(dtStart.Value, loc)
		if err != nil {
			return ev, nil, fmt.Errorf("DTSTART: %w", err)
		}
		ev.Start = start
		ev.End = start.AddDate(0, 0, 1)
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			if end, err := parseICSTime(dtEnd.Value, loc); err == nil {
				ev.End = end
			}
		}
	} else {
		start, err := parseICSTime(dtStart.Value, tzidLocation(dtStart, loc))
		if err != nil {
			// Let the library try the forms parseICSTime doesn't know.
			if start, err = ve.GetStartAt(); err != nil {
				return ev, nil, fmt.Errorf("DTSTART: %w", err)
			}
		}
		ev.Start = start
		ev.End = start
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			if end, err := parseICSTime(dtEnd.Value, tzidLocation(dtEnd, loc)); err == nil {
				ev.End = end
			} else if end, err := ve.GetEndAt(); err == nil {
				ev.End = end
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.RRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, tzidLocation(p, loc)); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty(propRecurrenceID); p != nil {
		if t, err := parseICSTime(p.Value, tzidLocation(p, loc)); err == nil {
			return ev, &t, nil
		}
	}
	return ev, nil, nil
}

// unescapeList undoes TEXT escaping of list separators.
func unescapeList(v string) string {
	return strings.ReplaceAll(v, `\,`, ",")
}

func propValue(ve *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}

// isDateValue reports VALUE=DATE or a bare YYYYMMDD value.
func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func tzidLocation(p *ical.IANAProperty, fallback *time.Location) *time.Location {
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		if loc, err := time.LoadLocation(tzs[0]); err == nil {
			return loc
		}
	}
	return fallback
}

// parseICSTime parses DATE, floating DATE-TIME and UTC DATE-TIME values.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
