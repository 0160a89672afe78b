package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"learncal/internal/model"
)

const productID = "-//learncal//scheduling engine//EN"

// Encode renders events as an iCalendar feed. All-day events are written as
// DATE values in loc; everything else as UTC DATE-TIME.
func Encode(events []model.Event, name string, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}
	cal.SetXWRTimezone(loc.String())

	stamp := time.Now().UTC()
	for _, ev := range events {
		ve := cal.AddEvent(ev.ID)
		ve.SetDtStampTime(stamp)
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}

		if ev.AllDay {
			start := ev.Start.In(loc)
			end := ev.End.In(loc)
			startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
			endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)
			if !endDay.After(startDay) {
				endDay = startDay.AddDate(0, 0, 1)
			}
			ve.SetAllDayStartAt(startDay)
			ve.SetAllDayEndAt(endDay)
		} else {
			ve.SetStartAt(ev.Start)
			ve.SetEndAt(ev.End)
		}

		if ev.Type != "" {
			ve.SetProperty(propCategories, ev.Type)
		}
		if ev.Color != "" {
			ve.SetProperty(propColor, ev.Color)
		}
		if ev.CourseID != "" {
			ve.SetProperty(propCourseID, ev.CourseID)
		}
		if ev.InstructorID != "" {
			ve.SetProperty(propInstructorID, ev.InstructorID)
		}
		if len(ev.StudentIDs) > 0 {
			ve.SetProperty(propStudentIDs, strings.Join(ev.StudentIDs, ","))
		}
		if ev.RRule != "" {
			ve.SetProperty(ical.ComponentPropertyRrule, ev.RRule)
		}
		for _, ex := range ev.ExDates {
			ve.AddProperty(ical.ComponentPropertyExdate, ex.UTC().Format("20060102T150405Z"))
		}
	}
	return cal.Serialize()
}
