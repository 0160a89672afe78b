package calendar

import (
	"fmt"
	"strings"
	"time"

	"learncal/internal/model"
)

// ViewMode selects one of the four grid shapes.
type ViewMode string

const (
	ViewMonth ViewMode = "month"
	ViewWeek  ViewMode = "week"
	ViewDay   ViewMode = "day"
	ViewYear  ViewMode = "year"
)

const monthGridCells = 42

// ParseViewMode accepts "month", "week", "day" or "year" in any case.
func ParseViewMode(s string) (ViewMode, error) {
	switch m := ViewMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ViewMonth, ViewWeek, ViewDay, ViewYear:
		return m, nil
	default:
		return "", fmt.Errorf("unknown view mode %q", s)
	}
}

// DayCell is one day of a month, week or day grid.
type DayCell struct {
	Date           time.Time     `json:"date"`
	IsCurrentMonth bool          `json:"isCurrentMonth"`
	IsToday        bool          `json:"isToday"`
	IsSelected     bool          `json:"isSelected"`
	IsWeekend      bool          `json:"isWeekend"`
	Events         []model.Event `json:"events"`
	Slots          []TimeSlot    `json:"slots,omitempty"`
}

// MonthSummary is one cell of the year grid.
type MonthSummary struct {
	Month        time.Month    `json:"month"`
	Name         string        `json:"name"`
	Days         int           `json:"days"`
	FirstWeekday time.Weekday  `json:"firstWeekday"`
	Offset       int           `json:"offset"`
	Events       []model.Event `json:"events"`
}

// View is the computed model for the active mode. Days is used by month,
// week and day views; Months by the year view.
type View struct {
	Mode      ViewMode       `json:"mode"`
	Reference time.Time      `json:"reference"`
	RangeFrom time.Time      `json:"rangeFrom"`
	RangeTo   time.Time      `json:"rangeTo"`
	Days      []DayCell      `json:"days,omitempty"`
	Months    []MonthSummary `json:"months,omitempty"`
}

// GridOptions carries everything the pure builders need besides events
// and the reference date.
type GridOptions struct {
	Location  *time.Location
	WeekStart time.Weekday
	// WorkStartHour and WorkEndHour bound week-view slots.
	WorkStartHour int
	WorkEndHour   int
	Today         time.Time
	Selected      time.Time
}

// GridOptionsFor derives builder options from preferences.
func GridOptionsFor(p model.Preferences, today, selected time.Time) GridOptions {
	startMin, endMin := p.WorkingHoursRange()
	endHour := endMin / 60
	if endMin%60 != 0 {
		endHour++
	}
	return GridOptions{
		Location:      p.Location(),
		WeekStart:     p.WeekStart(),
		WorkStartHour: startMin / 60,
		WorkEndHour:   endHour,
		Today:         today,
		Selected:      selected,
	}
}

func (o GridOptions) loc() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

// BuildMonth returns six full weeks starting at the week that contains the
// first of ref's month.
func BuildMonth(events []model.Event, ref time.Time, opts GridOptions) View {
	loc := opts.loc()
	ref = ref.In(loc)
	first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, loc)
	start := WeekStart(first, opts.WeekStart)
	end := start.AddDate(0, 0, monthGridCells)

	expanded := Expand(events, start, end)
	days := make([]DayCell, 0, monthGridCells)
	for i := 0; i < monthGridCells; i++ {
		d := start.AddDate(0, 0, i)
		cell := dayCell(expanded, d, opts)
		cell.IsCurrentMonth = d.Month() == first.Month()
		days = append(days, cell)
	}
	return View{Mode: ViewMonth, Reference: ref, RangeFrom: start, RangeTo: end, Days: days}
}

// BuildWeek returns seven days from WeekStart(ref) with working-hour slots.
func BuildWeek(events []model.Event, ref time.Time, opts GridOptions) View {
	loc := opts.loc()
	ref = ref.In(loc)
	start := WeekStart(ref, opts.WeekStart)
	end := start.AddDate(0, 0, 7)

	expanded := Expand(events, start, end)
	days := make([]DayCell, 0, 7)
	for i := 0; i < 7; i++ {
		d := start.AddDate(0, 0, i)
		cell := dayCell(expanded, d, opts)
		cell.IsCurrentMonth = d.Month() == ref.Month()
		cell.Slots = TimeSlotsFor(d, opts.WorkStartHour, opts.WorkEndHour, cell.Events)
		days = append(days, cell)
	}
	return View{Mode: ViewWeek, Reference: ref, RangeFrom: start, RangeTo: end, Days: days}
}

// BuildDay returns ref's day with all 24 hourly slots.
func BuildDay(events []model.Event, ref time.Time, opts GridOptions) View {
	loc := opts.loc()
	ref = ref.In(loc)
	start := StartOfDay(ref)
	end := start.AddDate(0, 0, 1)

	cell := dayCell(Expand(events, start, end), start, opts)
	cell.IsCurrentMonth = true
	cell.Slots = TimeSlotsFor(start, 0, 24, cell.Events)
	return View{Mode: ViewDay, Reference: ref, RangeFrom: start, RangeTo: end, Days: []DayCell{cell}}
}

// BuildYear returns twelve month summaries. Events are bucketed by start
// only, so a span crossing a month boundary is listed once.
func BuildYear(events []model.Event, ref time.Time, opts GridOptions) View {
	loc := opts.loc()
	ref = ref.In(loc)
	start := time.Date(ref.Year(), time.January, 1, 0, 0, 0, 0, loc)
	end := start.AddDate(1, 0, 0)

	expanded := Expand(events, start, end)
	months := make([]MonthSummary, 0, 12)
	for m := time.January; m <= time.December; m++ {
		first := time.Date(ref.Year(), m, 1, 0, 0, 0, 0, loc)
		next := first.AddDate(0, 1, 0)
		summary := MonthSummary{
			Month:        m,
			Name:         m.String(),
			Days:         DaysIn(ref.Year(), m),
			FirstWeekday: first.Weekday(),
			Offset:       (int(first.Weekday()) - int(opts.WeekStart) + 7) % 7,
			Events:       make([]model.Event, 0),
		}
		for _, ev := range expanded {
			s := ev.Start.In(loc)
			if !s.Before(first) && s.Before(next) {
				summary.Events = append(summary.Events, ev)
			}
		}
		sortByStart(summary.Events)
		months = append(months, summary)
	}
	return View{Mode: ViewYear, Reference: ref, RangeFrom: start, RangeTo: end, Months: months}
}

// Build dispatches to the builder for mode.
func Build(mode ViewMode, events []model.Event, ref time.Time, opts GridOptions) View {
	switch mode {
	case ViewWeek:
		return BuildWeek(events, ref, opts)
	case ViewDay:
		return BuildDay(events, ref, opts)
	case ViewYear:
		return BuildYear(events, ref, opts)
	default:
		return BuildMonth(events, ref, opts)
	}
}

func dayCell(events []model.Event, d time.Time, opts GridOptions) DayCell {
	loc := d.Location()
	wd := d.Weekday()
	return DayCell{
		Date:       d,
		IsToday:    !opts.Today.IsZero() && IsSameDay(d, opts.Today.In(loc)),
		IsSelected: !opts.Selected.IsZero() && IsSameDay(d, opts.Selected.In(loc)),
		IsWeekend:  wd == time.Saturday || wd == time.Sunday,
		Events:     EventsOn(events, d),
	}
}
