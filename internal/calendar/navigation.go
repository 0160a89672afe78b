package calendar

import "time"

// Navigator tracks the active view mode, the reference date and the
// selected date. Navigation is unbounded in both directions.
type Navigator struct {
	Mode     ViewMode
	Current  time.Time
	Selected time.Time

	now func() time.Time
}

// NewNavigator starts in month view on today.
func NewNavigator(now func() time.Time) *Navigator {
	if now == nil {
		now = time.Now
	}
	t := now()
	return &Navigator{Mode: ViewMonth, Current: t, Selected: t, now: now}
}

// SetMode switches the view; the reference date is kept.
func (n *Navigator) SetMode(m ViewMode) {
	n.Mode = m
}

// Select marks d as the selected date without moving the view.
func (n *Navigator) Select(d time.Time) {
	n.Selected = d
}

// GoTo moves the reference date to d.
func (n *Navigator) GoTo(d time.Time) {
	n.Current = d
}

func (n *Navigator) Next() {
	n.Current = Step(n.Mode, n.Current, 1)
}

func (n *Navigator) Previous() {
	n.Current = Step(n.Mode, n.Current, -1)
}

// Today resets both the reference and the selected date to now.
func (n *Navigator) Today() {
	t := n.now()
	n.Current = t
	n.Selected = t
}

// Step moves d by delta units of mode. Month steps anchor on the first of
// the month so that Jan 31 + 1 month is Feb 1, not Mar 3.
func Step(mode ViewMode, d time.Time, delta int) time.Time {
	switch mode {
	case ViewWeek:
		return d.AddDate(0, 0, 7*delta)
	case ViewDay:
		return d.AddDate(0, 0, delta)
	case ViewYear:
		return d.AddDate(delta, 0, 0)
	default:
		anchor := time.Date(d.Year(), d.Month(), 1, d.Hour(), d.Minute(), d.Second(), d.Nanosecond(), d.Location())
		return anchor.AddDate(0, delta, 0)
	}
}
