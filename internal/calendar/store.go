package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"learncal/internal/model"
)

const (
	DefaultEventType  = "default"
	DefaultEventColor = "#3b82f6"
	copySuffix        = " (Copy)"
)

// ErrDuplicateID is returned when a caller-supplied id is already stored.
var ErrDuplicateID = errors.New("duplicate event id")

// EventInput is the caller-supplied shape for a new event. Zero values are
// filled by NewEvent.
type EventInput struct {
	ID           string      `json:"id,omitempty"`
	Title        string      `json:"title"`
	Description  string      `json:"description,omitempty"`
	Start        time.Time   `json:"start"`
	End          time.Time   `json:"end"`
	AllDay       bool        `json:"allDay"`
	Type         string      `json:"type,omitempty"`
	CourseID     string      `json:"courseId,omitempty"`
	InstructorID string      `json:"instructorId,omitempty"`
	StudentIDs   []string    `json:"studentIds,omitempty"`
	Location     string      `json:"location,omitempty"`
	Color        string      `json:"color,omitempty"`
	RRule        string      `json:"rrule,omitempty"`
	ExDates      []time.Time `json:"exDates,omitempty"`
	Source       string      `json:"source,omitempty"`
}

// EventPatch carries a partial update; nil fields are left untouched.
type EventPatch struct {
	Title        *string      `json:"title,omitempty"`
	Description  *string      `json:"description,omitempty"`
	Start        *time.Time   `json:"start,omitempty"`
	End          *time.Time   `json:"end,omitempty"`
	AllDay       *bool        `json:"allDay,omitempty"`
	Type         *string      `json:"type,omitempty"`
	CourseID     *string      `json:"courseId,omitempty"`
	InstructorID *string      `json:"instructorId,omitempty"`
	StudentIDs   *[]string    `json:"studentIds,omitempty"`
	Location     *string      `json:"location,omitempty"`
	Color        *string      `json:"color,omitempty"`
	RRule        *string      `json:"rrule,omitempty"`
	ExDates      *[]time.Time `json:"exDates,omitempty"`
}

// EventFilter selects events by their reference fields. Empty fields match
// everything.
type EventFilter struct {
	Type         string
	CourseID     string
	InstructorID string
	StudentID    string
	Source       string
}

// NewEvent builds an Event from in, filling every missing field:
//
//   - ID:         a random UUID
//   - Start:      now
//   - End:        Start + duration
//   - Type:       "default"
//   - StudentIDs: empty, never nil
//   - Color:      DefaultEventColor
//
// AllDay keeps its zero value (false) unless set.
func NewEvent(in EventInput, now time.Time, duration time.Duration) model.Event {
	ev := model.Event{
		ID:           in.ID,
		Title:        in.Title,
		Description:  in.Description,
		Start:        in.Start,
		End:          in.End,
		AllDay:       in.AllDay,
		Type:         in.Type,
		CourseID:     in.CourseID,
		InstructorID: in.InstructorID,
		StudentIDs:   append([]string{}, in.StudentIDs...),
		Location:     in.Location,
		Color:        in.Color,
		RRule:        in.RRule,
		Source:       in.Source,
	}
	if in.ExDates != nil {
		ev.ExDates = append([]time.Time(nil), in.ExDates...)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Start.IsZero() {
		ev.Start = now
	}
	if ev.End.IsZero() {
		ev.End = ev.Start.Add(duration)
	}
	if ev.Type == "" {
		ev.Type = DefaultEventType
	}
	if ev.Color == "" {
		ev.Color = DefaultEventColor
	}
	return ev
}

// Store is an ordered in-memory event collection. It is not safe for
// concurrent use; callers serialise access.
type Store struct {
	events   []model.Event
	now      func() time.Time
	duration time.Duration
}

// NewStore returns an empty store using time.Now and a one-hour default
// event duration.
func NewStore() *Store {
	return &Store{
		events:   make([]model.Event, 0),
		now:      time.Now,
		duration: model.DefaultEventDuration * time.Minute,
	}
}

// SetDefaultDuration changes the span given to events added without End.
func (s *Store) SetDefaultDuration(d time.Duration) {
	if d > 0 {
		s.duration = d
	}
}

// Add stores a new event built by NewEvent and returns it.
func (s *Store) Add(in EventInput) (model.Event, error) {
	if in.ID != "" && s.index(in.ID) >= 0 {
		return model.Event{}, fmt.Errorf("%w: %s", ErrDuplicateID, in.ID)
	}
	if err := ValidateRRule(in.RRule); err != nil {
		return model.Event{}, err
	}
	ev := NewEvent(in, s.now(), s.duration)
	s.events = append(s.events, ev)
	return ev.Clone(), nil
}

// Update merges p into the event with the given id. Unknown ids are a
// silent no-op.
func (s *Store) Update(id string, p EventPatch) error {
	i := s.index(id)
	if i < 0 {
		return nil
	}
	if p.RRule != nil {
		if err := ValidateRRule(*p.RRule); err != nil {
			return err
		}
	}

	ev := &s.events[i]
	if p.Title != nil {
		ev.Title = *p.Title
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if p.Start != nil {
		ev.Start = *p.Start
	}
	if p.End != nil {
		ev.End = *p.End
	}
	if p.AllDay != nil {
		ev.AllDay = *p.AllDay
	}
	if p.Type != nil {
		ev.Type = *p.Type
	}
	if p.CourseID != nil {
		ev.CourseID = *p.CourseID
	}
	if p.InstructorID != nil {
		ev.InstructorID = *p.InstructorID
	}
	if p.StudentIDs != nil {
		ev.StudentIDs = append([]string{}, (*p.StudentIDs)...)
	}
	if p.Location != nil {
		ev.Location = *p.Location
	}
	if p.Color != nil {
		ev.Color = *p.Color
	}
	if p.RRule != nil {
		ev.RRule = *p.RRule
	}
	if p.ExDates != nil {
		ev.ExDates = append([]time.Time(nil), (*p.ExDates)...)
	}
	return nil
}

// Remove deletes the event with the given id; unknown ids are ignored.
func (s *Store) Remove(id string) {
	kept := s.events[:0]
	for _, ev := range s.events {
		if ev.ID != id {
			kept = append(kept, ev)
		}
	}
	s.events = kept
}

// Duplicate copies an event one day later under a new id.
func (s *Store) Duplicate(id string) (model.Event, bool) {
	i := s.index(id)
	if i < 0 {
		return model.Event{}, false
	}
	cp := s.events[i].Clone()
	cp.ID = uuid.NewString()
	cp.Title += copySuffix
	cp.Start = cp.Start.Add(24 * time.Hour)
	cp.End = cp.End.Add(24 * time.Hour)
	for j := range cp.ExDates {
		cp.ExDates[j] = cp.ExDates[j].Add(24 * time.Hour)
	}
	s.events = append(s.events, cp)
	return cp.Clone(), true
}

func (s *Store) Get(id string) (model.Event, bool) {
	i := s.index(id)
	if i < 0 {
		return model.Event{}, false
	}
	return s.events[i].Clone(), true
}

// All returns a copy of every stored event in insertion order.
func (s *Store) All() []model.Event {
	out := make([]model.Event, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Clone()
	}
	return out
}

func (s *Store) Len() int {
	return len(s.events)
}

// Replace swaps the whole collection. Events without an id get a fresh
// one. It fails without side effects when events repeats an id.
func (s *Store) Replace(events []model.Event) error {
	next, err := cloneUnique(events, nil)
	if err != nil {
		return err
	}
	s.events = next
	return nil
}

// ReplaceSource drops every event tagged with source and stores events in
// their place, tagged with the same source.
func (s *Store) ReplaceSource(source string, events []model.Event) error {
	kept := make([]model.Event, 0, len(s.events))
	for _, ev := range s.events {
		if ev.Source != source {
			kept = append(kept, ev)
		}
	}
	incoming, err := cloneUnique(events, kept)
	if err != nil {
		return err
	}
	for i := range incoming {
		incoming[i].Source = source
	}
	s.events = append(kept, incoming...)
	return nil
}

// Match reports whether ev satisfies every non-empty field of f.
func (f EventFilter) Match(ev model.Event) bool {
	switch {
	case f.Type != "" && ev.Type != f.Type:
		return false
	case f.CourseID != "" && ev.CourseID != f.CourseID:
		return false
	case f.InstructorID != "" && ev.InstructorID != f.InstructorID:
		return false
	case f.Source != "" && ev.Source != f.Source:
		return false
	case f.StudentID != "" && !contains(ev.StudentIDs, f.StudentID):
		return false
	}
	return true
}

// Filter returns the events matching f.
func (s *Store) Filter(f EventFilter) []model.Event {
	out := make([]model.Event, 0)
	for _, ev := range s.events {
		if f.Match(ev) {
			out = append(out, ev.Clone())
		}
	}
	return out
}

// Upcoming lists up to limit events starting at or after now, earliest
// first. limit <= 0 means no limit.
func (s *Store) Upcoming(now time.Time, limit int) []model.Event {
	out := make([]model.Event, 0)
	for _, ev := range s.events {
		if !ev.Start.Before(now) {
			out = append(out, ev.Clone())
		}
	}
	sortByStart(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) index(id string) int {
	for i, ev := range s.events {
		if ev.ID == id {
			return i
		}
	}
	return -1
}

func cloneUnique(events []model.Event, existing []model.Event) ([]model.Event, error) {
	seen := make(map[string]struct{}, len(events)+len(existing))
	for _, ev := range existing {
		seen[ev.ID] = struct{}{}
	}
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		if _, ok := seen[ev.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, ev.ID)
		}
		seen[ev.ID] = struct{}{}
		cp := ev.Clone()
		if cp.StudentIDs == nil {
			cp.StudentIDs = []string{}
		}
		out = append(out, cp)
	}
	return out, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
