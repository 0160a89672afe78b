package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"08:00", 480, true},
		{"18:30", 1110, true},
		{"24:00", 1440, true},
		{" 9:05 ", 545, true},
		{"24:01", 0, false},
		{"12:60", 0, false},
		{"noon", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseClock(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestPreferencesFallbacks(t *testing.T) {
	p := Preferences{
		Timezone:     "Mars/Olympus",
		WorkingHours: WorkingHours{Start: "17:00", End: "09:00"},
		WeekStartDay: 9,
	}

	assert.Equal(t, time.UTC, p.Location())
	s, e := p.WorkingHoursRange()
	assert.Equal(t, 480, s)
	assert.Equal(t, 1080, e)
	assert.Equal(t, time.Sunday, p.WeekStart())
	assert.Equal(t, time.Hour, p.EventDuration())
}

func TestPreferencesLocation(t *testing.T) {
	p := DefaultPreferences()
	p.Timezone = "Europe/Berlin"

	loc := p.Location()
	require.NotNil(t, loc)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestEventCloneIsDeep(t *testing.T) {
	rid := time.Date(2025, 8, 14, 9, 0, 0, 0, time.UTC)
	ev := Event{ID: "a", StudentIDs: []string{"s1"}, RecurrenceID: &rid}

	cp := ev.Clone()
	cp.StudentIDs[0] = "s2"
	*cp.RecurrenceID = rid.Add(time.Hour)

	assert.Equal(t, "s1", ev.StudentIDs[0])
	assert.Equal(t, rid, *ev.RecurrenceID)
}

func TestPreferencesValidate(t *testing.T) {
	require.NoError(t, DefaultPreferences().Validate())

	bad := []func(p *Preferences){
		func(p *Preferences) { p.Timezone = "Mars/Olympus_Mons" },
		func(p *Preferences) { p.WorkingHours.Start = "9am" },
		func(p *Preferences) { p.WorkingHours = WorkingHours{Start: "18:00", End: "08:00"} },
		func(p *Preferences) { p.WeekStartDay = 7 },
		func(p *Preferences) { p.DefaultEventDuration = 0 },
	}
	for i, mutate := range bad {
		p := DefaultPreferences()
		mutate(&p)
		assert.ErrorIs(t, p.Validate(), ErrInvalidPreferences, "case %d", i)
	}
}
