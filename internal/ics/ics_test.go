package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learncal/internal/model"
)

func TestEncodeParseRoundTrip(t *testing.T) {
	events := []model.Event{
		{
			ID:           "math-101",
			Title:        "Math 101",
			Description:  "Linear equations",
			Start:        time.Date(2025, 8, 14, 9, 0, 0, 0, time.UTC),
			End:          time.Date(2025, 8, 14, 10, 0, 0, 0, time.UTC),
			Type:         "class",
			CourseID:     "c-1",
			InstructorID: "i-7",
			StudentIDs:   []string{"s-1", "s-2"},
			Location:     "Room 4",
			Color:        "#ef4444",
			RRule:        "FREQ=WEEKLY;COUNT=10",
			ExDates:      []time.Time{time.Date(2025, 8, 21, 9, 0, 0, 0, time.UTC)},
		},
		{
			ID:     "holiday",
			Title:  "Holiday",
			AllDay: true,
			Start:  time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC),
			End:    time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC),
			Type:   "default",
		},
	}

	body := Encode(events, "Term 1", time.UTC)
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "X-WR-CALNAME:Term 1")

	got, err := Parse(Source{ID: "local"}, []byte(body), time.UTC)
	require.NoError(t, err)
	require.Len(t, got, 2)

	math := got[0]
	assert.Equal(t, "math-101", math.ID)
	assert.Equal(t, "Math 101", math.Title)
	assert.Equal(t, "Room 4", math.Location)
	assert.Equal(t, "class", math.Type)
	assert.Equal(t, "c-1", math.CourseID)
	assert.Equal(t, "i-7", math.InstructorID)
	assert.Equal(t, []string{"s-1", "s-2"}, math.StudentIDs)
	assert.Equal(t, "#ef4444", math.Color)
	assert.Equal(t, "FREQ=WEEKLY;COUNT=10", math.RRule)
	assert.True(t, math.Start.Equal(events[0].Start))
	assert.True(t, math.End.Equal(events[0].End))
	require.Len(t, math.ExDates, 1)
	assert.True(t, math.ExDates[0].Equal(events[0].ExDates[0]))
	assert.False(t, math.AllDay)

	holiday := got[1]
	assert.True(t, holiday.AllDay)
	assert.Equal(t, events[1].Start, holiday.Start)
	assert.Equal(t, events[1].Start.AddDate(0, 0, 1), holiday.End)
}

const overrideFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:series\r\n" +
	"SUMMARY:Lecture\r\n" +
	"DTSTART:20250804T100000Z\r\n" +
	"DTEND:20250804T110000Z\r\n" +
	"RRULE:FREQ=WEEKLY;COUNT=4\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:series\r\n" +
	"RECURRENCE-ID:20250811T100000Z\r\n" +
	"SUMMARY:Lecture (moved)\r\n" +
	"DTSTART:20250812T140000Z\r\n" +
	"DTEND:20250812T150000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"SUMMARY:No uid\r\n" +
	"DTSTART:20250812T140000Z\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseOverridesBecomeStandaloneEvents(t *testing.T) {
	got, err := Parse(Source{ID: "feed"}, []byte(overrideFeed), time.UTC)
	require.NoError(t, err)
	require.Len(t, got, 2)

	series := got[0]
	assert.Equal(t, "series", series.ID)
	require.Len(t, series.ExDates, 1)
	assert.True(t, series.ExDates[0].Equal(time.Date(2025, 8, 11, 10, 0, 0, 0, time.UTC)))

	moved := got[1]
	assert.Equal(t, "series@20250811T100000Z", moved.ID)
	assert.Equal(t, "Lecture (moved)", moved.Title)
	assert.Empty(t, moved.RRule)
}

func TestParseEmptyBody(t *testing.T) {
	_, err := Parse(Source{ID: "x"}, nil, time.UTC)
	assert.Error(t, err)
}

func TestFetcherUsesConditionalRequests(t *testing.T) {
	var hits, conditional atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(overrideFeed))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "feed", URL: srv.URL + "/feed.ics?token=secret"}

	first, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, overrideFeed, string(first.Body))

	second, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, overrideFeed, string(second.Body))

	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, int32(1), conditional.Load())
}

func TestFetcherFallsBackToCacheOnServerError(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(overrideFeed))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "feed", URL: srv.URL}

	_, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)

	fail.Store(true)
	res, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)

	_, err = NewFetcher(t.TempDir(), srv.Client()).Fetch(context.Background(), src)
	assert.Error(t, err)
}

func TestFetcherRejectsOversizedFeed(t *testing.T) {
	var big atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if big.Load() {
			_, _ = w.Write([]byte(overrideFeed + strings.Repeat("X", 4096)))
			return
		}
		_, _ = w.Write([]byte(overrideFeed))
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	f := NewFetcher(cacheDir, srv.Client())
	f.maxBytes = int64(len(overrideFeed))
	src := Source{ID: "feed", URL: srv.URL}

	_, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)

	big.Store(true)
	res, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, overrideFeed, string(res.Body))

	onDisk, err := os.ReadFile(filepath.Join(f.cachePath(src.URL), "body.ics"))
	require.NoError(t, err)
	assert.Equal(t, overrideFeed, string(onDisk))

	empty := NewFetcher(t.TempDir(), srv.Client())
	empty.maxBytes = int64(len(overrideFeed))
	_, err = empty.Fetch(context.Background(), src)
	assert.ErrorContains(t, err, "exceeds")
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/private/cal.ics?token=abc"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}
