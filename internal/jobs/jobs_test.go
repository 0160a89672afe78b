package jobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learncal/internal/archive"
	"learncal/internal/calendar"
	"learncal/internal/config"
	"learncal/internal/ics"
	"learncal/internal/model"
)

const holidayFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:founders-day\r\n" +
	"SUMMARY:Founders Day\r\n" +
	"DTSTART;VALUE=DATE:20250901\r\n" +
	"DTEND;VALUE=DATE:20250902\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestRefreshSubscriptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(holidayFeed))
	}))
	defer srv.Close()

	cal := calendar.New(model.DefaultPreferences())
	_, err := cal.Store().Add(calendar.EventInput{ID: "local", Title: "Office hours"})
	require.NoError(t, err)

	var mu sync.Mutex
	r := NewRunner(cal, &mu, Options{
		Fetcher: ics.NewFetcher(t.TempDir(), srv.Client()),
		Subscriptions: []config.SubscriptionConfig{
			{ID: "holidays", URL: srv.URL},
			{ID: "broken", URL: "http://127.0.0.1:1/unreachable.ics"},
		},
	})

	err = r.RefreshSubscriptions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	// Twice to make sure the feed's events are replaced, not appended.
	_ = r.RefreshSubscriptions(context.Background())

	holidays := cal.Store().Filter(calendar.EventFilter{Source: "holidays"})
	require.Len(t, holidays, 1)
	assert.Equal(t, "holidays:founders-day", holidays[0].ID)
	assert.True(t, holidays[0].AllDay)
	assert.Equal(t, 2, cal.Store().Len())

	got := cal.EventsForDate(time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC))
	require.Len(t, got, 1)
	assert.Equal(t, "Founders Day", got[0].Title)
}

func TestSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calendar.json")
	cal := calendar.New(model.DefaultPreferences())
	_, err := cal.Store().Add(calendar.EventInput{ID: "a", Title: "A"})
	require.NoError(t, err)

	var mu sync.Mutex
	r := NewRunner(cal, &mu, Options{SnapshotPath: path})
	require.NoError(t, r.Snapshot())

	restored := calendar.New(model.DefaultPreferences())
	n, err := archive.LoadFile(path, restored)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestScheduleValidatesSpecs(t *testing.T) {
	var mu sync.Mutex
	cal := calendar.New(model.DefaultPreferences())
	r := NewRunner(cal, &mu, Options{
		SnapshotPath:  "unused.json",
		Subscriptions: []config.SubscriptionConfig{{ID: "x", URL: "http://example.invalid"}},
	})

	assert.Error(t, r.Schedule("not a cron spec", ""))
	assert.NoError(t, r.Schedule("*/30 * * * *", "*/5 * * * *"))
	assert.Len(t, r.cron.Entries(), 2)

	r.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Stop(ctx)
}
