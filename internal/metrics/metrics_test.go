package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCounters(t *testing.T) {
	m := New()

	m.TrackAvailability(true)
	m.TrackAvailability(false)
	m.TrackAvailability(false)
	m.TrackImport("json", true)
	m.TrackJob("snapshot", false)
	m.SetStoredEvents(7)

	out := scrape(t, m)
	assert.Contains(t, out, `learncal_availability_checks_total{result="available"} 1`)
	assert.Contains(t, out, `learncal_availability_checks_total{result="conflict"} 2`)
	assert.Contains(t, out, `learncal_imports_total{format="json",result="success"} 1`)
	assert.Contains(t, out, `learncal_job_runs_total{job="snapshot",result="failure"} 1`)
	assert.Contains(t, out, "learncal_events_stored 7")
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.ObserveRequest("/api/events", "GET", "200", 20*time.Millisecond)

	out := scrape(t, m)
	assert.Contains(t, out, `learncal_http_requests_total{method="GET",route="/api/events",status="200"} 1`)
	assert.Contains(t, out, "learncal_http_request_duration_seconds_count")
	assert.Contains(t, out, "go_goroutines")
}
