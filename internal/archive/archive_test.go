package archive

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learncal/internal/calendar"
	"learncal/internal/model"
)

func seeded(t *testing.T) *calendar.Calendar {
	t.Helper()
	cal := calendar.New(model.DefaultPreferences())
	_, err := cal.Store().Add(calendar.EventInput{
		ID:         "math",
		Title:      "Math 101",
		Start:      time.Date(2025, 8, 14, 9, 0, 0, 0, time.UTC),
		End:        time.Date(2025, 8, 14, 10, 0, 0, 0, time.UTC),
		Type:       "class",
		CourseID:   "c-1",
		StudentIDs: []string{"s-1", "s-2"},
	})
	require.NoError(t, err)
	_, err = cal.Store().Add(calendar.EventInput{
		ID:    "seminar",
		Title: "Weekly seminar",
		Start: time.Date(2025, 8, 15, 14, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 8, 15, 15, 0, 0, 0, time.UTC),
		RRule: "FREQ=WEEKLY;COUNT=5",
	})
	require.NoError(t, err)
	return cal
}

func TestExportShape(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Export(seeded(t), &buf))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "1.0", doc["version"])
	assert.Contains(t, doc, "exportDate")
	assert.Contains(t, doc, "preferences")
	assert.Len(t, doc["events"], 2)
}

func TestExportImportRoundTrip(t *testing.T) {
	src := seeded(t)
	var buf bytes.Buffer
	require.NoError(t, Export(src, &buf))

	dst := calendar.New(model.DefaultPreferences())
	n, err := Import(dst, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	want := src.Store().All()
	got := dst.Store().All()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID)
		assert.Equal(t, want[i].Title, got[i].Title)
		assert.True(t, want[i].Start.Equal(got[i].Start))
		assert.True(t, want[i].End.Equal(got[i].End))
		assert.Equal(t, want[i].StudentIDs, got[i].StudentIDs)
		assert.Equal(t, want[i].RRule, got[i].RRule)
	}
}

func TestImportAppliesPreferences(t *testing.T) {
	doc := `{"version":"1.0","events":[],"preferences":{"timezone":"Asia/Seoul","weekStartDay":1,"defaultEventDuration":30}}`
	cal := calendar.New(model.DefaultPreferences())

	_, err := Import(cal, strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "Asia/Seoul", cal.Preferences().Timezone)
	assert.Equal(t, 1, cal.Preferences().WeekStartDay)
}

func TestImportFailuresLeaveStateUntouched(t *testing.T) {
	tests := map[string]struct {
		doc     string
		wantErr error
	}{
		"wrong version":   {`{"version":"2.0","events":[]}`, ErrVersion},
		"missing version": {`{"events":[]}`, ErrVersion},
		"missing events":  {`{"version":"1.0"}`, ErrMissingEvents},
		"null events":     {`{"version":"1.0","events":null}`, ErrMissingEvents},
		"duplicate ids":   {`{"version":"1.0","events":[{"id":"x"},{"id":"x"}]}`, calendar.ErrDuplicateID},
		"bad rrule":       {`{"version":"1.0","events":[{"id":"x","rrule":"FREQ=NEVER"}]}`, calendar.ErrInvalidRecurrence},
		"not json":        {`{"version":`, nil},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cal := seeded(t)
			before := cal.Store().All()

			_, err := Import(cal, strings.NewReader(tt.doc))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, before, cal.Store().All())

			res := ResultOf(0, err)
			assert.False(t, res.Success)
			assert.NotEmpty(t, res.Error)
		})
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snapshot.json")
	require.NoError(t, SaveFile(path, seeded(t)))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cal := calendar.New(model.DefaultPreferences())
	n, err := LoadFile(path, cal)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, cal.Store().Len())
}

func TestLoadFileMissingIsNoop(t *testing.T) {
	cal := calendar.New(model.DefaultPreferences())
	n, err := LoadFile(filepath.Join(t.TempDir(), "absent.json"), cal)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestImportAssignsMissingIDs(t *testing.T) {
	cal := seeded(t)
	n, err := Import(cal, strings.NewReader(`{"version":"1.0","events":[{"title":"No id","start":"2025-08-14T10:00:00Z","end":"2025-08-14T11:00:00Z"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all := cal.Store().All()
	require.Len(t, all, 1)
	assert.NotEmpty(t, all[0].ID)
	assert.Equal(t, "No id", all[0].Title)
}
