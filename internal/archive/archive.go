package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"learncal/internal/calendar"
	appLog "learncal/internal/log"
	"learncal/internal/model"
)

// Version is the only export format version Import accepts.
const Version = "1.0"

var (
	ErrMissingEvents = errors.New("import: missing events")
	ErrVersion       = errors.New("import: unsupported version")
)

// Document is the file-based interchange format.
type Document struct {
	Events      []model.Event      `json:"events"`
	Preferences *model.Preferences `json:"preferences,omitempty"`
	ExportDate  time.Time          `json:"exportDate"`
	Version     string             `json:"version"`
}

// Result mirrors the success flag + message callers show to users.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Events  int    `json:"events,omitempty"`
}

// ResultOf converts an Import error into a Result.
func ResultOf(n int, err error) Result {
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Success: true, Events: n}
}

// Snapshot builds an export document for cal.
func Snapshot(cal *calendar.Calendar, now time.Time) Document {
	prefs := cal.Preferences()
	return Document{
		Events:      cal.Store().All(),
		Preferences: &prefs,
		ExportDate:  now.UTC(),
		Version:     Version,
	}
}

// Export writes cal as an indented JSON document.
func Export(cal *calendar.Calendar, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Snapshot(cal, time.Now()))
}

// Import replaces cal's events (and preferences, when present) with the
// document read from r. The import is all or nothing: on any error cal is
// left untouched. It returns the number of imported events.
func Import(cal *calendar.Calendar, r io.Reader) (int, error) {
	var raw struct {
		Events      *[]model.Event     `json:"events"`
		Preferences *model.Preferences `json:"preferences"`
		Version     *string            `json:"version"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return 0, fmt.Errorf("import: invalid JSON: %w", err)
	}
	if raw.Events == nil {
		return 0, ErrMissingEvents
	}
	if raw.Version == nil || *raw.Version != Version {
		got := "<missing>"
		if raw.Version != nil {
			got = *raw.Version
		}
		return 0, fmt.Errorf("%w: %q", ErrVersion, got)
	}
	for _, ev := range *raw.Events {
		if err := calendar.ValidateRRule(ev.RRule); err != nil {
			return 0, fmt.Errorf("import: event %s: %w", ev.ID, err)
		}
	}

	if err := cal.Store().Replace(*raw.Events); err != nil {
		return 0, fmt.Errorf("import: %w", err)
	}
	if raw.Preferences != nil {
		cal.SetPreferences(*raw.Preferences)
	}
	return len(*raw.Events), nil
}

// SaveFile writes a snapshot of cal to path atomically with 0600 perms.
func SaveFile(path string, cal *calendar.Calendar) error {
	if path == "" {
		return errors.New("snapshot path is empty")
	}
	var buf bytes.Buffer
	if err := Export(cal, &buf); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".learncal-snapshot-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	appLog.Debug("snapshot saved", "path", path, "events", cal.Store().Len())
	return nil
}

// LoadFile imports the snapshot at path. A missing file is not an error and
// leaves cal untouched.
func LoadFile(path string, cal *calendar.Calendar) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()
	return Import(cal, f)
}
