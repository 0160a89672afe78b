package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "learncal.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, defaultListen, cfg.Listen)
	assert.Equal(t, "08:00", cfg.Preferences.WorkingHours.Start)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learncal.yaml")
	yml := `
listen: ":9090"
preferences:
  timezone: Asia/Seoul
  week_start_day: 9
  working_hours:
    start: "09:00"
subscriptions:
  - url: https://example.com/holidays.ics
    name: holidays
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "Asia/Seoul", cfg.Preferences.Timezone)
	assert.Equal(t, 0, cfg.Preferences.WeekStartDay)
	assert.Equal(t, "09:00", cfg.Preferences.WorkingHours.Start)
	assert.Equal(t, "18:00", cfg.Preferences.WorkingHours.End)
	assert.Equal(t, 60, cfg.Preferences.DefaultEventDuration)
	require.Len(t, cfg.Subscriptions, 1)
	assert.Equal(t, "holidays", cfg.Subscriptions[0].ID)
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learncal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "learncal.yaml")
	cfg := DefaultConfig()
	cfg.Preferences.Timezone = "Europe/Berlin"
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "secret"}
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestApplyEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LEARNCAL_SNAPSHOT_PATH=/tmp/snap.json\nLEARNCAL_LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("LEARNCAL_SNAPSHOT_PATH") })

	t.Setenv("LEARNCAL_LISTEN", ":7070")
	t.Setenv("LEARNCAL_LOG_LEVEL", "warn")
	t.Setenv("LEARNCAL_BASIC_AUTH_USER", "u")
	t.Setenv("LEARNCAL_BASIC_AUTH_PASSWORD", "p")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv(envFile, filepath.Join(dir, "missing.env")))

	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, "/tmp/snap.json", cfg.SnapshotPath)
	// Real environment wins over the dotenv file.
	assert.Equal(t, "warn", cfg.LogLevel)
	require.NotNil(t, cfg.BasicAuth)
	assert.Equal(t, "u", cfg.BasicAuth.Username)
}
