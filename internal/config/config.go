package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"learncal/internal/model"
)

// SubscriptionConfig describes one external ICS feed merged into the
// calendar (e.g. an institution's holiday calendar).
type SubscriptionConfig struct {
	// ID tags the imported events and prefixes their ids.
	ID   string `yaml:"id" json:"id"`
	URL  string `yaml:"url" json:"url"`
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level service configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Preferences seed the calendar on startup unless a snapshot carries
	// its own.
	Preferences model.Preferences `yaml:"preferences" json:"preferences"`

	// SnapshotPath is where the calendar is exported to and restored from.
	SnapshotPath string `yaml:"snapshot_path" json:"snapshot_path"`

	// SnapshotCron is a cron spec (e.g. "*/5 * * * *") for periodic
	// snapshots. Empty disables them; a final snapshot is still written
	// on shutdown.
	SnapshotCron string `yaml:"snapshot_cron" json:"snapshot_cron"`

	// RefreshCron schedules subscription refreshes.
	RefreshCron string `yaml:"refresh_cron" json:"refresh_cron"`

	// CacheDir holds the per-feed HTTP cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Subscriptions []SubscriptionConfig `yaml:"subscriptions" json:"subscriptions"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen       = "127.0.0.1:8080"
	defaultLogLevel     = "info"
	defaultSnapshotPath = "./var/calendar.json"
	defaultSnapshotCron = "*/5 * * * *"
	defaultRefreshCron  = "*/30 * * * *"
	defaultCacheDir     = "./var/ics-cache"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        defaultListen,
		LogLevel:      defaultLogLevel,
		Preferences:   model.DefaultPreferences(),
		SnapshotPath:  defaultSnapshotPath,
		SnapshotCron:  defaultSnapshotCron,
		RefreshCron:   defaultRefreshCron,
		CacheDir:      defaultCacheDir,
		Subscriptions: []SubscriptionConfig{},
	}
}

// Normalize fills zero values with defaults so partially written files
// still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.SnapshotPath == "" {
		c.SnapshotPath = defaultSnapshotPath
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}

	p := &c.Preferences
	if p.Timezone == "" {
		p.Timezone = model.DefaultTimezone
	}
	if p.WorkingHours.Start == "" {
		p.WorkingHours.Start = model.DefaultWorkingHoursStart
	}
	if p.WorkingHours.End == "" {
		p.WorkingHours.End = model.DefaultWorkingHoursEnd
	}
	if p.WeekStartDay < 0 || p.WeekStartDay > 6 {
		p.WeekStartDay = 0
	}
	if p.DefaultEventDuration <= 0 {
		p.DefaultEventDuration = model.DefaultEventDuration
	}

	if c.Subscriptions == nil {
		c.Subscriptions = []SubscriptionConfig{}
	}
	for i := range c.Subscriptions {
		s := &c.Subscriptions[i]
		if s.ID == "" {
			if s.Name != "" {
				s.ID = s.Name
			} else {
				s.ID = s.URL
			}
		}
	}
}

// Load reads the YAML file at path. When the file doesn't exist a default
// config is written there with 0600 perms and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

// ApplyEnv loads the given dotenv files (missing ones are skipped; real
// environment variables win) and applies LEARNCAL_* overrides.
func (c *Config) ApplyEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return err
		}
	}

	if v := os.Getenv("LEARNCAL_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("LEARNCAL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LEARNCAL_TIMEZONE"); v != "" {
		c.Preferences.Timezone = v
	}
	if v := os.Getenv("LEARNCAL_SNAPSHOT_PATH"); v != "" {
		c.SnapshotPath = v
	}
	user, pass := os.Getenv("LEARNCAL_BASIC_AUTH_USER"), os.Getenv("LEARNCAL_BASIC_AUTH_PASSWORD")
	if user != "" && pass != "" {
		c.BasicAuth = &BasicAuthConfig{Username: user, Password: pass}
	}
	return nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms,
// creating the parent directory with 0700.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".learncal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
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
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
