package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// ErrEmptyPath is returned by Load/Save when no config path is given.
var ErrEmptyPath = errors.New("config path is empty")

const (
	defaultListen           = "127.0.0.1:8080"
	defaultTimezone         = "America/New_York"
	defaultRefreshCron      = "0 */4 * * *"
	defaultAvailableHours   = 12
	defaultFetchTimeout     = 15 * time.Second
	defaultFetchConcurrency = 4
	defaultMaxOccurrences   = 5000
	defaultCacheDir         = "/var/lib/roomstats/ics-cache"
	defaultLogLevel         = "info"
	roomResBaseURL          = "https://roomres.thebattenspace.org/ics/"
	confAFeedURL            = roomResBaseURL + "ConfA.ics"
	configTempPattern       = ".roomstats-config-*.tmp"
	configFileMode          = 0o600
)

// RoomConfig describes one reservable room and the feed its bookings come from.
type RoomConfig struct {
	// ID is the stable identifier used in API queries (e.g. "confa").
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// Building groups rooms for display.
	Building string `yaml:"building" json:"building"`
	// URL is the ICS feed. Several rooms may point at the same feed.
	URL string `yaml:"url" json:"url"`
	// LocationMatch, if set, restricts the room to events whose LOCATION
	// contains this substring. Used when rooms share one upstream feed.
	LocationMatch string `yaml:"location_match,omitempty" json:"location_match,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA reference zone used for all date arithmetic.
	// Feed timestamps without a trailing Z are read as wall clock in this zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// AvailableHoursPerDay is the assumed operating window of a room and the
	// denominator of utilization rates.
	AvailableHoursPerDay float64 `yaml:"available_hours_per_day" json:"available_hours_per_day"`

	// RefreshCron is a cron-style schedule string (e.g. "0 */4 * * *")
	// driving the per-room refresh tasks.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// FetchTimeout bounds a single feed download.
	FetchTimeout time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`

	// FetchConcurrency limits simultaneous feed downloads in a multi-room refresh.
	FetchConcurrency int `yaml:"fetch_concurrency" json:"fetch_concurrency"`

	// MaxOccurrencesPerEvent caps recurrence expansion of a single event.
	MaxOccurrencesPerEvent int `yaml:"max_occurrences_per_event" json:"max_occurrences_per_event"`

	// CacheDir holds ETag/Last-Modified metadata and bodies of fetched feeds.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// FeedProxy, if set, is prepended to the query-escaped feed URL.
	// Example: "https://corsproxy.io/?".
	FeedProxy string `yaml:"feed_proxy,omitempty" json:"feed_proxy,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Rooms is the fixed set of rooms exposed by the API.
	Rooms []RoomConfig `yaml:"rooms" json:"rooms"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultRooms returns the department's rooms. Most sub-spaces are only
// published through the Conference Room A feed.
func DefaultRooms() []RoomConfig {
	return []RoomConfig{
		{ID: "confa", Name: "Conference Room A L014", Building: "Garrett Hall", URL: confAFeedURL},
		{ID: "greathall", Name: "Great Hall 100", Building: "Garrett Hall", URL: roomResBaseURL + "GreatHall.ics"},
		{ID: "seminar", Name: "Seminar Room L039", Building: "Garrett Hall", URL: roomResBaseURL + "SeminarRoom.ics"},
		{ID: "studentlounge206", Name: "Student Lounge 206", Building: "Garrett Hall", URL: confAFeedURL},
		{ID: "pavx-upper", Name: "Pavilion X Upper Garden", Building: "Pavilion X", URL: confAFeedURL},
		{ID: "pavx-b1", Name: "Pavilion X Basement Room 1", Building: "Pavilion X", URL: confAFeedURL},
		{ID: "pavx-b2", Name: "Pavilion X Basement Room 2", Building: "Pavilion X", URL: confAFeedURL},
		{ID: "pavx-exhibit", Name: "Pavilion X Basement Exhibit", Building: "Pavilion X", URL: confAFeedURL},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:                 defaultListen,
		Timezone:               defaultTimezone,
		AvailableHoursPerDay:   defaultAvailableHours,
		RefreshCron:            defaultRefreshCron,
		FetchTimeout:           defaultFetchTimeout,
		FetchConcurrency:       defaultFetchConcurrency,
		MaxOccurrencesPerEvent: defaultMaxOccurrences,
		CacheDir:               defaultCacheDir,
		LogLevel:               defaultLogLevel,
		Rooms:                  DefaultRooms(),
		BasicAuth:              nil,
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.AvailableHoursPerDay <= 0 {
		c.AvailableHoursPerDay = defaultAvailableHours
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = defaultFetchTimeout
	}
	if c.FetchConcurrency <= 0 {
		c.FetchConcurrency = defaultFetchConcurrency
	}
	if c.MaxOccurrencesPerEvent <= 0 {
		c.MaxOccurrencesPerEvent = defaultMaxOccurrences
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	// A config without a rooms key gets the default set; an explicit empty
	// list is kept as-is.
	if c.Rooms == nil {
		c.Rooms = DefaultRooms()
	}
}

// Validate reports configuration problems that Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: invalid timezone %q: %w", c.Timezone, err)
	}
	seen := make(map[string]struct{}, len(c.Rooms))
	for i, r := range c.Rooms {
		if r.ID == "" {
			return fmt.Errorf("config: rooms[%d]: id is empty", i)
		}
		if r.URL == "" {
			return fmt.Errorf("config: room %q: url is empty", r.ID)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("config: room %q: duplicate id", r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}

// Location resolves Timezone, falling back to UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Return cfg with the error so the caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return ErrEmptyPath
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

	tmp, err := os.CreateTemp(dir, configTempPattern)
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
	if err := os.Chmod(tmpName, configFileMode); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
