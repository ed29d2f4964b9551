// Package config loads the site profile: API endpoints, floor mappings and
// per-floor booking policies for one library installation.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/example/seat-scheduler/internal/logging"
)

// API describes the remote booking system.
type API struct {
	LoginURL        string `yaml:"login_url"`
	CategoryListURL string `yaml:"category_list_url"`
	SearchSeatsURL  string `yaml:"search_seats_url"`
	SeatStateURL    string `yaml:"seat_state_url"`
	ReserveSeatURL  string `yaml:"reserve_seat_url"`

	// Headers are attached to every request.
	Headers map[string]string `yaml:"headers"`

	OrgID     string `yaml:"org_id"`
	LibraryID string `yaml:"library_id"`

	// States maps reservation response codes to human-readable reasons.
	States map[string]string `yaml:"states"`
}

// FloorMapping resolves an opaque floor identifier to the display names the
// topology is keyed by.
type FloorMapping struct {
	Room  string `yaml:"room"`
	Floor string `yaml:"floor"`
}

// FloorPolicy is the site-specific booking policy for one floor. MaxDurationHours
// of zero means a single reservation may cover the whole requested duration.
type FloorPolicy struct {
	DaysAhead        int `yaml:"days_ahead"`
	MaxDurationHours int `yaml:"max_duration_hours"`
}

// Cache controls the in-memory topology cache and its on-disk JSON mirror.
type Cache struct {
	TTLHours          int    `yaml:"ttl_hours"`
	MirrorPath        string `yaml:"mirror_path"`
	MirrorMaxAgeHours int    `yaml:"mirror_max_age_hours"`
}

type Config struct {
	API      API                     `yaml:"api"`
	Floors   map[string]FloorMapping `yaml:"floors"`
	Policies map[string]FloorPolicy  `yaml:"policies"`
	// DefaultPolicy applies to floors absent from Policies.
	DefaultPolicy FloorPolicy    `yaml:"default_policy"`
	Cache         Cache          `yaml:"cache"`
	Log           logging.Config `yaml:"log"`
}

// Default returns the built-in profile. Floors 1547/1548 open one day ahead and
// cap a single reservation at four hours; everything else opens two days ahead
// uncapped. Unknown floors get no invented policy beyond that default.
func Default() *Config {
	return &Config{
		API: API{
			OrgID:     "104",
			LibraryID: "104",
			Headers:   map[string]string{},
			States:    map[string]string{},
		},
		Floors: map[string]FloorMapping{},
		Policies: map[string]FloorPolicy{
			"1547": {DaysAhead: 1, MaxDurationHours: 4},
			"1548": {DaysAhead: 1, MaxDurationHours: 4},
		},
		DefaultPolicy: FloorPolicy{DaysAhead: 2},
		Cache: Cache{
			TTLHours:          1,
			MirrorPath:        "data/rooms_cache.json",
			MirrorMaxAgeHours: 24,
		},
		Log: logging.Config{Format: "text", Level: "info"},
	}
}

// Load reads the YAML profile at path on top of the built-in defaults, then
// applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.API.OrgID = envDefault("ORG_ID", cfg.API.OrgID)
	cfg.API.LibraryID = envDefault("LIBRARY_ID", cfg.API.LibraryID)
	cfg.Cache.MirrorPath = envDefault("MIRROR_PATH", cfg.Cache.MirrorPath)
	cfg.Log.Level = envDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envDefault("LOG_FORMAT", cfg.Log.Format)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Cache.TTLHours < 1 {
		return fmt.Errorf("cache.ttl_hours must be >= 1")
	}
	if c.DefaultPolicy.DaysAhead < 0 {
		return fmt.Errorf("default_policy.days_ahead must be >= 0")
	}
	return nil
}

// PolicyFor returns the booking policy for a floor identifier, falling back to
// the default policy for unlisted floors.
func (c *Config) PolicyFor(floorID string) FloorPolicy {
	if p, ok := c.Policies[floorID]; ok {
		return p
	}
	return c.DefaultPolicy
}

func envDefault(k, d string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	return v
}
