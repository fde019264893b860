// Package config loads the board configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jusunglee/subway-board/internal/feed"
	"github.com/jusunglee/subway-board/internal/models"
	"github.com/jusunglee/subway-board/internal/stations"
)

// SleepConfig is the overnight window when the board goes dark
type SleepConfig struct {
	Enabled   bool `yaml:"enabled"`
	StartHour int  `yaml:"start_hour" validate:"gte=0,lte=23"`
	WakeHour  int  `yaml:"wake_hour" validate:"gte=0,lte=23"`
}

// Config is the root configuration
type Config struct {
	APIKey      string   `yaml:"api_key"`
	Station     string   `yaml:"station" validate:"required"`
	Lines       []string `yaml:"lines" validate:"omitempty,dive,required"`
	FeedBaseURL string   `yaml:"feed_base_url" validate:"required"`

	PollInterval   time.Duration `yaml:"poll_interval" validate:"gte=1s"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout" validate:"gt=0"`
	MinUseful      time.Duration `yaml:"min_useful" validate:"gte=0"`
	DedupTolerance time.Duration `yaml:"dedup_tolerance" validate:"gte=0"`
	MaxFollowing   int           `yaml:"max_following" validate:"gte=0,lte=10"`

	HTTPAddr     string `yaml:"http_addr" validate:"required"`
	DatabasePath string `yaml:"database_path"`

	LogLevel  string `yaml:"log_level" validate:"oneof=debug info warn warning error"`
	LogFormat string `yaml:"log_format" validate:"oneof=text json"`

	Sleep    SleepConfig   `yaml:"sleep"`
	PageTime time.Duration `yaml:"page_time" validate:"gte=1s"`
}

// Default returns the configuration used when nothing is set: every line at 23 St
func Default() Config {
	return Config{
		Station:        "23st",
		FeedBaseURL:    feed.DefaultBaseURL,
		PollInterval:   30 * time.Second,
		FetchTimeout:   10 * time.Second,
		MinUseful:      120 * time.Second,
		DedupTolerance: 60 * time.Second,
		MaxFollowing:   2,
		HTTPAddr:       ":8080",
		DatabasePath:   "subway-board.db",
		LogLevel:       "info",
		LogFormat:      "text",
		Sleep: SleepConfig{
			StartHour: 12,
			WakeHour:  6,
		},
		PageTime: 5 * time.Second,
	}
}

// Load reads path (if not empty) over the defaults, applies environment
// overrides and validates the result
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.APIKey = getEnv("MTA_API_KEY", c.APIKey)
	c.Station = getEnv("SUBWAY_STATION", c.Station)
	if lines := getCSVEnv("SUBWAY_LINES"); lines != nil {
		c.Lines = lines
	}
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("invalid POLL_INTERVAL %q: %w", v, err)
		}
		c.PollInterval = d
	}
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	return nil
}

// Validate checks field ranges and that every line stops at the station
func (c *Config) Validate() error {
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.LogFormat = strings.ToLower(c.LogFormat)

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	station, err := stations.Lookup(c.Station)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if _, err := station.StopIDs(c.LineIDs()); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := feed.GroupsForLines(c.LineIDs()); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LineIDs returns the configured lines, or every line at the station when none are set
func (c *Config) LineIDs() []models.LineID {
	if len(c.Lines) == 0 {
		station, err := stations.Lookup(c.Station)
		if err != nil {
			return nil
		}
		return station.Lines()
	}

	lines := make([]models.LineID, 0, len(c.Lines))
	seen := make(map[models.LineID]bool)
	for _, l := range c.Lines {
		id := models.NormalizeLine(l)
		if !seen[id] {
			seen[id] = true
			lines = append(lines, id)
		}
	}
	return lines
}

// RequireAPIKey fails when the feed is remote and no key is configured
func (c *Config) RequireAPIKey() error {
	remote := strings.HasPrefix(c.FeedBaseURL, "http://") || strings.HasPrefix(c.FeedBaseURL, "https://")
	if remote && c.APIKey == "" {
		return errors.New("MTA API key required (set api_key or MTA_API_KEY)")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getCSVEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}

// parseSeconds accepts a Go duration ("45s") or a bare number of seconds ("45")
func parseSeconds(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}
