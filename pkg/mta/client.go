package mta

import (
	"time"

	"github.com/jusunglee/subway-board/internal/config"
	"github.com/jusunglee/subway-board/internal/engine"
	"github.com/jusunglee/subway-board/internal/feed"
	"github.com/jusunglee/subway-board/internal/models"
	"github.com/jusunglee/subway-board/internal/stations"
)

// Client defines what presentation layers read from the board
// Abstracts the engine and poll loop behind a read-only interface
type Client interface {
	GetResult() engine.Result
	GetStation() stations.Station
	// GetLines returns the lines shown on the board
	GetLines() []models.LineID
	GetLastUpdate() time.Time
}

// Config holds configuration for the MTA client
// APIKey required for accessing MTA's GTFS-RT feeds
type Config struct {
	APIKey      string
	Station     string
	Lines       []models.LineID
	FeedBaseURL string

	UpdateInterval time.Duration
	FetchTimeout   time.Duration

	MinUseful      time.Duration
	DedupTolerance time.Duration
	MaxFollowing   int

	// Fetcher replaces the HTTP fetcher, mostly for tests
	Fetcher feed.Fetcher
	// Clock defaults to time.Now
	Clock func() time.Time
}

// DefaultConfig returns default configuration
// 30-second update interval matches how often the MTA refreshes its feeds
func DefaultConfig() Config {
	return Config{
		Station:        "23st",
		FeedBaseURL:    feed.DefaultBaseURL,
		UpdateInterval: 30 * time.Second,
		FetchTimeout:   10 * time.Second,
		MinUseful:      120 * time.Second,
		DedupTolerance: 60 * time.Second,
		MaxFollowing:   2,
	}
}

// FromAppConfig builds the client config from a loaded config file
func FromAppConfig(c *config.Config) Config {
	return Config{
		APIKey:         c.APIKey,
		Station:        c.Station,
		Lines:          c.LineIDs(),
		FeedBaseURL:    c.FeedBaseURL,
		UpdateInterval: c.PollInterval,
		FetchTimeout:   c.FetchTimeout,
		MinUseful:      c.MinUseful,
		DedupTolerance: c.DedupTolerance,
		MaxFollowing:   c.MaxFollowing,
	}
}
