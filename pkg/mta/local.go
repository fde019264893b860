package mta

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jusunglee/subway-board/internal/arrivals"
	"github.com/jusunglee/subway-board/internal/engine"
	"github.com/jusunglee/subway-board/internal/feed"
	"github.com/jusunglee/subway-board/internal/models"
	"github.com/jusunglee/subway-board/internal/stations"
	"github.com/jusunglee/subway-board/internal/store"
)

// snapshots kept per station after each save
const keepSnapshots = 100

// LocalClient implements the Client interface for local usage
// Owns the result cache and the background poll loop
type LocalClient struct {
	station stations.Station
	lines   []models.LineID
	cache   *store.ResultCache
	engine  *engine.Engine
	poller  *engine.Poller
	logger  *slog.Logger
}

// NewLocal creates a new local MTA client. Call Start to begin polling.
func NewLocal(config Config, logger *slog.Logger) (*LocalClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	station, err := stations.Lookup(config.Station)
	if err != nil {
		return nil, err
	}
	lines := make([]models.LineID, 0, len(config.Lines))
	for _, l := range config.Lines {
		lines = append(lines, models.NormalizeLine(string(l)))
	}
	if len(lines) == 0 {
		lines = station.Lines()
	}
	stopIDs, err := station.StopIDs(lines)
	if err != nil {
		return nil, err
	}

	fetcher := config.Fetcher
	if fetcher == nil {
		fetcher = feed.NewHTTPFetcher(config.APIKey, config.FeedBaseURL, config.FetchTimeout)
	}

	cache := store.NewResultCache(config.Clock)
	eng, err := engine.New(engine.Config{
		Station: station.ID,
		Target:  arrivals.NewTarget(stopIDs...),
		Lines:   lines,
		Filter: arrivals.FilterOptions{
			DedupTolerance: config.DedupTolerance,
		},
		Select: arrivals.SelectOptions{
			MinUseful:    config.MinUseful,
			MaxFollowing: config.MaxFollowing,
		},
		FetchTimeout: config.FetchTimeout,
	}, fetcher, cache, config.Clock, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	return &LocalClient{
		station: station,
		lines:   lines,
		cache:   cache,
		engine:  eng,
		poller:  engine.NewPoller(eng, config.UpdateInterval, config.FetchTimeout, logger),
		logger:  logger.With("component", "client", "station", station.ID),
	}, nil
}

// Start begins background polling
func (c *LocalClient) Start() {
	c.poller.Start()
}

// Close gracefully shuts down the local client
// Must be called to stop background goroutines and prevent leaks
func (c *LocalClient) Close() {
	c.poller.Stop()
}

// OnResult registers fn to run after every poll cycle
func (c *LocalClient) OnResult(fn func(engine.Result)) {
	c.poller.OnResult(fn)
}

// RunOnce runs a single poll cycle in the caller's goroutine
func (c *LocalClient) RunOnce(ctx context.Context) engine.Result {
	return c.poller.RunOnce(ctx)
}

// AttachSnapshots seeds the cache from the newest stored board and saves
// every fresh board from now on
func (c *LocalClient) AttachSnapshots(ctx context.Context, db *store.SnapshotDB) error {
	entry, err := db.Latest(ctx, c.station.ID)
	switch {
	case errors.Is(err, store.ErrNoDataYet):
		c.logger.Info("no stored board to restore")
	case err != nil:
		return fmt.Errorf("failed to restore board: %w", err)
	default:
		if c.cache.Restore(entry) {
			c.logger.Info("restored stored board", "captured_at", entry.CapturedAt, "arrivals", len(entry.Board))
		}
	}

	c.poller.OnResult(func(res engine.Result) {
		if res.Freshness != engine.Fresh {
			return
		}

		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		entry := models.CacheEntry{Board: res.Board, CapturedAt: res.CapturedAt}
		if _, err := db.Save(saveCtx, c.station.ID, entry); err != nil {
			c.logger.Warn("failed to save board", "cycle_id", res.CycleID, "error", err)
			return
		}
		if err := db.Prune(saveCtx, keepSnapshots); err != nil {
			c.logger.Warn("failed to prune boards", "error", err)
		}
	})
	return nil
}

// GetResult returns the latest poll result. Before the first cycle finishes
// it reports a restored board as stale, or no data.
func (c *LocalClient) GetResult() engine.Result {
	if res, ok := c.poller.Latest(); ok {
		return res
	}

	entry, err := c.cache.Get()
	if err != nil {
		return engine.Result{Freshness: engine.NoData, Stage: engine.Idle, Err: err}
	}
	return engine.Result{
		Board:      entry.Board,
		CapturedAt: entry.CapturedAt,
		Freshness:  engine.Stale,
		Stage:      engine.Idle,
	}
}

func (c *LocalClient) GetStation() stations.Station {
	return c.station
}

func (c *LocalClient) GetLines() []models.LineID {
	out := make([]models.LineID, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *LocalClient) GetLastUpdate() time.Time {
	return c.cache.GetLastUpdate()
}
