// Package engine runs one poll cycle: fetch, decode, filter, select and cache.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jusunglee/subway-board/internal/arrivals"
	"github.com/jusunglee/subway-board/internal/feed"
	"github.com/jusunglee/subway-board/internal/models"
	"github.com/jusunglee/subway-board/internal/store"
)

// Stage of a poll cycle
type Stage int

const (
	Idle Stage = iota
	Fetching
	Decoding
	Filtering
	Selecting
	Success
	Failed
)

func (s Stage) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Decoding:
		return "decoding"
	case Filtering:
		return "filtering"
	case Selecting:
		return "selecting"
	case Success:
		return "success"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Freshness says where a result's board came from
type Freshness int

const (
	// NoData means no cycle has succeeded yet
	NoData Freshness = iota
	// Fresh boards come from the cycle that produced the result
	Fresh
	// Stale boards are the last good board, shown because this cycle failed
	Stale
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	}
	return "no_data"
}

func (f Freshness) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Freshness) UnmarshalText(b []byte) error {
	switch string(b) {
	case "fresh":
		*f = Fresh
	case "stale":
		*f = Stale
	case "no_data":
		*f = NoData
	default:
		return fmt.Errorf("unknown freshness %q", b)
	}
	return nil
}

// Result is what one cycle hands to presentation
type Result struct {
	CycleID    string
	Board      models.ArrivalBoard
	CapturedAt time.Time
	Freshness  Freshness
	// Stage is Success or Failed; FailedAt is the stage that failed
	Stage    Stage
	FailedAt Stage
	Err      error
	// AuthFailing stays set from the first AuthError until a cycle succeeds
	AuthFailing bool
	// Skipped counts trip updates the decoder could not use
	Skipped int
}

// Config selects the station and tunes the pipeline
type Config struct {
	Station      string
	Target       arrivals.Target
	Lines        []models.LineID
	Filter       arrivals.FilterOptions
	Select       arrivals.SelectOptions
	FetchTimeout time.Duration
}

// Engine runs poll cycles against a fetcher and a result cache
type Engine struct {
	cfg     Config
	groups  []feed.Group
	fetcher feed.Fetcher
	cache   *store.ResultCache
	clock   func() time.Time
	logger  *slog.Logger

	cycleMu sync.Mutex

	mu          sync.RWMutex
	stage       Stage
	authFailing bool
}

// New creates an engine. Lines must all be served by a known feed group.
func New(cfg Config, fetcher feed.Fetcher, cache *store.ResultCache, clock func() time.Time, logger *slog.Logger) (*Engine, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if cache == nil {
		return nil, errors.New("cache is required")
	}
	if len(cfg.Target.StopIDs) == 0 {
		return nil, errors.New("target station has no stop ids")
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	groups, err := feed.GroupsForLines(cfg.Lines)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve feed groups: %w", err)
	}
	if len(groups) == 0 {
		return nil, errors.New("no lines configured")
	}

	if len(cfg.Filter.Lines) == 0 {
		cfg.Filter.Lines = make(map[models.LineID]bool, len(cfg.Lines))
		for _, l := range cfg.Lines {
			cfg.Filter.Lines[models.NormalizeLine(string(l))] = true
		}
	}

	return &Engine{
		cfg:     cfg,
		groups:  groups,
		fetcher: fetcher,
		cache:   cache,
		clock:   clock,
		logger:  logger.With("component", "engine"),
	}, nil
}

// Groups returns the feed groups fetched each cycle
func (e *Engine) Groups() []feed.Group {
	out := make([]feed.Group, len(e.groups))
	copy(out, e.groups)
	return out
}

// Stage returns the stage of the cycle in progress, or the last terminal stage
func (e *Engine) Stage() Stage {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stage
}

func (e *Engine) setStage(s Stage) {
	e.mu.Lock()
	e.stage = s
	e.mu.Unlock()
}

// RunCycle runs one poll cycle. It never returns an error: failures are
// reported in the Result together with the last good board, if any.
// Cycles are serialized; a second caller waits for the first to finish.
func (e *Engine) RunCycle(ctx context.Context) Result {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	cycleID := uuid.New().String()
	logger := e.logger.With("cycle_id", cycleID)
	started := time.Now()

	if e.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.FetchTimeout)
		defer cancel()
	}

	e.setStage(Fetching)
	payloads, err := e.fetchAll(ctx)
	if err != nil {
		return e.fail(logger, cycleID, Fetching, err)
	}

	e.setStage(Decoding)
	var trips []models.TripUpdate
	skipped := 0
	for i, data := range payloads {
		snap, err := feed.Decode(data)
		if err != nil {
			return e.fail(logger, cycleID, Decoding, fmt.Errorf("feed %s: %w", e.groups[i].Name, err))
		}
		trips = append(trips, snap.Trips...)
		skipped += snap.Skipped
	}
	if skipped > 0 {
		logger.Debug("skipped incomplete trip updates", "count", skipped)
	}

	e.setStage(Filtering)
	cands := arrivals.Filter(trips, e.cfg.Target, e.clock(), e.cfg.Filter)

	e.setStage(Selecting)
	board := arrivals.Select(cands, e.cfg.Select)

	entry := e.cache.Update(board)

	e.mu.Lock()
	if e.authFailing {
		logger.Info("API key accepted again")
	}
	e.authFailing = false
	e.stage = Success
	e.mu.Unlock()

	logger.Info("poll cycle succeeded",
		"trips", len(trips),
		"candidates", len(cands),
		"arrivals", len(board),
		"duration", time.Since(started),
	)

	return Result{
		CycleID:    cycleID,
		Board:      entry.Board,
		CapturedAt: entry.CapturedAt,
		Freshness:  Fresh,
		Stage:      Success,
		Skipped:    skipped,
	}
}

func (e *Engine) fetchAll(ctx context.Context) ([][]byte, error) {
	payloads := make([][]byte, len(e.groups))

	g, gctx := errgroup.WithContext(ctx)
	for i, group := range e.groups {
		i, group := i, group
		g.Go(func() error {
			data, err := e.fetcher.Fetch(gctx, group)
			if err != nil {
				return fmt.Errorf("feed %s: %w", group.Name, err)
			}
			payloads[i] = data
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return payloads, nil
}

func (e *Engine) fail(logger *slog.Logger, cycleID string, at Stage, err error) Result {
	isAuth := !feed.IsTransient(err)

	e.mu.Lock()
	if isAuth {
		e.authFailing = true
	}
	authFailing := e.authFailing
	e.stage = Failed
	e.mu.Unlock()

	res := Result{
		CycleID:     cycleID,
		Stage:       Failed,
		FailedAt:    at,
		Err:         err,
		AuthFailing: authFailing,
	}

	entry, cacheErr := e.cache.Get()
	if cacheErr != nil {
		res.Freshness = NoData
		res.Err = errors.Join(err, cacheErr)
	} else {
		res.Freshness = Stale
		res.Board = entry.Board
		res.CapturedAt = entry.CapturedAt
	}

	switch {
	case isAuth:
		logger.Error("poll cycle failed: API key rejected", "stage", at.String(), "error", err)
	case errors.Is(err, context.Canceled):
		logger.Debug("poll cycle canceled", "stage", at.String())
	default:
		logger.Warn("poll cycle failed", "stage", at.String(), "freshness", res.Freshness.String(), "error", err)
	}

	return res
}
