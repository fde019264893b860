package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is used when no poll interval is given
const DefaultInterval = 30 * time.Second

// Poller runs the engine on a fixed interval.
// A cycle that overruns delays the next tick; cycles never overlap.
type Poller struct {
	engine   *Engine
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu        sync.RWMutex
	latest    Result
	hasResult bool
	handlers  []func(Result)

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewPoller creates a poller. timeout bounds each cycle; zero leaves it to the engine.
func NewPoller(engine *Engine, interval, timeout time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		engine:   engine,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With("component", "poller"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// OnResult registers fn to be called after every cycle, on the poll goroutine
func (p *Poller) OnResult(fn func(Result)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, fn)
}

// Start begins the poll loop. The first cycle runs immediately.
func (p *Poller) Start() {
	p.wg.Add(1)
	go p.pollLoop()
}

// Stop cancels any cycle in progress and waits for the loop to exit
func (p *Poller) Stop() {
	p.stopOnce.Do(p.cancel)
	p.wg.Wait()
}

// Latest returns the most recent result and whether any cycle has finished
func (p *Poller) Latest() (Result, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.hasResult
}

// RunOnce runs a single cycle outside the loop and publishes its result.
// A cycle cut short by cancellation of ctx is returned but not published.
func (p *Poller) RunOnce(ctx context.Context) Result {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	res := p.engine.RunCycle(ctx)
	if errors.Is(ctx.Err(), context.Canceled) {
		return res
	}

	p.mu.Lock()
	p.latest = res
	p.hasResult = true
	handlers := make([]func(Result), len(p.handlers))
	copy(handlers, p.handlers)
	p.mu.Unlock()

	for _, fn := range handlers {
		fn(res)
	}
	return res
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	p.logger.Info("starting poll loop", "interval", p.interval)

	// Initial cycle
	p.RunOnce(p.ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if p.ctx.Err() != nil {
				return
			}
			p.RunOnce(p.ctx)
		case <-p.ctx.Done():
			p.logger.Info("poll loop stopped")
			return
		}
	}
}
