package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jusunglee/subway-board/internal/arrivals"
	"github.com/jusunglee/subway-board/internal/feed"
	"github.com/jusunglee/subway-board/internal/models"
	"github.com/jusunglee/subway-board/internal/store"
)

var now = time.Date(2024, 12, 1, 8, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeFetcher serves mock trips per group, or err when set
type fakeFetcher struct {
	mu    sync.Mutex
	err   error
	data  map[string][]byte
	calls []string
	block bool
}

func newFakeFetcher(t *testing.T) *fakeFetcher {
	t.Helper()
	f := &fakeFetcher{data: make(map[string][]byte)}
	trips := feed.CreateMockTrips(now)
	for _, g := range feed.FeedGroups {
		lines := make(map[models.LineID]bool)
		for _, l := range g.Lines {
			lines[l] = true
		}
		var groupTrips []models.TripUpdate
		for _, trip := range trips {
			if lines[trip.Line] {
				groupTrips = append(groupTrips, trip)
			}
		}
		data, err := feed.EncodeTripUpdates(now, groupTrips)
		require.NoError(t, err)
		f.data[g.Name] = data
	}
	return f
}

func (f *fakeFetcher) Fetch(ctx context.Context, group feed.Group) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, group.Name)
	err, block, data := f.err, f.block, f.data[group.Name]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, &feed.NetworkError{URL: group.Name, Err: ctx.Err()}
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (f *fakeFetcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeFetcher) setData(group string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[group] = data
}

func (f *fakeFetcher) takeCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := f.calls
	f.calls = nil
	sort.Strings(calls)
	return calls
}

func testConfig() Config {
	return Config{
		Station: "23st",
		Target:  arrivals.NewTarget("D18", "R19", "634"),
		Lines:   []models.LineID{"F", "M", "R", "6"},
		Filter:  arrivals.DefaultFilterOptions(),
		Select:  arrivals.DefaultSelectOptions(),
	}
}

func newTestEngine(t *testing.T, f feed.Fetcher) (*Engine, *store.ResultCache, *time.Time) {
	t.Helper()
	clock := now
	cache := store.NewResultCache(func() time.Time { return clock })
	e, err := New(testConfig(), f, cache, func() time.Time { return clock }, quietLogger())
	require.NoError(t, err)
	return e, cache, &clock
}

func TestNewValidation(t *testing.T) {
	cache := store.NewResultCache(nil)
	f := &fakeFetcher{}

	_, err := New(testConfig(), nil, cache, nil, nil)
	assert.Error(t, err)

	_, err = New(testConfig(), f, nil, nil, nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Lines = []models.LineID{"T"}
	_, err = New(cfg, f, cache, nil, nil)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Target = arrivals.Target{}
	_, err = New(cfg, f, cache, nil, nil)
	assert.Error(t, err)

	e, err := New(testConfig(), f, cache, nil, nil)
	require.NoError(t, err)
	names := make([]string, 0)
	for _, g := range e.Groups() {
		names = append(names, g.Name)
	}
	assert.Equal(t, []string{"123456S", "bdfm", "nqrw"}, names)
	assert.Equal(t, Idle, e.Stage())
}

func TestRunCycleSuccess(t *testing.T) {
	f := newFakeFetcher(t)
	e, cache, _ := newTestEngine(t, f)

	res := e.RunCycle(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, Success, res.Stage)
	assert.Equal(t, Fresh, res.Freshness)
	assert.NotEmpty(t, res.CycleID)
	assert.Equal(t, now, res.CapturedAt)
	assert.Equal(t, Success, e.Stage())
	assert.Equal(t, []string{"123456S", "bdfm", "nqrw"}, f.takeCalls())

	keys := make([]string, 0)
	for _, k := range res.Board.Keys() {
		keys = append(keys, k.String())
	}
	assert.Equal(t, []string{"6S", "FN", "FS", "RN"}, keys)

	entry, err := cache.Get()
	require.NoError(t, err)
	assert.Equal(t, res.Board, entry.Board)
}

func TestFirstCycleFailureSignalsNoData(t *testing.T) {
	f := newFakeFetcher(t)
	f.setErr(&feed.NetworkError{URL: "bdfm", Err: errors.New("connection refused")})
	e, cache, _ := newTestEngine(t, f)

	res := e.RunCycle(context.Background())

	assert.Equal(t, Failed, res.Stage)
	assert.Equal(t, Fetching, res.FailedAt)
	assert.Equal(t, NoData, res.Freshness)
	assert.Nil(t, res.Board)
	assert.ErrorIs(t, res.Err, store.ErrNoDataYet)

	var netErr *feed.NetworkError
	assert.ErrorAs(t, res.Err, &netErr)

	_, err := cache.Get()
	assert.ErrorIs(t, err, store.ErrNoDataYet)
}

func TestFailureAfterSuccessReturnsStaleBoard(t *testing.T) {
	f := newFakeFetcher(t)
	e, _, clock := newTestEngine(t, f)

	var last Result
	for i := 1; i <= 4; i++ {
		last = e.RunCycle(context.Background())
		require.Equal(t, Success, last.Stage, "cycle %d", i)
		*clock = clock.Add(30 * time.Second)
	}

	f.setErr(&feed.NetworkError{URL: "bdfm", StatusCode: 503})
	res := e.RunCycle(context.Background())

	assert.Equal(t, Failed, res.Stage)
	assert.Equal(t, Stale, res.Freshness)
	assert.Equal(t, last.Board, res.Board)
	assert.Equal(t, last.CapturedAt, res.CapturedAt)
	assert.NotEmpty(t, res.Board)
	assert.False(t, res.AuthFailing)
	assert.NotErrorIs(t, res.Err, store.ErrNoDataYet)
}

func TestDecodeFailureLeavesCacheUntouched(t *testing.T) {
	f := newFakeFetcher(t)
	e, cache, clock := newTestEngine(t, f)

	first := e.RunCycle(context.Background())
	require.Equal(t, Success, first.Stage)

	*clock = clock.Add(time.Minute)
	f.setData("nqrw", []byte("not a protobuf"))
	res := e.RunCycle(context.Background())

	assert.Equal(t, Failed, res.Stage)
	assert.Equal(t, Decoding, res.FailedAt)
	assert.Equal(t, Stale, res.Freshness)

	var decodeErr *feed.DecodeError
	assert.ErrorAs(t, res.Err, &decodeErr)

	entry, err := cache.Get()
	require.NoError(t, err)
	assert.Equal(t, first.CapturedAt, entry.CapturedAt)
}

func TestAuthFailingPersistsUntilSuccess(t *testing.T) {
	f := newFakeFetcher(t)
	e, _, _ := newTestEngine(t, f)

	f.setErr(&feed.AuthError{URL: "bdfm", StatusCode: 403})
	res := e.RunCycle(context.Background())
	assert.True(t, res.AuthFailing)
	assert.Equal(t, NoData, res.Freshness)

	f.setErr(&feed.NetworkError{URL: "bdfm", Err: errors.New("timeout")})
	res = e.RunCycle(context.Background())
	assert.True(t, res.AuthFailing, "auth flag must survive unrelated failures")

	f.setErr(nil)
	res = e.RunCycle(context.Background())
	assert.Equal(t, Success, res.Stage)
	assert.False(t, res.AuthFailing)
}

func TestRunCycleHonorsFetchTimeout(t *testing.T) {
	f := newFakeFetcher(t)
	f.block = true

	cfg := testConfig()
	cfg.FetchTimeout = 50 * time.Millisecond
	e, err := New(cfg, f, store.NewResultCache(nil), nil, quietLogger())
	require.NoError(t, err)

	start := time.Now()
	res := e.RunCycle(context.Background())

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, Failed, res.Stage)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestPoller(t *testing.T) {
	f := newFakeFetcher(t)
	e, _, _ := newTestEngine(t, f)

	p := NewPoller(e, 10*time.Millisecond, time.Second, quietLogger())

	results := make(chan Result, 100)
	p.OnResult(func(r Result) {
		select {
		case results <- r:
		default:
		}
	})

	_, ok := p.Latest()
	assert.False(t, ok)

	p.Start()

	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			assert.Equal(t, Fresh, r.Freshness)
		case <-time.After(5 * time.Second):
			t.Fatal("Timed out waiting for poll result")
		}
	}

	p.Stop()
	p.Stop()

	latest, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, Success, latest.Stage)
}

func TestPollerRunOnce(t *testing.T) {
	f := newFakeFetcher(t)
	e, _, _ := newTestEngine(t, f)
	p := NewPoller(e, time.Hour, time.Second, quietLogger())

	var got []Freshness
	p.OnResult(func(r Result) { got = append(got, r.Freshness) })

	p.RunOnce(context.Background())
	f.setErr(&feed.NetworkError{URL: "bdfm", StatusCode: 500})
	p.RunOnce(context.Background())

	assert.Equal(t, []Freshness{Fresh, Stale}, got)

	latest, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, Stale, latest.Freshness)
}

func TestPollerStopDiscardsCanceledCycle(t *testing.T) {
	f := newFakeFetcher(t)
	f.block = true
	e, _, _ := newTestEngine(t, f)

	p := NewPoller(e, time.Hour, time.Hour, quietLogger())

	var calls int
	var mu sync.Mutex
	p.OnResult(func(Result) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	p.Start()
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.calls) > 0
	}, 5*time.Second, time.Millisecond)

	p.Stop()

	_, ok := p.Latest()
	assert.False(t, ok, "canceled cycle must not become the latest result")

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
}

func TestRunOnceTimeoutIsPublished(t *testing.T) {
	f := newFakeFetcher(t)
	f.block = true
	e, _, _ := newTestEngine(t, f)

	p := NewPoller(e, time.Hour, 20*time.Millisecond, quietLogger())

	res := p.RunOnce(context.Background())
	assert.Equal(t, NoData, res.Freshness)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)

	latest, ok := p.Latest()
	require.True(t, ok)
	assert.Equal(t, res.CycleID, latest.CycleID)
}
