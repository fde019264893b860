package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jusunglee/subway-board/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testBoard(eta int64) models.ArrivalBoard {
	return models.ArrivalBoard{
		{Line: "F", Direction: models.South}: {
			Line: "F", Direction: models.South, ETASeconds: eta, TripID: "F1", Following: []int64{eta + 300},
		},
	}
}

func TestResultCache(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 12, 1, 8, 0, 0, 0, time.UTC)}
	c := NewResultCache(clock.Now)

	t.Run("empty cache", func(t *testing.T) {
		_, err := c.Get()
		assert.ErrorIs(t, err, ErrNoDataYet)
		assert.True(t, c.GetLastUpdate().IsZero())
	})

	t.Run("update and get", func(t *testing.T) {
		board := testBoard(200)
		c.Update(board)

		// Caller's board is not shared with the cache
		board[models.BoardKey{Line: "F", Direction: models.South}].Following[0] = 1

		entry, err := c.Get()
		require.NoError(t, err)
		assert.True(t, entry.CapturedAt.Equal(clock.Now()), "captured at %v", entry.CapturedAt)

		a, ok := entry.Board.Get("F", models.South)
		require.True(t, ok)
		assert.Equal(t, int64(200), a.ETASeconds)
		assert.Equal(t, []int64{500}, a.Following)

		// Readers get their own copy
		a.Following[0] = 2
		again, err := c.Get()
		require.NoError(t, err)
		got, _ := again.Board.Get("F", models.South)
		assert.Equal(t, []int64{500}, got.Following, "Get returned a board shared with the cache")
	})

	t.Run("update replaces wholesale", func(t *testing.T) {
		clock.Advance(30 * time.Second)
		c.Update(models.ArrivalBoard{})

		entry, err := c.Get()
		require.NoError(t, err)
		assert.Empty(t, entry.Board)
		assert.True(t, c.GetLastUpdate().Equal(clock.Now()), "last update did not move")
	})

	t.Run("restore ignores older entries", func(t *testing.T) {
		old := models.CacheEntry{Board: testBoard(100), CapturedAt: clock.Now().Add(-time.Hour)}
		assert.False(t, c.Restore(old))
	})
}

func TestResultCacheRestore(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 12, 1, 8, 0, 0, 0, time.UTC)}
	c := NewResultCache(clock.Now)

	captured := clock.Now().Add(-10 * time.Minute)
	require.True(t, c.Restore(models.CacheEntry{Board: testBoard(400), CapturedAt: captured}))

	entry, err := c.Get()
	require.NoError(t, err)
	assert.True(t, entry.CapturedAt.Equal(captured), "restore must keep the original timestamp, got %v", entry.CapturedAt)
}

func TestResultCacheConcurrentAccess(t *testing.T) {
	c := NewResultCache(nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if entry, err := c.Get(); err == nil {
					assert.Len(t, entry.Board, 1, "torn read")
				}
			}
		}()
	}
	for j := 0; j < 100; j++ {
		c.Update(testBoard(int64(j)))
	}
	wg.Wait()
}

func TestSnapshotDB(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSnapshotDB(ctx, filepath.Join(t.TempDir(), "board.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Latest(ctx, "23st")
	assert.ErrorIs(t, err, ErrNoDataYet)

	base := time.Date(2024, 12, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		entry := models.CacheEntry{Board: testBoard(int64(100 * (i + 1))), CapturedAt: base.Add(time.Duration(i) * time.Second)}
		id, err := db.Save(ctx, "23st", entry)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	}
	_, err = db.Save(ctx, "other", models.CacheEntry{CapturedAt: base.Add(time.Hour)})
	require.NoError(t, err)

	entry, err := db.Latest(ctx, "23st")
	require.NoError(t, err)
	assert.True(t, entry.CapturedAt.Equal(base.Add(2*time.Second)), "expected newest snapshot, got %v", entry.CapturedAt)

	a, ok := entry.Board.Get("F", models.South)
	require.True(t, ok)
	assert.Equal(t, int64(300), a.ETASeconds)
	assert.Len(t, a.Following, 1)

	require.NoError(t, db.Prune(ctx, 1))

	var count int
	require.NoError(t, db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM board_snapshots").Scan(&count))
	assert.Equal(t, 2, count, "expected one snapshot per station after prune")

	other, err := db.Latest(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, other.Board)
}
