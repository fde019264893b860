package store

import (
	"errors"
	"sync"
	"time"

	"github.com/jusunglee/subway-board/internal/models"
)

// ErrNoDataYet is returned by Get before the first successful poll
var ErrNoDataYet = errors.New("no arrival data yet")

// ResultCache holds the last good arrival board.
// One writer swaps entries wholesale; any number of readers get copies.
type ResultCache struct {
	mu    sync.RWMutex
	entry *models.CacheEntry
	clock func() time.Time
}

// NewResultCache creates an empty cache. A nil clock means time.Now.
func NewResultCache(clock func() time.Time) *ResultCache {
	if clock == nil {
		clock = time.Now
	}
	return &ResultCache{clock: clock}
}

// Update replaces the stored entry with board captured now
func (c *ResultCache) Update(board models.ArrivalBoard) models.CacheEntry {
	entry := &models.CacheEntry{
		Board:      board.Clone(),
		CapturedAt: c.clock(),
	}

	c.mu.Lock()
	c.entry = entry
	c.mu.Unlock()

	return clone(entry)
}

// Restore seeds the cache with a previously captured entry, keeping its timestamp.
// An entry older than the one already held is ignored.
func (c *ResultCache) Restore(entry models.CacheEntry) bool {
	restored := &models.CacheEntry{
		Board:      entry.Board.Clone(),
		CapturedAt: entry.CapturedAt,
	}
	if restored.Board == nil {
		restored.Board = models.ArrivalBoard{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entry != nil && !restored.CapturedAt.After(c.entry.CapturedAt) {
		return false
	}
	c.entry = restored
	return true
}

// Get returns a copy of the stored entry, or ErrNoDataYet
func (c *ResultCache) Get() (models.CacheEntry, error) {
	c.mu.RLock()
	entry := c.entry
	c.mu.RUnlock()

	if entry == nil {
		return models.CacheEntry{}, ErrNoDataYet
	}
	return clone(entry), nil
}

// GetLastUpdate returns when the stored entry was captured, or the zero time
func (c *ResultCache) GetLastUpdate() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.entry == nil {
		return time.Time{}
	}
	return c.entry.CapturedAt
}

func clone(e *models.CacheEntry) models.CacheEntry {
	return models.CacheEntry{
		Board:      e.Board.Clone(),
		CapturedAt: e.CapturedAt,
	}
}
