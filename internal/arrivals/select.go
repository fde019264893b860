package arrivals

import (
	"time"

	"github.com/jusunglee/subway-board/internal/models"
)

const (
	// DefaultMinUseful is the shortest ETA worth showing; anything sooner can't be caught
	DefaultMinUseful = 120 * time.Second
	// DefaultMaxFollowing is how many later arrivals are kept per line and direction
	DefaultMaxFollowing = 2
)

// SelectOptions tunes Select
type SelectOptions struct {
	MinUseful    time.Duration
	MaxFollowing int
}

// DefaultSelectOptions returns the 2 minute threshold with two following arrivals
func DefaultSelectOptions() SelectOptions {
	return SelectOptions{
		MinUseful:    DefaultMinUseful,
		MaxFollowing: DefaultMaxFollowing,
	}
}

// Select picks the next useful arrival for each line and direction.
// Keys with nothing at or above MinUseful are left off the board.
func Select(cands []models.Candidate, opts SelectOptions) models.ArrivalBoard {
	minUseful := int64(opts.MinUseful / time.Second)

	sorted := make([]models.Candidate, len(cands))
	copy(sorted, cands)
	sortCandidates(sorted)

	board := make(models.ArrivalBoard)
	for _, c := range sorted {
		if c.ETASeconds < minUseful {
			continue
		}

		key := models.BoardKey{Line: c.Line, Direction: c.Direction}
		a, ok := board[key]
		if !ok {
			board[key] = models.StationArrival{
				Line:       c.Line,
				Direction:  c.Direction,
				ETASeconds: c.ETASeconds,
				TripID:     c.TripID,
			}
			continue
		}
		if len(a.Following) < opts.MaxFollowing {
			a.Following = append(a.Following, c.ETASeconds)
			board[key] = a
		}
	}
	return board
}

// Board runs Filter and Select in one step
func Board(trips []models.TripUpdate, target Target, now time.Time, fo FilterOptions, so SelectOptions) models.ArrivalBoard {
	return Select(Filter(trips, target, now, fo), so)
}
