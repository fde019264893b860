// Package arrivals turns decoded trip updates into the arrival board for one station.
// Everything here is a pure function of its inputs.
package arrivals

import (
	"sort"
	"time"

	"github.com/jusunglee/subway-board/internal/models"
)

// DefaultDedupTolerance is how close two arrivals on the same line and
// direction must be to count as one physical train
const DefaultDedupTolerance = 60 * time.Second

// Target is the station being watched, as a set of parent stop ids
type Target struct {
	StopIDs map[string]bool
}

// NewTarget builds a Target. Platform ids ("D18N") are reduced to their parent.
func NewTarget(stopIDs ...string) Target {
	t := Target{StopIDs: make(map[string]bool, len(stopIDs))}
	for _, id := range stopIDs {
		parent, _ := models.SplitStopID(id)
		t.StopIDs[parent] = true
	}
	return t
}

// Matches reports whether a prediction's stop id belongs to the target
func (t Target) Matches(stopID string) bool {
	if t.StopIDs[stopID] {
		return true
	}
	parent, _ := models.SplitStopID(stopID)
	return t.StopIDs[parent]
}

// FilterOptions tunes Filter
type FilterOptions struct {
	// Lines restricts output to these lines; empty means all
	Lines map[models.LineID]bool
	// DedupTolerance of zero disables ghost suppression
	DedupTolerance time.Duration
}

// DefaultFilterOptions returns options for every line with the default tolerance
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{DedupTolerance: DefaultDedupTolerance}
}

// Filter reduces trips to candidates arriving at target no earlier than now.
// Repeated trip ids collapse to their earliest arrival, and arrivals on the
// same line and direction within DedupTolerance of a kept one are dropped
// as ghosts. The result is sorted by line, direction, ETA and trip id and
// does not depend on the order of trips.
func Filter(trips []models.TripUpdate, target Target, now time.Time, opts FilterOptions) []models.Candidate {
	nowSec := now.Unix()

	byTrip := make(map[string]models.Candidate)
	for _, trip := range trips {
		if trip.Canceled || trip.Direction == models.DirectionUnknown {
			continue
		}
		if len(opts.Lines) > 0 && !opts.Lines[trip.Line] {
			continue
		}

		for _, p := range trip.Predictions {
			if !target.Matches(p.StopID) {
				continue
			}
			eta := p.Arrival - nowSec
			if eta < 0 {
				continue
			}

			c := models.Candidate{
				TripID:     trip.TripID,
				Line:       trip.Line,
				Direction:  trip.Direction,
				ETASeconds: eta,
			}
			if prev, ok := byTrip[c.TripID]; ok && !less(c, prev) {
				continue
			}
			byTrip[c.TripID] = c
		}
	}

	cands := make([]models.Candidate, 0, len(byTrip))
	for _, c := range byTrip {
		cands = append(cands, c)
	}
	sortCandidates(cands)

	tolerance := int64(opts.DedupTolerance / time.Second)
	if tolerance <= 0 {
		return cands
	}

	kept := cands[:0]
	for _, c := range cands {
		if n := len(kept); n > 0 {
			last := kept[n-1]
			if sameKey(last, c) && c.ETASeconds-last.ETASeconds <= tolerance {
				continue
			}
		}
		kept = append(kept, c)
	}
	return kept
}

func sameKey(a, b models.Candidate) bool {
	return a.Line == b.Line && a.Direction == b.Direction
}

// less orders candidates by ETA, then trip id, then key
func less(a, b models.Candidate) bool {
	if a.ETASeconds != b.ETASeconds {
		return a.ETASeconds < b.ETASeconds
	}
	if a.TripID != b.TripID {
		return a.TripID < b.TripID
	}
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Direction < b.Direction
}

func sortCandidates(cands []models.Candidate) {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if !sameKey(a, b) {
			if a.Line != b.Line {
				return a.Line < b.Line
			}
			return a.Direction < b.Direction
		}
		return less(a, b)
	})
}
