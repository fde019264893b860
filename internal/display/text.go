// Package display renders engine results as text for the terminal and the
// line-by-line pager used by the watch loop.
package display

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jusunglee/subway-board/internal/engine"
	"github.com/jusunglee/subway-board/internal/models"
)

const (
	LoadingText  = "Loading..."
	NoTrainsText = "No trains"
	AuthText     = "AUTH ERROR: check MTA API key"
)

// FormatArrival renders one board entry, e.g. "↑ F 3" or "↓ F 5 (9, 14)"
func FormatArrival(a models.StationArrival) string {
	s := fmt.Sprintf("%s %s %d", a.Direction.Arrow(), a.Line, a.Minutes())
	if len(a.Following) > 0 {
		mins := make([]string, len(a.Following))
		for i, eta := range a.Following {
			mins[i] = strconv.FormatInt(eta/60, 10)
		}
		s += " (" + strings.Join(mins, ", ") + ")"
	}
	return s
}

// FormatResult renders a result as lines of text. A stale board carries
// a trailing marker with its age at now.
func FormatResult(res engine.Result, now time.Time) []string {
	var lines []string
	if res.AuthFailing {
		lines = append(lines, AuthText)
	}

	if res.Freshness == engine.NoData {
		return append(lines, LoadingText)
	}

	if len(res.Board) == 0 {
		lines = append(lines, NoTrainsText)
	}
	for _, k := range res.Board.Keys() {
		lines = append(lines, FormatArrival(res.Board[k]))
	}

	if res.Freshness == engine.Stale {
		age := now.Sub(res.CapturedAt).Truncate(time.Second)
		lines = append(lines, fmt.Sprintf("! stale (%s old)", age))
	}
	return lines
}
