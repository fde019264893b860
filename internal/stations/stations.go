// Package stations maps supported stations to the parent stop id each line uses there.
package stations

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jusunglee/subway-board/internal/models"
)

// Station is a rider-facing station. Complexes served by several lines
// have a different parent stop id per line.
type Station struct {
	ID    string
	Name  string
	Stops map[models.LineID]string
}

var known = map[string]Station{
	"23st": {
		ID:   "23st",
		Name: "23 St",
		Stops: map[models.LineID]string{
			"F": "D18", "M": "D18",
			"R": "R19", "W": "R19",
			"1": "130",
			"C": "A30", "E": "A30",
			"6": "634",
		},
	},
	"34st-herald-sq": {
		ID:   "34st-herald-sq",
		Name: "34 St-Herald Sq",
		Stops: map[models.LineID]string{
			"B": "D17", "D": "D17", "F": "D17", "M": "D17",
			"N": "R17", "Q": "R17", "R": "R17", "W": "R17",
		},
	},
	"14st-union-sq": {
		ID:   "14st-union-sq",
		Name: "14 St-Union Sq",
		Stops: map[models.LineID]string{
			"4": "635", "5": "635", "6": "635",
			"N": "R20", "Q": "R20", "R": "R20", "W": "R20",
			"L": "L03",
		},
	},
	"times-sq-42st": {
		ID:   "times-sq-42st",
		Name: "Times Sq-42 St",
		Stops: map[models.LineID]string{
			"1": "127", "2": "127", "3": "127",
			"7": "725", "GS": "902",
			"N": "R16", "Q": "R16", "R": "R16", "W": "R16",
		},
	},
}

// Lookup finds a station by id, case-insensitively
func Lookup(id string) (Station, error) {
	s, ok := known[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Station{}, fmt.Errorf("unknown station %q (known: %s)", id, strings.Join(IDs(), ", "))
	}
	return s, nil
}

// IDs returns the supported station ids in order
func IDs() []string {
	ids := make([]string, 0, len(known))
	for id := range known {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lines returns the lines serving the station in order
func (s Station) Lines() []models.LineID {
	lines := make([]models.LineID, 0, len(s.Stops))
	for l := range s.Stops {
		lines = append(lines, l)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i] < lines[j] })
	return lines
}

// Serves reports whether line stops at the station
func (s Station) Serves(line models.LineID) bool {
	_, ok := s.Stops[models.NormalizeLine(string(line))]
	return ok
}

// StopIDs returns the distinct parent stops for lines, or for every line when lines is empty
func (s Station) StopIDs(lines []models.LineID) ([]string, error) {
	if len(lines) == 0 {
		lines = s.Lines()
	}

	seen := make(map[string]bool)
	var ids []string
	for _, l := range lines {
		stop, ok := s.Stops[models.NormalizeLine(string(l))]
		if !ok {
			return nil, fmt.Errorf("line %s does not stop at %s", l, s.Name)
		}
		if !seen[stop] {
			seen[stop] = true
			ids = append(ids, stop)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
