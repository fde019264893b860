package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// LineID is a subway line as shown to riders, e.g. "F" or "6"
type LineID string

// NormalizeLine converts a feed route id to the rider-facing line.
// Express variants ("6X", "FX") fold into their base line.
func NormalizeLine(routeID string) LineID {
	r := strings.ToUpper(strings.TrimSpace(routeID))
	if len(r) == 2 && r[1] == 'X' {
		r = r[:1]
	}
	return LineID(r)
}

// Direction of travel relative to the station
type Direction int

const (
	DirectionUnknown Direction = iota
	North
	South
)

// ParseDirection accepts N/S as well as the rider words for them
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "n", "north", "northbound", "uptown":
		return North, nil
	case "s", "south", "southbound", "downtown":
		return South, nil
	}
	return DirectionUnknown, fmt.Errorf("unknown direction %q", s)
}

func (d Direction) String() string {
	switch d {
	case North:
		return "N"
	case South:
		return "S"
	}
	return "?"
}

// Arrow returns the glyph used on the board
func (d Direction) Arrow() string {
	switch d {
	case North:
		return "↑"
	case South:
		return "↓"
	}
	return "?"
}

func (d Direction) MarshalText() ([]byte, error) {
	if d == DirectionUnknown {
		return nil, fmt.Errorf("cannot encode unknown direction")
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// SplitStopID separates a platform stop id ("D18N") into its parent stop
// and direction. Ids without an N/S suffix are returned unchanged.
func SplitStopID(stopID string) (string, Direction) {
	if len(stopID) < 2 {
		return stopID, DirectionUnknown
	}
	switch stopID[len(stopID)-1] {
	case 'N':
		return stopID[:len(stopID)-1], North
	case 'S':
		return stopID[:len(stopID)-1], South
	}
	return stopID, DirectionUnknown
}

// StopTimePrediction is a predicted arrival at one stop
type StopTimePrediction struct {
	StopID  string
	Arrival int64 // epoch seconds
}

// TripUpdate is one vehicle run as reported by the feed
type TripUpdate struct {
	TripID      string
	Line        LineID
	Direction   Direction
	Canceled    bool
	Predictions []StopTimePrediction
}

// Candidate is a trip that will reach the target station
type Candidate struct {
	TripID     string
	Line       LineID
	Direction  Direction
	ETASeconds int64
}

// BoardKey identifies a line and direction on the board
type BoardKey struct {
	Line      LineID
	Direction Direction
}

func (k BoardKey) String() string {
	return string(k.Line) + k.Direction.String()
}

// StationArrival is the next useful train for a line and direction
type StationArrival struct {
	Line       LineID    `json:"line"`
	Direction  Direction `json:"direction"`
	ETASeconds int64     `json:"eta_seconds"`
	TripID     string    `json:"trip_id"`
	Following  []int64   `json:"following,omitempty"`
}

// Minutes returns the countdown shown to riders
func (a StationArrival) Minutes() int {
	return int(a.ETASeconds / 60)
}

// ArrivalBoard holds at most one arrival per line and direction
type ArrivalBoard map[BoardKey]StationArrival

// Keys returns the board keys ordered by line, then north before south
func (b ArrivalBoard) Keys() []BoardKey {
	keys := make([]BoardKey, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Line != keys[j].Line {
			return keys[i].Line < keys[j].Line
		}
		return keys[i].Direction < keys[j].Direction
	})
	return keys
}

// Lines returns the distinct lines on the board in order
func (b ArrivalBoard) Lines() []LineID {
	var lines []LineID
	for _, k := range b.Keys() {
		if len(lines) == 0 || lines[len(lines)-1] != k.Line {
			lines = append(lines, k.Line)
		}
	}
	return lines
}

// Get looks up the arrival for a line and direction
func (b ArrivalBoard) Get(line LineID, dir Direction) (StationArrival, bool) {
	a, ok := b[BoardKey{Line: line, Direction: dir}]
	return a, ok
}

// Clone returns a deep copy
func (b ArrivalBoard) Clone() ArrivalBoard {
	if b == nil {
		return nil
	}
	out := make(ArrivalBoard, len(b))
	for k, a := range b {
		if a.Following != nil {
			a.Following = append([]int64(nil), a.Following...)
		}
		out[k] = a
	}
	return out
}

// MarshalJSON encodes the board as a list ordered by Keys
func (b ArrivalBoard) MarshalJSON() ([]byte, error) {
	list := make([]StationArrival, 0, len(b))
	for _, k := range b.Keys() {
		list = append(list, b[k])
	}
	return json.Marshal(list)
}

func (b *ArrivalBoard) UnmarshalJSON(data []byte) error {
	var list []StationArrival
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	board := make(ArrivalBoard, len(list))
	for _, a := range list {
		key := BoardKey{Line: a.Line, Direction: a.Direction}
		if _, dup := board[key]; dup {
			return fmt.Errorf("duplicate board entry %s", key)
		}
		board[key] = a
	}
	*b = board
	return nil
}

// CacheEntry is a board and the time it was captured
type CacheEntry struct {
	Board      ArrivalBoard `json:"board"`
	CapturedAt time.Time    `json:"captured_at"`
}

// Age returns how old the entry is at now
func (e CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.CapturedAt)
}
