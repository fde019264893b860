package feed

import (
	"strings"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/jusunglee/subway-board/internal/models"
)

// SupportedVersions lists the gtfs_realtime_version values the decoder accepts
var SupportedVersions = map[string]bool{
	"1.0": true,
	"2.0": true,
}

// Snapshot is one decoded feed
type Snapshot struct {
	Timestamp time.Time
	Trips     []models.TripUpdate
	// Skipped counts trip updates that lacked a trip id, route or direction
	Skipped int
}

// Decode parses a GTFS-RT FeedMessage into trip updates.
// Unknown fields, including NYCT extensions, are ignored.
func Decode(data []byte) (*Snapshot, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Reason: "empty feed"}
	}

	fm := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(data, fm); err != nil {
		return nil, &DecodeError{Reason: "failed to parse protobuf", Err: err}
	}

	version := fm.GetHeader().GetGtfsRealtimeVersion()
	if !SupportedVersions[version] {
		return nil, &DecodeError{Reason: "unsupported gtfs_realtime_version " + version}
	}

	snap := &Snapshot{}
	if ts := fm.GetHeader().GetTimestamp(); ts > 0 {
		snap.Timestamp = time.Unix(int64(ts), 0).UTC()
	}

	for _, entity := range fm.Entity {
		tu := entity.GetTripUpdate()
		if tu == nil {
			continue
		}

		trip, ok := decodeTripUpdate(tu)
		if !ok {
			snap.Skipped++
			continue
		}
		snap.Trips = append(snap.Trips, trip)
	}

	return snap, nil
}

func decodeTripUpdate(tu *gtfs.TripUpdate) (models.TripUpdate, bool) {
	desc := tu.GetTrip()
	tripID := desc.GetTripId()
	line := models.NormalizeLine(desc.GetRouteId())
	if tripID == "" || line == "" {
		return models.TripUpdate{}, false
	}

	trip := models.TripUpdate{
		TripID:    tripID,
		Line:      line,
		Direction: directionFromTripID(tripID),
		Canceled:  desc.GetScheduleRelationship() == gtfs.TripDescriptor_CANCELED,
	}
	if trip.Direction == models.DirectionUnknown && desc.DirectionId != nil {
		switch desc.GetDirectionId() {
		case 0:
			trip.Direction = models.North
		case 1:
			trip.Direction = models.South
		}
	}

	for _, stu := range tu.StopTimeUpdate {
		stopID := stu.GetStopId()
		if stopID == "" || stu.GetScheduleRelationship() == gtfs.TripUpdate_StopTimeUpdate_SKIPPED {
			continue
		}

		// Arrival first, departure when the feed only predicts departure
		at := stu.GetArrival().GetTime()
		if at == 0 {
			at = stu.GetDeparture().GetTime()
		}
		if at == 0 {
			continue
		}

		if trip.Direction == models.DirectionUnknown {
			_, trip.Direction = models.SplitStopID(stopID)
		}
		trip.Predictions = append(trip.Predictions, models.StopTimePrediction{StopID: stopID, Arrival: at})
	}

	if trip.Direction == models.DirectionUnknown {
		return models.TripUpdate{}, false
	}
	return trip, true
}

// directionFromTripID reads the NYCT direction marker, e.g. "071950_F..N" or "121150_6..S03R"
func directionFromTripID(tripID string) models.Direction {
	i := strings.IndexByte(tripID, '.')
	if i < 0 {
		return models.DirectionUnknown
	}
	for i < len(tripID) && tripID[i] == '.' {
		i++
	}
	if i >= len(tripID) {
		return models.DirectionUnknown
	}
	switch tripID[i] {
	case 'N':
		return models.North
	case 'S':
		return models.South
	}
	return models.DirectionUnknown
}
