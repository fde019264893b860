package feed

import (
	"fmt"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/jusunglee/subway-board/internal/models"
)

// EncodeTripUpdates builds a GTFS-RT FeedMessage holding trips.
// Used for tests and for writing offline replay fixtures.
func EncodeTripUpdates(timestamp time.Time, trips []models.TripUpdate) ([]byte, error) {
	incrementality := gtfs.FeedHeader_FULL_DATASET
	fm := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("1.0"),
			Incrementality:      &incrementality,
			Timestamp:           proto.Uint64(uint64(timestamp.Unix())),
		},
	}

	for i, trip := range trips {
		rel := gtfs.TripDescriptor_SCHEDULED
		if trip.Canceled {
			rel = gtfs.TripDescriptor_CANCELED
		}

		updates := make([]*gtfs.TripUpdate_StopTimeUpdate, 0, len(trip.Predictions))
		for _, p := range trip.Predictions {
			updates = append(updates, &gtfs.TripUpdate_StopTimeUpdate{
				StopId:  proto.String(p.StopID),
				Arrival: &gtfs.TripUpdate_StopTimeEvent{Time: proto.Int64(p.Arrival)},
			})
		}

		fm.Entity = append(fm.Entity, &gtfs.FeedEntity{
			Id: proto.String(fmt.Sprintf("%06d", i+1)),
			TripUpdate: &gtfs.TripUpdate{
				Trip: &gtfs.TripDescriptor{
					TripId:               proto.String(trip.TripID),
					RouteId:              proto.String(string(trip.Line)),
					ScheduleRelationship: &rel,
				},
				StopTimeUpdate: updates,
			},
		})
	}

	return proto.Marshal(fm)
}

// CreateMockTrips creates trip updates around 23 St for testing and replay.
// Includes a ghost pair on the southbound F and a canceled M.
func CreateMockTrips(now time.Time) []models.TripUpdate {
	at := func(d time.Duration) int64 { return now.Add(d).Unix() }

	return []models.TripUpdate{
		{
			TripID: "071950_F..N", Line: "F", Direction: models.North,
			Predictions: []models.StopTimePrediction{
				{StopID: "D19N", Arrival: at(2 * time.Minute)},
				{StopID: "D18N", Arrival: at(4 * time.Minute)},
				{StopID: "D17N", Arrival: at(6 * time.Minute)},
			},
		},
		{
			TripID: "072300_F..S", Line: "F", Direction: models.South,
			Predictions: []models.StopTimePrediction{
				{StopID: "D18S", Arrival: at(5 * time.Minute)},
			},
		},
		{
			TripID: "072310_F..S", Line: "F", Direction: models.South,
			Predictions: []models.StopTimePrediction{
				{StopID: "D18S", Arrival: at(5*time.Minute + 20*time.Second)},
			},
		},
		{
			TripID: "073000_F..S", Line: "F", Direction: models.South,
			Predictions: []models.StopTimePrediction{
				{StopID: "D18S", Arrival: at(11 * time.Minute)},
			},
		},
		{
			TripID: "072500_M..N", Line: "M", Direction: models.North, Canceled: true,
			Predictions: []models.StopTimePrediction{
				{StopID: "D18N", Arrival: at(3 * time.Minute)},
			},
		},
		{
			TripID: "072700_M..S", Line: "M", Direction: models.South,
			Predictions: []models.StopTimePrediction{
				{StopID: "D18S", Arrival: at(1 * time.Minute)},
			},
		},
		{
			TripID: "071800_R..N", Line: "R", Direction: models.North,
			Predictions: []models.StopTimePrediction{
				{StopID: "R19N", Arrival: at(7 * time.Minute)},
			},
		},
		{
			TripID: "071900_6..S", Line: "6", Direction: models.South,
			Predictions: []models.StopTimePrediction{
				{StopID: "634S", Arrival: at(3 * time.Minute)},
				{StopID: "633S", Arrival: at(5 * time.Minute)},
			},
		},
	}
}
