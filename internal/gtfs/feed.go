package gtfs

import (
	"fmt"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

const realtimeVersion = "2.0"

// FeedMessage wraps a single trip update into a differential feed message
// whose entity id is the trip key.
func FeedMessage(key string, tu TripUpdate) *gtfsrt.FeedMessage {
	return &gtfsrt.FeedMessage{
		Header: &gtfsrt.FeedHeader{
			GtfsRealtimeVersion: Ptr(realtimeVersion),
			Incrementality:      Ptr(gtfsrt.FeedHeader_DIFFERENTIAL),
			Timestamp:           Ptr(uint64(tu.Timestamp)),
		},
		Entity: []*gtfsrt.FeedEntity{{
			Id:         Ptr(key),
			TripUpdate: ToProto(tu),
		}},
	}
}

// Marshal encodes the feed message for key and tu.
func Marshal(key string, tu TripUpdate) ([]byte, error) {
	b, err := proto.Marshal(FeedMessage(key, tu))
	if err != nil {
		return nil, fmt.Errorf("marshal feed message: %w", err)
	}
	return b, nil
}

func ToProto(tu TripUpdate) *gtfsrt.TripUpdate {
	trip := &gtfsrt.TripDescriptor{
		DirectionId:          Ptr(tu.Trip.DirectionID),
		ScheduleRelationship: Ptr(tripRelationshipProto(tu.Trip.Relationship)),
	}
	if tu.Trip.TripID != "" {
		trip.TripId = Ptr(tu.Trip.TripID)
	}
	if tu.Trip.RouteID != "" {
		trip.RouteId = Ptr(tu.Trip.RouteID)
	}
	if tu.Trip.StartDate != "" {
		trip.StartDate = Ptr(tu.Trip.StartDate)
	}
	if tu.Trip.StartTime != "" {
		trip.StartTime = Ptr(tu.Trip.StartTime)
	}

	updates := make([]*gtfsrt.TripUpdate_StopTimeUpdate, 0, len(tu.StopTimeUpdates))
	for _, st := range tu.StopTimeUpdates {
		u := &gtfsrt.TripUpdate_StopTimeUpdate{
			StopSequence:         st.StopSequence,
			ScheduleRelationship: Ptr(stopRelationshipProto(st.Relationship)),
		}
		if st.StopID != "" {
			u.StopId = Ptr(st.StopID)
		}
		if st.Arrival != nil {
			u.Arrival = &gtfsrt.TripUpdate_StopTimeEvent{Time: Ptr(*st.Arrival)}
		}
		if st.Departure != nil {
			u.Departure = &gtfsrt.TripUpdate_StopTimeEvent{Time: Ptr(*st.Departure)}
		}
		updates = append(updates, u)
	}

	return &gtfsrt.TripUpdate{
		Trip:           trip,
		Timestamp:      Ptr(uint64(tu.Timestamp)),
		StopTimeUpdate: updates,
	}
}

func tripRelationshipProto(r TripRelationship) gtfsrt.TripDescriptor_ScheduleRelationship {
	switch r {
	case TripAdded:
		return gtfsrt.TripDescriptor_ADDED
	case TripCanceled:
		return gtfsrt.TripDescriptor_CANCELED
	default:
		return gtfsrt.TripDescriptor_SCHEDULED
	}
}

func stopRelationshipProto(r StopRelationship) gtfsrt.TripUpdate_StopTimeUpdate_ScheduleRelationship {
	switch r {
	case StopSkipped:
		return gtfsrt.TripUpdate_StopTimeUpdate_SKIPPED
	case StopNoData:
		return gtfsrt.TripUpdate_StopTimeUpdate_NO_DATA
	default:
		return gtfsrt.TripUpdate_StopTimeUpdate_SCHEDULED
	}
}
