package gtfs

import (
	"testing"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

func TestMarshalCancelledTrip(t *testing.T) {
	tu := TripUpdate{
		Trip: TripDescriptor{
			RouteID:      "1010H",
			DirectionID:  1,
			StartDate:    "20181224",
			StartTime:    "17:05:00",
			Relationship: TripCanceled,
		},
		Timestamp:       1545674100,
		StopTimeUpdates: []StopTimeUpdate{},
	}

	b, err := Marshal("1010H_1_20181224_17:05:00", tu)
	require.NoError(t, err)

	var msg gtfsrt.FeedMessage
	require.NoError(t, proto.Unmarshal(b, &msg))
	assert.Equal(t, gtfsrt.FeedHeader_DIFFERENTIAL, msg.GetHeader().GetIncrementality())
	assert.Equal(t, uint64(1545674100), msg.GetHeader().GetTimestamp())
	require.Len(t, msg.GetEntity(), 1)

	entity := msg.GetEntity()[0]
	assert.Equal(t, "1010H_1_20181224_17:05:00", entity.GetId())
	trip := entity.GetTripUpdate().GetTrip()
	assert.Nil(t, trip.TripId)
	assert.Equal(t, gtfsrt.TripDescriptor_CANCELED, trip.GetScheduleRelationship())
	assert.Equal(t, uint32(1), trip.GetDirectionId())
	assert.Empty(t, entity.GetTripUpdate().GetStopTimeUpdate())
}

func TestToProtoStopTimes(t *testing.T) {
	tu := TripUpdate{
		Trip: TripDescriptor{TripID: "trip-1", RouteID: "1010H", Relationship: TripAdded},
		StopTimeUpdates: []StopTimeUpdate{
			{StopID: "1040129", Arrival: Ptr(int64(100)), Departure: Ptr(int64(160))},
			{StopID: "1040130", Relationship: StopSkipped, Arrival: Ptr(int64(200)), Departure: Ptr(int64(200))},
			{StopSequence: Ptr(uint32(1)), Relationship: StopNoData},
		},
	}

	pb := ToProto(tu)
	assert.Equal(t, gtfsrt.TripDescriptor_ADDED, pb.GetTrip().GetScheduleRelationship())
	require.Len(t, pb.GetStopTimeUpdate(), 3)

	first := pb.GetStopTimeUpdate()[0]
	assert.Equal(t, "1040129", first.GetStopId())
	assert.Equal(t, int64(100), first.GetArrival().GetTime())
	assert.Equal(t, int64(160), first.GetDeparture().GetTime())
	assert.Nil(t, first.StopSequence)

	assert.Equal(t, gtfsrt.TripUpdate_StopTimeUpdate_SKIPPED, pb.GetStopTimeUpdate()[1].GetScheduleRelationship())

	placeholder := pb.GetStopTimeUpdate()[2]
	assert.Equal(t, gtfsrt.TripUpdate_StopTimeUpdate_NO_DATA, placeholder.GetScheduleRelationship())
	assert.Equal(t, uint32(1), placeholder.GetStopSequence())
	assert.Nil(t, placeholder.GetArrival())
	assert.Nil(t, placeholder.StopId)
}
