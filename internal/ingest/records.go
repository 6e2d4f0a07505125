package ingest

import (
	"encoding/json"
	"fmt"
)

// Schema tags carried in the "schema" header of inbound messages.
const (
	SchemaStopEstimate     = "stop-estimate"
	SchemaTripCancellation = "trip-cancellation"
)

// Record is either an *EstimateRecord or a *CancellationRecord.
type Record interface {
	TripKey() string
}

// EstimateRecord is an inbound arrival or departure estimate. Times are
// epoch milliseconds. Direction uses source codes "1" and "2".
type EstimateRecord struct {
	TripID         string `json:"tripId" validate:"required"`
	RouteName      string `json:"routeName" validate:"required"`
	Direction      string `json:"direction" validate:"required"`
	OperatingDay   string `json:"operatingDay" validate:"required"`
	StartTime      string `json:"startTime" validate:"required"`
	StopID         string `json:"stopId" validate:"required"`
	AssignedStopID string `json:"assignedStopId,omitempty"`
	StopSequence   int    `json:"stopSequence" validate:"gte=0"`
	Status         string `json:"status" validate:"oneof=SCHEDULED SKIPPED"`
	Type           string `json:"type" validate:"oneof=ARRIVAL DEPARTURE"`
	TargetTime     int64  `json:"targetTime" validate:"gt=0"`
	LastModified   int64  `json:"lastModified"`
	Added          bool   `json:"added,omitempty"`
}

func (r *EstimateRecord) TripKey() string { return r.TripID }

// CancellationRecord cancels or reinstates a departure. TripID may be empty,
// in which case it is resolved from the route descriptor.
type CancellationRecord struct {
	TripID                string `json:"tripId,omitempty"`
	RouteName             string `json:"routeName" validate:"required"`
	Direction             string `json:"direction" validate:"required"`
	OperatingDay          string `json:"operatingDay" validate:"required"`
	StartTime             string `json:"startTime" validate:"required"`
	Status                string `json:"status" validate:"oneof=CANCELED RUNNING"`
	CancelEntireDeparture bool   `json:"cancelEntireDeparture"`
	CancelDeparture       bool   `json:"cancelDeparture"`
	Timestamp             int64  `json:"timestamp"`
}

func (r *CancellationRecord) TripKey() string {
	if r.TripID != "" {
		return r.TripID
	}
	return r.RouteName + "_" + r.Direction + "_" + r.OperatingDay + "_" + r.StartTime
}

// Decode parses payload according to its schema tag.
func Decode(schema string, payload []byte) (Record, error) {
	var rec Record
	switch schema {
	case SchemaStopEstimate:
		rec = &EstimateRecord{}
	case SchemaTripCancellation:
		rec = &CancellationRecord{}
	default:
		return nil, fmt.Errorf("unknown schema %q", schema)
	}
	if err := json.Unmarshal(payload, rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", schema, err)
	}
	return rec, nil
}
