package gtfs

import "fmt"

type EventType int

const (
	Arrival EventType = iota
	Departure
)

func (e EventType) String() string {
	if e == Departure {
		return "DEPARTURE"
	}
	return "ARRIVAL"
}

// StopRelationship is the per-stop schedule relationship.
type StopRelationship int

const (
	StopScheduled StopRelationship = iota
	StopSkipped
	StopNoData
)

func (r StopRelationship) String() string {
	switch r {
	case StopSkipped:
		return "SKIPPED"
	case StopNoData:
		return "NO_DATA"
	default:
		return "SCHEDULED"
	}
}

// TripRelationship is the trip-level schedule relationship.
type TripRelationship int

const (
	TripScheduled TripRelationship = iota
	TripAdded
	TripCanceled
)

func (r TripRelationship) String() string {
	switch r {
	case TripAdded:
		return "ADDED"
	case TripCanceled:
		return "CANCELED"
	default:
		return "SCHEDULED"
	}
}

// Active reports whether the relationship represents a running trip.
func (r TripRelationship) Active() bool { return r != TripCanceled }

type CancellationStatus int

const (
	StatusCanceled CancellationStatus = iota
	StatusRunning
)

func (s CancellationStatus) String() string {
	if s == StatusRunning {
		return "RUNNING"
	}
	return "CANCELED"
}

type RouteInfo struct {
	RouteName    string // normalized route id
	Direction    uint32 // 0 or 1
	OperatingDay string // YYYYMMDD
	StartTime    string // HH:MM:SS, hours may exceed 23
	Relationship TripRelationship
}

// StopEvent is one observed arrival or departure at one stop of one trip.
type StopEvent struct {
	TripID            string
	Type              EventType
	StopID            string
	DisplayedStopID   string // optional platform override
	StopSequence      int
	StopRelationship  StopRelationship
	TargetTime        int64 // epoch seconds
	LastModifiedMilli int64 // epoch milliseconds
	Route             RouteInfo
}

// StopTimeUpdate is the merged state of one stop of a trip. StopSequence is
// set while merging and on placeholder entries only; reconciled output never
// carries it.
type StopTimeUpdate struct {
	StopSequence *uint32
	StopID       string
	Arrival      *int64
	Departure    *int64
	Relationship StopRelationship
}

// Starting returns the arrival, falling back to the departure.
func (s StopTimeUpdate) Starting() (int64, bool) {
	if s.Arrival != nil {
		return *s.Arrival, true
	}
	if s.Departure != nil {
		return *s.Departure, true
	}
	return 0, false
}

// Finishing returns the departure, falling back to the arrival.
func (s StopTimeUpdate) Finishing() (int64, bool) {
	if s.Departure != nil {
		return *s.Departure, true
	}
	if s.Arrival != nil {
		return *s.Arrival, true
	}
	return 0, false
}

type TripDescriptor struct {
	TripID       string
	RouteID      string
	DirectionID  uint32
	StartDate    string
	StartTime    string
	Relationship TripRelationship
}

// TripUpdate is the per-trip aggregate. Values are rebuilt, never shared
// mutably between callers.
type TripUpdate struct {
	Trip            TripDescriptor
	Timestamp       int64 // epoch seconds
	StopTimeUpdates []StopTimeUpdate
}

type TripCancellation struct {
	TripID      string
	RouteID     string
	DirectionID uint32
	StartDate   string
	StartTime   string
	Status      CancellationStatus
	Full        bool
}

// Key identifies the trip a cancellation applies to. Cancellations without
// a resolved trip id are keyed on their descriptor.
func (c TripCancellation) Key() string {
	if c.TripID != "" {
		return c.TripID
	}
	return DescriptorKey(c.RouteID, c.DirectionID, c.StartDate, c.StartTime)
}

func DescriptorKey(route string, direction uint32, date, startTime string) string {
	return fmt.Sprintf("%s_%d_%s_%s", route, direction, date, startTime)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
