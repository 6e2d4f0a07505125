// Package ingest validates inbound records and translates them into events
// the aggregation engine understands.
package ingest

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"gtfsrt-tripupdater/internal/gtfs"
)

// Ingester holds the compiled route rules. It is safe for concurrent use.
type Ingester struct {
	routes   *routeMatcher
	validate *validator.Validate
}

func New(rules Rules) (*Ingester, error) {
	m, err := newRouteMatcher(rules)
	if err != nil {
		return nil, err
	}
	return &Ingester{
		routes:   m,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// ValidateEstimate reports whether r may be translated and aggregated.
func (i *Ingester) ValidateEstimate(r *EstimateRecord) bool {
	if err := i.validate.Struct(r); err != nil {
		log.Info().Err(err).Str("trip", r.TripID).Msg("rejecting stop estimate")
		return false
	}
	return i.validateRoute(r.TripID, r.RouteName, r.Direction)
}

// ValidateCancellation reports whether r is a well formed full cancellation or
// the reinstatement of one. Partial records are rejected for either status so
// a partial un-cancel never reactivates a fully cancelled trip.
func (i *Ingester) ValidateCancellation(r *CancellationRecord) bool {
	if err := i.validate.Struct(r); err != nil {
		log.Info().Err(err).Str("trip", r.TripKey()).Msg("rejecting trip cancellation")
		return false
	}
	if !r.CancelEntireDeparture || !r.CancelDeparture {
		log.Info().
			Str("trip", r.TripKey()).
			Bool("cancel_entire_departure", r.CancelEntireDeparture).
			Bool("cancel_departure", r.CancelDeparture).
			Str("status", r.Status).
			Msg("ignoring partial cancellation")
		return false
	}
	return i.validateRoute(r.TripKey(), r.RouteName, r.Direction)
}

func (i *Ingester) validateRoute(trip, route, direction string) bool {
	if !i.routes.valid(route) {
		log.Info().Str("trip", trip).Str("route", route).Msg("invalid route name")
		return false
	}
	if i.routes.rejectTrain(route) {
		log.Debug().Str("trip", trip).Str("route", route).Msg("filtering train route")
		return false
	}
	if _, ok := canonicalDirection(direction); !ok {
		log.Info().Str("trip", trip).Str("direction", direction).Msg("invalid direction")
		return false
	}
	return true
}

// TranslateEstimate maps a validated record into a StopEvent.
func (i *Ingester) TranslateEstimate(r *EstimateRecord) gtfs.StopEvent {
	direction, _ := canonicalDirection(r.Direction)

	ev := gtfs.StopEvent{
		TripID:            r.TripID,
		Type:              gtfs.Arrival,
		StopID:            r.StopID,
		DisplayedStopID:   r.AssignedStopID,
		StopSequence:      r.StopSequence,
		StopRelationship:  gtfs.StopScheduled,
		TargetTime:        r.TargetTime / 1000,
		LastModifiedMilli: r.LastModified,
		Route: gtfs.RouteInfo{
			RouteName:    i.routes.normalize(r.RouteName),
			Direction:    direction,
			OperatingDay: normalizeDate(r.OperatingDay),
			StartTime:    r.StartTime,
			Relationship: gtfs.TripScheduled,
		},
	}
	if r.Type == "DEPARTURE" {
		ev.Type = gtfs.Departure
	}
	if r.Status == "SKIPPED" {
		ev.StopRelationship = gtfs.StopSkipped
	}
	if r.Added {
		ev.Route.Relationship = gtfs.TripAdded
	}
	if ev.LastModifiedMilli <= 0 {
		ev.LastModifiedMilli = time.Now().UnixMilli()
	}
	return ev
}

// TranslateCancellation maps a validated record into a TripCancellation.
func (i *Ingester) TranslateCancellation(r *CancellationRecord) gtfs.TripCancellation {
	direction, _ := canonicalDirection(r.Direction)

	c := gtfs.TripCancellation{
		TripID:      r.TripID,
		RouteID:     i.routes.normalize(r.RouteName),
		DirectionID: direction,
		StartDate:   normalizeDate(r.OperatingDay),
		StartTime:   r.StartTime,
		Status:      gtfs.StatusCanceled,
		Full:        r.CancelEntireDeparture && r.CancelDeparture,
	}
	if r.Status == "RUNNING" {
		c.Status = gtfs.StatusRunning
	}
	return c
}

// canonicalDirection maps source directions 1 and 2 to 0 and 1.
func canonicalDirection(d string) (uint32, bool) {
	switch strings.TrimSpace(d) {
	case "1":
		return 0, true
	case "2":
		return 1, true
	}
	return 0, false
}

// normalizeDate accepts YYYY-MM-DD and YYYYMMDD.
func normalizeDate(d string) string {
	return strings.ReplaceAll(d, "-", "")
}
