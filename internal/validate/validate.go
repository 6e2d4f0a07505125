// Package validate holds the checks a freshly built trip update has to pass
// before it is published.
package validate

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"gtfsrt-tripupdater/internal/gtfs"
)

// Validator accepts or rejects a trip update.
type Validator interface {
	Name() string
	Validate(tu gtfs.TripUpdate) bool
}

// Chain runs validators in order and stops at the first rejection.
type Chain []Validator

// Validate returns the name of the rejecting validator, or "" when all
// validators accept.
func (c Chain) Validate(tu gtfs.TripUpdate) string {
	for _, v := range c {
		if !v.Validate(tu) {
			return v.Name()
		}
	}
	return ""
}

func skip(tu gtfs.TripUpdate) bool {
	return tu.Trip.Relationship == gtfs.TripCanceled || len(tu.StopTimeUpdates) == 0
}

// PrematureDeparture rejects trip updates whose first known stop time lies
// further before the scheduled start than MaxLead.
type PrematureDeparture struct {
	MaxLead  time.Duration
	Location *time.Location
}

func (PrematureDeparture) Name() string { return "premature_departure" }

func (p PrematureDeparture) Validate(tu gtfs.TripUpdate) bool {
	if skip(tu) {
		return true
	}
	start, err := ScheduledStart(tu.Trip.StartDate, tu.Trip.StartTime, p.Location)
	if err != nil {
		log.Warn().Err(err).Str("trip", tu.Trip.TripID).Msg("cannot compute scheduled start")
		return true
	}
	for _, st := range tu.StopTimeUpdates {
		if st.Relationship == gtfs.StopNoData {
			continue
		}
		t, ok := st.Finishing()
		if !ok {
			continue
		}
		lead := start.Sub(time.Unix(t, 0))
		if lead > p.MaxLead {
			log.Info().
				Str("trip", tu.Trip.TripID).
				Str("route", tu.Trip.RouteID).
				Dur("lead", lead).
				Msg("trip update departs too early")
			return false
		}
		return true
	}
	return true
}

// MaxAge rejects trip updates whose final stop time is older than MaxAge.
type MaxAge struct {
	MaxAge time.Duration
	Now    func() time.Time
}

func (MaxAge) Name() string { return "max_age" }

func (m MaxAge) Validate(tu gtfs.TripUpdate) bool {
	if skip(tu) {
		return true
	}
	last, ok := tu.StopTimeUpdates[len(tu.StopTimeUpdates)-1].Starting()
	if !ok {
		return true
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	age := now().Sub(time.Unix(last, 0))
	if age > m.MaxAge {
		log.Info().Str("trip", tu.Trip.TripID).Dur("age", age).Msg("trip update is too old")
		return false
	}
	return true
}

// MissingEstimates rejects trip updates where too many consecutive stops
// share an identical departure and next arrival, which happens when the
// source copies a stale estimate forward. A threshold <= 0 disables it.
type MissingEstimates struct {
	Threshold int
}

func (MissingEstimates) Name() string { return "missing_estimates" }

func (m MissingEstimates) Validate(tu gtfs.TripUpdate) bool {
	if m.Threshold <= 0 {
		return true
	}
	count := 0
	for i := 1; i < len(tu.StopTimeUpdates); i++ {
		prev, next := tu.StopTimeUpdates[i-1], tu.StopTimeUpdates[i]
		if prev.Departure == nil || next.Arrival == nil {
			continue
		}
		if *prev.Departure == *next.Arrival {
			count++
			if count >= m.Threshold {
				log.Info().Str("trip", tu.Trip.TripID).Int("count", count).Msg("trip update is missing estimates")
				return false
			}
		}
	}
	return true
}

// ScheduledStart combines a YYYYMMDD operating day and an HH:MM:SS start time
// in loc. Hours of 24 and above fall on the following calendar days.
func ScheduledStart(date, startTime string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation("20060102", date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start date %q: %w", date, err)
	}
	sec, err := gtfs.ParseDaySeconds(startTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}
	// time.Date normalizes overflowing hours into following days
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, sec, 0, loc), nil
}
