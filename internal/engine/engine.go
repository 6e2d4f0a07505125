// Package engine folds per-stop events and cancellations into one
// authoritative TripUpdate per trip.
package engine

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"gtfsrt-tripupdater/internal/gtfs"
	"gtfsrt-tripupdater/internal/reconcile"
)

// DefaultTTL is how long a trip's state survives without any event.
const DefaultTTL = 4 * time.Hour

const lockStripes = 256

// Metrics receives cache housekeeping signals. It may be nil.
type Metrics interface {
	TripEvictedInc()
}

// Engine owns the per-trip caches. All mutations for one trip key happen
// under that key's stripe lock; different trips never contend on a global lock.
type Engine struct {
	stopTimes *idleCache[map[int]gtfs.StopTimeUpdate]
	trips     *idleCache[gtfs.TripUpdate]
	schedule  *idleCache[gtfs.TripRelationship] // last non-cancelled relationship

	locks [lockStripes]sync.Mutex
}

func New(ttl time.Duration, m Metrics) *Engine {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	var onEvict func(string)
	if m != nil {
		onEvict = func(string) { m.TripEvictedInc() }
	}
	return &Engine{
		stopTimes: newIdleCache[map[int]gtfs.StopTimeUpdate](ttl, nil),
		trips:     newIdleCache[gtfs.TripUpdate](ttl, onEvict),
		schedule:  newIdleCache[gtfs.TripRelationship](ttl, nil),
	}
}

func (e *Engine) lock(key string) *sync.Mutex {
	return &e.locks[xxhash.Sum64String(key)%lockStripes]
}

// ApplyStopEstimate merges ev into its trip and returns the rebuilt trip
// update. It returns false when the trip is cancelled or the event could not
// be applied.
func (e *Engine) ApplyStopEstimate(ev gtfs.StopEvent) (tu gtfs.TripUpdate, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("trip", ev.TripID).Int("stop_sequence", ev.StopSequence).Interface("panic", r).Msg("failed to apply stop estimate")
			tu, ok = gtfs.TripUpdate{}, false
		}
	}()

	if ev.TripID == "" {
		log.Warn().Str("stop", ev.StopID).Msg("stop estimate without trip id")
		return gtfs.TripUpdate{}, false
	}

	mu := e.lock(ev.TripID)
	mu.Lock()
	defer mu.Unlock()

	prev, _ := e.stopTimes.Get(ev.TripID)
	stops := make(map[int]gtfs.StopTimeUpdate, len(prev)+1)
	maps.Copy(stops, prev)
	stops[ev.StopSequence] = merge(stops[ev.StopSequence], ev)

	candidates, latest := ordered(stops, ev.StopSequence)
	reconciled := reconcile.Reconcile(candidates, reconcile.Latest{
		Index:       latest,
		ArrivalOnly: ev.Type == gtfs.Arrival,
	})

	next, found := e.trips.Get(ev.TripID)
	if !found {
		next = gtfs.TripUpdate{Trip: descriptorFromEvent(ev)}
	}
	next.StopTimeUpdates = reconciled
	next.Timestamp = ev.LastModifiedMilli / 1000

	e.stopTimes.Put(ev.TripID, stops)
	e.trips.Put(ev.TripID, next)
	if next.Trip.Relationship.Active() {
		e.schedule.Put(ev.TripID, next.Trip.Relationship)
	}

	if !next.Trip.Relationship.Active() {
		log.Debug().Str("trip", ev.TripID).Msg("trip is cancelled, not publishing stop estimate")
		return gtfs.TripUpdate{}, false
	}
	return next, true
}

// ApplyCancellation cancels or reactivates the trip identified by key and
// returns its rebuilt trip update. eventTimestampMs is in milliseconds.
func (e *Engine) ApplyCancellation(key string, eventTimestampMs int64, c gtfs.TripCancellation) gtfs.TripUpdate {
	mu := e.lock(key)
	mu.Lock()
	defer mu.Unlock()

	rel := gtfs.TripCanceled
	if c.Status == gtfs.StatusRunning {
		rel = gtfs.TripScheduled
		if memorized, ok := e.schedule.Get(key); ok {
			rel = memorized
		}
	}

	next, found := e.trips.Get(key)
	if !found {
		next = gtfs.TripUpdate{Trip: descriptorFromCancellation(c)}
	}
	next.Trip.Relationship = rel
	next.Timestamp = eventTimestampMs / 1000
	next.StopTimeUpdates = []gtfs.StopTimeUpdate{}

	if rel.Active() {
		stops, _ := e.stopTimes.Get(key)
		candidates, _ := ordered(stops, -1)
		reconciled := reconcile.Reconcile(candidates, reconcile.None)
		if len(reconciled) == 0 {
			// an active trip must carry at least one stop time update
			reconciled = []gtfs.StopTimeUpdate{{
				StopSequence: gtfs.Ptr(uint32(1)),
				Relationship: gtfs.StopNoData,
			}}
		}
		next.StopTimeUpdates = reconciled
	}

	e.trips.Put(key, next)
	log.Debug().Str("trip", key).Stringer("relationship", rel).Msg("applied trip cancellation")
	return next
}

// Trip returns the cached trip update without refreshing its idle timer.
func (e *Engine) Trip(key string) (gtfs.TripUpdate, bool) {
	return e.trips.Peek(key)
}

// Len returns the number of trips with cached state.
func (e *Engine) Len() int { return e.trips.Len() }

func merge(st gtfs.StopTimeUpdate, ev gtfs.StopEvent) gtfs.StopTimeUpdate {
	st.StopSequence = gtfs.Ptr(uint32(ev.StopSequence))
	st.StopID = ev.StopID
	if ev.DisplayedStopID != "" {
		st.StopID = ev.DisplayedStopID
	}
	st.Relationship = ev.StopRelationship
	switch ev.Type {
	case gtfs.Arrival:
		st.Arrival = gtfs.Ptr(ev.TargetTime)
	case gtfs.Departure:
		st.Departure = gtfs.Ptr(ev.TargetTime)
	}
	return st
}

// ordered returns the entries sorted by stop sequence and the index of seq
// within them, or -1.
func ordered(stops map[int]gtfs.StopTimeUpdate, seq int) ([]gtfs.StopTimeUpdate, int) {
	keys := slices.Sorted(maps.Keys(stops))
	out := make([]gtfs.StopTimeUpdate, len(keys))
	idx := -1
	for i, k := range keys {
		out[i] = stops[k]
		if k == seq {
			idx = i
		}
	}
	return out, idx
}

func descriptorFromEvent(ev gtfs.StopEvent) gtfs.TripDescriptor {
	return gtfs.TripDescriptor{
		TripID:       ev.TripID,
		RouteID:      ev.Route.RouteName,
		DirectionID:  ev.Route.Direction,
		StartDate:    ev.Route.OperatingDay,
		StartTime:    ev.Route.StartTime,
		Relationship: ev.Route.Relationship,
	}
}

func descriptorFromCancellation(c gtfs.TripCancellation) gtfs.TripDescriptor {
	return gtfs.TripDescriptor{
		TripID:      c.TripID,
		RouteID:     c.RouteID,
		DirectionID: c.DirectionID,
		StartDate:   c.StartDate,
		StartTime:   c.StartTime,
	}
}
