// Package reconcile repairs ordering and same-stop conflicts in the stop time
// sequence of a single trip.
package reconcile

import "gtfsrt-tripupdater/internal/gtfs"

// Latest marks the entry touched by the event currently being applied.
// ArrivalOnly is set when that event carried an arrival time only.
type Latest struct {
	Index       int
	ArrivalOnly bool
}

// None is used when no entry was touched, e.g. when a cancelled trip is
// reactivated.
var None = Latest{Index: -1}

// Reconcile walks candidates, which must be ordered by stop sequence, and
// returns a new slice of the same length where
//
//   - no time goes backward compared to the previous stop's finishing time,
//   - arrival <= departure within each stop,
//   - stop sequences are stripped,
//   - a missing arrival or departure is copied from the one present.
//
// Same-stop conflicts are resolved in favour of the departure, except for the
// latest entry when it came from an arrival-only event. The input is not
// modified and the function is idempotent for a fixed latest.
func Reconcile(candidates []gtfs.StopTimeUpdate, latest Latest) []gtfs.StopTimeUpdate {
	out := make([]gtfs.StopTimeUpdate, len(candidates))

	var prevFinishing *int64
	for i, c := range candidates {
		arr := copyTime(c.Arrival)
		dep := copyTime(c.Departure)

		if prevFinishing != nil {
			clampUp(arr, *prevFinishing)
			clampUp(dep, *prevFinishing)
		}

		if arr != nil && dep != nil {
			if i == latest.Index && latest.ArrivalOnly {
				clampUp(dep, *arr)
			} else if *arr > *dep {
				*arr = *dep
			}
		}

		switch {
		case arr != nil && dep == nil:
			dep = copyTime(arr)
		case dep != nil && arr == nil:
			arr = copyTime(dep)
		}

		out[i] = gtfs.StopTimeUpdate{
			StopID:       c.StopID,
			Arrival:      arr,
			Departure:    dep,
			Relationship: c.Relationship,
		}

		if f, ok := out[i].Finishing(); ok {
			prevFinishing = &f
		}
	}
	return out
}

func copyTime(t *int64) *int64 {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func clampUp(t *int64, floor int64) {
	if t != nil && *t < floor {
		*t = floor
	}
}
