// Package refdata looks up reference data about trips that inbound records
// may lack. Only the ingest layer consults it.
package refdata

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("reference data not found")

// TripInfo carries route information in the source system's conventions:
// Direction is "1" or "2" and OperatingDay may be empty when unknown.
type TripInfo struct {
	RouteName    string `json:"routeName"`
	Direction    string `json:"direction"`
	OperatingDay string `json:"operatingDay,omitempty"`
	StartTime    string `json:"startTime"`
}

type Lookup interface {
	TripInfo(ctx context.Context, tripID string) (TripInfo, error)
}

// Fallback consults lookups in order and returns the first hit.
type Fallback []Lookup

func (f Fallback) TripInfo(ctx context.Context, tripID string) (TripInfo, error) {
	var errs []error
	for _, l := range f {
		info, err := l.TripInfo(ctx, tripID)
		if err == nil {
			return info, nil
		}
		if !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return TripInfo{}, fmt.Errorf("trip %q: %w", tripID, errors.Join(errs...))
	}
	return TripInfo{}, ErrNotFound
}
