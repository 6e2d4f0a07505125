package ingest

import (
	"context"
	"errors"

	"gtfsrt-tripupdater/internal/refdata"
)

// Enricher fills route fields missing from an estimate using trip reference
// data. A nil Lookup disables enrichment.
type Enricher struct {
	Lookup refdata.Lookup
}

func (e Enricher) needs(r *EstimateRecord) bool {
	return r.RouteName == "" || r.Direction == "" || r.OperatingDay == "" || r.StartTime == ""
}

// Enrich completes r in place. Fields already present are never overwritten.
// An unknown trip is not an error; validation rejects the record later.
func (e Enricher) Enrich(ctx context.Context, r *EstimateRecord) error {
	if e.Lookup == nil || r.TripID == "" || !e.needs(r) {
		return nil
	}
	info, err := e.Lookup.TripInfo(ctx, r.TripID)
	if errors.Is(err, refdata.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	fill(&r.RouteName, info.RouteName)
	fill(&r.Direction, info.Direction)
	fill(&r.OperatingDay, info.OperatingDay)
	fill(&r.StartTime, info.StartTime)
	return nil
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}
