package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfsrt-tripupdater/internal/gtfs"
	"gtfsrt-tripupdater/internal/refdata"
)

func estimate() *EstimateRecord {
	return &EstimateRecord{
		TripID:         "1010H_20181224_1705_1",
		RouteName:      "1010H4",
		Direction:      "1",
		OperatingDay:   "2018-12-24",
		StartTime:      "17:05:00",
		StopID:         "1040129",
		AssignedStopID: "1040601",
		StopSequence:   3,
		Status:         "SCHEDULED",
		Type:           "DEPARTURE",
		TargetTime:     1545674400123,
		LastModified:   1545674000123,
	}
}

func cancellation() *CancellationRecord {
	return &CancellationRecord{
		RouteName:             "1010H",
		Direction:             "2",
		OperatingDay:          "20181224",
		StartTime:             "17:05:00",
		Status:                "CANCELED",
		CancelEntireDeparture: true,
		CancelDeparture:       true,
		Timestamp:             1545674000123,
	}
}

func newIngester(t *testing.T, filterTrains bool) *Ingester {
	t.Helper()
	rules := DefaultRules()
	rules.FilterTrains = filterTrains
	i, err := New(rules)
	require.NoError(t, err)
	return i
}

func TestValidateEstimate(t *testing.T) {
	i := newIngester(t, true)

	tests := []struct {
		name   string
		mutate func(r *EstimateRecord)
		want   bool
	}{
		{"valid", func(*EstimateRecord) {}, true},
		{"plain route", func(r *EstimateRecord) { r.RouteName = "1010" }, true},
		{"metro exception", func(r *EstimateRecord) { r.RouteName = "31M2" }, true},
		{"train filtered", func(r *EstimateRecord) { r.RouteName = "3001K" }, false},
		{"bad route", func(r *EstimateRecord) { r.RouteName = "10X" }, false},
		{"bad direction", func(r *EstimateRecord) { r.Direction = "3" }, false},
		{"missing trip", func(r *EstimateRecord) { r.TripID = "" }, false},
		{"missing stop", func(r *EstimateRecord) { r.StopID = "" }, false},
		{"missing start time", func(r *EstimateRecord) { r.StartTime = "" }, false},
		{"bad type", func(r *EstimateRecord) { r.Type = "PASS" }, false},
		{"no target time", func(r *EstimateRecord) { r.TargetTime = 0 }, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := estimate()
			tc.mutate(r)
			assert.Equal(t, tc.want, i.ValidateEstimate(r))
		})
	}
}

func TestTrainRoutesPassWithoutFilter(t *testing.T) {
	i := newIngester(t, false)
	r := estimate()
	r.RouteName = "3001K"
	assert.True(t, i.ValidateEstimate(r))
}

func TestTranslateEstimate(t *testing.T) {
	i := newIngester(t, false)

	ev := i.TranslateEstimate(estimate())
	assert.Equal(t, gtfs.StopEvent{
		TripID:            "1010H_20181224_1705_1",
		Type:              gtfs.Departure,
		StopID:            "1040129",
		DisplayedStopID:   "1040601",
		StopSequence:      3,
		StopRelationship:  gtfs.StopScheduled,
		TargetTime:        1545674400,
		LastModifiedMilli: 1545674000123,
		Route: gtfs.RouteInfo{
			RouteName:    "1010H",
			Direction:    0,
			OperatingDay: "20181224",
			StartTime:    "17:05:00",
			Relationship: gtfs.TripScheduled,
		},
	}, ev)

	r := estimate()
	r.Direction = "2"
	r.Type = "ARRIVAL"
	r.Status = "SKIPPED"
	r.Added = true
	r.LastModified = 0
	ev = i.TranslateEstimate(r)
	assert.Equal(t, uint32(1), ev.Route.Direction)
	assert.Equal(t, gtfs.Arrival, ev.Type)
	assert.Equal(t, gtfs.StopSkipped, ev.StopRelationship)
	assert.Equal(t, gtfs.TripAdded, ev.Route.Relationship)
	assert.Positive(t, ev.LastModifiedMilli)
}

func TestValidateCancellation(t *testing.T) {
	i := newIngester(t, true)

	assert.True(t, i.ValidateCancellation(cancellation()))

	partial := cancellation()
	partial.CancelEntireDeparture = false
	assert.False(t, i.ValidateCancellation(partial))

	running := cancellation()
	running.Status = "RUNNING"
	assert.True(t, i.ValidateCancellation(running))

	partialRunning := cancellation()
	partialRunning.Status = "RUNNING"
	partialRunning.CancelDeparture = false
	assert.False(t, i.ValidateCancellation(partialRunning))

	train := cancellation()
	train.RouteName = "3002U"
	assert.False(t, i.ValidateCancellation(train))

	unknown := cancellation()
	unknown.Status = "DELAYED"
	assert.False(t, i.ValidateCancellation(unknown))
}

func TestTranslateCancellation(t *testing.T) {
	i := newIngester(t, false)

	c := i.TranslateCancellation(cancellation())
	assert.Equal(t, gtfs.TripCancellation{
		RouteID:     "1010H",
		DirectionID: 1,
		StartDate:   "20181224",
		StartTime:   "17:05:00",
		Status:      gtfs.StatusCanceled,
		Full:        true,
	}, c)

	r := cancellation()
	r.Status = "RUNNING"
	assert.Equal(t, gtfs.StatusRunning, i.TranslateCancellation(r).Status)
}

func TestDecode(t *testing.T) {
	rec, err := Decode(SchemaStopEstimate, []byte(`{"tripId":"t1","routeName":"1010","stopSequence":2}`))
	require.NoError(t, err)
	est, ok := rec.(*EstimateRecord)
	require.True(t, ok)
	assert.Equal(t, "t1", est.TripKey())
	assert.Equal(t, 2, est.StopSequence)

	rec, err = Decode(SchemaTripCancellation, []byte(`{"routeName":"1010","direction":"1","operatingDay":"20181224","startTime":"17:05:00"}`))
	require.NoError(t, err)
	assert.Equal(t, "1010_1_20181224_17:05:00", rec.TripKey())

	_, err = Decode("vehicle-position", []byte(`{}`))
	assert.Error(t, err)

	_, err = Decode(SchemaStopEstimate, []byte(`{`))
	assert.Error(t, err)
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("filterTrains: true\nexceptions: [\"31M1\"]\n"), 0o600))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.True(t, rules.FilterTrains)
	assert.Equal(t, []string{"31M1"}, rules.Exceptions)
	assert.Equal(t, DefaultRules().RoutePattern, rules.RoutePattern)

	require.NoError(t, os.WriteFile(path, []byte("routePattern: \"\"\n"), 0o600))
	_, err = LoadRules(path)
	assert.Error(t, err)

	_, err = LoadRules(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = New(Rules{RoutePattern: "(", VariantPattern: "x", TrainPattern: "y"})
	assert.Error(t, err)
}

type stubLookup struct {
	info refdata.TripInfo
	err  error
}

func (s stubLookup) TripInfo(context.Context, string) (refdata.TripInfo, error) {
	return s.info, s.err
}

func TestEnrich(t *testing.T) {
	ctx := context.Background()
	info := refdata.TripInfo{RouteName: "1010H", Direction: "2", OperatingDay: "20181224", StartTime: "17:05:00"}

	r := &EstimateRecord{TripID: "t1", Direction: "1"}
	require.NoError(t, Enricher{Lookup: stubLookup{info: info}}.Enrich(ctx, r))
	assert.Equal(t, "1010H", r.RouteName)
	assert.Equal(t, "1", r.Direction)
	assert.Equal(t, "20181224", r.OperatingDay)
	assert.Equal(t, "17:05:00", r.StartTime)

	r = &EstimateRecord{TripID: "t1"}
	require.NoError(t, Enricher{Lookup: stubLookup{err: refdata.ErrNotFound}}.Enrich(ctx, r))
	assert.Empty(t, r.RouteName)

	r = &EstimateRecord{TripID: "t1"}
	assert.Error(t, Enricher{Lookup: stubLookup{err: errors.New("timeout")}}.Enrich(ctx, r))

	full := estimate()
	require.NoError(t, Enricher{Lookup: stubLookup{err: errors.New("not called")}}.Enrich(ctx, full))
	require.NoError(t, Enricher{}.Enrich(ctx, &EstimateRecord{TripID: "t1"}))
}
