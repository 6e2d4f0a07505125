package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtfsrt-tripupdater/internal/gtfs"
)

type memTrips map[string]gtfs.TripUpdate

func (m memTrips) Trip(key string) (gtfs.TripUpdate, bool) {
	tu, ok := m[key]
	return tu, ok
}

func (m memTrips) Len() int { return len(m) }

func newTestApp(ready bool) *fiber.App {
	logger := zerolog.Nop()
	return newTestAppWithLogger(ready, &logger)
}

func newTestAppWithLogger(ready bool, logger *zerolog.Logger) *fiber.App {
	trips := memTrips{
		"trip-1": {
			Trip: gtfs.TripDescriptor{
				TripID:    "trip-1",
				RouteID:   "1010H",
				StartDate: "20181224",
				StartTime: "17:05:00",
			},
			Timestamp: 1545674000,
			StopTimeUpdates: []gtfs.StopTimeUpdate{
				{StopID: "1040129", Arrival: gtfs.Ptr(int64(1545674400)), Departure: gtfs.Ptr(int64(1545674460))},
			},
		},
	}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("tripupdater_workers 4\n"))
	})
	return NewApp(Options{Trips: trips, Metrics: metrics, Ready: func() bool { return ready }, Logger: logger})
}

func get(t *testing.T, app *fiber.App, path string) (int, map[string]any, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	_ = json.Unmarshal(body, &decoded)
	return resp.StatusCode, decoded, string(body)
}

func TestHealth(t *testing.T) {
	code, body, _ := get(t, newTestApp(true), "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 1.0, body["cachedTrips"])

	code, _, _ = get(t, newTestApp(false), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestMetrics(t *testing.T) {
	code, _, raw := get(t, newTestApp(true), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, raw, "tripupdater_workers 4")
}

func TestGetTrip(t *testing.T) {
	app := newTestApp(true)

	code, body, _ := get(t, app, "/trips/trip-1")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1010H", body["routeId"])
	assert.Equal(t, "SCHEDULED", body["scheduleRelationship"])
	assert.Equal(t, 1.0, body["stopCount"])
	assert.NotContains(t, body, "stopTimeUpdates")

	code, body, _ = get(t, app, "/trips/trip-1?detailed=true")
	assert.Equal(t, http.StatusOK, code)
	stops, ok := body["stopTimeUpdates"].([]any)
	require.True(t, ok)
	require.Len(t, stops, 1)
	assert.Equal(t, 1545674400.0, stops[0].(map[string]any)["arrival"])

	code, body, _ = get(t, app, "/trips/missing")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "trip not cached", body["error"])
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &m))
		lines = append(lines, m)
	}
	return lines
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	app := newTestAppWithLogger(true, &logger)

	get(t, app, "/trips/trip-1")
	get(t, app, "/trips/missing")
	get(t, app, "/health")
	get(t, app, "/nope")

	// health probes log at trace level and are filtered out
	lines := logLines(t, &buf)
	require.Len(t, lines, 3)

	assert.Equal(t, "debug", lines[0]["level"])
	assert.Equal(t, "trip-1", lines[0]["trip"])
	assert.Equal(t, true, lines[0]["cached"])
	assert.Equal(t, "/trips/:key", lines[0]["route"])
	assert.Equal(t, 200.0, lines[0]["status"])

	assert.Equal(t, "debug", lines[1]["level"])
	assert.Equal(t, "missing", lines[1]["trip"])
	assert.Equal(t, false, lines[1]["cached"])
	assert.Equal(t, 404.0, lines[1]["status"])

	assert.Equal(t, "warn", lines[2]["level"])
	assert.Equal(t, 404.0, lines[2]["status"])
	assert.NotContains(t, lines[2], "trip")
}
