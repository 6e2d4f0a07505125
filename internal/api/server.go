// Package api serves the HTTP status surface: health, metrics and cached trip
// inspection.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gtfsrt-tripupdater/internal/gtfs"
)

// TripStore is the read side of the aggregation engine.
type TripStore interface {
	Trip(key string) (gtfs.TripUpdate, bool)
	Len() int
}

type Options struct {
	Trips   TripStore
	Metrics http.Handler
	// Ready reports whether the upstream connections are usable. Nil means
	// always ready.
	Ready func() bool
	// Logger receives request logs; nil uses the global logger.
	Logger *zerolog.Logger
}

func NewApp(opts Options) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true, UnescapePath: true})
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	app.Use(newRequestLogger(logger))

	app.Get("/health", func(c *fiber.Ctx) error {
		if opts.Ready != nil && !opts.Ready() {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ok", "cachedTrips": opts.Trips.Len()})
	})
	if opts.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics))
	}
	TripsRouter(app.Group("/trips"), opts.Trips)

	return app
}

const (
	localTrip   = "trip"
	localCached = "cached"
)

// newRequestLogger writes one line per request. Probe endpoints log at trace
// level and trip lookups carry the trip key and whether it was cached, so a
// lookup miss is not reported as a client error.
func newRequestLogger(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		code := c.Response().StatusCode()
		if e := new(fiber.Error); errors.As(err, &e) {
			code = e.Code
		}
		route := c.Route().Path

		var ev *zerolog.Event
		switch {
		case code >= fiber.StatusInternalServerError:
			ev = logger.Error().Err(err)
		case route == "/health" || route == "/metrics":
			ev = logger.Trace()
		case code >= fiber.StatusBadRequest && c.Locals(localTrip) == nil:
			ev = logger.Warn().Err(err)
		default:
			ev = logger.Debug()
		}
		if trip, ok := c.Locals(localTrip).(string); ok {
			cached, _ := c.Locals(localCached).(bool)
			ev = ev.Str("trip", trip).Bool("cached", cached)
		}
		ev.Int("status", code).
			Str("method", c.Method()).
			Str("route", route).
			Dur("latency", time.Since(start)).
			Msg("http request")
		return err
	}
}
