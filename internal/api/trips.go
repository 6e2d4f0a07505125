package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/liip/sheriff"

	"gtfsrt-tripupdater/internal/gtfs"
)

type tripView struct {
	TripID       string         `json:"tripId" groups:"basic,detailed"`
	RouteID      string         `json:"routeId" groups:"basic,detailed"`
	DirectionID  uint32         `json:"directionId" groups:"basic,detailed"`
	StartDate    string         `json:"startDate" groups:"basic,detailed"`
	StartTime    string         `json:"startTime" groups:"basic,detailed"`
	Relationship string         `json:"scheduleRelationship" groups:"basic,detailed"`
	Timestamp    int64          `json:"timestamp" groups:"basic,detailed"`
	StopCount    int            `json:"stopCount" groups:"basic"`
	Stops        []stopTimeView `json:"stopTimeUpdates" groups:"detailed"`
}

type stopTimeView struct {
	StopID       string `json:"stopId,omitempty" groups:"detailed"`
	Arrival      *int64 `json:"arrival,omitempty" groups:"detailed"`
	Departure    *int64 `json:"departure,omitempty" groups:"detailed"`
	Relationship string `json:"scheduleRelationship" groups:"detailed"`
}

func newTripView(tu gtfs.TripUpdate) tripView {
	v := tripView{
		TripID:       tu.Trip.TripID,
		RouteID:      tu.Trip.RouteID,
		DirectionID:  tu.Trip.DirectionID,
		StartDate:    tu.Trip.StartDate,
		StartTime:    tu.Trip.StartTime,
		Relationship: tu.Trip.Relationship.String(),
		Timestamp:    tu.Timestamp,
		StopCount:    len(tu.StopTimeUpdates),
		Stops:        make([]stopTimeView, 0, len(tu.StopTimeUpdates)),
	}
	for _, st := range tu.StopTimeUpdates {
		v.Stops = append(v.Stops, stopTimeView{
			StopID:       st.StopID,
			Arrival:      st.Arrival,
			Departure:    st.Departure,
			Relationship: st.Relationship.String(),
		})
	}
	return v
}

func TripsRouter(router fiber.Router, trips TripStore) {
	router.Get("/:key", func(c *fiber.Ctx) error {
		return getTrip(c, trips)
	})
}

func getTrip(c *fiber.Ctx, trips TripStore) error {
	key := c.Params("key")
	tu, ok := trips.Trip(key)
	c.Locals(localTrip, key)
	c.Locals(localCached, ok)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "trip not cached",
		})
	}

	groups := []string{"basic"}
	if c.QueryBool("detailed", false) {
		groups = []string{"detailed"}
	}
	reduced, err := sheriff.Marshal(&sheriff.Options{Groups: groups}, newTripView(tu))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(reduced)
}
