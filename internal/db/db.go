package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"gtfsrt-tripupdater/internal/gtfs"
)

// Trip is the static schedule view of a trip as imported by a GTFS importer.
type Trip struct {
	TripID      string
	RouteID     string
	DirectionID int
	StartTime   string // HH:MM:SS of the first departure, hours may exceed 23
}

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// FetchTrip returns the route, direction and first departure of a trip.
// It returns sql.ErrNoRows when the trip is unknown or has no stop_times.
func FetchTrip(ctx context.Context, db *sql.DB, tripID string) (Trip, error) {
	q := `
SELECT t.trip_id,
       t.route_id,
       COALESCE(t.direction_id, 0),
       COALESCE(MIN(st.departure_time)::text, MIN(st.arrival_time)::text) AS start_t
FROM trips t
JOIN stop_times st ON st.trip_id = t.trip_id
WHERE t.trip_id = $1
GROUP BY t.trip_id, t.route_id, t.direction_id`

	var trip Trip
	var startS sql.NullString
	err := db.QueryRowContext(ctx, q, tripID).Scan(&trip.TripID, &trip.RouteID, &trip.DirectionID, &startS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Trip{}, err
		}
		return Trip{}, fmt.Errorf("query trip %q: %w", tripID, err)
	}
	if trip.StartTime, err = startTime(startS); err != nil {
		return Trip{}, fmt.Errorf("trip %q: %w", tripID, err)
	}
	return trip, nil
}

// startTime normalizes the first departure to HH:MM:SS. A trip without any
// stop time is reported as sql.ErrNoRows.
func startTime(s sql.NullString) (string, error) {
	if !s.Valid {
		return "", sql.ErrNoRows
	}
	sec, err := gtfs.ParseDaySeconds(s.String)
	if err != nil {
		return "", err
	}
	return gtfs.FormatDaySeconds(sec), nil
}
