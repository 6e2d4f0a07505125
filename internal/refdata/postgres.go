package refdata

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"gtfsrt-tripupdater/internal/db"
)

// PostgresStore derives trip reference data from an imported GTFS static
// schedule. GTFS direction ids 0/1 are reported as source directions 1/2.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(sqlDB *sql.DB) *PostgresStore {
	return &PostgresStore{db: sqlDB}
}

func (s *PostgresStore) TripInfo(ctx context.Context, tripID string) (TripInfo, error) {
	trip, err := db.FetchTrip(ctx, s.db, tripID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TripInfo{}, ErrNotFound
		}
		return TripInfo{}, err
	}
	return TripInfo{
		RouteName: trip.RouteID,
		Direction: strconv.Itoa(trip.DirectionID + 1),
		StartTime: trip.StartTime,
	}, nil
}
