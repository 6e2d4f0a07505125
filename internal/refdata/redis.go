package refdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const tripKeyPrefix = "trip:"

// RedisStore reads trip reference data stored as JSON under "trip:<id>".
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) TripInfo(ctx context.Context, tripID string) (TripInfo, error) {
	raw, err := s.rdb.Get(ctx, tripKeyPrefix+tripID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return TripInfo{}, ErrNotFound
		}
		return TripInfo{}, fmt.Errorf("redis get trip %q: %w", tripID, err)
	}
	var info TripInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return TripInfo{}, fmt.Errorf("decode trip %q: %w", tripID, err)
	}
	return info, nil
}

// PutTripInfo stores info for tripID. Used by tooling and tests.
func (s *RedisStore) PutTripInfo(ctx context.Context, tripID string, info TripInfo) error {
	b, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, tripKeyPrefix+tripID, b, 0).Err()
}
