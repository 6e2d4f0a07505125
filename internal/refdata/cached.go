package refdata

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	cacheKeyPrefix = "refdata:trip:"
	notAvailable   = "N/A"
)

// Cached is a read-through redis cache in front of a slower lookup. Misses
// are cached too so unknown trips are not queried on every event.
type Cached struct {
	cache *cache.Cache[string]
	next  Lookup
}

func NewCached(rdb *redis.Client, expiration time.Duration, next Lookup) *Cached {
	redisStore := redisstore.NewRedis(rdb, store.WithExpiration(expiration))
	return &Cached{
		cache: cache.New[string](redisStore),
		next:  next,
	}
}

func (c *Cached) TripInfo(ctx context.Context, tripID string) (TripInfo, error) {
	key := cacheKeyPrefix + tripID

	if cached, err := c.cache.Get(ctx, key); err == nil && cached != "" {
		if cached == notAvailable {
			return TripInfo{}, ErrNotFound
		}
		var info TripInfo
		if err := json.Unmarshal([]byte(cached), &info); err == nil {
			return info, nil
		}
	}

	info, err := c.next.TripInfo(ctx, tripID)
	if errors.Is(err, ErrNotFound) {
		if err := c.cache.Set(ctx, key, notAvailable); err != nil {
			log.Warn().Err(err).Str("trip", tripID).Msg("failed to cache missing trip")
		}
		return TripInfo{}, err
	}
	if err != nil {
		return TripInfo{}, err
	}

	b, _ := json.Marshal(info)
	if err := c.cache.Set(ctx, key, string(b)); err != nil {
		log.Warn().Err(err).Str("trip", tripID).Msg("failed to cache trip reference data")
	}
	return info, nil
}
