// Package cache keeps the newest reading per sensor in redis so that
// repeated latest lookups skip the store.
package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/config"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/errors"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/models"
	"github.com/redis/go-redis/v9"
	nuts "github.com/vaudience/go-nuts"
)

const (
	keyPrefix = "sensorlog:latest:"
	genPrefix = "sensorlog:gen:"
)

// LatestCache stores the newest reading per sensor.
//
// Every Invalidate bumps a per-sensor generation. A fill reads the
// generation before querying the store and passes it to Set, which only
// stores the reading while the generation is unchanged. A lookup that raced
// a write or a delete therefore never caches what it read.
type LatestCache interface {
	Get(ctx context.Context, sensorID int64) (*models.Reading, bool, error)
	Generation(ctx context.Context, sensorID int64) (int64, error)
	Set(ctx context.Context, reading *models.Reading, generation int64) (bool, error)
	Invalidate(ctx context.Context, sensorIDs ...int64) error
	Close() error
}

// setIfGeneration writes KEYS[2] only if KEYS[1] still holds ARGV[1]
var setIfGeneration = redis.NewScript(`
local gen = redis.call('GET', KEYS[1]) or '0'
if gen ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[2], ARGV[2])
end
return 1
`)

// RedisLatestCache is a LatestCache backed by redis with a per-entry TTL
type RedisLatestCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to redis and verifies the connection
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*RedisLatestCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.NewUnavailableError(fmt.Sprintf("failed to reach redis at %s", cfg.Addr()), err)
	}
	nuts.L.Infof("[Cache] Connected to redis at %s (ttl %s)", cfg.Addr(), cfg.LatestTTL)
	return NewRedisWithClient(client, cfg.LatestTTL), nil
}

// NewRedisWithClient wraps an existing client
func NewRedisWithClient(client *redis.Client, ttl time.Duration) *RedisLatestCache {
	return &RedisLatestCache{client: client, ttl: ttl}
}

func key(sensorID int64) string {
	return keyPrefix + strconv.FormatInt(sensorID, 10)
}

func genKey(sensorID int64) string {
	return genPrefix + strconv.FormatInt(sensorID, 10)
}

func (c *RedisLatestCache) Get(ctx context.Context, sensorID int64) (*models.Reading, bool, error) {
	raw, err := c.client.Get(ctx, key(sensorID)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.NewUnavailableError("failed to read latest reading from cache", err)
	}
	var r models.Reading
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, false, errors.NewInternalError("failed to decode cached reading", err)
	}
	return &r, true, nil
}

// Generation returns the sensor's current invalidation counter, zero if it
// was never invalidated.
func (c *RedisLatestCache) Generation(ctx context.Context, sensorID int64) (int64, error) {
	gen, err := c.client.Get(ctx, genKey(sensorID)).Int64()
	if stderrors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.NewUnavailableError("failed to read cache generation", err)
	}
	return gen, nil
}

// Set stores reading as the sensor's latest if no Invalidate happened since
// generation was read. It reports whether the reading was stored.
func (c *RedisLatestCache) Set(ctx context.Context, reading *models.Reading, generation int64) (bool, error) {
	raw, err := json.Marshal(reading)
	if err != nil {
		return false, errors.NewInternalError("failed to encode reading", err)
	}
	keys := []string{genKey(reading.SensorID), key(reading.SensorID)}
	stored, err := setIfGeneration.Run(ctx, c.client, keys,
		strconv.FormatInt(generation, 10), raw, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, errors.NewUnavailableError("failed to write latest reading to cache", err)
	}
	return stored == 1, nil
}

func (c *RedisLatestCache) Invalidate(ctx context.Context, sensorIDs ...int64) error {
	if len(sensorIDs) == 0 {
		return nil
	}
	keys := make([]string, len(sensorIDs))
	for i, id := range sensorIDs {
		keys[i] = key(id)
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range sensorIDs {
			pipe.Incr(ctx, genKey(id))
		}
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return errors.NewUnavailableError("failed to invalidate cached readings", err)
	}
	return nil
}

func (c *RedisLatestCache) Close() error {
	return c.client.Close()
}

// Noop is used when no redis host is configured
type Noop struct{}

func (Noop) Get(context.Context, int64) (*models.Reading, bool, error) { return nil, false, nil }
func (Noop) Generation(context.Context, int64) (int64, error) { return 0, nil }
func (Noop) Set(context.Context, *models.Reading, int64) (bool, error) { return false, nil }
func (Noop) Invalidate(context.Context, ...int64) error { return nil }
func (Noop) Close() error { return nil }
