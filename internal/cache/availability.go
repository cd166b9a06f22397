// Package cache memoizes availability results in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const generationKey = "availability:gen"

// Availability caches resolver output per date, duration and people. Writes
// bump a generation counter instead of deleting keys, so every key written
// before the bump becomes unreachable and expires on its TTL.
type Availability struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewAvailability returns a cache over client. A nil client or a zero ttl
// disables caching.
func NewAvailability(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *Availability {
	return &Availability{
		redis:  client,
		ttl:    ttl,
		logger: logger.With().Str("component", "availability_cache").Logger(),
	}
}

func (c *Availability) enabled() bool {
	return c != nil && c.redis != nil && c.ttl > 0
}

func (c *Availability) key(ctx context.Context, date string, durationMinutes, people int) (string, error) {
	gen, err := c.redis.Get(ctx, generationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("availability:v%d:%s:%d:%d", gen, date, durationMinutes, people), nil
}

// GetAvailability returns the cached starts together with the key the
// result must be stored under on a miss. The key pins the generation read
// here, so a write that lands while the caller resolves the day makes the
// later SetAvailability unreachable. An empty key means the result must not
// be cached. Any Redis error is a miss.
func (c *Availability) GetAvailability(ctx context.Context, date string, durationMinutes, people int) ([]time.Time, string, bool) {
	if !c.enabled() {
		return nil, "", false
	}
	key, err := c.key(ctx, date, durationMinutes, people)
	if err != nil {
		c.logger.Warn().Err(err).Msg("read cache generation")
		return nil, "", false
	}

	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("key", key).Msg("read availability cache")
		}
		return nil, key, false
	}

	var starts []time.Time
	if err := json.Unmarshal(val, &starts); err != nil {
		return nil, key, false
	}
	return starts, key, true
}

// SetAvailability stores starts under a key returned by GetAvailability.
func (c *Availability) SetAvailability(ctx context.Context, key string, starts []time.Time) {
	if !c.enabled() || key == "" {
		return
	}
	if starts == nil {
		starts = []time.Time{}
	}
	data, err := json.Marshal(starts)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("write availability cache")
	}
}

// Invalidate makes every cached entry unreachable.
func (c *Availability) Invalidate(ctx context.Context) {
	if !c.enabled() {
		return
	}
	if err := c.redis.Incr(ctx, generationKey).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("bump cache generation")
	}
}
