package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestAvailability_RoundTripAndInvalidate(t *testing.T) {
	mr, client := setupTestRedis(t)
	c := NewAvailability(client, time.Minute, zerolog.Nop())
	ctx := context.Background()

	_, key, ok := c.GetAvailability(ctx, "2026-03-10", 60, 1)
	assert.False(t, ok)
	assert.Equal(t, "availability:v0:2026-03-10:60:1", key)

	starts := []time.Time{
		time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC),
	}
	c.SetAvailability(ctx, key, starts)
	assert.True(t, mr.Exists(key))

	got, _, ok := c.GetAvailability(ctx, "2026-03-10", 60, 1)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.True(t, got[1].Equal(starts[1]))

	_, _, ok = c.GetAvailability(ctx, "2026-03-10", 60, 2)
	assert.False(t, ok)

	c.Invalidate(ctx)
	_, key, ok = c.GetAvailability(ctx, "2026-03-10", 60, 1)
	assert.False(t, ok)
	assert.Equal(t, "availability:v1:2026-03-10:60:1", key)

	c.SetAvailability(ctx, key, nil)
	got, _, ok = c.GetAvailability(ctx, "2026-03-10", 60, 1)
	require.True(t, ok)
	assert.Empty(t, got)
}

func TestAvailability_WriteAfterInvalidateIsUnreachable(t *testing.T) {
	_, client := setupTestRedis(t)
	c := NewAvailability(client, time.Minute, zerolog.Nop())
	ctx := context.Background()

	_, key, ok := c.GetAvailability(ctx, "2026-03-10", 60, 1)
	require.False(t, ok)

	// a booking commits while the miss is being resolved
	c.Invalidate(ctx)
	c.SetAvailability(ctx, key, []time.Time{time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)})

	_, _, ok = c.GetAvailability(ctx, "2026-03-10", 60, 1)
	assert.False(t, ok)
}

func TestAvailability_TTL(t *testing.T) {
	mr, client := setupTestRedis(t)
	c := NewAvailability(client, time.Minute, zerolog.Nop())
	ctx := context.Background()

	_, key, _ := c.GetAvailability(ctx, "2026-03-10", 60, 1)
	c.SetAvailability(ctx, key, []time.Time{time.Now()})
	mr.FastForward(2 * time.Minute)

	_, _, ok := c.GetAvailability(ctx, "2026-03-10", 60, 1)
	assert.False(t, ok)
}

func TestAvailability_Disabled(t *testing.T) {
	ctx := context.Background()

	c := NewAvailability(nil, time.Minute, zerolog.Nop())
	_, key, ok := c.GetAvailability(ctx, "2026-03-10", 60, 1)
	assert.False(t, ok)
	assert.Empty(t, key)
	c.SetAvailability(ctx, "availability:v0:2026-03-10:60:1", []time.Time{time.Now()})
	assert.NotPanics(t, func() { c.Invalidate(ctx) })
}

func TestAvailability_RedisDownIsMiss(t *testing.T) {
	mr, client := setupTestRedis(t)
	c := NewAvailability(client, time.Minute, zerolog.Nop())
	mr.Close()

	_, key, ok := c.GetAvailability(context.Background(), "2026-03-10", 60, 1)
	assert.False(t, ok)
	assert.Empty(t, key)
}
