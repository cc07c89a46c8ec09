package eventcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, time.Hour), mr
}

func TestMarkThenSeen(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	assert.False(t, cache.Seen(ctx, "evt_1"))
	cache.Mark(ctx, "evt_1")
	assert.True(t, cache.Seen(ctx, "evt_1"))
	assert.False(t, cache.Seen(ctx, "evt_2"))

	assert.True(t, mr.Exists(keyPrefix+"evt_1"))
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"evt_1"))
}

func TestMarkExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	cache.Mark(ctx, "evt_1")
	mr.FastForward(2 * time.Hour)
	assert.False(t, cache.Seen(ctx, "evt_1"))
}

func TestOutageDegradesToNotSeen(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	cache.Mark(ctx, "evt_1")
	mr.Close()
	assert.False(t, cache.Seen(ctx, "evt_1"))
	cache.Mark(ctx, "evt_2")
}

func TestOpen(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cache, err := Open(context.Background(), "redis://"+mr.Addr()+"/0", time.Minute)
	require.NoError(t, err)
	defer cache.Close()
	assert.NoError(t, cache.Ping(context.Background()))

	_, err = Open(context.Background(), "not a url", time.Minute)
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	var m Marker = Noop{}
	m.Mark(context.Background(), "evt_1")
	assert.False(t, m.Seen(context.Background(), "evt_1"))
}
