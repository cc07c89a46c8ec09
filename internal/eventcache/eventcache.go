// Package eventcache remembers webhook event ids that were fully processed so
// redeliveries can be acknowledged without touching the database. It is an
// optimization only; losing it never affects correctness.
package eventcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "designfeedback:webhook:processed:"

// Marker records processed event ids.
type Marker interface {
	Seen(ctx context.Context, eventID string) bool
	Mark(ctx context.Context, eventID string)
}

// Noop is the Marker used when no cache is configured. Nothing is ever seen.
type Noop struct{}

func (Noop) Seen(context.Context, string) bool { return false }
func (Noop) Mark(context.Context, string)      {}

// Redis stores markers as expiring keys.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Open connects to the Redis URL and checks the connection.
func Open(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("eventcache: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("eventcache: ping redis: %w", err)
	}
	return NewRedis(client, ttl), nil
}

// Seen reports whether the event was marked. Cache errors count as not seen
// so the event is processed normally.
func (r *Redis) Seen(ctx context.Context, eventID string) bool {
	if eventID == "" {
		return false
	}
	err := r.client.Get(ctx, keyPrefix+eventID).Err()
	if err == nil {
		return true
	}
	if !errors.Is(err, redis.Nil) {
		log.Warn().Err(err).Str("event_id", eventID).Msg("eventcache: lookup failed; processing event")
	}
	return false
}

// Mark records the event as processed. Failures are logged and dropped.
func (r *Redis) Mark(ctx context.Context, eventID string) {
	if eventID == "" {
		return
	}
	if err := r.client.Set(ctx, keyPrefix+eventID, time.Now().UTC().Format(time.RFC3339), r.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("event_id", eventID).Msg("eventcache: mark failed")
	}
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
