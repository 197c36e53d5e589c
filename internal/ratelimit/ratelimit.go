package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Counter records a hit for key in a fixed window and reports the running
// count and the time left in the window.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// Options configure the limiter middleware.
type Options struct {
	Limit     int
	Window    time.Duration
	KeyPrefix string
	// Extractor identifies the client; the RemoteAddr host when nil.
	Extractor func(r *http.Request) string
}

// RedisCounter implements Counter with INCR and EXPIRE.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter wraps a redis client.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

// Hit increments key, starting its expiry on the first hit of a window.
func (c *RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("incr %s: %w", key, err)
	}
	if count == 1 {
		if err := c.client.Expire(ctx, key, window).Err(); err != nil {
			return count, window, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	ttl, err := c.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return count, ttl, nil
}

// NewRedisClient connects to redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Middleware rejects clients exceeding opts.Limit requests per opts.Window.
// Counter failures let the request through.
func Middleware(counter Counter, opts Options, logger zerolog.Logger) func(http.Handler) http.Handler {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "rl:"
	}
	if opts.Extractor == nil {
		opts.Extractor = clientAddr
	}
	logger = logger.With().Str("component", "rate_limit").Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := opts.Extractor(r)
			if id == "" {
				id = "anonymous"
			}

			count, ttl, err := counter.Hit(r.Context(), opts.KeyPrefix+id, opts.Window)
			if err != nil {
				logger.Warn().Err(err).Str("client", id).Msg("rate limit check failed; allowing request")
				next.ServeHTTP(w, r)
				return
			}

			reset := int(ttl.Seconds())
			remaining := opts.Limit - int(count)
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(opts.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.Itoa(reset))

			if count > int64(opts.Limit) {
				w.Header().Set("Retry-After", strconv.Itoa(reset))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success":         false,
					"error":           "rate limit exceeded",
					"retry_after_sec": reset,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientAddr keys on RemoteAddr, which RealIP has already resolved from
// trusted proxy headers.
func clientAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
