package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces all cache keys in Redis to avoid collisions with
// other users of the same instance.
const keyPrefix = "cortexx:cache:"

// Redis is a Cache backed by a shared Redis instance so invalidations are
// visible across processes. The caller owns the client lifecycle.
//
// Redis is best-effort: read and write failures are logged and degrade to
// invoking the loader directly, never to serving stale or failing the
// request.
type Redis struct {
	client redis.Cmdable
	logger *slog.Logger
}

var _ Cache = (*Redis)(nil)

// RedisOption configures the Redis cache.
type RedisOption func(*Redis)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) RedisOption {
	return func(r *Redis) { r.logger = l }
}

// NewRedis creates a Redis-backed cache.
func NewRedis(client redis.Cmdable, opts ...RedisOption) *Redis {
	r := &Redis{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// GetOrLoad returns the live entry for key or loads, stores, and returns
// a fresh value. Backend errors fall through to the loader.
func (r *Redis) GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader Loader) ([]byte, error) {
	value, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, redis.Nil) {
		r.logger.Warn("cache read failed, falling through to loader",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}

	value, err = loader(ctx)
	if err != nil {
		return nil, err
	}

	if setErr := r.client.Set(ctx, keyPrefix+key, value, ttl).Err(); setErr != nil {
		r.logger.Warn("cache write failed",
			slog.String("key", key),
			slog.String("error", setErr.Error()),
		)
	}

	return value, nil
}

// Invalidate removes the entry for key immediately.
func (r *Redis) Invalidate(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		r.logger.Warn("cache invalidate failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// InvalidatePrefix removes all entries whose key starts with prefix using
// an incremental SCAN, so large tenants do not block the instance.
func (r *Redis) InvalidatePrefix(ctx context.Context, prefix string) error {
	var cursor uint64
	pattern := keyPrefix + prefix + "*"

	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			r.logger.Warn("cache prefix scan failed",
				slog.String("prefix", prefix),
				slog.String("error", err.Error()),
			)
			return err
		}

		if len(keys) > 0 {
			if delErr := r.client.Del(ctx, keys...).Err(); delErr != nil {
				return delErr
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
