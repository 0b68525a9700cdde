// Package cache provides the single read-through cache abstraction used by
// every consumer of cached tenant state. Authoritative stores own truth;
// cache entries are disposable projections. Any writer that mutates
// authoritative state must invalidate the matching key in the same logical
// operation, so stale reads are bounded only by TTL, never by invalidation
// lag.
//
// Backends are best-effort: a backend outage degrades to always invoking
// the loader (fail-open to correctness, fail-closed to performance).
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Loader recomputes a value from the authoritative store on cache miss.
type Loader func(ctx context.Context) ([]byte, error)

// Cache is the read-through cache contract.
type Cache interface {
	// GetOrLoad returns the live entry for key if one exists, otherwise
	// invokes loader, stores the result with the given TTL, and returns it.
	GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader Loader) ([]byte, error)

	// Invalidate removes the entry for key immediately.
	Invalidate(ctx context.Context, key string) error

	// InvalidatePrefix removes all entries whose key starts with prefix.
	// Used for tenant-wide invalidation on plan or subscription changes.
	InvalidatePrefix(ctx context.Context, prefix string) error
}

// ──────────────────────────────────────────────────
// Key namespace
// ──────────────────────────────────────────────────

// Keys are namespaced as <domain>:<tenantID>[:<qualifier>] so that
// tenant-wide changes can invalidate by prefix.

// SubscriptionKey returns the cache key for a tenant's subscription.
func SubscriptionKey(tenantID string) string {
	return "subscription:" + tenantID
}

// QuotaKey returns the cache key for one tenant quota counter.
func QuotaKey(tenantID, quotaType string) string {
	return fmt.Sprintf("quota:%s:%s", tenantID, quotaType)
}

// QuotaPrefix returns the invalidation prefix covering every quota key of
// a tenant.
func QuotaPrefix(tenantID string) string {
	return "quota:" + tenantID + ":"
}

// PlanKey returns the cache key for a plan definition.
func PlanKey(planID string) string {
	return "plan:" + planID
}

// ──────────────────────────────────────────────────
// Typed helper
// ──────────────────────────────────────────────────

// GetOrLoadJSON is a typed wrapper over Cache.GetOrLoad that JSON-encodes
// the loaded value and decodes cache hits into T.
func GetOrLoadJSON[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	raw, err := c.GetOrLoad(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		v, loadErr := load(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("cache: decode %q: %w", key, err)
	}
	return out, nil
}
