// Package ratelimit implements per-tenant token-bucket admission control.
//
// Bucket state lives in the shared store as one record per tenant, updated
// with compare-and-swap — never a process-global map. Capacity and refill
// rate derive from the tenant's plan and are re-read on every check, so a
// plan change through the webhook reconciler takes effect immediately, not
// on the next window boundary.
package ratelimit

import (
	"context"
	"time"
)

// TenantRateState is the persisted token bucket for one tenant.
// Invariant: 0 <= Tokens <= Capacity. Tokens refill monotonically over
// elapsed time up to Capacity and only decrease on admission.
type TenantRateState struct {
	TenantID        string    `json:"tenant_id"`
	PlanID          string    `json:"plan_id"`
	Tokens          float64   `json:"tokens"`
	Capacity        float64   `json:"capacity"`
	RefillPerSecond float64   `json:"refill_per_second"`
	LastRefillAt    time.Time `json:"last_refill_at"`

	// Version guards concurrent updates: a swap succeeds only when the
	// stored version still matches, and bumps it by one.
	Version int64 `json:"version"`
}

// Refill advances the bucket to now, crediting elapsed time at the refill
// rate and clamping at capacity.
func (s *TenantRateState) Refill(now time.Time) {
	elapsed := now.Sub(s.LastRefillAt).Seconds()
	if elapsed > 0 {
		s.Tokens += elapsed * s.RefillPerSecond
		if s.Tokens > s.Capacity {
			s.Tokens = s.Capacity
		}
		s.LastRefillAt = now
	}
}

// Store defines the persistence contract for tenant rate state.
type Store interface {
	// GetRateState retrieves the bucket for a tenant.
	GetRateState(ctx context.Context, tenantID string) (*TenantRateState, error)

	// CreateRateState inserts a fresh bucket for a tenant. Returns a
	// conflict error if one already exists (lazy-init race).
	CreateRateState(ctx context.Context, s *TenantRateState) error

	// CompareAndSwapRateState persists s only if the stored version still
	// equals s.Version, then bumps the version. Returns ErrVersionConflict
	// when another writer got there first.
	CompareAndSwapRateState(ctx context.Context, s *TenantRateState) error

	// DeleteRateState removes a tenant's bucket. Used when a plan change
	// must force re-derivation of capacity/refill, and on offboarding.
	DeleteRateState(ctx context.Context, tenantID string) error
}
