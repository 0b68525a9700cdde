package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/billing"
)

// casAttempts bounds the compare-and-swap retry loop. Conflicts beyond
// this indicate pathological contention on a single tenant.
const casAttempts = 16

// Decision is the admission result surfaced to the HTTP layer, which maps
// denials to 429 with Retry-After and allowances to X-RateLimit-* headers.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	RetryAfter time.Duration `json:"retry_after"`
	Remaining  float64       `json:"remaining"`
	Capacity   float64       `json:"capacity"`
}

// Limiter admits requests against per-tenant token buckets held in the
// shared store. Concurrent checks for one tenant serialize around that
// tenant's bucket (in-process mutex plus store-level CAS); different
// tenants proceed fully independently.
type Limiter struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	tenants map[string]*sync.Mutex
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(lm *Limiter) { lm.logger = l }
}

// WithClock overrides the time source. Tests use this to make refill math
// deterministic.
func WithClock(now func() time.Time) Option {
	return func(lm *Limiter) { lm.now = now }
}

// NewLimiter creates a Limiter over the given store.
func NewLimiter(store Store, opts ...Option) *Limiter {
	lm := &Limiter{
		store:   store,
		logger:  slog.Default(),
		now:     time.Now,
		tenants: make(map[string]*sync.Mutex),
	}
	for _, o := range opts {
		o(lm)
	}
	return lm
}

// TryAcquire refills the tenant's bucket, then admits the request if at
// least cost tokens are available, subtracting them. On denial it reports
// how long until cost tokens will have accumulated.
//
// The plan is authoritative for capacity and refill rate: a bucket whose
// configuration no longer matches the plan is re-derived on the spot.
func (lm *Limiter) TryAcquire(ctx context.Context, tenantID string, plan *billing.Plan, cost float64) (Decision, error) {
	if cost <= 0 {
		cost = 1
	}

	lock := lm.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	for attempt := 0; attempt < casAttempts; attempt++ {
		state, err := lm.loadOrInit(ctx, tenantID, plan)
		if err != nil {
			return Decision{}, err
		}

		// Plan changed since the bucket was created: re-derive limits
		// immediately and clamp accumulated tokens to the new capacity.
		if state.PlanID != plan.ID.String() ||
			state.Capacity != plan.Capacity ||
			state.RefillPerSecond != plan.RefillPerSecond {
			state.PlanID = plan.ID.String()
			state.Capacity = plan.Capacity
			state.RefillPerSecond = plan.RefillPerSecond
			state.Tokens = math.Min(state.Tokens, state.Capacity)
		}

		now := lm.now()
		state.Refill(now)

		d := Decision{Capacity: state.Capacity}
		if state.Tokens >= cost {
			state.Tokens -= cost
			d.Allowed = true
			d.Remaining = state.Tokens
		} else {
			d.Remaining = state.Tokens
			if state.RefillPerSecond > 0 {
				shortfall := cost - state.Tokens
				d.RetryAfter = time.Duration(shortfall / state.RefillPerSecond * float64(time.Second))
			} else {
				d.RetryAfter = time.Duration(math.MaxInt64)
			}
		}

		if err := lm.store.CompareAndSwapRateState(ctx, state); err != nil {
			if errors.Is(err, cortexx.ErrVersionConflict) {
				continue
			}
			return Decision{}, err
		}

		return d, nil
	}

	return Decision{}, cortexx.ErrVersionConflict
}

// Invalidate drops the tenant's bucket so the next check re-derives
// capacity and refill from the current plan. Called by the webhook
// reconciler on plan changes.
func (lm *Limiter) Invalidate(ctx context.Context, tenantID string) error {
	lock := lm.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	err := lm.store.DeleteRateState(ctx, tenantID)
	if err != nil && !cortexx.IsNotFound(err) {
		return err
	}
	return nil
}

// loadOrInit fetches the tenant bucket, lazily creating a full one on
// first activity.
func (lm *Limiter) loadOrInit(ctx context.Context, tenantID string, plan *billing.Plan) (*TenantRateState, error) {
	state, err := lm.store.GetRateState(ctx, tenantID)
	if err == nil {
		return state, nil
	}
	if !cortexx.IsNotFound(err) {
		return nil, err
	}

	fresh := &TenantRateState{
		TenantID:        tenantID,
		PlanID:          plan.ID.String(),
		Tokens:          plan.Capacity,
		Capacity:        plan.Capacity,
		RefillPerSecond: plan.RefillPerSecond,
		LastRefillAt:    lm.now(),
	}
	if createErr := lm.store.CreateRateState(ctx, fresh); createErr != nil {
		// Lost the lazy-init race: another process created it first.
		if cortexx.IsConflict(createErr) {
			return lm.store.GetRateState(ctx, tenantID)
		}
		return nil, createErr
	}
	return fresh, nil
}

func (lm *Limiter) tenantLock(tenantID string) *sync.Mutex {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lock, ok := lm.tenants[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		lm.tenants[tenantID] = lock
	}
	return lock
}
