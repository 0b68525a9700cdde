package quota

import (
	"context"
	"log/slog"
	"time"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/billing"
)

// PlanResolver returns the tenant's current plan and subscription. The
// engine supplies a cache-backed implementation; the reconciler
// invalidates it on every billing change.
type PlanResolver interface {
	Resolve(ctx context.Context, tenantID string) (*billing.Plan, *billing.Subscription, error)
}

// Accountant enforces plan quotas. Reservation is ordered before enqueue:
// work is only admitted to the queue after the quota was reserved, and a
// failed admission compensates with Release.
type Accountant struct {
	store    Store
	resolver PlanResolver
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Accountant.
type Option func(*Accountant)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Accountant) { a.logger = l }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Accountant) { a.now = now }
}

// NewAccountant creates an Accountant.
func NewAccountant(store Store, resolver PlanResolver, opts ...Option) *Accountant {
	a := &Accountant{
		store:    store,
		resolver: resolver,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// CheckAndReserve admits amount units of the quota type for the tenant,
// incrementing the live counter atomically. An Unlimited (-1) plan limit
// always admits but still meters usage for reporting. Denials return a
// *cortexx.QuotaError so callers can surface an "upgrade plan" response
// distinct from rate limiting.
func (a *Accountant) CheckAndReserve(ctx context.Context, tenantID string, q billing.QuotaType, amount int64) error {
	if amount <= 0 {
		amount = 1
	}

	plan, sub, err := a.resolver.Resolve(ctx, tenantID)
	if err != nil {
		// Fail closed: no verified plan means no admission.
		return err
	}

	periodStart, periodEnd := a.periodBounds(sub)
	limit := plan.Limit(q)

	usage, allowed, err := a.store.ReserveUsage(ctx, tenantID, q, amount, limit, periodStart, periodEnd)
	if err != nil {
		return err
	}
	if !allowed {
		return &cortexx.QuotaError{
			TenantID:  tenantID,
			QuotaType: string(q),
			Used:      usage.Used,
			Limit:     limit,
		}
	}
	return nil
}

// Release compensates a reservation whose work failed before producing
// externally visible effects.
func (a *Accountant) Release(ctx context.Context, tenantID string, q billing.QuotaType, amount int64) error {
	if amount <= 0 {
		amount = 1
	}
	if err := a.store.ReleaseUsage(ctx, tenantID, q, amount); err != nil {
		a.logger.Warn("quota release failed",
			slog.String("tenant_id", tenantID),
			slog.String("quota_type", string(q)),
			slog.Int64("amount", amount),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// Remaining reports the headroom for a quota type. Unlimited plans report
// -1.
func (a *Accountant) Remaining(ctx context.Context, tenantID string, q billing.QuotaType) (int64, error) {
	plan, _, err := a.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	limit := plan.Limit(q)
	if limit == billing.Unlimited {
		return billing.Unlimited, nil
	}

	usage, err := a.store.GetUsage(ctx, tenantID, q)
	if err != nil {
		if cortexx.IsNotFound(err) {
			return limit, nil
		}
		return 0, err
	}
	remaining := limit - usage.Used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// periodBounds derives the accounting window from the subscription, or a
// calendar month anchored at now for tenants without one (trial-less
// free tier).
func (a *Accountant) periodBounds(sub *billing.Subscription) (time.Time, time.Time) {
	if sub != nil && !sub.CurrentPeriodStart.IsZero() && sub.CurrentPeriodEnd.After(sub.CurrentPeriodStart) {
		return sub.CurrentPeriodStart, sub.CurrentPeriodEnd
	}
	start := a.now().UTC().Truncate(24 * time.Hour)
	return start, billing.PeriodEnd(start)
}
