package engine

import (
	"context"
	"time"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/billing"
	"github.com/HeltonFraga01/cortexx-sub006/cache"
)

// planResolver is the cache-backed quota.PlanResolver. Subscription and
// plan projections are read through the cache; the webhook reconciler
// invalidates them on every billing change, so stale reads are bounded by
// TTL only between unrelated mutations.
type planResolver struct {
	billing     billing.Store
	caches      cache.Cache
	subTTL      time.Duration
	planTTL     time.Duration
	defaultSlug string
}

// Resolve returns the tenant's plan and subscription. Tenants without a
// subscription row resolve to the default plan (free tier) with a nil
// subscription. Any other resolution failure propagates: admission fails
// closed when the plan cannot be verified.
func (r *planResolver) Resolve(ctx context.Context, tenantID string) (*billing.Plan, *billing.Subscription, error) {
	sub, err := cache.GetOrLoadJSON(ctx, r.caches, cache.SubscriptionKey(tenantID), r.subTTL,
		func(ctx context.Context) (*billing.Subscription, error) {
			return r.billing.GetSubscription(ctx, tenantID)
		})
	if err != nil {
		if !cortexx.IsNotFound(err) {
			return nil, nil, err
		}

		plan, planErr := r.planBySlug(ctx, r.defaultSlug)
		if planErr != nil {
			return nil, nil, planErr
		}
		return plan, nil, nil
	}

	plan, err := cache.GetOrLoadJSON(ctx, r.caches, cache.PlanKey(sub.PlanID.String()), r.planTTL,
		func(ctx context.Context) (*billing.Plan, error) {
			return r.billing.GetPlan(ctx, sub.PlanID)
		})
	if err != nil {
		return nil, nil, err
	}

	return plan, sub, nil
}

// planBySlug reads a plan by slug through the cache. Slugs and plan IDs
// share the plan: namespace; TypeID prefixes keep them from colliding.
func (r *planResolver) planBySlug(ctx context.Context, slug string) (*billing.Plan, error) {
	return cache.GetOrLoadJSON(ctx, r.caches, cache.PlanKey(slug), r.planTTL,
		func(ctx context.Context) (*billing.Plan, error) {
			return r.billing.GetPlanBySlug(ctx, slug)
		})
}
