package billing

import (
	"context"

	"github.com/HeltonFraga01/cortexx-sub006/id"
)

// Store defines the persistence contract for plans and subscriptions.
type Store interface {
	// CreatePlan persists a new plan.
	CreatePlan(ctx context.Context, p *Plan) error

	// GetPlan retrieves a plan by ID.
	GetPlan(ctx context.Context, planID id.PlanID) (*Plan, error)

	// GetPlanBySlug retrieves a plan by its slug.
	GetPlanBySlug(ctx context.Context, slug string) (*Plan, error)

	// ListPlans returns all plans.
	ListPlans(ctx context.Context) ([]*Plan, error)

	// UpsertSubscription creates the tenant's subscription row or replaces
	// it. There is at most one live subscription per tenant.
	UpsertSubscription(ctx context.Context, s *Subscription) error

	// GetSubscription retrieves the subscription for a tenant.
	GetSubscription(ctx context.Context, tenantID string) (*Subscription, error)
}
