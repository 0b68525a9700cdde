package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/billing"
	"github.com/HeltonFraga01/cortexx-sub006/id"
)

const planColumns = `
	id, name, slug, refill_per_second, capacity, quotas, trial_days,
	metadata, created_at, updated_at`

const subscriptionColumns = `
	id, tenant_id, plan_id, external_id, status, current_period_start,
	current_period_end, last_event_at, trial_end, canceled_at,
	created_at, updated_at`

// CreatePlan persists a new plan. Both the ID and the slug are unique.
func (s *Store) CreatePlan(ctx context.Context, p *billing.Plan) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cortexx_plans (
			id, name, slug, refill_per_second, capacity, quotas, trial_days,
			metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID.String(), p.Name, p.Slug, p.RefillPerSecond, p.Capacity,
		p.Quotas, p.TrialDays, p.Metadata, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return cortexx.ErrPlanAlreadyExists
		}
		return fmt.Errorf("cortexx/postgres: create plan: %w", err)
	}
	return nil
}

// GetPlan retrieves a plan by ID.
func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*billing.Plan, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+planColumns+` FROM cortexx_plans WHERE id = $1`,
		planID.String(),
	)

	p, err := scanPlan(row)
	if err != nil {
		if isNoRows(err) {
			return nil, cortexx.ErrPlanNotFound
		}
		return nil, fmt.Errorf("cortexx/postgres: get plan: %w", err)
	}
	return p, nil
}

// GetPlanBySlug retrieves a plan by its slug.
func (s *Store) GetPlanBySlug(ctx context.Context, slug string) (*billing.Plan, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+planColumns+` FROM cortexx_plans WHERE slug = $1`,
		slug,
	)

	p, err := scanPlan(row)
	if err != nil {
		if isNoRows(err) {
			return nil, cortexx.ErrPlanNotFound
		}
		return nil, fmt.Errorf("cortexx/postgres: get plan by slug: %w", err)
	}
	return p, nil
}

// ListPlans returns all plans.
func (s *Store) ListPlans(ctx context.Context) ([]*billing.Plan, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+planColumns+` FROM cortexx_plans ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("cortexx/postgres: list plans: %w", err)
	}
	defer rows.Close()

	var plans []*billing.Plan
	for rows.Next() {
		p, scanErr := scanPlan(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("cortexx/postgres: scan plan row: %w", scanErr)
		}
		plans = append(plans, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("cortexx/postgres: iterate plan rows: %w", err)
	}
	return plans, nil
}

// UpsertSubscription creates the tenant's subscription row or replaces
// it. There is at most one live subscription per tenant.
func (s *Store) UpsertSubscription(ctx context.Context, sub *billing.Subscription) error {
	return upsertSubscription(ctx, s.pool, sub)
}

// upsertSubscription runs against either the pool or a transaction so
// webhook resolution can persist the subscription atomically with the
// ledger outcome.
func upsertSubscription(ctx context.Context, db execer, sub *billing.Subscription) error {
	_, err := db.Exec(ctx, `
		INSERT INTO cortexx_subscriptions (
			id, tenant_id, plan_id, external_id, status, current_period_start,
			current_period_end, last_event_at, trial_end, canceled_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (tenant_id) DO UPDATE SET
			id = EXCLUDED.id,
			plan_id = EXCLUDED.plan_id,
			external_id = EXCLUDED.external_id,
			status = EXCLUDED.status,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			last_event_at = EXCLUDED.last_event_at,
			trial_end = EXCLUDED.trial_end,
			canceled_at = EXCLUDED.canceled_at,
			updated_at = EXCLUDED.updated_at`,
		sub.ID.String(), sub.TenantID, sub.PlanID.String(), sub.ExternalID,
		string(sub.Status), sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.LastEventAt, sub.TrialEnd, sub.CanceledAt,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("cortexx/postgres: upsert subscription: %w", err)
	}
	return nil
}

// GetSubscription retrieves the subscription for a tenant.
func (s *Store) GetSubscription(ctx context.Context, tenantID string) (*billing.Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM cortexx_subscriptions WHERE tenant_id = $1`,
		tenantID,
	)

	sub, err := scanSubscription(row)
	if err != nil {
		if isNoRows(err) {
			return nil, cortexx.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("cortexx/postgres: get subscription: %w", err)
	}
	return sub, nil
}

// scanPlan scans a single plan row.
func scanPlan(row pgx.Row) (*billing.Plan, error) {
	var (
		p     billing.Plan
		idStr string
	)
	err := row.Scan(
		&idStr, &p.Name, &p.Slug, &p.RefillPerSecond, &p.Capacity,
		&p.Quotas, &p.TrialDays, &p.Metadata, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParsePlanID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("cortexx/postgres: parse plan id %q: %w", idStr, parseErr)
	}
	p.ID = parsedID

	return &p, nil
}

// scanSubscription scans a single subscription row.
func scanSubscription(row pgx.Row) (*billing.Subscription, error) {
	var (
		sub       billing.Subscription
		idStr     string
		planIDStr string
		statusStr string
	)
	err := row.Scan(
		&idStr, &sub.TenantID, &planIDStr, &sub.ExternalID, &statusStr,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.LastEventAt,
		&sub.TrialEnd, &sub.CanceledAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.Status = billing.Status(statusStr)

	parsedID, parseErr := id.ParseSubscriptionID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("cortexx/postgres: parse subscription id %q: %w", idStr, parseErr)
	}
	sub.ID = parsedID

	parsedPlanID, parseErr := id.ParsePlanID(planIDStr)
	if parseErr != nil {
		return nil, fmt.Errorf("cortexx/postgres: parse plan id %q: %w", planIDStr, parseErr)
	}
	sub.PlanID = parsedPlanID

	return &sub, nil
}
