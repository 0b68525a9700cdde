// Package billing defines the plan and subscription models that drive
// tenant resource governance. Plans carry rate-limit and quota
// configuration; subscriptions bind tenants to plans and are mutated
// exclusively by the webhook reconciler.
package billing

import (
	"time"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/id"
)

// QuotaType identifies a metered resource governed by plan limits.
type QuotaType string

// Quota types for the Cortexx platform.
const (
	QuotaMessages  QuotaType = "messages"
	QuotaCampaigns QuotaType = "campaigns"
	QuotaImports   QuotaType = "imports"
	QuotaReports   QuotaType = "reports"
)

// Unlimited marks a quota limit with no upper bound. Usage is still
// metered for reporting but never denies admission.
const Unlimited int64 = -1

// Plan describes a billing tier: request-rate shaping and per-period
// quota limits.
type Plan struct {
	cortexx.Entity
	ID   id.PlanID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`

	// RefillPerSecond is the token-bucket refill rate for tenants on
	// this plan. Capacity is the bucket size (burst allowance).
	RefillPerSecond float64 `json:"refill_per_second"`
	Capacity        float64 `json:"capacity"`

	// Quotas maps each quota type to its per-billing-period limit.
	// Unlimited (-1) means usage is metered but never denied. A missing
	// entry means the feature is not available on this plan (limit 0).
	Quotas map[QuotaType]int64 `json:"quotas"`

	// TrialDays is the trial length granted at first checkout. Zero
	// means the subscription activates immediately.
	TrialDays int `json:"trial_days"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// Limit returns the configured limit for the quota type. Missing entries
// resolve to zero: not available on this plan.
func (p *Plan) Limit(q QuotaType) int64 {
	if p.Quotas == nil {
		return 0
	}
	return p.Quotas[q]
}

// Allows reports whether the plan admits `amount` more units of the quota
// type on top of the current usage.
func (p *Plan) Allows(q QuotaType, used, amount int64) bool {
	limit := p.Limit(q)
	if limit == Unlimited {
		return true
	}
	return used+amount <= limit
}

// PeriodEnd computes the end of a billing period starting at the given
// time. Cortexx bills monthly; the payment processor's own calendar wins
// whenever a webhook carries explicit period bounds.
func PeriodEnd(start time.Time) time.Time {
	return start.AddDate(0, 1, 0)
}
