package billing

import (
	"time"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/id"
)

// Status is the closed set of subscription states. Only the webhook
// reconciler mutates it; everything else treats subscriptions as
// read-only projections.
type Status string

const (
	StatusTrialing Status = "trialing"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// Subscription binds a tenant to a plan and mirrors the payment
// processor's view of the billing relationship.
type Subscription struct {
	cortexx.Entity
	ID       id.SubscriptionID `json:"id"`
	TenantID string            `json:"tenant_id"`
	PlanID   id.PlanID         `json:"plan_id"`

	// ExternalID is the payment processor's subscription identifier.
	// A fresh checkout after cancellation re-activates under a new one.
	ExternalID string `json:"external_id"`

	Status             Status    `json:"status"`
	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`

	// LastEventAt is the processor timestamp of the most recently applied
	// event. Events older than this are discarded (ledger-recorded only)
	// so out-of-order delivery cannot regress state.
	LastEventAt time.Time `json:"last_event_at"`

	TrialEnd   *time.Time `json:"trial_end,omitempty"`
	CanceledAt *time.Time `json:"canceled_at,omitempty"`
}

// Terminal reports whether the subscription is in a state that only a
// fresh checkout can leave.
func (s *Subscription) Terminal() bool {
	return s.Status == StatusCanceled
}

// InPeriod reports whether t falls inside the current billing period.
func (s *Subscription) InPeriod(t time.Time) bool {
	return !t.Before(s.CurrentPeriodStart) && t.Before(s.CurrentPeriodEnd)
}
