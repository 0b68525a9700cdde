// Package webhook reconciles payment-processor events into subscription
// and quota state. Deliveries arrive at-least-once, out of order, and
// possibly duplicated; the idempotency ledger plus a timestamp-guarded
// pure transition function make ingestion safe under all three.
package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/billing"
	"github.com/HeltonFraga01/cortexx-sub006/id"
)

// Type identifies a processor event kind.
type Type string

// Event types handled by the reconciler. Anything else is ledger-recorded
// and ignored so a processor rollout of new types never fails deliveries.
const (
	TypeCheckoutCompleted   Type = "checkout.completed"
	TypeSubscriptionUpdated Type = "subscription.updated"
	TypeSubscriptionDeleted Type = "subscription.deleted"
	TypeInvoicePaid         Type = "invoice.paid"
)

// Outcome records how an event was resolved. Duplicate deliveries return
// the recorded outcome without reapplying effects.
type Outcome string

const (
	// OutcomePending is set when the ledger row is inserted, before
	// effects are applied. A crash here leaves the event reprocessable.
	OutcomePending Outcome = "pending"
	// OutcomeApplied means the event mutated subscription/quota state.
	OutcomeApplied Outcome = "applied"
	// OutcomeDiscarded means the event was older than the applied state
	// or otherwise a no-op; it is kept in the ledger for audit.
	OutcomeDiscarded Outcome = "discarded"
	// OutcomeIgnored means the event type is not one the reconciler
	// handles.
	OutcomeIgnored Outcome = "ignored"
)

// Event is one ledger row: the processor's delivery plus its resolution.
// ExternalEventID is unique — the insert on it is the sole serialization
// point between duplicate concurrent deliveries.
type Event struct {
	ID              id.EventID `json:"id"`
	ExternalEventID string     `json:"external_event_id"`
	Type            Type       `json:"type"`

	TenantID               string         `json:"tenant_id"`
	ExternalSubscriptionID string         `json:"external_subscription_id,omitempty"`
	PlanSlug               string         `json:"plan_slug,omitempty"`
	Status                 billing.Status `json:"status,omitempty"`
	PeriodStart            time.Time      `json:"period_start,omitzero"`
	PeriodEnd              time.Time      `json:"period_end,omitzero"`
	TrialEnd               *time.Time     `json:"trial_end,omitempty"`

	// OccurredAt is the processor's timestamp, used for ordering guards.
	OccurredAt  time.Time  `json:"occurred_at"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Outcome     Outcome    `json:"outcome"`
	Reason      string     `json:"reason,omitempty"`

	Raw json.RawMessage `json:"raw,omitempty"`
}

// wireEvent is the processor's JSON envelope.
type wireEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		TenantID       string `json:"tenant_id"`
		SubscriptionID string `json:"subscription_id"`
		Plan           string `json:"plan"`
		Status         string `json:"status"`
		PeriodStart    int64  `json:"period_start"`
		PeriodEnd      int64  `json:"period_end"`
		TrialEnd       int64  `json:"trial_end"`
	} `json:"data"`
}

// ParseEvent decodes a raw processor delivery into an Event. Malformed
// envelopes are validation errors and never enter the ledger.
func ParseEvent(raw []byte) (*Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("webhook: malformed event payload: %w", err)
	}
	if w.ID == "" || w.Type == "" {
		return nil, fmt.Errorf("webhook: event missing id or type: %w", cortexx.ErrUnknownEventType)
	}
	if w.Data.TenantID == "" {
		return nil, fmt.Errorf("webhook: event %s missing tenant: %w", w.ID, cortexx.ErrUnknownEventType)
	}

	ev := &Event{
		ID:                     id.NewEventID(),
		ExternalEventID:        w.ID,
		Type:                   Type(w.Type),
		TenantID:               w.Data.TenantID,
		ExternalSubscriptionID: w.Data.SubscriptionID,
		PlanSlug:               w.Data.Plan,
		Status:                 billing.Status(w.Data.Status),
		OccurredAt:             time.Unix(w.Created, 0).UTC(),
		ReceivedAt:             time.Now().UTC(),
		Outcome:                OutcomePending,
		Raw:                    raw,
	}
	if w.Data.PeriodStart > 0 {
		ev.PeriodStart = time.Unix(w.Data.PeriodStart, 0).UTC()
	}
	if w.Data.PeriodEnd > 0 {
		ev.PeriodEnd = time.Unix(w.Data.PeriodEnd, 0).UTC()
	}
	if w.Data.TrialEnd > 0 {
		t := time.Unix(w.Data.TrialEnd, 0).UTC()
		ev.TrialEnd = &t
	}
	return ev, nil
}

// Handled reports whether the reconciler has a handler for this type.
func (t Type) Handled() bool {
	switch t {
	case TypeCheckoutCompleted, TypeSubscriptionUpdated, TypeSubscriptionDeleted, TypeInvoicePaid:
		return true
	default:
		return false
	}
}
