package webhook

import (
	"time"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/billing"
	"github.com/HeltonFraga01/cortexx-sub006/id"
)

// Decision is the result of evaluating one event against the current
// subscription state. It carries everything ApplyResolution needs; the
// transition itself mutates nothing.
type Decision struct {
	Outcome Outcome
	Reason  string

	// Next is the subscription state to persist when Outcome is applied.
	Next *billing.Subscription

	// Rollover is set when the billing period advanced and quota
	// counters must reset.
	Rollover    bool
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Transition computes the next subscription state for an event. It is a
// pure function of (current, event): no I/O, no clock, independently
// testable.
//
// Delivery order is not guaranteed, so transitions are guarded by the
// processor's own timestamps: an event at or before the subscription's
// LastEventAt is discarded (but still ledger-recorded), which keeps a
// late "subscription.updated(past_due)" from regressing a newer
// "invoice.paid".
func Transition(current *billing.Subscription, ev *Event) Decision {
	if !ev.Type.Handled() {
		return Decision{Outcome: OutcomeIgnored, Reason: "unhandled event type"}
	}

	if current == nil {
		if ev.Type == TypeCheckoutCompleted {
			return applyCheckout(nil, ev)
		}
		return Decision{Outcome: OutcomeDiscarded, Reason: "no subscription for tenant"}
	}

	// A fresh checkout under a new external subscription ID supersedes
	// everything, including the canceled terminal state.
	if ev.Type == TypeCheckoutCompleted && ev.ExternalSubscriptionID != current.ExternalID {
		return applyCheckout(current, ev)
	}

	// Events for a superseded subscription are stale by definition.
	if ev.ExternalSubscriptionID != "" && ev.ExternalSubscriptionID != current.ExternalID {
		return Decision{Outcome: OutcomeDiscarded, Reason: "event for superseded subscription"}
	}

	// Ordering guard: never apply an event older than the applied state.
	if !ev.OccurredAt.After(current.LastEventAt) {
		return Decision{Outcome: OutcomeDiscarded, Reason: "older than applied state"}
	}

	if current.Terminal() && ev.Type != TypeCheckoutCompleted {
		return Decision{Outcome: OutcomeDiscarded, Reason: "subscription canceled"}
	}

	switch ev.Type {
	case TypeCheckoutCompleted:
		// Same external ID delivered again with a newer timestamp: the
		// ledger already dedups true duplicates, so treat as a no-op.
		return Decision{Outcome: OutcomeDiscarded, Reason: "checkout already applied"}

	case TypeSubscriptionUpdated:
		return applyUpdate(current, ev)

	case TypeInvoicePaid:
		return applyInvoicePaid(current, ev)

	case TypeSubscriptionDeleted:
		next := clone(current)
		next.Status = billing.StatusCanceled
		canceledAt := ev.OccurredAt
		next.CanceledAt = &canceledAt
		next.LastEventAt = ev.OccurredAt
		next.Touch()
		return Decision{Outcome: OutcomeApplied, Next: next}
	}

	return Decision{Outcome: OutcomeIgnored, Reason: "unhandled event type"}
}

// applyCheckout creates or re-activates the subscription under the
// event's external subscription ID.
func applyCheckout(current *billing.Subscription, ev *Event) Decision {
	next := &billing.Subscription{
		Entity:             cortexx.NewEntity(),
		ID:                 id.NewSubscriptionID(),
		TenantID:           ev.TenantID,
		ExternalID:         ev.ExternalSubscriptionID,
		Status:             billing.StatusActive,
		CurrentPeriodStart: ev.PeriodStart,
		CurrentPeriodEnd:   ev.PeriodEnd,
		LastEventAt:        ev.OccurredAt,
		TrialEnd:           ev.TrialEnd,
	}
	if current != nil {
		// Keep the row identity stable across re-activation.
		next.ID = current.ID
		next.Entity = current.Entity
		next.Touch()
	}
	if ev.TrialEnd != nil && ev.TrialEnd.After(ev.OccurredAt) {
		next.Status = billing.StatusTrialing
	}
	if next.CurrentPeriodStart.IsZero() {
		next.CurrentPeriodStart = ev.OccurredAt
	}
	if next.CurrentPeriodEnd.IsZero() {
		next.CurrentPeriodEnd = billing.PeriodEnd(next.CurrentPeriodStart)
	}
	return Decision{
		Outcome:     OutcomeApplied,
		Next:        next,
		Rollover:    true,
		PeriodStart: next.CurrentPeriodStart,
		PeriodEnd:   next.CurrentPeriodEnd,
	}
}

func applyUpdate(current *billing.Subscription, ev *Event) Decision {
	switch ev.Status {
	case billing.StatusActive, billing.StatusTrialing, billing.StatusPastDue, billing.StatusCanceled:
	default:
		return Decision{Outcome: OutcomeDiscarded, Reason: "unknown subscription status"}
	}

	next := clone(current)
	next.Status = ev.Status
	if !ev.PeriodEnd.IsZero() {
		next.CurrentPeriodEnd = ev.PeriodEnd
	}
	next.LastEventAt = ev.OccurredAt
	next.Touch()
	return Decision{Outcome: OutcomeApplied, Next: next}
}

// applyInvoicePaid recovers past_due subscriptions and advances the
// billing period when the invoice opens a new one. The period advance is
// what triggers the quota rollover — never wall-clock polling — so
// counters stay aligned with the processor's billing calendar.
func applyInvoicePaid(current *billing.Subscription, ev *Event) Decision {
	next := clone(current)
	next.Status = billing.StatusActive
	next.LastEventAt = ev.OccurredAt
	next.Touch()

	d := Decision{Outcome: OutcomeApplied}
	if !ev.PeriodStart.IsZero() && ev.PeriodStart.After(current.CurrentPeriodStart) {
		next.CurrentPeriodStart = ev.PeriodStart
		next.CurrentPeriodEnd = ev.PeriodEnd
		if next.CurrentPeriodEnd.IsZero() {
			next.CurrentPeriodEnd = billing.PeriodEnd(ev.PeriodStart)
		}
		d.Rollover = true
		d.PeriodStart = next.CurrentPeriodStart
		d.PeriodEnd = next.CurrentPeriodEnd
	}
	d.Next = next
	return d
}

func clone(s *billing.Subscription) *billing.Subscription {
	cp := *s
	return &cp
}
