package webhook_test

import (
	"testing"
	"time"

	"github.com/HeltonFraga01/cortexx-sub006/billing"
	"github.com/HeltonFraga01/cortexx-sub006/id"
	"github.com/HeltonFraga01/cortexx-sub006/webhook"
)

var transitionBase = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

func activeSub() *billing.Subscription {
	return &billing.Subscription{
		ID:                 id.NewSubscriptionID(),
		TenantID:           "t1",
		PlanID:             id.NewPlanID(),
		ExternalID:         "sub_ext_1",
		Status:             billing.StatusActive,
		CurrentPeriodStart: transitionBase,
		CurrentPeriodEnd:   transitionBase.AddDate(0, 1, 0),
		LastEventAt:        transitionBase,
	}
}

func event(typ webhook.Type, occurred time.Time) *webhook.Event {
	return &webhook.Event{
		ID:                     id.NewEventID(),
		ExternalEventID:        "evt_" + string(typ),
		Type:                   typ,
		TenantID:               "t1",
		ExternalSubscriptionID: "sub_ext_1",
		OccurredAt:             occurred,
		ReceivedAt:             occurred,
		Outcome:                webhook.OutcomePending,
	}
}

func TestTransitionUnhandledType(t *testing.T) {
	t.Parallel()

	d := webhook.Transition(activeSub(), event("payment_method.attached", transitionBase.Add(time.Hour)))
	if d.Outcome != webhook.OutcomeIgnored {
		t.Fatalf("expected ignored, got %s", d.Outcome)
	}
}

func TestTransitionCheckoutCreatesSubscription(t *testing.T) {
	t.Parallel()

	ev := event(webhook.TypeCheckoutCompleted, transitionBase)
	ev.PeriodStart = transitionBase
	ev.PeriodEnd = transitionBase.AddDate(0, 1, 0)

	d := webhook.Transition(nil, ev)
	if d.Outcome != webhook.OutcomeApplied {
		t.Fatalf("expected applied, got %s (%s)", d.Outcome, d.Reason)
	}
	if d.Next == nil || d.Next.Status != billing.StatusActive {
		t.Fatalf("expected active subscription, got %+v", d.Next)
	}
	if d.Next.ExternalID != "sub_ext_1" {
		t.Fatalf("expected external id carried over, got %q", d.Next.ExternalID)
	}
	if !d.Rollover {
		t.Fatal("checkout must open a fresh quota period")
	}
	if !d.PeriodStart.Equal(transitionBase) {
		t.Fatalf("expected rollover bounds from event, got %v", d.PeriodStart)
	}
}

func TestTransitionCheckoutWithTrial(t *testing.T) {
	t.Parallel()

	ev := event(webhook.TypeCheckoutCompleted, transitionBase)
	trialEnd := transitionBase.AddDate(0, 0, 14)
	ev.TrialEnd = &trialEnd

	d := webhook.Transition(nil, ev)
	if d.Outcome != webhook.OutcomeApplied {
		t.Fatalf("expected applied, got %s", d.Outcome)
	}
	if d.Next.Status != billing.StatusTrialing {
		t.Fatalf("expected trialing, got %s", d.Next.Status)
	}
	// Missing period bounds default to one month from the event.
	if !d.Next.CurrentPeriodStart.Equal(transitionBase) {
		t.Fatalf("expected period anchored at event, got %v", d.Next.CurrentPeriodStart)
	}
	if !d.Next.CurrentPeriodEnd.Equal(billing.PeriodEnd(transitionBase)) {
		t.Fatalf("expected one-month default period, got %v", d.Next.CurrentPeriodEnd)
	}
}

func TestTransitionNonCheckoutWithoutSubscription(t *testing.T) {
	t.Parallel()

	d := webhook.Transition(nil, event(webhook.TypeInvoicePaid, transitionBase))
	if d.Outcome != webhook.OutcomeDiscarded {
		t.Fatalf("expected discarded, got %s", d.Outcome)
	}
}

func TestTransitionOrderingGuard(t *testing.T) {
	t.Parallel()

	current := activeSub()
	current.LastEventAt = transitionBase.Add(2 * time.Hour)

	// An event older than the applied state must not regress it.
	ev := event(webhook.TypeSubscriptionUpdated, transitionBase.Add(time.Hour))
	ev.Status = billing.StatusPastDue

	d := webhook.Transition(current, ev)
	if d.Outcome != webhook.OutcomeDiscarded {
		t.Fatalf("expected discarded, got %s (%s)", d.Outcome, d.Reason)
	}
	if d.Next != nil {
		t.Fatal("discarded events must not carry a next state")
	}
}

func TestTransitionUpdateStatus(t *testing.T) {
	t.Parallel()

	current := activeSub()
	ev := event(webhook.TypeSubscriptionUpdated, transitionBase.Add(time.Hour))
	ev.Status = billing.StatusPastDue

	d := webhook.Transition(current, ev)
	if d.Outcome != webhook.OutcomeApplied {
		t.Fatalf("expected applied, got %s", d.Outcome)
	}
	if d.Next.Status != billing.StatusPastDue {
		t.Fatalf("expected past_due, got %s", d.Next.Status)
	}
	if !d.Next.LastEventAt.Equal(ev.OccurredAt) {
		t.Fatal("applied event must advance LastEventAt")
	}
	if d.Rollover {
		t.Fatal("status change alone must not reset quotas")
	}
}

func TestTransitionUpdateUnknownStatus(t *testing.T) {
	t.Parallel()

	ev := event(webhook.TypeSubscriptionUpdated, transitionBase.Add(time.Hour))
	ev.Status = billing.Status("paused")

	d := webhook.Transition(activeSub(), ev)
	if d.Outcome != webhook.OutcomeDiscarded {
		t.Fatalf("expected discarded, got %s", d.Outcome)
	}
}

func TestTransitionInvoicePaidRecovers(t *testing.T) {
	t.Parallel()

	current := activeSub()
	current.Status = billing.StatusPastDue

	d := webhook.Transition(current, event(webhook.TypeInvoicePaid, transitionBase.Add(time.Hour)))
	if d.Outcome != webhook.OutcomeApplied {
		t.Fatalf("expected applied, got %s", d.Outcome)
	}
	if d.Next.Status != billing.StatusActive {
		t.Fatalf("paid invoice should recover to active, got %s", d.Next.Status)
	}
	if d.Rollover {
		t.Fatal("invoice without a period advance must not reset quotas")
	}
}

func TestTransitionInvoicePaidAdvancesPeriod(t *testing.T) {
	t.Parallel()

	current := activeSub()
	newStart := transitionBase.AddDate(0, 1, 0)

	ev := event(webhook.TypeInvoicePaid, newStart)
	ev.PeriodStart = newStart
	ev.PeriodEnd = newStart.AddDate(0, 1, 0)

	d := webhook.Transition(current, ev)
	if d.Outcome != webhook.OutcomeApplied {
		t.Fatalf("expected applied, got %s", d.Outcome)
	}
	if !d.Rollover {
		t.Fatal("a new billing period must trigger a quota rollover")
	}
	if !d.PeriodStart.Equal(newStart) || !d.Next.CurrentPeriodStart.Equal(newStart) {
		t.Fatalf("expected period advanced to %v, got %v", newStart, d.Next.CurrentPeriodStart)
	}
}

func TestTransitionDelete(t *testing.T) {
	t.Parallel()

	occurred := transitionBase.Add(time.Hour)
	d := webhook.Transition(activeSub(), event(webhook.TypeSubscriptionDeleted, occurred))
	if d.Outcome != webhook.OutcomeApplied {
		t.Fatalf("expected applied, got %s", d.Outcome)
	}
	if d.Next.Status != billing.StatusCanceled {
		t.Fatalf("expected canceled, got %s", d.Next.Status)
	}
	if d.Next.CanceledAt == nil || !d.Next.CanceledAt.Equal(occurred) {
		t.Fatalf("expected CanceledAt %v, got %v", occurred, d.Next.CanceledAt)
	}
}

func TestTransitionCanceledIsTerminal(t *testing.T) {
	t.Parallel()

	current := activeSub()
	current.Status = billing.StatusCanceled

	ev := event(webhook.TypeInvoicePaid, transitionBase.Add(time.Hour))
	d := webhook.Transition(current, ev)
	if d.Outcome != webhook.OutcomeDiscarded {
		t.Fatalf("only a fresh checkout leaves canceled, got %s", d.Outcome)
	}
}

func TestTransitionCheckoutSupersedesCanceled(t *testing.T) {
	t.Parallel()

	current := activeSub()
	current.Status = billing.StatusCanceled

	ev := event(webhook.TypeCheckoutCompleted, transitionBase.Add(time.Hour))
	ev.ExternalSubscriptionID = "sub_ext_2"

	d := webhook.Transition(current, ev)
	if d.Outcome != webhook.OutcomeApplied {
		t.Fatalf("expected applied, got %s (%s)", d.Outcome, d.Reason)
	}
	if d.Next.Status != billing.StatusActive {
		t.Fatalf("expected re-activation, got %s", d.Next.Status)
	}
	if d.Next.ExternalID != "sub_ext_2" {
		t.Fatalf("expected new external id, got %q", d.Next.ExternalID)
	}
	if d.Next.ID != current.ID {
		t.Fatal("re-activation keeps the row identity stable")
	}
}

func TestTransitionSupersededSubscriptionEvents(t *testing.T) {
	t.Parallel()

	current := activeSub()
	current.ExternalID = "sub_ext_2" // a newer checkout replaced sub_ext_1

	ev := event(webhook.TypeSubscriptionDeleted, transitionBase.Add(time.Hour))
	d := webhook.Transition(current, ev)
	if d.Outcome != webhook.OutcomeDiscarded {
		t.Fatalf("events for a superseded subscription must not apply, got %s", d.Outcome)
	}
}

func TestTransitionDuplicateCheckoutSameExternalID(t *testing.T) {
	t.Parallel()

	ev := event(webhook.TypeCheckoutCompleted, transitionBase.Add(time.Hour))
	d := webhook.Transition(activeSub(), ev)
	if d.Outcome != webhook.OutcomeDiscarded {
		t.Fatalf("re-delivered checkout for the live subscription is a no-op, got %s", d.Outcome)
	}
}
