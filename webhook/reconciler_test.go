package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/billing"
	"github.com/HeltonFraga01/cortexx-sub006/cache"
	"github.com/HeltonFraga01/cortexx-sub006/id"
	"github.com/HeltonFraga01/cortexx-sub006/store/memory"
	"github.com/HeltonFraga01/cortexx-sub006/webhook"
)

const reconcilerSecret = "whsec_reconciler_test"

// fakeLimiter records bucket invalidations.
type fakeLimiter struct {
	invalidated []string
}

func (f *fakeLimiter) Invalidate(_ context.Context, tenantID string) error {
	f.invalidated = append(f.invalidated, tenantID)
	return nil
}

// recordingHooks counts lifecycle notifications.
type recordingHooks struct {
	changed  int
	resolved int
}

func (h *recordingHooks) SubscriptionChanged(context.Context, *billing.Subscription, *webhook.Event) {
	h.changed++
}

func (h *recordingHooks) EventResolved(context.Context, *webhook.Event) {
	h.resolved++
}

type fixture struct {
	store      *memory.Store
	limiter    *fakeLimiter
	hooks      *recordingHooks
	reconciler *webhook.Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s := memory.New()
	lim := &fakeLimiter{}
	hooks := &recordingHooks{}
	r := webhook.NewReconciler(s, s, cache.NewMemory(), lim, reconcilerSecret,
		webhook.WithHooks(hooks),
	)
	return &fixture{store: s, limiter: lim, hooks: hooks, reconciler: r}
}

func seedPlan(t *testing.T, s *memory.Store, slug string) *billing.Plan {
	t.Helper()

	p := &billing.Plan{
		Entity:          cortexx.NewEntity(),
		ID:              id.NewPlanID(),
		Name:            slug,
		Slug:            slug,
		Capacity:        10,
		RefillPerSecond: 1,
		Quotas:          map[billing.QuotaType]int64{billing.QuotaMessages: 1000},
	}
	if err := s.CreatePlan(context.Background(), p); err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return p
}

// delivery builds a signed processor envelope.
func delivery(t *testing.T, eventID, typ string, occurred time.Time, data map[string]any) ([]byte, string) {
	t.Helper()

	payload := map[string]any{
		"id":      eventID,
		"type":    typ,
		"created": occurred.Unix(),
		"data":    data,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal delivery: %v", err)
	}
	return body, webhook.SignPayload(body, reconcilerSecret, time.Now())
}

func checkoutData(tenantID, extSubID, planSlug string, start, end time.Time) map[string]any {
	return map[string]any{
		"tenant_id":       tenantID,
		"subscription_id": extSubID,
		"plan":            planSlug,
		"status":          "active",
		"period_start":    start.Unix(),
		"period_end":      end.Unix(),
	}
}

func TestIngestCheckoutApplies(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	plan := seedPlan(t, f.store, "pro")
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Second)
	body, sig := delivery(t, "evt_1", "checkout.completed", start,
		checkoutData("t1", "sub_ext_1", "pro", start, start.AddDate(0, 1, 0)))

	ev, err := f.reconciler.Ingest(ctx, body, sig)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if ev.Outcome != webhook.OutcomeApplied {
		t.Fatalf("expected applied, got %s (%s)", ev.Outcome, ev.Reason)
	}

	sub, err := f.store.GetSubscription(ctx, "t1")
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if sub.Status != billing.StatusActive {
		t.Fatalf("expected active, got %s", sub.Status)
	}
	if sub.PlanID != plan.ID {
		t.Fatal("subscription should resolve the plan by slug")
	}

	if len(f.limiter.invalidated) != 1 || f.limiter.invalidated[0] != "t1" {
		t.Fatalf("expected rate bucket invalidation for t1, got %v", f.limiter.invalidated)
	}
	if f.hooks.changed != 1 || f.hooks.resolved != 1 {
		t.Fatalf("expected hooks 1/1, got %d/%d", f.hooks.changed, f.hooks.resolved)
	}
}

func TestIngestDuplicateShortCircuits(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	seedPlan(t, f.store, "pro")
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Second)
	body, sig := delivery(t, "evt_dup", "checkout.completed", start,
		checkoutData("t1", "sub_ext_1", "pro", start, start.AddDate(0, 1, 0)))

	if _, err := f.reconciler.Ingest(ctx, body, sig); err != nil {
		t.Fatalf("first ingest: %v", err)
	}

	ev, err := f.reconciler.Ingest(ctx, body, sig)
	if err != nil {
		t.Fatalf("duplicate ingest: %v", err)
	}
	if ev.Outcome != webhook.OutcomeApplied {
		t.Fatalf("duplicate returns the recorded outcome, got %s", ev.Outcome)
	}

	// Effects applied exactly once.
	if f.hooks.resolved != 1 {
		t.Fatalf("expected one resolution, got %d", f.hooks.resolved)
	}
	if len(f.limiter.invalidated) != 1 {
		t.Fatalf("expected one invalidation, got %d", len(f.limiter.invalidated))
	}
}

func TestIngestBadSignatureNeverEntersLedger(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	start := time.Now().UTC()
	body, _ := delivery(t, "evt_bad", "checkout.completed", start,
		checkoutData("t1", "sub_ext_1", "pro", start, start.AddDate(0, 1, 0)))

	_, err := f.reconciler.Ingest(ctx, body, "t=1,v1=deadbeef")
	if !errors.Is(err, cortexx.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}

	if _, err = f.store.GetEvent(ctx, "evt_bad"); !errors.Is(err, cortexx.ErrEventNotFound) {
		t.Fatalf("rejected delivery must not be recorded, got %v", err)
	}
}

func TestIngestMalformedBody(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	body := []byte(`{"id":"","type":""}`)
	sig := webhook.SignPayload(body, reconcilerSecret, time.Now())

	if _, err := f.reconciler.Ingest(context.Background(), body, sig); err == nil {
		t.Fatal("expected validation error for empty envelope")
	}
}

func TestIngestUnhandledTypeIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	body, sig := delivery(t, "evt_attach", "payment_method.attached", time.Now(),
		map[string]any{"tenant_id": "t1"})

	ev, err := f.reconciler.Ingest(ctx, body, sig)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if ev.Outcome != webhook.OutcomeIgnored {
		t.Fatalf("expected ignored, got %s", ev.Outcome)
	}

	// Ignored events are still ledger-recorded for audit.
	recorded, err := f.store.GetEvent(ctx, "evt_attach")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if recorded.ProcessedAt == nil {
		t.Fatal("ignored events are resolved, not left pending")
	}
	if len(f.limiter.invalidated) != 0 {
		t.Fatal("ignored events must not invalidate anything")
	}
}

func TestIngestOutOfOrderDiscarded(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	seedPlan(t, f.store, "pro")
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Second)
	body, sig := delivery(t, "evt_checkout", "checkout.completed", start,
		checkoutData("t1", "sub_ext_1", "pro", start, start.AddDate(0, 1, 0)))
	if _, err := f.reconciler.Ingest(ctx, body, sig); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	// A late update that occurred before the checkout must not regress
	// the subscription.
	body, sig = delivery(t, "evt_late", "subscription.updated", start.Add(-time.Hour),
		map[string]any{
			"tenant_id":       "t1",
			"subscription_id": "sub_ext_1",
			"status":          "past_due",
		})
	ev, err := f.reconciler.Ingest(ctx, body, sig)
	if err != nil {
		t.Fatalf("late update: %v", err)
	}
	if ev.Outcome != webhook.OutcomeDiscarded {
		t.Fatalf("expected discarded, got %s (%s)", ev.Outcome, ev.Reason)
	}

	sub, err := f.store.GetSubscription(ctx, "t1")
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if sub.Status != billing.StatusActive {
		t.Fatalf("discarded event must not change status, got %s", sub.Status)
	}
}

func TestIngestUnknownPlanLeavesEventReprocessable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Second)
	body, sig := delivery(t, "evt_noplan", "checkout.completed", start,
		checkoutData("t1", "sub_ext_1", "enterprise", start, start.AddDate(0, 1, 0)))

	if _, err := f.reconciler.Ingest(ctx, body, sig); !errors.Is(err, cortexx.ErrPlanNotFound) {
		t.Fatalf("expected plan not found, got %v", err)
	}

	// The ledger row exists but is unresolved, so the processor's retry
	// succeeds once the plan is provisioned.
	recorded, err := f.store.GetEvent(ctx, "evt_noplan")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if recorded.ProcessedAt != nil {
		t.Fatal("failed delivery should stay pending")
	}

	seedPlan(t, f.store, "enterprise")
	sig = webhook.SignPayload(body, reconcilerSecret, time.Now())
	ev, err := f.reconciler.Ingest(ctx, body, sig)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if ev.Outcome != webhook.OutcomeApplied {
		t.Fatalf("expected applied on retry, got %s", ev.Outcome)
	}
	if _, err = f.store.GetSubscription(ctx, "t1"); err != nil {
		t.Fatalf("subscription after retry: %v", err)
	}
}

// racingLedger resolves a competing delivery's outcome right before the
// delivery under test settles, reproducing two concurrent deliveries of
// the same event both getting past the ledger insert.
type racingLedger struct {
	*memory.Store
	winner *webhook.Resolution
	raced  bool
}

func (l *racingLedger) ApplyResolution(ctx context.Context, res *webhook.Resolution) error {
	if !l.raced {
		l.raced = true
		if err := l.Store.ApplyResolution(ctx, l.winner); err != nil {
			return err
		}
	}
	return l.Store.ApplyResolution(ctx, res)
}

func TestIngestConcurrentDuplicateKeepsRecordedOutcome(t *testing.T) {
	t.Parallel()

	s := memory.New()
	seedPlan(t, s, "pro")
	lim := &fakeLimiter{}
	hooks := &recordingHooks{}
	ctx := context.Background()

	ledger := &racingLedger{Store: s, winner: &webhook.Resolution{
		ExternalEventID: "evt_race",
		Outcome:         webhook.OutcomeApplied,
		Reason:          "first delivery",
		TenantID:        "t1",
	}}
	r := webhook.NewReconciler(ledger, s, cache.NewMemory(), lim, reconcilerSecret,
		webhook.WithHooks(hooks),
	)

	start := time.Now().UTC().Truncate(time.Second)
	body, sig := delivery(t, "evt_race", "checkout.completed", start,
		checkoutData("t1", "sub_ext_1", "pro", start, start.AddDate(0, 1, 0)))

	// The competing delivery resolves the ledger row first; this one must
	// report the recorded outcome, not its own late decision.
	ev, err := r.Ingest(ctx, body, sig)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if ev.Outcome != webhook.OutcomeApplied || ev.Reason != "first delivery" {
		t.Fatalf("expected the recorded outcome, got %s (%s)", ev.Outcome, ev.Reason)
	}

	// The losing delivery applies nothing: no hooks, no invalidations.
	if hooks.changed != 0 || hooks.resolved != 0 {
		t.Fatalf("losing delivery must not re-fire hooks, got %d/%d", hooks.changed, hooks.resolved)
	}
	if len(lim.invalidated) != 0 {
		t.Fatalf("losing delivery must not invalidate, got %v", lim.invalidated)
	}

	// Every later duplicate short-circuits to the same recorded outcome.
	again, err := r.Ingest(ctx, body, sig)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if again.Outcome != ev.Outcome {
		t.Fatalf("deliveries disagree: %s vs %s", again.Outcome, ev.Outcome)
	}
}

func TestIngestCancellationStopsRenewals(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	seedPlan(t, f.store, "pro")
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Second)
	body, sig := delivery(t, "evt_c1", "checkout.completed", start,
		checkoutData("t1", "sub_ext_1", "pro", start, start.AddDate(0, 1, 0)))
	if _, err := f.reconciler.Ingest(ctx, body, sig); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	body, sig = delivery(t, "evt_c2", "subscription.deleted", start.Add(time.Hour),
		map[string]any{"tenant_id": "t1", "subscription_id": "sub_ext_1"})
	ev, err := f.reconciler.Ingest(ctx, body, sig)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ev.Outcome != webhook.OutcomeApplied {
		t.Fatalf("expected applied, got %s (%s)", ev.Outcome, ev.Reason)
	}

	sub, err := f.store.GetSubscription(ctx, "t1")
	if err != nil {
		t.Fatalf("get subscription: %v", err)
	}
	if sub.Status != billing.StatusCanceled {
		t.Fatalf("expected canceled, got %s", sub.Status)
	}

	// A later invoice for the canceled subscription is discarded.
	body, sig = delivery(t, "evt_c3", "invoice.paid", start.Add(2*time.Hour),
		map[string]any{"tenant_id": "t1", "subscription_id": "sub_ext_1"})
	ev, err = f.reconciler.Ingest(ctx, body, sig)
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}
	if ev.Outcome != webhook.OutcomeDiscarded {
		t.Fatalf("expected discarded after cancellation, got %s", ev.Outcome)
	}
}
