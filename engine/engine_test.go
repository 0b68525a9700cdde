package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/billing"
	"github.com/HeltonFraga01/cortexx-sub006/engine"
	"github.com/HeltonFraga01/cortexx-sub006/id"
	"github.com/HeltonFraga01/cortexx-sub006/job"
	"github.com/HeltonFraga01/cortexx-sub006/queue"
	"github.com/HeltonFraga01/cortexx-sub006/scope"
	"github.com/HeltonFraga01/cortexx-sub006/store/memory"
	"github.com/HeltonFraga01/cortexx-sub006/webhook"
)

const webhookSecret = "whsec_test"

func newTestCore(t *testing.T, s *memory.Store) *cortexx.Core {
	t.Helper()

	cfg := cortexx.DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.HeartbeatInterval = 0
	cfg.ReaperInterval = 0
	cfg.WebhookSecret = webhookSecret

	core, err := cortexx.New(
		cortexx.WithStore(s),
		cortexx.WithConfig(cfg),
	)
	if err != nil {
		t.Fatalf("cortexx.New: %v", err)
	}
	return core
}

func seedPlan(t *testing.T, s *memory.Store, slug string, capacity, refill float64, quotas map[billing.QuotaType]int64) *billing.Plan {
	t.Helper()

	p := &billing.Plan{
		Entity:          cortexx.NewEntity(),
		ID:              id.NewPlanID(),
		Name:            slug,
		Slug:            slug,
		RefillPerSecond: refill,
		Capacity:        capacity,
		Quotas:          quotas,
	}
	if err := s.CreatePlan(context.Background(), p); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	return p
}

func TestBuild_RequiresStore(t *testing.T) {
	core, err := cortexx.New()
	if err != nil {
		t.Fatalf("cortexx.New: %v", err)
	}

	if _, err := engine.Build(core); !errors.Is(err, cortexx.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
}

func TestEnqueue_NoTenantSkipsGovernance(t *testing.T) {
	s := memory.New()
	eng, err := engine.Build(newTestCore(t, s))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// No plans seeded, no tenant in scope: internal work is admitted
	// without governance.
	j, err := engine.Enqueue(context.Background(), eng, "cleanup", struct{}{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if j.TenantID != "" {
		t.Errorf("TenantID = %q, want empty", j.TenantID)
	}

	got, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != job.StateWaiting || got.Queue != "default" {
		t.Errorf("state=%s queue=%s", got.State, got.Queue)
	}
}

func TestEnqueue_UnknownQueue(t *testing.T) {
	s := memory.New()
	eng, err := engine.Build(newTestCore(t, s))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	_, err = engine.Enqueue(context.Background(), eng, "send", struct{}{}, job.WithQueue("nope"))
	if !errors.Is(err, cortexx.ErrInvalidQueue) {
		t.Fatalf("expected ErrInvalidQueue, got %v", err)
	}
}

func TestEnqueue_PayloadTooLarge(t *testing.T) {
	s := memory.New()
	eng, err := engine.Build(newTestCore(t, s),
		engine.WithQueueConfig(queue.Config{Name: "default", MaxPayloadBytes: 8}),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	_, err = eng.EnqueueRaw(context.Background(), "send", []byte(`{"way":"too large for this queue"}`))
	if !errors.Is(err, cortexx.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestEnqueue_TenantGoverned(t *testing.T) {
	s := memory.New()
	seedPlan(t, s, "free", 100, 10, map[billing.QuotaType]int64{
		billing.QuotaMessages: 1000,
	})

	eng, err := engine.Build(newTestCore(t, s))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx := scope.Restore(context.Background(), "tenant_1")
	j, err := engine.Enqueue(ctx, eng, "send-message", struct{ Body string }{Body: "hi"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if j.TenantID != "tenant_1" {
		t.Errorf("TenantID = %q, want tenant_1", j.TenantID)
	}

	// The token bucket was created lazily and charged one token.
	state, err := s.GetRateState(context.Background(), "tenant_1")
	if err != nil {
		t.Fatalf("GetRateState: %v", err)
	}
	if state.Tokens >= state.Capacity {
		t.Errorf("tokens = %v, want below capacity %v", state.Tokens, state.Capacity)
	}
}

func TestEnqueue_RateLimited(t *testing.T) {
	s := memory.New()
	// One-token bucket that never refills: the second enqueue is denied.
	seedPlan(t, s, "free", 1, 0, nil)

	eng, err := engine.Build(newTestCore(t, s))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx := scope.Restore(context.Background(), "tenant_1")
	if _, err := engine.Enqueue(ctx, eng, "send", struct{}{}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}

	_, err = engine.Enqueue(ctx, eng, "send", struct{}{})
	if !errors.Is(err, cortexx.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	var rle *cortexx.RateLimitError
	if !errors.As(err, &rle) || rle.TenantID != "tenant_1" {
		t.Fatalf("expected structured RateLimitError, got %v", err)
	}
}

func TestEnqueue_QuotaDenied(t *testing.T) {
	s := memory.New()
	seedPlan(t, s, "free", 100, 10, map[billing.QuotaType]int64{
		billing.QuotaCampaigns: 1,
	})

	eng, err := engine.Build(newTestCore(t, s),
		engine.WithQueueConfig(queue.Config{Name: "campaigns"}),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx := scope.Restore(context.Background(), "tenant_1")
	if _, err := engine.Enqueue(ctx, eng, "run-campaign", struct{}{}, job.WithQueue("campaigns")); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}

	_, err = engine.Enqueue(ctx, eng, "run-campaign", struct{}{}, job.WithQueue("campaigns"))
	if !errors.Is(err, cortexx.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}

	var qe *cortexx.QuotaError
	if !errors.As(err, &qe) {
		t.Fatalf("expected structured QuotaError, got %v", err)
	}
	if qe.Limit != 1 || qe.Used != 1 {
		t.Errorf("QuotaError used=%d limit=%d, want 1/1", qe.Used, qe.Limit)
	}
}

func TestEnqueue_QuotaReleasedOnEnqueueFailure(t *testing.T) {
	s := memory.New()
	seedPlan(t, s, "free", 100, 10, map[billing.QuotaType]int64{
		billing.QuotaCampaigns: 5,
	})

	eng, err := engine.Build(newTestCore(t, s),
		engine.WithQueueConfig(queue.Config{Name: "campaigns"}),
	)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx := scope.Restore(context.Background(), "tenant_1")
	j, err := engine.Enqueue(ctx, eng, "run-campaign", struct{}{}, job.WithQueue("campaigns"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Re-enqueueing the same job ID fails after the reservation; the
	// reservation must be compensated.
	if err := s.EnqueueJob(ctx, j); !errors.Is(err, cortexx.ErrJobAlreadyExists) {
		t.Fatalf("expected duplicate enqueue to fail, got %v", err)
	}

	usage, err := s.GetUsage(ctx, "tenant_1", billing.QuotaCampaigns)
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if usage.Used != 1 {
		t.Errorf("used = %d after one admitted enqueue, want 1", usage.Used)
	}
}

func TestEngine_ProcessesJob(t *testing.T) {
	s := memory.New()
	eng, err := engine.Build(newTestCore(t, s))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	var processed atomic.Bool
	engine.Register(eng, &job.Definition[struct{ N int }]{
		Name: "count",
		Handler: func(_ context.Context, p struct{ N int }) error {
			if p.N != 7 {
				t.Errorf("payload N = %d, want 7", p.N)
			}
			processed.Store(true)
			return nil
		},
	})

	j, err := engine.Enqueue(context.Background(), eng, "count", struct{ N int }{N: 7})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for !processed.Load() {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for job to be processed")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := eng.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	got, err := s.GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.State != job.StateCompleted {
		t.Errorf("job state = %q, want completed", got.State)
	}
}

func signedEvent(t *testing.T, externalID, eventType, tenantID, planSlug string, occurred time.Time) ([]byte, string) {
	t.Helper()

	periodStart := occurred
	periodEnd := periodStart.AddDate(0, 1, 0)
	body, err := json.Marshal(map[string]any{
		"id":      externalID,
		"type":    eventType,
		"created": occurred.Unix(),
		"data": map[string]any{
			"tenant_id":       tenantID,
			"subscription_id": "extsub_1",
			"plan":            planSlug,
			"status":          "active",
			"period_start":    periodStart.Unix(),
			"period_end":      periodEnd.Unix(),
		},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return body, webhook.SignPayload(body, webhookSecret, time.Now())
}

func TestIngest_CheckoutCreatesSubscription(t *testing.T) {
	s := memory.New()
	plan := seedPlan(t, s, "pro", 100, 10, map[billing.QuotaType]int64{
		billing.QuotaMessages: 5000,
	})

	eng, err := engine.Build(newTestCore(t, s))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	body, sig := signedEvent(t, "evt_checkout_1", "checkout.completed", "tenant_1", "pro", time.Now().UTC())
	ev, err := eng.Ingest(context.Background(), body, sig)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if ev.Outcome != webhook.OutcomeApplied {
		t.Fatalf("outcome = %s, want applied", ev.Outcome)
	}

	sub, err := s.GetSubscription(context.Background(), "tenant_1")
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if sub.PlanID != plan.ID {
		t.Errorf("PlanID = %s, want %s", sub.PlanID, plan.ID)
	}

	// A duplicate delivery short-circuits to the recorded outcome.
	dup, err := eng.Ingest(context.Background(), body, sig)
	if err != nil {
		t.Fatalf("duplicate Ingest: %v", err)
	}
	if dup.Outcome != webhook.OutcomeApplied || dup.ID != ev.ID {
		t.Errorf("duplicate outcome = %s id = %s, want recorded row", dup.Outcome, dup.ID)
	}
}

func TestIngest_BadSignatureRejectedBeforeLedger(t *testing.T) {
	s := memory.New()
	seedPlan(t, s, "pro", 100, 10, nil)

	eng, err := engine.Build(newTestCore(t, s))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	body, _ := signedEvent(t, "evt_bad_sig", "checkout.completed", "tenant_1", "pro", time.Now().UTC())
	badSig := fmt.Sprintf("t=%d,v1=deadbeef", time.Now().Unix())

	if _, err := eng.Ingest(context.Background(), body, badSig); !errors.Is(err, cortexx.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	// The rejected delivery never entered the ledger, so a re-signed
	// retry can still succeed.
	if _, err := s.GetEvent(context.Background(), "evt_bad_sig"); !errors.Is(err, cortexx.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}
