package quota_test

import (
	"context"
	"errors"
	"testing"
	"time"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/billing"
	"github.com/HeltonFraga01/cortexx-sub006/id"
	"github.com/HeltonFraga01/cortexx-sub006/quota"
	"github.com/HeltonFraga01/cortexx-sub006/store/memory"
)

// stubResolver returns a fixed plan and subscription.
type stubResolver struct {
	plan *billing.Plan
	sub  *billing.Subscription
	err  error
}

func (r *stubResolver) Resolve(context.Context, string) (*billing.Plan, *billing.Subscription, error) {
	return r.plan, r.sub, r.err
}

func limitedPlan(q billing.QuotaType, limit int64) *billing.Plan {
	return &billing.Plan{
		ID:     id.NewPlanID(),
		Name:   "Starter",
		Slug:   "starter",
		Quotas: map[billing.QuotaType]int64{q: limit},
	}
}

func TestCheckAndReserveWithinLimit(t *testing.T) {
	t.Parallel()

	s := memory.New()
	a := quota.NewAccountant(s, &stubResolver{plan: limitedPlan(billing.QuotaMessages, 3)})
	ctx := context.Background()

	for i := range 3 {
		if err := a.CheckAndReserve(ctx, "t1", billing.QuotaMessages, 1); err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
	}

	err := a.CheckAndReserve(ctx, "t1", billing.QuotaMessages, 1)
	if !errors.Is(err, cortexx.ErrQuotaExceeded) {
		t.Fatalf("expected quota exceeded, got %v", err)
	}

	var qErr *cortexx.QuotaError
	if !errors.As(err, &qErr) {
		t.Fatalf("expected *cortexx.QuotaError, got %T", err)
	}
	if qErr.Used != 3 || qErr.Limit != 3 {
		t.Fatalf("expected used/limit 3/3, got %d/%d", qErr.Used, qErr.Limit)
	}

	// The denial must not have mutated the counter.
	u, err := s.GetUsage(ctx, "t1", billing.QuotaMessages)
	if err != nil {
		t.Fatalf("get usage: %v", err)
	}
	if u.Used != 3 {
		t.Fatalf("expected used 3 after denial, got %d", u.Used)
	}
}

func TestCheckAndReserveMissingQuotaTypeDenied(t *testing.T) {
	t.Parallel()

	// A quota type absent from the plan resolves to limit zero: the
	// feature is not available on this tier.
	a := quota.NewAccountant(memory.New(), &stubResolver{plan: limitedPlan(billing.QuotaMessages, 100)})

	err := a.CheckAndReserve(context.Background(), "t1", billing.QuotaCampaigns, 1)
	if !errors.Is(err, cortexx.ErrQuotaExceeded) {
		t.Fatalf("expected quota exceeded for absent quota type, got %v", err)
	}
}

func TestCheckAndReserveUnlimitedMeters(t *testing.T) {
	t.Parallel()

	s := memory.New()
	a := quota.NewAccountant(s, &stubResolver{plan: limitedPlan(billing.QuotaMessages, billing.Unlimited)})
	ctx := context.Background()

	if err := a.CheckAndReserve(ctx, "t1", billing.QuotaMessages, 5000); err != nil {
		t.Fatalf("unlimited reserve: %v", err)
	}

	u, err := s.GetUsage(ctx, "t1", billing.QuotaMessages)
	if err != nil {
		t.Fatalf("get usage: %v", err)
	}
	if u.Used != 5000 {
		t.Fatalf("unlimited plans still meter: expected 5000, got %d", u.Used)
	}
}

func TestCheckAndReserveFailsClosedOnResolverError(t *testing.T) {
	t.Parallel()

	boom := errors.New("billing store unavailable")
	a := quota.NewAccountant(memory.New(), &stubResolver{err: boom})

	err := a.CheckAndReserve(context.Background(), "t1", billing.QuotaMessages, 1)
	if !errors.Is(err, boom) {
		t.Fatalf("expected resolver error to deny admission, got %v", err)
	}
}

func TestReleaseCompensatesReservation(t *testing.T) {
	t.Parallel()

	s := memory.New()
	a := quota.NewAccountant(s, &stubResolver{plan: limitedPlan(billing.QuotaCampaigns, 10)})
	ctx := context.Background()

	if err := a.CheckAndReserve(ctx, "t1", billing.QuotaCampaigns, 4); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := a.Release(ctx, "t1", billing.QuotaCampaigns, 3); err != nil {
		t.Fatalf("release: %v", err)
	}

	remaining, err := a.Remaining(ctx, "t1", billing.QuotaCampaigns)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 9 {
		t.Fatalf("expected 9 remaining, got %d", remaining)
	}
}

func TestRemaining(t *testing.T) {
	t.Parallel()

	s := memory.New()
	a := quota.NewAccountant(s, &stubResolver{plan: limitedPlan(billing.QuotaReports, 5)})
	ctx := context.Background()

	// No usage yet: full headroom.
	remaining, err := a.Remaining(ctx, "t1", billing.QuotaReports)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 5 {
		t.Fatalf("expected 5, got %d", remaining)
	}

	if err = a.CheckAndReserve(ctx, "t1", billing.QuotaReports, 2); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	remaining, err = a.Remaining(ctx, "t1", billing.QuotaReports)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != 3 {
		t.Fatalf("expected 3, got %d", remaining)
	}
}

func TestRemainingUnlimited(t *testing.T) {
	t.Parallel()

	a := quota.NewAccountant(memory.New(), &stubResolver{plan: limitedPlan(billing.QuotaMessages, billing.Unlimited)})

	remaining, err := a.Remaining(context.Background(), "t1", billing.QuotaMessages)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != billing.Unlimited {
		t.Fatalf("expected Unlimited, got %d", remaining)
	}
}

func TestPeriodBoundsFromSubscription(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	sub := &billing.Subscription{
		ID:                 id.NewSubscriptionID(),
		TenantID:           "t1",
		Status:             billing.StatusActive,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
	}

	s := memory.New()
	a := quota.NewAccountant(s, &stubResolver{
		plan: limitedPlan(billing.QuotaMessages, 10),
		sub:  sub,
	})
	ctx := context.Background()

	if err := a.CheckAndReserve(ctx, "t1", billing.QuotaMessages, 1); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	u, err := s.GetUsage(ctx, "t1", billing.QuotaMessages)
	if err != nil {
		t.Fatalf("get usage: %v", err)
	}
	if !u.PeriodStart.Equal(start) || !u.PeriodEnd.Equal(end) {
		t.Fatalf("counter bounds %v..%v should mirror the subscription %v..%v",
			u.PeriodStart, u.PeriodEnd, start, end)
	}
}

func TestPeriodBoundsWithoutSubscription(t *testing.T) {
	t.Parallel()

	// Tenants on the free tier have no subscription row; the accounting
	// window anchors at the current day and spans a calendar month.
	fixed := time.Date(2026, 8, 15, 13, 45, 0, 0, time.UTC)
	s := memory.New()
	a := quota.NewAccountant(s, &stubResolver{plan: limitedPlan(billing.QuotaMessages, 10)},
		quota.WithClock(func() time.Time { return fixed }),
	)
	ctx := context.Background()

	if err := a.CheckAndReserve(ctx, "t1", billing.QuotaMessages, 1); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	u, err := s.GetUsage(ctx, "t1", billing.QuotaMessages)
	if err != nil {
		t.Fatalf("get usage: %v", err)
	}
	wantStart := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	if !u.PeriodStart.Equal(wantStart) {
		t.Fatalf("expected period start %v, got %v", wantStart, u.PeriodStart)
	}
	if !u.PeriodEnd.Equal(billing.PeriodEnd(wantStart)) {
		t.Fatalf("expected one-month period, got end %v", u.PeriodEnd)
	}
}
