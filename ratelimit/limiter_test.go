package ratelimit_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/HeltonFraga01/cortexx-sub006/billing"
	"github.com/HeltonFraga01/cortexx-sub006/id"
	"github.com/HeltonFraga01/cortexx-sub006/ratelimit"
	"github.com/HeltonFraga01/cortexx-sub006/store/memory"
)

// fakeClock is a mutable time source shared with the limiter under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testPlan(capacity, refill float64) *billing.Plan {
	return &billing.Plan{
		ID:              id.NewPlanID(),
		Name:            "Pro",
		Slug:            "pro",
		Capacity:        capacity,
		RefillPerSecond: refill,
	}
}

func TestTryAcquireFreshBucketStartsFull(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	lm := ratelimit.NewLimiter(memory.New(), ratelimit.WithClock(clock.Now))
	plan := testPlan(10, 1)

	d, err := lm.TryAcquire(context.Background(), "t1", plan, 1)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !d.Allowed {
		t.Fatal("first acquire on a fresh bucket should be allowed")
	}
	if d.Remaining != 9 {
		t.Fatalf("expected 9 remaining, got %v", d.Remaining)
	}
	if d.Capacity != 10 {
		t.Fatalf("expected capacity 10, got %v", d.Capacity)
	}
}

func TestTryAcquireDeniesWhenDrained(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	lm := ratelimit.NewLimiter(memory.New(), ratelimit.WithClock(clock.Now))
	plan := testPlan(2, 1)
	ctx := context.Background()

	for i := range 2 {
		d, err := lm.TryAcquire(ctx, "t1", plan, 1)
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("acquire %d should be allowed", i)
		}
	}

	d, err := lm.TryAcquire(ctx, "t1", plan, 1)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if d.Allowed {
		t.Fatal("drained bucket should deny")
	}
	if d.Remaining != 0 {
		t.Fatalf("expected 0 remaining, got %v", d.Remaining)
	}
	// One token short at 1 token/s: retry in one second.
	if d.RetryAfter != time.Second {
		t.Fatalf("expected 1s retry-after, got %v", d.RetryAfter)
	}
}

func TestTryAcquireRefillsOverTime(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	lm := ratelimit.NewLimiter(memory.New(), ratelimit.WithClock(clock.Now))
	plan := testPlan(2, 1)
	ctx := context.Background()

	for range 2 {
		if _, err := lm.TryAcquire(ctx, "t1", plan, 1); err != nil {
			t.Fatalf("drain: %v", err)
		}
	}

	// Five seconds elapse, but the bucket clamps at capacity 2.
	clock.Advance(5 * time.Second)

	d, err := lm.TryAcquire(ctx, "t1", plan, 1)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !d.Allowed {
		t.Fatal("refilled bucket should admit")
	}
	if d.Remaining != 1 {
		t.Fatalf("expected 1 remaining after clamped refill, got %v", d.Remaining)
	}
}

func TestTryAcquireZeroRefillNeverRecovers(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	lm := ratelimit.NewLimiter(memory.New(), ratelimit.WithClock(clock.Now))
	plan := testPlan(1, 0)
	ctx := context.Background()

	if _, err := lm.TryAcquire(ctx, "t1", plan, 1); err != nil {
		t.Fatalf("drain: %v", err)
	}

	d, err := lm.TryAcquire(ctx, "t1", plan, 1)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if d.Allowed {
		t.Fatal("zero-refill bucket should deny once drained")
	}
	if d.RetryAfter != time.Duration(math.MaxInt64) {
		t.Fatalf("expected unbounded retry-after, got %v", d.RetryAfter)
	}
}

func TestTryAcquirePlanChangeRederivesImmediately(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	lm := ratelimit.NewLimiter(memory.New(), ratelimit.WithClock(clock.Now))
	ctx := context.Background()

	big := testPlan(100, 10)
	if _, err := lm.TryAcquire(ctx, "t1", big, 1); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Downgrade takes effect on the very next check: capacity shrinks
	// and accumulated tokens clamp to the new ceiling.
	small := testPlan(2, 1)
	d, err := lm.TryAcquire(ctx, "t1", small, 1)
	if err != nil {
		t.Fatalf("acquire after downgrade: %v", err)
	}
	if d.Capacity != 2 {
		t.Fatalf("expected capacity 2 after downgrade, got %v", d.Capacity)
	}
	if !d.Allowed {
		t.Fatal("clamped bucket still had tokens")
	}
	if d.Remaining != 1 {
		t.Fatalf("expected 1 remaining after clamp, got %v", d.Remaining)
	}
}

func TestInvalidateResetsBucket(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	lm := ratelimit.NewLimiter(memory.New(), ratelimit.WithClock(clock.Now))
	plan := testPlan(1, 0)
	ctx := context.Background()

	if _, err := lm.TryAcquire(ctx, "t1", plan, 1); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if err := lm.Invalidate(ctx, "t1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	d, err := lm.TryAcquire(ctx, "t1", plan, 1)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !d.Allowed {
		t.Fatal("invalidation should rebuild a full bucket")
	}

	// Invalidating a tenant with no bucket is a no-op.
	if err := lm.Invalidate(ctx, "nobody"); err != nil {
		t.Fatalf("invalidate absent: %v", err)
	}
}

func TestTenantsAreIndependent(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	lm := ratelimit.NewLimiter(memory.New(), ratelimit.WithClock(clock.Now))
	plan := testPlan(1, 0)
	ctx := context.Background()

	if _, err := lm.TryAcquire(ctx, "t1", plan, 1); err != nil {
		t.Fatalf("drain t1: %v", err)
	}

	d, err := lm.TryAcquire(ctx, "t2", plan, 1)
	if err != nil {
		t.Fatalf("acquire t2: %v", err)
	}
	if !d.Allowed {
		t.Fatal("draining t1 must not affect t2")
	}
}

func TestTryAcquireConcurrentNeverOveradmits(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	lm := ratelimit.NewLimiter(memory.New(), ratelimit.WithClock(clock.Now))
	plan := testPlan(10, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := lm.TryAcquire(ctx, "t1", plan, 1)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if d.Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 10 {
		t.Fatalf("expected exactly 10 admissions, got %d", admitted)
	}
}
