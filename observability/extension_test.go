package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/HeltonFraga01/cortexx-sub006/billing"
	"github.com/HeltonFraga01/cortexx-sub006/id"
	"github.com/HeltonFraga01/cortexx-sub006/job"
	"github.com/HeltonFraga01/cortexx-sub006/observability"
	"github.com/HeltonFraga01/cortexx-sub006/webhook"
)

func newTestExtension() (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

func newTestJob() *job.Job {
	return &job.Job{
		ID:       id.NewJobID(),
		Name:     "send-message",
		Queue:    "default",
		TenantID: "tenant-1",
	}
}

// counterValue sums all data points for the named Int64Counter.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: expected Sum[int64] data type", name)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_JobHooks(t *testing.T) {
	e, reader := newTestExtension()
	ctx := context.Background()
	j := newTestJob()

	if err := e.OnJobEnqueued(ctx, j); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.OnJobCompleted(ctx, j, 100*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.OnJobFailed(ctx, j, errors.New("boom")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.OnJobRetrying(ctx, j, 1, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.OnJobDLQ(ctx, j, errors.New("dead")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, name := range []string{
		"cortexx.job.enqueued",
		"cortexx.job.completed",
		"cortexx.job.failed",
		"cortexx.job.retried",
		"cortexx.job.dlq",
	} {
		if got := counterValue(t, reader, name); got != 1 {
			t.Errorf("%s: want 1, got %d", name, got)
		}
	}
}

func TestMetricsExtension_AdmissionHooks(t *testing.T) {
	e, reader := newTestExtension()
	ctx := context.Background()

	if err := e.OnRateLimitDenied(ctx, "tenant-1", 600*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.OnQuotaDenied(ctx, "tenant-1", billing.QuotaMessages, 1000, 1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := counterValue(t, reader, "cortexx.admission.rate_limited"); got != 1 {
		t.Errorf("rate_limited: want 1, got %d", got)
	}
	if got := counterValue(t, reader, "cortexx.admission.quota_denied"); got != 1 {
		t.Errorf("quota_denied: want 1, got %d", got)
	}
}

func TestMetricsExtension_BillingHooks(t *testing.T) {
	e, reader := newTestExtension()
	ctx := context.Background()

	sub := &billing.Subscription{TenantID: "tenant-1", Status: billing.StatusActive}
	ev := &webhook.Event{Type: webhook.TypeInvoicePaid, Outcome: webhook.OutcomeApplied}

	if err := e.OnSubscriptionChanged(ctx, sub, ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.OnEventResolved(ctx, ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := counterValue(t, reader, "cortexx.billing.subscription_changed"); got != 1 {
		t.Errorf("subscription_changed: want 1, got %d", got)
	}
	if got := counterValue(t, reader, "cortexx.billing.event_resolved"); got != 1 {
		t.Errorf("event_resolved: want 1, got %d", got)
	}
}

func TestMetricsExtension_DefaultNoopSafe(t *testing.T) {
	// Without a global MeterProvider the extension must not panic.
	e := observability.NewMetricsExtension()
	if err := e.OnJobEnqueued(context.Background(), newTestJob()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
