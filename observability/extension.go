package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/HeltonFraga01/cortexx-sub006/billing"
	"github.com/HeltonFraga01/cortexx-sub006/ext"
	"github.com/HeltonFraga01/cortexx-sub006/job"
	"github.com/HeltonFraga01/cortexx-sub006/webhook"
)

// meterName is the instrumentation scope name for cortexx observability.
const meterName = "github.com/HeltonFraga01/cortexx-sub006/observability"

// Compile-time interface checks.
var (
	_ ext.Extension           = (*MetricsExtension)(nil)
	_ ext.JobEnqueued         = (*MetricsExtension)(nil)
	_ ext.JobCompleted        = (*MetricsExtension)(nil)
	_ ext.JobFailed           = (*MetricsExtension)(nil)
	_ ext.JobRetrying         = (*MetricsExtension)(nil)
	_ ext.JobDLQ              = (*MetricsExtension)(nil)
	_ ext.RateLimitDenied     = (*MetricsExtension)(nil)
	_ ext.QuotaDenied         = (*MetricsExtension)(nil)
	_ ext.SubscriptionChanged = (*MetricsExtension)(nil)
	_ ext.EventResolved       = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle counters via OpenTelemetry.
// Register it as a Cortexx extension to automatically track enqueue rates,
// completion counts, failure rates, retry counts, DLQ entries, admission
// denials, and webhook reconciliation outcomes.
type MetricsExtension struct {
	jobEnqueued         metric.Int64Counter
	jobCompleted        metric.Int64Counter
	jobFailed           metric.Int64Counter
	jobRetried          metric.Int64Counter
	jobDLQ              metric.Int64Counter
	rateLimitDenied     metric.Int64Counter
	quotaDenied         metric.Int64Counter
	subscriptionChanged metric.Int64Counter
	eventResolved       metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global
// MeterProvider. If none is configured, noop instruments are used.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. This variant allows injecting a specific MeterProvider for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	m := &MetricsExtension{}
	// On error the OTel API returns noop instruments, so the extension
	// degrades gracefully.
	m.jobEnqueued, _ = meter.Int64Counter("cortexx.job.enqueued",
		metric.WithDescription("Total jobs accepted into the queue"))
	m.jobCompleted, _ = meter.Int64Counter("cortexx.job.completed",
		metric.WithDescription("Total jobs completed successfully"))
	m.jobFailed, _ = meter.Int64Counter("cortexx.job.failed",
		metric.WithDescription("Total jobs failed terminally"))
	m.jobRetried, _ = meter.Int64Counter("cortexx.job.retried",
		metric.WithDescription("Total job retry attempts scheduled"))
	m.jobDLQ, _ = meter.Int64Counter("cortexx.job.dlq",
		metric.WithDescription("Total jobs moved to the dead letter queue"))
	m.rateLimitDenied, _ = meter.Int64Counter("cortexx.admission.rate_limited",
		metric.WithDescription("Total enqueues rejected by the tenant rate limiter"))
	m.quotaDenied, _ = meter.Int64Counter("cortexx.admission.quota_denied",
		metric.WithDescription("Total enqueues rejected by tenant quotas"))
	m.subscriptionChanged, _ = meter.Int64Counter("cortexx.billing.subscription_changed",
		metric.WithDescription("Total subscription mutations applied by webhook events"))
	m.eventResolved, _ = meter.Int64Counter("cortexx.billing.event_resolved",
		metric.WithDescription("Total webhook events resolved, by outcome"))
	return m
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	m.jobEnqueued.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", j.Queue)))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.jobCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", j.Queue)))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, _ error) error {
	m.jobFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", j.Queue)))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ int, _ time.Time) error {
	m.jobRetried.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", j.Queue)))
	return nil
}

// OnJobDLQ implements ext.JobDLQ.
func (m *MetricsExtension) OnJobDLQ(ctx context.Context, j *job.Job, _ error) error {
	m.jobDLQ.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", j.Queue)))
	return nil
}

// ── Admission hooks ─────────────────────────────────

// OnRateLimitDenied implements ext.RateLimitDenied.
func (m *MetricsExtension) OnRateLimitDenied(ctx context.Context, _ string, _ time.Duration) error {
	m.rateLimitDenied.Add(ctx, 1)
	return nil
}

// OnQuotaDenied implements ext.QuotaDenied.
func (m *MetricsExtension) OnQuotaDenied(ctx context.Context, _ string, quotaType billing.QuotaType, _, _ int64) error {
	m.quotaDenied.Add(ctx, 1, metric.WithAttributes(attribute.String("quota_type", string(quotaType))))
	return nil
}

// ── Billing lifecycle hooks ─────────────────────────

// OnSubscriptionChanged implements ext.SubscriptionChanged.
func (m *MetricsExtension) OnSubscriptionChanged(ctx context.Context, sub *billing.Subscription, _ *webhook.Event) error {
	m.subscriptionChanged.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(sub.Status))))
	return nil
}

// OnEventResolved implements ext.EventResolved.
func (m *MetricsExtension) OnEventResolved(ctx context.Context, ev *webhook.Event) error {
	m.eventResolved.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", string(ev.Type)),
		attribute.String("outcome", string(ev.Outcome)),
	))
	return nil
}
