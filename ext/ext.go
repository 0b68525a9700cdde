package ext

import (
	"context"
	"time"

	"github.com/HeltonFraga01/cortexx-sub006/billing"
	"github.com/HeltonFraga01/cortexx-sub006/job"
	"github.com/HeltonFraga01/cortexx-sub006/webhook"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobEnqueued is called after a job is successfully enqueued.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a worker begins executing a job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when a job fails terminally (no more retries).
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobRetrying is called when a job fails but is scheduled for retry.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error
}

// JobDLQ is called when a job is moved to the dead letter queue.
type JobDLQ interface {
	OnJobDLQ(ctx context.Context, j *job.Job, err error) error
}

// ──────────────────────────────────────────────────
// Admission hooks
// ──────────────────────────────────────────────────

// RateLimitDenied is called when an enqueue is rejected by the tenant
// rate limiter.
type RateLimitDenied interface {
	OnRateLimitDenied(ctx context.Context, tenantID string, retryAfter time.Duration) error
}

// QuotaDenied is called when an enqueue is rejected because a tenant
// quota is exhausted.
type QuotaDenied interface {
	OnQuotaDenied(ctx context.Context, tenantID string, quotaType billing.QuotaType, used, limit int64) error
}

// ──────────────────────────────────────────────────
// Billing lifecycle hooks
// ──────────────────────────────────────────────────

// SubscriptionChanged is called after a webhook event mutated a tenant's
// subscription. The event carries the resolution outcome.
type SubscriptionChanged interface {
	OnSubscriptionChanged(ctx context.Context, sub *billing.Subscription, ev *webhook.Event) error
}

// EventResolved is called after every ingested webhook event reaches a
// terminal outcome (applied, discarded, or ignored).
type EventResolved interface {
	OnEventResolved(ctx context.Context, ev *webhook.Event) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
