package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/HeltonFraga01/cortexx-sub006/billing"
	"github.com/HeltonFraga01/cortexx-sub006/job"
	"github.com/HeltonFraga01/cortexx-sub006/webhook"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type jobEnqueuedEntry struct {
	name string
	hook JobEnqueued
}

type jobStartedEntry struct {
	name string
	hook JobStarted
}

type jobCompletedEntry struct {
	name string
	hook JobCompleted
}

type jobFailedEntry struct {
	name string
	hook JobFailed
}

type jobRetryingEntry struct {
	name string
	hook JobRetrying
}

type jobDLQEntry struct {
	name string
	hook JobDLQ
}

type rateLimitDeniedEntry struct {
	name string
	hook RateLimitDenied
}

type quotaDeniedEntry struct {
	name string
	hook QuotaDenied
}

type subscriptionChangedEntry struct {
	name string
	hook SubscriptionChanged
}

type eventResolvedEntry struct {
	name string
	hook EventResolved
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	jobEnqueued         []jobEnqueuedEntry
	jobStarted          []jobStartedEntry
	jobCompleted        []jobCompletedEntry
	jobFailed           []jobFailedEntry
	jobRetrying         []jobRetryingEntry
	jobDLQ              []jobDLQEntry
	rateLimitDenied     []rateLimitDeniedEntry
	quotaDenied         []quotaDeniedEntry
	subscriptionChanged []subscriptionChangedEntry
	eventResolved       []eventResolvedEntry
	shutdown            []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobEnqueued); ok {
		r.jobEnqueued = append(r.jobEnqueued, jobEnqueuedEntry{name, h})
	}
	if h, ok := e.(JobStarted); ok {
		r.jobStarted = append(r.jobStarted, jobStartedEntry{name, h})
	}
	if h, ok := e.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, jobCompletedEntry{name, h})
	}
	if h, ok := e.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, jobFailedEntry{name, h})
	}
	if h, ok := e.(JobRetrying); ok {
		r.jobRetrying = append(r.jobRetrying, jobRetryingEntry{name, h})
	}
	if h, ok := e.(JobDLQ); ok {
		r.jobDLQ = append(r.jobDLQ, jobDLQEntry{name, h})
	}
	if h, ok := e.(RateLimitDenied); ok {
		r.rateLimitDenied = append(r.rateLimitDenied, rateLimitDeniedEntry{name, h})
	}
	if h, ok := e.(QuotaDenied); ok {
		r.quotaDenied = append(r.quotaDenied, quotaDeniedEntry{name, h})
	}
	if h, ok := e.(SubscriptionChanged); ok {
		r.subscriptionChanged = append(r.subscriptionChanged, subscriptionChangedEntry{name, h})
	}
	if h, ok := e.(EventResolved); ok {
		r.eventResolved = append(r.eventResolved, eventResolvedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobEnqueued notifies all extensions that implement JobEnqueued.
func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.Job) {
	for _, e := range r.jobEnqueued {
		if err := e.hook.OnJobEnqueued(ctx, j); err != nil {
			r.logHookError("OnJobEnqueued", e.name, err)
		}
	}
}

// EmitJobStarted notifies all extensions that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobStarted {
		if err := e.hook.OnJobStarted(ctx, j); err != nil {
			r.logHookError("OnJobStarted", e.name, err)
		}
	}
}

// EmitJobCompleted notifies all extensions that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		if err := e.hook.OnJobCompleted(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobCompleted", e.name, err)
		}
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobFailed", e.name, err)
		}
	}
}

// EmitJobRetrying notifies all extensions that implement JobRetrying.
func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) {
	for _, e := range r.jobRetrying {
		if err := e.hook.OnJobRetrying(ctx, j, attempt, nextRunAt); err != nil {
			r.logHookError("OnJobRetrying", e.name, err)
		}
	}
}

// EmitJobDLQ notifies all extensions that implement JobDLQ.
func (r *Registry) EmitJobDLQ(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobDLQ {
		if err := e.hook.OnJobDLQ(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobDLQ", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Admission event emitters
// ──────────────────────────────────────────────────

// EmitRateLimitDenied notifies all extensions that implement RateLimitDenied.
func (r *Registry) EmitRateLimitDenied(ctx context.Context, tenantID string, retryAfter time.Duration) {
	for _, e := range r.rateLimitDenied {
		if err := e.hook.OnRateLimitDenied(ctx, tenantID, retryAfter); err != nil {
			r.logHookError("OnRateLimitDenied", e.name, err)
		}
	}
}

// EmitQuotaDenied notifies all extensions that implement QuotaDenied.
func (r *Registry) EmitQuotaDenied(ctx context.Context, tenantID string, quotaType billing.QuotaType, used, limit int64) {
	for _, e := range r.quotaDenied {
		if err := e.hook.OnQuotaDenied(ctx, tenantID, quotaType, used, limit); err != nil {
			r.logHookError("OnQuotaDenied", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Billing event emitters
// ──────────────────────────────────────────────────

// EmitSubscriptionChanged notifies all extensions that implement SubscriptionChanged.
func (r *Registry) EmitSubscriptionChanged(ctx context.Context, sub *billing.Subscription, ev *webhook.Event) {
	for _, e := range r.subscriptionChanged {
		if err := e.hook.OnSubscriptionChanged(ctx, sub, ev); err != nil {
			r.logHookError("OnSubscriptionChanged", e.name, err)
		}
	}
}

// EmitEventResolved notifies all extensions that implement EventResolved.
func (r *Registry) EmitEventResolved(ctx context.Context, ev *webhook.Event) {
	for _, e := range r.eventResolved {
		if err := e.hook.OnEventResolved(ctx, ev); err != nil {
			r.logHookError("OnEventResolved", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated: they must not block the pipeline.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
