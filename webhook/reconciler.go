package webhook

import (
	"context"
	"errors"
	"log/slog"
	"time"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/billing"
	"github.com/HeltonFraga01/cortexx-sub006/cache"
)

// LimiterInvalidator drops a tenant's rate bucket so the next admission
// re-derives capacity from the current plan.
type LimiterInvalidator interface {
	Invalidate(ctx context.Context, tenantID string) error
}

// Hooks receives reconciliation lifecycle notifications. The engine wires
// these into the extension registry for metrics and audit.
type Hooks interface {
	SubscriptionChanged(ctx context.Context, sub *billing.Subscription, ev *Event)
	EventResolved(ctx context.Context, ev *Event)
}

// nopHooks is used when no hooks are configured.
type nopHooks struct{}

func (nopHooks) SubscriptionChanged(context.Context, *billing.Subscription, *Event) {}
func (nopHooks) EventResolved(context.Context, *Event)                              {}

// Reconciler ingests raw processor deliveries: verify, dedup through the
// ledger, transition, persist, invalidate. The HTTP framing around it is
// an external collaborator; this type only ever sees raw bodies and
// signature headers.
type Reconciler struct {
	ledger  Store
	billing billing.Store
	caches  cache.Cache
	limiter LimiterInvalidator
	hooks   Hooks

	secret    string
	tolerance time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithHooks sets lifecycle hooks.
func WithHooks(h Hooks) ReconcilerOption {
	return func(r *Reconciler) { r.hooks = h }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) ReconcilerOption {
	return func(r *Reconciler) { r.logger = l }
}

// WithTolerance bounds how old a signed timestamp may be.
func WithTolerance(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) { r.tolerance = d }
}

// WithTimeout sets the hard processing deadline per ingestion. Past it
// the delivery fails and the processor retries; ledger dedup makes the
// retry safe.
func WithTimeout(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) { r.timeout = d }
}

// NewReconciler creates a Reconciler.
func NewReconciler(ledger Store, billingStore billing.Store, caches cache.Cache, limiter LimiterInvalidator, secret string, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		ledger:    ledger,
		billing:   billingStore,
		caches:    caches,
		limiter:   limiter,
		hooks:     nopHooks{},
		secret:    secret,
		tolerance: 5 * time.Minute,
		timeout:   20 * time.Second,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Ingest processes one raw delivery. Signature failures are rejected
// before any state mutation and never enter the ledger, so a legitimately
// re-signed retry can still succeed. Duplicate deliveries short-circuit
// to the recorded outcome.
func (r *Reconciler) Ingest(ctx context.Context, rawBody []byte, sigHeader string) (*Event, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := VerifySignature(rawBody, sigHeader, r.secret, r.tolerance); err != nil {
		r.logger.Warn("webhook signature rejected", slog.String("error", err.Error()))
		return nil, err
	}

	ev, err := ParseEvent(rawBody)
	if err != nil {
		return nil, err
	}

	// The unique insert on ExternalEventID is the sole serialization
	// point between duplicate concurrent deliveries.
	recorded, created, err := r.ledger.RecordEvent(ctx, ev)
	if err != nil {
		return nil, err
	}
	if !created {
		if recorded.ProcessedAt != nil {
			r.logger.Info("duplicate webhook delivery short-circuited",
				slog.String("external_event_id", recorded.ExternalEventID),
				slog.String("outcome", string(recorded.Outcome)),
			)
			return recorded, nil
		}
		// A pending row means a previous ingestion crashed between the
		// ledger insert and applying effects; fall through and resolve it.
		ev = recorded
	}

	current, err := r.billing.GetSubscription(ctx, ev.TenantID)
	if err != nil {
		if !cortexx.IsNotFound(err) {
			return nil, err
		}
		current = nil
	}

	d := Transition(current, ev)

	if d.Next != nil && ev.PlanSlug != "" {
		plan, planErr := r.billing.GetPlanBySlug(ctx, ev.PlanSlug)
		if planErr != nil {
			// Unknown plan is a configuration gap; fail the delivery so
			// the processor retries after the plan is provisioned.
			return nil, planErr
		}
		d.Next.PlanID = plan.ID
	}

	res := &Resolution{
		ExternalEventID: ev.ExternalEventID,
		Outcome:         d.Outcome,
		Reason:          d.Reason,
		Subscription:    d.Next,
		Rollover:        d.Rollover,
		TenantID:        ev.TenantID,
		PeriodStart:     d.PeriodStart,
		PeriodEnd:       d.PeriodEnd,
	}
	if err := r.ledger.ApplyResolution(ctx, res); err != nil {
		if errors.Is(err, cortexx.ErrDuplicateEvent) {
			// A concurrent delivery of the same event won the resolution
			// race and its effects are already applied. Return its recorded
			// outcome so every delivery of this event reports the same
			// result, and fire nothing again.
			recorded, getErr := r.ledger.GetEvent(ctx, ev.ExternalEventID)
			if getErr != nil {
				return nil, getErr
			}
			r.logger.Info("concurrent duplicate delivery short-circuited",
				slog.String("external_event_id", recorded.ExternalEventID),
				slog.String("outcome", string(recorded.Outcome)),
			)
			return recorded, nil
		}
		return nil, err
	}

	now := time.Now().UTC()
	ev.Outcome = d.Outcome
	ev.Reason = d.Reason
	ev.ProcessedAt = &now

	if d.Outcome == OutcomeApplied {
		r.invalidate(ctx, ev.TenantID, d.Rollover)
		r.hooks.SubscriptionChanged(ctx, d.Next, ev)

		r.logger.Info("webhook event applied",
			slog.String("external_event_id", ev.ExternalEventID),
			slog.String("type", string(ev.Type)),
			slog.String("tenant_id", ev.TenantID),
			slog.String("status", string(d.Next.Status)),
			slog.Bool("rollover", d.Rollover),
		)
	}
	r.hooks.EventResolved(ctx, ev)

	return ev, nil
}

// invalidate drops every cached projection derived from the tenant's
// billing state, in the same logical operation as the mutation. Cache
// invalidation failures are logged, not fatal: staleness stays bounded by
// TTL.
func (r *Reconciler) invalidate(ctx context.Context, tenantID string, rollover bool) {
	if err := r.caches.Invalidate(ctx, cache.SubscriptionKey(tenantID)); err != nil {
		r.logger.Warn("subscription cache invalidation failed",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
	}
	if rollover {
		if err := r.caches.InvalidatePrefix(ctx, cache.QuotaPrefix(tenantID)); err != nil {
			r.logger.Warn("quota cache invalidation failed",
				slog.String("tenant_id", tenantID),
				slog.String("error", err.Error()),
			)
		}
	}
	if r.limiter != nil {
		if err := r.limiter.Invalidate(ctx, tenantID); err != nil {
			r.logger.Warn("rate bucket invalidation failed",
				slog.String("tenant_id", tenantID),
				slog.String("error", err.Error()),
			)
		}
	}
}
