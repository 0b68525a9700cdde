// Package engine wires all Cortexx subsystems together. It creates the
// extension registry, job registry, governance services (rate limiter,
// quota accountant, webhook reconciler), middleware chain, and worker
// pool, and provides the admission-checked Enqueue operation.
//
// This package exists to break the import cycle: the root cortexx package
// defines Entity (imported by job, billing, etc.) and so cannot import
// those packages back. The engine package sits above all subsystem
// packages and below the application layer.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/billing"
	"github.com/HeltonFraga01/cortexx-sub006/cache"
	"github.com/HeltonFraga01/cortexx-sub006/cluster"
	"github.com/HeltonFraga01/cortexx-sub006/dlq"
	"github.com/HeltonFraga01/cortexx-sub006/ext"
	"github.com/HeltonFraga01/cortexx-sub006/id"
	"github.com/HeltonFraga01/cortexx-sub006/job"
	mw "github.com/HeltonFraga01/cortexx-sub006/middleware"
	"github.com/HeltonFraga01/cortexx-sub006/observability"
	"github.com/HeltonFraga01/cortexx-sub006/queue"
	"github.com/HeltonFraga01/cortexx-sub006/quota"
	"github.com/HeltonFraga01/cortexx-sub006/ratelimit"
	"github.com/HeltonFraga01/cortexx-sub006/scope"
	"github.com/HeltonFraga01/cortexx-sub006/webhook"
	"github.com/HeltonFraga01/cortexx-sub006/worker"
)

const meterName = "github.com/HeltonFraga01/cortexx-sub006"

// extHooks adapts *ext.Registry to satisfy webhook.Hooks. This breaks the
// import cycle: webhook defines the interface, ext.Registry provides the
// implementation, and the engine layer plugs them together.
type extHooks struct {
	r *ext.Registry
}

func (a *extHooks) SubscriptionChanged(ctx context.Context, sub *billing.Subscription, ev *webhook.Event) {
	a.r.EmitSubscriptionChanged(ctx, sub, ev)
}

func (a *extHooks) EventResolved(ctx context.Context, ev *webhook.Event) {
	a.r.EmitEventResolved(ctx, ev)
}

// Engine wraps a Core with typed subsystem access.
// Use Build() to create one from a Core.
type Engine struct {
	core       *cortexx.Core
	extensions *ext.Registry
	registry   *job.Registry
	jobStore   job.Store
	dlqService *dlq.Service
	pool       *worker.Pool
	mws        []mw.Middleware
	logger     *slog.Logger

	// Governance subsystem.
	caches      cache.Cache
	limiter     *ratelimit.Limiter
	accountant  *quota.Accountant
	resolver    *planResolver
	reconciler  *webhook.Reconciler
	queueQuotas map[string]billing.QuotaType
	defaultPlan string

	// Queue subsystem.
	queues       *queue.Registry
	queueConfigs []queue.Config
	queueManager *queue.Manager

	// Cluster subsystem.
	clusterStore cluster.Store

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithQueueConfig registers queue configurations: retry policy, payload
// limit, per-queue concurrency, and dispatch rate.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(eng *Engine) {
		eng.queueConfigs = append(eng.queueConfigs, configs...)
	}
}

// WithCache sets the cache backend for subscription and plan projections.
// Defaults to the in-process memory cache.
func WithCache(c cache.Cache) Option {
	return func(eng *Engine) {
		eng.caches = c
	}
}

// WithQueueQuota binds enqueues to a queue to a plan quota type. Enqueues
// to queues without a binding are rate-limited but not quota-metered.
func WithQueueQuota(queueName string, q billing.QuotaType) Option {
	return func(eng *Engine) {
		eng.queueQuotas[queueName] = q
	}
}

// WithDefaultPlanSlug sets the plan applied to tenants that have no
// subscription row (the free tier). Defaults to "free".
func WithDefaultPlanSlug(slug string) Option {
	return func(eng *Engine) {
		eng.defaultPlan = slug
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the global one.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// When set, both the metrics middleware and the observability extension
// use this provider instead of the global one.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build creates an Engine from an existing Core. The Core's store must
// implement every subsystem store interface (store.Store does).
func Build(core *cortexx.Core, opts ...Option) (*Engine, error) {
	logger := core.Logger()
	st := core.Store()

	if st == nil {
		return nil, cortexx.ErrNoStore
	}

	js, ok := st.(job.Store)
	if !ok {
		return nil, fmt.Errorf("cortexx: store does not implement job.Store")
	}
	ds, ok := st.(dlq.Store)
	if !ok {
		return nil, fmt.Errorf("cortexx: store does not implement dlq.Store")
	}
	bs, ok := st.(billing.Store)
	if !ok {
		return nil, fmt.Errorf("cortexx: store does not implement billing.Store")
	}
	rs, ok := st.(ratelimit.Store)
	if !ok {
		return nil, fmt.Errorf("cortexx: store does not implement ratelimit.Store")
	}
	qs, ok := st.(quota.Store)
	if !ok {
		return nil, fmt.Errorf("cortexx: store does not implement quota.Store")
	}
	ws, ok := st.(webhook.Store)
	if !ok {
		return nil, fmt.Errorf("cortexx: store does not implement webhook.Store")
	}
	cls, ok := st.(cluster.Store)
	if !ok {
		return nil, fmt.Errorf("cortexx: store does not implement cluster.Store")
	}

	eng := &Engine{
		core:        core,
		extensions:  ext.NewRegistry(logger),
		registry:    job.NewRegistry(),
		jobStore:    js,
		logger:      logger,
		defaultPlan: "free",
		queueQuotas: map[string]billing.QuotaType{
			"campaigns": billing.QuotaCampaigns,
			"imports":   billing.QuotaImports,
			"reports":   billing.QuotaReports,
		},
		clusterStore: cls,
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.caches == nil {
		eng.caches = cache.NewMemory()
	}

	config := core.Config()

	// Every queue the pool polls must be registered; unconfigured queues
	// get the registry defaults.
	eng.queues = queue.NewRegistry(eng.queueConfigs...)
	for _, name := range config.Queues {
		if _, err := eng.queues.Get(name); err != nil {
			eng.queues.Register(queue.Config{Name: name})
		}
	}

	eng.dlqService = dlq.NewService(ds, js)

	// Governance services.
	eng.resolver = &planResolver{
		billing:     bs,
		caches:      eng.caches,
		subTTL:      config.SubscriptionTTL,
		planTTL:     config.PlanTTL,
		defaultSlug: eng.defaultPlan,
	}
	eng.limiter = ratelimit.NewLimiter(rs, ratelimit.WithLogger(logger))
	eng.accountant = quota.NewAccountant(qs, eng.resolver, quota.WithLogger(logger))

	eng.reconciler = webhook.NewReconciler(ws, bs, eng.caches, eng.limiter, config.WebhookSecret,
		webhook.WithLogger(logger),
		webhook.WithTolerance(config.WebhookTolerance),
		webhook.WithTimeout(config.WebhookTimeout),
		webhook.WithHooks(&extHooks{r: eng.extensions}),
	)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer(meterName)
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter(meterName)
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter(meterName + "/observability")
		obsExt = observability.NewMetricsExtensionWithMeter(meter)
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	// Default middleware stack: recover → tracing → metrics → logging →
	// scope → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Scope(),
		mw.Timeout(logger),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	executor := worker.NewExecutor(eng.registry, eng.queues, eng.extensions, js, eng.dlqService, logger, allMws...)

	poolOpts := []worker.PoolOption{
		worker.WithPoolConcurrency(config.Concurrency),
		worker.WithPoolQueues(config.Queues),
		worker.WithPollInterval(config.PollInterval),
		worker.WithLeaseDuration(config.LeaseDuration),
		worker.WithHeartbeatInterval(config.HeartbeatInterval),
		worker.WithReaperInterval(config.ReaperInterval),
		worker.WithClusterStore(cls),
	}

	if len(eng.queueConfigs) > 0 {
		eng.queueManager = queue.NewManager(eng.queueConfigs...)
		poolOpts = append(poolOpts, worker.WithQueueManager(eng.queueManager))
	}

	eng.pool = worker.NewPool(
		eng.jobStore,
		executor,
		eng.extensions,
		logger,
		poolOpts...,
	)

	// Wire back into the Core.
	core.SetPool(eng.pool)
	core.SetExtensions(eng.extensions)

	return eng, nil
}

// Register registers a typed job definition with the engine.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.registry, def)
}

// Enqueue runs the admission pipeline and enqueues a job with a typed
// payload. The tenant is taken from the context scope; see EnqueueRaw for
// the admission steps.
func Enqueue[T any](ctx context.Context, eng *Engine, name string, payload T, opts ...job.Option) (*job.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for job %q: %w", name, err)
	}

	return eng.EnqueueRaw(ctx, name, data, opts...)
}

// EnqueueRaw enqueues a job with a pre-serialized payload, running the
// full admission pipeline first:
//
//  1. queue validation and payload size limit,
//  2. per-tenant token-bucket rate limit,
//  3. quota reservation for queues bound to a quota type.
//
// Quota is reserved before the job enters the queue; if the enqueue
// itself fails, the reservation is released. Jobs enqueued without a
// tenant in scope (internal work) skip tenant governance entirely.
func (eng *Engine) EnqueueRaw(ctx context.Context, name string, payload []byte, opts ...job.Option) (*job.Job, error) {
	jobOpts := job.DefaultOptions()
	for _, opt := range opts {
		opt(&jobOpts)
	}

	if _, err := eng.queues.Get(jobOpts.Queue); err != nil {
		return nil, err
	}
	if err := eng.queues.ValidatePayload(jobOpts.Queue, payload); err != nil {
		return nil, err
	}

	tenantID := scope.Capture(ctx)

	var (
		reservedType billing.QuotaType
		reserved     bool
	)
	if tenantID != "" {
		if err := eng.admit(ctx, tenantID, jobOpts.Queue); err != nil {
			return nil, err
		}
		if q, ok := eng.queueQuotas[jobOpts.Queue]; ok {
			reservedType, reserved = q, true
		}
	}

	now := time.Now().UTC()
	j := &job.Job{
		Entity:      cortexx.NewEntity(),
		ID:          id.NewJobID(),
		Name:        name,
		Queue:       jobOpts.Queue,
		TenantID:    tenantID,
		Payload:     payload,
		State:       job.StateWaiting,
		MaxAttempts: jobOpts.MaxAttempts,
		Timeout:     jobOpts.Timeout,
		AvailableAt: now,
	}
	if !jobOpts.AvailableAt.IsZero() {
		j.AvailableAt = jobOpts.AvailableAt.UTC()
	}

	if err := eng.jobStore.EnqueueJob(ctx, j); err != nil {
		if reserved {
			// Compensate the reservation: the work never entered the queue.
			if relErr := eng.accountant.Release(ctx, tenantID, reservedType, 1); relErr != nil {
				eng.logger.Error("failed to release quota after enqueue error",
					slog.String("tenant_id", tenantID),
					slog.String("error", relErr.Error()),
				)
			}
		}
		return nil, err
	}

	eng.extensions.EmitJobEnqueued(ctx, j)
	return j, nil
}

// admit runs tenant governance for one enqueue: rate limit first, then
// quota reservation. Plan resolution fails closed: a tenant whose plan
// cannot be verified is not admitted.
func (eng *Engine) admit(ctx context.Context, tenantID, queueName string) error {
	plan, _, err := eng.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return err
	}

	d, err := eng.limiter.TryAcquire(ctx, tenantID, plan, 1)
	if err != nil {
		return err
	}
	if !d.Allowed {
		eng.extensions.EmitRateLimitDenied(ctx, tenantID, d.RetryAfter)
		return &cortexx.RateLimitError{TenantID: tenantID, RetryAfter: d.RetryAfter}
	}

	q, ok := eng.queueQuotas[queueName]
	if !ok {
		return nil
	}
	if err := eng.accountant.CheckAndReserve(ctx, tenantID, q, 1); err != nil {
		var qe *cortexx.QuotaError
		if errors.As(err, &qe) {
			eng.extensions.EmitQuotaDenied(ctx, tenantID, q, qe.Used, qe.Limit)
		}
		return err
	}
	return nil
}

// CancelJob marks a non-terminal job canceled. A worker holding the job
// observes cancellation on its next heartbeat, which cancels the running
// handler's context; any settlement it still attempts fails the lease
// check and is discarded.
func (eng *Engine) CancelJob(ctx context.Context, jobID id.JobID) error {
	return eng.jobStore.CancelJob(ctx, jobID)
}

// Ingest hands one raw payment-processor delivery to the reconciler.
func (eng *Engine) Ingest(ctx context.Context, rawBody []byte, sigHeader string) (*webhook.Event, error) {
	return eng.reconciler.Ingest(ctx, rawBody, sigHeader)
}

// Start begins job processing by starting the worker pool.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.core.Start(ctx)
}

// Stop gracefully shuts down the engine.
func (eng *Engine) Stop(ctx context.Context) error {
	return eng.core.Stop(ctx)
}

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Core returns the underlying Core.
func (eng *Engine) Core() *cortexx.Core { return eng.core }

// DLQService returns the engine's DLQ service for replay and inspection.
func (eng *Engine) DLQService() *dlq.Service { return eng.dlqService }

// Limiter returns the tenant rate limiter. The HTTP layer uses it
// directly for non-enqueue admission checks.
func (eng *Engine) Limiter() *ratelimit.Limiter { return eng.limiter }

// Accountant returns the quota accountant.
func (eng *Engine) Accountant() *quota.Accountant { return eng.accountant }

// Reconciler returns the webhook reconciler.
func (eng *Engine) Reconciler() *webhook.Reconciler { return eng.reconciler }

// Cache returns the cache backend.
func (eng *Engine) Cache() cache.Cache { return eng.caches }

// Queues returns the queue registry.
func (eng *Engine) Queues() *queue.Registry { return eng.queues }

// QueueManager returns the queue manager, or nil if no queue configs
// were provided.
func (eng *Engine) QueueManager() *queue.Manager { return eng.queueManager }

// ClusterStore returns the cluster registry for operator visibility.
func (eng *Engine) ClusterStore() cluster.Store { return eng.clusterStore }

// WorkerID returns this instance's worker identifier.
func (eng *Engine) WorkerID() id.WorkerID { return eng.pool.WorkerID() }
