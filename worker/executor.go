// Package worker provides the job execution engine: an Executor that
// invokes registered handlers through middleware, and a Pool that
// manages concurrent worker goroutines leasing jobs from the store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/backoff"
	"github.com/HeltonFraga01/cortexx-sub006/dlq"
	"github.com/HeltonFraga01/cortexx-sub006/ext"
	"github.com/HeltonFraga01/cortexx-sub006/id"
	"github.com/HeltonFraga01/cortexx-sub006/job"
	"github.com/HeltonFraga01/cortexx-sub006/middleware"
	"github.com/HeltonFraga01/cortexx-sub006/queue"
)

// Executor runs a single leased job through middleware and the registered
// handler, then settles the lease: complete on success, schedule a retry
// with the queue's backoff on failure, or dead-letter once the attempt
// budget is spent.
type Executor struct {
	registry   *job.Registry
	queues     *queue.Registry
	extensions *ext.Registry
	store      job.Store
	dlqService *dlq.Service
	fallback   backoff.Strategy
	mw         middleware.Middleware
	logger     *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	queues *queue.Registry,
	extensions *ext.Registry,
	store job.Store,
	dlqService *dlq.Service,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		registry:   registry,
		queues:     queues,
		extensions: extensions,
		store:      store,
		dlqService: dlqService,
		fallback:   backoff.DefaultStrategy(),
		mw:         middleware.Chain(mws...),
		logger:     logger,
	}
}

// Execute runs a leased job through the middleware chain and handler.
// On success: completes the job, emits JobCompleted.
// On failure with attempts remaining: schedules the retry with the
// queue's backoff, emits JobRetrying.
// On failure with attempts exhausted: dead-letters the job, emits
// JobFailed + JobDLQ.
//
// Every settlement is guarded by the lease: if workerID no longer holds
// it (expired, reaped, or the job was canceled), the result is discarded.
func (e *Executor) Execute(ctx context.Context, j *job.Job, workerID id.WorkerID) error {
	handler, ok := e.registry.Get(j.Name)
	if !ok {
		// No handler will ever succeed. Dead-letter immediately instead
		// of burning the retry budget.
		noHandler := fmt.Errorf("no handler registered for job %q", j.Name)
		return e.sendToDLQ(ctx, j, workerID, noHandler)
	}

	start := time.Now()

	// The terminal handler that calls the registered job handler.
	terminal := func(ctx context.Context) error {
		return handler(ctx, j.Payload)
	}

	// Run through middleware chain.
	err := e.mw(ctx, j, terminal)
	elapsed := time.Since(start)

	if err != nil {
		return e.handleFailure(ctx, j, workerID, err)
	}

	return e.handleSuccess(ctx, j, workerID, elapsed)
}

// handleSuccess completes the job under the lease and emits the
// lifecycle event.
func (e *Executor) handleSuccess(ctx context.Context, j *job.Job, workerID id.WorkerID, elapsed time.Duration) error {
	if err := e.store.CompleteJob(ctx, j.ID, workerID); err != nil {
		if errors.Is(err, cortexx.ErrLeaseExpired) {
			e.logger.Warn("discarding result: lease lost before completion",
				slog.String("job_id", j.ID.String()),
				slog.String("job_name", j.Name),
			)
			return err
		}
		e.logger.Error("failed to complete job",
			slog.String("job_id", j.ID.String()),
			slog.String("job_name", j.Name),
			slog.String("error", err.Error()),
		)
		return err
	}

	e.extensions.EmitJobCompleted(ctx, j, elapsed)
	return nil
}

// retryPolicy resolves the effective policy for the job's queue.
func (e *Executor) retryPolicy(j *job.Job) (int, backoff.Strategy) {
	maxAttempts := j.MaxAttempts
	strategy := e.fallback

	if cfg, err := e.queues.Get(j.Queue); err == nil {
		strategy = cfg.Retry.Strategy()
		if maxAttempts <= 0 {
			maxAttempts = cfg.Retry.MaxAttempts
		}
	}
	if maxAttempts <= 0 {
		maxAttempts = queue.DefaultRetryPolicy().MaxAttempts
	}
	return maxAttempts, strategy
}

// handleFailure counts the finished attempt and either schedules a retry
// or dead-letters the job.
func (e *Executor) handleFailure(ctx context.Context, j *job.Job, workerID id.WorkerID, handlerErr error) error {
	maxAttempts, strategy := e.retryPolicy(j)
	attempt := j.Attempts + 1

	if attempt < maxAttempts {
		return e.scheduleRetry(ctx, j, workerID, handlerErr, attempt, maxAttempts, strategy)
	}

	return e.sendToDLQ(ctx, j, workerID, handlerErr)
}

// scheduleRetry records the failed attempt and defers the job until the
// backoff delay elapses.
func (e *Executor) scheduleRetry(ctx context.Context, j *job.Job, workerID id.WorkerID, handlerErr error, attempt, maxAttempts int, strategy backoff.Strategy) error {
	delay := strategy.Delay(attempt)
	retryAt := time.Now().UTC().Add(delay)

	if err := e.store.FailJob(ctx, j.ID, workerID, handlerErr.Error(), &retryAt); err != nil {
		if errors.Is(err, cortexx.ErrLeaseExpired) {
			e.logger.Warn("discarding failure: lease lost before retry scheduling",
				slog.String("job_id", j.ID.String()),
			)
			return err
		}
		e.logger.Error("failed to schedule retry",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}

	j.Attempts = attempt
	j.LastError = handlerErr.Error()
	e.extensions.EmitJobRetrying(ctx, j, attempt, retryAt)

	e.logger.Info("job scheduled for retry",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", j.Name),
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", maxAttempts),
		slog.Duration("delay", delay),
	)

	return fmt.Errorf("job %s attempt %d/%d: %w", j.Name, attempt, maxAttempts, handlerErr)
}

// sendToDLQ dead-letters the job under the lease, pushes the DLQ entry,
// and emits events.
func (e *Executor) sendToDLQ(ctx context.Context, j *job.Job, workerID id.WorkerID, handlerErr error) error {
	if err := e.store.FailJob(ctx, j.ID, workerID, handlerErr.Error(), nil); err != nil {
		if errors.Is(err, cortexx.ErrLeaseExpired) {
			e.logger.Warn("discarding failure: lease lost before dead-letter",
				slog.String("job_id", j.ID.String()),
			)
			return err
		}
		e.logger.Error("failed to dead-letter job",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return err
	}

	j.Attempts++
	j.LastError = handlerErr.Error()
	j.State = job.StateFailed

	if e.dlqService != nil {
		if dlqErr := e.dlqService.Push(ctx, j, handlerErr); dlqErr != nil {
			e.logger.Error("failed to push job to DLQ",
				slog.String("job_id", j.ID.String()),
				slog.String("error", dlqErr.Error()),
			)
		}
	}

	e.extensions.EmitJobFailed(ctx, j, handlerErr)
	e.extensions.EmitJobDLQ(ctx, j, handlerErr)

	e.logger.Warn("job moved to DLQ after exhausting attempts",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", j.Name),
		slog.Int("attempts", j.Attempts),
		slog.String("error", handlerErr.Error()),
	)

	return fmt.Errorf("job %s: %s: %w", j.Name, handlerErr.Error(), cortexx.ErrAttemptsExhausted)
}
