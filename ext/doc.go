// Package ext defines the extension system for Cortexx.
//
// Extensions are notified of lifecycle events and can react to them:
// recording metrics, emitting notifications, writing audit logs.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
//	    log.Printf("job %s completed in %s", j.ID, elapsed)
//	    return nil
//	}
//
// # Job Lifecycle Hooks
//
//   - [JobEnqueued] — job was accepted into the queue
//   - [JobStarted] — worker began executing the job
//   - [JobCompleted] — job finished successfully
//   - [JobFailed] — job failed with no retries remaining
//   - [JobRetrying] — job failed but will be retried
//   - [JobDLQ] — job was moved to the dead letter queue
//
// # Admission Hooks
//
//   - [RateLimitDenied] — an enqueue was rejected by the tenant rate limiter
//   - [QuotaDenied] — an enqueue was rejected by a tenant quota
//
// # Billing Lifecycle Hooks
//
//   - [SubscriptionChanged] — a webhook event mutated a subscription
//   - [EventResolved] — a webhook event reached a terminal outcome
//
// # Other Hooks
//
//   - [Shutdown] — the engine is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
