package job

import (
	"context"
	"time"

	"github.com/HeltonFraga01/cortexx-sub006/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// Queue filters by queue name. Empty means all queues.
	Queue string
	// TenantID filters by tenant. Empty means all tenants.
	TenantID string
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// Queue filters by queue name. Empty means all queues.
	Queue string
	// State filters by job state. Empty means all states.
	State State
}

// Store defines the persistence contract for jobs. Selection plus lock
// update in LeaseJob is a single atomic operation against the backing
// store: concurrent callers never receive the same job.
type Store interface {
	// EnqueueJob persists a new job in waiting state.
	EnqueueJob(ctx context.Context, j *Job) error

	// LeaseJob atomically claims the oldest eligible job (waiting, or
	// delayed past AvailableAt) from the given queues: sets it active,
	// records workerID as the holder, and stamps the lease expiry at
	// now+leaseFor. Returns nil when no job is eligible.
	LeaseJob(ctx context.Context, queues []string, workerID id.WorkerID, leaseFor time.Duration) (*Job, error)

	// CompleteJob marks the job completed iff workerID still holds a live
	// lease; otherwise ErrLeaseExpired, and the caller must discard its
	// result.
	CompleteJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error

	// FailJob records a failed execution iff workerID still holds a live
	// lease: increments Attempts, stores lastError, and either schedules
	// the retry (retryAt non-nil → delayed) or dead-letters (retryAt nil
	// → failed).
	FailJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, lastError string, retryAt *time.Time) error

	// HeartbeatJob extends the lease by extendBy iff workerID still holds
	// it. Long-running jobs heartbeat before expiry or lose the lease.
	HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, extendBy time.Duration) error

	// CancelJob marks a non-terminal job canceled. Active jobs keep their
	// lease; the holder observes cancellation at its next checkpoint.
	CancelJob(ctx context.Context, jobID id.JobID) error

	// ReapExpiredLeases returns active jobs whose lease expired without
	// completion or heartbeat to waiting state, clearing the lease.
	// Returns how many were reaped.
	ReapExpiredLeases(ctx context.Context) (int, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// DeleteJob removes a job by ID.
	DeleteJob(ctx context.Context, jobID id.JobID) error

	// ListJobsByState returns jobs matching the given state.
	ListJobsByState(ctx context.Context, state State, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)
}
