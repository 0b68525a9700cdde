package job

import (
	"time"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StateWaiting means the job is eligible for leasing.
	StateWaiting State = "waiting"
	// StateActive means a worker holds a lease and is executing the job.
	StateActive State = "active"
	// StateDelayed means the job failed and is scheduled for retry at
	// AvailableAt.
	StateDelayed State = "delayed"
	// StateCompleted means the job finished successfully.
	StateCompleted State = "completed"
	// StateFailed means the job exhausted its attempts and was
	// dead-lettered.
	StateFailed State = "failed"
	// StateCanceled means an operator canceled the job.
	StateCanceled State = "canceled"
)

// Job represents a unit of tenant-scoped work pulled by workers.
type Job struct {
	cortexx.Entity

	ID       id.JobID `json:"id"`
	Name     string   `json:"name"`
	Queue    string   `json:"queue"`
	TenantID string   `json:"tenant_id"`
	Payload  []byte   `json:"payload"`
	State    State    `json:"state"`

	// Attempts counts finished executions that failed. MaxAttempts caps
	// them before dead-lettering.
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	LastError   string `json:"last_error,omitempty"`

	// LockedBy/LockedUntil form the lease. A job has at most one holder
	// whose lease has not expired.
	LockedBy    id.WorkerID `json:"locked_by,omitempty"`
	LockedUntil *time.Time  `json:"locked_until,omitempty"`

	// AvailableAt orders dispatch (best-effort FIFO) and defers retries.
	AvailableAt time.Time `json:"available_at"`

	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}

// LeasedBy reports whether workerID currently holds a live lease on the
// job at time now.
func (j *Job) LeasedBy(workerID id.WorkerID, now time.Time) bool {
	return j.State == StateActive &&
		j.LockedBy == workerID &&
		j.LockedUntil != nil &&
		j.LockedUntil.After(now)
}

// Eligible reports whether the job can be leased at time now.
func (j *Job) Eligible(now time.Time) bool {
	if j.State != StateWaiting && j.State != StateDelayed {
		return false
	}
	return !j.AvailableAt.After(now)
}

// Terminal reports whether the job is in a final state.
func (j *Job) Terminal() bool {
	return j.State == StateCompleted || j.State == StateFailed || j.State == StateCanceled
}
