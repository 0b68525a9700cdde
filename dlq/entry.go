package dlq

import (
	"time"

	"github.com/HeltonFraga01/cortexx-sub006/id"
)

// Entry represents a job that has exhausted its retry budget and been
// moved to the dead letter queue for inspection or replay.
type Entry struct {
	ID          id.DLQID   `json:"id"`
	JobID       id.JobID   `json:"job_id"`
	JobName     string     `json:"job_name"`
	Queue       string     `json:"queue"`
	TenantID    string     `json:"tenant_id"`
	Payload     []byte     `json:"payload"`
	Error       string     `json:"error"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	FailedAt    time.Time  `json:"failed_at"`
	ReplayedAt  *time.Time `json:"replayed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
