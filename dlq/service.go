package dlq

import (
	"context"
	"time"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/id"
	"github.com/HeltonFraga01/cortexx-sub006/job"
)

// Service provides high-level DLQ operations over a Store.
type Service struct {
	store    Store
	jobStore job.Store
}

// NewService creates a DLQ service.
func NewService(store Store, jobStore job.Store) *Service {
	return &Service{store: store, jobStore: jobStore}
}

// Push builds a DLQ Entry from a dead-lettered job and persists it.
// The error string is captured from the final handler error.
func (s *Service) Push(ctx context.Context, j *job.Job, jobErr error) error {
	now := time.Now().UTC()
	entry := &Entry{
		ID:          id.NewDLQID(),
		JobID:       j.ID,
		JobName:     j.Name,
		Queue:       j.Queue,
		TenantID:    j.TenantID,
		Payload:     j.Payload,
		Error:       jobErr.Error(),
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		FailedAt:    now,
		CreatedAt:   now,
	}
	return s.store.PushDLQ(ctx, entry)
}

// Replay re-enqueues a DLQ entry as a new waiting job and marks the
// entry as replayed. The new job gets a fresh ID, a zero attempt count,
// and runs immediately under the same tenant.
func (s *Service) Replay(ctx context.Context, entryID id.DLQID) (*job.Job, error) {
	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return nil, err
	}

	j := &job.Job{
		Entity:      cortexx.NewEntity(),
		ID:          id.NewJobID(),
		Name:        entry.JobName,
		Queue:       entry.Queue,
		TenantID:    entry.TenantID,
		Payload:     entry.Payload,
		State:       job.StateWaiting,
		MaxAttempts: entry.MaxAttempts,
		AvailableAt: time.Now().UTC(),
	}

	if err := s.jobStore.EnqueueJob(ctx, j); err != nil {
		return nil, err
	}

	if err := s.store.ReplayDLQ(ctx, entryID); err != nil {
		// The job is already enqueued. Surface the marking error but
		// hand the job back.
		return j, err
	}

	return j, nil
}

// DLQStore returns the underlying DLQ store for direct access
// to List, Get, Purge, and Count operations.
func (s *Service) DLQStore() Store {
	return s.store
}
