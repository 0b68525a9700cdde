package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/id"
	"github.com/HeltonFraga01/cortexx-sub006/job"
)

const jobColumns = `
	id, name, queue, tenant_id, payload, state, attempts, max_attempts,
	last_error, locked_by, locked_until, available_at, started_at,
	completed_at, timeout, created_at, updated_at`

// EnqueueJob persists a new job in waiting state.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cortexx_jobs (
			id, name, queue, tenant_id, payload, state, attempts, max_attempts,
			last_error, locked_by, locked_until, available_at, started_at,
			completed_at, timeout, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16, $17
		)`,
		j.ID.String(), j.Name, j.Queue, j.TenantID, j.Payload, string(j.State),
		j.Attempts, j.MaxAttempts,
		j.LastError, j.LockedBy.String(), j.LockedUntil, j.AvailableAt,
		j.StartedAt, j.CompletedAt,
		j.Timeout.Nanoseconds(), j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		// Check for unique violation (duplicate ID).
		if isDuplicateKey(err) {
			return cortexx.ErrJobAlreadyExists
		}
		return fmt.Errorf("cortexx/postgres: enqueue job: %w", err)
	}
	return nil
}

// LeaseJob atomically claims the oldest eligible job from the given
// queues. SELECT FOR UPDATE SKIP LOCKED keeps concurrent workers from
// racing on the same row; the lease expiry is stamped in the same
// statement that claims it.
func (s *Store) LeaseJob(ctx context.Context, queues []string, workerID id.WorkerID, leaseFor time.Duration) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		WITH leased AS (
			UPDATE cortexx_jobs
			SET state = 'active',
			    locked_by = $2,
			    locked_until = NOW() + make_interval(secs => $3),
			    started_at = NOW(),
			    updated_at = NOW()
			WHERE id = (
				SELECT id FROM cortexx_jobs
				WHERE state IN ('waiting', 'delayed')
				  AND queue = ANY($1)
				  AND available_at <= NOW()
				ORDER BY available_at ASC, created_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT 1
			)
			RETURNING `+jobColumns+`
		)
		SELECT * FROM leased`,
		queues, workerID.String(), leaseFor.Seconds(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cortexx/postgres: lease job: %w", err)
	}
	return j, nil
}

// CompleteJob marks the job completed iff workerID still holds a live
// lease.
func (s *Store) CompleteJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE cortexx_jobs
		SET state = 'completed', completed_at = NOW(),
		    locked_by = '', locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND state = 'active' AND locked_by = $2 AND locked_until > NOW()`,
		jobID.String(), workerID.String(),
	)
	if err != nil {
		return fmt.Errorf("cortexx/postgres: complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.settleMiss(ctx, jobID)
	}
	return nil
}

// FailJob records a failed execution iff workerID still holds a live
// lease: bumps the attempt counter and either schedules the retry or
// dead-letters.
func (s *Store) FailJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, lastError string, retryAt *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE cortexx_jobs
		SET attempts = attempts + 1,
		    last_error = $3,
		    locked_by = '', locked_until = NULL,
		    state = CASE WHEN $4::timestamptz IS NULL THEN 'failed' ELSE 'delayed' END,
		    available_at = COALESCE($4, available_at),
		    updated_at = NOW()
		WHERE id = $1 AND state = 'active' AND locked_by = $2 AND locked_until > NOW()`,
		jobID.String(), workerID.String(), lastError, retryAt,
	)
	if err != nil {
		return fmt.Errorf("cortexx/postgres: fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.settleMiss(ctx, jobID)
	}
	return nil
}

// HeartbeatJob extends the lease iff workerID still holds it.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, extendBy time.Duration) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE cortexx_jobs
		SET locked_until = NOW() + make_interval(secs => $3), updated_at = NOW()
		WHERE id = $1 AND state = 'active' AND locked_by = $2 AND locked_until > NOW()`,
		jobID.String(), workerID.String(), extendBy.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("cortexx/postgres: heartbeat job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.settleMiss(ctx, jobID)
	}
	return nil
}

// settleMiss distinguishes a missing job from a lost lease after a
// guarded settlement matched zero rows.
func (s *Store) settleMiss(ctx context.Context, jobID id.JobID) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM cortexx_jobs WHERE id = $1)`,
		jobID.String(),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("cortexx/postgres: check job: %w", err)
	}
	if !exists {
		return cortexx.ErrJobNotFound
	}
	return cortexx.ErrLeaseExpired
}

// CancelJob marks a non-terminal job canceled. The holder of an active
// job observes cancellation when its settlement fails the lease check.
func (s *Store) CancelJob(ctx context.Context, jobID id.JobID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE cortexx_jobs
		SET state = 'canceled', updated_at = NOW()
		WHERE id = $1 AND state NOT IN ('completed', 'failed', 'canceled')`,
		jobID.String(),
	)
	if err != nil {
		return fmt.Errorf("cortexx/postgres: cancel job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err = s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM cortexx_jobs WHERE id = $1)`,
			jobID.String(),
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("cortexx/postgres: check job: %w", err)
		}
		if !exists {
			return cortexx.ErrJobNotFound
		}
		// Already terminal: cancel is idempotent.
	}
	return nil
}

// ReapExpiredLeases returns active jobs with an expired lease to waiting
// state, clearing the lease.
func (s *Store) ReapExpiredLeases(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE cortexx_jobs
		SET state = 'waiting', locked_by = '', locked_until = NULL,
		    started_at = NULL, available_at = NOW(), updated_at = NOW()
		WHERE state = 'active'
		  AND (locked_until IS NULL OR locked_until <= NOW())`,
	)
	if err != nil {
		return 0, fmt.Errorf("cortexx/postgres: reap expired leases: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM cortexx_jobs WHERE id = $1`,
		jobID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, cortexx.ErrJobNotFound
		}
		return nil, fmt.Errorf("cortexx/postgres: get job: %w", err)
	}
	return j, nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM cortexx_jobs WHERE id = $1`, jobID.String())
	if err != nil {
		return fmt.Errorf("cortexx/postgres: delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cortexx.ErrJobNotFound
	}
	return nil
}

// ListJobsByState returns jobs matching the given state.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM cortexx_jobs WHERE state = $1`
	args := []any{string(state)}
	argIdx := 2

	if opts.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, opts.Queue)
		argIdx++
	}
	if opts.TenantID != "" {
		query += fmt.Sprintf(" AND tenant_id = $%d", argIdx)
		args = append(args, opts.TenantID)
		argIdx++
	}

	query += " ORDER BY created_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cortexx/postgres: list jobs by state: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM cortexx_jobs WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Queue != "" {
		query += fmt.Sprintf(" AND queue = $%d", argIdx)
		args = append(args, opts.Queue)
		argIdx++
	}
	if opts.State != "" {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, string(opts.State))
	}

	var count int64
	err := s.pool.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("cortexx/postgres: count jobs: %w", err)
	}
	return count, nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		idStr     string
		stateStr  string
		lockedBy  string
		timeoutNs int64
	)
	err := row.Scan(
		&idStr, &j.Name, &j.Queue, &j.TenantID, &j.Payload, &stateStr,
		&j.Attempts, &j.MaxAttempts,
		&j.LastError, &lockedBy, &j.LockedUntil, &j.AvailableAt,
		&j.StartedAt, &j.CompletedAt,
		&timeoutNs, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.State = job.State(stateStr)
	j.Timeout = time.Duration(timeoutNs)

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("cortexx/postgres: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID

	if lockedBy != "" {
		parsedWorker, workerErr := id.ParseWorkerID(lockedBy)
		if workerErr == nil {
			j.LockedBy = parsedWorker
		}
	}

	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("cortexx/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cortexx/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
