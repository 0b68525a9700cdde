package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/dlq"
	"github.com/HeltonFraga01/cortexx-sub006/id"
)

const dlqColumns = `
	id, job_id, job_name, queue, tenant_id, payload, error,
	attempts, max_attempts, failed_at, replayed_at, created_at`

// PushDLQ adds a failed job entry to the dead letter queue.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cortexx_dlq (
			id, job_id, job_name, queue, tenant_id, payload, error,
			attempts, max_attempts, failed_at, replayed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.ID.String(), entry.JobID.String(), entry.JobName, entry.Queue,
		entry.TenantID, entry.Payload, entry.Error,
		entry.Attempts, entry.MaxAttempts, entry.FailedAt, entry.ReplayedAt,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("cortexx/postgres: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns DLQ entries matching the given options, oldest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	query := `SELECT ` + dlqColumns + ` FROM cortexx_dlq WHERE 1=1`
	args := []any{}
	argIdx := 1

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

	query += " ORDER BY failed_at ASC"

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
		return nil, fmt.Errorf("cortexx/postgres: list dlq: %w", err)
	}
	defer rows.Close()

	var entries []*dlq.Entry
	for rows.Next() {
		e, scanErr := scanDLQEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("cortexx/postgres: scan dlq row: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("cortexx/postgres: iterate dlq rows: %w", err)
	}
	return entries, nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+dlqColumns+` FROM cortexx_dlq WHERE id = $1`,
		entryID.String(),
	)

	e, err := scanDLQEntry(row)
	if err != nil {
		if isNoRows(err) {
			return nil, cortexx.ErrDLQNotFound
		}
		return nil, fmt.Errorf("cortexx/postgres: get dlq: %w", err)
	}
	return e, nil
}

// ReplayDLQ marks a DLQ entry as replayed.
func (s *Store) ReplayDLQ(ctx context.Context, entryID id.DLQID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE cortexx_dlq SET replayed_at = NOW() WHERE id = $1`,
		entryID.String(),
	)
	if err != nil {
		return fmt.Errorf("cortexx/postgres: replay dlq: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cortexx.ErrDLQNotFound
	}
	return nil
}

// PurgeDLQ removes DLQ entries with FailedAt before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM cortexx_dlq WHERE failed_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("cortexx/postgres: purge dlq: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountDLQ returns the total number of entries in the dead letter queue.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cortexx_dlq`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("cortexx/postgres: count dlq: %w", err)
	}
	return count, nil
}

// scanDLQEntry scans a single DLQ row.
func scanDLQEntry(row pgx.Row) (*dlq.Entry, error) {
	var (
		e        dlq.Entry
		idStr    string
		jobIDStr string
	)
	err := row.Scan(
		&idStr, &jobIDStr, &e.JobName, &e.Queue, &e.TenantID, &e.Payload,
		&e.Error, &e.Attempts, &e.MaxAttempts, &e.FailedAt, &e.ReplayedAt,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseDLQID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("cortexx/postgres: parse dlq id %q: %w", idStr, parseErr)
	}
	e.ID = parsedID

	parsedJobID, parseErr := id.ParseJobID(jobIDStr)
	if parseErr != nil {
		return nil, fmt.Errorf("cortexx/postgres: parse job id %q: %w", jobIDStr, parseErr)
	}
	e.JobID = parsedJobID

	return &e, nil
}
