package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/billing"
	"github.com/HeltonFraga01/cortexx-sub006/id"
	"github.com/HeltonFraga01/cortexx-sub006/webhook"
)

const eventColumns = `
	external_event_id, id, type, tenant_id, external_subscription_id,
	plan_slug, status, period_start, period_end, trial_end, occurred_at,
	received_at, processed_at, outcome, reason, raw`

// RecordEvent inserts the event with a pending outcome. The primary key
// on external_event_id makes the insert the sole serialization point
// between duplicate concurrent deliveries: the loser of the race reads
// back the winner's row.
func (s *Store) RecordEvent(ctx context.Context, ev *webhook.Event) (*webhook.Event, bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO cortexx_webhook_events (
			external_event_id, id, type, tenant_id, external_subscription_id,
			plan_slug, status, period_start, period_end, trial_end, occurred_at,
			received_at, processed_at, outcome, reason, raw
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16
		)
		ON CONFLICT (external_event_id) DO NOTHING`,
		ev.ExternalEventID, ev.ID.String(), string(ev.Type), ev.TenantID,
		ev.ExternalSubscriptionID,
		ev.PlanSlug, string(ev.Status), ev.PeriodStart, ev.PeriodEnd,
		ev.TrialEnd, ev.OccurredAt,
		ev.ReceivedAt, ev.ProcessedAt, string(ev.Outcome), ev.Reason, ev.Raw,
	)
	if err != nil {
		return nil, false, fmt.Errorf("cortexx/postgres: record event: %w", err)
	}

	if tag.RowsAffected() == 0 {
		existing, getErr := s.GetEvent(ctx, ev.ExternalEventID)
		if getErr != nil {
			return nil, false, getErr
		}
		return existing, false, nil
	}

	cp := *ev
	return &cp, true, nil
}

// GetEvent retrieves a ledger row by external event ID.
func (s *Store) GetEvent(ctx context.Context, externalEventID string) (*webhook.Event, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM cortexx_webhook_events WHERE external_event_id = $1`,
		externalEventID,
	)

	ev, err := scanEvent(row)
	if err != nil {
		if isNoRows(err) {
			return nil, cortexx.ErrEventNotFound
		}
		return nil, fmt.Errorf("cortexx/postgres: get event: %w", err)
	}
	return ev, nil
}

// ApplyResolution atomically persists the subscription state, the quota
// rollover, and the ledger outcome described by res. Everything runs in
// one transaction: a crash mid-way leaves the event pending and
// reprocessable, never half-applied. First writer wins: an already
// processed row is never overwritten.
func (s *Store) ApplyResolution(ctx context.Context, res *webhook.Resolution) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("cortexx/postgres: begin resolution: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	// Lock the ledger row so concurrent resolutions of the same event
	// serialize.
	var processedAt *time.Time
	err = tx.QueryRow(ctx,
		`SELECT processed_at FROM cortexx_webhook_events WHERE external_event_id = $1 FOR UPDATE`,
		res.ExternalEventID,
	).Scan(&processedAt)
	if err != nil {
		if isNoRows(err) {
			return cortexx.ErrEventNotFound
		}
		return fmt.Errorf("cortexx/postgres: lock event: %w", err)
	}
	if processedAt != nil {
		// A concurrent delivery of the same event resolved it first. The
		// recorded outcome stands; re-applying would overwrite it with a
		// decision made against the pre-resolution state.
		return cortexx.ErrDuplicateEvent
	}

	if res.Subscription != nil {
		if err = upsertSubscription(ctx, tx, res.Subscription); err != nil {
			return err
		}
	}

	if res.Rollover {
		if err = rolloverUsage(ctx, tx, res.TenantID, res.PeriodStart, res.PeriodEnd); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE cortexx_webhook_events
		SET outcome = $2, reason = $3, processed_at = NOW()
		WHERE external_event_id = $1`,
		res.ExternalEventID, string(res.Outcome), res.Reason,
	)
	if err != nil {
		return fmt.Errorf("cortexx/postgres: resolve event: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("cortexx/postgres: commit resolution: %w", err)
	}
	return nil
}

// ListEvents returns ledger rows for operator inspection, newest first.
func (s *Store) ListEvents(ctx context.Context, opts webhook.ListOpts) ([]*webhook.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM cortexx_webhook_events WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.TenantID != "" {
		query += fmt.Sprintf(" AND tenant_id = $%d", argIdx)
		args = append(args, opts.TenantID)
		argIdx++
	}

	query += " ORDER BY received_at DESC"

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
		return nil, fmt.Errorf("cortexx/postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []*webhook.Event
	for rows.Next() {
		ev, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("cortexx/postgres: scan event row: %w", scanErr)
		}
		events = append(events, ev)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("cortexx/postgres: iterate event rows: %w", err)
	}
	return events, nil
}

// scanEvent scans a single ledger row.
func scanEvent(row pgx.Row) (*webhook.Event, error) {
	var (
		ev         webhook.Event
		idStr      string
		typeStr    string
		statusStr  string
		outcomeStr string
		raw        []byte
	)
	err := row.Scan(
		&ev.ExternalEventID, &idStr, &typeStr, &ev.TenantID,
		&ev.ExternalSubscriptionID,
		&ev.PlanSlug, &statusStr, &ev.PeriodStart, &ev.PeriodEnd,
		&ev.TrialEnd, &ev.OccurredAt,
		&ev.ReceivedAt, &ev.ProcessedAt, &outcomeStr, &ev.Reason, &raw,
	)
	if err != nil {
		return nil, err
	}

	ev.Type = webhook.Type(typeStr)
	ev.Status = billing.Status(statusStr)
	ev.Outcome = webhook.Outcome(outcomeStr)
	ev.Raw = raw

	parsedID, parseErr := id.ParseEventID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("cortexx/postgres: parse event id %q: %w", idStr, parseErr)
	}
	ev.ID = parsedID

	return &ev, nil
}
