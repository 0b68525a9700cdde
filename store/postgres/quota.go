package postgres

import (
	"context"
	"fmt"
	"time"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/billing"
	"github.com/HeltonFraga01/cortexx-sub006/quota"
)

// GetUsage retrieves the live counter for the pair, if any.
func (s *Store) GetUsage(ctx context.Context, tenantID string, q billing.QuotaType) (*quota.Usage, error) {
	u := quota.Usage{TenantID: tenantID, QuotaType: q}
	err := s.pool.QueryRow(ctx, `
		SELECT used, period_start, period_end, updated_at
		FROM cortexx_quota_usage
		WHERE tenant_id = $1 AND quota_type = $2`,
		tenantID, string(q),
	).Scan(&u.Used, &u.PeriodStart, &u.PeriodEnd, &u.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, cortexx.ErrUsageNotFound
		}
		return nil, fmt.Errorf("cortexx/postgres: get usage: %w", err)
	}
	return &u, nil
}

// ReserveUsage atomically increments the live counter by amount iff the
// result stays within limit. The row lock taken by SELECT FOR UPDATE
// serializes concurrent reservations for the same pair; lazy creation
// and the stale-period archive happen inside the same transaction.
func (s *Store) ReserveUsage(ctx context.Context, tenantID string, q billing.QuotaType, amount, limit int64, periodStart, periodEnd time.Time) (*quota.Usage, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("cortexx/postgres: begin reserve: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	now := time.Now().UTC()
	u := quota.Usage{TenantID: tenantID, QuotaType: q}

	err = tx.QueryRow(ctx, `
		SELECT used, period_start, period_end
		FROM cortexx_quota_usage
		WHERE tenant_id = $1 AND quota_type = $2
		FOR UPDATE`,
		tenantID, string(q),
	).Scan(&u.Used, &u.PeriodStart, &u.PeriodEnd)

	switch {
	case isNoRows(err):
		u.PeriodStart = periodStart
		u.PeriodEnd = periodEnd
		_, err = tx.Exec(ctx, `
			INSERT INTO cortexx_quota_usage (
				tenant_id, quota_type, used, period_start, period_end, updated_at
			) VALUES ($1, $2, 0, $3, $4, $5)`,
			tenantID, string(q), periodStart, periodEnd, now,
		)
		if err != nil {
			return nil, false, fmt.Errorf("cortexx/postgres: init usage: %w", err)
		}
	case err != nil:
		return nil, false, fmt.Errorf("cortexx/postgres: lock usage: %w", err)
	case !u.PeriodEnd.After(periodStart):
		// The live counter belongs to a finished period.
		_, err = tx.Exec(ctx, `
			INSERT INTO cortexx_quota_archive (
				tenant_id, quota_type, used, period_start, period_end, updated_at
			)
			SELECT tenant_id, quota_type, used, period_start, period_end, updated_at
			FROM cortexx_quota_usage
			WHERE tenant_id = $1 AND quota_type = $2`,
			tenantID, string(q),
		)
		if err != nil {
			return nil, false, fmt.Errorf("cortexx/postgres: archive usage: %w", err)
		}
		_, err = tx.Exec(ctx, `
			UPDATE cortexx_quota_usage
			SET used = 0, period_start = $3, period_end = $4, updated_at = $5
			WHERE tenant_id = $1 AND quota_type = $2`,
			tenantID, string(q), periodStart, periodEnd, now,
		)
		if err != nil {
			return nil, false, fmt.Errorf("cortexx/postgres: restart usage: %w", err)
		}
		u.Used = 0
		u.PeriodStart = periodStart
		u.PeriodEnd = periodEnd
	}

	admitted := limit == billing.Unlimited || u.Used+amount <= limit
	if admitted {
		_, err = tx.Exec(ctx, `
			UPDATE cortexx_quota_usage
			SET used = used + $3, updated_at = $4
			WHERE tenant_id = $1 AND quota_type = $2`,
			tenantID, string(q), amount, now,
		)
		if err != nil {
			return nil, false, fmt.Errorf("cortexx/postgres: increment usage: %w", err)
		}
		u.Used += amount
	}
	u.UpdatedAt = now

	if err = tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("cortexx/postgres: commit reserve: %w", err)
	}
	return &u, admitted, nil
}

// ReleaseUsage decrements the live counter by amount, flooring at zero.
func (s *Store) ReleaseUsage(ctx context.Context, tenantID string, q billing.QuotaType, amount int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE cortexx_quota_usage
		SET used = GREATEST(used - $3, 0), updated_at = NOW()
		WHERE tenant_id = $1 AND quota_type = $2`,
		tenantID, string(q), amount,
	)
	if err != nil {
		return fmt.Errorf("cortexx/postgres: release usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cortexx.ErrUsageNotFound
	}
	return nil
}

// RolloverUsage archives every live counter for the tenant and starts
// fresh ones at zero with the new period bounds.
func (s *Store) RolloverUsage(ctx context.Context, tenantID string, periodStart, periodEnd time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("cortexx/postgres: begin rollover: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err = rolloverUsage(ctx, tx, tenantID, periodStart, periodEnd); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("cortexx/postgres: commit rollover: %w", err)
	}
	return nil
}

// rolloverUsage runs the archive-and-reset inside the caller's
// transaction so webhook resolution can include it atomically.
func rolloverUsage(ctx context.Context, db execer, tenantID string, periodStart, periodEnd time.Time) error {
	_, err := db.Exec(ctx, `
		INSERT INTO cortexx_quota_archive (
			tenant_id, quota_type, used, period_start, period_end, updated_at
		)
		SELECT tenant_id, quota_type, used, period_start, period_end, updated_at
		FROM cortexx_quota_usage
		WHERE tenant_id = $1`,
		tenantID,
	)
	if err != nil {
		return fmt.Errorf("cortexx/postgres: archive tenant usage: %w", err)
	}

	_, err = db.Exec(ctx, `
		UPDATE cortexx_quota_usage
		SET used = 0, period_start = $2, period_end = $3, updated_at = NOW()
		WHERE tenant_id = $1`,
		tenantID, periodStart, periodEnd,
	)
	if err != nil {
		return fmt.Errorf("cortexx/postgres: restart tenant usage: %w", err)
	}
	return nil
}

// ListArchivedUsage returns retained counters from prior periods.
func (s *Store) ListArchivedUsage(ctx context.Context, tenantID string, q billing.QuotaType) ([]*quota.Usage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT used, period_start, period_end, updated_at
		FROM cortexx_quota_archive
		WHERE tenant_id = $1 AND quota_type = $2
		ORDER BY period_start ASC`,
		tenantID, string(q),
	)
	if err != nil {
		return nil, fmt.Errorf("cortexx/postgres: list archived usage: %w", err)
	}
	defer rows.Close()

	var usages []*quota.Usage
	for rows.Next() {
		u := quota.Usage{TenantID: tenantID, QuotaType: q}
		if err = rows.Scan(&u.Used, &u.PeriodStart, &u.PeriodEnd, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("cortexx/postgres: scan archived usage: %w", err)
		}
		usages = append(usages, &u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("cortexx/postgres: iterate archived usage: %w", err)
	}
	return usages, nil
}
