package postgres

import (
	"context"
	"fmt"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/ratelimit"
)

// GetRateState retrieves the token bucket for a tenant.
func (s *Store) GetRateState(ctx context.Context, tenantID string) (*ratelimit.TenantRateState, error) {
	state := ratelimit.TenantRateState{TenantID: tenantID}
	err := s.pool.QueryRow(ctx, `
		SELECT plan_id, tokens, capacity, refill_per_second, last_refill_at, version
		FROM cortexx_rate_state
		WHERE tenant_id = $1`,
		tenantID,
	).Scan(
		&state.PlanID, &state.Tokens, &state.Capacity,
		&state.RefillPerSecond, &state.LastRefillAt, &state.Version,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, cortexx.ErrRateStateNotFound
		}
		return nil, fmt.Errorf("cortexx/postgres: get rate state: %w", err)
	}
	return &state, nil
}

// CreateRateState inserts a fresh bucket for a tenant.
func (s *Store) CreateRateState(ctx context.Context, state *ratelimit.TenantRateState) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cortexx_rate_state (
			tenant_id, plan_id, tokens, capacity, refill_per_second,
			last_refill_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		state.TenantID, state.PlanID, state.Tokens, state.Capacity,
		state.RefillPerSecond, state.LastRefillAt, state.Version,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return cortexx.ErrRateStateExists
		}
		return fmt.Errorf("cortexx/postgres: create rate state: %w", err)
	}
	return nil
}

// CompareAndSwapRateState persists state only if the stored version still
// matches, bumping the version in the same statement. Zero rows means
// another writer got there first (or the bucket is gone).
func (s *Store) CompareAndSwapRateState(ctx context.Context, state *ratelimit.TenantRateState) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE cortexx_rate_state
		SET plan_id = $2, tokens = $3, capacity = $4,
		    refill_per_second = $5, last_refill_at = $6,
		    version = version + 1
		WHERE tenant_id = $1 AND version = $7`,
		state.TenantID, state.PlanID, state.Tokens, state.Capacity,
		state.RefillPerSecond, state.LastRefillAt, state.Version,
	)
	if err != nil {
		return fmt.Errorf("cortexx/postgres: cas rate state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err = s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM cortexx_rate_state WHERE tenant_id = $1)`,
			state.TenantID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("cortexx/postgres: check rate state: %w", err)
		}
		if !exists {
			return cortexx.ErrRateStateNotFound
		}
		return cortexx.ErrVersionConflict
	}
	return nil
}

// DeleteRateState removes a tenant's bucket.
func (s *Store) DeleteRateState(ctx context.Context, tenantID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM cortexx_rate_state WHERE tenant_id = $1`,
		tenantID,
	)
	if err != nil {
		return fmt.Errorf("cortexx/postgres: delete rate state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cortexx.ErrRateStateNotFound
	}
	return nil
}
