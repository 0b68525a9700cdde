// Package quota meters tenant usage against plan limits over billing
// periods. Counters are per-tenant atomic records in the shared store;
// reservation happens before enqueue so bursts cannot over-admit work.
package quota

import (
	"context"
	"time"

	"github.com/HeltonFraga01/cortexx-sub006/billing"
)

// Usage is the live counter for one (tenant, quotaType) pair in the
// current billing period. Invariant: Used >= 0. A period rollover resets
// Used to zero and advances the bounds; prior periods are archived for
// reporting, never mutated.
type Usage struct {
	TenantID    string            `json:"tenant_id"`
	QuotaType   billing.QuotaType `json:"quota_type"`
	Used        int64             `json:"used"`
	PeriodStart time.Time         `json:"period_start"`
	PeriodEnd   time.Time         `json:"period_end"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Store defines the persistence contract for quota counters.
type Store interface {
	// GetUsage retrieves the live counter for the pair, if any.
	GetUsage(ctx context.Context, tenantID string, q billing.QuotaType) (*Usage, error)

	// ReserveUsage atomically increments the live counter by amount iff
	// the result stays within limit (limit -1 always allows). It lazily
	// creates the counter with the given period bounds on first activity,
	// and a live counter whose PeriodEnd is not after the supplied
	// periodStart is archived and restarted at zero first. Returns the
	// post-increment counter and whether the reservation was admitted.
	ReserveUsage(ctx context.Context, tenantID string, q billing.QuotaType, amount, limit int64, periodStart, periodEnd time.Time) (*Usage, bool, error)

	// ReleaseUsage decrements the live counter by amount, flooring at
	// zero. Compensates reservations for work that failed before running.
	ReleaseUsage(ctx context.Context, tenantID string, q billing.QuotaType, amount int64) error

	// RolloverUsage archives every live counter for the tenant and starts
	// fresh ones at zero with the new period bounds. Driven by the
	// subscription's period-end event, not wall-clock polling.
	RolloverUsage(ctx context.Context, tenantID string, periodStart, periodEnd time.Time) error

	// ListArchivedUsage returns retained counters from prior periods for
	// reporting.
	ListArchivedUsage(ctx context.Context, tenantID string, q billing.QuotaType) ([]*Usage, error)
}
