package webhook

import (
	"context"
	"time"

	"github.com/HeltonFraga01/cortexx-sub006/billing"
)

// Resolution is everything one reconciled event changes, persisted as a
// single logical unit: the subscription state, the quota rollover, and
// the ledger outcome. Partial application is the failure mode the store
// must prevent.
type Resolution struct {
	ExternalEventID string
	Outcome         Outcome
	Reason          string

	// Subscription is the new state to persist, or nil when the event
	// was discarded or ignored.
	Subscription *billing.Subscription

	// Rollover requests a quota period reset for the tenant, with the
	// new bounds. Only set on billing-period transitions.
	Rollover    bool
	TenantID    string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// ListOpts controls pagination for ledger queries.
type ListOpts struct {
	// Limit is the maximum number of events to return. Zero means no limit.
	Limit int
	// Offset is the number of events to skip.
	Offset int
	// TenantID filters by tenant. Empty means all tenants.
	TenantID string
}

// Store is the idempotency ledger contract.
type Store interface {
	// RecordEvent inserts the event with a pending outcome. The insert is
	// guarded by a uniqueness constraint on ExternalEventID — never an
	// application-level check-then-insert. On duplicate it returns the
	// previously recorded event and created=false.
	RecordEvent(ctx context.Context, ev *Event) (*Event, bool, error)

	// GetEvent retrieves a ledger row by external event ID.
	GetEvent(ctx context.Context, externalEventID string) (*Event, error)

	// ApplyResolution atomically persists the subscription state, the
	// quota rollover, and the ledger outcome described by res. Resolution
	// is first-writer-wins: if the event is already processed, nothing is
	// re-applied and ErrDuplicateEvent is returned so the caller can fall
	// back to the recorded outcome.
	ApplyResolution(ctx context.Context, res *Resolution) error

	// ListEvents returns ledger rows for operator inspection, newest
	// first.
	ListEvents(ctx context.Context, opts ListOpts) ([]*Event, error)
}
