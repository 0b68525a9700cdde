// Package store defines the aggregate persistence interface. Each
// subsystem (job, dlq, billing, ratelimit, quota, webhook, cluster)
// defines its own store interface. The composite Store composes them
// all. Backends: Postgres and Memory.
package store

import (
	"context"

	"github.com/HeltonFraga01/cortexx-sub006/billing"
	"github.com/HeltonFraga01/cortexx-sub006/cluster"
	"github.com/HeltonFraga01/cortexx-sub006/dlq"
	"github.com/HeltonFraga01/cortexx-sub006/job"
	"github.com/HeltonFraga01/cortexx-sub006/quota"
	"github.com/HeltonFraga01/cortexx-sub006/ratelimit"
	"github.com/HeltonFraga01/cortexx-sub006/webhook"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (postgres, memory) implements all of them.
type Store interface {
	job.Store
	dlq.Store
	billing.Store
	ratelimit.Store
	quota.Store
	webhook.Store
	cluster.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
