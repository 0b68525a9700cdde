package cortexx

import "time"

// Config holds configuration for the Core.
type Config struct {
	// Concurrency is the maximum number of jobs processed concurrently
	// by the local worker pool.
	Concurrency int

	// Queues is the list of queues this worker pool will poll.
	Queues []string

	// PollInterval is how often idle workers poll for new jobs.
	PollInterval time.Duration

	// LeaseDuration is how long a worker holds exclusive claim on a job
	// before it becomes eligible for re-lease. Workers must heartbeat
	// before the lease expires.
	LeaseDuration time.Duration

	// HeartbeatInterval is how often active jobs extend their lease.
	HeartbeatInterval time.Duration

	// ReaperInterval is how often expired leases are swept back to waiting.
	ReaperInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration

	// WebhookSecret is the shared secret for payment-processor signatures.
	WebhookSecret string

	// WebhookTolerance bounds how old a signed webhook timestamp may be.
	WebhookTolerance time.Duration

	// WebhookTimeout is the hard processing deadline for one ingestion.
	// Past it the delivery fails and the processor is expected to retry;
	// the idempotency ledger makes that safe.
	WebhookTimeout time.Duration

	// SubscriptionTTL is the cache TTL for subscription projections.
	SubscriptionTTL time.Duration

	// PlanTTL is the cache TTL for plan definitions.
	PlanTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       10,
		Queues:            []string{"default"},
		PollInterval:      1 * time.Second,
		LeaseDuration:     30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		ReaperInterval:    15 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		WebhookTolerance:  5 * time.Minute,
		WebhookTimeout:    20 * time.Second,
		SubscriptionTTL:   5 * time.Minute,
		PlanTTL:           15 * time.Minute,
	}
}
