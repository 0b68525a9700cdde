// Package cortexx is the asynchronous processing and tenant governance core
// for the Cortexx WhatsApp automation platform. It provides durable
// background jobs with lease-based dispatch, per-tenant token-bucket rate
// limiting, billing-period quota accounting, a read-through cache with
// explicit invalidation, and an idempotent payment-webhook reconciler.
//
// Cortexx core is a library, not a service. The HTTP layer, the WhatsApp
// client, and the payment processor are external collaborators: the API
// layer enqueues jobs and checks admission through this core, workers pull
// leased jobs and execute registered handlers, and the webhook receiver
// hands raw processor events to the reconciler.
//
// # Quick Start
//
//	core, err := cortexx.New(
//	    cortexx.WithStore(pgStore),
//	    cortexx.WithConcurrency(20),
//	)
//
// # Architecture
//
// The core follows a composable store pattern: each subsystem (job, dlq,
// billing, ratelimit, quota, webhook, cluster) defines its own store
// interface and a single backend implements all of them. Backends: Postgres
// and Memory; the cache layer additionally ships a Redis backend.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers. Tenant IDs are opaque strings owned by the identity layer.
package cortexx
