// Package cluster provides worker registration and coordination for
// multi-instance deployments.
//
// Each running Cortexx worker pool registers itself as a [Worker] with:
//   - a unique [id.WorkerID]
//   - its hostname
//   - the list of queues it polls
//   - its concurrency limit
//   - a state: [WorkerActive], [WorkerDraining], or [WorkerDead]
//
// Workers send periodic heartbeats. If a heartbeat is not received within
// the configured threshold, the worker is considered dead and its leased
// jobs are recovered by the lease reaper.
//
// # Leader Election
//
// One worker at a time holds leadership. The leader runs the cluster-wide
// lease reaper so expired leases are recovered exactly once rather than
// by every instance simultaneously. Leadership is managed by
// [Store.AcquireLeadership] using optimistic locking with a TTL; a leader
// that fails to renew loses the role and another instance takes over.
package cluster
