// Package job defines the durable job model and its persistence contract.
//
// A job moves through waiting → active → (completed | delayed | failed |
// canceled); delayed jobs return to eligibility when their AvailableAt
// passes. Exclusivity is lease-based: at most one worker holds an
// unexpired lease (LockedBy/LockedUntil) on a job, and every mutation by
// a worker is checked against that lease. Workers must heartbeat before
// lease expiry or design their handlers for idempotent re-execution.
package job
