// Package queue defines named job queues and their admission rules.
//
// A queue is an independent partition of jobs with an explicit,
// inspectable retry policy and a concurrency bound. Queues never block
// each other: a stalled queue leaves the rest dispatching.
package queue

import (
	"time"

	"github.com/HeltonFraga01/cortexx-sub006/backoff"
)

// RetryPolicy is the explicit per-queue retry configuration. It replaces
// any ambient try/catch convention: the executor consults it and nothing
// else.
type RetryPolicy struct {
	// MaxAttempts is the execution budget before dead-lettering.
	MaxAttempts int

	// BackoffBase is the first retry delay; attempt n waits
	// BackoffBase * 2^(n-1).
	BackoffBase time.Duration

	// MaxBackoff caps the exponential growth. Zero means uncapped.
	MaxBackoff time.Duration
}

// Strategy returns the backoff strategy implementing this policy.
func (p RetryPolicy) Strategy() backoff.Strategy {
	base := p.BackoffBase
	if base <= 0 {
		base = time.Second
	}
	return backoff.NewExponential(base, p.MaxBackoff)
}

// DefaultRetryPolicy returns the policy used by queues that do not set
// their own.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BackoffBase: time.Second,
		MaxBackoff:  time.Minute,
	}
}

// Config defines one named queue.
type Config struct {
	// Name is the queue identifier (must match the job.Queue field).
	Name string

	// Concurrency limits how many jobs from this queue may be leased
	// simultaneously by the local worker pool. Zero means no
	// queue-specific limit (pool-wide concurrency still applies).
	Concurrency int

	// Retry is the queue's retry policy.
	Retry RetryPolicy

	// MaxPayloadBytes rejects oversized payloads at enqueue. Zero means
	// the registry default applies.
	MaxPayloadBytes int

	// DispatchRate is the maximum sustained jobs per second dequeued
	// from this queue. Zero disables dispatch shaping.
	DispatchRate float64

	// DispatchBurst is the burst size for the dispatch limiter.
	// Defaults to 1 if DispatchRate is set but DispatchBurst is zero.
	DispatchBurst int
}
