package job

import "time"

// Options configures per-job behavior. Queue-level retry policy supplies
// the defaults; these override per job.
type Options struct {
	// Queue is the queue name this job should be enqueued to.
	Queue string

	// MaxAttempts overrides the queue's retry budget. Zero means use the
	// queue policy.
	MaxAttempts int

	// Timeout is the maximum duration a job may run before being
	// cancelled.
	Timeout time.Duration

	// AvailableAt schedules the job for future execution. Zero means
	// immediate.
	AvailableAt time.Time
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Queue:   "default",
		Timeout: 5 * time.Minute,
	}
}

// Option is a functional option for configuring a job.
type Option func(*Options)

// WithQueue sets the queue name for the job.
func WithQueue(q string) Option {
	return func(o *Options) {
		o.Queue = q
	}
}

// WithMaxAttempts overrides the queue's retry budget for this job.
func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		o.MaxAttempts = n
	}
}

// WithTimeout sets the maximum execution duration for the job.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithAvailableAt schedules the job for execution at a specific time.
func WithAvailableAt(t time.Time) Option {
	return func(o *Options) {
		o.AvailableAt = t
	}
}
