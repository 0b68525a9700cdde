package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// queueState tracks runtime dispatch state for a single queue.
type queueState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

func newQueueState(cfg Config) *queueState {
	qs := &queueState{config: cfg}
	if cfg.DispatchRate > 0 {
		burst := cfg.DispatchBurst
		if burst <= 0 {
			burst = 1
		}
		qs.limiter = rate.NewLimiter(rate.Limit(cfg.DispatchRate), burst)
	}
	return qs
}

// Manager bounds the number of simultaneously leased jobs per queue and
// shapes dispatch throughput. Each queue's bound is independent: there is
// no global lock contention across queues beyond the map guard. The
// worker pool calls Acquire before leasing from a queue and Release when
// the job finishes.
//
// Tenant request-rate admission is NOT handled here — that belongs to
// the ratelimit package at enqueue time. The Manager only governs local
// worker dispatch.
type Manager struct {
	mu     sync.Mutex
	queues map[string]*queueState
}

// NewManager creates a Manager covering the registry's queues.
func NewManager(configs ...Config) *Manager {
	m := &Manager{queues: make(map[string]*queueState, len(configs))}
	for _, cfg := range configs {
		m.queues[cfg.Name] = newQueueState(cfg)
	}
	return m
}

// Acquire checks the dispatch rate and concurrency bound for the queue.
// If the lease may proceed it increments the active counter and returns
// true. The caller MUST call Release when the job completes.
func (m *Manager) Acquire(queue string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	qs := m.queues[queue]
	if qs == nil {
		// Unconfigured queues have no dispatch limits.
		return true
	}
	if qs.limiter != nil && !qs.limiter.Allow() {
		return false
	}
	if qs.config.Concurrency > 0 && qs.active >= qs.config.Concurrency {
		return false
	}
	qs.active++
	return true
}

// Release decrements the active job count for the queue.
func (m *Manager) Release(queue string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if qs := m.queues[queue]; qs != nil && qs.active > 0 {
		qs.active--
	}
}

// SetConfig dynamically updates (or creates) a queue's dispatch state,
// preserving the current active count.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing := m.queues[cfg.Name]
	qs := newQueueState(cfg)
	if existing != nil {
		qs.active = existing.active
	}
	m.queues[cfg.Name] = qs
}

// ActiveCount returns the current number of leased jobs for a queue.
func (m *Manager) ActiveCount(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if qs := m.queues[queue]; qs != nil {
		return qs.active
	}
	return 0
}
