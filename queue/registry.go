package queue

import (
	"fmt"
	"sync"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
)

// DefaultMaxPayloadBytes bounds payload size for queues that do not set
// their own limit.
const DefaultMaxPayloadBytes = 256 * 1024

// Registry is the set of known queues. Enqueue to an unregistered queue
// is a validation error, not a lazy creation: queue configuration is
// deliberate.
type Registry struct {
	mu     sync.RWMutex
	queues map[string]Config
}

// NewRegistry creates a Registry with the given queue configurations.
func NewRegistry(configs ...Config) *Registry {
	r := &Registry{queues: make(map[string]Config, len(configs))}
	for _, cfg := range configs {
		r.register(cfg)
	}
	return r
}

func (r *Registry) register(cfg Config) {
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	r.queues[cfg.Name] = cfg
}

// Register adds or replaces a queue configuration.
func (r *Registry) Register(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.register(cfg)
}

// Get returns the configuration for a named queue.
func (r *Registry) Get(name string) (Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.queues[name]
	if !ok {
		return Config{}, fmt.Errorf("queue %q: %w", name, cortexx.ErrInvalidQueue)
	}
	return cfg, nil
}

// Names returns all registered queue names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.queues))
	for name := range r.queues {
		names = append(names, name)
	}
	return names
}

// ValidatePayload checks a payload against the queue's size limit.
func (r *Registry) ValidatePayload(name string, payload []byte) error {
	cfg, err := r.Get(name)
	if err != nil {
		return err
	}
	if len(payload) > cfg.MaxPayloadBytes {
		return fmt.Errorf("queue %q: payload %d bytes over limit %d: %w",
			name, len(payload), cfg.MaxPayloadBytes, cortexx.ErrPayloadTooLarge)
	}
	return nil
}
