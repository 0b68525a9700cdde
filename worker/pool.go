package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/cluster"
	"github.com/HeltonFraga01/cortexx-sub006/ext"
	"github.com/HeltonFraga01/cortexx-sub006/id"
	"github.com/HeltonFraga01/cortexx-sub006/job"
)

// QueueManager bounds per-queue dispatch. The worker pool calls Acquire
// before leasing from a queue and Release after the job settles.
type QueueManager interface {
	// Acquire checks the dispatch rate and concurrency bound for the
	// queue. Returns true if a lease from this queue may proceed.
	Acquire(queue string) bool
	// Release decrements the active count for the queue.
	Release(queue string)
}

// Pool manages a set of concurrent worker goroutines that lease jobs
// and execute them through the Executor. Each instance heartbeats both
// its active job leases and its cluster registration, and the elected
// leader recovers expired leases cluster-wide.
type Pool struct {
	store        job.Store
	executor     *Executor
	extensions   *ext.Registry
	concurrency  int
	queues       []string
	pollInterval time.Duration
	workerID     id.WorkerID
	logger       *slog.Logger

	// Lease configuration.
	leaseDuration     time.Duration
	heartbeatInterval time.Duration
	reaperInterval    time.Duration

	// Optional collaborators.
	queueManager QueueManager
	registry     cluster.Store

	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	leader     bool
	activeJobs map[string]context.CancelFunc
	activeMu   sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPoolQueues sets the queues the pool will lease from.
func WithPoolQueues(queues []string) PoolOption {
	return func(p *Pool) { p.queues = queues }
}

// WithPollInterval sets how often workers poll for new jobs.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithLeaseDuration sets the lease granted when a job is claimed.
func WithLeaseDuration(d time.Duration) PoolOption {
	return func(p *Pool) { p.leaseDuration = d }
}

// WithHeartbeatInterval sets how often the pool extends leases for
// active jobs. A zero value disables heartbeats.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.heartbeatInterval = d }
}

// WithReaperInterval sets how often expired leases are recovered.
// A zero value disables the reaper on this instance.
func WithReaperInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.reaperInterval = d }
}

// WithQueueManager sets the queue manager for dispatch shaping and
// per-queue concurrency control.
func WithQueueManager(m QueueManager) PoolOption {
	return func(p *Pool) { p.queueManager = m }
}

// WithClusterStore sets the cluster registry. When configured, the pool
// registers itself on Start, heartbeats its registration, competes for
// leadership, and only reaps expired leases while leader.
func WithClusterStore(s cluster.Store) PoolOption {
	return func(p *Pool) { p.registry = s }
}

// NewPool creates a worker pool.
func NewPool(
	store job.Store,
	executor *Executor,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	p := &Pool{
		store:             store,
		executor:          executor,
		extensions:        extensions,
		concurrency:       10,
		queues:            []string{"default"},
		pollInterval:      time.Second,
		leaseDuration:     30 * time.Second,
		heartbeatInterval: 10 * time.Second,
		reaperInterval:    15 * time.Second,
		workerID:          id.NewWorkerID(),
		logger:            logger,
		stopCh:            make(chan struct{}),
		activeJobs:        make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
		slog.Any("queues", p.queues),
	)

	if p.registry != nil {
		if err := p.register(ctx); err != nil {
			p.running = false
			return err
		}
	}

	for range p.concurrency {
		p.wg.Add(1)
		go p.leaseLoop()
	}

	// Launch heartbeat goroutine if configured.
	if p.heartbeatInterval > 0 {
		p.wg.Add(1)
		go p.heartbeatLoop()
	}

	// Launch reaper goroutine if configured.
	if p.reaperInterval > 0 {
		p.wg.Add(1)
		go p.reaperLoop()
	}

	return nil
}

// Stop signals all workers to stop and waits for them to finish.
// If the context has a deadline, active jobs are cancelled when time runs out.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))

	// Signal all workers to stop.
	close(p.stopCh)

	// Wait for completion or context deadline.
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		p.cancelActiveJobs()
		p.wg.Wait()
	}

	if p.registry != nil {
		if err := p.registry.DeregisterWorker(ctx, p.workerID); err != nil {
			p.logger.Warn("worker deregistration failed",
				slog.String("worker_id", p.workerID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// register adds this instance to the cluster registry.
func (p *Pool) register(ctx context.Context) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = p.workerID.String()
	}
	now := time.Now().UTC()
	return p.registry.RegisterWorker(ctx, &cluster.Worker{
		ID:          p.workerID,
		Hostname:    hostname,
		Queues:      p.queues,
		Concurrency: p.concurrency,
		State:       cluster.WorkerActive,
		LastSeen:    now,
		CreatedAt:   now,
	})
}

// leaseLoop is run by each worker goroutine. It walks the configured
// queues, leases at most one job per pass, and executes it.
func (p *Pool) leaseLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		if !p.leaseOne() {
			p.sleep()
		}
	}
}

// leaseOne tries each queue in order and executes the first leased job.
// Returns false if no work was found.
func (p *Pool) leaseOne() bool {
	for _, q := range p.queues {
		if p.queueManager != nil && !p.queueManager.Acquire(q) {
			continue
		}

		j, err := p.store.LeaseJob(context.Background(), []string{q}, p.workerID, p.leaseDuration)
		if err != nil {
			p.logger.Error("lease error",
				slog.String("queue", q),
				slog.String("error", err.Error()),
			)
			p.releaseQueue(q)
			continue
		}
		if j == nil {
			p.releaseQueue(q)
			continue
		}

		p.execute(j)
		p.releaseQueue(q)
		return true
	}
	return false
}

func (p *Pool) releaseQueue(q string) {
	if p.queueManager != nil {
		p.queueManager.Release(q)
	}
}

// execute runs one leased job through the executor.
func (p *Pool) execute(j *job.Job) {
	p.extensions.EmitJobStarted(context.Background(), j)

	ctx, cancel := context.WithCancel(context.Background())
	p.trackJob(j.ID.String(), cancel)

	if execErr := p.executor.Execute(ctx, j, p.workerID); execErr != nil {
		p.logger.Debug("job execution failed",
			slog.String("job_id", j.ID.String()),
			slog.String("job_name", j.Name),
			slog.String("error", execErr.Error()),
		)
	}

	p.untrackJob(j.ID.String())
	cancel()
}

// heartbeatLoop periodically extends leases for all active jobs and
// refreshes the cluster registration.
func (p *Pool) heartbeatLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.sendHeartbeats()
		}
	}
}

func (p *Pool) sendHeartbeats() {
	p.activeMu.Lock()
	jobIDs := make([]string, 0, len(p.activeJobs))
	for jobID := range p.activeJobs {
		jobIDs = append(jobIDs, jobID)
	}
	p.activeMu.Unlock()

	for _, jobIDStr := range jobIDs {
		parsedID, parseErr := id.ParseJobID(jobIDStr)
		if parseErr != nil {
			p.logger.Warn("heartbeat: invalid job id", slog.String("job_id", jobIDStr))
			continue
		}
		if err := p.store.HeartbeatJob(context.Background(), parsedID, p.workerID, p.leaseDuration); err != nil {
			if errors.Is(err, cortexx.ErrLeaseExpired) || cortexx.IsNotFound(err) {
				// The lease is gone: the job was canceled, reaped, or
				// claimed elsewhere. Cancel the running handler's context
				// so it aborts instead of working toward a settlement the
				// lease guard will discard.
				p.logger.Warn("lease lost, cancelling running job",
					slog.String("job_id", jobIDStr),
					slog.String("error", err.Error()),
				)
				p.cancelJob(jobIDStr)
				continue
			}
			p.logger.Warn("heartbeat failed",
				slog.String("job_id", jobIDStr),
				slog.String("error", err.Error()),
			)
		}
	}

	if p.registry != nil {
		if err := p.registry.HeartbeatWorker(context.Background(), p.workerID); err != nil {
			p.logger.Warn("worker heartbeat failed",
				slog.String("worker_id", p.workerID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// reaperLoop periodically recovers jobs whose lease expired without
// completion or heartbeat. With a cluster registry configured, only the
// elected leader reaps so recovery runs once cluster-wide.
func (p *Pool) reaperLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.reaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			if p.registry != nil && !p.ensureLeadership() {
				continue
			}
			p.reapExpiredLeases()
		}
	}
}

// ensureLeadership acquires or renews the leader role. Leadership TTL is
// twice the reaper interval so a single missed renewal does not flap.
func (p *Pool) ensureLeadership() bool {
	ttl := 2 * p.reaperInterval
	ctx := context.Background()

	var (
		ok  bool
		err error
	)
	if p.leader {
		ok, err = p.registry.RenewLeadership(ctx, p.workerID, ttl)
	} else {
		ok, err = p.registry.AcquireLeadership(ctx, p.workerID, ttl)
	}
	if err != nil {
		p.logger.Warn("leadership check failed", slog.String("error", err.Error()))
		p.leader = false
		return false
	}

	if ok && !p.leader {
		p.logger.Info("acquired cluster leadership", slog.String("worker_id", p.workerID.String()))
	}
	if !ok && p.leader {
		p.logger.Info("lost cluster leadership", slog.String("worker_id", p.workerID.String()))
	}
	p.leader = ok
	return ok
}

func (p *Pool) reapExpiredLeases() {
	n, err := p.store.ReapExpiredLeases(context.Background())
	if err != nil {
		p.logger.Error("reap expired leases error", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		p.logger.Info("reaped expired leases", slog.Int("count", n))
	}
}

func (p *Pool) sleep() {
	select {
	case <-time.After(p.pollInterval):
	case <-p.stopCh:
	}
}

func (p *Pool) trackJob(jobID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeJobs[jobID] = cancel
	p.activeMu.Unlock()
}

// cancelJob cancels the context of a tracked running job, if any.
func (p *Pool) cancelJob(jobID string) {
	p.activeMu.Lock()
	cancel := p.activeJobs[jobID]
	p.activeMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *Pool) untrackJob(jobID string) {
	p.activeMu.Lock()
	delete(p.activeJobs, jobID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for jobID, cancel := range p.activeJobs {
		p.logger.Warn("cancelling active job", slog.String("job_id", jobID))
		cancel()
	}
}
