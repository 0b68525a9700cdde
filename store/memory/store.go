package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	cortexx "github.com/HeltonFraga01/cortexx-sub006"
	"github.com/HeltonFraga01/cortexx-sub006/billing"
	"github.com/HeltonFraga01/cortexx-sub006/cluster"
	"github.com/HeltonFraga01/cortexx-sub006/dlq"
	"github.com/HeltonFraga01/cortexx-sub006/id"
	"github.com/HeltonFraga01/cortexx-sub006/job"
	"github.com/HeltonFraga01/cortexx-sub006/quota"
	"github.com/HeltonFraga01/cortexx-sub006/ratelimit"
	"github.com/HeltonFraga01/cortexx-sub006/webhook"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ job.Store       = (*Store)(nil)
	_ dlq.Store       = (*Store)(nil)
	_ billing.Store   = (*Store)(nil)
	_ ratelimit.Store = (*Store)(nil)
	_ quota.Store     = (*Store)(nil)
	_ webhook.Store   = (*Store)(nil)
	_ cluster.Store   = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
type Store struct {
	mu sync.RWMutex

	jobs    map[string]*job.Job
	dlqs    map[string]*dlq.Entry
	plans   map[string]*billing.Plan
	subs    map[string]*billing.Subscription // key: tenant ID
	rates   map[string]*ratelimit.TenantRateState
	usages  map[string]*quota.Usage   // key: "tenantID:quotaType", live counters
	archive map[string][]*quota.Usage // key: "tenantID:quotaType", prior periods
	events  map[string]*webhook.Event // key: external event ID
	workers map[string]*cluster.Worker

	// leader tracks the current cluster leader worker ID string.
	leader      string
	leaderUntil time.Time
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:    make(map[string]*job.Job),
		dlqs:    make(map[string]*dlq.Entry),
		plans:   make(map[string]*billing.Plan),
		subs:    make(map[string]*billing.Subscription),
		rates:   make(map[string]*ratelimit.TenantRateState),
		usages:  make(map[string]*quota.Usage),
		archive: make(map[string][]*quota.Usage),
		events:  make(map[string]*webhook.Event),
		workers: make(map[string]*cluster.Worker),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// EnqueueJob persists a new job in waiting state.
func (m *Store) EnqueueJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return cortexx.ErrJobAlreadyExists
	}
	cp := *j
	m.jobs[key] = &cp
	return nil
}

// LeaseJob atomically claims the oldest eligible job from the given
// queues. Selection and lock update happen under one lock, so concurrent
// callers never receive the same job.
func (m *Store) LeaseJob(_ context.Context, queues []string, workerID id.WorkerID, leaseFor time.Duration) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	queueSet := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		queueSet[q] = struct{}{}
	}

	now := time.Now().UTC()

	// Collect candidates.
	candidates := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if !j.Eligible(now) {
			continue
		}
		if len(queueSet) > 0 {
			if _, ok := queueSet[j.Queue]; !ok {
				continue
			}
		}
		candidates = append(candidates, j)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	// Sort: AvailableAt ASC, CreatedAt ASC (best-effort FIFO).
	sort.Slice(candidates, func(i, k int) bool {
		if !candidates[i].AvailableAt.Equal(candidates[k].AvailableAt) {
			return candidates[i].AvailableAt.Before(candidates[k].AvailableAt)
		}
		return candidates[i].CreatedAt.Before(candidates[k].CreatedAt)
	})

	j := candidates[0]
	j.State = job.StateActive
	j.LockedBy = workerID
	until := now.Add(leaseFor)
	j.LockedUntil = &until
	started := now
	j.StartedAt = &started
	j.UpdatedAt = now

	// Return a copy so callers can mutate without racing with the store.
	cp := *j
	return &cp, nil
}

// CompleteJob marks the job completed iff workerID still holds a live lease.
func (m *Store) CompleteJob(_ context.Context, jobID id.JobID, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return cortexx.ErrJobNotFound
	}

	now := time.Now().UTC()
	if !j.LeasedBy(workerID, now) {
		return cortexx.ErrLeaseExpired
	}

	j.State = job.StateCompleted
	j.CompletedAt = &now
	j.LockedBy = id.Nil
	j.LockedUntil = nil
	j.UpdatedAt = now
	return nil
}

// FailJob records a failed execution iff workerID still holds a live
// lease: increments Attempts and either schedules the retry or
// dead-letters the job.
func (m *Store) FailJob(_ context.Context, jobID id.JobID, workerID id.WorkerID, lastError string, retryAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return cortexx.ErrJobNotFound
	}

	now := time.Now().UTC()
	if !j.LeasedBy(workerID, now) {
		return cortexx.ErrLeaseExpired
	}

	j.Attempts++
	j.LastError = lastError
	j.LockedBy = id.Nil
	j.LockedUntil = nil
	j.UpdatedAt = now

	if retryAt != nil {
		j.State = job.StateDelayed
		j.AvailableAt = retryAt.UTC()
	} else {
		j.State = job.StateFailed
	}
	return nil
}

// HeartbeatJob extends the lease iff workerID still holds it.
func (m *Store) HeartbeatJob(_ context.Context, jobID id.JobID, workerID id.WorkerID, extendBy time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return cortexx.ErrJobNotFound
	}

	now := time.Now().UTC()
	if !j.LeasedBy(workerID, now) {
		return cortexx.ErrLeaseExpired
	}

	until := now.Add(extendBy)
	j.LockedUntil = &until
	return nil
}

// CancelJob marks a non-terminal job canceled. The holder of an active
// job observes cancellation when its next heartbeat or settlement fails
// the lease check.
func (m *Store) CancelJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return cortexx.ErrJobNotFound
	}
	if j.Terminal() {
		return nil
	}

	j.State = job.StateCanceled
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// ReapExpiredLeases returns active jobs with an expired lease to waiting
// state, clearing the lease.
func (m *Store) ReapExpiredLeases(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	count := 0
	for _, j := range m.jobs {
		if j.State != job.StateActive {
			continue
		}
		if j.LockedUntil != nil && j.LockedUntil.After(now) {
			continue
		}
		j.State = job.StateWaiting
		j.LockedBy = id.Nil
		j.LockedUntil = nil
		j.StartedAt = nil
		j.AvailableAt = now
		j.UpdatedAt = now
		count++
	}
	return count, nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, cortexx.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// DeleteJob removes a job by ID.
func (m *Store) DeleteJob(_ context.Context, jobID id.JobID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := jobID.String()
	if _, ok := m.jobs[key]; !ok {
		return cortexx.ErrJobNotFound
	}
	delete(m.jobs, key)
	return nil
}

// ListJobsByState returns jobs matching the given state.
func (m *Store) ListJobsByState(_ context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State != state {
			continue
		}
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		if opts.TenantID != "" && j.TenantID != opts.TenantID {
			continue
		}
		cp := *j
		result = append(result, &cp)
	}

	// Sort by CreatedAt for deterministic output.
	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// CountJobs returns the number of jobs matching the given options.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, j := range m.jobs {
		if opts.Queue != "" && j.Queue != opts.Queue {
			continue
		}
		if opts.State != "" && j.State != opts.State {
			continue
		}
		count++
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// DLQ Store
// ──────────────────────────────────────────────────

// PushDLQ adds a failed job entry to the dead letter queue.
func (m *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.dlqs[entry.ID.String()] = &cp
	return nil
}

// ListDLQ returns DLQ entries matching the given options.
func (m *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*dlq.Entry, 0, len(m.dlqs))
	for _, e := range m.dlqs {
		if opts.Queue != "" && e.Queue != opts.Queue {
			continue
		}
		if opts.TenantID != "" && e.TenantID != opts.TenantID {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].FailedAt.Before(result[k].FailedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (m *Store) GetDLQ(_ context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return nil, cortexx.ErrDLQNotFound
	}
	cp := *e
	return &cp, nil
}

// ReplayDLQ marks a DLQ entry as replayed.
func (m *Store) ReplayDLQ(_ context.Context, entryID id.DLQID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return cortexx.ErrDLQNotFound
	}
	now := time.Now().UTC()
	e.ReplayedAt = &now
	return nil
}

// PurgeDLQ removes DLQ entries with FailedAt before the given time.
func (m *Store) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for key, e := range m.dlqs {
		if e.FailedAt.Before(before) {
			delete(m.dlqs, key)
			count++
		}
	}
	return count, nil
}

// CountDLQ returns the total number of entries in the dead letter queue.
func (m *Store) CountDLQ(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.dlqs)), nil
}

// ──────────────────────────────────────────────────
// Billing Store
// ──────────────────────────────────────────────────

// CreatePlan persists a new plan. Plan IDs and slugs are unique.
func (m *Store) CreatePlan(_ context.Context, p *billing.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := p.ID.String()
	if _, exists := m.plans[key]; exists {
		return cortexx.ErrPlanAlreadyExists
	}
	for _, existing := range m.plans {
		if existing.Slug == p.Slug {
			return cortexx.ErrPlanAlreadyExists
		}
	}
	cp := *p
	m.plans[key] = &cp
	return nil
}

// GetPlan retrieves a plan by ID.
func (m *Store) GetPlan(_ context.Context, planID id.PlanID) (*billing.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.plans[planID.String()]
	if !ok {
		return nil, cortexx.ErrPlanNotFound
	}
	cp := *p
	return &cp, nil
}

// GetPlanBySlug retrieves a plan by its slug.
func (m *Store) GetPlanBySlug(_ context.Context, slug string) (*billing.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.plans {
		if p.Slug == slug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, cortexx.ErrPlanNotFound
}

// ListPlans returns all plans.
func (m *Store) ListPlans(_ context.Context) ([]*billing.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*billing.Plan, 0, len(m.plans))
	for _, p := range m.plans {
		cp := *p
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// UpsertSubscription creates or replaces the tenant's subscription row.
func (m *Store) UpsertSubscription(_ context.Context, s *billing.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.upsertSubscriptionLocked(s)
	return nil
}

func (m *Store) upsertSubscriptionLocked(s *billing.Subscription) {
	cp := *s
	cp.UpdatedAt = time.Now().UTC()
	m.subs[s.TenantID] = &cp
}

// GetSubscription retrieves the subscription for a tenant.
func (m *Store) GetSubscription(_ context.Context, tenantID string) (*billing.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.subs[tenantID]
	if !ok {
		return nil, cortexx.ErrSubscriptionNotFound
	}
	cp := *s
	return &cp, nil
}

// ──────────────────────────────────────────────────
// Rate Limit Store
// ──────────────────────────────────────────────────

// GetRateState retrieves the token bucket for a tenant.
func (m *Store) GetRateState(_ context.Context, tenantID string) (*ratelimit.TenantRateState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.rates[tenantID]
	if !ok {
		return nil, cortexx.ErrRateStateNotFound
	}
	cp := *s
	return &cp, nil
}

// CreateRateState inserts a fresh bucket for a tenant.
func (m *Store) CreateRateState(_ context.Context, s *ratelimit.TenantRateState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rates[s.TenantID]; exists {
		return cortexx.ErrRateStateExists
	}
	cp := *s
	m.rates[s.TenantID] = &cp
	return nil
}

// CompareAndSwapRateState persists s only if the stored version still
// equals s.Version, then bumps the version.
func (m *Store) CompareAndSwapRateState(_ context.Context, s *ratelimit.TenantRateState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.rates[s.TenantID]
	if !ok {
		return cortexx.ErrRateStateNotFound
	}
	if stored.Version != s.Version {
		return cortexx.ErrVersionConflict
	}

	cp := *s
	cp.Version++
	m.rates[s.TenantID] = &cp
	return nil
}

// DeleteRateState removes a tenant's bucket.
func (m *Store) DeleteRateState(_ context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rates[tenantID]; !ok {
		return cortexx.ErrRateStateNotFound
	}
	delete(m.rates, tenantID)
	return nil
}

// ──────────────────────────────────────────────────
// Quota Store
// ──────────────────────────────────────────────────

// usageKey builds a composite map key for a live quota counter.
func usageKey(tenantID string, q billing.QuotaType) string {
	return tenantID + ":" + string(q)
}

// GetUsage retrieves the live counter for the pair, if any.
func (m *Store) GetUsage(_ context.Context, tenantID string, q billing.QuotaType) (*quota.Usage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.usages[usageKey(tenantID, q)]
	if !ok {
		return nil, cortexx.ErrUsageNotFound
	}
	cp := *u
	return &cp, nil
}

// ReserveUsage atomically increments the live counter by amount iff the
// result stays within limit. Lazily creates the counter and archives a
// counter from a finished period first.
func (m *Store) ReserveUsage(_ context.Context, tenantID string, q billing.QuotaType, amount, limit int64, periodStart, periodEnd time.Time) (*quota.Usage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	key := usageKey(tenantID, q)

	u, ok := m.usages[key]
	switch {
	case !ok:
		u = &quota.Usage{
			TenantID:    tenantID,
			QuotaType:   q,
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
			UpdatedAt:   now,
		}
		m.usages[key] = u
	case !u.PeriodEnd.After(periodStart):
		// The live counter belongs to a finished period.
		m.archiveUsageLocked(u)
		u.Used = 0
		u.PeriodStart = periodStart
		u.PeriodEnd = periodEnd
		u.UpdatedAt = now
	}

	admitted := limit == billing.Unlimited || u.Used+amount <= limit
	if admitted {
		u.Used += amount
		u.UpdatedAt = now
	}

	cp := *u
	return &cp, admitted, nil
}

// ReleaseUsage decrements the live counter by amount, flooring at zero.
func (m *Store) ReleaseUsage(_ context.Context, tenantID string, q billing.QuotaType, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.usages[usageKey(tenantID, q)]
	if !ok {
		return cortexx.ErrUsageNotFound
	}

	u.Used -= amount
	if u.Used < 0 {
		u.Used = 0
	}
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// RolloverUsage archives every live counter for the tenant and starts
// fresh ones at zero with the new period bounds.
func (m *Store) RolloverUsage(_ context.Context, tenantID string, periodStart, periodEnd time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rolloverUsageLocked(tenantID, periodStart, periodEnd)
	return nil
}

func (m *Store) rolloverUsageLocked(tenantID string, periodStart, periodEnd time.Time) {
	now := time.Now().UTC()
	for _, u := range m.usages {
		if u.TenantID != tenantID {
			continue
		}
		m.archiveUsageLocked(u)
		u.Used = 0
		u.PeriodStart = periodStart
		u.PeriodEnd = periodEnd
		u.UpdatedAt = now
	}
}

func (m *Store) archiveUsageLocked(u *quota.Usage) {
	key := usageKey(u.TenantID, u.QuotaType)
	cp := *u
	m.archive[key] = append(m.archive[key], &cp)
}

// ListArchivedUsage returns retained counters from prior periods.
func (m *Store) ListArchivedUsage(_ context.Context, tenantID string, q billing.QuotaType) ([]*quota.Usage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.archive[usageKey(tenantID, q)]
	result := make([]*quota.Usage, 0, len(stored))
	for _, u := range stored {
		cp := *u
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].PeriodStart.Before(result[k].PeriodStart)
	})

	return result, nil
}

// ──────────────────────────────────────────────────
// Webhook Ledger Store
// ──────────────────────────────────────────────────

// RecordEvent inserts the event keyed by its external ID. On duplicate
// it returns the previously recorded event and created=false.
func (m *Store) RecordEvent(_ context.Context, ev *webhook.Event) (*webhook.Event, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.events[ev.ExternalEventID]; ok {
		cp := *existing
		return &cp, false, nil
	}

	cp := *ev
	m.events[ev.ExternalEventID] = &cp
	out := cp
	return &out, true, nil
}

// GetEvent retrieves a ledger row by external event ID.
func (m *Store) GetEvent(_ context.Context, externalEventID string) (*webhook.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ev, ok := m.events[externalEventID]
	if !ok {
		return nil, cortexx.ErrEventNotFound
	}
	cp := *ev
	return &cp, nil
}

// ApplyResolution persists the subscription state, the quota rollover,
// and the ledger outcome under a single lock so readers never observe a
// partially applied event. First writer wins: an already processed row
// is never overwritten.
func (m *Store) ApplyResolution(_ context.Context, res *webhook.Resolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[res.ExternalEventID]
	if !ok {
		return cortexx.ErrEventNotFound
	}
	if ev.ProcessedAt != nil {
		// A concurrent delivery resolved the event first; its recorded
		// outcome stands.
		return cortexx.ErrDuplicateEvent
	}

	if res.Subscription != nil {
		m.upsertSubscriptionLocked(res.Subscription)
	}
	if res.Rollover {
		m.rolloverUsageLocked(res.TenantID, res.PeriodStart, res.PeriodEnd)
	}

	now := time.Now().UTC()
	ev.Outcome = res.Outcome
	ev.Reason = res.Reason
	ev.ProcessedAt = &now
	return nil
}

// ListEvents returns ledger rows, newest first.
func (m *Store) ListEvents(_ context.Context, opts webhook.ListOpts) ([]*webhook.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*webhook.Event, 0, len(m.events))
	for _, ev := range m.events {
		if opts.TenantID != "" && ev.TenantID != opts.TenantID {
			continue
		}
		cp := *ev
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].ReceivedAt.After(result[k].ReceivedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// Cluster Store
// ──────────────────────────────────────────────────

// RegisterWorker adds a new worker to the cluster registry.
func (m *Store) RegisterWorker(_ context.Context, w *cluster.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *w
	m.workers[w.ID.String()] = &cp
	return nil
}

// DeregisterWorker removes a worker from the cluster registry.
func (m *Store) DeregisterWorker(_ context.Context, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := workerID.String()
	if _, ok := m.workers[key]; !ok {
		return cortexx.ErrWorkerNotFound
	}
	delete(m.workers, key)
	return nil
}

// HeartbeatWorker updates the last-seen timestamp for a worker.
func (m *Store) HeartbeatWorker(_ context.Context, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.workers[workerID.String()]
	if !ok {
		return cortexx.ErrWorkerNotFound
	}
	w.LastSeen = time.Now().UTC()
	return nil
}

// ListWorkers returns all registered workers.
func (m *Store) ListWorkers(_ context.Context) ([]*cluster.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*cluster.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		cp := *w
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.Before(result[k].CreatedAt)
	})

	return result, nil
}

// ReapDeadWorkers returns workers whose last-seen timestamp is older than
// the given threshold.
func (m *Store) ReapDeadWorkers(_ context.Context, threshold time.Duration) ([]*cluster.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-threshold)
	var dead []*cluster.Worker
	for _, w := range m.workers {
		if w.LastSeen.Before(cutoff) {
			cp := *w
			dead = append(dead, &cp)
		}
	}
	return dead, nil
}

// AcquireLeadership attempts to become the cluster leader.
func (m *Store) AcquireLeadership(_ context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	wKey := workerID.String()

	// If there's already a leader whose TTL hasn't expired and it's not us, fail.
	if m.leader != "" && m.leaderUntil.After(now) && m.leader != wKey {
		return false, nil
	}

	// Acquire (or re-acquire) leadership.
	m.leader = wKey
	m.leaderUntil = now.Add(ttl)

	// Update worker record.
	if w, ok := m.workers[wKey]; ok {
		w.IsLeader = true
		until := m.leaderUntil
		w.LeaderUntil = &until
	}

	return true, nil
}

// RenewLeadership extends the leader's hold.
func (m *Store) RenewLeadership(_ context.Context, workerID id.WorkerID, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wKey := workerID.String()
	if m.leader != wKey {
		return false, nil
	}

	m.leaderUntil = time.Now().UTC().Add(ttl)

	if w, ok := m.workers[wKey]; ok {
		until := m.leaderUntil
		w.LeaderUntil = &until
	}

	return true, nil
}

// GetLeader returns the current cluster leader, or nil if there is no leader.
func (m *Store) GetLeader(_ context.Context) (*cluster.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.leader == "" || m.leaderUntil.Before(time.Now().UTC()) {
		return nil, nil
	}

	w, ok := m.workers[m.leader]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

// paginate applies offset/limit to a sorted result slice.
func paginate[T any](result []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(result) {
			return nil
		}
		result = result[offset:]
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
