package core

// jobs.go tracks sync jobs from enqueue to completion.
//
// A slot (tenant, channel) has at most one scheduled or manual job in flight,
// counted from enqueue until the job finishes. A second request for a busy
// slot is coalesced: it is not queued, it is logged, and its completion hook
// never runs. Uploads carry their own bytes and are not coalesced; the tenant
// lock in the reconciler still keeps their writes serialized.
//
// Finished jobs stay available for polling until the retention period ends.

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/menusync/internal/logging"
)

var errSyncPanicked = errors.New("sync aborted by an internal error")

// DefaultJobRetention is how long finished jobs remain pollable.
const DefaultJobRetention = time.Hour

// Job is one enqueued sync run.
type Job struct {
	ID         string
	Request    JobRequest
	EnqueuedAt time.Time

	done chan struct{}

	mu         sync.Mutex
	status     JobStatus
	result     SyncResult
	finishedAt time.Time
}

// Done is closed when the job has finished.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Snapshot returns the job's current state as a SyncResult. Unfinished jobs
// report StatusRunning and a "still running" error so that exactly one of
// stats and error stays populated.
func (j *Job) Snapshot() SyncResult {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != StatusRunning {
		r := j.result
		r.JobID = j.ID
		return r
	}
	return SyncResult{
		Success: false,
		Message: "Sync still running",
		Error:   "sync still running; poll /sync/jobs/" + j.ID + " for the result",
		Status:  StatusRunning,
		JobID:   j.ID,
	}
}

func (j *Job) finished() (time.Time, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.finishedAt, j.status != StatusRunning
}

// CompletionHook runs after a job finishes, before waiters are released.
type CompletionHook func(ctx context.Context, job *Job, result SyncResult)

// JobManager enqueues jobs on the worker pool and keeps their results.
type JobManager struct {
	pool      *WorkerPool
	syncer    *Syncer
	publisher EventPublisher
	retention time.Duration
	now       func() time.Time

	mu       sync.Mutex
	jobs     map[string]*Job
	inflight map[SlotKey]string
}

// NewJobManager creates a manager. publisher may be nil.
func NewJobManager(pool *WorkerPool, syncer *Syncer, publisher EventPublisher, retention time.Duration) *JobManager {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if retention <= 0 {
		retention = DefaultJobRetention
	}
	return &JobManager{
		pool:      pool,
		syncer:    syncer,
		publisher: publisher,
		retention: retention,
		now:       time.Now,
		jobs:      make(map[string]*Job),
		inflight:  make(map[SlotKey]string),
	}
}

// Enqueue submits a job. For non-upload requests a busy slot coalesces the
// request: the returned job is the one already in flight and coalesced is
// true. onDone may be nil.
func (m *JobManager) Enqueue(ctx context.Context, req JobRequest, onDone CompletionHook) (job *Job, coalesced bool, err error) {
	stored := req
	stored.Data = nil
	job = &Job{
		ID:         uuid.NewString(),
		Request:    stored,
		EnqueuedAt: m.now(),
		status:     StatusRunning,
		done:       make(chan struct{}),
	}
	exclusive := req.Trigger != TriggerUpload

	m.mu.Lock()
	if exclusive {
		if id, busy := m.inflight[req.Slot()]; busy {
			current := m.jobs[id]
			m.mu.Unlock()
			logging.WithFields(ctx,
				"restaurant_id", req.TenantID,
				"sync_type", req.SyncType,
				"trigger", req.Trigger,
				"running_job_id", id,
			).Info("sync coalesced, slot already busy")
			return current, true, nil
		}
		m.inflight[req.Slot()] = job.ID
	}
	m.jobs[job.ID] = job
	m.mu.Unlock()

	err = m.pool.Submit(ctx, func(poolCtx context.Context) {
		m.execute(poolCtx, job, req, onDone)
	})
	if err != nil {
		m.mu.Lock()
		delete(m.jobs, job.ID)
		if exclusive {
			delete(m.inflight, req.Slot())
		}
		m.mu.Unlock()
		return nil, false, err
	}

	logging.WithFields(ctx,
		"job_id", job.ID,
		"restaurant_id", req.TenantID,
		"sync_type", req.SyncType,
		"trigger", req.Trigger,
	).Info("sync job queued")
	return job, false, nil
}

func (m *JobManager) execute(ctx context.Context, job *Job, req JobRequest, onDone CompletionHook) {
	logger := slog.Default().With(
		"job_id", job.ID,
		"restaurant_id", req.TenantID,
		"sync_type", req.SyncType,
		"trigger", req.Trigger,
	)
	ctx = logging.NewContext(ctx, logger)

	started := m.now()
	result := Failed("Sync failed", UserFacingError(errSyncPanicked))
	finished := started

	// The slot is released and waiters are woken even when the sync or the
	// hooks panic; the pool recovers the panic after this runs.
	defer func() {
		job.mu.Lock()
		job.result = result
		job.result.JobID = job.ID
		job.status = job.result.Status
		job.finishedAt = finished
		job.mu.Unlock()

		m.mu.Lock()
		if m.inflight[req.Slot()] == job.ID {
			delete(m.inflight, req.Slot())
		}
		m.mu.Unlock()

		close(job.done)
	}()

	result = m.run(ctx, logger, req)
	result.JobID = job.ID
	finished = m.now()

	if onDone != nil {
		onDone(ctx, job, result)
	}

	if err := m.publisher.PublishSyncResult(ctx, SyncEvent{
		JobID:      job.ID,
		TenantID:   req.TenantID,
		SyncType:   req.SyncType,
		Trigger:    req.Trigger,
		Source:     req.displayName(),
		Result:     result,
		StartedAt:  started,
		FinishedAt: finished,
	}); err != nil {
		logger.Warn("publish sync event failed", "error", err)
	}
}

// run executes the sync, turning a panic into a failed result.
func (m *JobManager) run(ctx context.Context, logger *slog.Logger, req JobRequest) (result SyncResult) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("sync job panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			result = Failed("Sync failed", UserFacingError(errSyncPanicked))
		}
	}()
	return m.syncer.Run(ctx, req)
}

// Wait blocks until the job finishes, timeout elapses or ctx is done.
// An unfinished job yields its running snapshot.
func (m *JobManager) Wait(ctx context.Context, job *Job, timeout time.Duration) SyncResult {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-job.Done():
	case <-timer.C:
	case <-ctx.Done():
	}
	return job.Snapshot()
}

// Get returns a job by id.
func (m *JobManager) Get(id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// InFlight reports whether a job is queued or running for the slot.
func (m *JobManager) InFlight(slot SlotKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inflight[slot]
	return ok
}

// Cleanup drops finished jobs older than the retention period and returns
// how many were removed.
func (m *JobManager) Cleanup() int {
	cutoff := m.now().Add(-m.retention)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, job := range m.jobs {
		if at, done := job.finished(); done && at.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (m *JobManager) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Cleanup(); n > 0 {
				slog.Debug("expired sync jobs removed", "count", n)
			}
		}
	}
}

// PoolStatus exposes the worker pool state.
func (m *JobManager) PoolStatus() PoolStatus {
	return m.pool.Status()
}
