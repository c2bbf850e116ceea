package core

// pool.go implements the bounded worker pool every sync job runs on.
//
// Jobs from uploads, manual triggers and schedule fires share one FIFO queue
// with no priorities. A fixed number of workers drain it, so the number of
// concurrent syncs stays bounded no matter how many tenants have schedules.
// When the queue stays full for maxWait, Submit fails with ErrQueueFull.
//
// Stop closes the queue; workers finish everything already queued before
// exiting, so no caller waiting on a job is left hanging.

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrQueueFull is returned when the queue stays full for the wait timeout.
// Clients should retry after a short delay.
var ErrQueueFull = errors.New("sync queue is full, please try again later")

// ErrPoolStopped is returned by Submit after Stop.
var ErrPoolStopped = errors.New("worker pool stopped")

// Default pool sizing.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 100
	DefaultMaxWait   = 5 * time.Second
)

// Task is one unit of work. ctx is the pool's base context.
type Task func(ctx context.Context)

// WorkerPool runs tasks on a fixed set of goroutines.
type WorkerPool struct {
	queue   chan Task
	workers int
	maxWait time.Duration

	active atomic.Int64

	// mu guards started and stopped. Submit holds it shared while sending
	// so Stop never closes the queue under a pending send.
	mu      sync.RWMutex
	started bool
	stopped bool

	wg sync.WaitGroup
}

// NewWorkerPool creates a pool with the given worker count and queue size.
// Zero values fall back to the defaults.
func NewWorkerPool(workers, queueSize int, maxWait time.Duration) *WorkerPool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}

	return &WorkerPool{
		queue:   make(chan Task, queueSize),
		workers: workers,
		maxWait: maxWait,
	}
}

// Start launches the workers. Tasks receive ctx. Calling Start twice is a no-op.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx)
	}
}

func (p *WorkerPool) work(ctx context.Context) {
	defer p.wg.Done()
	for task := range p.queue {
		p.run(ctx, task)
	}
}

func (p *WorkerPool) run(ctx context.Context, task Task) {
	p.active.Add(1)
	defer p.active.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sync task panicked", "panic", r)
		}
	}()
	task(ctx)
}

// Submit enqueues a task, waiting up to maxWait for queue space.
// Returns ErrQueueFull on timeout, ErrPoolStopped after Stop, or ctx's error.
func (p *WorkerPool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.queue <- task:
		return nil
	default:
	}

	timer := time.NewTimer(p.maxWait)
	defer timer.Stop()

	select {
	case p.queue <- task:
		return nil
	case <-timer.C:
		return ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the queue and waits until queued and running tasks finish or
// ctx is done.
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveCount returns the number of tasks currently running.
func (p *WorkerPool) ActiveCount() int {
	return int(p.active.Load())
}

// QueueLen returns the number of tasks waiting for a worker.
func (p *WorkerPool) QueueLen() int {
	return len(p.queue)
}

// WaitForDrain blocks until nothing is queued or running, or ctx is done.
func (p *WorkerPool) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if p.ActiveCount() == 0 && p.QueueLen() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PoolStatus is a snapshot of the pool for monitoring.
type PoolStatus struct {
	Workers   int `json:"workers"`
	Active    int `json:"active"`
	Queued    int `json:"queued"`
	QueueSize int `json:"queue_size"`
}

// Status returns the current pool state.
func (p *WorkerPool) Status() PoolStatus {
	return PoolStatus{
		Workers:   p.workers,
		Active:    p.ActiveCount(),
		Queued:    len(p.queue),
		QueueSize: cap(p.queue),
	}
}
