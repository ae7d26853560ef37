// Package scheduler runs long-lived workers servicing independent
// per-account pipelines, and drives ScheduledTasks to completion, emitting
// a TaskExecution per invocation. Grounded on spec §5 ("pool of long-lived
// workers servicing independent per-account pipelines... stages ordered
// within a pipeline but may overlap across accounts") and structurally on
// the teacher's internal/workers/pool.go worker pool
// (benedict-anokye-davies-atlas-ai/trading-backend), trimmed of the
// throughput-benchmarking machinery that pipeline has no use for here.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is a unit of scheduled work.
type Task interface {
	Execute(ctx context.Context) error
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context) error

func (f TaskFunc) Execute(ctx context.Context) error { return f(ctx) }

// PoolConfig configures the worker pool.
type PoolConfig struct {
	Name        string
	NumWorkers  int
	QueueSize   int
	TaskTimeout time.Duration
}

// DefaultPoolConfig returns sensible defaults for a control-plane worker
// pool (spec §5: blocking I/O per-worker, CPU-bound fitting/training run on
// the owning worker).
func DefaultPoolConfig(name string) PoolConfig {
	return PoolConfig{
		Name:        name,
		NumWorkers:  8,
		QueueSize:   10000,
		TaskTimeout: 5 * time.Minute,
	}
}

// Pool manages a bounded set of worker goroutines pulling from a shared
// task queue, each processing tasks to completion before pulling another.
// The pool gives no ordering between tasks; Scheduler keeps one account's
// tasks from overlapping with a per-account lock.
type Pool struct {
	logger *zap.Logger
	config PoolConfig

	taskQueue chan Task
	wg        sync.WaitGroup

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	timedOut  atomic.Int64
}

// NewPool returns a ready-to-Start pool.
func NewPool(logger *zap.Logger, config PoolConfig) *Pool {
	if config.NumWorkers <= 0 {
		config = DefaultPoolConfig(config.Name)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		logger:    logger,
		config:    config,
		taskQueue: make(chan Task, config.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	if p.running.Swap(true) {
		return
	}
	p.logger.Info("starting scheduler pool",
		zap.String("name", p.config.Name),
		zap.Int("workers", p.config.NumWorkers))

	for i := 0; i < p.config.NumWorkers; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}
}

func (p *Pool) runWorker(id int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker_id", id))

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.executeTask(log, task)
		}
	}
}

func (p *Pool) executeTask(log *zap.Logger, task Task) {
	ctx, cancel := context.WithTimeout(p.ctx, p.config.TaskTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("scheduler task panicked", zap.Any("panic", r))
				done <- errPanicRecovered
			}
		}()
		done <- task.Execute(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			p.failed.Add(1)
			log.Warn("scheduled task failed", zap.Error(err))
		} else {
			p.completed.Add(1)
		}
	case <-ctx.Done():
		p.timedOut.Add(1)
		log.Warn("scheduled task timed out", zap.Duration("timeout", p.config.TaskTimeout))
	}
}

// Submit enqueues a task, returning ErrQueueFull if the queue is saturated.
func (p *Pool) Submit(task Task) error {
	if !p.running.Load() {
		return errPoolStopped
	}
	select {
	case p.taskQueue <- task:
		p.submitted.Add(1)
		return nil
	default:
		return errQueueFull
	}
}

// Stop signals workers to exit and waits up to timeout for them to drain.
func (p *Pool) Stop(timeout time.Duration) error {
	if !p.running.Swap(false) {
		return nil
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errShutdownTimeout
	}
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Submitted int64
	Completed int64
	Failed    int64
	TimedOut  int64
	QueueLen  int
}

func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		TimedOut:  p.timedOut.Load(),
		QueueLen:  len(p.taskQueue),
	}
}

type poolError string

func (e poolError) Error() string { return string(e) }

const (
	errPoolStopped     poolError = "scheduler pool is stopped"
	errQueueFull       poolError = "scheduler task queue is full"
	errShutdownTimeout poolError = "scheduler shutdown timed out"
	errPanicRecovered  poolError = "scheduler task panic recovered"
)
