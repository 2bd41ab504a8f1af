package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/medspa-inbox/internal/observability/metrics"
	"github.com/wolfman30/medspa-inbox/pkg/logging"
)

const (
	defaultWorkerCount = 2
	defaultBuffer      = 256
	defaultJobTimeout  = 15 * time.Second
)

// ErrClosed is returned by Shutdown when called twice.
var ErrClosed = errors.New("tasks: dispatcher closed")

// Func is a unit of background work.
type Func func(ctx context.Context) error

type job struct {
	name string
	fn   Func
}

type config struct {
	workers int
	buffer  int
	timeout time.Duration
	metrics *metrics.InboxMetrics
}

// Option customizes dispatcher behavior.
type Option func(*config)

// WithWorkers sets the number of goroutines draining the queue.
func WithWorkers(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.workers = n
		}
	}
}

// WithBuffer sets the queue capacity.
func WithBuffer(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.buffer = n
		}
	}
}

// WithJobTimeout bounds each job.
func WithJobTimeout(d time.Duration) Option {
	return func(cfg *config) {
		if d > 0 {
			cfg.timeout = d
		}
	}
}

// WithMetrics counts failed and dropped jobs.
func WithMetrics(m *metrics.InboxMetrics) Option {
	return func(cfg *config) {
		cfg.metrics = m
	}
}

// Dispatcher runs fire-and-forget jobs off the request path. Submit never
// blocks; when the buffer is full the job is dropped, logged and counted.
type Dispatcher struct {
	jobs    chan job
	logger  *logging.Logger
	cfg     config
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	started bool
}

func New(logger *logging.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	cfg := config{
		workers: defaultWorkerCount,
		buffer:  defaultBuffer,
		timeout: defaultJobTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Dispatcher{
		jobs:   make(chan job, cfg.buffer),
		logger: logger,
		cfg:    cfg,
	}
}

// Start launches the workers. Calling it more than once is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.cfg.workers; i++ {
		d.wg.Add(1)
		go d.run(i + 1)
	}
}

// Submit queues fn under name and reports whether it was accepted.
func (d *Dispatcher) Submit(name string, fn Func) bool {
	if d == nil || fn == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("task rejected after shutdown", "task", name)
		d.cfg.metrics.ObserveTaskFailure(name, "closed")
		return false
	}
	select {
	case d.jobs <- job{name: name, fn: fn}:
		return true
	default:
		d.logger.Warn("task queue full; dropping task", "task", name, "buffer", d.cfg.buffer)
		d.cfg.metrics.ObserveTaskFailure(name, "dropped")
		return false
	}
}

// Shutdown stops accepting work and waits for queued jobs to finish or for
// ctx to expire, whichever comes first.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	close(d.jobs)
	started := d.started
	d.mu.Unlock()

	if !started {
		return nil
	}
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tasks: drain: %w", ctx.Err())
	}
}

func (d *Dispatcher) run(workerID int) {
	defer d.wg.Done()
	d.logger.Debug("task worker started", "worker_id", workerID)
	for j := range d.jobs {
		d.execute(j)
	}
	d.logger.Debug("task worker stopped", "worker_id", workerID)
}

func (d *Dispatcher) execute(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.timeout)
	defer cancel()

	start := time.Now()
	err := safeRun(ctx, j.fn)
	if err != nil {
		d.cfg.metrics.ObserveTaskFailure(j.name, "error")
		d.logger.Error("background task failed", "task", j.name, "error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return
	}
	d.logger.Debug("background task completed", "task", j.name,
		"duration_ms", time.Since(start).Milliseconds())
}

func safeRun(ctx context.Context, fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tasks: panic: %v", r)
		}
	}()
	return fn(ctx)
}
