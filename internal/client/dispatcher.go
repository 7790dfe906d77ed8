package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/star-achiever/star/internal/domain"
)

// Dispatcher runs background sync jobs one at a time, in submission order.
//
// Writes for a family are therefore naturally serialised: a toggle's
// record_log is on the wire before the next toggle's. Submit never blocks
// the caller.
type Dispatcher struct {
	mu        sync.Mutex
	config    DispatcherConfig
	queue     chan job
	pending   sync.WaitGroup
	done      chan struct{}
	closed    bool
	active    bool
	completed int64
	failed    int64
	log       *slog.Logger
}

// DispatcherConfig controls dispatcher behaviour.
type DispatcherConfig struct {
	QueueDepth int           // jobs held before Submit rejects (default: 256)
	JobTimeout time.Duration // upper bound per job (default: 30s)
}

// DefaultDispatcherConfig returns safe defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueDepth: 256,
		JobTimeout: 30 * time.Second,
	}
}

type job struct {
	name string
	run  func(ctx context.Context) error
}

// NewDispatcher starts the worker.
func NewDispatcher(cfg DispatcherConfig, log *slog.Logger) *Dispatcher {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultDispatcherConfig().QueueDepth
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultDispatcherConfig().JobTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		config: cfg,
		queue:  make(chan job, cfg.QueueDepth),
		done:   make(chan struct{}),
		log:    log.With("component", "dispatcher"),
	}
	go d.loop()
	return d
}

// Submit queues fn. It returns immediately.
func (d *Dispatcher) Submit(name string, fn func(ctx context.Context) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return domain.ErrDispatcherClosed
	}
	d.pending.Add(1)
	select {
	case d.queue <- job{name: name, run: fn}:
		return nil
	default:
		d.pending.Done()
		return fmt.Errorf("dispatcher at capacity (%d queued jobs)", d.config.QueueDepth)
	}
}

// Wait blocks until every job submitted so far has finished.
func (d *Dispatcher) Wait() { d.pending.Wait() }

// Close stops accepting jobs, drains the queue and stops the worker.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for j := range d.queue {
		d.execute(j)
	}
}

func (d *Dispatcher) execute(j job) {
	defer d.pending.Done()

	d.mu.Lock()
	d.active = true
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), d.config.JobTimeout)
	err := j.run(ctx)
	cancel()

	d.mu.Lock()
	d.active = false
	if err != nil {
		d.failed++
	} else {
		d.completed++
	}
	d.mu.Unlock()

	if err != nil {
		d.log.Warn("sync job failed", "job", j.name, "error", err)
		return
	}
	d.log.Debug("sync job done", "job", j.name)
}

// DispatcherStats is a snapshot of dispatcher counters.
type DispatcherStats struct {
	Active    bool  `json:"active"`
	Queued    int   `json:"queued"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Stats returns current dispatcher statistics.
func (d *Dispatcher) Stats() DispatcherStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DispatcherStats{
		Active:    d.active,
		Queued:    len(d.queue),
		Completed: d.completed,
		Failed:    d.failed,
	}
}
