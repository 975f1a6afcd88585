package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

const (
	DefaultWorkers   = 8
	DefaultQueueSize = 1024
)

// VisitRecorder is the work a dispatcher worker performs per visit.
type VisitRecorder interface {
	Record(ctx context.Context, v Visit) (Result, error)
}

// Dispatcher hands visits to a fixed pool of workers through a bounded queue.
// Dispatch never blocks the caller: when the queue is full the visit is
// dropped and counted.
type Dispatcher struct {
	recorder VisitRecorder
	queue    chan Visit
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	dropped atomic.Int64
}

// DispatcherConfig sizes the worker pool and queue. Zero values use the defaults.
type DispatcherConfig struct {
	Workers   int
	QueueSize int
	Logger    *slog.Logger
}

// NewDispatcher starts the worker pool.
func NewDispatcher(recorder VisitRecorder, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		recorder: recorder,
		queue:    make(chan Visit, cfg.QueueSize),
		logger:   cfg.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	d.wg.Add(cfg.Workers)
	for i := range cfg.Workers {
		go d.work(i)
	}
	return d
}

// Dispatch enqueues v and reports whether it was accepted.
func (d *Dispatcher) Dispatch(v Visit) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.dropped.Add(1)
		return false
	}

	select {
	case d.queue <- v:
		return true
	default:
		n := d.dropped.Add(1)
		d.logger.Warn("click queue full, visit dropped", "code", v.Code, "dropped_total", n)
		return false
	}
}

// Dropped is the number of visits rejected since start.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Pending is the number of visits waiting for a worker.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Close stops intake and waits for queued visits to be recorded. If ctx ends
// first, in-flight recordings are cancelled and ctx.Err() is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		d.logger.Info("click dispatcher drained", "dropped_total", d.Dropped())
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		d.logger.Warn("click dispatcher drain interrupted", "dropped_total", d.Dropped())
		return ctx.Err()
	}
}

func (d *Dispatcher) work(id int) {
	defer d.wg.Done()

	for v := range d.queue {
		if d.ctx.Err() != nil {
			d.dropped.Add(1)
			continue
		}

		res, err := d.recorder.Record(d.ctx, v)
		if err != nil {
			d.logger.Error("click not fully recorded",
				"worker", id,
				"code", v.Code,
				"is_unique", res.IsUnique,
				"error", err,
			)
			continue
		}
		d.logger.Debug("click recorded", "worker", id, "code", v.Code, "is_unique", res.IsUnique)
	}
}
