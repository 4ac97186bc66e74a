package isoworker

import (
	"fmt"

	"go.uber.org/zap"
)

// Pool manages a fixed-size set of pre-warmed Workers sharing the same
// handlers and options. It only hands out idle workers; the serialization
// guarantees of each Worker are unchanged, and fairness between callers is
// whatever the runtime's channel scheduling provides.
type Pool struct {
	workers chan *Worker
	size    int
	logger  *zap.Logger
}

// NewPool creates size workers, runs each warmup script in every one of
// them, and parks them for Get. A warmup failure tears the pool down and
// reports the failed worker's diagnostic.
func NewPool(size int, h Handlers, warmup []string, opts ...Option) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be at least 1, got %d", size)
	}

	p := &Pool{
		workers: make(chan *Worker, size),
		size:    size,
		logger:  zap.NewNop(),
	}

	for i := 0; i < size; i++ {
		w, err := New(h, opts...)
		if err != nil {
			p.Dispose()
			return nil, fmt.Errorf("creating pool worker %d: %w", i, err)
		}
		// Pool events go to the same logger the workers were built with.
		p.logger = w.logger

		for j, src := range warmup {
			if st := w.Load("", src); st != StatusOK {
				exc := w.LastException()
				w.Dispose()
				p.Dispose()
				return nil, fmt.Errorf("warmup script %d in pool worker %d: %s", j, i, exc)
			}
		}
		p.workers <- w
	}

	return p, nil
}

// Size returns the pool's capacity.
func (p *Pool) Size() int { return p.size }

// Get blocks until a worker is idle and hands it out. The caller owns the
// worker until it calls Put or Discard.
func (p *Pool) Get() *Worker {
	return <-p.workers
}

// Put returns a worker to the pool. If the pool is already full the worker
// is disposed instead.
func (p *Pool) Put(w *Worker) {
	select {
	case p.workers <- w:
	default:
		p.logger.Warn("pool overflow, disposing worker", zap.Int("worker_id", w.id))
		w.Dispose()
	}
}

// Discard disposes a worker instead of returning it, e.g. after a
// termination left its guest state suspect. The pool shrinks permanently by
// one slot's worth of warm capacity until the host adds a replacement via
// Put.
func (p *Pool) Discard(w *Worker) {
	p.logger.Warn("discarding pool worker", zap.Int("worker_id", w.id))
	w.Dispose()
}

// Dispose drains the pool and disposes every idle worker. Workers currently
// checked out are the caller's to dispose.
func (p *Pool) Dispose() {
	for {
		select {
		case w := <-p.workers:
			w.Dispose()
		default:
			return
		}
	}
}
