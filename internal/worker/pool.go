package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrPoolClosed is returned by Execute once the pool has been closed.
var ErrPoolClosed = errors.New("worker: pool is closed")

// Config tunes a Pool's behavior.
type Config struct {
	// MaxPoolSize bounds the number of worker processes the pool will
	// ever have in flight at once.
	MaxPoolSize int
	// IdlePoolSize is how many idle workers stay warm between tasks.
	IdlePoolSize int
	// AcquireTimeout bounds how long Execute waits for an idle worker
	// once the pool is already at MaxPoolSize.
	AcquireTimeout time.Duration
	// CloseDrainTimeout bounds how long Close waits for in-flight tasks
	// to finish before force-terminating their workers.
	CloseDrainTimeout time.Duration
}

// DefaultConfig returns sane defaults grounded on the teacher's sandbox
// pool sizing (PoolSize/MaxPoolSize), adapted to a single homogeneous
// worker kind instead of one pool per language.
func DefaultConfig() Config {
	return Config{
		MaxPoolSize:       8,
		IdlePoolSize:      2,
		AcquireTimeout:    10 * time.Second,
		CloseDrainTimeout: 15 * time.Second,
	}
}

// Pool dispatches heavyweight tool tasks to a bounded set of reusable
// workers, growing up to MaxPoolSize on demand and recycling workers
// between tasks rather than paying spawn cost per call.
type Pool struct {
	config  Config
	backend backend
	logger  *slog.Logger

	mu        sync.Mutex
	idle      []spawnedWorker
	active    int
	closed    bool
	inflight  sync.WaitGroup
	closeOnce sync.Once

	stats Stats
}

// NewPool constructs a Pool that spawns workers through backend.
func NewPool(cfg Config, backend backend, logger *slog.Logger) *Pool {
	if cfg.MaxPoolSize <= 0 {
		cfg.MaxPoolSize = DefaultConfig().MaxPoolSize
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultConfig().AcquireTimeout
	}
	if cfg.CloseDrainTimeout <= 0 {
		cfg.CloseDrainTimeout = DefaultConfig().CloseDrainTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		config:  cfg,
		backend: backend,
		logger:  logger.With("component", "worker_pool"),
	}
}

// Execute runs task on a pooled worker, returning its Result. A task
// whose context is already canceled is rejected before any worker is
// borrowed and before it counts toward TotalTasks.
func (p *Pool) Execute(ctx context.Context, task Task, onProgress func(stage, text string, percent float64)) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Result{}, ErrPoolClosed
	}
	p.mu.Unlock()

	atomic.AddInt64(&p.stats.TotalTasks, 1)
	atomic.AddInt64(&p.stats.QueuedTasks, 1)

	w, err := p.acquire(ctx)
	atomic.AddInt64(&p.stats.QueuedTasks, -1)
	if err != nil {
		atomic.AddInt64(&p.stats.FailedTasks, 1)
		return Result{}, err
	}

	p.inflight.Add(1)
	defer p.inflight.Done()

	result, err := w.execute(ctx, task, onProgress)
	if err != nil || !w.alive() {
		if err != nil {
			atomic.AddInt64(&p.stats.FailedTasks, 1)
		} else {
			atomic.AddInt64(&p.stats.CompletedTasks, 1)
		}
		p.discard(w)
		return result, err
	}

	atomic.AddInt64(&p.stats.CompletedTasks, 1)
	p.release(w)
	return result, nil
}

// acquire borrows an idle worker or spawns a new one up to
// MaxPoolSize, waiting up to AcquireTimeout once the pool is saturated.
func (p *Pool) acquire(ctx context.Context) (spawnedWorker, error) {
	p.mu.Lock()
	for len(p.idle) > 0 {
		w := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if w.alive() {
			p.mu.Unlock()
			return w, nil
		}
		p.active--
	}
	if p.active < p.config.MaxPoolSize {
		p.active++
		p.mu.Unlock()
		w, err := p.backend.spawn(ctx)
		if err != nil {
			p.mu.Lock()
			p.active--
			p.mu.Unlock()
			return nil, fmt.Errorf("spawn worker: %w", err)
		}
		return w, nil
	}
	p.mu.Unlock()

	timeout := time.NewTimer(p.config.AcquireTimeout)
	defer timeout.Stop()
	poll := time.NewTicker(25 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout.C:
			return nil, fmt.Errorf("timed out waiting for an available worker")
		case <-poll.C:
			p.mu.Lock()
			if len(p.idle) > 0 {
				w := p.idle[len(p.idle)-1]
				p.idle = p.idle[:len(p.idle)-1]
				p.mu.Unlock()
				if w.alive() {
					return w, nil
				}
				p.mu.Lock()
				p.active--
				p.mu.Unlock()
				continue
			}
			p.mu.Unlock()
		}
	}
}

// release returns a worker to the idle set, closing it instead if the
// pool already holds IdlePoolSize idle workers or has been closed.
func (p *Pool) release(w spawnedWorker) {
	p.mu.Lock()
	if p.closed || len(p.idle) >= maxInt(p.config.IdlePoolSize, 0) {
		p.active--
		p.mu.Unlock()
		w.close()
		return
	}
	p.idle = append(p.idle, w)
	p.mu.Unlock()
}

// discard closes a worker and removes it from the active count without
// returning it to the idle set, used after a failed or dead execution.
func (p *Pool) discard(w spawnedWorker) {
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
	w.close()
}

// Stats returns a point-in-time snapshot of pool activity.
func (p *Pool) Stats() Stats {
	return Stats{
		TotalTasks:     atomic.LoadInt64(&p.stats.TotalTasks),
		CompletedTasks: atomic.LoadInt64(&p.stats.CompletedTasks),
		FailedTasks:    atomic.LoadInt64(&p.stats.FailedTasks),
		QueuedTasks:    atomic.LoadInt64(&p.stats.QueuedTasks),
	}
}

// Close stops accepting new tasks, waits up to CloseDrainTimeout for
// in-flight tasks to finish, then force-closes every remaining worker.
func (p *Pool) Close(ctx context.Context) error {
	var closeErr error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		idle := p.idle
		p.idle = nil
		p.mu.Unlock()

		for _, w := range idle {
			w.close()
		}

		drained := make(chan struct{})
		go func() {
			p.inflight.Wait()
			close(drained)
		}()

		timer := time.NewTimer(p.config.CloseDrainTimeout)
		defer timer.Stop()
		select {
		case <-drained:
		case <-timer.C:
			p.logger.Warn("closing worker pool before all tasks drained")
		case <-ctx.Done():
			closeErr = ctx.Err()
		}

		p.mu.Lock()
		leftover := p.idle
		p.idle = nil
		p.mu.Unlock()
		for _, w := range leftover {
			w.close()
		}
	})
	return closeErr
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
