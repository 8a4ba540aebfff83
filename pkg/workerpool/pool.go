// Package workerpool runs tasks on a fixed number of goroutines.
//
//	pool := workerpool.New(ctx, 8)
//	defer pool.Shutdown()
//
//	for _, d := range drafts {
//	    d := d
//	    if err := pool.SubmitWait(ctx, func(ctx context.Context) {
//	        svc.CommitSale(ctx, d)
//	    }); err != nil {
//	        break
//	    }
//	}
//
// Submit never blocks and returns ErrPoolFull when every worker is busy and
// the buffer is full; SubmitWait waits for room.
package workerpool

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/shashiranjanraj/ventas/pkg/logger"
)

var (
	ErrPoolFull   = errors.New("workerpool: pool is full")
	ErrPoolClosed = errors.New("workerpool: pool is closed")
)

// Task receives the pool's context, which is cancelled on Shutdown.
type Task func(ctx context.Context)

type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	tasks  chan Task
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	done   atomic.Int64
	panics atomic.Int64
}

// New starts size workers. Tasks see a context derived from ctx.
func New(ctx context.Context, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(chan Task, size*2),
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit queues task without blocking.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrPoolFull
	}
}

// SubmitWait queues task, waiting for room until ctx is done.
func (p *Pool) SubmitWait(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// Wait stops accepting tasks and returns once every queued task has run.
func (p *Pool) Wait() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Shutdown cancels the tasks' context, then waits like Wait. Safe to call
// more than once.
func (p *Pool) Shutdown() {
	p.cancel()
	p.Wait()
}

// Completed counts tasks that returned, panicked ones included.
func (p *Pool) Completed() int64 { return p.done.Load() }

// Panics counts tasks that panicked.
func (p *Pool) Panics() int64 { return p.panics.Load() }

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		p.done.Add(1)
		if r := recover(); r != nil {
			p.panics.Add(1)
			logger.Error("workerpool: task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	task(p.ctx)
}
