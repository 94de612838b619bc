package worker

import (
	"context"
	"log"
	"runtime"
	"sync"

	"circle-thumb/src/apperr"
	"circle-thumb/src/compositor"
)

// Result is the outcome of one export: the encoded thumbnail and, when it
// was persisted, the stored filename.
type Result struct {
	PNG      []byte
	Spec     compositor.ExportSpec
	Filename string
}

// Task does the export work. It must honor ctx where it blocks.
type Task func(ctx context.Context) (Result, error)

// ResultCallback is invoked on completion (from a worker goroutine).
// The event loop should pass a closure that posts back into the event loop safely.
type ResultCallback func(Result, error)

// Pool is a fixed-size export worker pool with a 1-slot input queue (strict back-pressure).
type Pool struct {
	jobs chan job
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type job struct {
	ctx  context.Context
	task Task
	cb   ResultCallback
}

// New creates a worker pool. Size defaults to NumCPU when size<=0. Queue is 1 slot.
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{jobs: make(chan job, 1)}
	p.start(size)
	return p
}

func (p *Pool) start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				res, err := runWithContext(j.ctx, j.task)
				log.Printf("Worker: export completed, size=%d, bytes=%d, err=%v", res.Spec.TargetSize, len(res.PNG), err)
				if j.cb != nil {
					j.cb(res, err)
				}
			}
		}()
	}
}

// Submit enqueues a job if the single-slot queue is free. Returns false if dropped.
func (p *Pool) Submit(ctx context.Context, task Task, cb ResultCallback) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- job{ctx: ctx, task: task, cb: cb}:
		return true
	default:
		return false
	}
}

// Run submits task and waits for its result. A full queue yields
// apperr.ErrBusy; the caller may retry.
func (p *Pool) Run(ctx context.Context, task Task) (Result, error) {
	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	if !p.Submit(ctx, task, func(r Result, err error) { done <- outcome{r, err} }) {
		return Result{}, apperr.ErrBusy
	}
	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Close stops the pool after draining current work.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

// runWithContext runs task with a deadline-aware path.
func runWithContext(ctx context.Context, task Task) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	// Fast path: no deadline, run inline.
	if _, ok := ctx.Deadline(); !ok {
		return task(ctx)
	}
	resCh := make(chan struct {
		res Result
		err error
	}, 1)
	go func() {
		res, err := task(ctx)
		resCh <- struct {
			res Result
			err error
		}{res, err}
	}()
	select {
	case r := <-resCh:
		return r.res, r.err
	case <-ctx.Done():
		// The task may keep running in the background; we return timeout.
		return Result{}, ctx.Err()
	}
}
