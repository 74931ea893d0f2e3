// Package executor implements the elastic worker pool that runs every
// accept, read, drain, and connect task of a network manager.
//
// Workers are created on demand when no idle worker is waiting for a
// task, and retire after sitting idle for IdleTimeout.  One worker at a
// time holds the anchor: it does not retire while the KeepAlive
// predicate holds, so the pool never drains to zero while a listener is
// accepting, yet empties completely once nothing needs it.
package executor

import (
	"fmt"
	"sync/atomic"
	"time"

	"asyncnet/internal/errors"
	"asyncnet/util"
)

// DefaultIdleTimeout is how long a non-anchor worker waits for new work
// before it exits.
const DefaultIdleTimeout = 60 * time.Second

// Task is a unit of work to execute.
type Task func()

// Options configures an Executor.
type Options struct {
	// Name prefixes worker names ("<name>-<id>").
	Name string
	// IdleTimeout defaults to DefaultIdleTimeout.
	IdleTimeout time.Duration
	// KeepAlive is polled by the anchor worker each time it goes idle;
	// while it returns true the anchor stays alive.  Nil means never.
	KeepAlive func() bool
	Logger    *util.Logger
}

// Executor manages a pool of worker goroutines.
type Executor struct {
	name      string
	idle      time.Duration
	keepAlive func() bool
	logger    *util.Logger

	tasks   chan Task     // unbuffered handoff to idle workers
	closeCh chan struct{} // signals executor shutdown
	closed  atomic.Bool
	anchor  atomic.Bool // held by at most one worker

	nextID    atomic.Int64
	live      atomic.Int32
	submitted atomic.Int64
	completed atomic.Int64
}

// New creates an Executor.  No worker exists until the first Submit.
func New(opts Options) *Executor {
	if opts.Name == "" {
		opts.Name = "worker"
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.KeepAlive == nil {
		opts.KeepAlive = func() bool { return false }
	}
	if opts.Logger == nil {
		opts.Logger = util.NewLogger(0)
	}
	return &Executor{
		name:      opts.Name,
		idle:      opts.IdleTimeout,
		keepAlive: opts.KeepAlive,
		logger:    opts.Logger,
		tasks:     make(chan Task),
		closeCh:   make(chan struct{}),
	}
}

// Submit schedules task on an idle worker, starting a new worker when
// none is waiting.  It never blocks on the task itself.
func (e *Executor) Submit(task Task) error {
	if task == nil {
		return nil
	}
	if e.closed.Load() {
		return errors.ErrExecutorClosed
	}
	e.submitted.Add(1)

	select {
	case e.tasks <- task:
		return nil
	default:
	}
	// Close may have landed after the check above; no worker starts
	// once it has.
	if e.closed.Load() {
		e.submitted.Add(-1)
		return errors.ErrExecutorClosed
	}
	e.spawn(task)
	return nil
}

// NumWorkers returns the current number of live workers.
func (e *Executor) NumWorkers() int { return int(e.live.Load()) }

// Close stops accepting tasks and tells idle workers to exit.  Workers
// busy with a task exit once it returns.
func (e *Executor) Close() {
	if e.closed.CompareAndSwap(false, true) {
		close(e.closeCh)
	}
}

// Closed reports whether Close has been called.
func (e *Executor) Closed() bool { return e.closed.Load() }

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	submitted, completed := e.submitted.Load(), e.completed.Load()
	return map[string]int64{
		"submitted_tasks": submitted,
		"completed_tasks": completed,
		"pending_tasks":   submitted - completed,
		"num_workers":     int64(e.NumWorkers()),
	}
}

func (e *Executor) spawn(first Task) {
	id := e.nextID.Add(1) - 1
	name := fmt.Sprintf("%s-%d", e.name, id)
	e.live.Add(1)
	e.logger.Debug("creating worker %s", name)
	go e.work(name, first)
}

// work is the main loop for a worker.
func (e *Executor) work(name string, task Task) {
	anchored := e.anchor.CompareAndSwap(false, true)
	defer func() {
		if anchored {
			e.anchor.Store(false)
		}
		e.live.Add(-1)
		e.logger.Debug("worker %s exited", name)
	}()

	timer := time.NewTimer(e.idle)
	defer timer.Stop()

	for {
		e.run(name, task)

		timer.Reset(e.idle)
		next, ok := e.next(anchored, timer)
		if !ok {
			return
		}
		task = next
	}
}

// next waits for the worker's next task.  It returns false when the
// worker should exit.
func (e *Executor) next(anchored bool, timer *time.Timer) (Task, bool) {
	for {
		select {
		case task := <-e.tasks:
			return task, true
		case <-e.closeCh:
			return nil, false
		case <-timer.C:
			if anchored && !e.closed.Load() && e.keepAlive() {
				timer.Reset(e.idle)
				continue
			}
			return nil, false
		}
	}
}

// run executes the task, recovering from panics so the worker
// survives a misbehaving callback.
func (e *Executor) run(name string, task Task) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("task panicked on %s: %v", name, r)
		}
		e.completed.Add(1)
	}()
	task()
}
