package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
)

// TaskFunc is a unit of work run by the Executor.
type TaskFunc func(ctx context.Context) error

// Future is the pending result of a submitted task.
type Future struct {
	done chan struct{}
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func completed(err error) *Future {
	f := newFuture()
	f.complete(err)
	return f
}

func (f *Future) complete(err error) {
	f.err = err
	close(f.done)
}

// Done is closed once the task finished or was skipped.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the task result. Only meaningful after Done is closed.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the task completes or ctx is done.
// Giving up on a future never affects the task itself.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type task struct {
	ctx context.Context
	fn  TaskFunc
	fut *Future
}

type taskKey struct{}

// Executor runs tasks one at a time in submission order on a single worker.
// Every mutation of the item tree happens while the executor's run lock is held,
// either by the worker or by a synchronous caller (see Sync).
type Executor struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []task
	closed bool

	run  sync.Mutex // held while a task mutates the tree
	done chan struct{}

	logger *slog.Logger
}

// NewExecutor starts the worker goroutine.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &Executor{
		done:   make(chan struct{}),
		logger: logger,
	}
	e.cond = sync.NewCond(&e.mu)
	go e.loop()
	return e
}

// Submit queues fn. If ctx is cancelled before the task starts, the task is
// skipped and its future completes with the context error.
func (e *Executor) Submit(ctx context.Context, fn TaskFunc) *Future {
	fut := newFuture()
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		fut.complete(domain.ErrExecutorClosed)
		return fut
	}
	e.queue = append(e.queue, task{ctx: ctx, fn: fn, fut: fut})
	e.mu.Unlock()
	e.cond.Signal()
	return fut
}

// Sync runs fn on the caller's goroutine while holding the run lock,
// bypassing the queue. Only the task in flight is waited for.
// Called from inside a task, fn runs inline.
func (e *Executor) Sync(ctx context.Context, fn TaskFunc) error {
	if e.InTask(ctx) {
		return fn(ctx)
	}
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return domain.ErrExecutorClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.run.Lock()
	defer e.run.Unlock()
	return e.invoke(context.WithValue(ctx, taskKey{}, e), fn)
}

// Do runs fn and waits for it. Inside a task it runs inline so that
// tasks never wait on work queued behind themselves.
func (e *Executor) Do(ctx context.Context, fn TaskFunc) error {
	if e.InTask(ctx) {
		return fn(ctx)
	}
	return e.Submit(ctx, fn).Wait(ctx)
}

// InTask reports whether ctx belongs to a task running on this executor.
func (e *Executor) InTask(ctx context.Context) bool {
	owner, _ := ctx.Value(taskKey{}).(*Executor)
	return owner == e
}

// Close stops accepting work, fails queued tasks with ErrExecutorClosed and
// waits for the task in flight.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	pending := e.queue
	e.queue = nil
	e.mu.Unlock()
	e.cond.Broadcast()

	for _, t := range pending {
		t.fut.complete(domain.ErrExecutorClosed)
	}
	<-e.done
}

func (e *Executor) loop() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		t := e.queue[0]
		e.queue[0] = task{}
		e.queue = e.queue[1:]
		e.mu.Unlock()

		if err := t.ctx.Err(); err != nil {
			t.fut.complete(err)
			continue
		}

		e.run.Lock()
		err := e.invoke(context.WithValue(t.ctx, taskKey{}, e), t.fn)
		e.run.Unlock()
		t.fut.complete(err)
	}
}

func (e *Executor) invoke(ctx context.Context, fn TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Executor task panicked", "panic", r)
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx)
}
