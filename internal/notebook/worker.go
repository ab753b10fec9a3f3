package notebook

import (
	"context"
	"errors"
	"fmt"
	"sync"

	. "github.com/roelfdiedericks/notebooklm-mcp/internal/logging"
)

// ErrWorkerStopped is returned for jobs submitted after Stop.
var ErrWorkerStopped = errors.New("session worker stopped")

type job struct {
	fn   func(ctx context.Context) error
	done chan error
}

// Worker runs jobs one at a time on a dedicated goroutine, in submission
// order. Jobs receive the worker's lifetime context, not the caller's.
type Worker struct {
	jobs   chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewWorker starts a worker.
func NewWorker() *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		jobs:   make(chan job),
		ctx:    ctx,
		cancel: cancel,
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case j := <-w.jobs:
			j.done <- w.run(j)
		}
	}
}

func (w *Worker) run(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			L_error("worker: job panicked", "panic", r)
			err = fmt.Errorf("session job panicked: %v", r)
		}
	}()
	return j.fn(w.ctx)
}

// Do runs fn on the worker and waits for it. If ctx ends first, Do returns
// ctx.Err() but fn keeps running to completion: abandoning a call does not
// interrupt an in-flight browser operation. Only Stop does.
func (w *Worker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	j := job{fn: fn, done: make(chan error, 1)}

	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ctx.Done():
		return ErrWorkerStopped
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		L_debug("worker: caller gave up, job continues in background")
		return ctx.Err()
	}
}

// Stop cancels the running job's context and waits for the worker to exit.
func (w *Worker) Stop() {
	w.once.Do(func() {
		w.cancel()
		w.wg.Wait()
	})
}

// call runs fn on w and returns its value.
func call[T any](ctx context.Context, w *Worker, fn func(ctx context.Context) (T, error)) (T, error) {
	out := make(chan T, 1)
	err := w.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		out <- v
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return <-out, nil
}
