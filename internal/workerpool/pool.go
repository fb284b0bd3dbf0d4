package workerpool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/seapear/AffinityOnLinux/internal/logging"
)

var log = logging.L("workerpool")

// Task is a unit of work. It should return promptly once ctx is done.
type Task func(ctx context.Context) error

// TaskError pairs a failed task's name with its error.
type TaskError struct {
	Name string
	Err  error
}

func (e TaskError) Error() string {
	return e.Name + ": " + e.Err.Error()
}

func (e TaskError) Unwrap() error {
	return e.Err
}

// Pool runs named tasks on a bounded number of goroutines and collects
// their failures.
type Pool struct {
	sem       chan struct{}
	wg        sync.WaitGroup
	accepting atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc

	mu   sync.Mutex
	errs []TaskError
}

// New creates a pool running at most maxWorkers tasks at once. Tasks receive
// a context derived from ctx that is cancelled by Shutdown.
func New(ctx context.Context, maxWorkers int) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	p := &Pool{sem: make(chan struct{}, maxWorkers)}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.accepting.Store(true)
	log.Debug("worker pool started", zap.Int("workers", maxWorkers))
	return p
}

// Context returns the context handed to tasks.
func (p *Pool) Context() context.Context {
	return p.ctx
}

// Submit schedules task. It returns false after StopAccepting or Shutdown.
func (p *Pool) Submit(name string, task Task) bool {
	if !p.accepting.Load() {
		return false
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		select {
		case p.sem <- struct{}{}:
		case <-p.ctx.Done():
			p.record(name, p.ctx.Err())
			return
		}
		defer func() { <-p.sem }()
		p.runTask(name, task)
	}()
	return true
}

// StopAccepting prevents new tasks from being submitted.
func (p *Pool) StopAccepting() {
	p.accepting.Store(false)
}

// Wait stops accepting tasks, blocks until every submitted task has
// finished and returns the failures in completion order.
func (p *Pool) Wait() []TaskError {
	p.StopAccepting()
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TaskError(nil), p.errs...)
}

// Shutdown stops accepting tasks, cancels the task context and waits for
// running tasks until ctx is done.
func (p *Pool) Shutdown(ctx context.Context) {
	p.StopAccepting()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug("worker pool drained")
	case <-ctx.Done():
		log.Warn("worker pool drain timed out")
	}
}

func (p *Pool) runTask(name string, task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked", zap.String("task", name), zap.Any("panic", r), zap.String("stack", string(debug.Stack())))
			p.record(name, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := task(p.ctx); err != nil {
		p.record(name, err)
	}
}

func (p *Pool) record(name string, err error) {
	p.mu.Lock()
	p.errs = append(p.errs, TaskError{Name: name, Err: err})
	p.mu.Unlock()
}
