package taskrunner

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Executor runs a submitted task, returning immediately. Sink uses one to
// mirror spec's "user-provided thread pool (or runs inline if none)".
type Executor interface {
	Submit(fn func())
}

type inlineExecutor struct{}

func (inlineExecutor) Submit(fn func()) { fn() }

// InlineExecutor runs every task synchronously on the Sink's dispatch
// goroutine — the "no scheduler supplied" case.
func InlineExecutor() Executor { return inlineExecutor{} }

type semaphoreExecutor struct {
	sem *semaphore.Weighted
}

func (e *semaphoreExecutor) Submit(fn func()) {
	// Acquire blocks the dispatch loop, not the caller of AddTask, which
	// is exactly the backpressure the sink wants: don't spawn more
	// in-flight tasks than maxConcurrency.
	_ = e.sem.Acquire(context.Background(), 1)
	go func() {
		defer e.sem.Release(1)
		fn()
	}()
}

// NewBoundedExecutor returns an Executor backed by golang.org/x/sync/
// semaphore that runs at most maxConcurrency tasks at once.
func NewBoundedExecutor(maxConcurrency int64) Executor {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &semaphoreExecutor{sem: semaphore.NewWeighted(maxConcurrency)}
}
