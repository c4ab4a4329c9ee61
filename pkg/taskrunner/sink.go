package taskrunner

import (
	"container/heap"
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/heremaps/here-data-sdk-go/pkg/olpclient"
)

// Sink is a priority-ordered task scheduler over a pluggable Executor,
// matching spec's "thread-pool-backed scheduler with priorities". Tasks
// registered via AddTask also join the Sink's PendingRequests so Close (or
// an external CancelAllAndWait) can unwind everything in flight.
type Sink struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   taskQueue
	nextSeq int64
	closed  bool

	exec    Executor
	pending *PendingRequests
	log     *zap.Logger
	drain   sync.WaitGroup
}

// NewSink builds a Sink dispatching onto exec (InlineExecutor() if nil).
// pending defaults to a fresh PendingRequests if nil — pass a shared one
// when a client needs a single registry across several sinks.
func NewSink(exec Executor, pending *PendingRequests, log *zap.Logger) *Sink {
	if exec == nil {
		exec = InlineExecutor()
	}
	if pending == nil {
		pending = NewPendingRequests()
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Sink{exec: exec, pending: pending, log: log}
	s.cond = sync.NewCond(&s.mu)
	go s.dispatch()
	return s
}

// AddTask schedules fn to run at priority, returning a CancellationContext
// the caller (or Sink.Close) can use to cancel it. A nil cc allocates a new
// one; a non-nil cc lets callers share cancellation across several tasks.
func (s *Sink) AddTask(fn func(ctx context.Context), priority Priority, cc *olpclient.CancellationContext) *olpclient.CancellationContext {
	if cc == nil {
		cc = olpclient.NewCancellationContext()
	}
	s.pending.Add(cc)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.pending.Remove(cc)
		return cc
	}
	s.nextSeq++
	heap.Push(&s.queue, &task{
		fn:       func() { fn(context.Background()) },
		priority: priority,
		seq:      s.nextSeq,
		cc:       cc,
	})
	s.mu.Unlock()
	s.cond.Signal()
	return cc
}

func (s *Sink) dispatch() {
	// claimed counts runners handed to the executor that have not yet popped
	// a task (guarded by s.mu). A runner pops the highest-priority task only
	// once the executor runs it, so a task queued while every worker is busy
	// still goes ahead of lower-priority tasks queued before it.
	claimed := 0
	for {
		s.mu.Lock()
		for len(s.queue) <= claimed && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) <= claimed && s.closed {
			s.mu.Unlock()
			return
		}
		claimed++
		s.mu.Unlock()

		s.drain.Add(1)
		s.exec.Submit(func() {
			defer s.drain.Done()
			s.mu.Lock()
			t := heap.Pop(&s.queue).(*task)
			claimed--
			s.mu.Unlock()
			defer s.pending.Remove(t.cc)
			if t.cc.IsCancelled() {
				return
			}
			t.fn()
		})
	}
}

// Close sets the closed flag under the mutex, then — without holding it —
// cancels every pending task and waits for the pool to drain. Doing the
// cancel/wait outside the lock avoids deadlocking against a task that
// re-enters AddTask from within its own callback.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()

	s.pending.CancelAllAndWait()
	s.drain.Wait()
}

// Pending exposes the sink's PendingRequests registry.
func (s *Sink) Pending() *PendingRequests { return s.pending }
