package taskrunner

import "github.com/heremaps/here-data-sdk-go/pkg/olpclient"

type task struct {
	fn       func()
	priority Priority
	seq      int64
	cc       *olpclient.CancellationContext
	index    int
}

// taskQueue is a container/heap.Interface ordering by priority (descending)
// then submission sequence (ascending) — the LOW/NORMAL/HIGH-with-FIFO-
// within-priority rule. No pack dependency offers an ordered work queue, so
// this stays on container/heap (documented in DESIGN.md).
type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	t := x.(*task)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}
