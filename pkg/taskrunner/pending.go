package taskrunner

import (
	"sync"

	"github.com/heremaps/here-data-sdk-go/pkg/olpclient"
)

// PendingRequests is the shared set of in-flight task cancellation contexts
// a Sink (or a prefetch job) registers into. CancelAll/CancelAllAndWait let
// a client cancel every outstanding task, e.g. on shutdown.
type PendingRequests struct {
	mu     sync.Mutex
	active map[*olpclient.CancellationContext]chan struct{}
}

func NewPendingRequests() *PendingRequests {
	return &PendingRequests{active: map[*olpclient.CancellationContext]chan struct{}{}}
}

// Add registers cc as an in-flight task. Safe to call more than once for
// the same cc.
func (p *PendingRequests) Add(cc *olpclient.CancellationContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.active[cc]; ok {
		return
	}
	p.active[cc] = make(chan struct{})
}

// Remove marks cc's task as completed, waking any CancelAllAndWait waiter.
func (p *PendingRequests) Remove(cc *olpclient.CancellationContext) {
	p.mu.Lock()
	done, ok := p.active[cc]
	if ok {
		delete(p.active, cc)
	}
	p.mu.Unlock()
	if ok {
		close(done)
	}
}

// CancelAll cancels every currently-registered task without waiting for
// completion.
func (p *PendingRequests) CancelAll() {
	p.mu.Lock()
	ccs := make([]*olpclient.CancellationContext, 0, len(p.active))
	for cc := range p.active {
		ccs = append(ccs, cc)
	}
	p.mu.Unlock()
	for _, cc := range ccs {
		cc.Cancel()
	}
}

// CancelAllAndWait cancels every registered task and blocks until each has
// signalled completion via remove.
func (p *PendingRequests) CancelAllAndWait() {
	p.mu.Lock()
	ccs := make([]*olpclient.CancellationContext, 0, len(p.active))
	dones := make([]chan struct{}, 0, len(p.active))
	for cc, done := range p.active {
		ccs = append(ccs, cc)
		dones = append(dones, done)
	}
	p.mu.Unlock()

	for _, cc := range ccs {
		cc.Cancel()
	}
	for _, done := range dones {
		<-done
	}
}

// Len reports the number of currently-registered (not yet completed) tasks.
func (p *PendingRequests) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}
