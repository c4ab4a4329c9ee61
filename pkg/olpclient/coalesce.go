package olpclient

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// coalescer merges concurrent identical GETs with an empty body, per
// spec.md 4.1: the fingerprint covers method, URL and headers excluding
// Authorization. Callback lists are copied/notified without holding the
// table lock, matching spec.md 5.
type coalescer struct {
	mu      sync.Mutex
	pending map[string]*pendingCall
}

func newCoalescer() *coalescer {
	return &coalescer{pending: map[string]*pendingCall{}}
}

type pendingCall struct {
	mu          sync.Mutex
	subscribers int
	done        bool
	resp        *Response
	err         error
	waiters     []chan struct{}
	cancel      context.CancelFunc
}

// Do executes do at most once per distinct fingerprint among concurrently
// overlapping calls; every caller gets its own copy of the response bytes.
func (c *coalescer) Do(ctx context.Context, req *Request, do func(ctx context.Context) (*Response, error)) (*Response, error) {
	fp := fingerprint(req)

	c.mu.Lock()
	if pc, ok := c.pending[fp]; ok {
		c.mu.Unlock()
		return c.subscribe(ctx, pc)
	}

	callCtx, cancel := context.WithCancel(context.Background())
	pc := &pendingCall{subscribers: 1, cancel: cancel}
	c.pending[fp] = pc
	c.mu.Unlock()

	resp, err := do(callCtx)

	pc.mu.Lock()
	pc.resp, pc.err, pc.done = resp, err, true
	waiters := pc.waiters
	pc.mu.Unlock()

	c.mu.Lock()
	delete(c.pending, fp)
	c.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
	return resp.clone(), err
}

func (c *coalescer) subscribe(ctx context.Context, pc *pendingCall) (*Response, error) {
	pc.mu.Lock()
	if pc.done {
		resp, err := pc.resp, pc.err
		pc.mu.Unlock()
		return resp.clone(), err
	}
	ch := make(chan struct{})
	pc.waiters = append(pc.waiters, ch)
	pc.subscribers++
	pc.mu.Unlock()

	select {
	case <-ch:
		pc.mu.Lock()
		resp, err := pc.resp, pc.err
		pc.mu.Unlock()
		return resp.clone(), err
	case <-ctx.Done():
		pc.mu.Lock()
		pc.subscribers--
		if pc.subscribers == 0 && !pc.done {
			pc.cancel()
		}
		pc.mu.Unlock()
		return nil, ctx.Err()
	}
}

// fingerprint canonicalises (method, url, query, headers minus Authorization)
// so semantically-identical concurrent GETs share one fingerprint.
func fingerprint(req *Request) string {
	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteByte('|')
	b.WriteString(req.Path)
	b.WriteByte('|')
	if req.Query != nil {
		b.WriteString(req.Query.Encode())
	}
	b.WriteByte('|')

	keys := make([]string, 0, len(req.Headers))
	for k := range req.Headers {
		if strings.EqualFold(k, "Authorization") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		vals := append([]string(nil), req.Headers[k]...)
		sort.Strings(vals)
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.Join(vals, ","))
		b.WriteByte(';')
	}
	return b.String()
}

// coalescable reports whether req is eligible for coalescing: a GET with no
// body.
func coalescable(req *Request) bool {
	return strings.EqualFold(req.Method, "GET") && len(req.Body) == 0
}
