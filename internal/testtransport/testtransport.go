// Package testtransport is a scriptable fake olpclient.RoundTripper used
// across this module's tests so HTTP-client, coalescing, retry and
// repository behaviour can be exercised without a real network — the same
// fake-the-transport-keep-the-client-real shape the teacher applies when
// testing its RPC dialer against testplanet doubles rather than a live
// satellite.
package testtransport

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/heremaps/here-data-sdk-go/pkg/olpclient"
)

// Responder produces the next response (or error) for a request.
type Responder func(req *olpclient.Request) (*olpclient.Response, error)

// Fake is an in-memory RoundTripper whose responses are scripted per-path
// via a FIFO queue of Responders, or a single fallback Responder.
type Fake struct {
	mu       sync.Mutex
	queue    map[string][]Responder
	fallback Responder
	calls    int32
}

func New() *Fake {
	return &Fake{queue: map[string][]Responder{}}
}

// Enqueue appends r to the scripted responses for path; calls to that path
// consume responders in FIFO order.
func (f *Fake) Enqueue(path string, r Responder) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue[path] = append(f.queue[path], r)
	return f
}

// SetFallback installs a Responder used when a path has no queued entries.
func (f *Fake) SetFallback(r Responder) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallback = r
	return f
}

// Calls returns how many times RoundTrip has been invoked.
func (f *Fake) Calls() int { return int(atomic.LoadInt32(&f.calls)) }

func (f *Fake) RoundTrip(ctx context.Context, req *olpclient.Request) (*olpclient.Response, error) {
	atomic.AddInt32(&f.calls, 1)

	f.mu.Lock()
	var responder Responder
	if q := f.queue[req.Path]; len(q) > 0 {
		responder = q[0]
		f.queue[req.Path] = q[1:]
	} else {
		responder = f.fallback
	}
	f.mu.Unlock()

	if responder == nil {
		return &olpclient.Response{Status: 404}, nil
	}
	return responder(req)
}

// PathHasPrefix reports whether req's wire-level path (the full URL baked
// by Client.BuildURL, including query string) contains prefix — used by
// fallback responders that branch on endpoint rather than scripting exact
// Enqueue paths.
func PathHasPrefix(req *olpclient.Request, prefix string) bool {
	return strings.Contains(req.Path, prefix)
}

// JSON is a small helper building a Responder returning status and body
// verbatim.
func JSON(status int, body string) Responder {
	return func(req *olpclient.Request) (*olpclient.Response, error) {
		return &olpclient.Response{Status: status, Body: []byte(body)}, nil
	}
}
