// Package endpoint implements the leaf of service access (spec.md 4.2): it
// maps (catalog, api, version) to a base URL, caching results with a TTL and
// falling back to a stale cached entry when a fresh lookup fails.
package endpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/heremaps/here-data-sdk-go/pkg/olperror"
)

// Key identifies one endpoint lookup.
type Key struct {
	Catalog string // empty for platform-wide services
	API     string
	Version string
}

func (k Key) cacheKey() string {
	if k.Catalog == "" {
		return fmt.Sprintf("platform::%s::%s", k.API, k.Version)
	}
	return fmt.Sprintf("%s::%s::%s", k.Catalog, k.API, k.Version)
}

// Lookup performs the actual network lookup for a Key, returning the base
// URL. Implemented over pkg/olpclient in production; tests provide a fake.
type Lookup func(ctx context.Context, key Key) (baseURL string, err error)

type entry struct {
	baseURL string
	expires time.Time
}

// Resolver caches (catalog, api, version) -> base URL with TTL and coalesces
// concurrent misses for the same key.
type Resolver struct {
	lookup Lookup
	ttl    time.Duration
	log    *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]entry
	inflight map[string]*sync.WaitGroup
	results  map[string]lookupResult
}

type lookupResult struct {
	baseURL string
	err     error
}

// New builds a Resolver. ttl <= 0 means entries never expire until
// explicitly invalidated.
func New(lookup Lookup, ttl time.Duration, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		lookup:   lookup,
		ttl:      ttl,
		log:      log,
		now:      time.Now,
		entries:  map[string]entry{},
		inflight: map[string]*sync.WaitGroup{},
		results:  map[string]lookupResult{},
	}
}

// Resolve returns the base URL for key, issuing a lookup on miss and
// coalescing concurrent misses for the same key. On a transport error with a
// previously cached (now stale) entry, the stale entry is returned instead
// of propagating the error (the "grace behaviour" of spec.md 4.2).
func (r *Resolver) Resolve(ctx context.Context, key Key) (string, error) {
	ck := key.cacheKey()

	r.mu.Lock()
	if e, ok := r.entries[ck]; ok && (r.ttl <= 0 || r.now().Before(e.expires)) {
		r.mu.Unlock()
		return e.baseURL, nil
	}
	if wg, ok := r.inflight[ck]; ok {
		r.mu.Unlock()
		wg.Wait()
		r.mu.Lock()
		res := r.results[ck]
		r.mu.Unlock()
		if res.err == nil {
			return res.baseURL, nil
		}
		return r.fallbackOrError(ck, res.err)
	}

	wg := &sync.WaitGroup{}
	wg.Add(1)
	r.inflight[ck] = wg
	r.mu.Unlock()

	baseURL, err := r.lookup(ctx, key)

	r.mu.Lock()
	r.results[ck] = lookupResult{baseURL: baseURL, err: err}
	if err == nil {
		r.entries[ck] = entry{baseURL: baseURL, expires: r.now().Add(r.ttl)}
	}
	delete(r.inflight, ck)
	r.mu.Unlock()
	wg.Done()

	if err != nil {
		return r.fallbackOrError(ck, err)
	}
	return baseURL, nil
}

func (r *Resolver) fallbackOrError(cacheKey string, lookupErr error) (string, error) {
	r.mu.Lock()
	e, ok := r.entries[cacheKey]
	r.mu.Unlock()
	if ok {
		r.log.Warn("endpoint lookup failed, serving stale entry", zap.String("key", cacheKey), zap.Error(lookupErr))
		return e.baseURL, nil
	}
	return "", olperror.Wrap(olperror.KindNetworkConnection, 0, lookupErr)
}

// Invalidate drops any cached entry for key, forcing the next Resolve to
// perform a fresh lookup.
func (r *Resolver) Invalidate(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key.cacheKey())
}
