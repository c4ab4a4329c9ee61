package cache

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// ProtectedItem is one pin request: either an exact key or a prefix.
type ProtectedItem struct {
	Key      string
	IsPrefix bool
}

// protectedSet tracks pinned exact keys and pinned prefixes, persisted
// durably under protectedSetKey so reopening a cache preserves pins
// (spec.md 4.3).
type protectedSet struct {
	mu       sync.Mutex
	exact    map[string]bool
	prefixes map[string]bool
	persist  func(exact, prefixes []string) error
}

func newProtectedSet(persist func(exact, prefixes []string) error) *protectedSet {
	return &protectedSet{exact: map[string]bool{}, prefixes: map[string]bool{}, persist: persist}
}

type protectedSnapshot struct {
	Exact    []string `json:"exact"`
	Prefixes []string `json:"prefixes"`
}

func (p *protectedSet) loadFrom(raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	var snap protectedSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range snap.Exact {
		p.exact[k] = true
	}
	for _, k := range snap.Prefixes {
		p.prefixes[k] = true
	}
	return nil
}

func (p *protectedSet) snapshotLocked() protectedSnapshot {
	snap := protectedSnapshot{}
	for k := range p.exact {
		snap.Exact = append(snap.Exact, k)
	}
	for k := range p.prefixes {
		snap.Prefixes = append(snap.Prefixes, k)
	}
	sort.Strings(snap.Exact)
	sort.Strings(snap.Prefixes)
	return snap
}

func (p *protectedSet) coveredByPrefixLocked(key string) bool {
	for prefix := range p.prefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// Protect pins every item atomically: if any exact key is already covered
// by an existing prefix, nothing is pinned and false is returned.
func (p *protectedSet) Protect(items []ProtectedItem) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, it := range items {
		if !it.IsPrefix && p.coveredByPrefixLocked(it.Key) {
			return false
		}
	}
	for _, it := range items {
		if it.IsPrefix {
			p.prefixes[it.Key] = true
		} else {
			p.exact[it.Key] = true
		}
	}
	return p.persistLocked()
}

// Release unpins every item atomically. Releasing an exact key that is only
// pinned transitively through a prefix (never pinned directly) fails the
// whole call; release the prefix instead.
func (p *protectedSet) Release(items []ProtectedItem) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, it := range items {
		if !it.IsPrefix && !p.exact[it.Key] && p.coveredByPrefixLocked(it.Key) {
			return false
		}
	}
	for _, it := range items {
		if it.IsPrefix {
			delete(p.prefixes, it.Key)
		} else {
			delete(p.exact, it.Key)
		}
	}
	return p.persistLocked()
}

func (p *protectedSet) persistLocked() bool {
	if p.persist == nil {
		return true
	}
	snap := p.snapshotLocked()
	return p.persist(snap.Exact, snap.Prefixes) == nil
}

// IsProtected reports whether key is pinned, exactly or via a prefix.
func (p *protectedSet) IsProtected(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exact[key] {
		return true
	}
	return p.coveredByPrefixLocked(key)
}

func (p *protectedSet) marshal() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, _ := json.Marshal(p.snapshotLocked())
	return b
}
