package olpclient

import "sync"

// CancellationContext is the composable cancellation token of spec.md 4.1
// and 5: an atomic cancelled flag plus an optionally-armed cancel function
// that fires exactly once. It maps directly onto
// Arc<AtomicBool + Mutex<Option<FnOnce>>> from spec.md 9.
type CancellationContext struct {
	mu        sync.Mutex
	cancelled bool
	armed     func()
}

// NewCancellationContext returns a fresh, not-yet-cancelled token.
func NewCancellationContext() *CancellationContext {
	return &CancellationContext{}
}

// IsCancelled reports whether Cancel has been called.
func (c *CancellationContext) IsCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// Cancel marks the context cancelled and invokes the armed function exactly
// once, outside the lock.
func (c *CancellationContext) Cancel() {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return
	}
	c.cancelled = true
	fn := c.armed
	c.armed = nil
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// ExecuteOrCancelled is "install-or-run-immediately-if-already-cancelled"
// (spec.md 9): if the context is already cancelled, onCancel runs
// immediately; otherwise exec runs and its returned cancel function is
// armed so a later Cancel() invokes it.
func (c *CancellationContext) ExecuteOrCancelled(exec func() func(), onCancel func()) {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		onCancel()
		return
	}
	c.mu.Unlock()

	cancelFn := exec()

	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		if cancelFn != nil {
			cancelFn()
		}
		return
	}
	c.armed = cancelFn
	c.mu.Unlock()
}
