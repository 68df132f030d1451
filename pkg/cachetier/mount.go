package cachetier

import (
	"context"
	"sync"
	"time"
)

// MountState is the lifecycle of one mount-handle lookup.
type MountState int

const (
	MountPending MountState = iota
	MountReady
	MountFailed
)

// MountHandle is the single-flight result of resolving a verified NZB to a
// playable URL through the mount service: at most one resolution runs per
// key, and every caller racing on the same key shares its outcome.
type MountHandle struct {
	mu    sync.Mutex
	state MountState
	url   string
	err   error
	done  chan struct{}
}

// State returns the handle's current lifecycle state.
func (h *MountHandle) State() MountState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Result returns the resolved URL and error once the handle has left the
// pending state; both are zero-valued while still pending.
func (h *MountHandle) Result() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url, h.err
}

// Wait blocks until the handle resolves (ready or failed) or ctx is done.
func (h *MountHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *MountHandle) resolve(url string, err error) {
	h.mu.Lock()
	h.url = url
	h.err = err
	if err != nil {
		h.state = MountFailed
	} else {
		h.state = MountReady
	}
	h.mu.Unlock()
	close(h.done)
}

// MountHandleCache caches mount-service lookups with single-flight
// deduplication: a second caller for a key already being resolved gets the
// in-flight handle instead of starting a redundant lookup.
type MountHandleCache struct {
	tier *tier[*MountHandle]
}

// NewMountHandleCache builds a Mount Handle Cache with the given TTL. Handle
// entries carry no byte payload worth budgeting, so there is no size cap.
func NewMountHandleCache(ttl time.Duration) *MountHandleCache {
	return &MountHandleCache{tier: newTier[*MountHandle](ttl, 0)}
}

// GetOrStart returns the cached or in-flight handle for key, launching
// resolve in a goroutine exactly once per key if none exists yet.
func (c *MountHandleCache) GetOrStart(key string, resolve func() (string, error)) *MountHandle {
	h, loaded := c.tier.LoadOrStore(key, 0, func() *MountHandle {
		return &MountHandle{state: MountPending, done: make(chan struct{})}
	})
	if !loaded {
		go func() {
			url, err := resolve()
			h.resolve(url, err)
		}()
	}
	return h
}

func (c *MountHandleCache) Remove(key string) {
	c.tier.Remove(key)
}

func (c *MountHandleCache) Flush() {
	c.tier.Flush()
}

func (c *MountHandleCache) Len() int {
	return c.tier.Len()
}
