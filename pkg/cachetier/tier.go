// Package cachetier implements the three caches that sit between the
// orchestrator and its slow upstreams: a Response Cache for indexer search
// results, a Verified-NZB Cache for triage-approved candidates, and a Mount
// Handle Cache with single-flight in-flight state for mount-service lookups.
// All three share one TTL-plus-byte-budget eviction discipline.
package cachetier

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// tier is the shared bookkeeping behind all three caches: an expirable LRU
// handles per-key lookup and TTL expiry, while a separate doubly-linked list
// tracks strict insertion order for the byte-size budget's eviction policy.
// The two are kept independent on purpose: Get() promotes recency in the
// LRU (it does not extend the TTL, which runs from the last write), but the budget's FIFO
// eviction must never reorder on read, only on a genuinely fresh write --
// so it can't be derived from the LRU's own Keys() ordering. maxBytes <= 0
// means no size cap, TTL only.
type tier[V any] struct {
	lru      *lru.LRU[string, entry[V]]
	maxBytes int64
	curBytes atomic.Int64

	// setMu serializes the evict-then-add sequence in Set/LoadOrStore, and
	// guards order/elems, so concurrent writers can't both observe room for
	// their entry and together blow the budget, or race on the FIFO list.
	setMu sync.Mutex
	order *list.List               // front = oldest insertion, back = newest
	elems map[string]*list.Element // key -> its node in order
}

type entry[V any] struct {
	value V
	size  int64
}

func newTier[V any](ttl time.Duration, maxBytes int64) *tier[V] {
	t := &tier[V]{
		maxBytes: maxBytes,
		order:    list.New(),
		elems:    make(map[string]*list.Element),
	}
	t.lru = lru.NewLRU[string, entry[V]](0, func(key string, e entry[V]) {
		t.curBytes.Add(-e.size)
		t.forgetOrder(key)
	}, ttl)
	return t
}

// forgetOrder drops key's FIFO node, if it has one. Called both from the
// eviction callback (TTL expiry, Purge, explicit Remove) and from Set's
// overwrite path, so order/elems never holds a stale entry. Caller must hold
// setMu.
func (t *tier[V]) forgetOrder(key string) {
	if el, ok := t.elems[key]; ok {
		t.order.Remove(el)
		delete(t.elems, key)
	}
}

// pushOrder records key as the newest insertion. Caller must hold setMu.
func (t *tier[V]) pushOrder(key string) {
	t.elems[key] = t.order.PushBack(key)
}

// Get returns the cached value for key, if present and unexpired. This
// promotes recency in the underlying LRU (without extending the entry's TTL)
// but never touches FIFO insertion order.
func (t *tier[V]) Get(key string) (V, bool) {
	e, ok := t.lru.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, sized at size bytes for budget accounting,
// evicting the oldest entries first (true insertion order, not access order)
// if the tier has a size cap and is full. Overwriting an existing key counts
// as a fresh insertion: it moves to the back of the FIFO order.
func (t *tier[V]) Set(key string, value V, size int64) {
	t.setMu.Lock()
	defer t.setMu.Unlock()

	if old, ok := t.lru.Peek(key); ok {
		t.curBytes.Add(-old.size)
		t.forgetOrder(key)
	}
	t.evictForSpace(size)
	t.lru.Add(key, entry[V]{value: value, size: size})
	t.curBytes.Add(size)
	t.pushOrder(key)
}

// LoadOrStore returns the existing entry for key if present, otherwise
// builds one via create, stores it, and returns it with loaded=false. Used
// for single-flight semantics: only one caller's create wins the race.
func (t *tier[V]) LoadOrStore(key string, size int64, create func() V) (v V, loaded bool) {
	t.setMu.Lock()
	defer t.setMu.Unlock()

	if e, ok := t.lru.Peek(key); ok {
		return e.value, true
	}
	t.evictForSpace(size)
	value := create()
	t.lru.Add(key, entry[V]{value: value, size: size})
	t.curBytes.Add(size)
	t.pushOrder(key)
	return value, false
}

// evictForSpace drops the oldest entries, by strict insertion order, until
// adding size more bytes would fit the budget. Caller must hold setMu.
func (t *tier[V]) evictForSpace(size int64) {
	if t.maxBytes <= 0 {
		return
	}
	for t.curBytes.Load()+size > t.maxBytes {
		front := t.order.Front()
		if front == nil {
			return
		}
		t.lru.Remove(front.Value.(string))
	}
}

// Remove deletes key from the tier, if present.
func (t *tier[V]) Remove(key string) {
	t.lru.Remove(key)
}

// Flush empties the tier entirely.
func (t *tier[V]) Flush() {
	t.lru.Purge()
	t.curBytes.Store(0)
	t.order.Init()
	t.elems = make(map[string]*list.Element)
}

// Len reports the current entry count.
func (t *tier[V]) Len() int {
	return t.lru.Len()
}
