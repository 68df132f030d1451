package cachetier

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTierSetGetRoundTrip(t *testing.T) {
	tr := newTier[string](time.Minute, 0)
	tr.Set("a", "hello", 5)
	v, ok := tr.Get("a")
	if !ok || v != "hello" {
		t.Fatalf("Get = %q, %v; want hello, true", v, ok)
	}
}

func TestTierExpiresAfterTTL(t *testing.T) {
	tr := newTier[string](10*time.Millisecond, 0)
	tr.Set("a", "hello", 5)
	time.Sleep(50 * time.Millisecond)
	if _, ok := tr.Get("a"); ok {
		t.Fatal("expected entry to have expired")
	}
}

func TestTierEvictsOldestWhenOverBudget(t *testing.T) {
	tr := newTier[string](time.Minute, 10)
	tr.Set("a", "aaaaa", 5)
	tr.Set("b", "bbbbb", 5)
	// both fit exactly (10 bytes); adding a third must evict "a" first.
	tr.Set("c", "ccccc", 5)

	if _, ok := tr.Get("a"); ok {
		t.Fatal("expected oldest entry a to be evicted")
	}
	if _, ok := tr.Get("b"); !ok {
		t.Fatal("expected b to survive")
	}
	if _, ok := tr.Get("c"); !ok {
		t.Fatal("expected c to survive")
	}
}

func TestTierEvictionOrderSurvivesIntermediateGets(t *testing.T) {
	tr := newTier[string](time.Minute, 10)
	tr.Set("a", "aaaaa", 5)
	tr.Set("b", "bbbbb", 5)

	// Repeatedly reading "a" must not make it outlive "b" in eviction order:
	// FIFO is insertion order, not access order.
	for i := 0; i < 5; i++ {
		if _, ok := tr.Get("a"); !ok {
			t.Fatal("expected a to still be present")
		}
	}

	tr.Set("c", "ccccc", 5)

	if _, ok := tr.Get("a"); ok {
		t.Fatal("expected a to be evicted first despite repeated reads")
	}
	if _, ok := tr.Get("b"); !ok {
		t.Fatal("expected b to survive")
	}
	if _, ok := tr.Get("c"); !ok {
		t.Fatal("expected c to survive")
	}
}

func TestTierOverwriteMovesKeyToBackOfFIFO(t *testing.T) {
	tr := newTier[string](time.Minute, 10)
	tr.Set("a", "aaaaa", 5)
	tr.Set("b", "bbbbb", 5)

	// Re-setting "a" is a fresh write: it should now outlive "b".
	tr.Set("a", "AAAAA", 5)
	tr.Set("c", "ccccc", 5)

	if _, ok := tr.Get("b"); ok {
		t.Fatal("expected b to be evicted first after a was refreshed")
	}
	if v, ok := tr.Get("a"); !ok || v != "AAAAA" {
		t.Fatalf("expected refreshed a to survive, got %q, %v", v, ok)
	}
	if _, ok := tr.Get("c"); !ok {
		t.Fatal("expected c to survive")
	}
}

func TestTierSetOverwritesSizeAccounting(t *testing.T) {
	tr := newTier[string](time.Minute, 20)
	tr.Set("a", "short", 5)
	tr.Set("a", "replaced-with-more-bytes", 15)
	if tr.curBytes.Load() != 15 {
		t.Fatalf("curBytes = %d, want 15 after overwrite", tr.curBytes.Load())
	}
}

func TestTierLoadOrStoreOnlyCreatesOnce(t *testing.T) {
	tr := newTier[int](time.Minute, 0)
	calls := 0
	create := func() int { calls++; return 42 }

	v1, loaded1 := tr.LoadOrStore("k", 0, create)
	v2, loaded2 := tr.LoadOrStore("k", 0, create)

	if loaded1 {
		t.Fatal("expected first LoadOrStore to create")
	}
	if !loaded2 {
		t.Fatal("expected second LoadOrStore to load existing")
	}
	if v1 != 42 || v2 != 42 {
		t.Fatalf("values = %d, %d; want 42, 42", v1, v2)
	}
	if calls != 1 {
		t.Fatalf("create called %d times, want 1", calls)
	}
}

func TestTierFlushResetsEverything(t *testing.T) {
	tr := newTier[string](time.Minute, 100)
	tr.Set("a", "x", 1)
	tr.Flush()
	if tr.Len() != 0 {
		t.Fatalf("Len = %d after Flush, want 0", tr.Len())
	}
	if tr.curBytes.Load() != 0 {
		t.Fatalf("curBytes = %d after Flush, want 0", tr.curBytes.Load())
	}
}

func TestResponseCacheRoundTrip(t *testing.T) {
	c := NewResponseCache(time.Minute, 1<<20)
	c.Set("query-1", []byte("search results"))
	got, ok := c.Get("query-1")
	if !ok || string(got) != "search results" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
}

func TestVerifiedNZBCacheRoundTrip(t *testing.T) {
	c := NewVerifiedNZBCache(time.Minute, 1<<20)
	entry := &VerifiedNZB{NZBBody: []byte("nzb-bytes")}
	c.Set("rel-1", entry)
	got, ok := c.Get("rel-1")
	if !ok || string(got.NZBBody) != "nzb-bytes" {
		t.Fatalf("Get = %+v, %v", got, ok)
	}
}

func TestMountHandleCacheSingleFlight(t *testing.T) {
	c := NewMountHandleCache(time.Minute)

	starts := 0
	resolve := func() (string, error) {
		starts++
		return "https://mount.example/stream", nil
	}

	h1 := c.GetOrStart("key", resolve)
	h2 := c.GetOrStart("key", resolve)
	if h1 != h2 {
		t.Fatal("expected both callers to share the same handle")
	}

	if err := h1.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	url, err := h1.Result()
	if err != nil || url != "https://mount.example/stream" {
		t.Fatalf("Result = %q, %v", url, err)
	}
	if h1.State() != MountReady {
		t.Fatalf("State = %v, want MountReady", h1.State())
	}
	if starts != 1 {
		t.Fatalf("resolve started %d times, want 1", starts)
	}
}

func TestMountHandleCacheResolvesFailure(t *testing.T) {
	c := NewMountHandleCache(time.Minute)
	wantErr := errors.New("mount unreachable")

	h := c.GetOrStart("key", func() (string, error) {
		return "", wantErr
	})

	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if h.State() != MountFailed {
		t.Fatalf("State = %v, want MountFailed", h.State())
	}
	_, err := h.Result()
	if err != wantErr {
		t.Fatalf("Result err = %v, want %v", err, wantErr)
	}
}

func TestMountHandleWaitRespectsContextCancellation(t *testing.T) {
	c := NewMountHandleCache(time.Minute)
	block := make(chan struct{})
	h := c.GetOrStart("key", func() (string, error) {
		<-block
		return "done", nil
	})
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := h.Wait(ctx); err == nil {
		t.Fatal("expected Wait to time out while resolve is still blocked")
	}
}
