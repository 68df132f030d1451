package cachetier

import "time"

// ResponseCache holds raw indexer search responses keyed by a normalized
// query signature, so a repeated Stremio stream request within the TTL
// window skips the indexer round trip entirely.
type ResponseCache struct {
	tier *tier[[]byte]
}

// NewResponseCache builds a Response Cache with the given TTL and byte
// budget (maxBytes <= 0 disables the size cap).
func NewResponseCache(ttl time.Duration, maxBytes int64) *ResponseCache {
	return &ResponseCache{tier: newTier[[]byte](ttl, maxBytes)}
}

func (c *ResponseCache) Get(key string) ([]byte, bool) {
	return c.tier.Get(key)
}

func (c *ResponseCache) Set(key string, body []byte) {
	c.tier.Set(key, body, int64(len(body)))
}

func (c *ResponseCache) Remove(key string) {
	c.tier.Remove(key)
}

func (c *ResponseCache) Flush() {
	c.tier.Flush()
}

func (c *ResponseCache) Len() int {
	return c.tier.Len()
}
