package cachetier

import (
	"time"

	"streamnzb/pkg/triage"
)

// VerifiedNZB is a triage-approved candidate cached against a second
// identical request, paired with the NZB body so a cache hit can go
// straight to the mount client without re-downloading it.
type VerifiedNZB struct {
	Decision *triage.Decision
	NZBBody  []byte
}

// VerifiedNZBCache holds VerifiedNZB entries keyed by candidate identity
// (typically indexer id + normalized title).
type VerifiedNZBCache struct {
	tier *tier[*VerifiedNZB]
}

// NewVerifiedNZBCache builds a Verified-NZB Cache with the given TTL and
// byte budget (maxBytes <= 0 disables the size cap).
func NewVerifiedNZBCache(ttl time.Duration, maxBytes int64) *VerifiedNZBCache {
	return &VerifiedNZBCache{tier: newTier[*VerifiedNZB](ttl, maxBytes)}
}

func (c *VerifiedNZBCache) Get(key string) (*VerifiedNZB, bool) {
	return c.tier.Get(key)
}

func (c *VerifiedNZBCache) Set(key string, v *VerifiedNZB) {
	c.tier.Set(key, v, int64(len(v.NZBBody)))
}

func (c *VerifiedNZBCache) Remove(key string) {
	c.tier.Remove(key)
}

func (c *VerifiedNZBCache) Flush() {
	c.tier.Flush()
}

func (c *VerifiedNZBCache) Len() int {
	return c.tier.Len()
}
