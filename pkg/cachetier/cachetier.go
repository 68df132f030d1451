package cachetier

import (
	"time"

	"streamnzb/pkg/config"
)

// Tiers bundles the three caches wired from one CacheConfig.
type Tiers struct {
	Response    *ResponseCache
	VerifiedNZB *VerifiedNZBCache
	MountHandle *MountHandleCache
}

// New builds all three tiers from cfg.
func New(cfg config.CacheConfig) *Tiers {
	const mib = 1 << 20
	return &Tiers{
		Response: NewResponseCache(
			time.Duration(cfg.StreamCacheTTLMinutes)*time.Minute,
			int64(cfg.StreamCacheMaxSizeMB)*mib,
		),
		VerifiedNZB: NewVerifiedNZBCache(
			time.Duration(cfg.VerifiedNZBCacheTTLMinutes)*time.Minute,
			int64(cfg.VerifiedNZBCacheMaxSizeMB)*mib,
		),
		MountHandle: NewMountHandleCache(
			time.Duration(cfg.NZBDavCacheTTLMinutes) * time.Minute,
		),
	}
}

// FlushAll empties every tier. Nothing in the module calls it; there is no
// config-reload path.
func (t *Tiers) FlushAll() {
	t.Response.Flush()
	t.VerifiedNZB.Flush()
	t.MountHandle.Flush()
}
