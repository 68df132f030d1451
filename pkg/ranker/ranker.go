// Package ranker implements the six-stage result-ranking pipeline: blocklist,
// resolution whitelist, size cap, sort, per-resolution cap, dedupe.
package ranker

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"streamnzb/pkg/config"
	"streamnzb/pkg/release"
)

// blockedTokens mark a non-video container (disc images, executables) that
// should never reach playback. Matched as whole tokens, not substrings, so
// "Bingo" doesn't trip on "bin".
var blockedTokens = map[string]bool{"iso": true, "img": true, "bin": true, "cue": true, "exe": true}

var titleTokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// Rank runs the full pipeline over releases and returns the final ordered
// list, applying cfg's blocklist, resolution whitelist, size cap, sort mode,
// per-resolution cap, and paid/newest-wins dedupe.
func Rank(releases []*release.Release, cfg config.RankerConfig) []*release.Release {
	for _, rel := range releases {
		rel.EnsureParsed()
	}

	out := releases
	out = applyBlocklist(out, cfg)
	out = applyResolutionWhitelist(out, cfg)
	out = applySizeCap(out, cfg)
	out = sortReleases(out, cfg)
	out = applyPerResolutionCap(out, cfg)
	if cfg.DedupEnabled {
		out = dedupe(out)
	}
	return out
}

func applyBlocklist(releases []*release.Release, cfg config.RankerConfig) []*release.Release {
	if !cfg.HideBlockedResults {
		return releases
	}
	out := make([]*release.Release, 0, len(releases))
	for _, rel := range releases {
		if isBlocked(rel) {
			continue
		}
		out = append(out, rel)
	}
	return out
}

func isBlocked(rel *release.Release) bool {
	for _, token := range titleTokenPattern.FindAllString(strings.ToLower(rel.Title), -1) {
		if blockedTokens[token] {
			return true
		}
	}
	return false
}

func applyResolutionWhitelist(releases []*release.Release, cfg config.RankerConfig) []*release.Release {
	if len(cfg.AllowedResolutions) == 0 {
		return releases
	}
	allowed := make(map[string]bool, len(cfg.AllowedResolutions))
	for _, r := range cfg.AllowedResolutions {
		allowed[strings.ToLower(r)] = true
	}
	out := make([]*release.Release, 0, len(releases))
	for _, rel := range releases {
		res := strings.ToLower(rel.Resolution())
		if res == "unknown" || allowed[res] {
			out = append(out, rel)
		}
	}
	return out
}

func applySizeCap(releases []*release.Release, cfg config.RankerConfig) []*release.Release {
	if cfg.MaxResultSizeGB <= 0 {
		return releases
	}
	maxBytes := int64(cfg.MaxResultSizeGB * 1024 * 1024 * 1024)
	out := make([]*release.Release, 0, len(releases))
	for _, rel := range releases {
		if rel.Size > 0 && rel.Size > maxBytes {
			continue
		}
		out = append(out, rel)
	}
	return out
}

func sortReleases(releases []*release.Release, cfg config.RankerConfig) []*release.Release {
	preferred := make(map[string]int, len(cfg.PreferredLanguages))
	for i, lang := range cfg.PreferredLanguages {
		preferred[strings.ToLower(lang)] = len(cfg.PreferredLanguages) - i
	}

	languageScore := func(rel *release.Release) int {
		best := 0
		for _, lang := range rel.Languages() {
			if s, ok := preferred[strings.ToLower(lang)]; ok && s > best {
				best = s
			}
		}
		return best
	}

	sort.SliceStable(releases, func(i, j int) bool {
		a, b := releases[i], releases[j]
		if cfg.SortMode == "language_quality_size" {
			if la, lb := languageScore(a), languageScore(b); la != lb {
				return la > lb
			}
		}
		if qa, qb := a.QualityScore(), b.QualityScore(); qa != qb {
			return qa > qb
		}
		return a.Size > b.Size
	})
	return releases
}

func applyPerResolutionCap(releases []*release.Release, cfg config.RankerConfig) []*release.Release {
	if cfg.ResolutionLimitPerQuality <= 0 {
		return releases
	}
	counts := make(map[string]int)
	out := make([]*release.Release, 0, len(releases))
	for _, rel := range releases {
		res := rel.Resolution()
		if counts[res] >= cfg.ResolutionLimitPerQuality {
			continue
		}
		counts[res]++
		out = append(out, rel)
	}
	return out
}

// dedupe collapses releases sharing a normalized title within a 14-day
// publish window, keeping the paid-indexer result, then the newest.
func dedupe(releases []*release.Release) []*release.Release {
	type bucket struct {
		rel *release.Release
	}
	const window = 14 * 24 * time.Hour

	var kept []*release.Release
	keptBucket := make([]time.Time, 0)

	for _, rel := range releases {
		normTitle := release.NormalizeTitle(rel.Title)
		published := publishedAt(rel)

		replaced := false
		for i, existing := range kept {
			if release.NormalizeTitle(existing.Title) != normTitle {
				continue
			}
			existingPublished := keptBucket[i]
			delta := published.Sub(existingPublished)
			if delta < 0 {
				delta = -delta
			}
			if delta > window {
				continue
			}
			if preferNew(rel, existing) {
				kept[i] = rel
				keptBucket[i] = published
			}
			replaced = true
			break
		}
		if !replaced {
			kept = append(kept, rel)
			keptBucket = append(keptBucket, published)
		}
	}
	return kept
}

func publishedAt(rel *release.Release) time.Time {
	layouts := []string{time.RFC1123Z, time.RFC1123, time.RFC3339}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, rel.PubDate); err == nil {
			return t
		}
	}
	return time.Time{}
}

// preferNew reports whether candidate should replace incumbent: paid wins
// ties, then the newer publish date wins.
func preferNew(candidate, incumbent *release.Release) bool {
	candidatePaid := isPaid(candidate)
	incumbentPaid := isPaid(incumbent)
	if candidatePaid != incumbentPaid {
		return candidatePaid
	}
	return publishedAt(candidate).After(publishedAt(incumbent))
}

type paidIndexer interface {
	Paid() bool
}

func isPaid(rel *release.Release) bool {
	if p, ok := rel.SourceIndexer.(paidIndexer); ok {
		return p.Paid()
	}
	return false
}
