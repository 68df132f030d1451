// Package parser extracts quality metadata from release titles on top of the
// domain title-parsing library, adding the resolution-precedence and
// language-lexicon passes go-ptt does not provide on its own.
package parser

import (
	"strconv"
	"strings"

	ptt "github.com/MunifTanjim/go-ptt"
)

// ParsedRelease contains parsed metadata from a release title.
type ParsedRelease struct {
	Title      string
	Year       int
	Resolution string // one of resolutionLadder, or "unknown"
	Quality    string
	Codec      string
	Audio      []string
	Channels   []string
	HDR        []string
	Container  string
	Group      string
	Season     int
	Episode    int

	Languages []string // ISO-ish codes from go-ptt plus the lexicon pass, deduplicated
	Network   string
	Repack    bool
	Proper    bool
	Extended  bool
	Unrated   bool
	ThreeD    string
	Size      string

	BitDepth  string
	Dubbed    bool
	Hardcoded bool

	QualityScore int // index of Resolution within resolutionLadder, higher is better
}

// resolutionLadder is ordered worst to best; QualityScore is the index within it.
var resolutionLadder = []string{
	"unknown", "240p", "360p", "480p", "540p", "576p", "720p", "1080p", "1440p", "2160p", "4320p",
}

var resolutionAliases = map[string]string{
	"4k":     "2160p",
	"8k":     "4320p",
	"uhd":    "2160p",
	"fullhd": "1080p",
	"fhd":    "1080p",
	"hd":     "720p",
	"qhd":    "1440p",
	"2k":     "1440p",
	"sd":     "480p",
}

var numericResolutionTokens = []string{"4320p", "2160p", "1440p", "1080p", "720p", "576p", "540p", "480p", "360p", "240p"}

// ParseReleaseTitle parses a release title into structured metadata.
func ParseReleaseTitle(title string) *ParsedRelease {
	info := ptt.Parse(title)

	parsed := &ParsedRelease{
		Title:     info.Title,
		Quality:   info.Quality,
		Codec:     info.Codec,
		Audio:     info.Audio,
		Channels:  info.Channels,
		HDR:       info.HDR,
		Container: info.Container,
		Group:     info.Group,
		Network:   info.Network,
		Repack:    info.Repack,
		Proper:    info.Proper,
		Extended:  info.Extended,
		Unrated:   info.Unrated,
		ThreeD:    info.ThreeD,
		Size:      info.Size,
		BitDepth:  info.BitDepth,
		Dubbed:    info.Dubbed,
		Hardcoded: info.Hardcoded,
	}

	if info.Year != "" {
		if year, err := strconv.Atoi(info.Year); err == nil {
			parsed.Year = year
		}
	}
	if len(info.Seasons) > 0 {
		parsed.Season = info.Seasons[0]
	}
	if len(info.Episodes) > 0 {
		parsed.Episode = info.Episodes[0]
	}

	parsed.Resolution = resolveResolution(info.Resolution, title)
	parsed.Languages = detectLanguages(info.Languages, title)
	parsed.QualityScore = resolutionRank(parsed.Resolution)

	return parsed
}

// resolveResolution applies the spec's precedence: go-ptt field, then numeric
// pattern match against the raw title, then the alias table, else "unknown".
func resolveResolution(pttResolution, title string) string {
	if r := normalizeResolutionToken(pttResolution); r != "" {
		return r
	}
	lowerTitle := strings.ToLower(title)
	for _, token := range numericResolutionTokens {
		if strings.Contains(lowerTitle, token) {
			return token
		}
	}
	for alias, canonical := range resolutionAliases {
		if containsWholeWord(lowerTitle, alias) {
			return canonical
		}
	}
	return "unknown"
}

func normalizeResolutionToken(s string) string {
	if s == "" {
		return ""
	}
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, token := range numericResolutionTokens {
		if lower == token {
			return token
		}
	}
	if canonical, ok := resolutionAliases[lower]; ok {
		return canonical
	}
	return ""
}

// resolutionRank returns the index of res within resolutionLadder.
func resolutionRank(res string) int {
	for i, r := range resolutionLadder {
		if r == res {
			return i
		}
	}
	return 0
}

// ResolutionGroup buckets the parsed resolution into the coarse groups the
// ranker's per-resolution cap and the triage grouping use.
func (p *ParsedRelease) ResolutionGroup() string {
	if p == nil {
		return "sd"
	}
	switch p.Resolution {
	case "4320p", "2160p":
		return "4k"
	case "1440p", "1080p":
		return "1080p"
	case "720p":
		return "720p"
	default:
		return "sd"
	}
}

func containsWholeWord(haystack, word string) bool {
	idx := strings.Index(haystack, word)
	for idx != -1 {
		before := idx == 0 || !isWordChar(rune(haystack[idx-1]))
		afterIdx := idx + len(word)
		after := afterIdx >= len(haystack) || !isWordChar(rune(haystack[afterIdx]))
		if before && after {
			return true
		}
		next := strings.Index(haystack[idx+1:], word)
		if next == -1 {
			return false
		}
		idx = idx + 1 + next
	}
	return false
}

func isWordChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
