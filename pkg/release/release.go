// Package release defines the unified Release type that flows from indexer
// search through ranking, triage and playback.
package release

import (
	"strings"
	"time"
	"unicode"

	"streamnzb/pkg/parser"
)

// SourceType identifies which kind of indexer produced a Release.
type SourceType string

const (
	SourceAggregator SourceType = "aggregator" // via Prowlarr/NZBHydra2
	SourceDirect     SourceType = "direct"     // direct Newznab slot
	SourceEasynews   SourceType = "easynews"
)

// Release is a unified representation of one searchable NZB result. Identity
// is (indexer key, normalized title, publish instant, size). Metadata is
// filled in lazily by EnsureParsed and QuerySource is set by the search
// planner; a Release is owned by the orchestrator for the lifetime of one
// request.
type Release struct {
	Title         string // raw release name, e.g. "Movie.2024.1080p.BluRay.x264-GROUP"
	Link          string // NZB download URL, empty when only a PayloadToken is available
	DetailsURL    string // indexer-provided details/comments link, used as a stable id
	Size          int64
	Indexer       string      // display name, e.g. "NZBGeek"
	IndexerID     string      // stable dedupe key, e.g. "newznab-3"
	SourceIndexer interface{} // concrete indexer.Indexer for DownloadNZB

	PubDate     string // RFC1123/RFC1123Z, used for age scoring and the 14-day dedupe window
	GUID        string
	QuerySource string // "id" or "text" — id-based results are prioritized
	Grabs       int

	SourceType   SourceType
	PayloadToken string // opaque Easynews token; GET /easynews/nzb?payload= reconstructs the download

	Metadata *parser.ParsedRelease // populated once the title has been parsed
}

// EqualByTitle returns true if both releases have the same normalized title.
func (r *Release) EqualByTitle(other *Release) bool {
	if r == nil || other == nil {
		return r == other
	}
	return NormalizeTitle(r.Title) == NormalizeTitle(other.Title)
}

// Resolution returns the parsed resolution label, or "unknown" if the title
// has not been parsed yet.
func (r *Release) Resolution() string {
	if r == nil || r.Metadata == nil {
		return "unknown"
	}
	return r.Metadata.Resolution
}

// QualityScore returns the resolution-rank-derived score, 0 if unparsed.
func (r *Release) QualityScore() int {
	if r == nil || r.Metadata == nil {
		return 0
	}
	return r.Metadata.QualityScore
}

// Languages returns the detected language set, nil if unparsed.
func (r *Release) Languages() []string {
	if r == nil || r.Metadata == nil {
		return nil
	}
	return r.Metadata.Languages
}

// EnsureParsed parses Title into Metadata if not already done, returning it.
func (r *Release) EnsureParsed() *parser.ParsedRelease {
	if r.Metadata == nil {
		r.Metadata = parser.ParseReleaseTitle(r.Title)
	}
	return r.Metadata
}

// AgeDays returns the release's age in days from PubDate, or -1 if PubDate is
// absent or unparseable.
func (r *Release) AgeDays() float64 {
	if r.PubDate == "" {
		return -1
	}
	t, err := parsePubDate(r.PubDate)
	if err != nil {
		return -1
	}
	return time.Since(t).Hours() / 24
}

func parsePubDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &time.ParseError{Layout: "RFC1123Z/RFC1123/RFC3339", Value: s}
}

// NormalizeTitle normalizes a release title for comparison: lowercase, trim,
// turn '.', '_' and '-' into spaces, drop every other character that is not a
// letter, digit or space (quotes, brackets, parentheses, ...), and collapse
// whitespace, so "Movie.2024" and "Movie (2024)" compare equal.
func NormalizeTitle(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '.' || r == '_' || r == '-':
			return ' '
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r):
			return r
		}
		return -1
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
