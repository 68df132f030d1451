// Package planner builds an ordered, deduplicated set of search plans for a
// playback request and merges the resulting releases from id-based and
// text-based queries against one indexer.
package planner

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"streamnzb/pkg/indexer"
	"streamnzb/pkg/logger"
	"streamnzb/pkg/parser"
	"streamnzb/pkg/release"
)

// PlanType identifies the kind of query a Plan encodes.
type PlanType string

const (
	PlanMovie  PlanType = "movie"
	PlanSeries PlanType = "series"
	PlanSearch PlanType = "search"
)

// Plan is one search to run against an indexer. Identity is (Type, Query).
type Plan struct {
	Type         PlanType
	Query        string
	ImdbID       string
	TmdbID       string
	TvdbID       string
	Season       string
	Episode      string
	StrictPhrase string // exact-match phrase, when set, used for text-result filtering
}

// MetadataResolver resolves titles for text-query fallback plans. A nil
// resolver skips all text plans; only the id-based plan runs.
type MetadataResolver interface {
	GetMovieTitle(imdbID, tmdbID string) (string, error)
	GetTVShowName(tmdbID, imdbID string) (string, error)
	// LocalizedTitles returns additional ASCII-safe localized titles; each
	// becomes one more text plan, run alongside the primary one.
	LocalizedTitles(imdbID, tmdbID string) []string
}

// Request carries the identifiers needed to build a plan set for one title.
type Request struct {
	ContentType string // "movie" or "series"
	ImdbID      string
	TmdbID      string
	TvdbID      string
	Season      string
	Episode     string
	Cat         string
	Limit       int
}

// BuildPlans produces the ordered plan list: a TVDB-id plan for series, then
// an IMDb-id plan, then metadata-driven text plans. Deduplicated by identity.
func BuildPlans(req Request, resolver MetadataResolver) []Plan {
	seen := make(map[string]bool)
	var plans []Plan
	add := func(p Plan) {
		key := string(p.Type) + "|" + release.NormalizeTitle(p.Query)
		if p.Query == "" {
			key = string(p.Type) + "|" + p.ImdbID + p.TvdbID
		}
		if seen[key] {
			return
		}
		seen[key] = true
		plans = append(plans, p)
	}

	if req.ContentType == "series" && req.TvdbID != "" {
		add(Plan{Type: PlanSeries, TvdbID: req.TvdbID, ImdbID: req.ImdbID, Season: req.Season, Episode: req.Episode})
	}
	if req.ImdbID != "" {
		t := PlanMovie
		if req.ContentType == "series" {
			t = PlanSeries
		}
		add(Plan{Type: t, ImdbID: req.ImdbID, TmdbID: req.TmdbID, Season: req.Season, Episode: req.Episode})
	}

	if resolver == nil {
		return plans
	}

	if req.ContentType == "movie" {
		if title, err := resolver.GetMovieTitle(req.ImdbID, req.TmdbID); err == nil && title != "" {
			add(Plan{Type: PlanSearch, Query: title, StrictPhrase: title})
		}
	} else if req.Season != "" && req.Episode != "" {
		if name, err := resolver.GetTVShowName(req.TmdbID, req.ImdbID); err == nil && name != "" {
			q := fmt.Sprintf("%s S%sE%s", name, pad2(req.Season), pad2(req.Episode))
			add(Plan{Type: PlanSearch, Query: q, StrictPhrase: name, Season: req.Season, Episode: req.Episode})
		}
	}

	for _, title := range resolver.LocalizedTitles(req.ImdbID, req.TmdbID) {
		if title == "" {
			continue
		}
		add(Plan{Type: PlanSearch, Query: title, StrictPhrase: title, Season: req.Season, Episode: req.Episode})
	}

	return plans
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// Run executes one id-based search and one text-based search per text plan
// in parallel against idx, then merges and dedupes the results.
func Run(idx indexer.Indexer, req indexer.SearchRequest, contentType string, plans []Plan) ([]*release.Release, error) {
	var idPlan *Plan
	var textPlans []Plan
	for i := range plans {
		if plans[i].Type == PlanSearch {
			textPlans = append(textPlans, plans[i])
		} else if idPlan == nil {
			idPlan = &plans[i]
		}
	}

	idReq := req
	idReq.Query = ""
	if idPlan != nil {
		idReq.IMDbID = idPlan.ImdbID
		idReq.TMDBID = idPlan.TmdbID
		idReq.TVDBID = idPlan.TvdbID
	}

	var idResp *indexer.SearchResponse
	var textReleases []*release.Release
	var textMu sync.Mutex
	var g errgroup.Group

	g.Go(func() error {
		resp, err := idx.Search(idReq)
		idResp = resp
		return err
	})

	for _, tp := range textPlans {
		tp := tp
		g.Go(func() error {
			textReq := indexer.SearchRequest{Query: tp.Query, Cat: req.Cat, Limit: req.Limit, Season: tp.Season, Episode: tp.Episode}
			resp, err := idx.Search(textReq)
			if err != nil {
				// Best-effort: a failed text fallback never aborts the id search.
				return nil
			}
			indexer.NormalizeSearchResponse(resp)
			filtered := filterTextResultsByContent(resp.Releases, contentType, tp.StrictPhrase, tp.Season, tp.Episode)
			textMu.Lock()
			textReleases = append(textReleases, filtered...)
			textMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("indexer search failed: %w", err)
	}
	if idResp == nil {
		idResp = &indexer.SearchResponse{}
	}
	indexer.NormalizeSearchResponse(idResp)

	merged := make([]*release.Release, 0, len(idResp.Releases)+len(textReleases))
	for _, rel := range idResp.Releases {
		if rel == nil {
			continue
		}
		rel.QuerySource = "id"
		merged = append(merged, rel)
	}
	for _, rel := range textReleases {
		if rel == nil {
			continue
		}
		rel.QuerySource = "text"
		merged = append(merged, rel)
	}
	if len(textReleases) > 0 {
		logger.Debug("Indexer dual search", "id", len(idResp.Releases), "text", len(textReleases))
	}

	return mergeAndDedupe(merged), nil
}

// filterTextResultsByContent keeps only releases whose parsed title matches
// the expected movie title or series name/season/episode.
func filterTextResultsByContent(releases []*release.Release, contentType, strictPhrase, season, episode string) []*release.Release {
	if contentType != "movie" && contentType != "series" {
		return releases
	}
	expectTitle := release.NormalizeTitle(strictPhrase)
	expectSeason, _ := strconv.Atoi(season)
	expectEpisode, _ := strconv.Atoi(episode)
	var expectShow string
	if contentType == "series" && (expectSeason > 0 || expectEpisode > 0) {
		expectShow = expectTitle
	}

	var out []*release.Release
	for _, rel := range releases {
		if rel == nil {
			continue
		}
		parsed := parser.ParseReleaseTitle(rel.Title)
		if contentType == "movie" {
			got := release.NormalizeTitle(parsed.Title)
			if got == "" {
				continue
			}
			if !strings.Contains(expectTitle, got) && !strings.Contains(got, expectTitle) {
				expectBase := stripTrailingDigits(expectTitle)
				if !strings.Contains(got, expectBase) && !strings.Contains(expectBase, got) {
					continue
				}
			}
		} else {
			gotShow := release.NormalizeTitle(parsed.Title)
			if gotShow == "" {
				continue
			}
			if expectShow != "" && !strings.Contains(gotShow, expectShow) && !strings.Contains(expectShow, gotShow) {
				continue
			}
			if expectSeason > 0 && parsed.Season != expectSeason {
				continue
			}
			if expectEpisode > 0 && parsed.Episode != expectEpisode {
				continue
			}
		}
		out = append(out, rel)
	}
	return out
}

func stripTrailingDigits(s string) string {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] >= '0' && s[i] <= '9' {
			continue
		}
		if i < len(s)-1 && s[i] == ' ' {
			return strings.TrimSpace(s[:i])
		}
		break
	}
	return s
}

// mergeAndDedupe merges id and text results, preferring id-based when
// duplicate normalized titles occur.
func mergeAndDedupe(releases []*release.Release) []*release.Release {
	sort.SliceStable(releases, func(i, j int) bool {
		return releases[i].QuerySource == "id" && releases[j].QuerySource != "id"
	})
	seenTitle := make(map[string]bool)
	var result []*release.Release
	for _, rel := range releases {
		if rel == nil {
			continue
		}
		normTitle := release.NormalizeTitle(rel.Title)
		if normTitle == "" || seenTitle[normTitle] {
			continue
		}
		seenTitle[normTitle] = true
		result = append(result, rel)
	}
	return result
}
