package stremio

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"streamnzb/pkg/cachetier"
	"streamnzb/pkg/indexer"
	"streamnzb/pkg/logger"
	"streamnzb/pkg/metadata"
	"streamnzb/pkg/planner"
	"streamnzb/pkg/ranker"
	"streamnzb/pkg/release"
	"streamnzb/pkg/triage"
)

const streamRequestTimeout = 30 * time.Second

// cachedResponse is the Response Cache payload. triageComplete marks whether
// every cached stream already carries a final triage verdict. Only a hit
// with triageComplete true is served; any other hit is ignored and the
// request runs the full pipeline again (the cached list is not reused).
type cachedResponse struct {
	Streams        []Stream `json:"streams"`
	TriageComplete bool     `json:"triageComplete"`
}

// handleStream serves GET/HEAD /stream/{type}/{id}.json.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	contentType, id, ok := parseStreamPath(r.URL.Path)
	if !ok {
		http.Error(w, "invalid stream path", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), streamRequestTimeout)
	defer cancel()

	streams, err := s.buildStreams(ctx, contentType, id)
	if err != nil {
		logger.Error("stream search failed", "type", contentType, "id", id, "err", err)
		streams = []Stream{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(StreamResponse{Streams: streams})
}

// parseStreamPath splits "/stream/{type}/{id}.json" into its type and id.
func parseStreamPath(path string) (contentType, id string, ok bool) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(path, "/stream/"), ".json")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// parsedID is the set of identifiers a Stremio stream-request id decodes
// into: either an IMDb id, a TMDB id, or both, plus season/episode for series.
type parsedID struct {
	imdbID, tmdbID, season, episode string
}

// parseStreamID decodes Stremio's id conventions: "tt1234567" or
// "tmdb:12345" for movies, and "tt1234567:1:2" or "tmdb:12345:1:2" for
// series episodes.
func parseStreamID(contentType, id string) parsedID {
	var p parsedID

	if contentType == "series" && strings.Contains(id, ":") {
		parts := strings.Split(id, ":")
		switch {
		case parts[0] == "tmdb" && len(parts) >= 4:
			p.tmdbID, p.season, p.episode = parts[1], parts[2], parts[3]
		case len(parts) >= 3:
			p.imdbID, p.season, p.episode = parts[0], parts[1], parts[2]
		default:
			p.imdbID = parts[0]
		}
		return p
	}

	if strings.HasPrefix(id, "tmdb:") {
		p.tmdbID = strings.TrimPrefix(id, "tmdb:")
		return p
	}
	if strings.HasPrefix(id, "tt") {
		p.imdbID = id
		return p
	}
	p.tmdbID = id
	return p
}

func newznabCategory(contentType string) string {
	if contentType == "series" {
		return "5000"
	}
	return "2000"
}

// buildStreams runs the full pipeline for one (contentType, id) request:
// cache check, id+text search, ranking, triage, cache writeback, response
// assembly.
func (s *Server) buildStreams(ctx context.Context, contentType, id string) ([]Stream, error) {
	cacheKey := contentType + ":" + id

	if raw, ok := s.tiers.Response.Get(cacheKey); ok {
		var cached cachedResponse
		if err := json.Unmarshal(raw, &cached); err == nil && cached.TriageComplete {
			logger.Debug("stream cache hit", "key", cacheKey)
			return cached.Streams, nil
		}
	}

	parsed := parseStreamID(contentType, id)
	resolver := metadata.NewResolver(s.tmdbClient, s.tvdbClient, contentType)
	tvdbID := s.resolveTVDBID(resolver, contentType, parsed)

	planReq := planner.Request{
		ContentType: contentType,
		ImdbID:      parsed.imdbID,
		TmdbID:      parsed.tmdbID,
		TvdbID:      tvdbID,
		Season:      parsed.season,
		Episode:     parsed.episode,
		Cat:         newznabCategory(contentType),
		Limit:       1000,
	}

	plans := planner.BuildPlans(planReq, resolver)

	searchReq := indexer.SearchRequest{
		Cat:     planReq.Cat,
		Limit:   planReq.Limit,
		Season:  parsed.season,
		Episode: parsed.episode,
	}
	releases, err := planner.Run(s.idx, searchReq, contentType, plans)
	if err != nil {
		return nil, err
	}

	ranked := ranker.Rank(releases, s.cfg.Ranker)

	decisions, instant, triageComplete := s.triageCandidates(ctx, ranked, contentType)

	streams := s.assembleStreams(ranked, decisions, instant, contentType, id)

	if body, err := json.Marshal(cachedResponse{Streams: streams, TriageComplete: triageComplete}); err == nil {
		s.tiers.Response.Set(cacheKey, body)
	}

	return streams, nil
}

// resolveTVDBID fills in a series request's TVDB id via TVDB-first,
// TMDB-fallback resolution when the Stremio id itself didn't carry one.
func (s *Server) resolveTVDBID(resolver *metadata.Resolver, contentType string, parsed parsedID) string {
	if contentType != "series" || parsed.imdbID == "" {
		return ""
	}
	tvdbID, err := resolver.ResolveTVDBID(parsed.imdbID)
	if err != nil {
		logger.Debug("TVDB id resolution failed", "imdb", parsed.imdbID, "err", err)
		return ""
	}
	return tvdbID
}

// candidateKey identifies a release for the decisions map, mirroring
// triage.Runner's own keying so fresh and cached decisions line up.
func candidateKey(rel *release.Release) string {
	if rel.Link != "" {
		return rel.Link
	}
	return rel.DetailsURL
}

// verifiedCacheKey identifies a release for the Verified-NZB Cache: a stable
// identity across repeated requests for the same title from the same indexer.
func verifiedCacheKey(rel *release.Release) string {
	return rel.IndexerID + "|" + release.NormalizeTitle(rel.Title)
}

// triageCandidates splits ranked into already-verified (served instantly from
// the Verified-NZB Cache) and fresh candidates, runs the Triage Runner over
// the fresh ones when triage is enabled, and caches newly verified results.
// It returns the merged decision set, the set of keys that were served
// instantly, and whether every candidate now carries a final verdict.
func (s *Server) triageCandidates(ctx context.Context, ranked []*release.Release, contentType string) (map[string]*triage.Decision, map[string]bool, bool) {
	decisions := make(map[string]*triage.Decision)
	instant := make(map[string]bool)

	if !s.cfg.Triage.Enabled || s.triageRunner == nil {
		return decisions, instant, true
	}

	var fresh []*release.Release
	for _, rel := range ranked {
		if cached, ok := s.tiers.VerifiedNZB.Get(verifiedCacheKey(rel)); ok && triage.IsFinal(cached.Decision.Status) {
			decisions[candidateKey(rel)] = cached.Decision
			instant[candidateKey(rel)] = true
			continue
		}
		fresh = append(fresh, rel)
	}

	if len(fresh) == 0 {
		return decisions, instant, true
	}

	runDecisions, summary := s.triageRunner.Run(ctx, fresh)
	for key, d := range runDecisions {
		decisions[key] = d
	}

	byKey := make(map[string]*release.Release, len(fresh))
	for _, rel := range fresh {
		byKey[candidateKey(rel)] = rel
	}
	for key, d := range runDecisions {
		if d.Status != triage.StatusVerified || d.NZBBody == nil {
			continue
		}
		rel, ok := byKey[key]
		if !ok {
			continue
		}
		s.tiers.VerifiedNZB.Set(verifiedCacheKey(rel), &cachetier.VerifiedNZB{Decision: d, NZBBody: d.NZBBody})
		s.prewarmMount(rel, d.NZBBody, contentType)
	}

	return decisions, instant, !summary.TimedOut
}
