package stremio

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"streamnzb/pkg/cachetier"
	"streamnzb/pkg/config"
	"streamnzb/pkg/indexer"
	"streamnzb/pkg/release"
)

type fakeIndexer struct {
	name       string
	searchFunc func(indexer.SearchRequest) (*indexer.SearchResponse, error)
}

func (f *fakeIndexer) Search(req indexer.SearchRequest) (*indexer.SearchResponse, error) {
	return f.searchFunc(req)
}
func (f *fakeIndexer) DownloadNZB(ctx context.Context, nzbURL string) ([]byte, error) { return nil, nil }
func (f *fakeIndexer) Ping() error                                                    { return nil }
func (f *fakeIndexer) Name() string                                                  { return f.name }
func (f *fakeIndexer) GetUsage() indexer.Usage                                       { return indexer.Usage{} }

func testConfig() *config.Config {
	return &config.Config{
		AddonBaseURL:      "https://example.com",
		AddonSharedSecret: "s3cr3t",
		Ranker:            config.RankerConfig{SortMode: "quality_then_size"},
		Mount:             config.MountConfig{CategoryMovies: "movies", CategorySeries: "tv"},
	}
}

func newTestServer(idx indexer.Indexer) *Server {
	cfg := testConfig()
	tiers := cachetier.New(config.CacheConfig{
		StreamCacheTTLMinutes:      5,
		VerifiedNZBCacheTTLMinutes: 5,
		NZBDavCacheTTLMinutes:      5,
	})
	return NewServer(cfg, idx, nil, nil, nil, tiers, nil, nil)
}

func mkItem(title, link string, size int64) indexer.Item {
	return indexer.Item{Title: title, Link: link, GUID: link, Size: size}
}

func TestBuildStreamsReturnsRankedCandidates(t *testing.T) {
	idx := &fakeIndexer{name: "test", searchFunc: func(req indexer.SearchRequest) (*indexer.SearchResponse, error) {
		return &indexer.SearchResponse{Channel: indexer.Channel{Items: []indexer.Item{
			mkItem("Movie.Title.2024.1080p.BluRay.x264-GROUP", "http://nzb/1", 4<<30),
			mkItem("Movie.Title.2024.720p.WEB-DL.x264-GROUP", "http://nzb/2", 2<<30),
		}}}, nil
	}}
	s := newTestServer(idx)

	streams, err := s.buildStreams(context.Background(), "movie", "tt1234567")
	if err != nil {
		t.Fatalf("buildStreams failed: %v", err)
	}
	if len(streams) != 2 {
		t.Fatalf("got %d streams, want 2", len(streams))
	}
	if streams[0].Name == "" {
		t.Error("expected a non-empty stream name")
	}
}

func TestBuildStreamsServesCacheHitWhenTriageComplete(t *testing.T) {
	calls := 0
	idx := &fakeIndexer{name: "test", searchFunc: func(req indexer.SearchRequest) (*indexer.SearchResponse, error) {
		calls++
		return &indexer.SearchResponse{Channel: indexer.Channel{Items: []indexer.Item{
			mkItem("Movie.Title.2024.1080p.BluRay.x264-GROUP", "http://nzb/1", 4<<30),
		}}}, nil
	}}
	s := newTestServer(idx)

	if _, err := s.buildStreams(context.Background(), "movie", "tt1234567"); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if _, err := s.buildStreams(context.Background(), "movie", "tt1234567"); err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("indexer searched %d times, want 1 (second request should hit the response cache)", calls)
	}
}

func TestBuildStreamsPropagatesIndexerError(t *testing.T) {
	idx := &fakeIndexer{name: "test", searchFunc: func(req indexer.SearchRequest) (*indexer.SearchResponse, error) {
		return nil, errors.New("indexer unavailable")
	}}
	s := newTestServer(idx)

	if _, err := s.buildStreams(context.Background(), "movie", "tt1234567"); err == nil {
		t.Fatal("expected an error when the indexer search fails")
	}
}

func TestParseStreamPath(t *testing.T) {
	cases := []struct {
		path        string
		contentType string
		id          string
		ok          bool
	}{
		{"/stream/movie/tt1234567.json", "movie", "tt1234567", true},
		{"/stream/series/tt1234567:1:2.json", "series", "tt1234567:1:2", true},
		{"/stream/movie/", "", "", false},
		{"/manifest.json", "", "", false},
	}
	for _, tc := range cases {
		contentType, id, ok := parseStreamPath(tc.path)
		if ok != tc.ok || contentType != tc.contentType || id != tc.id {
			t.Errorf("parseStreamPath(%q) = (%q, %q, %v), want (%q, %q, %v)", tc.path, contentType, id, ok, tc.contentType, tc.id, tc.ok)
		}
	}
}

func TestParseStreamIDFormats(t *testing.T) {
	cases := []struct {
		contentType string
		id          string
		want        parsedID
	}{
		{"movie", "tt1234567", parsedID{imdbID: "tt1234567"}},
		{"movie", "tmdb:555", parsedID{tmdbID: "555"}},
		{"series", "tt1234567:1:2", parsedID{imdbID: "tt1234567", season: "1", episode: "2"}},
		{"series", "tmdb:555:1:2", parsedID{tmdbID: "555", season: "1", episode: "2"}},
	}
	for _, tc := range cases {
		got := parseStreamID(tc.contentType, tc.id)
		if got != tc.want {
			t.Errorf("parseStreamID(%q, %q) = %+v, want %+v", tc.contentType, tc.id, got, tc.want)
		}
	}
}

func TestHandleStreamWritesJSONResponse(t *testing.T) {
	idx := &fakeIndexer{name: "test", searchFunc: func(req indexer.SearchRequest) (*indexer.SearchResponse, error) {
		return &indexer.SearchResponse{Channel: indexer.Channel{Items: []indexer.Item{
			mkItem("Movie.Title.2024.1080p.BluRay.x264-GROUP", "http://nzb/1", 4<<30),
		}}}, nil
	}}
	s := newTestServer(idx)

	req := httptest.NewRequest("GET", "/stream/movie/tt1234567.json", nil)
	rec := httptest.NewRecorder()
	s.handleStream(rec, req)

	var resp StreamResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Streams) != 1 {
		t.Fatalf("got %d streams, want 1", len(resp.Streams))
	}
	if resp.Streams[0].URL == "" {
		t.Error("expected a non-empty playback URL")
	}
}

func TestTriageTag(t *testing.T) {
	if got := triageTag(""); got != "" {
		t.Errorf("triageTag(\"\") = %q, want empty", got)
	}
}

func releaseWithLink(link string) *release.Release {
	return &release.Release{Title: "Movie.2024.1080p-GROUP", Link: link}
}

func TestCandidateKeyPrefersLink(t *testing.T) {
	rel := releaseWithLink("http://nzb/1")
	rel.DetailsURL = "http://details/1"
	if got := candidateKey(rel); got != "http://nzb/1" {
		t.Errorf("candidateKey = %q, want link", got)
	}
}

func TestCandidateKeyFallsBackToDetailsURL(t *testing.T) {
	rel := &release.Release{Title: "Movie.2024.1080p-GROUP", DetailsURL: "http://details/1"}
	if got := candidateKey(rel); got != "http://details/1" {
		t.Errorf("candidateKey = %q, want details url", got)
	}
}
