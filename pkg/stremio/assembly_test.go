package stremio

import (
	"strings"
	"testing"

	"streamnzb/pkg/release"
	"streamnzb/pkg/triage"
)

func TestAssembleStreamsFiltersBlockedAndErrored(t *testing.T) {
	s := newTestServer(nil)

	verified := releaseWithLink("http://nzb/verified")
	verified.Title = "Verified.Movie.2024"
	blocked := releaseWithLink("http://nzb/blocked")
	blocked.Title = "Blocked.Movie.2024"
	fetchErr := releaseWithLink("http://nzb/error")
	fetchErr.Title = "Error.Movie.2024"
	noDecision := releaseWithLink("http://nzb/nodecision")
	noDecision.Title = "NoDecision.Movie.2024"

	decisions := map[string]*triage.Decision{
		candidateKey(verified): {Status: triage.StatusVerified},
		candidateKey(blocked):  {Status: triage.StatusBlocked},
		candidateKey(fetchErr): {Status: triage.StatusFetchError},
	}

	streams := s.assembleStreams(
		[]*release.Release{verified, blocked, fetchErr, noDecision},
		decisions,
		map[string]bool{},
		"movie", "tt1234567",
	)

	if len(streams) != 2 {
		t.Fatalf("got %d streams, want 2 (blocked and fetch-error candidates dropped)", len(streams))
	}
	for _, st := range streams {
		if strings.Contains(st.Name, "Blocked") || strings.Contains(st.Name, "Error") {
			t.Errorf("unexpected blocked/errored candidate in results: %q", st.Name)
		}
	}
}

func TestAssembleStreamsSortsInstantFirst(t *testing.T) {
	s := newTestServer(nil)

	first := releaseWithLink("http://nzb/first")
	first.Title = "First.Movie.2024"
	second := releaseWithLink("http://nzb/second")
	second.Title = "Second.Movie.2024"

	decisions := map[string]*triage.Decision{
		candidateKey(first):  {Status: triage.StatusUnverified},
		candidateKey(second): {Status: triage.StatusVerified},
	}
	instant := map[string]bool{candidateKey(second): true}

	streams := s.assembleStreams([]*release.Release{first, second}, decisions, instant, "movie", "tt1234567")

	if len(streams) != 2 {
		t.Fatalf("got %d streams, want 2", len(streams))
	}
	if !strings.Contains(streams[0].Name, "Instant") {
		t.Errorf("expected the instant-served candidate first, got %q then %q", streams[0].Name, streams[1].Name)
	}
}

func TestBuildPlaybackURLUsesDownloadURLForDirectReleases(t *testing.T) {
	s := newTestServer(nil)
	rel := releaseWithLink("http://indexer/nzb/1")
	rel.Title = "Movie.2024.1080p-GROUP"
	rel.Size = 1 << 30

	playURL := s.buildPlaybackURL(rel, "movie", "tt1234567")

	if !strings.Contains(playURL, "downloadUrl=") {
		t.Errorf("expected downloadUrl param in %q", playURL)
	}
	if strings.Contains(playURL, "easynewsPayload=") {
		t.Errorf("did not expect easynewsPayload param in %q", playURL)
	}
	if !strings.HasPrefix(playURL, "https://example.com/s3cr3t/nzb/stream?") {
		t.Errorf("expected the shared-secret gate prefix, got %q", playURL)
	}
}

func TestBuildPlaybackURLUsesPayloadForEasynewsReleases(t *testing.T) {
	s := newTestServer(nil)
	rel := &release.Release{
		Title:        "Movie.2024.1080p-GROUP",
		SourceType:   release.SourceEasynews,
		PayloadToken: "opaque-token",
	}

	playURL := s.buildPlaybackURL(rel, "movie", "tt1234567")

	if !strings.Contains(playURL, "easynewsPayload=opaque-token") {
		t.Errorf("expected easynewsPayload param in %q", playURL)
	}
	if strings.Contains(playURL, "downloadUrl=") {
		t.Errorf("did not expect downloadUrl param in %q", playURL)
	}
}

func TestCategoryForSelectsMoviesOrSeries(t *testing.T) {
	s := newTestServer(nil)
	if got := s.categoryFor("movie"); got != "movies" {
		t.Errorf("categoryFor(movie) = %q, want movies", got)
	}
	if got := s.categoryFor("series"); got != "tv" {
		t.Errorf("categoryFor(series) = %q, want tv", got)
	}
}

func TestPrewarmMountSkipsReleasesWithoutLink(t *testing.T) {
	s := newTestServer(nil)
	rel := &release.Release{Title: "Movie.2024.1080p-GROUP", DetailsURL: "http://details/1"}

	// Should be a no-op: no mount client configured and no Link to key off of.
	s.prewarmMount(rel, []byte("<nzb></nzb>"), "movie")

	if s.tiers.MountHandle.Len() != 0 {
		t.Errorf("expected no mount handle to be started for a linkless release")
	}
}
