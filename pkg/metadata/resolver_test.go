package metadata

import (
	"testing"

	"streamnzb/pkg/metadata/tmdb"
)

func TestResolverReturnsErrorWhenTMDBClientMissing(t *testing.T) {
	r := NewResolver(nil, nil, "movie")

	if _, err := r.GetMovieTitle("tt1", ""); err == nil {
		t.Fatal("expected an error with no TMDB client configured")
	}
	if _, err := r.GetTVShowName("", "tt1"); err == nil {
		t.Fatal("expected an error with no TMDB client configured")
	}
	if got := r.LocalizedTitles("tt1", ""); got != nil {
		t.Fatalf("expected nil localized titles with no TMDB client, got %v", got)
	}
}

func TestResolverLocalizedTitlesNoOpWithoutID(t *testing.T) {
	r := NewResolver(tmdb.NewClient("key"), nil, "movie")
	if got := r.LocalizedTitles("", ""); got != nil {
		t.Fatalf("expected nil without any id to resolve from, got %v", got)
	}
}

func TestResolverResolveTVDBIDErrorsWithNoClients(t *testing.T) {
	r := NewResolver(nil, nil, "series")
	if _, err := r.ResolveTVDBID("tt1"); err == nil {
		t.Fatal("expected an error with no clients configured")
	}
}
