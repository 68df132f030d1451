package tmdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	prevBaseURL := baseURL
	baseURL = srv.URL
	c := NewClient("test-key")
	return c, func() {
		srv.Close()
		baseURL = prevBaseURL
	}
}

func TestGetMovieTitleByIMDbID(t *testing.T) {
	c, close := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/find/tt123") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"movie_results":[{"id":1,"title":"Example Movie"}]}`))
	})
	defer close()

	title, err := c.GetMovieTitle(context.Background(), "tt123", "")
	if err != nil {
		t.Fatalf("GetMovieTitle failed: %v", err)
	}
	if title != "Example Movie" {
		t.Fatalf("title = %q, want Example Movie", title)
	}
}

func TestGetMovieTitleRequiresAPIKey(t *testing.T) {
	c := NewClient("")
	if _, err := c.GetMovieTitle(context.Background(), "tt123", ""); err == nil {
		t.Fatal("expected an error with no API key configured")
	}
}

func TestGetTVShowNameByTMDBID(t *testing.T) {
	c, close := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/tv/42") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"id":42,"name":"Example Show"}`))
	})
	defer close()

	name, err := c.GetTVShowName(context.Background(), "42", "")
	if err != nil {
		t.Fatalf("GetTVShowName failed: %v", err)
	}
	if name != "Example Show" {
		t.Fatalf("name = %q, want Example Show", name)
	}
}

func TestResolveTVDBIDChainsFindAndExternalIDs(t *testing.T) {
	calls := 0
	c, close := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if strings.Contains(r.URL.Path, "/find/") {
			w.Write([]byte(`{"tv_results":[{"id":7}]}`))
			return
		}
		if strings.Contains(r.URL.Path, "/external_ids") {
			w.Write([]byte(`{"id":7,"tvdb_id":99}`))
			return
		}
		t.Fatalf("unexpected path: %s", r.URL.Path)
	})
	defer close()

	id, err := c.ResolveTVDBID(context.Background(), "tt999")
	if err != nil {
		t.Fatalf("ResolveTVDBID failed: %v", err)
	}
	if id != "99" {
		t.Fatalf("id = %q, want 99", id)
	}
	if calls != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", calls)
	}
}

func TestResolveTVDBIDErrorsWhenNoTVDBID(t *testing.T) {
	c, close := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/find/") {
			w.Write([]byte(`{"tv_results":[{"id":7}]}`))
			return
		}
		w.Write([]byte(`{"id":7,"tvdb_id":0}`))
	})
	defer close()

	if _, err := c.ResolveTVDBID(context.Background(), "tt999"); err == nil {
		t.Fatal("expected an error when external_ids has no tvdb_id")
	}
}

func TestLocalizedTitlesFiltersNonASCIIAndDuplicates(t *testing.T) {
	c, close := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"titles":[
			{"title":"Le Film","iso_3166_1":"FR"},
			{"title":"Le Film","iso_3166_1":"BE"},
			{"title":"日本語タイトル","iso_3166_1":"JP"}
		]}`))
	})
	defer close()

	titles := c.LocalizedTitles(context.Background(), "movie", 5)
	if len(titles) != 1 || titles[0] != "Le Film" {
		t.Fatalf("titles = %v, want [\"Le Film\"]", titles)
	}
}

func TestLocalizedTitlesReturnsNilWithoutAPIKeyOrID(t *testing.T) {
	c := NewClient("")
	if got := c.LocalizedTitles(context.Background(), "movie", 5); got != nil {
		t.Fatalf("expected nil with no API key, got %v", got)
	}

	c2 := NewClient("key")
	if got := c2.LocalizedTitles(context.Background(), "movie", 0); got != nil {
		t.Fatalf("expected nil with no tmdb id, got %v", got)
	}
}

func TestGetMovieDetailsNonOKStatus(t *testing.T) {
	c, close := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer close()

	if _, err := c.GetMovieDetails(context.Background(), 1); err == nil {
		t.Fatal("expected an error on 404 response")
	}
}
