package tvdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"streamnzb/pkg/persistence"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	prevBaseURL := baseURL
	baseURL = srv.URL

	dataDir := t.TempDir()
	resetStoredToken(t, dataDir)

	c := NewClient("test-key", dataDir)
	return c, func() {
		srv.Close()
		baseURL = prevBaseURL
	}
}

// resetStoredToken clears any bearer token left behind by an earlier test in
// this binary, since persistence.GetManager is a process-wide singleton
// once first initialized.
func resetStoredToken(t *testing.T, dataDir string) {
	t.Helper()
	manager, err := persistence.GetManager(dataDir)
	if err != nil {
		t.Fatalf("GetManager failed: %v", err)
	}
	if err := manager.Set(stateKey, tokenState{}); err != nil {
		t.Fatalf("failed to reset stored token: %v", err)
	}
}

func TestResolveTVDBIDLogsInOnceThenCachesToken(t *testing.T) {
	var logins int32
	c, close := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/login"):
			atomic.AddInt32(&logins, 1)
			w.Write([]byte(`{"status":"success","data":{"token":"tok-1"}}`))
		case strings.Contains(r.URL.Path, "/search/remoteid/"):
			w.Write([]byte(`{"status":"success","data":[{"series":{"id":55}}]}`))
		default:
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
	})
	defer close()

	if _, err := c.ResolveTVDBID(context.Background(), "tt1"); err != nil {
		t.Fatalf("first ResolveTVDBID failed: %v", err)
	}
	if _, err := c.ResolveTVDBID(context.Background(), "tt2"); err != nil {
		t.Fatalf("second ResolveTVDBID failed: %v", err)
	}

	if got := atomic.LoadInt32(&logins); got != 1 {
		t.Fatalf("logins = %d, want 1 (second call should reuse the cached token)", got)
	}
}

func TestResolveTVDBIDPrefersEpisodeSeriesID(t *testing.T) {
	c, close := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/login") {
			w.Write([]byte(`{"status":"success","data":{"token":"tok"}}`))
			return
		}
		w.Write([]byte(`{"status":"success","data":[
			{"episode":{"seriesId":10},"series":{"id":20},"movie":{"id":30}}
		]}`))
	})
	defer close()

	id, err := c.ResolveTVDBID(context.Background(), "tt123")
	if err != nil {
		t.Fatalf("ResolveTVDBID failed: %v", err)
	}
	if id != "10" {
		t.Fatalf("id = %q, want 10 (episode.seriesId takes priority)", id)
	}
}

func TestResolveTVDBIDFallsBackToMovieID(t *testing.T) {
	c, close := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/login") {
			w.Write([]byte(`{"status":"success","data":{"token":"tok"}}`))
			return
		}
		w.Write([]byte(`{"status":"success","data":[{"movie":{"id":77}}]}`))
	})
	defer close()

	id, err := c.ResolveTVDBID(context.Background(), "tt456")
	if err != nil {
		t.Fatalf("ResolveTVDBID failed: %v", err)
	}
	if id != "77" {
		t.Fatalf("id = %q, want 77", id)
	}
}

func TestResolveTVDBIDErrorsWhenNoDataReturned(t *testing.T) {
	c, close := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/login") {
			w.Write([]byte(`{"status":"success","data":{"token":"tok"}}`))
			return
		}
		w.Write([]byte(`{"status":"success","data":[]}`))
	})
	defer close()

	if _, err := c.ResolveTVDBID(context.Background(), "tt789"); err == nil {
		t.Fatal("expected an error when no remote-id data is returned")
	}
}

func TestResolveTVDBIDRequiresAPIKey(t *testing.T) {
	c := NewClient("", t.TempDir())
	if _, err := c.ResolveTVDBID(context.Background(), "tt1"); err == nil {
		t.Fatal("expected an error with no API key configured")
	}
}

func TestLoginFailureStatusPropagates(t *testing.T) {
	c, close := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer close()

	if _, err := c.ResolveTVDBID(context.Background(), "tt1"); err == nil {
		t.Fatal("expected an error when login returns a non-200 status")
	}
}
