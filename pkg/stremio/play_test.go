package stremio

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"streamnzb/pkg/mount"
)

func mountServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("mode") {
		case "addurl", "addfile":
			json.NewEncoder(w).Encode(map[string]any{"status": true, "nzo_ids": []string{"job-1"}})
		case "history":
			json.NewEncoder(w).Encode(map[string]any{
				"history": []map[string]string{
					{"nzo_id": "job-1", "status": "completed", "name": "Movie.2024"},
				},
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "PROPFIND" {
			w.WriteHeader(http.StatusMultiStatus)
			w.Write([]byte(`<?xml version="1.0"?>
<D:multistatus xmlns:D="DAV:">
  <D:response><D:href>/Movie.2024/movie.mkv</D:href><D:propstat><D:prop><D:getcontentlength>9000</D:getcontentlength></D:prop></D:propstat></D:response>
</D:multistatus>`))
			return
		}
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "video/mp4")
			w.WriteHeader(http.StatusOK)
			if r.Method == http.MethodGet {
				w.Write([]byte("fake-video-bytes"))
			}
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
	return httptest.NewServer(mux)
}

func newPlayTestServer(t *testing.T, srv *httptest.Server) *Server {
	t.Helper()
	cfg := testConfig()
	cfg.Mount.URL = srv.URL
	cfg.Mount.WebDAVURL = srv.URL
	mc := mount.NewClient(cfg.Mount)
	s := newTestServer(nil)
	s.cfg = cfg
	s.mountClient = mc
	s.proxy = mount.NewProxy(mc)
	return s
}

func TestHandlePlaySubmitsAndProxiesFile(t *testing.T) {
	srv := mountServer(t)
	defer srv.Close()

	s := newPlayTestServer(t, srv)

	req := httptest.NewRequest(http.MethodGet, "/nzb/stream?type=movie&title=Movie.2024&downloadUrl=http://indexer/nzb/1", nil)
	rec := httptest.NewRecorder()
	s.handlePlay(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-NZBDav-Failure") != "" {
		t.Fatalf("unexpected failure header: %s", rec.Header().Get("X-NZBDav-Failure"))
	}
	if rec.Body.String() != "fake-video-bytes" {
		t.Fatalf("body = %q, want fake-video-bytes", rec.Body.String())
	}
}

func TestHandlePlayFallsBackWhenDownloadURLMissing(t *testing.T) {
	s := newTestServer(nil)
	s.proxy = mount.NewProxy(nil)

	req := httptest.NewRequest(http.MethodGet, "/nzb/stream?type=movie&title=Movie.2024", nil)
	rec := httptest.NewRecorder()
	s.handlePlay(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (fallback video)", rec.Code)
	}
	if rec.Header().Get("X-NZBDav-Failure") == "" {
		t.Fatal("expected X-NZBDav-Failure header on fallback")
	}
}

func TestHandlePlayReusesHistoryJobWhenProvided(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		mode := r.URL.Query().Get("mode")
		if mode == "addurl" || mode == "addfile" {
			calls++
		}
		json.NewEncoder(w).Encode(map[string]any{
			"history": []map[string]string{
				{"nzo_id": "job-9", "status": "completed", "name": "Movie.2024"},
			},
		})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "PROPFIND" {
			w.WriteHeader(http.StatusMultiStatus)
			w.Write([]byte(`<?xml version="1.0"?>
<D:multistatus xmlns:D="DAV:">
  <D:response><D:href>/Movie.2024/movie.mkv</D:href><D:propstat><D:prop><D:getcontentlength>9000</D:getcontentlength></D:prop></D:propstat></D:response>
</D:multistatus>`))
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := newPlayTestServer(t, srv)

	req := httptest.NewRequest(http.MethodGet, "/nzb/stream?type=movie&title=Movie.2024&downloadUrl=http://indexer/nzb/1&historyNzoId=job-9", nil)
	rec := httptest.NewRecorder()
	s.handlePlay(rec, req)

	if calls != 0 {
		t.Fatalf("expected no addurl/addfile call when historyNzoId is set, got %d", calls)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleEasynewsNZBRequiresPayload(t *testing.T) {
	s := newTestServer(nil)
	s.easynewsIdx = &fakeIndexer{name: "easynews"}

	req := httptest.NewRequest(http.MethodGet, "/easynews/nzb", nil)
	rec := httptest.NewRecorder()
	s.handleEasynewsNZB(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleEasynewsNZBNotConfigured(t *testing.T) {
	s := newTestServer(nil)

	req := httptest.NewRequest(http.MethodGet, "/easynews/nzb?payload=abc", nil)
	rec := httptest.NewRecorder()
	s.handleEasynewsNZB(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestFilenameForDefaultsWhenEmpty(t *testing.T) {
	if got := filenameFor(""); got != "stream.mp4" {
		t.Errorf("filenameFor(\"\") = %q, want stream.mp4", got)
	}
	if got := filenameFor("Movie.2024.mkv"); got != "Movie.2024.mkv" {
		t.Errorf("filenameFor = %q, want passthrough", got)
	}
}
