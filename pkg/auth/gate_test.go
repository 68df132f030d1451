package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGateStripsMatchingSecretAndForwards(t *testing.T) {
	var gotPath string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})

	handler := Gate("s3cr3t")(inner)

	req := httptest.NewRequest(http.MethodGet, "/s3cr3t/manifest.json", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotPath != "/manifest.json" {
		t.Fatalf("forwarded path = %q, want /manifest.json", gotPath)
	}
}

func TestGateRejectsWrongSecret(t *testing.T) {
	called := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	handler := Gate("s3cr3t")(inner)

	req := httptest.NewRequest(http.MethodGet, "/wrong/manifest.json", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if called {
		t.Fatal("inner handler should not have been called")
	}
}

func TestGateRejectsMissingSegment(t *testing.T) {
	handler := Gate("s3cr3t")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/manifest.json", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGateAllowsRootPathWithSecretOnly(t *testing.T) {
	var gotPath string
	handler := Gate("s3cr3t")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))

	req := httptest.NewRequest(http.MethodGet, "/s3cr3t", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if gotPath != "/" {
		t.Fatalf("forwarded path = %q, want /", gotPath)
	}
}

func TestGateDisabledWhenSecretEmpty(t *testing.T) {
	called := false
	handler := Gate("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodGet, "/manifest.json", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected the inner handler to run when no secret is configured")
	}
}

func TestAddonURLWithSecret(t *testing.T) {
	got := AddonURL("https://example.com/", "s3cr3t", "/stream/movie/tt1.json")
	want := "https://example.com/s3cr3t/stream/movie/tt1.json"
	if got != want {
		t.Fatalf("AddonURL = %q, want %q", got, want)
	}
}

func TestAddonURLWithoutSecret(t *testing.T) {
	got := AddonURL("https://example.com", "", "manifest.json")
	want := "https://example.com/manifest.json"
	if got != want {
		t.Fatalf("AddonURL = %q, want %q", got, want)
	}
}
