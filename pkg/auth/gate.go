// Package auth gates inbound addon requests behind a single shared secret,
// following the Stremio addon convention of embedding it as the request's
// first path segment (e.g. /{secret}/manifest.json, /{secret}/stream/...,
// /{secret}/play/...) rather than a header, since Stremio itself builds
// addon URLs this way and can't be told to add custom headers.
package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Gate strips the leading secret path segment and forwards the request with
// it removed, or rejects the request with 401 when the segment doesn't
// match. An empty secret disables the gate entirely (open access), so a
// self-hosted instance behind its own network perimeter can opt out.
func Gate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rest, ok := stripSecret(r.URL.Path, secret)
			if !ok {
				unauthorized(w)
				return
			}
			r2 := r.Clone(r.Context())
			r2.URL.Path = rest
			next.ServeHTTP(w, r2)
		})
	}
}

func stripSecret(path, secret string) (string, bool) {
	trimmed := strings.TrimPrefix(path, "/")
	segment, rest, _ := strings.Cut(trimmed, "/")
	if segment != secret {
		return "", false
	}
	return "/" + rest, true
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
}

// AddonURL joins baseURL, the shared secret (when non-empty), and path into
// an absolute addon URL of the form baseURL/secret/path. Used to build
// stream and play URLs that Stremio will later call back through Gate.
func AddonURL(baseURL, secret, path string) string {
	baseURL = strings.TrimSuffix(baseURL, "/")
	path = strings.TrimPrefix(path, "/")
	if secret == "" {
		return baseURL + "/" + path
	}
	return baseURL + "/" + secret + "/" + path
}
