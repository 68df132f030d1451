// Package stremio implements the Stremio addon HTTP surface: the manifest,
// the stream-search orchestrator (planner -> indexer -> ranker -> triage ->
// cache -> mount), and the ranged playback proxy.
package stremio

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"streamnzb/pkg/auth"
	"streamnzb/pkg/cachetier"
	"streamnzb/pkg/config"
	"streamnzb/pkg/indexer"
	"streamnzb/pkg/logger"
	"streamnzb/pkg/metadata/tmdb"
	"streamnzb/pkg/metadata/tvdb"
	"streamnzb/pkg/mount"
	"streamnzb/pkg/triage"
)

// Server is the Stremio addon HTTP server: it owns no state of its own
// beyond the config snapshot it was built with, and leans entirely on the
// tiers, indexer, and triage runner it's wired against.
type Server struct {
	manifest     *Manifest
	cfg          *config.Config
	idx          indexer.Indexer
	easynewsIdx  indexer.Indexer // optional; nil when Easynews is disabled
	tmdbClient   *tmdb.Client    // optional; nil when no TMDB API key is configured
	tvdbClient   *tvdb.Client    // optional; nil when no TVDB API key is configured
	tiers        *cachetier.Tiers
	triageRunner *triage.Runner
	mountClient  *mount.Client
	proxy        *mount.Proxy
}

// NewServer wires a Server from its fully-constructed dependencies. Any of
// easynewsIdx, tmdbClient, tvdbClient, or triageRunner may be nil when that
// subsystem is disabled in config. A metadata Resolver is built fresh per
// request (see buildStreams) rather than held here, since it's scoped to one
// request's content type ("movie" or "series").
func NewServer(cfg *config.Config, idx, easynewsIdx indexer.Indexer, tmdbClient *tmdb.Client, tvdbClient *tvdb.Client, tiers *cachetier.Tiers, triageRunner *triage.Runner, mountClient *mount.Client) *Server {
	return &Server{
		manifest:     NewManifest(cfg.AddonName),
		cfg:          cfg,
		idx:          idx,
		easynewsIdx:  easynewsIdx,
		tmdbClient:   tmdbClient,
		tvdbClient:   tvdbClient,
		tiers:        tiers,
		triageRunner: triageRunner,
		mountClient:  mountClient,
		proxy:        mount.NewProxy(mountClient),
	}
}

// CheckPort verifies the addon's configured port is free before the caller
// starts listening on it, so a misconfiguration fails fast with a clear error.
func CheckPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("addon port %d is already in use", port)
	}
	return ln.Close()
}

// SetupRoutes registers the addon's routes on mux. /health is exempt from
// the shared-secret gate so external health checks don't need the secret;
// everything else is mounted behind auth.Gate.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	inner := http.NewServeMux()
	inner.HandleFunc("/manifest.json", s.handleManifest)
	inner.HandleFunc("/stream/", s.handleStream)
	inner.HandleFunc("/nzb/stream", s.handlePlay)
	inner.HandleFunc("/easynews/nzb", s.handleEasynewsNZB)
	inner.HandleFunc("/api/stats/ws", s.handleStatsWS)

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/", auth.Gate(s.cfg.AddonSharedSecret)(inner))
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	logger.Debug("manifest request", "remote", r.RemoteAddr)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	data, err := s.manifest.ToJSON()
	if err != nil {
		http.Error(w, "failed to generate manifest", http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
