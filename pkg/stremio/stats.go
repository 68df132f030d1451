package stremio

import (
	"encoding/json"
	"net/http"
	"time"

	"streamnzb/pkg/indexer"
	"streamnzb/pkg/logger"

	"github.com/gorilla/websocket"
)

var statsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const statsPushInterval = 2 * time.Second

// indexerStat is one sub-indexer's usage snapshot for the operator UI.
type indexerStat struct {
	Name           string `json:"name"`
	APIHitsUsed    int    `json:"apiHitsUsed"`
	APIHitsLimit   int    `json:"apiHitsLimit"`
	DownloadsUsed  int    `json:"downloadsUsed"`
	DownloadsLimit int    `json:"downloadsLimit"`
}

// statsSnapshot is the full payload pushed to /api/stats/ws on every tick.
type statsSnapshot struct {
	Indexers []indexerStat `json:"indexers"`
}

func (s *Server) collectStats() statsSnapshot {
	agg, ok := s.idx.(*indexer.Aggregator)
	if !ok {
		if s.idx == nil {
			return statsSnapshot{}
		}
		u := s.idx.GetUsage()
		return statsSnapshot{Indexers: []indexerStat{{
			Name:           s.idx.Name(),
			APIHitsUsed:    u.APIHitsUsed,
			APIHitsLimit:   u.APIHitsLimit,
			DownloadsUsed:  u.DownloadsUsed,
			DownloadsLimit: u.DownloadsLimit,
		}}}
	}

	snap := statsSnapshot{Indexers: make([]indexerStat, 0, len(agg.GetIndexers()))}
	for _, idx := range agg.GetIndexers() {
		u := idx.GetUsage()
		snap.Indexers = append(snap.Indexers, indexerStat{
			Name:           idx.Name(),
			APIHitsUsed:    u.APIHitsUsed,
			APIHitsLimit:   u.APIHitsLimit,
			DownloadsUsed:  u.DownloadsUsed,
			DownloadsLimit: u.DownloadsLimit,
		})
	}
	return snap
}

// handleStatsWS streams a live indexer-usage snapshot to the operator UI
// every statsPushInterval until the client disconnects.
func (s *Server) handleStatsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := statsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("stats websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if payload, err := json.Marshal(s.collectStats()); err == nil {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}

	ticker := time.NewTicker(statsPushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			payload, err := json.Marshal(s.collectStats())
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
