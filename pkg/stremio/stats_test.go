package stremio

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func TestCollectStatsReportsSingleIndexer(t *testing.T) {
	s := newTestServer(&fakeIndexer{name: "solo"})

	snap := s.collectStats()
	if len(snap.Indexers) != 1 {
		t.Fatalf("got %d indexer stats, want 1", len(snap.Indexers))
	}
	if snap.Indexers[0].Name != "solo" {
		t.Errorf("indexer name = %q, want solo", snap.Indexers[0].Name)
	}
}

func TestCollectStatsEmptyWhenNoIndexer(t *testing.T) {
	s := newTestServer(nil)

	if snap := s.collectStats(); len(snap.Indexers) != 0 {
		t.Errorf("got %d indexer stats, want 0", len(snap.Indexers))
	}
}

func TestHandleStatsWSPushesSnapshot(t *testing.T) {
	s := newTestServer(&fakeIndexer{name: "solo"})

	srv := httptest.NewServer(http.HandlerFunc(s.handleStatsWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var snap statsSnapshot
	if err := json.Unmarshal(msg, &snap); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if len(snap.Indexers) != 1 || snap.Indexers[0].Name != "solo" {
		t.Errorf("got %+v, want one indexer named solo", snap)
	}
}
