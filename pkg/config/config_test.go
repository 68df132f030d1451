package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestUsableIndexers(t *testing.T) {
	cfg := defaults()
	cfg.Newznab[0] = IndexerConfig{Ordinal: 1, Endpoint: "https://a.example", APIKey: "key", Enabled: true}
	cfg.Newznab[1] = IndexerConfig{Ordinal: 2, Endpoint: "https://b.example", Enabled: true} // no key
	cfg.Newznab[2] = IndexerConfig{Ordinal: 3, Endpoint: "https://c.example", APIKey: "key", Enabled: false}

	usable := cfg.UsableIndexers()
	if len(usable) != 1 {
		t.Fatalf("UsableIndexers() = %d entries, want 1", len(usable))
	}
	if usable[0].Ordinal != 1 {
		t.Errorf("UsableIndexers()[0].Ordinal = %d, want 1", usable[0].Ordinal)
	}
}

func TestSaveLoadFileRoundTrip(t *testing.T) {
	cfg := defaults()
	cfg.AddonBaseURL = "https://addon.example"
	cfg.Newznab[4] = IndexerConfig{Ordinal: 5, Endpoint: "https://e.example", APIKey: "k5", Enabled: true, Paid: true}

	path := filepath.Join(t.TempDir(), "config.json")
	if err := cfg.SaveFile(path); err != nil {
		t.Fatalf("SaveFile() error = %v", err)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if loaded.AddonBaseURL != cfg.AddonBaseURL {
		t.Errorf("AddonBaseURL = %q, want %q", loaded.AddonBaseURL, cfg.AddonBaseURL)
	}
	if loaded.Newznab[4].APIKey != "k5" || !loaded.Newznab[4].Paid {
		t.Errorf("Newznab[4] = %+v, want APIKey=k5 Paid=true", loaded.Newznab[4])
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("NZB_SORT_MODE", "language_quality_size")
	t.Setenv("NEWZNAB_ENDPOINT_3", "https://override.example")
	t.Setenv("NEWZNAB_API_KEY_3", "overridekey")
	t.Setenv("NEWZNAB_PAID_3", "true")

	cfg := defaults()
	applyEnvOverrides(cfg)

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.Ranker.SortMode != "language_quality_size" {
		t.Errorf("SortMode = %q, want language_quality_size", cfg.Ranker.SortMode)
	}
	slot := cfg.Newznab[2]
	if slot.Endpoint != "https://override.example" || slot.APIKey != "overridekey" || !slot.Paid {
		t.Errorf("Newznab[2] = %+v, want overridden slot 3", slot)
	}
}

func TestLoadCreatesConfigWhenMissing(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STREAMNZB_DATA_DIR", dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 7000 {
		t.Errorf("Port = %d, want default 7000", cfg.Port)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.json")); err != nil {
		t.Errorf("expected config.json to be written: %v", err)
	}
}

func TestDiffReloadScope(t *testing.T) {
	a := defaults()
	b := defaults()

	if got := Diff(a, b); got != ReloadConfigOnly {
		t.Errorf("Diff(equal) = %v, want ReloadConfigOnly", got)
	}

	b = defaults()
	b.Triage.MaxConnections = a.Triage.MaxConnections + 1
	if got := Diff(a, b); got != ReloadTriage {
		t.Errorf("Diff(triage changed) = %v, want ReloadTriage", got)
	}

	b = defaults()
	b.Newznab[0] = IndexerConfig{Ordinal: 1, Endpoint: "https://x.example", APIKey: "k", Enabled: true}
	if got := Diff(a, b); got != ReloadIndexers {
		t.Errorf("Diff(indexers changed) = %v, want ReloadIndexers", got)
	}

	if got := Diff(nil, b); got != ReloadFull {
		t.Errorf("Diff(nil, b) = %v, want ReloadFull", got)
	}
}
