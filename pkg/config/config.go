// Package config loads the flat JSON configuration file and applies environment
// variable overrides on top of it once at startup. Subsequent reloads operate
// only on the saved file; environment variables are not re-read after Load.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"streamnzb/pkg/env"
	"streamnzb/pkg/logger"
	"streamnzb/pkg/paths"
)

// IndexerConfig describes one usable direct Newznab slot (ordinals 1..20).
type IndexerConfig struct {
	Ordinal  int    `json:"ordinal"`
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	APIPath  string `json:"api_path"`
	Name     string `json:"name"`
	Enabled  bool   `json:"enabled"`
	Paid     bool   `json:"paid"`
}

// DedupeKey is the stable slug used to identify an indexer across reloads.
func (c IndexerConfig) DedupeKey() string {
	return fmt.Sprintf("newznab-%d", c.Ordinal)
}

// Usable reports whether the slot is eligible to be queried.
func (c IndexerConfig) Usable() bool {
	return c.Enabled && c.Endpoint != "" && c.APIKey != ""
}

// RankerConfig drives the pkg/ranker pipeline.
type RankerConfig struct {
	SortMode                  string   `json:"sort_mode"` // quality_then_size | language_quality_size
	PreferredLanguages        []string `json:"preferred_languages"`
	MaxResultSizeGB           float64  `json:"max_result_size_gb"`
	AllowedResolutions        []string `json:"allowed_resolutions"`
	ResolutionLimitPerQuality int      `json:"resolution_limit_per_quality"`
	DedupEnabled              bool     `json:"dedup_enabled"`
	HideBlockedResults        bool     `json:"hide_blocked_results"`
}

// TriageConfig drives the pkg/triage runner and its dedicated NNTP pool.
type TriageConfig struct {
	Enabled               bool     `json:"enabled"`
	TimeBudgetMS          int      `json:"time_budget_ms"`
	MaxCandidates         int      `json:"max_candidates"`
	DownloadConcurrency   int      `json:"download_concurrency"`
	MaxConnections        int      `json:"max_connections"`
	StatSampleCount       int      `json:"stat_sample_count"`
	ArchiveSampleCount    int      `json:"archive_sample_count"`
	NNTPHost              string   `json:"nntp_host"`
	NNTPPort              int      `json:"nntp_port"`
	NNTPTLS               bool     `json:"nntp_tls"`
	NNTPUser              string   `json:"nntp_user"`
	NNTPPass              string   `json:"nntp_pass"`
	NNTPKeepAliveMS       int      `json:"nntp_keep_alive_ms"`
	ReusePool             bool     `json:"reuse_pool"`
	PrefetchFirstVerified bool     `json:"prefetch_first_verified"`
	PriorityIndexers      []string `json:"priority_indexers"`
	SerializedIndexers    []string `json:"serialized_indexers"`
}

// CacheConfig drives the three caches in pkg/cachetier.
type CacheConfig struct {
	StreamCacheTTLMinutes      int `json:"stream_cache_ttl_minutes"`
	StreamCacheMaxSizeMB       int `json:"stream_cache_max_size_mb"`
	VerifiedNZBCacheTTLMinutes int `json:"verified_nzb_cache_ttl_minutes"`
	VerifiedNZBCacheMaxSizeMB  int `json:"verified_nzb_cache_max_size_mb"`
	NZBDavCacheTTLMinutes      int `json:"nzbdav_cache_ttl_minutes"`
}

// MountConfig addresses the external mount/download service (NZBDav-like).
type MountConfig struct {
	URL            string `json:"url"`
	APIKey         string `json:"api_key"`
	WebDAVURL      string `json:"webdav_url"`
	WebDAVUser     string `json:"webdav_user"`
	WebDAVPass     string `json:"webdav_pass"`
	CategoryMovies string `json:"category_movies"`
	CategorySeries string `json:"category_series"`
}

// EasynewsConfig addresses the optional Easynews indexer/downloader.
type EasynewsConfig struct {
	Enabled  bool   `json:"enabled"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Config is the whole flat configuration document.
type Config struct {
	Port              int    `json:"port"`
	AddonBaseURL      string `json:"addon_base_url"`
	AddonSharedSecret string `json:"addon_shared_secret"`
	AddonName         string `json:"addon_name"`
	LogLevel          string `json:"log_level"`

	IndexerManager        string `json:"indexer_manager"` // none | prowlarr | nzbhydra
	IndexerManagerURL     string `json:"indexer_manager_url"`
	IndexerManagerAPIKey  string `json:"indexer_manager_api_key"`
	IndexerManagerBackoff int    `json:"indexer_manager_backoff_seconds"`

	Newznab [20]IndexerConfig `json:"newznab"`

	Ranker   RankerConfig   `json:"ranker"`
	Triage   TriageConfig   `json:"triage"`
	Cache    CacheConfig    `json:"cache"`
	Mount    MountConfig    `json:"mount"`
	Easynews EasynewsConfig `json:"easynews"`

	TMDBAPIKey string `json:"tmdb_api_key"`
	TVDBAPIKey string `json:"tvdb_api_key"`

	// LoadedPath records where this config was read from; not persisted.
	LoadedPath string `json:"-"`
}

func defaults() *Config {
	cfg := &Config{
		Port:                  7000,
		AddonName:             "StreamNZB",
		LogLevel:              "INFO",
		IndexerManager:        "none",
		IndexerManagerBackoff: 120,
	}
	cfg.Ranker = RankerConfig{
		SortMode:                  "quality_then_size",
		ResolutionLimitPerQuality: 0,
		DedupEnabled:              true,
	}
	cfg.Triage = TriageConfig{
		Enabled:             true,
		TimeBudgetMS:        20000,
		MaxCandidates:       25,
		DownloadConcurrency: 8,
		MaxConnections:      10,
		StatSampleCount:     3,
		ArchiveSampleCount:  2,
		NNTPPort:            563,
		NNTPTLS:             true,
		NNTPKeepAliveMS:     60000,
		ReusePool:           true,
	}
	cfg.Cache = CacheConfig{
		StreamCacheTTLMinutes:      24 * 60,
		StreamCacheMaxSizeMB:       200,
		VerifiedNZBCacheTTLMinutes: 24 * 60,
		VerifiedNZBCacheMaxSizeMB:  300,
		NZBDavCacheTTLMinutes:      60,
	}
	return cfg
}

// Load reads config.json from the data directory (falling back to built-in
// defaults if absent), applies environment overrides, then persists the
// merged result.
func Load() (*Config, error) {
	dataDir := paths.GetDataDir()
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		logger.Warn("Failed to create data directory", "dir", dataDir, "err", err)
	}
	path := filepath.Join(dataDir, "config.json")

	cfg := defaults()
	cfg.LoadedPath = path

	if err := cfg.loadFile(path); err != nil {
		if os.IsNotExist(err) {
			logger.Info("No config found, creating new one", "path", path)
		} else {
			logger.Warn("Failed to load config, using defaults", "path", path, "err", err)
		}
	} else {
		logger.Info("Loaded configuration", "path", path)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Save(); err != nil {
		logger.Warn("Failed to save config on startup", "err", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, c)
}

func applyEnvOverrides(cfg *Config) {
	cfg.Port = env.GetInt(env.Port, cfg.Port)
	cfg.AddonBaseURL = env.GetString(env.AddonBaseURL, cfg.AddonBaseURL)
	cfg.AddonSharedSecret = env.GetString(env.AddonSharedSecret, cfg.AddonSharedSecret)
	cfg.AddonName = env.GetString(env.AddonName, cfg.AddonName)
	cfg.LogLevel = env.GetString(env.LogLevel, cfg.LogLevel)

	cfg.IndexerManager = env.GetString(env.IndexerManager, cfg.IndexerManager)
	cfg.IndexerManagerURL = env.GetString(env.IndexerManagerURL, cfg.IndexerManagerURL)
	cfg.IndexerManagerAPIKey = env.GetString(env.IndexerManagerKey, cfg.IndexerManagerAPIKey)
	cfg.IndexerManagerBackoff = env.GetInt(env.IndexerManagerBack, cfg.IndexerManagerBackoff)

	for _, slot := range env.ReadNewznabSlots() {
		if slot.Ordinal < 1 || slot.Ordinal > len(cfg.Newznab) {
			continue
		}
		cfg.Newznab[slot.Ordinal-1] = IndexerConfig{
			Ordinal:  slot.Ordinal,
			Endpoint: slot.Endpoint,
			APIKey:   slot.APIKey,
			APIPath:  slot.APIPath,
			Name:     slot.Name,
			Enabled:  slot.Enabled,
			Paid:     slot.Paid,
		}
	}

	cfg.Ranker.SortMode = env.GetString(env.SortMode, cfg.Ranker.SortMode)
	if langs := env.GetList(env.PreferredLanguage); langs != nil {
		cfg.Ranker.PreferredLanguages = langs
	}
	cfg.Ranker.MaxResultSizeGB = env.GetFloat(env.MaxResultSizeGB, cfg.Ranker.MaxResultSizeGB)
	if res := env.GetList(env.AllowedResolutions); res != nil {
		cfg.Ranker.AllowedResolutions = res
	}
	cfg.Ranker.ResolutionLimitPerQuality = env.GetInt(env.ResolutionLimitPerQual, cfg.Ranker.ResolutionLimitPerQuality)
	cfg.Ranker.DedupEnabled = env.GetBool(env.DedupEnabled, cfg.Ranker.DedupEnabled)
	cfg.Ranker.HideBlockedResults = env.GetBool(env.HideBlockedResults, cfg.Ranker.HideBlockedResults)

	t := &cfg.Triage
	t.Enabled = env.GetBool(env.TriageEnabled, t.Enabled)
	t.TimeBudgetMS = env.GetInt(env.TriageTimeBudgetMS, t.TimeBudgetMS)
	t.MaxCandidates = env.GetInt(env.TriageMaxCandidates, t.MaxCandidates)
	t.DownloadConcurrency = env.GetInt(env.TriageDownloadConc, t.DownloadConcurrency)
	t.MaxConnections = env.GetInt(env.TriageMaxConnections, t.MaxConnections)
	t.StatSampleCount = env.GetInt(env.TriageStatSampleCount, t.StatSampleCount)
	t.ArchiveSampleCount = env.GetInt(env.TriageArchiveSampleCount, t.ArchiveSampleCount)
	t.NNTPHost = env.GetString(env.TriageNNTPHost, t.NNTPHost)
	t.NNTPPort = env.GetInt(env.TriageNNTPPort, t.NNTPPort)
	t.NNTPTLS = env.GetBool(env.TriageNNTPTLS, t.NNTPTLS)
	t.NNTPUser = env.GetString(env.TriageNNTPUser, t.NNTPUser)
	t.NNTPPass = env.GetString(env.TriageNNTPPass, t.NNTPPass)
	t.NNTPKeepAliveMS = env.GetInt(env.TriageNNTPKeepAliveMS, t.NNTPKeepAliveMS)
	t.ReusePool = env.GetBool(env.TriageReusePool, t.ReusePool)
	t.PrefetchFirstVerified = env.GetBool(env.TriagePrefetchFirst, t.PrefetchFirstVerified)
	if v := env.GetList(env.TriagePriorityIndexers); v != nil {
		t.PriorityIndexers = v
	}
	if v := env.GetList(env.TriageSerializedIndexers); v != nil {
		t.SerializedIndexers = v
	}

	c := &cfg.Cache
	c.StreamCacheTTLMinutes = env.GetInt(env.StreamCacheTTLMinutes, c.StreamCacheTTLMinutes)
	c.StreamCacheMaxSizeMB = env.GetInt(env.StreamCacheMaxSizeMB, c.StreamCacheMaxSizeMB)
	c.VerifiedNZBCacheTTLMinutes = env.GetInt(env.VerifiedNZBCacheTTLMinutes, c.VerifiedNZBCacheTTLMinutes)
	c.VerifiedNZBCacheMaxSizeMB = env.GetInt(env.VerifiedNZBCacheMaxSizeMB, c.VerifiedNZBCacheMaxSizeMB)
	c.NZBDavCacheTTLMinutes = env.GetInt(env.NZBDavCacheTTLMinutes, c.NZBDavCacheTTLMinutes)

	m := &cfg.Mount
	m.URL = env.GetString(env.NZBDavURL, m.URL)
	m.APIKey = env.GetString(env.NZBDavAPIKey, m.APIKey)
	m.WebDAVURL = env.GetString(env.NZBDavWebDAVURL, m.WebDAVURL)
	m.WebDAVUser = env.GetString(env.NZBDavWebDAVUser, m.WebDAVUser)
	m.WebDAVPass = env.GetString(env.NZBDavWebDAVPass, m.WebDAVPass)
	m.CategoryMovies = env.GetString(env.NZBDavCategoryMovies, m.CategoryMovies)
	m.CategorySeries = env.GetString(env.NZBDavCategorySeries, m.CategorySeries)

	e := &cfg.Easynews
	e.Enabled = env.GetBool(env.EasynewsEnabled, e.Enabled)
	e.Username = env.GetString(env.EasynewsUsername, e.Username)
	e.Password = env.GetString(env.EasynewsPassword, e.Password)

	cfg.TMDBAPIKey = env.GetString(env.TMDBAPIKey, cfg.TMDBAPIKey)
	cfg.TVDBAPIKey = env.GetString(env.TVDBAPIKey, cfg.TVDBAPIKey)
}

// Save writes the config back to the path it was loaded from.
func (c *Config) Save() error {
	path := c.LoadedPath
	if path == "" {
		path = "config.json"
	}
	return c.SaveFile(path)
}

// SaveFile writes cfg as indented JSON to path.
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadFile reads a config from an arbitrary path, used by tests.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()
	cfg.LoadedPath = path
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// UsableIndexers returns the enabled Newznab slots with endpoint and key set,
// in ordinal order.
func (c *Config) UsableIndexers() []IndexerConfig {
	var out []IndexerConfig
	for _, slot := range c.Newznab {
		if slot.Usable() {
			out = append(out, slot)
		}
	}
	return out
}

// ReloadScope describes which subsystems must be rebuilt after a config change.
type ReloadScope int

const (
	ReloadNone ReloadScope = iota
	ReloadConfigOnly
	ReloadIndexers
	ReloadTriage
	ReloadCaches
	ReloadFull
)

// Diff compares old and new configuration and returns the minimal reload scope
// required, so a config change only rebuilds the subsystems it actually touches.
func Diff(old, updated *Config) ReloadScope {
	if old == nil || updated == nil {
		return ReloadFull
	}
	scope := ReloadNone
	if !reflect.DeepEqual(old.Triage, updated.Triage) {
		scope = maxScope(scope, ReloadTriage)
	}
	if old.IndexerManager != updated.IndexerManager ||
		old.IndexerManagerURL != updated.IndexerManagerURL ||
		old.IndexerManagerAPIKey != updated.IndexerManagerAPIKey ||
		old.Newznab != updated.Newznab ||
		old.Easynews != updated.Easynews {
		scope = maxScope(scope, ReloadIndexers)
	}
	if old.Cache != updated.Cache {
		scope = maxScope(scope, ReloadCaches)
	}
	if scope == ReloadNone {
		scope = ReloadConfigOnly
	}
	return scope
}

func maxScope(a, b ReloadScope) ReloadScope {
	if b > a {
		return b
	}
	return a
}
