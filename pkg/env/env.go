// Package env consolidates all environment variable reading for the application.
// Overrides are applied once at startup (see config.Load) and never re-read afterwards.
package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const maxNewznabSlots = 20

// Top-level keys.
const (
	Port               = "PORT"
	AddonBaseURL       = "ADDON_BASE_URL"
	AddonSharedSecret  = "ADDON_SHARED_SECRET"
	AddonName          = "ADDON_NAME"
	LogLevel           = "LOG_LEVEL"
	IndexerManager     = "INDEXER_MANAGER"
	IndexerManagerURL  = "INDEXER_MANAGER_URL"
	IndexerManagerKey  = "INDEXER_MANAGER_API_KEY"
	IndexerManagerBack = "INDEXER_MANAGER_BACKOFF_SECONDS"
)

// Newznab ranking/triage/cache/mount/easynews keys.
const (
	SortMode               = "NZB_SORT_MODE"
	PreferredLanguage      = "NZB_PREFERRED_LANGUAGE"
	MaxResultSizeGB        = "NZB_MAX_RESULT_SIZE_GB"
	AllowedResolutions     = "NZB_ALLOWED_RESOLUTIONS"
	ResolutionLimitPerQual = "NZB_RESOLUTION_LIMIT_PER_QUALITY"
	DedupEnabled           = "NZB_DEDUP_ENABLED"
	HideBlockedResults     = "NZB_HIDE_BLOCKED_RESULTS"

	TriageEnabled            = "NZB_TRIAGE_ENABLED"
	TriageTimeBudgetMS       = "NZB_TRIAGE_TIME_BUDGET_MS"
	TriageMaxCandidates      = "NZB_TRIAGE_MAX_CANDIDATES"
	TriageDownloadConc       = "NZB_TRIAGE_DOWNLOAD_CONCURRENCY"
	TriageMaxConnections     = "NZB_TRIAGE_MAX_CONNECTIONS"
	TriageStatSampleCount    = "NZB_TRIAGE_STAT_SAMPLE_COUNT"
	TriageArchiveSampleCount = "NZB_TRIAGE_ARCHIVE_SAMPLE_COUNT"
	TriageNNTPHost           = "NZB_TRIAGE_NNTP_HOST"
	TriageNNTPPort           = "NZB_TRIAGE_NNTP_PORT"
	TriageNNTPTLS            = "NZB_TRIAGE_NNTP_TLS"
	TriageNNTPUser           = "NZB_TRIAGE_NNTP_USER"
	TriageNNTPPass           = "NZB_TRIAGE_NNTP_PASS"
	TriageNNTPKeepAliveMS    = "NZB_TRIAGE_NNTP_KEEP_ALIVE_MS"
	TriageReusePool          = "NZB_TRIAGE_REUSE_POOL"
	TriagePrefetchFirst      = "NZB_TRIAGE_PREFETCH_FIRST_VERIFIED"
	TriagePriorityIndexers   = "NZB_TRIAGE_PRIORITY_INDEXERS"
	TriageSerializedIndexers = "NZB_TRIAGE_SERIALIZED_INDEXERS"

	StreamCacheTTLMinutes       = "STREAM_CACHE_TTL_MINUTES"
	StreamCacheMaxSizeMB        = "STREAM_CACHE_MAX_SIZE_MB"
	VerifiedNZBCacheTTLMinutes  = "VERIFIED_NZB_CACHE_TTL_MINUTES"
	VerifiedNZBCacheMaxSizeMB   = "VERIFIED_NZB_CACHE_MAX_SIZE_MB"
	NZBDavCacheTTLMinutes       = "NZBDAV_CACHE_TTL_MINUTES"

	NZBDavURL            = "NZBDAV_URL"
	NZBDavAPIKey         = "NZBDAV_API_KEY"
	NZBDavWebDAVURL      = "NZBDAV_WEBDAV_URL"
	NZBDavWebDAVUser     = "NZBDAV_WEBDAV_USER"
	NZBDavWebDAVPass     = "NZBDAV_WEBDAV_PASS"
	NZBDavCategoryMovies = "NZBDAV_CATEGORY_MOVIES"
	NZBDavCategorySeries = "NZBDAV_CATEGORY_SERIES"

	EasynewsEnabled  = "EASYNEWS_ENABLED"
	EasynewsUsername = "EASYNEWS_USERNAME"
	EasynewsPassword = "EASYNEWS_PASSWORD"

	TMDBAPIKey = "TMDB_API_KEY"
	TVDBAPIKey = "TVDB_API_KEY"
)

// NewznabSlot mirrors one `NEWZNAB_*_{n}` family read from the environment.
type NewznabSlot struct {
	Ordinal int
	Endpoint string
	APIKey   string
	APIPath  string
	Name     string
	Enabled  bool
	Paid     bool
}

func newznabSlotKeys(i int) (endpoint, apiKey, apiPath, name, enabled, paid string) {
	return fmt.Sprintf("NEWZNAB_ENDPOINT_%d", i),
		fmt.Sprintf("NEWZNAB_API_KEY_%d", i),
		fmt.Sprintf("NEWZNAB_API_PATH_%d", i),
		fmt.Sprintf("NEWZNAB_NAME_%d", i),
		fmt.Sprintf("NEWZNAB_INDEXER_ENABLED_%d", i),
		fmt.Sprintf("NEWZNAB_PAID_%d", i)
}

// ReadNewznabSlots reads the 20 numbered NEWZNAB_* slots present in the environment.
// A slot with no endpoint set is omitted; ordinality is preserved for stable dedupe keys.
func ReadNewznabSlots() []NewznabSlot {
	var slots []NewznabSlot
	for i := 1; i <= maxNewznabSlots; i++ {
		endpointKey, apiKeyKey, apiPathKey, nameKey, enabledKey, paidKey := newznabSlotKeys(i)
		endpoint := os.Getenv(endpointKey)
		if endpoint == "" {
			continue
		}
		slots = append(slots, NewznabSlot{
			Ordinal:  i,
			Endpoint: endpoint,
			APIKey:   os.Getenv(apiKeyKey),
			APIPath:  getEnv(apiPathKey, "/api"),
			Name:     getEnv(nameKey, fmt.Sprintf("Newznab %d", i)),
			Enabled:  getEnvBool(enabledKey, true),
			Paid:     getEnvBool(paidKey, false),
		})
	}
	return slots
}

// IndexerQueryHeader is the User-Agent sent on search requests, empty to omit.
func IndexerQueryHeader() string { return os.Getenv("INDEXER_QUERY_USER_AGENT") }

// IndexerGrabHeader is the User-Agent sent on NZB download requests, empty to omit.
func IndexerGrabHeader() string { return os.Getenv("INDEXER_GRAB_USER_AGENT") }

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func GetString(key, defaultVal string) string { return getEnv(key, defaultVal) }

func GetInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func GetFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func GetBool(key string, defaultVal bool) bool { return getEnvBool(key, defaultVal) }

func GetList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.ToLower(v) == "true" || v == "1"
	}
	return defaultVal
}
