package initialization

import (
	"fmt"
	"os"

	"streamnzb/pkg/cachetier"
	"streamnzb/pkg/config"
	"streamnzb/pkg/indexer"
	"streamnzb/pkg/indexer/easynews"
	"streamnzb/pkg/indexer/newznab"
	"streamnzb/pkg/indexer/nzbhydra"
	"streamnzb/pkg/indexer/prowlarr"
	"streamnzb/pkg/logger"
	"streamnzb/pkg/metadata/tmdb"
	"streamnzb/pkg/metadata/tvdb"
	"streamnzb/pkg/mount"
	"streamnzb/pkg/nntp"
	"streamnzb/pkg/paths"
	"streamnzb/pkg/persistence"
	"streamnzb/pkg/triage"
)

const (
	easynewsDownloadAPILimit = 10000
	easynewsDownloadLimit    = 10000
)

// InitializedComponents holds every dependency the addon server is wired
// from, assembled once at startup.
type InitializedComponents struct {
	Config       *config.Config
	Indexer      indexer.Indexer
	EasynewsIdx  indexer.Indexer
	TMDBClient   *tmdb.Client
	TVDBClient   *tvdb.Client
	Tiers        *cachetier.Tiers
	TriageRunner *triage.Runner
	MountClient  *mount.Client
}

// WaitForInputAndExit prints an error and waits for user input before exiting.
func WaitForInputAndExit(err error) {
	fmt.Printf("\nCRITICAL ERROR: %v\n", err)
	fmt.Println("\nPress Enter to exit...")
	var input string
	fmt.Scanln(&input)
	os.Exit(1)
}

// Bootstrap coordinates application startup: config load, indexer discovery,
// metadata/cache/mount/triage wiring.
func Bootstrap() (*InitializedComponents, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	dataDir := paths.GetDataDir()
	stateManager, err := persistence.GetManager(dataDir)
	if err != nil {
		return nil, fmt.Errorf("state manager init failed: %w", err)
	}
	usageManager, err := indexer.GetUsageManager(stateManager)
	if err != nil {
		return nil, fmt.Errorf("usage manager init failed: %w", err)
	}

	idx, err := buildIndexer(cfg, usageManager)
	if err != nil {
		return nil, err
	}

	var easynewsIdx indexer.Indexer
	if cfg.Easynews.Enabled {
		easynewsIdx, err = easynews.NewClient(
			cfg.Easynews.Username,
			cfg.Easynews.Password,
			"Easynews",
			cfg.AddonBaseURL,
			easynewsDownloadAPILimit,
			easynewsDownloadLimit,
			usageManager,
		)
		if err != nil {
			logger.Error("failed to initialize Easynews client", "err", err)
			easynewsIdx = nil
		}
	}

	var tmdbClient *tmdb.Client
	if cfg.TMDBAPIKey != "" {
		tmdbClient = tmdb.NewClient(cfg.TMDBAPIKey)
	}
	var tvdbClient *tvdb.Client
	if cfg.TVDBAPIKey != "" {
		tvdbClient = tvdb.NewClient(cfg.TVDBAPIKey, dataDir)
	}

	tiers := cachetier.New(cfg.Cache)

	var triageRunner *triage.Runner
	if cfg.Triage.Enabled {
		if cfg.Triage.NNTPHost == "" {
			logger.Warn("triage is enabled but no NNTP host is configured; triage will be skipped")
		} else {
			pool := nntp.NewClientPool(
				cfg.Triage.NNTPHost,
				cfg.Triage.NNTPPort,
				cfg.Triage.NNTPTLS,
				cfg.Triage.NNTPUser,
				cfg.Triage.NNTPPass,
				cfg.Triage.MaxConnections,
			)
			if err := pool.Validate(); err != nil {
				logger.Error("triage NNTP pool failed validation", "host", cfg.Triage.NNTPHost, "err", err)
			} else {
				triageRunner = triage.NewRunner(pool, cfg.Triage)
			}
		}
	}

	mountClient := mount.NewClient(cfg.Mount)

	return &InitializedComponents{
		Config:       cfg,
		Indexer:      idx,
		EasynewsIdx:  easynewsIdx,
		TMDBClient:   tmdbClient,
		TVDBClient:   tvdbClient,
		Tiers:        tiers,
		TriageRunner: triageRunner,
		MountClient:  mountClient,
	}, nil
}

// buildIndexer assembles the Aggregator from whichever combination of direct
// Newznab slots and indexer-manager (Prowlarr/NZBHydra) the config selects.
func buildIndexer(cfg *config.Config, um *indexer.UsageManager) (indexer.Indexer, error) {
	var indexers []indexer.Indexer

	for _, slot := range cfg.UsableIndexers() {
		indexers = append(indexers, newznab.NewClient(slot, um))
	}

	switch cfg.IndexerManager {
	case "prowlarr":
		discovered, _, err := prowlarr.GetConfiguredIndexers(cfg.IndexerManagerURL, cfg.IndexerManagerAPIKey, um)
		if err != nil {
			logger.Error("failed to discover Prowlarr indexers", "err", err)
		} else if len(discovered) == 0 {
			logger.Warn("connected to Prowlarr but found no active Usenet indexers")
		} else {
			indexers = append(indexers, discovered...)
			logger.Info("initialized Prowlarr indexers", "count", len(discovered))
		}
	case "nzbhydra":
		hydra, err := nzbhydra.NewClient(cfg.IndexerManagerURL, cfg.IndexerManagerAPIKey, "NZBHydra", um)
		if err != nil {
			logger.Error("failed to initialize NZBHydra client", "err", err)
		} else {
			indexers = append(indexers, hydra)
		}
	}

	if len(indexers) == 0 {
		return nil, fmt.Errorf("no indexers configured")
	}

	return indexer.NewAggregator(indexers...), nil
}
