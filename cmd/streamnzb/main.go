package main

import (
	"fmt"
	"net/http"
	"os"

	"streamnzb/pkg/initialization"
	"streamnzb/pkg/logger"
	"streamnzb/pkg/stremio"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}
	logger.Init(logLevel)
	defer logger.Close()

	logger.Info("starting StreamNZB", "version", "v0.1.0")

	comp, err := initialization.Bootstrap()
	if err != nil {
		initialization.WaitForInputAndExit(err)
	}
	cfg := comp.Config

	if err := stremio.CheckPort(cfg.Port); err != nil {
		initialization.WaitForInputAndExit(err)
	}

	server := stremio.NewServer(
		cfg,
		comp.Indexer,
		comp.EasynewsIdx,
		comp.TMDBClient,
		comp.TVDBClient,
		comp.Tiers,
		comp.TriageRunner,
		comp.MountClient,
	)

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("stremio manifest URL", "url", fmt.Sprintf("%s/%s/manifest.json", cfg.AddonBaseURL, cfg.AddonSharedSecret))

	if err := http.ListenAndServe(addr, mux); err != nil {
		initialization.WaitForInputAndExit(fmt.Errorf("server failed: %w", err))
	}
}
