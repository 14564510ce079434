package main

import (
	"log"

	"github.com/verdantlabs/plantdoc/internal/config"
	"github.com/verdantlabs/plantdoc/internal/db"
	"github.com/verdantlabs/plantdoc/internal/logging"
	"github.com/verdantlabs/plantdoc/internal/store"
	"github.com/verdantlabs/plantdoc/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return
	}
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	detectionStore := store.NewDetectionStore(database)
	server := web.NewServer(detectionStore, logger)

	if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
		logger.Error("server error", "error", err)
	}
}
