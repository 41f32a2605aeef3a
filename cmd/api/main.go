package main

import (
	"context"
	"flag"
	"log"

	"github.com/TFMV/avs/cmd/avs"
	"github.com/TFMV/avs/internal/config"
	"github.com/TFMV/avs/internal/logging"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to the configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Run API server
	if err := avs.Serve(context.Background(), cfg, logger); err != nil {
		logger.Sugar().Fatalf("API server error: %v", err)
	}
}
