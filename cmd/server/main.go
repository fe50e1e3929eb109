package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/obsplan/obsplan/internal/engine"
	"github.com/obsplan/obsplan/internal/seed"
	"github.com/obsplan/obsplan/pkg/config"
	"github.com/obsplan/obsplan/pkg/logger"
)

var version = "dev"

func main() {
	seedFlag := flag.Bool("seed", false, "apply seed data after connecting, then continue serving")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewWithOptions("obsplan", version, logger.Options{
		JSONFormat: cfg.Log.JSONFormat,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := engine.NewEngine(cfg, log)
	if err := eng.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer eng.Close()

	if *seedFlag {
		if err := seed.Run(ctx, eng.DB(), log); err != nil {
			log.Fatalf("Failed to seed: %v", err)
		}
	}

	srv := engine.NewServer(eng)
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Infof("Shutdown complete")
}
