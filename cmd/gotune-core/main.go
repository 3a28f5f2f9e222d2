// Package main is the production entry point for gotune-core, the
// headless playback engine backend.
//
// Build:
//
//	go build -o build/gotune-core ./cmd/gotune-core
//
// Run:
//
//	./build/gotune-core
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tejashwikalptaru/gotune-core/internal/app"
	"github.com/tejashwikalptaru/gotune-core/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml (defaults to the OS config dir)")
	flag.Parse()

	path := *configPath
	if path == "" {
		resolved, err := config.Path()
		if err != nil {
			log.Fatalf("resolve config path: %v", err)
		}
		path = resolved
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		log.Fatalf("failed to create application: %v", err)
	}

	defer application.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("gotune-core running", slog.String("config", path))
	<-ctx.Done()
	slog.Info("received shutdown signal")
}
