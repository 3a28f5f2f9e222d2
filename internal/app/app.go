// Package app provides application-level orchestration and dependency injection.
// This package wires together all components and manages the application lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tejashwikalptaru/gotune-core/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/gotune-core/internal/audio"
	"github.com/tejashwikalptaru/gotune-core/internal/config"
	"github.com/tejashwikalptaru/gotune-core/internal/logger"
	"github.com/tejashwikalptaru/gotune-core/internal/persist"
	"github.com/tejashwikalptaru/gotune-core/internal/playback"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
	"github.com/tejashwikalptaru/gotune-core/internal/provider"
	"github.com/tejashwikalptaru/gotune-core/internal/provider/bilibili"
	"github.com/tejashwikalptaru/gotune-core/internal/provider/navidrome"
	"github.com/tejashwikalptaru/gotune-core/internal/store"
)

// defaultBackendKey is the blacklist key the single audio.Backend is
// registered under; only one backend implementation exists so there is
// exactly one key to ever blacklist.
const defaultBackendKey = "oto"

// Application is the root application structure that holds all dependencies.
// It follows the Dependency Injection pattern with constructor-based injection.
type Application struct {
	logger *slog.Logger
	cfg    *config.Config

	db *persist.BadgerDB

	eventBus     ports.EventBus
	store        *store.Store
	backend      *audio.Backend
	orchestrator *playback.Orchestrator

	permissions *provider.Permissions
	registry    *provider.Registry
	router      *provider.Router

	sink ports.MediaSessionSink
}

// NewApplication creates a new application with all dependencies wired,
// following the teacher's step-numbered construction sequence.
func NewApplication(cfg *config.Config) (*Application, error) {
	a := &Application{cfg: cfg}

	// Step 1: logger
	level, err := parseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	a.logger = logger.NewLogger(logger.Config{Level: level, Format: cfg.Log.Format})
	a.logger.Info("initializing gotune-core", slog.String("data_dir", cfg.Storage.DataDir))

	// Step 2: event bus
	bus := eventbus.NewSyncEventBus()
	bus.SetLogger(a.logger.With(slog.String("component", "eventbus")))
	a.eventBus = bus

	// Step 3: persistence
	db, err := persist.OpenBadgerDB(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.db = db

	// Step 4: player store
	a.store = store.New(a.logger.With(slog.String("component", "store")), db.KV(), a.eventBus)

	// Step 5: audio backend
	otoCtx, ready, err := audio.NewOtoContext()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize audio output: %w", err)
	}
	<-ready
	a.backend = audio.NewBackend(otoCtx)

	// Step 6: optional OS media-session sink
	if cfg.MPRIS.Enabled {
		sink, err := newMediaSink(a.logger.With(slog.String("component", "mpris")), cfg.MPRIS)
		if err != nil {
			a.logger.Warn("mpris sink unavailable, continuing without it", slog.Any("error", err))
		} else {
			a.sink = sink
		}
	}

	// Step 7: provider router + registry
	a.permissions = provider.NewPermissions(ports.CapSearch, ports.CapStreaming, ports.CapPlaylists, ports.CapNetwork)
	a.registry = provider.NewRegistry(a.logger.With(slog.String("component", "registry")), db.Plugins(), a.permissions, cfg.Plugins.Root)
	a.router = provider.NewRouter(a.logger.With(slog.String("component", "router")))
	a.router.SetToucher(a.registry)

	if cfg.Providers.Navidrome.Enabled {
		if err := a.registerNavidrome(cfg.Providers.Navidrome); err != nil {
			a.logger.Warn("navidrome provider unavailable", slog.Any("error", err))
		}
	}

	if cfg.Providers.Bilibili.Enabled {
		if err := a.registerBilibili(); err != nil {
			a.logger.Warn("bilibili provider unavailable", slog.Any("error", err))
		}
	}

	// Step 8: orchestrator
	a.orchestrator = playback.New(a.logger.With(slog.String("component", "orchestrator")), a.store, a.eventBus, a.sink, a.router)
	a.orchestrator.Register(defaultBackendKey, a.backend)
	a.orchestrator.Sanitize()

	a.logger.Info("gotune-core initialized")
	return a, nil
}

func (a *Application) registerNavidrome(cfg config.NavidromeConfig) error {
	p := navidrome.New(navidrome.Config{
		ServerURL: cfg.ServerURL,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	ctx := context.Background()
	if err := a.registry.RegisterBuiltin(ctx, p); err != nil {
		return fmt.Errorf("register navidrome: %w", err)
	}
	a.router.Register(p)
	return nil
}

func (a *Application) registerBilibili() error {
	p := bilibili.New()
	ctx := context.Background()
	if err := a.registry.RegisterBuiltin(ctx, p); err != nil {
		return fmt.Errorf("register bilibili: %w", err)
	}
	a.router.Register(p)
	return nil
}

// Orchestrator exposes the Playback Orchestrator to callers that drive
// playback (a future UI surface, a control-plane transport).
func (a *Application) Orchestrator() *playback.Orchestrator { return a.orchestrator }

// Store exposes the player store for read-only queries (now-playing, queue).
func (a *Application) Store() *store.Store { return a.store }

// Registry exposes the plugin registry for enable/disable/health-check calls.
func (a *Application) Registry() *provider.Registry { return a.registry }

// Router exposes the provider router for direct search calls.
func (a *Application) Router() *provider.Router { return a.router }

// Shutdown gracefully releases every owned resource in reverse acquisition
// order.
func (a *Application) Shutdown() {
	a.logger.Info("shutting down gotune-core")

	if err := a.orchestrator.Stop(context.Background()); err != nil {
		a.logger.Warn("failed to stop orchestrator", slog.Any("error", err))
	}

	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.logger.Warn("failed to close mpris sink", slog.Any("error", err))
		}
	}

	if err := a.backend.Close(); err != nil {
		a.logger.Warn("failed to close audio backend", slog.Any("error", err))
	}

	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close storage", slog.Any("error", err))
	}

	a.logger.Info("shutdown complete")
}

func parseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug", "DEBUG":
		return slog.LevelDebug, nil
	case "", "info", "INFO":
		return slog.LevelInfo, nil
	case "warn", "WARN", "warning", "WARNING":
		return slog.LevelWarn, nil
	case "error", "ERROR":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}
