package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/reelwatch/internal/clock"
	"github.com/rpggio/reelwatch/internal/config"
	"github.com/rpggio/reelwatch/internal/domain/activity"
	"github.com/rpggio/reelwatch/internal/mcp"
	"github.com/rpggio/reelwatch/internal/sqlite"
	"github.com/rpggio/reelwatch/internal/studio"
	"github.com/rpggio/reelwatch/internal/transport"
	"github.com/rpggio/reelwatch/internal/watch"
)

const version = "0.1.0"

// app holds the wired services shared by both transport modes.
type app struct {
	db       *sqlite.DB
	registry *watch.Registry
	hub      *transport.Hub
	mcp      *sdkmcp.Server
	logger   *slog.Logger
}

func newApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	if err := ensureDBDir(cfg.DB.Path); err != nil {
		return nil, fmt.Errorf("prepare database path: %w", err)
	}
	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	policy, err := cfg.Policy()
	if err != nil {
		db.Close()
		return nil, err
	}
	client, err := studio.NewClient(studio.Options{
		BaseURL:   cfg.Studio.BaseURL,
		Token:     cfg.Studio.Token,
		Timeout:   cfg.Studio.Timeout,
		UserAgent: "reelwatch/" + version,
		Logger:    logger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	activitySvc := activity.NewService(sqlite.NewActivityRepository(db), logger)
	finalRepo := sqlite.NewFinalRepository(db)
	hub := transport.NewHub(logger)

	registryCfg := watch.RegistryConfig{
		Client:       client,
		Policy:       policy,
		NewScheduler: func() clock.Scheduler { return clock.NewTimerScheduler() },
		Sinks:        []watch.Sink{activitySvc, hub},
		OnFinal: func(projectID, videoURL string) {
			logger.Info("final video ready", "project_id", projectID, "video_url", videoURL)
		},
		Logger: logger,
	}
	mcpCfg := mcp.Config{
		Activity: activitySvc,
		Logger:   logger,
		Version:  version,
	}
	if cfg.Navigation.RememberFinal {
		registryCfg.Ledger = finalRepo
		mcpCfg.Finals = finalRepo
	}
	registry := watch.NewRegistry(registryCfg)
	mcpCfg.Watches = registry

	return &app{
		db:       db,
		registry: registry,
		hub:      hub,
		mcp:      mcp.NewServer(mcpCfg),
		logger:   logger,
	}, nil
}

// httpHandler serves MCP over streamable HTTP plus the per-project event socket.
func (a *app) httpHandler(cfg config.Config) http.Handler {
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(r *http.Request) *sdkmcp.Server { return a.mcp },
		&sdkmcp.StreamableHTTPOptions{
			Stateless:      false,
			SessionTimeout: 30 * time.Minute,
		},
	)

	events := a.hub.ServeEvents(func(projectID string) (any, error) {
		c, err := a.registry.Get(projectID)
		if err != nil {
			return nil, err
		}
		return c.Status(), nil
	})

	routerCfg := transport.RouterConfig{
		MCP:    mcpHandler,
		Events: events,
		Logger: a.logger,
	}
	if cfg.Auth.Enabled {
		routerCfg.Auth = transport.AuthMiddleware(transport.NewStaticTokens(cfg.Auth.Tokens))
	}
	return transport.NewRouter(routerCfg)
}

// Close stops every watch before the journal goes away.
func (a *app) Close() {
	a.registry.StopAll()
	a.hub.Close()
	if err := a.db.Close(); err != nil {
		a.logger.Warn("closing database", "error", err)
	}
}
