package mcp

import (
	"context"
	"io"
	"log/slog"

	"github.com/rpggio/reelwatch/internal/domain/activity"
	"github.com/rpggio/reelwatch/internal/watch"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Watches defines the watch registry operations needed by MCP.
type Watches interface {
	Watch(ctx context.Context, projectID string) (*watch.Controller, bool, error)
	Unwatch(projectID string) error
	Get(projectID string) (*watch.Controller, error)
	List() []watch.Status
}

// ActivityService defines activity operations needed by MCP.
type ActivityService interface {
	GetRecentActivity(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}

// FinalLookup reads previously announced final videos.
type FinalLookup interface {
	Get(ctx context.Context, projectID string) (*activity.FinalTransition, error)
}

// Config contains server configuration.
type Config struct {
	Watches  Watches
	Activity ActivityService
	// Finals is optional; without it project_status omits announced_final.
	Finals  FinalLookup
	Logger  *slog.Logger
	Version string
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Version == "" {
		cfg.Version = "0.1.0"
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "reelwatch",
		Version: cfg.Version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, &toolset{
		watches:  cfg.Watches,
		activity: cfg.Activity,
		finals:   cfg.Finals,
		logger:   cfg.Logger,
	})

	return server
}
