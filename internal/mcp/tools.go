package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/rpggio/reelwatch/internal/dispatch"
	"github.com/rpggio/reelwatch/internal/domain/activity"
	"github.com/rpggio/reelwatch/internal/repository"
	"github.com/rpggio/reelwatch/internal/watch"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

type toolset struct {
	watches  Watches
	activity ActivityService
	finals   FinalLookup
	logger   *slog.Logger
}

func registerTools(server *sdkmcp.Server, t *toolset) {
	// Watches
	addTool(server, t.logger, "watch_project",
		"Start watching a studio project. Idempotent; returns the current status.",
		t.watchProject)
	addTool(server, t.logger, "unwatch_project",
		"Stop watching a project and drop its in-memory state",
		t.unwatchProject)
	addTool(server, t.logger, "list_watches",
		"List every watched project with its polling state",
		t.listWatches)
	addTool(server, t.logger, "project_status",
		"Get the derived view of a project: frame counts, progress, in-flight command, recent errors and final video. Watches the project if needed.",
		t.projectStatus)

	// Commands
	addTool(server, t.logger, "generate_all",
		"Ask the studio to generate every pending or failed frame",
		t.generateAll)
	addTool(server, t.logger, "generate_frame",
		"Ask the studio to (re)generate one frame",
		t.generateFrame)
	addTool(server, t.logger, "combine_project",
		"Combine all completed frames into the final video. Returns the known final without a request when one exists.",
		t.combineProject)

	// Journal
	addTool(server, t.logger, "recent_activity",
		"List journaled watch events, newest first",
		t.recentActivity)
}

// addTool registers fn with an inferred input schema. Results are returned
// as JSON text; errors become tool errors carrying an APIError.
func addTool[In any](server *sdkmcp.Server, logger *slog.Logger, name, description string, fn func(context.Context, In) (any, error)) {
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: name, Description: description},
		func(ctx context.Context, _ *sdkmcp.CallToolRequest, in In) (*sdkmcp.CallToolResult, any, error) {
			out, err := fn(ctx, in)
			if err != nil {
				apiErr := MapError(err)
				logger.Debug("tool error", "tool", name, "code", apiErr.Code, "error", err)
				return nil, nil, apiErr
			}
			data, err := json.Marshal(out)
			if err != nil {
				return nil, nil, err
			}
			return &sdkmcp.CallToolResult{
				Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
			}, nil, nil
		})
}

func (t *toolset) watchProject(ctx context.Context, in ProjectParams) (any, error) {
	c, created, err := t.watches.Watch(ctx, strings.TrimSpace(in.ProjectID))
	if err != nil {
		return nil, err
	}
	return WatchResult{ProjectID: c.ProjectID(), Created: created, Status: c.Status()}, nil
}

func (t *toolset) unwatchProject(_ context.Context, in ProjectParams) (any, error) {
	id := strings.TrimSpace(in.ProjectID)
	if err := t.watches.Unwatch(id); err != nil {
		return nil, err
	}
	return UnwatchResult{ProjectID: id, Stopped: true}, nil
}

func (t *toolset) listWatches(context.Context, ListWatchesParams) (any, error) {
	watches := t.watches.List()
	if watches == nil {
		watches = []watch.Status{}
	}
	return ListWatchesResult{Watches: watches}, nil
}

func (t *toolset) projectStatus(ctx context.Context, in ProjectStatusParams) (any, error) {
	id := strings.TrimSpace(in.ProjectID)
	c, created, err := t.watches.Watch(ctx, id)
	if err != nil {
		return nil, err
	}

	var out ProjectStatusResult
	if in.Refresh && !created {
		if err := c.Refresh(ctx); err != nil {
			if errors.Is(err, watch.ErrStopped) {
				return nil, err
			}
			out.RefreshError = MapError(err).Error()
		}
	}
	out.Status = c.Status()

	if t.finals != nil {
		final, err := t.finals.Get(ctx, id)
		switch {
		case err == nil:
			out.AnnouncedFinal = final
		case errors.Is(err, repository.ErrNotFound):
		default:
			t.logger.Warn("final lookup failed", "project_id", id, "error", err)
		}
	}
	return out, nil
}

func (t *toolset) generateAll(ctx context.Context, in ProjectParams) (any, error) {
	c, err := t.controller(ctx, in.ProjectID)
	if err != nil {
		return nil, err
	}
	res, err := c.GenerateAll(ctx)
	return commandResult(c, res, res.Message, err)
}

func (t *toolset) generateFrame(ctx context.Context, in GenerateFrameParams) (any, error) {
	c, err := t.controller(ctx, in.ProjectID)
	if err != nil {
		return nil, err
	}
	res, err := c.GenerateFrame(ctx, strings.TrimSpace(in.FrameID))
	return commandResult(c, res, res.Message, err)
}

func (t *toolset) combineProject(ctx context.Context, in ProjectParams) (any, error) {
	c, err := t.controller(ctx, in.ProjectID)
	if err != nil {
		return nil, err
	}
	res, err := c.Combine(ctx)
	return commandResult(c, res, res.Message, err)
}

func (t *toolset) recentActivity(ctx context.Context, in RecentActivityParams) (any, error) {
	opts := activity.ListActivityOptions{
		ProjectID: strings.TrimSpace(in.ProjectID),
		Limit:     in.Limit,
		Offset:    in.Offset,
	}
	if in.FrameID != "" {
		frameID := in.FrameID
		opts.FrameID = &frameID
	}
	if in.Type != "" {
		typ := activity.ActivityType(in.Type)
		opts.ActivityType = &typ
	}
	entries, err := t.activity.GetRecentActivity(ctx, opts)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []activity.ActivityEntry{}
	}
	return RecentActivityResult{Entries: entries}, nil
}

// controller returns the watch for a project, starting one if needed so
// commands work without an explicit watch_project.
func (t *toolset) controller(ctx context.Context, projectID string) (*watch.Controller, error) {
	c, _, err := t.watches.Watch(ctx, strings.TrimSpace(projectID))
	return c, err
}

func commandResult(c *watch.Controller, res any, message string, err error) (any, error) {
	var noop *dispatch.NoopError
	switch {
	case errors.As(err, &noop):
		return CommandResult{ProjectID: c.ProjectID(), Noop: true, Message: noop.Error(), Status: c.Status()}, nil
	case err != nil:
		return nil, err
	}
	return CommandResult{ProjectID: c.ProjectID(), Message: message, Result: res, Status: c.Status()}, nil
}
