package mcp

import (
	"github.com/rpggio/reelwatch/internal/domain/activity"
	"github.com/rpggio/reelwatch/internal/watch"
)

type ProjectParams struct {
	ProjectID string `json:"project_id" jsonschema:"Studio project ID (UUID)"`
}

type ProjectStatusParams struct {
	ProjectID string `json:"project_id" jsonschema:"Studio project ID (UUID)"`
	Refresh   bool   `json:"refresh,omitempty" jsonschema:"Fetch a fresh snapshot before answering"`
}

type GenerateFrameParams struct {
	ProjectID string `json:"project_id" jsonschema:"Studio project ID (UUID)"`
	FrameID   string `json:"frame_id" jsonschema:"Frame ID (UUID) to generate"`
}

type ListWatchesParams struct{}

type RecentActivityParams struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"Only entries for this project"`
	FrameID   string `json:"frame_id,omitempty" jsonschema:"Only entries for this frame"`
	Type      string `json:"type,omitempty" jsonschema:"Only entries of this activity type"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum number of entries (default 50)"`
	Offset    int    `json:"offset,omitempty" jsonschema:"Offset for pagination"`
}

type WatchResult struct {
	ProjectID string       `json:"project_id"`
	Created   bool         `json:"created"`
	Status    watch.Status `json:"status"`
}

type UnwatchResult struct {
	ProjectID string `json:"project_id"`
	Stopped   bool   `json:"stopped"`
}

type ListWatchesResult struct {
	Watches []watch.Status `json:"watches"`
}

type ProjectStatusResult struct {
	watch.Status
	RefreshError   string                    `json:"refresh_error,omitempty"`
	AnnouncedFinal *activity.FinalTransition `json:"announced_final,omitempty"`
}

type CommandResult struct {
	ProjectID string `json:"project_id"`
	// Noop is set when the studio had nothing to do for the command.
	Noop    bool         `json:"noop,omitempty"`
	Message string       `json:"message,omitempty"`
	Result  any          `json:"result,omitempty"`
	Status  watch.Status `json:"status"`
}

type RecentActivityResult struct {
	Entries []activity.ActivityEntry `json:"entries"`
}
