package repository

import (
	"context"

	"github.com/rpggio/reelwatch/internal/domain/activity"
)

// ActivityRepository manages activity log persistence
type ActivityRepository interface {
	Log(ctx context.Context, entry *activity.ActivityEntry) error
	List(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}

// FinalRepository remembers announced final videos
type FinalRepository interface {
	MarkFinal(ctx context.Context, projectID, assetID, videoURL string) (bool, error)
	Get(ctx context.Context, projectID string) (*activity.FinalTransition, error)
	List(ctx context.Context) ([]activity.FinalTransition, error)
}
