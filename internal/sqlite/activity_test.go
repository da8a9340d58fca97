package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/rpggio/reelwatch/internal/domain/activity"
	"github.com/stretchr/testify/require"
)

func TestActivityRepository_LogList(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	repo := NewActivityRepository(db)
	entry1 := &activity.ActivityEntry{
		ProjectID:    "p1",
		ActivityType: activity.TypeWatchStarted,
		Summary:      "watch started",
		CreatedAt:    base,
	}
	entry2 := &activity.ActivityEntry{
		ProjectID:    "p1",
		ActivityType: activity.TypeSnapshotChanged,
		Summary:      "generating, 1/3 frames completed",
		Details:      `{"status":"generating"}`,
		CreatedAt:    base.Add(time.Second),
		Poll:         2,
	}

	require.NoError(t, repo.Log(ctx, entry1))
	require.NoError(t, repo.Log(ctx, entry2))
	require.NotZero(t, entry1.ID)

	entries, err := repo.List(ctx, activity.ListActivityOptions{ProjectID: "p1"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, entry2.ActivityType, entries[0].ActivityType)
	require.Equal(t, entry2.Details, entries[0].Details)
	require.Equal(t, int64(2), entries[0].Poll)
	require.Equal(t, entry1.ActivityType, entries[1].ActivityType)
	require.Empty(t, entries[1].Details)
	require.Nil(t, entries[1].FrameID)
}

func TestActivityRepository_Filters(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	repo := NewActivityRepository(db)
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	frameID := "f1"
	require.NoError(t, repo.Log(ctx, &activity.ActivityEntry{
		ProjectID:    "p1",
		FrameID:      &frameID,
		ActivityType: activity.TypeCommandIssued,
		Summary:      "generate_frame(f1) issued",
		CreatedAt:    base,
	}))
	require.NoError(t, repo.Log(ctx, &activity.ActivityEntry{
		ProjectID:    "p1",
		ActivityType: activity.TypePollFailed,
		Summary:      "poll failed",
		CreatedAt:    base.Add(time.Second),
	}))
	require.NoError(t, repo.Log(ctx, &activity.ActivityEntry{
		ProjectID:    "p2",
		ActivityType: activity.TypePollFailed,
		Summary:      "poll failed",
		CreatedAt:    base.Add(2 * time.Second),
	}))

	entries, err := repo.List(ctx, activity.ListActivityOptions{ProjectID: "p1", FrameID: &frameID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "f1", *entries[0].FrameID)

	pollFailed := activity.TypePollFailed
	entries, err = repo.List(ctx, activity.ListActivityOptions{ActivityType: &pollFailed})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "p2", entries[0].ProjectID)

	entries, err = repo.List(ctx, activity.ListActivityOptions{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, activity.TypePollFailed, entries[0].ActivityType)
	require.Equal(t, "p1", entries[0].ProjectID)

	entries, err = repo.List(ctx, activity.ListActivityOptions{Offset: 2})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, activity.TypeCommandIssued, entries[0].ActivityType)
}
