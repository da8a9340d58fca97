package project_test

import (
	"testing"

	"github.com/rpggio/reelwatch/internal/domain/project"
	"github.com/stretchr/testify/require"
)

func TestCounts_FullyGenerated(t *testing.T) {
	require.False(t, project.CountFrames(nil).FullyGenerated(), "empty project is never fully generated")

	frames := []project.Frame{
		{ID: "a", FrameNum: 1, Status: project.FrameCompleted},
		{ID: "b", FrameNum: 2, Status: project.FrameCompleted},
	}
	require.True(t, project.CountFrames(frames).FullyGenerated())

	frames = append(frames, project.Frame{ID: "c", FrameNum: 3, Status: project.FrameFailed})
	c := project.CountFrames(frames)
	require.False(t, c.FullyGenerated())
	require.Equal(t, 1, c.Failed)
	require.Equal(t, 1, c.Eligible())
	require.Equal(t, 67, c.Percent())
}

func TestCounts_Percent(t *testing.T) {
	require.Equal(t, 0, project.Counts{}.Percent())
	require.Equal(t, 50, project.Counts{Total: 2, Completed: 1}.Percent())
	require.Equal(t, 33, project.Counts{Total: 3, Completed: 1}.Percent())
	require.Equal(t, 100, project.Counts{Total: 4, Completed: 4}.Percent())
}

func TestStatus_Active(t *testing.T) {
	require.True(t, project.StatusGenerating.Active())
	require.True(t, project.StatusCombining.Active())
	for _, s := range []project.Status{project.StatusQueued, project.StatusClipsReady, project.StatusCompleted, project.StatusFailed, "archived"} {
		require.False(t, s.Active(), s)
	}
}

func TestFinalAsset(t *testing.T) {
	p := project.Project{Assets: []project.Asset{
		{ID: "clip", FilePath: "clips/p/1.mp4"},
		{ID: "fin", FilePath: "final/videos/p/final.mp4", FileURL: "https://cdn/final.mp4"},
	}}
	a, ok := p.FinalAsset()
	require.True(t, ok)
	require.Equal(t, "fin", a.ID)

	p.Assets = p.Assets[:1]
	_, ok = p.FinalAsset()
	require.False(t, ok)
	require.False(t, project.IsFinalPath("clips/final/x.mp4"))
}

func TestSnapshot_Validate(t *testing.T) {
	valid := project.Snapshot{Project: project.Project{
		ID: "p1",
		Frames: []project.Frame{
			{ID: "f1", FrameNum: 1, Status: project.FramePending},
			{ID: "f2", FrameNum: 2, Status: project.FrameCompleted},
		},
	}}
	require.NoError(t, valid.Validate())

	cases := map[string]func(s *project.Snapshot){
		"missing project id": func(s *project.Snapshot) { s.Project.ID = "" },
		"frame without id":   func(s *project.Snapshot) { s.Project.Frames[0].ID = "" },
		"zero frame_num":     func(s *project.Snapshot) { s.Project.Frames[0].FrameNum = 0 },
		"unknown status":     func(s *project.Snapshot) { s.Project.Frames[0].Status = "rendering" },
		"duplicate id":       func(s *project.Snapshot) { s.Project.Frames[1].ID = "f1" },
		"duplicate num":      func(s *project.Snapshot) { s.Project.Frames[1].FrameNum = 1 },
		"two finals": func(s *project.Snapshot) {
			s.Project.Assets = []project.Asset{{ID: "a", FilePath: "final/a.mp4"}, {ID: "b", FilePath: "final/b.mp4"}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			snap := valid
			snap.Project.Frames = append([]project.Frame(nil), valid.Project.Frames...)
			mutate(&snap)
			require.ErrorIs(t, snap.Validate(), project.ErrMalformedSnapshot)
		})
	}
}
