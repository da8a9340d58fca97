package project

import (
	"fmt"
	"strings"
)

// Progress is the optional summary the studio computes alongside a project.
type Progress struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Generating int `json:"generating"`
	Failed     int `json:"failed"`
	Percent    int `json:"percent"`
}

// Snapshot is one authoritative read of a project.
type Snapshot struct {
	Project       Project   `json:"project"`
	Progress      *Progress `json:"progress,omitempty"`
	FinalVideoURL string    `json:"final_video_url,omitempty"`
}

// Validate rejects snapshots whose shape the tracker cannot fold safely.
func (s Snapshot) Validate() error {
	p := s.Project
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: missing project id", ErrMalformedSnapshot)
	}

	ids := make(map[string]struct{}, len(p.Frames))
	nums := make(map[int]struct{}, len(p.Frames))
	for i, f := range p.Frames {
		if strings.TrimSpace(f.ID) == "" {
			return fmt.Errorf("%w: frame %d has no id", ErrMalformedSnapshot, i)
		}
		if f.FrameNum < 1 {
			return fmt.Errorf("%w: frame %s has frame_num %d", ErrMalformedSnapshot, f.ID, f.FrameNum)
		}
		if !f.Status.Valid() {
			return fmt.Errorf("%w: frame %s has unknown status %q", ErrMalformedSnapshot, f.ID, f.Status)
		}
		if _, dup := ids[f.ID]; dup {
			return fmt.Errorf("%w: duplicate frame id %s", ErrMalformedSnapshot, f.ID)
		}
		if _, dup := nums[f.FrameNum]; dup {
			return fmt.Errorf("%w: duplicate frame_num %d", ErrMalformedSnapshot, f.FrameNum)
		}
		ids[f.ID] = struct{}{}
		nums[f.FrameNum] = struct{}{}
	}

	finals := 0
	for _, a := range p.Assets {
		if a.IsFinal() {
			finals++
		}
	}
	if finals > 1 {
		return fmt.Errorf("%w: %d final assets", ErrMalformedSnapshot, finals)
	}
	return nil
}
