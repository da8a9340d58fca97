package project

import "strings"

// Status is the lifecycle state of a project as reported by the studio.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusGenerating Status = "generating"
	StatusClipsReady Status = "clips_ready"
	StatusCombining  Status = "combining"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Active reports whether the status means the studio is still working.
// Unknown statuses are never active.
func (s Status) Active() bool {
	return s == StatusGenerating || s == StatusCombining
}

// FrameStatus is the generation state of a single frame.
type FrameStatus string

const (
	FramePending    FrameStatus = "pending"
	FrameGenerating FrameStatus = "generating"
	FrameCompleted  FrameStatus = "completed"
	FrameFailed     FrameStatus = "failed"
)

// Valid reports whether s is one of the known frame statuses.
func (s FrameStatus) Valid() bool {
	switch s {
	case FramePending, FrameGenerating, FrameCompleted, FrameFailed:
		return true
	}
	return false
}

// FinalPathPrefix marks the aggregate output among a project's assets.
const FinalPathPrefix = "final/"

// Project is the studio's view of a video project.
type Project struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Status   Status  `json:"status"`
	Frames   []Frame `json:"frames"`
	Assets   []Asset `json:"assets"`
	VideoURL string  `json:"video_url,omitempty"`
}

// Frame is one independently generated clip of a project.
type Frame struct {
	ID               string      `json:"id"`
	FrameNum         int         `json:"frame_num"`
	Status           FrameStatus `json:"status"`
	DurationSeconds  float64     `json:"duration_seconds"`
	SceneDescription string      `json:"scene_description,omitempty"`
	ErrorMessage     string      `json:"error_message,omitempty"`
	AssetID          string      `json:"asset_id,omitempty"`
}

// Eligible reports whether a generate command would pick this frame up.
func (f Frame) Eligible() bool {
	return f.Status == FramePending || f.Status == FrameFailed
}

// Asset is a stored file produced for a project.
type Asset struct {
	ID       string `json:"id"`
	FilePath string `json:"file_path"`
	FileURL  string `json:"file_url,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// IsFinal reports whether the asset is the combined output.
func (a Asset) IsFinal() bool {
	return IsFinalPath(a.FilePath)
}

// IsFinalPath reports whether path is namespaced as a final output.
func IsFinalPath(path string) bool {
	return strings.HasPrefix(path, FinalPathPrefix)
}

// Frame returns the frame with the given id.
func (p *Project) Frame(id string) (Frame, bool) {
	for _, f := range p.Frames {
		if f.ID == id {
			return f, true
		}
	}
	return Frame{}, false
}

// Asset returns the asset with the given id.
func (p *Project) Asset(id string) (Asset, bool) {
	for _, a := range p.Assets {
		if a.ID == id {
			return a, true
		}
	}
	return Asset{}, false
}

// FinalAsset returns the project's final asset, if any.
func (p *Project) FinalAsset() (Asset, bool) {
	for _, a := range p.Assets {
		if a.IsFinal() {
			return a, true
		}
	}
	return Asset{}, false
}

// Counts tallies frames by status.
type Counts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Generating int `json:"generating"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// CountFrames tallies the given frames.
func CountFrames(frames []Frame) Counts {
	c := Counts{Total: len(frames)}
	for _, f := range frames {
		switch f.Status {
		case FramePending:
			c.Pending++
		case FrameGenerating:
			c.Generating++
		case FrameCompleted:
			c.Completed++
		case FrameFailed:
			c.Failed++
		}
	}
	return c
}

// Eligible is the number of frames a generate-all would start.
func (c Counts) Eligible() int {
	return c.Pending + c.Failed
}

// FullyGenerated is true only for a non-empty project whose frames all completed.
func (c Counts) FullyGenerated() bool {
	return c.Total > 0 && c.Completed == c.Total
}

// Percent is the rounded share of completed frames, 0 for an empty project.
func (c Counts) Percent() int {
	if c.Total == 0 {
		return 0
	}
	return (c.Completed*200 + c.Total) / (c.Total * 2)
}
