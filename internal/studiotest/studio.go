// Package studiotest is an in-memory studio service for tests and local
// development. It mirrors the production backend's endpoint semantics.
package studiotest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rpggio/reelwatch/internal/domain/project"
)

// Route names accepted by FailNext and Requests.
const (
	RouteFetch         = "fetch"
	RouteGenerate      = "generate"
	RouteGenerateFrame = "generate-frame"
	RouteCombine       = "combine"
)

type failure struct {
	status int
	detail string
}

// Studio holds fake projects and serves the studio HTTP API.
type Studio struct {
	mu        sync.Mutex
	projects  map[string]*project.Project
	combining map[string]bool
	failures  map[string][]failure
	requests  map[string]int
	assetBase string
	router    chi.Router

	// reportCombining sets the project status to combining while a
	// combine runs. The production backend leaves the status untouched.
	reportCombining bool
}

// NewStudio creates an empty fake studio. Asset URLs are rooted at assetBase.
func NewStudio(assetBase string) *Studio {
	s := &Studio{
		projects:  make(map[string]*project.Project),
		combining: make(map[string]bool),
		failures:  make(map[string][]failure),
		requests:  make(map[string]int),
		assetBase: assetBase,
	}

	r := chi.NewRouter()
	r.Get("/projects/{projectID}", s.handleGet)
	r.Post("/projects/{projectID}/generate", s.handleGenerate)
	r.Post("/projects/{projectID}/generate-frame", s.handleGenerateFrame)
	r.Post("/projects/{projectID}/combine", s.handleCombine)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.router = r
	return s
}

func (s *Studio) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// AddProject seeds a queued project with n pending frames and returns its id.
func (s *Studio) AddProject(name string, frames int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	proj := &project.Project{
		ID:     uuid.NewString(),
		Name:   name,
		Status: project.StatusQueued,
		Frames: make([]project.Frame, 0, frames),
		Assets: []project.Asset{},
	}
	for i := 1; i <= frames; i++ {
		proj.Frames = append(proj.Frames, project.Frame{
			ID:               uuid.NewString(),
			FrameNum:         i,
			Status:           project.FramePending,
			DurationSeconds:  8,
			SceneDescription: fmt.Sprintf("scene %d", i),
		})
	}
	s.projects[proj.ID] = proj
	return proj.ID
}

// Project returns a copy of the stored project.
func (s *Studio) Project(id string) (project.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	proj, ok := s.projects[id]
	if !ok {
		return project.Project{}, false
	}
	return cloneProject(proj), true
}

// FrameID returns the id of the frame with the given 1-based number.
func (s *Studio) FrameID(projectID string, frameNum int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f := s.frameLocked(projectID, frameNum); f != nil {
		return f.ID
	}
	return ""
}

// SetProjectStatus overwrites the project status.
func (s *Studio) SetProjectStatus(projectID string, status project.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if proj, ok := s.projects[projectID]; ok {
		proj.Status = status
	}
}

// SetFrameStatus moves one frame. Completing a frame attaches a clip asset.
func (s *Studio) SetFrameStatus(projectID string, frameNum int, status project.FrameStatus, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setFrameLocked(projectID, frameNum, status, errMsg)
}

// CompleteGenerating finishes every generating frame and settles the
// project status the way the backend does after a batch.
func (s *Studio) CompleteGenerating(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	proj, ok := s.projects[projectID]
	if !ok {
		return
	}
	for _, f := range proj.Frames {
		if f.Status == project.FrameGenerating {
			s.setFrameLocked(projectID, f.FrameNum, project.FrameCompleted, "")
		}
	}
	settleStatus(proj)
}

// SettleStatus recomputes the project status from its frames.
func (s *Studio) SettleStatus(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if proj, ok := s.projects[projectID]; ok {
		settleStatus(proj)
	}
}

// FinishCombine attaches the final asset and returns its URL.
func (s *Studio) FinishCombine(projectID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	proj, ok := s.projects[projectID]
	if !ok {
		return ""
	}
	delete(s.combining, projectID)
	if final, ok := proj.FinalAsset(); ok {
		return final.FileURL
	}
	path := fmt.Sprintf("final/videos/%s/final.mp4", projectID)
	asset := project.Asset{
		ID:       uuid.NewString(),
		FilePath: path,
		FileURL:  s.assetBase + "/" + path,
		FileSize: 48 << 20,
	}
	proj.Assets = append(proj.Assets, asset)
	proj.Status = project.StatusCompleted
	proj.VideoURL = asset.FileURL
	return asset.FileURL
}

// ReportCombining controls whether a started combine shows up as the
// combining project status.
func (s *Studio) ReportCombining(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reportCombining = v
}

// AbortCombine gives up a started combine without writing a status, like
// the backend's early returns when a clip cannot be found.
func (s *Studio) AbortCombine(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.combining, projectID)
	if proj, ok := s.projects[projectID]; ok && proj.Status == project.StatusCombining {
		settleStatus(proj)
	}
}

// RemoveFinal drops the final asset, as if it were deleted upstream.
func (s *Studio) RemoveFinal(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	proj, ok := s.projects[projectID]
	if !ok {
		return
	}
	kept := proj.Assets[:0]
	for _, a := range proj.Assets {
		if !a.IsFinal() {
			kept = append(kept, a)
		}
	}
	proj.Assets = kept
	proj.VideoURL = ""
	settleStatus(proj)
}

// Combining reports whether a combine was started and not yet finished.
func (s *Studio) Combining(projectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.combining[projectID]
}

// FailNext makes the next request on route answer with status and detail.
func (s *Studio) FailNext(route string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], failure{status: status, detail: detail})
}

// Requests returns how many requests reached route.
func (s *Studio) Requests(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[route]
}

// Advance moves every project one step: generating frames complete and
// started combines finish. It backs the auto-advance loop of the dev server.
func (s *Studio) Advance() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.projects))
	for id := range s.projects {
		ids = append(ids, id)
	}
	combining := make(map[string]bool, len(s.combining))
	for id, v := range s.combining {
		combining[id] = v
	}
	s.mu.Unlock()

	sort.Strings(ids)
	for _, id := range ids {
		if combining[id] {
			s.FinishCombine(id)
			continue
		}
		s.CompleteGenerating(id)
	}
}

func (s *Studio) handleGet(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	proj, ok := s.beginLocked(w, r, RouteFetch)
	if !ok {
		return
	}

	counts := project.CountFrames(proj.Frames)
	finalURL := proj.VideoURL
	if finalURL == "" {
		if final, ok := proj.FinalAsset(); ok {
			finalURL = final.FileURL
		}
	}
	var finalField any
	if finalURL != "" {
		finalField = finalURL
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"project": cloneProject(proj),
		"progress": project.Progress{
			Total:      counts.Total,
			Completed:  counts.Completed,
			Generating: counts.Generating,
			Failed:     counts.Failed,
			Percent:    counts.Percent(),
		},
		"final_video_url": finalField,
	})
}

func (s *Studio) handleGenerate(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	proj, ok := s.beginLocked(w, r, RouteGenerate)
	if !ok {
		return
	}

	pending := 0
	for i := range proj.Frames {
		if proj.Frames[i].Eligible() {
			proj.Frames[i].Status = project.FrameGenerating
			proj.Frames[i].ErrorMessage = ""
			pending++
		}
	}
	if pending == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"message":       "No pending/failed frames to generate.",
			"pending_count": 0,
		})
		return
	}
	proj.Status = project.StatusGenerating
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       fmt.Sprintf("Generation started for %d frame(s).", pending),
		"pending_count": pending,
	})
}

func (s *Studio) handleGenerateFrame(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FrameID string `json:"frame_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	proj, ok := s.beginLocked(w, r, RouteGenerateFrame)
	if !ok {
		return
	}
	if _, err := uuid.Parse(body.FrameID); err != nil {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Invalid frame_id: '%s' is not a valid UUID", body.FrameID))
		return
	}

	for i := range proj.Frames {
		f := &proj.Frames[i]
		if f.ID != body.FrameID {
			continue
		}
		if !f.Eligible() {
			writeJSON(w, http.StatusOK, map[string]any{
				"success":  true,
				"accepted": false,
				"message":  fmt.Sprintf("Frame already in state '%s', skipping.", f.Status),
			})
			return
		}
		f.Status = project.FrameGenerating
		f.ErrorMessage = ""
		if proj.Status != project.StatusCombining {
			proj.Status = project.StatusGenerating
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"accepted": true,
			"message":  fmt.Sprintf("Frame %d generation started.", f.FrameNum),
		})
		return
	}
	writeDetail(w, http.StatusNotFound, "Frame not found in this project")
}

func (s *Studio) handleCombine(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	proj, ok := s.beginLocked(w, r, RouteCombine)
	if !ok {
		return
	}

	if final, ok := proj.FinalAsset(); ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":          true,
			"message":          "Final video already exists.",
			"video_url":        final.FileURL,
			"already_combined": true,
		})
		return
	}

	completed := project.CountFrames(proj.Frames).Completed
	if completed == 0 {
		writeDetail(w, http.StatusBadRequest, "No completed clips to combine.")
		return
	}
	s.combining[proj.ID] = true
	if s.reportCombining {
		proj.Status = project.StatusCombining
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     fmt.Sprintf("Combining %d clips. Check back shortly.", completed),
		"clips_count": completed,
	})
}

// beginLocked counts the request, applies injected failures and resolves the project.
func (s *Studio) beginLocked(w http.ResponseWriter, r *http.Request, route string) (*project.Project, bool) {
	s.requests[route]++
	if queued := s.failures[route]; len(queued) > 0 {
		s.failures[route] = queued[1:]
		writeDetail(w, queued[0].status, queued[0].detail)
		return nil, false
	}

	id := chi.URLParam(r, "projectID")
	if _, err := uuid.Parse(id); err != nil {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Invalid project_id: '%s' is not a valid UUID", id))
		return nil, false
	}
	proj, ok := s.projects[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Project not found")
		return nil, false
	}
	return proj, true
}

func (s *Studio) frameLocked(projectID string, frameNum int) *project.Frame {
	proj, ok := s.projects[projectID]
	if !ok {
		return nil
	}
	for i := range proj.Frames {
		if proj.Frames[i].FrameNum == frameNum {
			return &proj.Frames[i]
		}
	}
	return nil
}

func (s *Studio) setFrameLocked(projectID string, frameNum int, status project.FrameStatus, errMsg string) {
	f := s.frameLocked(projectID, frameNum)
	if f == nil {
		return
	}
	f.Status = status
	f.ErrorMessage = errMsg
	if status != project.FrameCompleted || f.AssetID != "" {
		return
	}
	path := fmt.Sprintf("clips/%s/%d.mp4", projectID, frameNum)
	asset := project.Asset{
		ID:       uuid.NewString(),
		FilePath: path,
		FileURL:  s.assetBase + "/" + path,
		FileSize: 4 << 20,
	}
	proj := s.projects[projectID]
	proj.Assets = append(proj.Assets, asset)
	f.AssetID = asset.ID
}

// settleStatus mirrors the backend's end-of-batch status rules.
func settleStatus(proj *project.Project) {
	if _, ok := proj.FinalAsset(); ok {
		proj.Status = project.StatusCompleted
		return
	}
	c := project.CountFrames(proj.Frames)
	switch {
	case c.Total == 0:
		proj.Status = project.StatusQueued
	case c.Generating > 0:
		proj.Status = project.StatusGenerating
	case c.Completed == c.Total:
		proj.Status = project.StatusClipsReady
	case c.Completed > 0:
		proj.Status = project.StatusGenerating
	case c.Pending == c.Total:
		proj.Status = project.StatusQueued
	default:
		proj.Status = project.StatusFailed
	}
}

func cloneProject(p *project.Project) project.Project {
	out := *p
	out.Frames = append([]project.Frame{}, p.Frames...)
	out.Assets = append([]project.Asset{}, p.Assets...)
	return out
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
