// Package studio is the HTTP client for the remote video studio service.
package studio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/reelwatch/internal/domain/project"
)

const maxErrorBody = 64 << 10

// Options configures a Client.
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the studio's project endpoints. It never retries.
type Client struct {
	base      *url.URL
	token     string
	userAgent string
	http      *http.Client
	logger    *slog.Logger
}

// GenerateAllResponse is the studio's answer to a generate-all command.
type GenerateAllResponse struct {
	PendingCount int    `json:"pending_count"`
	Message      string `json:"message,omitempty"`
}

// GenerateFrameResponse is the studio's answer to a generate-frame command.
type GenerateFrameResponse struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message,omitempty"`
}

// CombineResponse is the studio's answer to a combine command.
type CombineResponse struct {
	VideoURL        string `json:"video_url,omitempty"`
	AlreadyCombined bool   `json:"already_combined,omitempty"`
	ClipsCount      int    `json:"clips_count,omitempty"`
	Message         string `json:"message,omitempty"`
}

// NewClient creates a studio client.
func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse studio base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("studio base url must be http(s): %q", opts.BaseURL)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "reelwatch"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		base:      base,
		token:     opts.Token,
		userAgent: userAgent,
		http:      httpClient,
		logger:    logger,
	}, nil
}

// Fetch reads the current snapshot of a project.
func (c *Client) Fetch(ctx context.Context, projectID string) (project.Snapshot, error) {
	const op = "fetch project"
	if err := validateID("project", projectID); err != nil {
		return project.Snapshot{}, err
	}

	var payload struct {
		Project       *project.Project  `json:"project"`
		Progress      *project.Progress `json:"progress"`
		FinalVideoURL *string           `json:"final_video_url"`
	}
	if err := c.do(ctx, op, http.MethodGet, projectPath(projectID), nil, &payload); err != nil {
		if errors.Is(err, ErrMalformedResponse) {
			return project.Snapshot{}, fmt.Errorf("%w: %w", project.ErrMalformedSnapshot, err)
		}
		return project.Snapshot{}, err
	}
	if payload.Project == nil {
		return project.Snapshot{}, fmt.Errorf("%s: %w: response has no project", op, project.ErrMalformedSnapshot)
	}

	snap := project.Snapshot{Project: *payload.Project, Progress: payload.Progress}
	if payload.FinalVideoURL != nil {
		snap.FinalVideoURL = *payload.FinalVideoURL
	}
	if err := snap.Validate(); err != nil {
		return project.Snapshot{}, fmt.Errorf("%s: %w", op, err)
	}
	if snap.Project.ID != projectID {
		return project.Snapshot{}, fmt.Errorf("%s: %w: asked for %s, got %s", op, project.ErrMalformedSnapshot, projectID, snap.Project.ID)
	}
	return snap, nil
}

// GenerateAll asks the studio to generate every pending or failed frame.
func (c *Client) GenerateAll(ctx context.Context, projectID string) (GenerateAllResponse, error) {
	const op = "generate all"
	if err := validateID("project", projectID); err != nil {
		return GenerateAllResponse{}, err
	}
	var resp GenerateAllResponse
	if err := c.do(ctx, op, http.MethodPost, projectPath(projectID)+"/generate", nil, &resp); err != nil {
		return GenerateAllResponse{}, err
	}
	return resp, nil
}

// GenerateFrame asks the studio to generate one frame.
func (c *Client) GenerateFrame(ctx context.Context, projectID, frameID string) (GenerateFrameResponse, error) {
	const op = "generate frame"
	if err := validateID("project", projectID); err != nil {
		return GenerateFrameResponse{}, err
	}
	if err := validateID("frame", frameID); err != nil {
		return GenerateFrameResponse{}, err
	}

	body := map[string]string{"frame_id": frameID}
	var payload struct {
		Accepted *bool  `json:"accepted"`
		Message  string `json:"message"`
	}
	if err := c.do(ctx, op, http.MethodPost, projectPath(projectID)+"/generate-frame", body, &payload); err != nil {
		return GenerateFrameResponse{}, err
	}

	resp := GenerateFrameResponse{Message: payload.Message}
	if payload.Accepted != nil {
		resp.Accepted = *payload.Accepted
	} else {
		// Older studios only say "skipping" in the message.
		resp.Accepted = !strings.Contains(strings.ToLower(payload.Message), "skipping")
	}
	return resp, nil
}

// Combine asks the studio to merge all completed clips into the final video.
func (c *Client) Combine(ctx context.Context, projectID string) (CombineResponse, error) {
	const op = "combine"
	if err := validateID("project", projectID); err != nil {
		return CombineResponse{}, err
	}
	var resp CombineResponse
	if err := c.do(ctx, op, http.MethodPost, projectPath(projectID)+"/combine", nil, &resp); err != nil {
		return CombineResponse{}, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("studio request failed", "op", op, "method", method, "path", path, "error", err)
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	c.logger.Debug("studio request", "op", op, "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ServerError{Op: op, Status: resp.StatusCode, Detail: errorDetail(data)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrMalformedResponse, err)
	}
	return nil
}

// errorDetail extracts FastAPI-style {"detail": ...} bodies, falling back to raw text.
func errorDetail(data []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return s
		}
		return string(payload.Detail)
	}
	return strings.TrimSpace(string(data))
}

func projectPath(projectID string) string {
	return "/projects/" + url.PathEscape(projectID)
}

func validateID(label, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s %q is not a uuid", ErrInvalidID, label, id)
	}
	return nil
}
