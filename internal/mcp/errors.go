package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rpggio/reelwatch/internal/dispatch"
	"github.com/rpggio/reelwatch/internal/domain/activity"
	"github.com/rpggio/reelwatch/internal/domain/project"
	"github.com/rpggio/reelwatch/internal/studio"
	"github.com/rpggio/reelwatch/internal/watch"
)

// APIError represents an MCP tool error. It renders as JSON so agents can
// read the code and hint from the tool result text.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(data)
}

// MapError maps domain errors to MCP error codes.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	var serverErr *studio.ServerError
	var netErr *studio.NetworkError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, project.ErrFrameNotFound):
		return &APIError{Code: "FRAME_NOT_FOUND", Message: err.Error(), RecoveryHint: "List frames with project_status"}
	case errors.Is(err, dispatch.ErrPrecondition):
		return &APIError{Code: "PRECONDITION_FAILED", Message: err.Error(), RecoveryHint: "Check project_status and wait for in-flight work to settle"}
	case errors.Is(err, watch.ErrNotWatched):
		return &APIError{Code: "NOT_WATCHED", Message: "project not watched", RecoveryHint: "Call watch_project first"}
	case errors.Is(err, watch.ErrStopped):
		return &APIError{Code: "WATCH_STOPPED", Message: "watch was stopped", RecoveryHint: "Call watch_project again"}
	case errors.Is(err, studio.ErrInvalidID):
		return &APIError{Code: "INVALID_ID", Message: err.Error(), RecoveryHint: "Project and frame IDs are UUIDs"}
	case errors.Is(err, project.ErrMalformedSnapshot), errors.Is(err, studio.ErrMalformedResponse):
		return &APIError{Code: "MALFORMED_SNAPSHOT", Message: err.Error(), RecoveryHint: "Polling is halted; call project_status with refresh=true once the studio is fixed"}
	case errors.As(err, &serverErr):
		code := "STUDIO_ERROR"
		if serverErr.Status == http.StatusNotFound {
			code = "PROJECT_NOT_FOUND"
		}
		return &APIError{Code: code, Message: serverErr.Detail, Details: map[string]any{"status": serverErr.Status}, RecoveryHint: "Check the project ID and studio logs"}
	case errors.As(err, &netErr):
		return &APIError{Code: "STUDIO_UNREACHABLE", Message: err.Error(), RecoveryHint: "Retry; polling continues on its own"}
	case errors.Is(err, activity.ErrInvalidInput):
		return &APIError{Code: "INVALID_INPUT", Message: err.Error(), RecoveryHint: "Check filter values"}
	default:
		return &APIError{Code: "INTERNAL", Message: err.Error()}
	}
}
