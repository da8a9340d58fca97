package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rpggio/reelwatch/internal/watch"
)

// Service handles activity log operations.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new activity service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{repo: repo, logger: logger}
}

// LogActivity logs an activity entry with the current timestamp if missing.
func (s *Service) LogActivity(ctx context.Context, entry *ActivityEntry) error {
	if entry == nil || entry.ProjectID == "" || !entry.ActivityType.Valid() {
		return ErrInvalidInput
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := s.repo.Log(ctx, entry); err != nil {
		return fmt.Errorf("logging activity: %w", err)
	}
	return nil
}

// GetRecentActivity lists activity entries with filtering, newest first.
func (s *Service) GetRecentActivity(ctx context.Context, opts ListActivityOptions) ([]ActivityEntry, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, ErrInvalidInput
	}
	if opts.ActivityType != nil && !opts.ActivityType.Valid() {
		return nil, ErrInvalidInput
	}
	if opts.Limit == 0 {
		opts.Limit = DefaultListLimit
	}
	return s.repo.List(ctx, opts)
}

// Publish journals a watcher event. Failures are logged, never returned,
// so a broken journal cannot stall a watch.
func (s *Service) Publish(ctx context.Context, ev watch.Event) {
	entry := &ActivityEntry{
		ProjectID:    ev.ProjectID,
		ActivityType: ActivityType(ev.Type),
		Summary:      ev.Summary,
		CreatedAt:    ev.At,
		Poll:         int64(ev.Poll),
	}
	if ev.FrameID != "" {
		frameID := ev.FrameID
		entry.FrameID = &frameID
	}
	if len(ev.Details) > 0 {
		data, err := json.Marshal(ev.Details)
		if err != nil {
			s.logger.Warn("dropping activity details", "type", ev.Type, "error", err)
		} else {
			entry.Details = string(data)
		}
	}
	if err := s.LogActivity(ctx, entry); err != nil {
		s.logger.Warn("journal write failed", "project_id", ev.ProjectID, "type", ev.Type, "error", err)
	}
}

var _ watch.Sink = (*Service)(nil)
