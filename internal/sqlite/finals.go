package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rpggio/reelwatch/internal/domain/activity"
	"github.com/rpggio/reelwatch/internal/repository"
)

// FinalRepository implements repository.FinalRepository for SQLite. It
// also serves as the watcher's final ledger.
type FinalRepository struct {
	db *DB
}

// NewFinalRepository creates a new FinalRepository
func NewFinalRepository(db *DB) *FinalRepository {
	return &FinalRepository{db: db}
}

// MarkFinal records the pair and reports whether it was not recorded before.
func (r *FinalRepository) MarkFinal(ctx context.Context, projectID, assetID, videoURL string) (bool, error) {
	if projectID == "" || assetID == "" {
		return false, repository.ErrInvalidInput
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO final_transitions (project_id, asset_id, video_url, recorded_at) VALUES (?, ?, ?, ?)`,
		projectID, assetID, videoURL, time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to record final transition: %w", err)
	}
	return true, nil
}

// Get returns the most recent final recorded for a project
func (r *FinalRepository) Get(ctx context.Context, projectID string) (*activity.FinalTransition, error) {
	var ft activity.FinalTransition
	err := r.db.QueryRowContext(ctx, `
		SELECT project_id, asset_id, video_url, recorded_at
		FROM final_transitions
		WHERE project_id = ?
		ORDER BY recorded_at DESC
		LIMIT 1
	`, projectID).Scan(&ft.ProjectID, &ft.AssetID, &ft.VideoURL, &ft.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get final transition: %w", err)
	}
	return &ft, nil
}

// List returns every recorded final, newest first
func (r *FinalRepository) List(ctx context.Context) ([]activity.FinalTransition, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT project_id, asset_id, video_url, recorded_at
		FROM final_transitions
		ORDER BY recorded_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list final transitions: %w", err)
	}
	defer rows.Close()

	var out []activity.FinalTransition
	for rows.Next() {
		var ft activity.FinalTransition
		if err := rows.Scan(&ft.ProjectID, &ft.AssetID, &ft.VideoURL, &ft.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan final transition: %w", err)
		}
		out = append(out, ft)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating final transition rows: %w", err)
	}
	return out, nil
}

var _ repository.FinalRepository = (*FinalRepository)(nil)
