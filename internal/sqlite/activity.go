package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rpggio/reelwatch/internal/domain/activity"
	"github.com/rpggio/reelwatch/internal/repository"
)

// ActivityRepository is the watch journal stored in activity_log.
type ActivityRepository struct {
	db *DB
}

func NewActivityRepository(db *DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

const insertJournalEntry = `
	INSERT INTO activity_log (project_id, frame_id, activity_type, summary, details, poll, created_at)
	VALUES (@project, @frame, @type, @summary, @details, @poll, @at)
	RETURNING id`

// Log appends entry and fills in its id. A zero CreatedAt is stamped now.
func (r *ActivityRepository) Log(ctx context.Context, entry *activity.ActivityEntry) error {
	at := entry.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	err := r.db.QueryRowContext(ctx, insertJournalEntry,
		sql.Named("project", entry.ProjectID),
		sql.Named("frame", optional(entry.FrameID)),
		sql.Named("type", string(entry.ActivityType)),
		sql.Named("summary", entry.Summary),
		sql.Named("details", emptyAsNull(entry.Details)),
		sql.Named("poll", entry.Poll),
		sql.Named("at", at),
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	entry.CreatedAt = at
	return nil
}

// Every filter is optional; an unset one matches all rows. A negative
// LIMIT means no limit in SQLite.
const selectJournal = `
	SELECT id, project_id, frame_id, activity_type, summary, details, created_at, poll
	FROM activity_log
	WHERE (@project = '' OR project_id = @project)
	  AND (@frame IS NULL OR frame_id = @frame)
	  AND (@type IS NULL OR activity_type = @type)
	ORDER BY created_at DESC, id DESC
	LIMIT @limit OFFSET @offset`

// List returns journal entries newest first.
func (r *ActivityRepository) List(ctx context.Context, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	var typ any
	if opts.ActivityType != nil {
		typ = string(*opts.ActivityType)
	}

	rows, err := r.db.QueryContext(ctx, selectJournal,
		sql.Named("project", opts.ProjectID),
		sql.Named("frame", optional(opts.FrameID)),
		sql.Named("type", typ),
		sql.Named("limit", limit),
		sql.Named("offset", opts.Offset),
	)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []activity.ActivityEntry
	for rows.Next() {
		entry, err := scanJournalEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return entries, nil
}

func scanJournalEntry(rows *sql.Rows) (activity.ActivityEntry, error) {
	var (
		e       activity.ActivityEntry
		frame   sql.NullString
		details sql.NullString
	)
	if err := rows.Scan(&e.ID, &e.ProjectID, &frame, &e.ActivityType, &e.Summary, &details, &e.CreatedAt, &e.Poll); err != nil {
		return e, fmt.Errorf("scan journal entry: %w", err)
	}
	if frame.Valid {
		e.FrameID = &frame.String
	}
	e.Details = details.String
	return e, nil
}

// optional maps a nil pointer to SQL NULL.
func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func emptyAsNull(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var (
	_ repository.ActivityRepository = (*ActivityRepository)(nil)
	_ activity.Repository           = (*ActivityRepository)(nil)
)
