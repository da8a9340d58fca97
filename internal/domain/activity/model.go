package activity

import "time"

// ActivityType represents the type of activity event
type ActivityType string

const (
	TypeWatchStarted    ActivityType = "watch_started"
	TypeWatchStopped    ActivityType = "watch_stopped"
	TypeSnapshotChanged ActivityType = "snapshot_changed"
	TypeActivityChanged ActivityType = "activity_changed"
	TypeCommandIssued   ActivityType = "command_issued"
	TypeCommandSettled  ActivityType = "command_settled"
	TypeCommandRejected ActivityType = "command_rejected"
	TypePollFailed      ActivityType = "poll_failed"
	TypeFinalReady      ActivityType = "final_ready"
)

// Valid reports whether t is a known activity type.
func (t ActivityType) Valid() bool {
	switch t {
	case TypeWatchStarted, TypeWatchStopped, TypeSnapshotChanged, TypeActivityChanged,
		TypeCommandIssued, TypeCommandSettled, TypeCommandRejected, TypePollFailed, TypeFinalReady:
		return true
	}
	return false
}

// ActivityEntry represents an event in the activity log
type ActivityEntry struct {
	ID           int64        `json:"id"`
	ProjectID    string       `json:"project_id"`
	FrameID      *string      `json:"frame_id,omitempty"`
	ActivityType ActivityType `json:"type"`
	Summary      string       `json:"summary"`
	Details      string       `json:"details,omitempty"` // JSON string
	CreatedAt    time.Time    `json:"created_at"`
	Poll         int64        `json:"poll"`
}

// FinalTransition is a final video that has already been announced.
type FinalTransition struct {
	ProjectID  string    `json:"project_id"`
	AssetID    string    `json:"asset_id"`
	VideoURL   string    `json:"video_url"`
	RecordedAt time.Time `json:"recorded_at"`
}
