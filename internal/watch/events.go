package watch

import (
	"context"
	"time"
)

// EventType names a watcher event.
type EventType string

const (
	EventWatchStarted    EventType = "watch_started"
	EventWatchStopped    EventType = "watch_stopped"
	EventSnapshotChanged EventType = "snapshot_changed"
	EventActivityChanged EventType = "activity_changed"
	EventCommandIssued   EventType = "command_issued"
	EventCommandSettled  EventType = "command_settled"
	EventCommandRejected EventType = "command_rejected"
	EventPollFailed      EventType = "poll_failed"
	EventFinalReady      EventType = "final_ready"
)

// Event is something a controller observed or did.
type Event struct {
	Type      EventType      `json:"type"`
	ProjectID string         `json:"project_id"`
	FrameID   string         `json:"frame_id,omitempty"`
	Summary   string         `json:"summary"`
	Details   map[string]any `json:"details,omitempty"`
	Poll      int            `json:"poll"`
	At        time.Time      `json:"at"`
}

// Sink receives events after the controller has released its lock.
// Implementations must not call back into the controller synchronously.
type Sink interface {
	Publish(ctx context.Context, ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event)

func (f SinkFunc) Publish(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// FinalLedger remembers which final assets have already been announced.
type FinalLedger interface {
	// MarkFinal records the pair and reports whether it was new.
	MarkFinal(ctx context.Context, projectID, assetID, videoURL string) (bool, error)
}

// FinalFunc is called once per final-ready transition.
type FinalFunc func(projectID, videoURL string)
