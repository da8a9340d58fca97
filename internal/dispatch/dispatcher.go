// Package dispatch issues the three mutating studio commands behind their
// local guard conditions.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/rpggio/reelwatch/internal/domain/project"
	"github.com/rpggio/reelwatch/internal/studio"
	"github.com/rpggio/reelwatch/internal/surface"
	"github.com/rpggio/reelwatch/internal/tracker"
	"golang.org/x/sync/singleflight"
)

// State is the tracker as seen by the dispatcher. Implementations
// serialize calls onto the tracker's single writer.
type State interface {
	View() tracker.View
	Issue(cmd tracker.Command)
	Settle(cmd tracker.Command, res tracker.Result)
}

// Commander sends commands to the studio.
type Commander interface {
	GenerateAll(ctx context.Context, projectID string) (studio.GenerateAllResponse, error)
	GenerateFrame(ctx context.Context, projectID, frameID string) (studio.GenerateFrameResponse, error)
	Combine(ctx context.Context, projectID string) (studio.CombineResponse, error)
}

// RefreshFunc asks for a fresh snapshot after a command lands.
type RefreshFunc func(ctx context.Context) error

// Config wires a Dispatcher.
type Config struct {
	ProjectID string
	State     State
	Client    Commander
	Surface   *surface.Surface
	Refresh   RefreshFunc
	Logger    *slog.Logger
}

// GenerateAllResult reports a started batch.
type GenerateAllResult struct {
	PendingCount int    `json:"pending_count"`
	Message      string `json:"message,omitempty"`
}

// GenerateFrameResult reports a started frame.
type GenerateFrameResult struct {
	FrameID string `json:"frame_id"`
	Message string `json:"message,omitempty"`
}

// CombineResult reports the combine stage. Coalesced is set when the call
// rode on a combine that was already outstanding.
type CombineResult struct {
	VideoURL        string `json:"video_url,omitempty"`
	AlreadyCombined bool   `json:"already_combined"`
	Coalesced       bool   `json:"coalesced"`
	Message         string `json:"message,omitempty"`
}

// Dispatcher guards and sends commands for one project.
type Dispatcher struct {
	projectID string
	state     State
	client    Commander
	surface   *surface.Surface
	refresh   RefreshFunc
	logger    *slog.Logger

	// mu makes check-and-issue atomic; network calls run outside it.
	mu        sync.Mutex
	combining bool
	group     singleflight.Group
	// joined runs after a caller attaches to an outstanding combine.
	joined func()
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	sf := cfg.Surface
	if sf == nil {
		sf = surface.New(Classify)
	}
	refresh := cfg.Refresh
	if refresh == nil {
		refresh = func(context.Context) error { return nil }
	}
	return &Dispatcher{
		projectID: cfg.ProjectID,
		state:     cfg.State,
		client:    cfg.Client,
		surface:   sf,
		refresh:   refresh,
		logger:    logger.With("project_id", cfg.ProjectID),
	}
}

// GenerateAll starts generation of every pending or failed frame.
func (d *Dispatcher) GenerateAll(ctx context.Context) (GenerateAllResult, error) {
	cmd := tracker.GenerateAll()

	d.mu.Lock()
	v := d.state.View()
	if err := checkGenerateAll(v); err != nil {
		d.mu.Unlock()
		return GenerateAllResult{}, d.reject(surface.OpGenerateAll, err)
	}
	d.state.Issue(cmd)
	d.mu.Unlock()

	resp, err := d.client.GenerateAll(ctx, d.projectID)
	if err != nil {
		return GenerateAllResult{}, d.fail(surface.OpGenerateAll, cmd, err)
	}
	if resp.PendingCount == 0 {
		d.state.Settle(cmd, tracker.Result{Noop: true})
		noop := &NoopError{Command: cmd, Message: resp.Message}
		d.surface.Record(surface.OpGenerateAll, noop)
		d.logger.Info("generate all had nothing to do", "message", resp.Message)
		return GenerateAllResult{Message: resp.Message}, noop
	}

	d.state.Settle(cmd, tracker.Result{})
	d.surface.Clear(surface.OpGenerateAll)
	d.logger.Info("generate all started", "pending_count", resp.PendingCount)
	_ = d.refresh(ctx)
	return GenerateAllResult{PendingCount: resp.PendingCount, Message: resp.Message}, nil
}

// GenerateFrame starts generation of one frame.
func (d *Dispatcher) GenerateFrame(ctx context.Context, frameID string) (GenerateFrameResult, error) {
	cmd := tracker.GenerateFrame(frameID)

	d.mu.Lock()
	v := d.state.View()
	if err := checkGenerateFrame(v, frameID); err != nil {
		d.mu.Unlock()
		return GenerateFrameResult{}, d.reject(surface.OpGenerateFrame, err)
	}
	d.state.Issue(cmd)
	d.mu.Unlock()

	resp, err := d.client.GenerateFrame(ctx, d.projectID, frameID)
	if err != nil {
		return GenerateFrameResult{}, d.fail(surface.OpGenerateFrame, cmd, err)
	}
	if !resp.Accepted {
		d.state.Settle(cmd, tracker.Result{Noop: true})
		noop := &NoopError{Command: cmd, Message: resp.Message}
		d.surface.Record(surface.OpGenerateFrame, noop)
		_ = d.refresh(ctx)
		return GenerateFrameResult{FrameID: frameID, Message: resp.Message}, noop
	}

	d.state.Settle(cmd, tracker.Result{})
	d.surface.Clear(surface.OpGenerateFrame)
	d.logger.Info("frame generation started", "frame_id", frameID)
	_ = d.refresh(ctx)
	return GenerateFrameResult{FrameID: frameID, Message: resp.Message}, nil
}

// Combine merges all completed clips into the final video. It is
// idempotent: a known final asset is returned as-is, and repeated calls
// before the first is confirmed share its outcome.
func (d *Dispatcher) Combine(ctx context.Context) (CombineResult, error) {
	cmd := tracker.Combine()

	d.mu.Lock()
	v := d.state.View()
	if v.HasFinalAsset {
		d.mu.Unlock()
		d.surface.Clear(surface.OpCombine)
		return CombineResult{VideoURL: v.FinalURL, AlreadyCombined: true}, nil
	}
	if v.InFlight.Kind == tracker.KindCombine {
		if !d.combining {
			d.mu.Unlock()
			return CombineResult{VideoURL: v.FinalURL, Coalesced: true}, nil
		}
		// Joining under mu guarantees the outstanding call is still registered.
		ch := d.group.DoChan("combine", func() (any, error) {
			return CombineResult{}, refuse(cmd, "combine settled while joining")
		})
		d.mu.Unlock()
		if d.joined != nil {
			d.joined()
		}
		select {
		case r := <-ch:
			if r.Err != nil {
				return CombineResult{}, r.Err
			}
			res := r.Val.(CombineResult)
			res.Coalesced = true
			return res, nil
		case <-ctx.Done():
			return CombineResult{}, ctx.Err()
		}
	}
	if err := checkCombine(v); err != nil {
		d.mu.Unlock()
		return CombineResult{}, d.reject(surface.OpCombine, err)
	}
	d.state.Issue(cmd)
	d.combining = true
	ch := d.group.DoChan("combine", func() (any, error) {
		return d.sendCombine(ctx, cmd)
	})
	d.mu.Unlock()

	r := <-ch
	if r.Err != nil {
		return CombineResult{}, r.Err
	}
	_ = d.refresh(ctx)
	return r.Val.(CombineResult), nil
}

func (d *Dispatcher) sendCombine(ctx context.Context, cmd tracker.Command) (CombineResult, error) {
	resp, err := d.client.Combine(ctx, d.projectID)

	d.mu.Lock()
	d.combining = false
	d.mu.Unlock()

	if err != nil {
		return CombineResult{}, d.fail(surface.OpCombine, cmd, err)
	}
	d.state.Settle(cmd, tracker.Result{VideoURL: resp.VideoURL})
	d.surface.Clear(surface.OpCombine)
	d.logger.Info("combine accepted", "already_combined", resp.AlreadyCombined, "clips", resp.ClipsCount)
	return CombineResult{
		VideoURL:        resp.VideoURL,
		AlreadyCombined: resp.AlreadyCombined,
		Message:         resp.Message,
	}, nil
}

func (d *Dispatcher) reject(op surface.Op, err error) error {
	d.surface.Record(op, err)
	d.logger.Debug("command refused", "op", op, "reason", err)
	return err
}

func (d *Dispatcher) fail(op surface.Op, cmd tracker.Command, err error) error {
	d.state.Settle(cmd, tracker.Result{Err: err})
	d.surface.Record(op, err)
	d.logger.Warn("command failed", "command", cmd.String(), "error", err)
	return err
}

func checkGenerateAll(v tracker.View) error {
	cmd := tracker.GenerateAll()
	switch {
	case !v.Loaded:
		return refuse(cmd, "project not loaded yet")
	case v.InFlight.Busy():
		return refuse(cmd, fmt.Sprintf("%s already in flight", v.InFlight.Command))
	case v.Counts.Eligible() == 0:
		return refuse(cmd, "no pending or failed frames")
	}
	return nil
}

func checkGenerateFrame(v tracker.View, frameID string) error {
	cmd := tracker.GenerateFrame(frameID)
	if !v.Loaded {
		return refuse(cmd, "project not loaded yet")
	}
	frame, ok := v.Project.Frame(frameID)
	if !ok {
		return &PreconditionError{Command: cmd, Reason: "frame not in project", Err: project.ErrFrameNotFound}
	}
	switch {
	case frame.Status == project.FrameGenerating:
		return refuse(cmd, fmt.Sprintf("frame %d already generating", frame.FrameNum))
	case v.InFlight.Kind == tracker.KindGenerateAll:
		return refuse(cmd, "generate_all in flight")
	case v.InFlight.Busy():
		return refuse(cmd, fmt.Sprintf("%s already in flight", v.InFlight.Command))
	}
	return nil
}

func checkCombine(v tracker.View) error {
	cmd := tracker.Combine()
	switch {
	case !v.Loaded:
		return refuse(cmd, "project not loaded yet")
	case v.InFlight.Busy():
		return refuse(cmd, fmt.Sprintf("%s already in flight", v.InFlight.Command))
	case !v.FullyGenerated:
		return refuse(cmd, fmt.Sprintf("%d of %d frames completed", v.Counts.Completed, v.Counts.Total))
	}
	return nil
}
