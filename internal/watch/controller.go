// Package watch keeps one project in sync with the studio: it polls on an
// adaptive cadence, folds snapshots into the tracker and routes commands
// through the dispatcher.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rpggio/reelwatch/internal/cadence"
	"github.com/rpggio/reelwatch/internal/clock"
	"github.com/rpggio/reelwatch/internal/dispatch"
	"github.com/rpggio/reelwatch/internal/domain/project"
	"github.com/rpggio/reelwatch/internal/surface"
	"github.com/rpggio/reelwatch/internal/tracker"
)

// Client is the studio as seen by a controller.
type Client interface {
	Fetch(ctx context.Context, projectID string) (project.Snapshot, error)
	dispatch.Commander
}

// Options configures a Controller.
type Options struct {
	ProjectID string
	Client    Client
	Scheduler clock.Scheduler
	Policy    cadence.Policy
	Sinks     []Sink
	Ledger    FinalLedger
	OnFinal   FinalFunc
	Logger    *slog.Logger
	Now       func() time.Time
}

// Status is a point-in-time read of a controller.
type Status struct {
	ProjectID string          `json:"project_id"`
	View      tracker.View    `json:"view"`
	Errors    []surface.Entry `json:"errors"`
	Polling   bool            `json:"polling"`
	NextDelay time.Duration   `json:"next_delay"`
	Polls     int             `json:"polls"`
	Fault     string          `json:"fault,omitempty"`
	LastFetch time.Time       `json:"last_fetch,omitempty"`
	Stopped   bool            `json:"stopped"`
}

type finalHit struct {
	assetID string
	url     string
}

// Controller watches one project.
type Controller struct {
	projectID  string
	client     Client
	sched      clock.Scheduler
	policy     cadence.Policy
	sinks      []Sink
	ledger     FinalLedger
	onFinal    FinalFunc
	logger     *slog.Logger
	now        func() time.Time
	surface    *surface.Surface
	dispatcher *dispatch.Dispatcher

	ctx    context.Context
	cancel context.CancelFunc

	// mu guards everything below. No network call runs under it.
	mu        sync.Mutex
	machine   *tracker.Machine
	handle    clock.Handle
	nextDelay time.Duration
	polls     int
	fetches   int
	wasActive bool
	fetching  bool
	refetch   bool
	stopped   bool
	fault     error
	lastFetch time.Time
	pending   []Event
	final     *finalHit
}

// NewController wires a controller. It does nothing until Start.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = clock.NewTimerScheduler()
	}
	policy := opts.Policy
	if policy.Max() == 0 {
		policy = cadence.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		projectID: opts.ProjectID,
		client:    opts.Client,
		sched:     sched,
		policy:    policy,
		sinks:     opts.Sinks,
		ledger:    opts.Ledger,
		onFinal:   opts.OnFinal,
		logger:    logger.With("project_id", opts.ProjectID),
		now:       now,
		surface:   surface.New(dispatch.Classify),
		machine:   tracker.New(),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.dispatcher = dispatch.New(dispatch.Config{
		ProjectID: opts.ProjectID,
		State:     machineState{c},
		Client:    opts.Client,
		Surface:   c.surface,
		Refresh:   c.Refresh,
		Logger:    logger,
	})
	return c
}

// ProjectID returns the watched project.
func (c *Controller) ProjectID() string {
	return c.projectID
}

// Start performs the initial fetch and arms polling if the project is busy.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	c.eventLocked(EventWatchStarted, "", "watch started", nil)
	events := c.drainLocked()
	c.mu.Unlock()
	c.publish(events)

	return c.Refresh(ctx)
}

// Refresh fetches one snapshot now. A refresh requested while a fetch is
// outstanding is folded into a single follow-up fetch.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.refresh(ctx, true)
}

func (c *Controller) tick() {
	_ = c.refresh(c.ctx, false)
}

func (c *Controller) refresh(ctx context.Context, explicit bool) error {
	c.mu.Lock()
	switch {
	case c.stopped:
		c.mu.Unlock()
		return ErrStopped
	case c.fetching:
		c.refetch = true
		c.mu.Unlock()
		return nil
	case !explicit && c.fault != nil:
		c.mu.Unlock()
		return nil
	}
	c.fetching = true
	c.disarmLocked()
	c.mu.Unlock()

	for {
		snap, fetchErr := c.client.Fetch(ctx, c.projectID)

		c.mu.Lock()
		if c.stopped {
			c.fetching = false
			c.mu.Unlock()
			return ErrStopped
		}
		err := c.foldLocked(snap, fetchErr)
		again := c.refetch && c.fault == nil && ctx.Err() == nil
		c.refetch = false
		if !again {
			c.fetching = false
			c.armLocked()
		}
		events := c.drainLocked()
		hit := c.final
		c.final = nil
		c.mu.Unlock()

		c.publish(events)
		c.announce(hit)
		if !again {
			return err
		}
	}
}

// foldLocked applies one fetch outcome.
func (c *Controller) foldLocked(snap project.Snapshot, fetchErr error) error {
	c.fetches++
	c.lastFetch = c.now()

	if fetchErr == nil {
		prev := c.machine.View()
		if err := c.machine.OnSnapshot(snap); err != nil {
			fetchErr = fmt.Errorf("fold snapshot: %w", err)
		} else {
			c.fault = nil
			c.surface.Clear(surface.OpFetch)
			c.diffLocked(prev, c.machine.View())
			c.trackActivityLocked()
			if c.machine.ConsumeFinalTransition() {
				v := c.machine.View()
				hit := &finalHit{url: v.FinalURL}
				if v.FinalAsset != nil {
					hit.assetID = v.FinalAsset.ID
				}
				c.final = hit
			}
			return nil
		}
	}

	entry := c.surface.Record(surface.OpFetch, fetchErr)
	details := map[string]any{"kind": string(entry.Kind), "error": fetchErr.Error()}
	if entry.Status != 0 {
		details["status"] = entry.Status
	}
	if errors.Is(fetchErr, project.ErrMalformedSnapshot) {
		c.fault = fetchErr
		details["fault"] = true
		c.logger.Error("snapshot rejected, polling halted", "error", fetchErr)
	} else {
		c.logger.Warn("poll failed", "error", fetchErr)
	}
	c.eventLocked(EventPollFailed, "", "poll failed: "+fetchErr.Error(), details)
	return fetchErr
}

func (c *Controller) diffLocked(prev, next tracker.View) {
	if prev.Active != next.Active {
		summary := "project idle"
		if next.Active {
			summary = "project busy"
		}
		c.eventLocked(EventActivityChanged, "", summary, map[string]any{"active": next.Active})
	}

	var changed []map[string]any
	before := make(map[string]project.FrameStatus, len(prev.Project.Frames))
	for _, f := range prev.Project.Frames {
		before[f.ID] = f.Status
	}
	for _, f := range next.Project.Frames {
		if was, ok := before[f.ID]; !ok || was != f.Status {
			changed = append(changed, map[string]any{
				"frame_id":  f.ID,
				"frame_num": f.FrameNum,
				"from":      string(was),
				"to":        string(f.Status),
			})
		}
	}

	if prev.Loaded && prev.Project.Status == next.Project.Status && len(changed) == 0 &&
		prev.ProgressPercent == next.ProgressPercent && prev.HasFinalAsset == next.HasFinalAsset {
		return
	}
	details := map[string]any{
		"status":   string(next.Project.Status),
		"counts":   next.Counts,
		"progress": next.ProgressPercent,
	}
	if len(changed) > 0 {
		details["frames"] = changed
	}
	summary := fmt.Sprintf("%s, %d/%d frames completed", next.Project.Status, next.Counts.Completed, next.Counts.Total)
	c.eventLocked(EventSnapshotChanged, "", summary, details)
}

// trackActivityLocked resets the cadence when the project goes from idle to busy.
func (c *Controller) trackActivityLocked() bool {
	active := c.machine.Active()
	if active && !c.wasActive {
		c.polls = 0
	}
	c.wasActive = active
	return active
}

func (c *Controller) armLocked() {
	if c.stopped || c.fault != nil || !c.machine.ShouldPoll() {
		c.nextDelay = 0
		return
	}
	c.nextDelay = c.policy.Next(c.polls)
	c.polls++
	c.handle = c.sched.Arm(c.nextDelay, c.tick)
}

func (c *Controller) disarmLocked() {
	c.sched.Disarm(c.handle)
	c.handle = 0
	c.nextDelay = 0
}

func (c *Controller) eventLocked(typ EventType, frameID, summary string, details map[string]any) {
	c.pending = append(c.pending, Event{
		Type:      typ,
		ProjectID: c.projectID,
		FrameID:   frameID,
		Summary:   summary,
		Details:   details,
		Poll:      c.fetches,
		At:        c.now(),
	})
}

func (c *Controller) drainLocked() []Event {
	events := c.pending
	c.pending = nil
	return events
}

func (c *Controller) publish(events []Event) {
	for _, ev := range events {
		for _, sink := range c.sinks {
			sink.Publish(c.ctx, ev)
		}
	}
}

// announce fires the final-ready transition unless the ledger has seen it.
func (c *Controller) announce(hit *finalHit) {
	if hit == nil {
		return
	}
	if c.ledger != nil && hit.assetID != "" {
		fresh, err := c.ledger.MarkFinal(c.ctx, c.projectID, hit.assetID, hit.url)
		if err != nil {
			c.logger.Warn("final ledger unavailable", "error", err)
		} else if !fresh {
			c.logger.Debug("final already announced", "asset_id", hit.assetID)
			return
		}
	}

	c.logger.Info("final video ready", "video_url", hit.url)
	c.mu.Lock()
	c.eventLocked(EventFinalReady, "", "final video ready", map[string]any{"asset_id": hit.assetID, "video_url": hit.url})
	events := c.drainLocked()
	c.mu.Unlock()
	c.publish(events)

	if c.onFinal != nil {
		c.onFinal(c.projectID, hit.url)
	}
}

// Stop disarms polling. Results of fetches still outstanding are dropped.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.handle = 0
	c.nextDelay = 0
	c.sched.Stop()
	c.eventLocked(EventWatchStopped, "", "watch stopped", nil)
	events := c.drainLocked()
	c.mu.Unlock()

	c.publish(events)
	c.cancel()
}

// Status returns the current state of the watch.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{
		ProjectID: c.projectID,
		View:      c.machine.View(),
		Errors:    c.surface.All(),
		Polling:   c.nextDelay > 0,
		NextDelay: c.nextDelay,
		Polls:     c.fetches,
		LastFetch: c.lastFetch,
		Stopped:   c.stopped,
	}
	if c.fault != nil {
		st.Fault = c.fault.Error()
	}
	return st
}

// GenerateAll starts every pending or failed frame.
func (c *Controller) GenerateAll(ctx context.Context) (dispatch.GenerateAllResult, error) {
	if err := c.live(); err != nil {
		return dispatch.GenerateAllResult{}, err
	}
	res, err := c.dispatcher.GenerateAll(ctx)
	c.rejected(tracker.GenerateAll(), err)
	return res, err
}

// GenerateFrame starts one frame.
func (c *Controller) GenerateFrame(ctx context.Context, frameID string) (dispatch.GenerateFrameResult, error) {
	if err := c.live(); err != nil {
		return dispatch.GenerateFrameResult{}, err
	}
	res, err := c.dispatcher.GenerateFrame(ctx, frameID)
	c.rejected(tracker.GenerateFrame(frameID), err)
	return res, err
}

// Combine starts or joins the combine stage.
func (c *Controller) Combine(ctx context.Context) (dispatch.CombineResult, error) {
	if err := c.live(); err != nil {
		return dispatch.CombineResult{}, err
	}
	res, err := c.dispatcher.Combine(ctx)
	c.rejected(tracker.Combine(), err)
	return res, err
}

func (c *Controller) live() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrStopped
	}
	return nil
}

func (c *Controller) rejected(cmd tracker.Command, err error) {
	if !errors.Is(err, dispatch.ErrPrecondition) {
		return
	}
	c.mu.Lock()
	c.eventLocked(EventCommandRejected, cmd.FrameID, err.Error(), map[string]any{"command": cmd.Kind.String()})
	events := c.drainLocked()
	c.mu.Unlock()
	c.publish(events)
}

// machineState exposes the controller's machine to the dispatcher.
type machineState struct {
	c *Controller
}

func (s machineState) View() tracker.View {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.c.machine.View()
}

func (s machineState) Issue(cmd tracker.Command) {
	c := s.c
	c.mu.Lock()
	c.machine.OnCommandIssued(cmd)
	c.trackActivityLocked()
	c.eventLocked(EventCommandIssued, cmd.FrameID, cmd.String()+" issued", map[string]any{"command": cmd.Kind.String()})
	events := c.drainLocked()
	c.mu.Unlock()
	c.publish(events)
}

func (s machineState) Settle(cmd tracker.Command, res tracker.Result) {
	c := s.c
	c.mu.Lock()
	c.machine.OnCommandSettled(cmd, res)
	c.trackActivityLocked()

	details := map[string]any{"command": cmd.Kind.String(), "outcome": "accepted"}
	summary := cmd.String() + " accepted"
	switch {
	case res.Err != nil:
		details["outcome"] = "failed"
		details["error"] = res.Err.Error()
		summary = cmd.String() + " failed: " + res.Err.Error()
	case res.Noop:
		details["outcome"] = "noop"
		summary = cmd.String() + " had nothing to do"
	case res.VideoURL != "":
		details["video_url"] = res.VideoURL
	}
	c.eventLocked(EventCommandSettled, cmd.FrameID, summary, details)
	events := c.drainLocked()
	c.mu.Unlock()
	c.publish(events)
}
