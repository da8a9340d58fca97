package watch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rpggio/reelwatch/internal/clock"
	"github.com/rpggio/reelwatch/internal/dispatch"
	"github.com/rpggio/reelwatch/internal/domain/project"
	"github.com/rpggio/reelwatch/internal/studio"
	"github.com/rpggio/reelwatch/internal/studiotest"
	"github.com/rpggio/reelwatch/internal/surface"
	"github.com/stretchr/testify/require"
)

// hookedClient lets tests interfere with fetches.
type hookedClient struct {
	*studio.Client
	mu        sync.Mutex
	malformed bool
	onFetch   func()
}

func (h *hookedClient) Fetch(ctx context.Context, projectID string) (project.Snapshot, error) {
	h.mu.Lock()
	malformed, hook := h.malformed, h.onFetch
	h.mu.Unlock()
	if hook != nil {
		hook()
	}
	if malformed {
		return project.Snapshot{}, fmt.Errorf("fetch project: %w: duplicate frame_num", project.ErrMalformedSnapshot)
	}
	return h.Client.Fetch(ctx, projectID)
}

func (h *hookedClient) setMalformed(v bool) {
	h.mu.Lock()
	h.malformed = v
	h.mu.Unlock()
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Publish(_ context.Context, ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) count(typ EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func (l *eventLog) last() Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

type memLedger struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *memLedger) MarkFinal(_ context.Context, projectID, assetID, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	key := projectID + "/" + assetID
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

type fixture struct {
	studio *studiotest.TestServer
	client *hookedClient
	clock  *clock.Fake
	events *eventLog
	pid    string
	c      *Controller

	mu     sync.Mutex
	finals []string
}

func newFixture(t *testing.T, frames int) *fixture {
	t.Helper()
	ts := studiotest.New(t)
	client, err := studio.NewClient(studio.Options{BaseURL: ts.URL()})
	require.NoError(t, err)

	f := &fixture{
		studio: ts,
		client: &hookedClient{Client: client},
		clock:  clock.NewFake(),
		events: &eventLog{},
		pid:    ts.AddProject("demo", frames),
	}
	f.c = f.controller(nil)
	return f
}

func (f *fixture) controller(ledger FinalLedger) *Controller {
	return NewController(Options{
		ProjectID: f.pid,
		Client:    f.client,
		Scheduler: f.clock,
		Sinks:     []Sink{f.events},
		Ledger:    ledger,
		OnFinal: func(_, url string) {
			f.mu.Lock()
			f.finals = append(f.finals, url)
			f.mu.Unlock()
		},
	})
}

func (f *fixture) finalCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.finals)
}

func TestController_IdleProjectDoesNotPoll(t *testing.T) {
	f := newFixture(t, 3)
	require.NoError(t, f.c.Start(context.Background()))

	st := f.c.Status()
	require.True(t, st.View.Loaded)
	require.Equal(t, project.StatusQueued, st.View.Project.Status)
	require.False(t, st.Polling)
	_, armed := f.clock.Pending()
	require.False(t, armed)
	require.Equal(t, 1, f.events.count(EventWatchStarted))
	require.Equal(t, 1, f.events.count(EventSnapshotChanged))
}

func TestController_GenerateAllThroughCombine(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	require.NoError(t, f.c.Start(ctx))

	res, err := f.c.GenerateAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, res.PendingCount)

	delay, armed := f.clock.Pending()
	require.True(t, armed)
	require.Equal(t, 2*time.Second, delay)
	require.True(t, f.c.Status().View.InFlight.Started)

	f.studio.CompleteGenerating(f.pid)
	require.True(t, f.clock.Fire())

	st := f.c.Status()
	require.True(t, st.View.FullyGenerated)
	require.False(t, st.View.InFlight.Busy())
	require.False(t, st.Polling)

	combined, err := f.c.Combine(ctx)
	require.NoError(t, err)
	require.False(t, combined.AlreadyCombined)
	require.True(t, f.c.Status().Polling)

	again, err := f.c.Combine(ctx)
	require.NoError(t, err)
	require.True(t, again.Coalesced)
	require.Equal(t, 1, f.studio.Requests(studiotest.RouteCombine))

	url := f.studio.FinishCombine(f.pid)
	require.True(t, f.clock.Fire())

	st = f.c.Status()
	require.Equal(t, project.StatusCompleted, st.View.Project.Status)
	require.Equal(t, url, st.View.FinalURL)
	require.False(t, st.Polling)
	require.Equal(t, 1, f.finalCount())
	require.Equal(t, 1, f.events.count(EventFinalReady))

	final, err := f.c.Combine(ctx)
	require.NoError(t, err)
	require.True(t, final.AlreadyCombined)
	require.Equal(t, url, final.VideoURL)
	require.Equal(t, 1, f.studio.Requests(studiotest.RouteCombine))

	require.NoError(t, f.c.Refresh(ctx))
	require.Equal(t, 1, f.finalCount(), "final fires once per appearance")
}

func TestController_CadenceBacksOffAndResets(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	require.NoError(t, f.c.Start(ctx))
	_, err := f.c.GenerateAll(ctx)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.True(t, f.clock.Fire())
	}
	s := time.Second
	require.Equal(t, []time.Duration{2 * s, 2 * s, 2 * s, 2 * s, 2 * s, 5 * s}, f.clock.Delays())

	f.studio.CompleteGenerating(f.pid)
	require.True(t, f.clock.Fire())
	require.False(t, f.c.Status().Polling)

	f.studio.SetFrameStatus(f.pid, 2, project.FrameFailed, "render error")
	f.studio.SetProjectStatus(f.pid, project.StatusClipsReady)
	require.NoError(t, f.c.Refresh(ctx))
	require.False(t, f.c.Status().Polling)

	_, err = f.c.GenerateFrame(ctx, f.studio.FrameID(f.pid, 2))
	require.NoError(t, err)
	delay, armed := f.clock.Pending()
	require.True(t, armed)
	require.Equal(t, 2*time.Second, delay, "cadence restarts when work resumes")
}

func TestController_PollFailureKeepsPolling(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	require.NoError(t, f.c.Start(ctx))
	_, err := f.c.GenerateAll(ctx)
	require.NoError(t, err)

	f.studio.FailNext(studiotest.RouteFetch, 503, "busy")
	require.True(t, f.clock.Fire())

	st := f.c.Status()
	require.True(t, st.Polling)
	require.Empty(t, st.Fault)
	require.Len(t, st.Errors, 1)
	require.Equal(t, surface.OpFetch, st.Errors[0].Op)
	require.Equal(t, surface.KindServer, st.Errors[0].Kind)
	require.Equal(t, 503, st.Errors[0].Status)
	require.Equal(t, 1, f.events.count(EventPollFailed))

	require.True(t, f.clock.Fire())
	require.Empty(t, f.c.Status().Errors)
}

func TestController_MalformedSnapshotFaults(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	require.NoError(t, f.c.Start(ctx))
	_, err := f.c.GenerateAll(ctx)
	require.NoError(t, err)

	f.client.setMalformed(true)
	require.True(t, f.clock.Fire())

	st := f.c.Status()
	require.NotEmpty(t, st.Fault)
	require.False(t, st.Polling)
	require.Equal(t, surface.KindMalformed, st.Errors[0].Kind)
	_, armed := f.clock.Pending()
	require.False(t, armed)

	err = f.c.Refresh(ctx)
	require.ErrorIs(t, err, project.ErrMalformedSnapshot)

	f.client.setMalformed(false)
	require.NoError(t, f.c.Refresh(ctx))
	st = f.c.Status()
	require.Empty(t, st.Fault)
	require.True(t, st.Polling)
}

func TestController_StopDropsLateResults(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	require.NoError(t, f.c.Start(ctx))
	_, err := f.c.GenerateAll(ctx)
	require.NoError(t, err)
	polls := f.c.Status().Polls

	f.client.onFetch = func() { f.c.Stop() }
	err = f.c.Refresh(ctx)
	require.ErrorIs(t, err, ErrStopped)

	st := f.c.Status()
	require.True(t, st.Stopped)
	require.False(t, st.Polling)
	require.Equal(t, polls, st.Polls)
	require.False(t, f.clock.Fire())
	require.Equal(t, EventWatchStopped, f.events.last().Type)

	_, err = f.c.GenerateAll(ctx)
	require.ErrorIs(t, err, ErrStopped)
}

func TestController_RejectedCommandIsPublished(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	require.NoError(t, f.c.Start(ctx))

	_, err := f.c.Combine(ctx)
	require.ErrorIs(t, err, dispatch.ErrPrecondition)
	require.Equal(t, 1, f.events.count(EventCommandRejected))
	require.Zero(t, f.studio.Requests(studiotest.RouteCombine))

	st := f.c.Status()
	require.Len(t, st.Errors, 1)
	require.Equal(t, surface.KindPrecondition, st.Errors[0].Kind)
}

func TestController_LedgerSuppressesRepeatFinal(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	f.studio.SetFrameStatus(f.pid, 1, project.FrameCompleted, "")
	f.studio.FinishCombine(f.pid)

	ledger := &memLedger{}
	first := f.controller(ledger)
	require.NoError(t, first.Start(ctx))
	first.Stop()
	require.Equal(t, 1, f.finalCount())

	second := f.controller(ledger)
	require.NoError(t, second.Start(ctx))
	second.Stop()
	require.Equal(t, 1, f.finalCount())

	withoutLedger := f.controller(nil)
	require.NoError(t, withoutLedger.Start(ctx))
	withoutLedger.Stop()
	require.Equal(t, 2, f.finalCount())
}

func TestController_FinalRearmsAfterRemoval(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	f.studio.SetFrameStatus(f.pid, 1, project.FrameCompleted, "")
	f.studio.FinishCombine(f.pid)

	require.NoError(t, f.c.Start(ctx))
	require.Equal(t, 1, f.finalCount())

	f.studio.RemoveFinal(f.pid)
	require.NoError(t, f.c.Refresh(ctx))
	require.False(t, f.c.Status().View.HasFinalAsset)

	f.studio.FinishCombine(f.pid)
	require.NoError(t, f.c.Refresh(ctx))
	require.Equal(t, 2, f.finalCount())
}

// fireUntilIdle fires pending polls until polling stops and returns how
// many fired.
func (f *fixture) fireUntilIdle(t *testing.T, limit int) int {
	t.Helper()
	fired := 0
	for {
		if _, armed := f.clock.Pending(); !armed {
			return fired
		}
		require.Less(t, fired, limit, "polling never settled")
		require.True(t, f.clock.Fire())
		fired++
	}
}

func TestController_FrameFailsBeforeAnyPollSeesIt(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	f.studio.SetFrameStatus(f.pid, 1, project.FrameFailed, "quota")
	f.studio.SettleStatus(f.pid)
	require.NoError(t, f.c.Start(ctx))
	require.False(t, f.c.Status().Polling)

	frameID := f.studio.FrameID(f.pid, 1)
	f.studio.FailNext(studiotest.RouteFetch, 503, "busy")
	_, err := f.c.GenerateFrame(ctx, frameID)
	require.NoError(t, err)
	require.True(t, f.c.Status().Polling)

	f.studio.SetFrameStatus(f.pid, 1, project.FrameFailed, "quota")
	f.studio.SettleStatus(f.pid)
	f.fireUntilIdle(t, 10)

	st := f.c.Status()
	require.False(t, st.View.InFlight.Busy())
	require.False(t, st.Polling)

	_, err = f.c.GenerateFrame(ctx, frameID)
	require.NoError(t, err, "a retry is not refused")
	require.Equal(t, 2, f.studio.Requests(studiotest.RouteGenerateFrame))
}

func TestController_CombineDroppedByStudio(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	f.studio.SetFrameStatus(f.pid, 1, project.FrameCompleted, "")
	f.studio.SettleStatus(f.pid)
	require.NoError(t, f.c.Start(ctx))

	_, err := f.c.Combine(ctx)
	require.NoError(t, err)
	require.True(t, f.c.Status().Polling)

	f.studio.AbortCombine(f.pid)
	f.fireUntilIdle(t, 20)

	st := f.c.Status()
	require.Equal(t, project.StatusClipsReady, st.View.Project.Status)
	require.False(t, st.View.InFlight.Busy())
	require.False(t, st.Polling)

	res, err := f.c.Combine(ctx)
	require.NoError(t, err)
	require.False(t, res.Coalesced, "combine is sent again")
	require.Equal(t, 2, f.studio.Requests(studiotest.RouteCombine))
}

func TestController_CombineReportedAsCombining(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	f.studio.ReportCombining(true)
	f.studio.SetFrameStatus(f.pid, 1, project.FrameCompleted, "")
	f.studio.SettleStatus(f.pid)
	require.NoError(t, f.c.Start(ctx))

	_, err := f.c.Combine(ctx)
	require.NoError(t, err)
	require.True(t, f.c.Status().View.InFlight.Started)

	f.studio.AbortCombine(f.pid)
	require.True(t, f.clock.Fire())
	st := f.c.Status()
	require.False(t, st.View.InFlight.Busy(), "leaving combining without a final clears at once")
	require.False(t, st.Polling)
}
