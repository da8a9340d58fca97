// Package tracker folds studio snapshots and locally issued commands into
// one consistent view of a project and decides whether polling continues.
package tracker

import (
	"sort"

	"github.com/rpggio/reelwatch/internal/domain/project"
)

// View is an immutable read of everything the machine derives.
type View struct {
	Loaded          bool            `json:"loaded"`
	Project         project.Project `json:"project"`
	Counts          project.Counts  `json:"counts"`
	ProgressPercent int             `json:"progress_percent"`
	FullyGenerated  bool            `json:"fully_generated"`
	HasFinalAsset   bool            `json:"has_final_asset"`
	FinalAsset      *project.Asset  `json:"final_asset,omitempty"`
	FinalURL        string          `json:"final_url,omitempty"`
	Active          bool            `json:"active"`
	InFlight        InFlight        `json:"in_flight"`
}

// Machine is the project state machine. It is not safe for concurrent use;
// callers serialize every method onto one writer.
type Machine struct {
	loaded    bool
	snap      project.Snapshot
	counts    project.Counts
	final     *project.Asset
	adopted   string
	inFlight  InFlight
	hadFinal  bool
	finalEdge bool
	// quiet counts snapshots folded since settlement that showed no sign
	// of the outstanding command's work.
	quiet int
}

// Snapshots folded after a successful settle that must show no sign of
// the command's work before it is treated as dropped by the studio. At
// most one fetch is outstanding, so only the first of them can predate
// the settle. Combine gets more room because the studio reports nothing
// until the final asset lands.
const (
	generateGrace = 3
	combineGrace  = 8
)

// New creates an empty machine. Nothing is active until a snapshot or command arrives.
func New() *Machine {
	return &Machine{}
}

// OnSnapshot replaces the cached project wholesale with an authoritative
// snapshot. Invalid snapshots are rejected and leave the machine unchanged.
func (m *Machine) OnSnapshot(snap project.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	snap.Project.Frames = append([]project.Frame(nil), snap.Project.Frames...)
	snap.Project.Assets = append([]project.Asset(nil), snap.Project.Assets...)
	sort.SliceStable(snap.Project.Frames, func(i, j int) bool {
		return snap.Project.Frames[i].FrameNum < snap.Project.Frames[j].FrameNum
	})

	m.loaded = true
	m.snap = snap
	m.counts = project.CountFrames(snap.Project.Frames)
	m.final = nil
	if a, ok := snap.Project.FinalAsset(); ok {
		m.final = &a
	}

	hasFinal := m.final != nil
	switch {
	case hasFinal && !m.hadFinal:
		m.finalEdge = true
	case !hasFinal:
		if m.hadFinal {
			m.adopted = ""
		}
		m.finalEdge = false
	}
	m.hadFinal = hasFinal

	m.confirm(true)
	return nil
}

// OnCommandIssued records cmd as the outstanding operation before the
// network call resolves.
func (m *Machine) OnCommandIssued(cmd Command) {
	m.inFlight = InFlight{Command: cmd}
	m.quiet = 0
}

// OnCommandSettled records the transport outcome for cmd. A failed or
// no-op command never took and is cleared at once; a successful one stays
// outstanding until a snapshot confirms it.
func (m *Machine) OnCommandSettled(cmd Command, res Result) {
	if !m.inFlight.Busy() || m.inFlight.Command != cmd {
		return
	}
	if res.Err != nil || res.Noop {
		m.clearInFlight()
		return
	}
	m.inFlight.Settled = true
	if cmd.Kind == KindCombine && res.VideoURL != "" {
		m.adopted = res.VideoURL
	}
	if m.loaded {
		m.confirm(false)
	}
}

// confirm clears the outstanding operation once the snapshot shows it is
// no longer needed. A settled command whose work never shows up is
// cleared after its grace of idle snapshots.
func (m *Machine) confirm(snapshot bool) {
	f := &m.inFlight
	status := m.snap.Project.Status
	var idle bool

	switch f.Kind {
	case KindGenerateAll:
		if m.counts.Generating > 0 {
			f.Started = true
			return
		}
		if f.Started || (f.Settled && m.counts.Eligible() == 0) {
			m.clearInFlight()
			return
		}
		idle = !status.Active()

	case KindGenerateFrame:
		frame, ok := findFrame(m.snap.Project.Frames, f.FrameID)
		if !ok {
			m.clearInFlight()
			return
		}
		if frame.Status == project.FrameGenerating {
			f.Started = true
			return
		}
		if f.Started || (f.Settled && frame.Status == project.FrameCompleted) {
			m.clearInFlight()
			return
		}
		idle = true

	case KindCombine:
		if m.final != nil {
			m.clearInFlight()
			return
		}
		if status == project.StatusCombining {
			f.Started = true
			return
		}
		// Left combining without a final asset.
		if f.Started || (f.Settled && status == project.StatusFailed) {
			m.clearInFlight()
			return
		}
		idle = !status.Active()

	default:
		return
	}

	if !snapshot || !f.Settled {
		return
	}
	if !idle {
		m.quiet = 0
		return
	}
	m.quiet++
	if m.quiet >= grace(f.Kind) {
		m.clearInFlight()
	}
}

func (m *Machine) clearInFlight() {
	m.inFlight = InFlight{}
	m.quiet = 0
}

func grace(k Kind) int {
	if k == KindCombine {
		return combineGrace
	}
	return generateGrace
}

// Active is true while the studio is working or a command is outstanding.
func (m *Machine) Active() bool {
	if m.inFlight.Busy() {
		return true
	}
	if !m.loaded {
		return false
	}
	return m.snap.Project.Status.Active() || m.counts.Generating > 0
}

// ShouldPoll reports whether another snapshot is needed.
func (m *Machine) ShouldPoll() bool {
	return m.Active()
}

// InFlight returns the outstanding operation.
func (m *Machine) InFlight() InFlight {
	return m.inFlight
}

// ConsumeFinalTransition returns true once per appearance of a final
// asset. A snapshot without the asset re-arms the detector.
func (m *Machine) ConsumeFinalTransition() bool {
	if !m.finalEdge {
		return false
	}
	m.finalEdge = false
	return true
}

// View returns a copy of the current derived state.
func (m *Machine) View() View {
	v := View{
		Loaded:         m.loaded,
		Active:         m.Active(),
		InFlight:       m.inFlight,
		Counts:         m.counts,
		FullyGenerated: m.counts.FullyGenerated(),
		HasFinalAsset:  m.final != nil,
	}
	if !m.loaded {
		v.FinalURL = m.adopted
		return v
	}

	v.Project = m.snap.Project
	v.Project.Frames = append([]project.Frame(nil), m.snap.Project.Frames...)
	v.Project.Assets = append([]project.Asset(nil), m.snap.Project.Assets...)

	v.ProgressPercent = m.counts.Percent()
	if m.snap.Progress != nil {
		v.ProgressPercent = m.snap.Progress.Percent
	}

	switch {
	case m.final != nil && m.final.FileURL != "":
		v.FinalURL = m.final.FileURL
	case m.snap.FinalVideoURL != "":
		v.FinalURL = m.snap.FinalVideoURL
	default:
		v.FinalURL = m.adopted
	}
	if m.final != nil {
		a := *m.final
		v.FinalAsset = &a
	}
	return v
}

func findFrame(frames []project.Frame, id string) (project.Frame, bool) {
	for _, f := range frames {
		if f.ID == id {
			return f, true
		}
	}
	return project.Frame{}, false
}
