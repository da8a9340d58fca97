// Package surface keeps the last error per operation class for display.
package surface

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rpggio/reelwatch/internal/domain/project"
	"github.com/rpggio/reelwatch/internal/studio"
)

// Op is an operation class with its own error slot.
type Op string

const (
	OpFetch         Op = "fetch"
	OpGenerateAll   Op = "generate_all"
	OpGenerateFrame Op = "generate_frame"
	OpCombine       Op = "combine"
)

// Ops lists every slot in display order.
var Ops = []Op{OpFetch, OpGenerateAll, OpGenerateFrame, OpCombine}

// Kind classifies an entry.
type Kind string

const (
	KindNetwork      Kind = "network"
	KindServer       Kind = "server"
	KindPrecondition Kind = "precondition"
	KindNoop         Kind = "noop"
	KindMalformed    Kind = "malformed"
	KindInternal     Kind = "internal"
)

// Entry is the error currently shown for one operation class.
type Entry struct {
	Op      Op        `json:"op"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	Status  int       `json:"status,omitempty"`
	At      time.Time `json:"at"`
}

// Classifier maps errors from other layers onto a Kind. Packages that
// define their own error types register one with Classify.
type Classifier func(err error) (Kind, bool)

// Surface holds one entry per operation class. It never blocks anything.
type Surface struct {
	mu       sync.RWMutex
	entries  map[Op]Entry
	classify []Classifier
	now      func() time.Time
}

// New creates an empty surface.
func New(classifiers ...Classifier) *Surface {
	return &Surface{
		entries:  make(map[Op]Entry),
		classify: classifiers,
		now:      time.Now,
	}
}

// Record replaces the slot for op with err. A nil err clears the slot.
func (s *Surface) Record(op Op, err error) Entry {
	if err == nil {
		s.Clear(op)
		return Entry{}
	}
	entry := Entry{Op: op, Message: err.Error(), Kind: s.kindOf(err), At: s.now()}
	var serverErr *studio.ServerError
	if errors.As(err, &serverErr) {
		entry.Status = serverErr.Status
	}

	s.mu.Lock()
	s.entries[op] = entry
	s.mu.Unlock()
	return entry
}

// Clear empties the slot for op after a successful operation.
func (s *Surface) Clear(op Op) {
	s.mu.Lock()
	delete(s.entries, op)
	s.mu.Unlock()
}

// Get returns the entry for op.
func (s *Surface) Get(op Op) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[op]
	return e, ok
}

// All returns the current entries in display order.
func (s *Surface) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for _, op := range Ops {
		if e, ok := s.entries[op]; ok {
			out = append(out, e)
		}
	}
	return out
}

func (s *Surface) kindOf(err error) Kind {
	for _, c := range s.classify {
		if kind, ok := c(err); ok {
			return kind
		}
	}
	var netErr *studio.NetworkError
	var serverErr *studio.ServerError
	switch {
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	case errors.As(err, &serverErr):
		return KindServer
	case errors.Is(err, project.ErrMalformedSnapshot), errors.Is(err, studio.ErrMalformedResponse):
		return KindMalformed
	case errors.Is(err, studio.ErrInvalidID):
		return KindPrecondition
	default:
		return KindInternal
	}
}
