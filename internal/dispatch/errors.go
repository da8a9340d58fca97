package dispatch

import (
	"errors"
	"fmt"

	"github.com/rpggio/reelwatch/internal/surface"
	"github.com/rpggio/reelwatch/internal/tracker"
)

var (
	// ErrPrecondition matches every *PreconditionError.
	ErrPrecondition = errors.New("precondition failed")
	// ErrNothingToDo matches every *NoopError.
	ErrNothingToDo = errors.New("nothing to do")
)

// PreconditionError is a command refused locally; it never reached the studio.
type PreconditionError struct {
	Command tracker.Command
	Reason  string
	Err     error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Reason)
}

func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// NoopError is a command the studio accepted but had no work for.
type NoopError struct {
	Command tracker.Command
	Message string
}

func (e *NoopError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: nothing to do", e.Command)
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

func (e *NoopError) Is(target error) bool {
	return target == ErrNothingToDo
}

// Classify maps dispatcher errors onto error surface kinds.
func Classify(err error) (surface.Kind, bool) {
	switch {
	case errors.Is(err, ErrPrecondition):
		return surface.KindPrecondition, true
	case errors.Is(err, ErrNothingToDo):
		return surface.KindNoop, true
	}
	return "", false
}

func refuse(cmd tracker.Command, reason string) error {
	return &PreconditionError{Command: cmd, Reason: reason}
}
