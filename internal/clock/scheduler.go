// Package clock provides the single-timer scheduler that drives polling.
package clock

import (
	"sync"
	"time"
)

// Handle identifies one arming of a scheduler.
type Handle uint64

// Scheduler arms at most one callback at a time. Callers decide whether to
// re-arm after each callback; the scheduler never repeats on its own.
type Scheduler interface {
	// Arm disarms any previous handle and schedules fn after delay.
	Arm(delay time.Duration, fn func()) Handle
	// Disarm cancels h if it is still the armed handle.
	Disarm(h Handle)
	// Stop disarms and makes later Arm calls inert.
	Stop()
}

// TimerScheduler is a Scheduler on the wall clock.
type TimerScheduler struct {
	mu      sync.Mutex
	timer   *time.Timer
	current Handle
	next    Handle
	stopped bool
}

// NewTimerScheduler creates a wall-clock scheduler.
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{}
}

func (s *TimerScheduler) Arm(delay time.Duration, fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarmLocked()
	if s.stopped {
		return 0
	}
	s.next++
	h := s.next
	s.current = h
	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		// A timer that lost the race with Disarm/Arm must not run.
		if s.stopped || s.current != h {
			s.mu.Unlock()
			return
		}
		s.current = 0
		s.timer = nil
		s.mu.Unlock()
		fn()
	})
	return h
}

func (s *TimerScheduler) Disarm(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == 0 || h != s.current {
		return
	}
	s.disarmLocked()
}

func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()
	s.stopped = true
}

func (s *TimerScheduler) disarmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.current = 0
}
