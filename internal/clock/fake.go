package clock

import (
	"sync"
	"time"
)

// Fake is a Scheduler on virtual time. Callbacks run synchronously on the
// goroutine that advances the clock.
type Fake struct {
	mu      sync.Mutex
	now     time.Duration
	current Handle
	next    Handle
	due     time.Duration
	fn      func()
	delays  []time.Duration
	stopped bool
}

// NewFake creates a virtual-time scheduler at t=0.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Arm(delay time.Duration, fn func()) Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current, f.fn = 0, nil
	if f.stopped {
		return 0
	}
	f.next++
	f.current = f.next
	f.due = f.now + delay
	f.fn = fn
	f.delays = append(f.delays, delay)
	return f.current
}

func (f *Fake) Disarm(h Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h != 0 && h == f.current {
		f.current, f.fn = 0, nil
	}
}

func (f *Fake) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current, f.fn = 0, nil
	f.stopped = true
}

// Advance moves virtual time forward by d, firing every callback that
// comes due, including ones armed by earlier callbacks. It returns the
// number of callbacks fired.
func (f *Fake) Advance(d time.Duration) int {
	f.mu.Lock()
	target := f.now + d
	f.mu.Unlock()

	fired := 0
	for {
		f.mu.Lock()
		if f.fn == nil || f.due > target {
			f.now = target
			f.mu.Unlock()
			return fired
		}
		fn := f.take()
		f.mu.Unlock()
		fn()
		fired++
	}
}

// Fire runs the armed callback immediately, jumping time to its deadline.
// It reports false when nothing is armed.
func (f *Fake) Fire() bool {
	f.mu.Lock()
	if f.fn == nil {
		f.mu.Unlock()
		return false
	}
	fn := f.take()
	f.mu.Unlock()
	fn()
	return true
}

// Pending returns the remaining delay of the armed callback.
func (f *Fake) Pending() (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fn == nil {
		return 0, false
	}
	return f.due - f.now, true
}

// Delays returns every delay passed to Arm, in order.
func (f *Fake) Delays() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.delays...)
}

// Now returns the current virtual time.
func (f *Fake) Now() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) take() func() {
	fn := f.fn
	f.now = f.due
	f.current, f.fn = 0, nil
	return fn
}
