// Package cadence maps how long a project has been busy to the delay
// before the next poll.
package cadence

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPolicy indicates tiers that would not produce a non-decreasing schedule.
var ErrInvalidPolicy = errors.New("invalid cadence policy")

// Tier applies Interval while the poll counter is below Until.
type Tier struct {
	Until    int           `yaml:"until" json:"until"`
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// Policy is a step function from polls-since-activity to delay.
type Policy struct {
	tiers []Tier
	max   time.Duration
}

// Default returns the stock schedule: fast right after a command, then
// backing off to a steady state for long renders.
func Default() Policy {
	return Policy{
		tiers: []Tier{
			{Until: 5, Interval: 2 * time.Second},
			{Until: 15, Interval: 5 * time.Second},
			{Until: 35, Interval: 10 * time.Second},
		},
		max: 30 * time.Second,
	}
}

// New builds a policy from explicit tiers and a cap.
func New(tiers []Tier, max time.Duration) (Policy, error) {
	if max <= 0 {
		return Policy{}, fmt.Errorf("%w: max interval must be positive", ErrInvalidPolicy)
	}
	prevUntil := 0
	var prevInterval time.Duration
	for i, t := range tiers {
		if t.Interval <= 0 {
			return Policy{}, fmt.Errorf("%w: tier %d interval must be positive", ErrInvalidPolicy, i)
		}
		if t.Until <= prevUntil {
			return Policy{}, fmt.Errorf("%w: tier %d bound %d not above %d", ErrInvalidPolicy, i, t.Until, prevUntil)
		}
		if t.Interval < prevInterval {
			return Policy{}, fmt.Errorf("%w: tier %d interval %s below previous %s", ErrInvalidPolicy, i, t.Interval, prevInterval)
		}
		prevUntil = t.Until
		prevInterval = t.Interval
	}
	if max < prevInterval {
		return Policy{}, fmt.Errorf("%w: max interval %s below last tier %s", ErrInvalidPolicy, max, prevInterval)
	}
	return Policy{tiers: append([]Tier(nil), tiers...), max: max}, nil
}

// Next returns the delay to wait after the given number of polls.
func (p Policy) Next(polls int) time.Duration {
	for _, t := range p.tiers {
		if polls < t.Until {
			return t.Interval
		}
	}
	return p.max
}

// Min is the delay used right after activity begins.
func (p Policy) Min() time.Duration {
	return p.Next(0)
}

// Max is the steady-state delay.
func (p Policy) Max() time.Duration {
	return p.max
}
