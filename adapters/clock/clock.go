// Package clock provides Clock implementations.
package clock

import (
	"sync"
	"time"

	"github.com/artpar/costledger/domain/usage"
	"github.com/artpar/costledger/ports"
)

// Real returns the current UTC time at ledger precision.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time {
	return usage.Normalize(time.Now())
}

var _ ports.Clock = Real{}

// Fake provides a controllable clock for testing.
// With a non-zero step, every call to Now advances the clock afterwards.
type Fake struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

// NewFake creates a fake clock set to the given time.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

// NewTicking creates a fake clock that moves forward by step after each read.
func NewTicking(t time.Time, step time.Duration) *Fake {
	return &Fake{current: t, step: step}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.current
	f.current = f.current.Add(f.step)
	return now
}

// Set sets the fake current time.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t
}

// Advance moves the fake time forward by duration d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

var _ ports.Clock = (*Fake)(nil)
