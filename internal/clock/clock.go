// Package clock supplies tick timestamps as wrapping millisecond counters.
package clock

import (
	"sync/atomic"

	"bouncelight/internal/motion"
)

// Clock is the TimeSource sampled once per tick. Successive readings never
// decrease except by wrapping past the top of motion.Millis.
type Clock interface {
	Now() motion.Millis
}

// Manual is a clock advanced by hand. It is used by tests and replays.
type Manual struct {
	now atomic.Uint32
}

// NewManual returns a manual clock reading start.
func NewManual(start motion.Millis) *Manual {
	m := &Manual{}
	m.now.Store(uint32(start))
	return m
}

func (m *Manual) Now() motion.Millis {
	return motion.Millis(m.now.Load())
}

// Advance moves the clock forward by d, wrapping like the hardware counter.
func (m *Manual) Advance(d motion.Millis) motion.Millis {
	return motion.Millis(m.now.Add(uint32(d)))
}

// Set jumps the clock to t.
func (m *Manual) Set(t motion.Millis) {
	m.now.Store(uint32(t))
}
