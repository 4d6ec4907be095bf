//go:build !linux

package clock

import (
	"time"

	"bouncelight/internal/motion"
)

var epoch = time.Now()

// Monotonic counts milliseconds since process start, wrapping at 32 bits.
type Monotonic struct{}

func (Monotonic) Now() motion.Millis {
	return motion.Millis(uint32(time.Since(epoch).Milliseconds()))
}
