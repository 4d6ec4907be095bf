//go:build linux

package clock

import (
	"bouncelight/internal/motion"

	"golang.org/x/sys/unix"
)

// Monotonic reads CLOCK_MONOTONIC and truncates it to a 32-bit millisecond
// counter, which wraps after roughly 49.7 days.
type Monotonic struct{}

func (Monotonic) Now() motion.Millis {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// CLOCK_MONOTONIC is always present on linux.
		panic("clock_gettime(CLOCK_MONOTONIC): " + err.Error())
	}
	ms := uint64(ts.Sec)*1000 + uint64(ts.Nsec)/1_000_000
	return motion.Millis(uint32(ms))
}
