//go:build !linux

package strip

import (
	"errors"
	"io"
)

// SPIDevice is unavailable outside Linux.
type SPIDevice struct {
	io.WriteCloser
}

// OpenSPI always fails on this platform.
func OpenSPI(path string, mode uint8, speedHz uint32) (*SPIDevice, error) {
	return nil, errors.New("spidev is only supported on linux")
}
