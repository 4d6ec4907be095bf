//go:build linux

package button

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// GPIO samples a sysfs GPIO value file (/sys/class/gpio/gpioN/value) on every
// Read, like a direct digitalRead.
type GPIO struct {
	f         *os.File
	fd        int
	activeLow bool
	buf       [2]byte
}

// OpenGPIO opens the value file of an exported input pin.
func OpenGPIO(path string, activeLow bool) (*GPIO, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gpio value: %w", err)
	}
	return &GPIO{f: f, fd: int(f.Fd()), activeLow: activeLow}, nil
}

func (g *GPIO) Read() (bool, error) {
	n, err := unix.Pread(g.fd, g.buf[:], 0)
	if err != nil {
		return false, fmt.Errorf("read gpio %s: %w", g.f.Name(), err)
	}
	level, err := parseLevel(g.buf[:n])
	if err != nil {
		return false, fmt.Errorf("read gpio %s: %w", g.f.Name(), err)
	}
	return level != g.activeLow, nil
}

func (g *GPIO) Close() error {
	return g.f.Close()
}
