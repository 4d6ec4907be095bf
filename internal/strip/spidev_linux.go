//go:build linux

package strip

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// spidev ioctl requests (from <linux/spi/spidev.h>).
const (
	spiIOCWrMode        = 0x40016b01 // _IOW('k', 1, __u8)
	spiIOCWrBitsPerWord = 0x40016b03 // _IOW('k', 3, __u8)
	spiIOCWrMaxSpeedHz  = 0x40046b04 // _IOW('k', 4, __u32)
)

// SPIDevice is an open /dev/spidevB.C configured for APA102 output.
type SPIDevice struct {
	f *os.File
}

// OpenSPI opens and configures a spidev node. Writes to the returned device
// are half-duplex SPI transfers.
func OpenSPI(path string, mode uint8, speedHz uint32) (*SPIDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open spi device: %w", err)
	}
	fd := f.Fd()

	bits := uint8(8)
	if err := ioctlPtr(fd, spiIOCWrMode, unsafe.Pointer(&mode)); err != nil {
		f.Close()
		return nil, fmt.Errorf("set spi mode %d: %w", mode, err)
	}
	if err := ioctlPtr(fd, spiIOCWrBitsPerWord, unsafe.Pointer(&bits)); err != nil {
		f.Close()
		return nil, fmt.Errorf("set spi bits per word: %w", err)
	}
	if err := ioctlPtr(fd, spiIOCWrMaxSpeedHz, unsafe.Pointer(&speedHz)); err != nil {
		f.Close()
		return nil, fmt.Errorf("set spi speed %d Hz: %w", speedHz, err)
	}

	return &SPIDevice{f: f}, nil
}

func ioctlPtr(fd uintptr, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

func (d *SPIDevice) Write(p []byte) (int, error) {
	return d.f.Write(p)
}

func (d *SPIDevice) Close() error {
	return d.f.Close()
}
