//go:build linux

package button

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	keyMax = 0x2ff

	// EVIOCGKEY(len): _IOC(_IOC_READ, 'E', 0x18, len)
	eviocgKey = 2<<30 | ((keyMax+7)/8)<<16 | 'E'<<8 | 0x18

	// epoll wait timeout so Run notices cancellation.
	pollTimeoutMS = 100
)

// Evdev samples a key from a Linux input event device (/dev/input/eventN).
//
// Run must be started in its own goroutine; it follows press and release
// events with epoll and keeps the latest level for Read.
type Evdev struct {
	f   *os.File
	key keyState
}

// OpenEvdev opens the device and seeds the key level from the kernel's
// current key bitmap so a button held at startup reads as pressed.
func OpenEvdev(path string, code uint16) (*Evdev, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open input device: %w", err)
	}
	e := &Evdev{f: f, key: keyState{code: code}}

	var bits [(keyMax + 7) / 8]byte
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), eviocgKey, uintptr(unsafe.Pointer(&bits[0])))
	if errno == 0 && int(code) <= keyMax {
		e.key.pressed.Store(bits[code/8]&(1<<(code%8)) != 0)
	}

	return e, nil
}

func (e *Evdev) Read() (bool, error) {
	return e.key.read()
}

// Run reads events until ctx is canceled or the device fails.
// A device failure is also surfaced through Read.
func (e *Evdev) Run(ctx context.Context) error {
	err := e.run(ctx)
	if err != nil {
		e.key.fail(fmt.Errorf("%w: %v", ErrReaderStopped, err))
	} else {
		e.key.fail(ErrReaderStopped)
	}
	return err
}

func (e *Evdev) run(ctx context.Context) error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	// Fd switches the descriptor to blocking mode; the drain loop needs it non-blocking.
	fd := int(e.f.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("set nonblock fd=%d: %w", fd, err)
	}
	event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &event); err != nil {
		return fmt.Errorf("epoll_ctl_add fd=%d: %w", fd, err)
	}

	events := make([]unix.EpollEvent, 1)
	buf := make([]byte, inputEventSize*16)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := unix.EpollWait(epfd, events, pollTimeoutMS)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return fmt.Errorf("epoll_wait: %w", err)
		}
		if n == 0 {
			continue
		}

		if events[0].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			return fmt.Errorf("device error/hangup: %s", e.f.Name())
		}

		// Drain everything available; the fd is non-blocking.
		for {
			m, err := unix.Read(fd, buf)
			if err != nil {
				if errors.Is(err, unix.EAGAIN) {
					break
				}
				if errors.Is(err, syscall.EINTR) {
					continue
				}
				return fmt.Errorf("read from %s: %w", e.f.Name(), err)
			}
			if m == 0 {
				return fmt.Errorf("read from %s: unexpected EOF", e.f.Name())
			}
			e.key.decode(buf[:m])
		}
	}
}

func (e *Evdev) Close() error {
	return e.f.Close()
}
