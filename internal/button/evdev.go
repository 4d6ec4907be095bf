package button

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
)

// Linux input event types and values (from <linux/input.h>).
const (
	evKey = 0x01

	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2

	// DefaultKeyCode is BTN_0, what gpio-keys reports for a single push button.
	DefaultKeyCode = 0x100
)

// inputEvent mirrors struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; }.
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

var inputEventSize = binary.Size(inputEvent{})

// ErrReaderStopped is returned by Evdev.Read once the device reader has exited.
var ErrReaderStopped = errors.New("evdev reader stopped")

// keyState tracks the level of one key from a stream of input events.
type keyState struct {
	code    uint16
	pressed atomic.Bool

	mu  sync.Mutex
	err error
}

// apply folds one event into the tracked level.
// Repeats count as pressed so a missed press event self-heals.
func (k *keyState) apply(ev inputEvent) {
	if ev.Type != evKey || ev.Code != k.code {
		return
	}
	switch ev.Value {
	case evValuePress, evValueRepeat:
		k.pressed.Store(true)
	case evValueRelease:
		k.pressed.Store(false)
	}
}

// decode parses every complete event in buf into k.
func (k *keyState) decode(buf []byte) {
	reader := bytes.NewReader(nil)
	for len(buf) >= inputEventSize {
		reader.Reset(buf[:inputEventSize])
		buf = buf[inputEventSize:]

		var ev inputEvent
		if err := binary.Read(reader, binary.LittleEndian, &ev); err != nil {
			// Skip malformed events
			continue
		}
		k.apply(ev)
	}
}

func (k *keyState) fail(err error) {
	k.mu.Lock()
	if k.err == nil {
		k.err = err
	}
	k.mu.Unlock()
}

func (k *keyState) read() (bool, error) {
	k.mu.Lock()
	err := k.err
	k.mu.Unlock()
	if err != nil {
		return false, err
	}
	return k.pressed.Load(), nil
}
