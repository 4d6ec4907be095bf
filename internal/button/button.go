// Package button provides the digital inputs that drive the light.
//
// A Source is sampled exactly once per tick. There is no debouncing: a read
// reports the instantaneous level.
package button

import "sync/atomic"

// Source reports whether the button is pressed right now.
type Source interface {
	Read() (bool, error)
}

// Latch is a software button. It is safe for concurrent use: IPC handlers or
// a UI goroutine set it while the tick loop reads it.
type Latch struct {
	pressed atomic.Bool
}

func (l *Latch) Read() (bool, error) {
	return l.pressed.Load(), nil
}

// Set forces the latch level.
func (l *Latch) Set(pressed bool) {
	l.pressed.Store(pressed)
}

// Toggle flips the latch and returns the new level.
func (l *Latch) Toggle() bool {
	for {
		old := l.pressed.Load()
		if l.pressed.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Any is pressed while at least one of its sources is pressed. Every source
// is read on each call; the first error wins and the level is discarded.
type Any []Source

func (a Any) Read() (bool, error) {
	pressed := false
	for _, s := range a {
		p, err := s.Read()
		if err != nil {
			return false, err
		}
		pressed = pressed || p
	}
	return pressed, nil
}
