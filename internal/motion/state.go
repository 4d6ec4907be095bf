// Package motion implements the kinematic state machine that drives the light.
//
// The package is pure: Step and Integrate take a State snapshot by value and
// return the next snapshot. Nothing here performs I/O, blocks, or keeps
// package-level state. The tick driver owns the only live State.
package motion

import "fmt"

// Millis is a wrapping millisecond counter, as reported by the TimeSource.
//
// Elapsed time must always be computed with Since so that counter overflow
// still yields the correct non-negative duration.
type Millis uint32

// Since returns the elapsed milliseconds from earlier to t using modular
// unsigned subtraction.
func (t Millis) Since(earlier Millis) Millis {
	return t - earlier
}

// Mode is the active phase of the state machine.
type Mode uint8

const (
	Idle Mode = iota
	Accelerate
	Friction
	Explode
)

var modeNames = [...]string{
	Idle:       "idle",
	Accelerate: "accelerate",
	Friction:   "friction",
	Explode:    "explode",
}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// MarshalText encodes the mode by name (used by JSON snapshots).
func (m Mode) MarshalText() ([]byte, error) {
	if int(m) >= len(modeNames) {
		return nil, fmt.Errorf("unknown mode %d", uint8(m))
	}
	return []byte(modeNames[m]), nil
}

// UnmarshalText decodes a mode name.
func (m *Mode) UnmarshalText(b []byte) error {
	mode, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// ParseMode returns the Mode with the given name.
func ParseMode(name string) (Mode, error) {
	for i, n := range modeNames {
		if n == name {
			return Mode(i), nil
		}
	}
	return Idle, fmt.Errorf("unknown mode %q", name)
}

// State is one immutable snapshot of the light.
type State struct {
	// Position is the continuous pixel index (not yet quantized).
	Position float64 `json:"position"`

	// Speed is in pixels/ms. Positive means moving away from rest.
	Speed float64 `json:"speed"`

	// Terminal is set when the last integration produced Speed > TerminalVelocity.
	// Only entry to Idle clears it.
	Terminal bool `json:"terminal"`

	// LastTime is the timestamp of the previous integrated tick.
	// It is frozen while exploding.
	LastTime Millis `json:"last_time"`

	// ModeStartTime is when the current mode was entered.
	ModeStartTime Millis `json:"mode_start_time"`

	Mode Mode `json:"mode"`
}

// NewState returns the resting state created once at process start.
func NewState(now Millis) State {
	return State{
		Mode:          Idle,
		LastTime:      now,
		ModeStartTime: now,
	}
}

// enter returns s switched to mode m, recording now as the mode start.
func (s State) enter(m Mode, now Millis) State {
	s.Mode = m
	s.ModeStartTime = now
	return s
}
