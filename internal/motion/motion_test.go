package motion

import (
	"encoding/json"
	"math"
	"testing"
)

const eps = 1e-12

func approx(a, b float64) bool {
	return math.Abs(a-b) < eps
}

// exactConfig uses binary-exact constants so threshold comparisons are precise.
func exactConfig() Config {
	return Config{
		Acceleration:     0.5,
		TerminalVelocity: 1.0,
		ExplodeDuration:  1500,
	}
}

func TestMillis_SinceWrapsAround(t *testing.T) {
	last := Millis(math.MaxUint32 - 9)
	now := Millis(10)
	if got := now.Since(last); got != 20 {
		t.Fatalf("expected 20ms across wraparound, got %d", got)
	}
	if got := Millis(500).Since(500); got != 0 {
		t.Fatalf("expected 0ms for identical timestamps, got %d", got)
	}
}

func TestNewState_RestingDefaults(t *testing.T) {
	s := NewState(42)
	if s.Mode != Idle || s.Position != 0 || s.Speed != 0 || s.Terminal {
		t.Fatalf("unexpected initial state: %+v", s)
	}
	if s.LastTime != 42 || s.ModeStartTime != 42 {
		t.Fatalf("expected both timestamps = 42, got last=%d start=%d", s.LastTime, s.ModeStartTime)
	}
}

func TestIntegrate_ReferenceStep(t *testing.T) {
	cfg := DefaultConfig()
	s := State{Mode: Accelerate}

	next := Integrate(s, 1000, Forward, cfg)

	if !approx(next.Speed, 0.009) {
		t.Errorf("expected speed 0.009, got %v", next.Speed)
	}
	if !approx(next.Position, 4.5) {
		t.Errorf("expected position 4.5, got %v", next.Position)
	}
	if next.Terminal {
		t.Errorf("expected terminal=false at 0.009 px/ms")
	}
	if next.LastTime != 1000 {
		t.Errorf("expected last time 1000, got %d", next.LastTime)
	}
	if next.Mode != Accelerate {
		t.Errorf("integrate must not change mode, got %v", next.Mode)
	}
}

func TestIntegrate_UsesPreUpdateSpeedForPosition(t *testing.T) {
	cfg := exactConfig()
	s := State{Position: 1, Speed: 0.25, LastTime: 0}

	next := Integrate(s, 2, Forward, cfg)

	// speed' = 0.25 + 0.5*2 = 1.25
	// pos'   = 1 + 0.25*2 + 0.5*0.5*4 = 2.5
	if next.Speed != 1.25 {
		t.Errorf("expected speed 1.25, got %v", next.Speed)
	}
	if next.Position != 2.5 {
		t.Errorf("expected position 2.5, got %v", next.Position)
	}
}

func TestIntegrate_BackwardDecelerates(t *testing.T) {
	cfg := exactConfig()
	s := State{Position: 3, Speed: 1, LastTime: 10}

	next := Integrate(s, 11, Backward, cfg)

	if next.Speed != 0.5 {
		t.Errorf("expected speed 0.5, got %v", next.Speed)
	}
	// 3 + 1*1 - 0.5*0.5*1 = 3.75
	if next.Position != 3.75 {
		t.Errorf("expected position 3.75, got %v", next.Position)
	}
}

func TestIntegrate_ZeroDeltaIsNoOp(t *testing.T) {
	cfg := DefaultConfig()
	s := State{Position: 2.75, Speed: 0.03, LastTime: 900}

	for _, dir := range []Direction{Forward, Backward} {
		next := Integrate(s, 900, dir, cfg)
		if next.Speed != s.Speed || next.Position != s.Position {
			t.Errorf("dir=%d: expected unchanged speed/position, got %+v", dir, next)
		}
		if math.IsNaN(next.Speed) || math.IsNaN(next.Position) {
			t.Errorf("dir=%d: NaN after zero delta", dir)
		}
	}
}

func TestIntegrate_WraparoundDelta(t *testing.T) {
	cfg := exactConfig()
	s := State{LastTime: Millis(math.MaxUint32)} // one ms before wrap

	next := Integrate(s, 1, Forward, cfg) // dt = 2

	if next.Speed != 1.0 {
		t.Errorf("expected speed 1.0 after 2ms across wrap, got %v", next.Speed)
	}
}

func TestStep_IdleStaysIdleWithoutPress(t *testing.T) {
	cfg := DefaultConfig()
	cases := []State{
		{Mode: Idle},
		{Mode: Idle, Position: 3.2, Speed: 0.05, Terminal: true, LastTime: 7, ModeStartTime: 3},
		{Mode: Idle, Position: -1, Speed: -0.01, LastTime: math.MaxUint32},
	}
	for i, s := range cases {
		next := Step(s, 100, false, cfg)
		if next.Mode != Idle {
			t.Errorf("case %d: expected Idle, got %v", i, next.Mode)
		}
		if next.Speed != 0 || next.Terminal {
			t.Errorf("case %d: expected speed=0 terminal=false, got %+v", i, next)
		}
		if next.Position != s.Position {
			t.Errorf("case %d: expected position held at %v, got %v", i, s.Position, next.Position)
		}
		if next.LastTime != 100 {
			t.Errorf("case %d: expected last time 100, got %d", i, next.LastTime)
		}
		if next.ModeStartTime != s.ModeStartTime {
			t.Errorf("case %d: mode start must not move while idle", i)
		}
	}
}

func TestStep_IdlePressEntersAccelerate(t *testing.T) {
	s := NewState(0)
	next := Step(s, 250, true, DefaultConfig())

	if next.Mode != Accelerate {
		t.Fatalf("expected Accelerate, got %v", next.Mode)
	}
	if next.ModeStartTime != 250 || next.LastTime != 250 {
		t.Fatalf("expected mode start and last time = 250, got %+v", next)
	}
	if next.Speed != 0 {
		t.Fatalf("expected no motion on the entering tick, got speed %v", next.Speed)
	}
}

func TestStep_AccelerateTerminalThresholdIsStrict(t *testing.T) {
	cfg := exactConfig()
	s := State{Mode: Accelerate, LastTime: 0, ModeStartTime: 0}

	// 0.5 * 2 = 1.0 exactly: not above terminal velocity.
	s = Step(s, 2, true, cfg)
	if s.Mode != Accelerate || s.Terminal {
		t.Fatalf("speed == terminal velocity must not explode, got %+v", s)
	}

	s = Step(s, 3, true, cfg)
	if s.Mode != Explode {
		t.Fatalf("expected Explode once speed exceeds terminal velocity, got %v (speed %v)", s.Mode, s.Speed)
	}
	if !s.Terminal {
		t.Fatalf("expected terminal flag set")
	}
	if s.ModeStartTime != 3 {
		t.Fatalf("expected explode start at 3, got %d", s.ModeStartTime)
	}
}

func TestStep_AccelerateExplodesOnFirstTickAboveReferenceTerminal(t *testing.T) {
	cfg := DefaultConfig()
	s := Step(NewState(0), 0, true, cfg)

	var now Millis
	for s.Mode == Accelerate {
		now += 10
		prevSpeed := s.Speed
		s = Step(s, now, true, cfg)
		if s.Mode == Accelerate && s.Speed > cfg.TerminalVelocity {
			t.Fatalf("speed %v above terminal without exploding", s.Speed)
		}
		if s.Mode == Explode && prevSpeed > cfg.TerminalVelocity {
			t.Fatalf("explosion happened late")
		}
		if now > 100000 {
			t.Fatalf("never reached terminal velocity")
		}
	}
	if s.Mode != Explode {
		t.Fatalf("expected Explode, got %v", s.Mode)
	}
}

func TestStep_TerminalBeatsRelease(t *testing.T) {
	cfg := exactConfig()
	s := State{Mode: Accelerate, Speed: 0.9, LastTime: 0}

	next := Step(s, 1, false, cfg)
	if next.Mode != Explode {
		t.Fatalf("expected Explode to win over release, got %v", next.Mode)
	}
}

func TestStep_AccelerateReleaseEntersFriction(t *testing.T) {
	cfg := exactConfig()
	s := State{Mode: Accelerate, LastTime: 0, ModeStartTime: 0}

	next := Step(s, 1, false, cfg)
	if next.Mode != Friction {
		t.Fatalf("expected Friction, got %v", next.Mode)
	}
	if next.ModeStartTime != 1 {
		t.Fatalf("expected friction start at 1, got %d", next.ModeStartTime)
	}
	if next.Speed != 0.5 {
		t.Fatalf("the releasing tick still integrates forward, got speed %v", next.Speed)
	}
}

func TestStep_Friction(t *testing.T) {
	cfg := exactConfig()

	tests := []struct {
		name      string
		speed     float64
		dt        Millis
		pressed   bool
		wantMode  Mode
		wantSpeed float64
	}{
		{name: "coasting", speed: 1.0, dt: 1, pressed: false, wantMode: Friction, wantSpeed: 0.5},
		{name: "exactly stopped stays", speed: 0.5, dt: 1, pressed: false, wantMode: Friction, wantSpeed: 0},
		{name: "reversal goes idle", speed: 0.25, dt: 1, pressed: false, wantMode: Idle, wantSpeed: -0.25},
		{name: "reversal beats press", speed: 0.25, dt: 1, pressed: true, wantMode: Idle, wantSpeed: -0.25},
		{name: "press re-accelerates", speed: 1.0, dt: 1, pressed: true, wantMode: Accelerate, wantSpeed: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := State{Mode: Friction, Speed: tt.speed, LastTime: 100, ModeStartTime: 50}
			next := Step(s, 100+tt.dt, tt.pressed, cfg)

			if next.Mode != tt.wantMode {
				t.Fatalf("expected %v, got %v", tt.wantMode, next.Mode)
			}
			if next.Speed != tt.wantSpeed {
				t.Fatalf("expected speed %v, got %v", tt.wantSpeed, next.Speed)
			}
			wantStart := Millis(50)
			if tt.wantMode != Friction {
				wantStart = 100 + tt.dt
			}
			if next.ModeStartTime != wantStart {
				t.Fatalf("expected mode start %d, got %d", wantStart, next.ModeStartTime)
			}
		})
	}
}

func TestStep_ExplodeDuration(t *testing.T) {
	cfg := DefaultConfig()
	t0 := Millis(10000)
	s := State{Mode: Explode, Position: 12.5, Speed: 0.08, Terminal: true, LastTime: t0, ModeStartTime: t0}

	for _, now := range []Millis{t0, t0 + 1, t0 + 750, t0 + 1500} {
		next := Step(s, now, true, cfg)
		if next != s {
			t.Fatalf("now=%d: expected frozen explode state, got %+v", now, next)
		}
	}

	next := Step(s, t0+1501, false, cfg)
	if next.Mode != Idle {
		t.Fatalf("expected Idle after 1501ms, got %v", next.Mode)
	}
	if next.Position != s.Position || next.Speed != s.Speed || !next.Terminal || next.LastTime != t0 {
		t.Fatalf("hand-off must leave physics untouched, got %+v", next)
	}

	// The following Idle tick performs the abrupt reset.
	after := Step(next, t0+1502, false, cfg)
	if after.Terminal || after.Speed != 0 || after.Mode != Idle {
		t.Fatalf("expected idle reset, got %+v", after)
	}
}

func TestStep_ExplodeAcrossWraparound(t *testing.T) {
	cfg := DefaultConfig()
	t0 := Millis(math.MaxUint32 - 999)
	s := State{Mode: Explode, Terminal: true, ModeStartTime: t0, LastTime: t0}

	if next := Step(s, 500, false, cfg); next.Mode != Explode { // elapsed 1500
		t.Fatalf("expected Explode at exactly 1500ms across wrap, got %v", next.Mode)
	}
	if next := Step(s, 501, false, cfg); next.Mode != Idle {
		t.Fatalf("expected Idle at 1501ms across wrap, got %v", next.Mode)
	}
}

func TestStep_FullCycle(t *testing.T) {
	cfg := DefaultConfig()
	s := NewState(0)
	var now Millis
	seen := map[Mode]bool{}

	tick := func(pressed bool) {
		now++
		prev := s
		s = Step(s, now, pressed, cfg)
		if Changed(prev, s) {
			seen[s.Mode] = true
		}
	}

	tick(true)
	for i := 0; i < 2000 && s.Mode == Accelerate; i++ {
		tick(false)
	}
	for i := 0; i < 200000 && s.Mode == Friction; i++ {
		tick(false)
	}
	if s.Mode != Idle {
		t.Fatalf("expected to come to rest, got %v", s.Mode)
	}
	for i := 0; i < 100000 && s.Mode != Explode; i++ {
		tick(true)
	}
	for i := 0; i < 2000 && s.Mode == Explode; i++ {
		tick(true)
	}

	for _, m := range []Mode{Accelerate, Friction, Idle, Explode} {
		if !seen[m] {
			t.Errorf("mode %v never entered", m)
		}
	}
}

func TestMode_TextRoundTrip(t *testing.T) {
	b, err := json.Marshal(State{Mode: Friction})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var s State
	if err := json.Unmarshal(b, &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.Mode != Friction {
		t.Fatalf("expected friction, got %v", s.Mode)
	}
	if _, err := ParseMode("warp"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
	if got := Mode(9).String(); got != "mode(9)" {
		t.Fatalf("unexpected String for unknown mode: %q", got)
	}
}
