package motion

// Step computes the snapshot for one tick.
//
// It dispatches on s.Mode; each handler evaluates its transition conditions in
// order and the first match wins. Step never fails and never blocks.
func Step(s State, now Millis, pressed bool, cfg Config) State {
	switch s.Mode {
	case Accelerate:
		return stepAccelerate(s, now, pressed, cfg)
	case Friction:
		return stepFriction(s, now, pressed, cfg)
	case Explode:
		return stepExplode(s, now, cfg)
	default:
		return stepIdle(s, now, pressed)
	}
}

// stepIdle holds the light at rest until the button is pressed.
func stepIdle(s State, now Millis, pressed bool) State {
	next := s
	next.Speed = 0
	next.Terminal = false
	next.LastTime = now

	if pressed {
		return next.enter(Accelerate, now)
	}
	// An out-of-range mode value lands here and is normalized.
	next.Mode = Idle
	return next
}

func stepAccelerate(s State, now Millis, pressed bool, cfg Config) State {
	next := Integrate(s, now, Forward, cfg)

	// Terminal velocity beats a simultaneous release.
	if next.Terminal {
		return next.enter(Explode, now)
	}
	if !pressed {
		return next.enter(Friction, now)
	}
	return next
}

func stepFriction(s State, now Millis, pressed bool, cfg Config) State {
	next := Integrate(s, now, Backward, cfg)

	if next.Speed < 0 {
		return next.enter(Idle, now)
	}
	if pressed {
		return next.enter(Accelerate, now)
	}
	return next
}

// stepExplode freezes physics until the explosion has run its course.
// The hand-off to Idle leaves position and speed as they are; Idle's own
// reset clears them on the following tick.
func stepExplode(s State, now Millis, cfg Config) State {
	if now.Since(s.ModeStartTime) > cfg.ExplodeDuration {
		s.Mode = Idle
	}
	return s
}

// Changed reports whether a tick moved the machine to a different mode.
func Changed(prev, next State) bool {
	return prev.Mode != next.Mode
}
