package motion

// Direction is the sign of the applied acceleration.
type Direction int

const (
	Forward  Direction = 1
	Backward Direction = -1
)

// Integrate advances speed and position from s.LastTime to now.
//
// Position uses the speed from before this step (semi-implicit update):
//
//	speed'    = speed + dir·A·dt
//	position' = position + speed·dt + ½·dir·A·dt²
//
// dt is computed with wrapping subtraction; dt == 0 leaves speed and position
// unchanged. Mode and ModeStartTime are carried over untouched.
func Integrate(s State, now Millis, dir Direction, cfg Config) State {
	dt := float64(now.Since(s.LastTime))
	a := float64(dir) * cfg.Acceleration

	next := s
	next.Speed = s.Speed + a*dt
	next.Position = s.Position + s.Speed*dt + 0.5*a*dt*dt
	next.Terminal = next.Speed > cfg.TerminalVelocity
	next.LastTime = now
	return next
}
