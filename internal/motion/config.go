package motion

// Default tuning, matching the reference hardware build.
const (
	DefaultAcceleration     = 0.000009 // pixels/ms²
	DefaultTerminalVelocity = 0.07     // pixels/ms
	DefaultExplodeDuration  = Millis(1500)
)

// Config holds the constants of the kinematic model.
type Config struct {
	// Acceleration is the magnitude A applied while accelerating or under friction.
	Acceleration float64

	// TerminalVelocity is the speed above which the light explodes.
	TerminalVelocity float64

	// ExplodeDuration is how long Explode lasts. The boundary is exclusive:
	// a tick landing exactly at ExplodeDuration stays in Explode.
	ExplodeDuration Millis
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		Acceleration:     DefaultAcceleration,
		TerminalVelocity: DefaultTerminalVelocity,
		ExplodeDuration:  DefaultExplodeDuration,
	}
}
