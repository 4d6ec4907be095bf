// Package strip maps motion states to pixel frames and transmits them to an
// APA102 LED strip.
package strip

import (
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"bouncelight/internal/motion"
)

// RGB is one pixel color.
type RGB struct {
	R uint8 `json:"r" yaml:"r"`
	G uint8 `json:"g" yaml:"g"`
	B uint8 `json:"b" yaml:"b"`
}

func (c RGB) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseRGB parses the "#rrggbb" form produced by String.
func ParseRGB(s string) (RGB, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "#"))
	if err != nil || len(b) != 3 || !strings.HasPrefix(s, "#") {
		return RGB{}, fmt.Errorf("invalid color %q", s)
	}
	return RGB{R: b[0], G: b[1], B: b[2]}, nil
}

// Off is an unlit pixel.
var Off = RGB{}

// Reference palette.
var (
	DefaultMotionColor = RGB{R: 29, G: 106, B: 177}
	DefaultImpactColor = RGB{R: 220, G: 127, B: 31}
)

const (
	DefaultLength           = 5
	DefaultMotionBrightness = 4
	DefaultImpactBrightness = 8

	// MaxBrightness is the largest value the APA102 global brightness field holds.
	MaxBrightness = 31
)

// Config describes the strip and its palette.
type Config struct {
	Length           int
	MotionColor      RGB
	ImpactColor      RGB
	MotionBrightness uint8
	ImpactBrightness uint8
}

// DefaultConfig returns the reference five-pixel strip.
func DefaultConfig() Config {
	return Config{
		Length:           DefaultLength,
		MotionColor:      DefaultMotionColor,
		ImpactColor:      DefaultImpactColor,
		MotionBrightness: DefaultMotionBrightness,
		ImpactBrightness: DefaultImpactBrightness,
	}
}

// Frame is one complete strip update.
type Frame struct {
	Pixels     []RGB `json:"pixels"`
	Brightness uint8 `json:"brightness"`
}

// Lit returns the indexes of all non-black pixels.
func (f Frame) Lit() []int {
	var lit []int
	for i, p := range f.Pixels {
		if p != Off {
			lit = append(lit, i)
		}
	}
	return lit
}

// Render maps a state to a frame.
//
// A terminal state fills the whole strip with the impact color. Otherwise a
// single pixel at floor(position) mod length is lit with the motion color.
// Render keeps no memory between calls and always allocates a fresh frame.
func Render(s motion.State, cfg Config) Frame {
	n := cfg.Length
	if n < 1 {
		n = 1
	}
	f := Frame{Pixels: make([]RGB, n)}

	if s.Terminal {
		for i := range f.Pixels {
			f.Pixels[i] = cfg.ImpactColor
		}
		f.Brightness = cfg.ImpactBrightness
		return f
	}

	f.Pixels[PixelIndex(s.Position, n)] = cfg.MotionColor
	f.Brightness = cfg.MotionBrightness
	return f
}

// PixelIndex quantizes a continuous position onto a strip of length n.
// Negative positions wrap from the far end.
func PixelIndex(position float64, n int) int {
	if n < 1 || math.IsNaN(position) || math.IsInf(position, 0) {
		return 0
	}
	i := math.Mod(math.Floor(position), float64(n))
	if i < 0 {
		i += float64(n)
	}
	return int(i)
}
