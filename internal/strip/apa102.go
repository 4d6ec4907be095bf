package strip

import (
	"fmt"
	"io"
)

// APA102 frame layout:
//
//	start frame: 4 × 0x00
//	per LED:     0b111xxxxx (5-bit global brightness), blue, green, red
//	end frame:   (n+14)/16 × 0x00, enough clock edges to push data to the last LED
const (
	apa102StartFrameLen = 4
	apa102LEDHeader     = 0xE0
)

// EncodedLen returns the number of bytes Encode produces for n pixels.
func EncodedLen(n int) int {
	return apa102StartFrameLen + 4*n + endFrameLen(n)
}

func endFrameLen(n int) int {
	return (n + 14) / 16
}

// Encode serializes a frame into the APA102 wire format.
// Brightness above MaxBrightness is clamped.
func Encode(f Frame) []byte {
	return AppendEncode(make([]byte, 0, EncodedLen(len(f.Pixels))), f)
}

// AppendEncode appends the encoded frame to buf, reusing its capacity.
func AppendEncode(buf []byte, f Frame) []byte {
	b := f.Brightness
	if b > MaxBrightness {
		b = MaxBrightness
	}

	buf = append(buf, 0, 0, 0, 0)
	for _, p := range f.Pixels {
		buf = append(buf, apa102LEDHeader|b, p.B, p.G, p.R)
	}
	for i := 0; i < endFrameLen(len(f.Pixels)); i++ {
		buf = append(buf, 0)
	}
	return buf
}

// Renderer transmits frames to a display.
type Renderer interface {
	Write(f Frame) error
}

// APA102 writes encoded frames to an underlying byte stream, such as a spidev
// device. Each frame goes out in a single Write call.
type APA102 struct {
	w   io.Writer
	buf []byte
}

// NewAPA102 wraps w.
func NewAPA102(w io.Writer) *APA102 {
	return &APA102{w: w}
}

func (a *APA102) Write(f Frame) error {
	a.buf = AppendEncode(a.buf[:0], f)
	n, err := a.w.Write(a.buf)
	if err != nil {
		return fmt.Errorf("apa102 write: %w", err)
	}
	if n != len(a.buf) {
		return fmt.Errorf("apa102 write: %w (%d of %d bytes)", io.ErrShortWrite, n, len(a.buf))
	}
	return nil
}

// Discard accepts and drops every frame.
type Discard struct{}

func (Discard) Write(Frame) error { return nil }
