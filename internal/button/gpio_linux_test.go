//go:build linux

package button

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGPIO_ReadsValueFileEachTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "value")
	if err := os.WriteFile(path, []byte("0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	g, err := OpenGPIO(path, false)
	if err != nil {
		t.Fatalf("OpenGPIO: %v", err)
	}
	defer g.Close()

	if p, err := g.Read(); err != nil || p {
		t.Fatalf("expected released, got (%v, %v)", p, err)
	}

	if err := os.WriteFile(path, []byte("1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if p, err := g.Read(); err != nil || !p {
		t.Fatalf("expected pressed after value change, got (%v, %v)", p, err)
	}
}

func TestGPIO_ActiveLow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "value")
	if err := os.WriteFile(path, []byte("0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	g, err := OpenGPIO(path, true)
	if err != nil {
		t.Fatalf("OpenGPIO: %v", err)
	}
	defer g.Close()

	if p, err := g.Read(); err != nil || !p {
		t.Fatalf("active-low pin at 0 must read pressed, got (%v, %v)", p, err)
	}
}
