package button

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
)

func encodeEvents(t *testing.T, evs ...inputEvent) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, ev := range evs {
		if err := binary.Write(&buf, binary.LittleEndian, ev); err != nil {
			t.Fatalf("encode event: %v", err)
		}
	}
	return buf.Bytes()
}

func TestLatch_SetToggle(t *testing.T) {
	var l Latch
	if p, _ := l.Read(); p {
		t.Fatalf("zero latch must read released")
	}
	l.Set(true)
	if p, _ := l.Read(); !p {
		t.Fatalf("expected pressed after Set(true)")
	}
	if got := l.Toggle(); got {
		t.Fatalf("expected toggle to release")
	}
	if got := l.Toggle(); !got {
		t.Fatalf("expected toggle to press")
	}
}

func TestLatch_ConcurrentToggles(t *testing.T) {
	var l Latch
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Toggle()
		}()
	}
	wg.Wait()
	if p, _ := l.Read(); p {
		t.Fatalf("an even number of toggles must leave the latch released")
	}
}

func TestKeyState_FollowsPressAndRelease(t *testing.T) {
	k := keyState{code: DefaultKeyCode}

	steps := []struct {
		ev   inputEvent
		want bool
	}{
		{inputEvent{Type: evKey, Code: DefaultKeyCode, Value: evValuePress}, true},
		{inputEvent{Type: evKey, Code: DefaultKeyCode + 1, Value: evValueRelease}, true}, // other key
		{inputEvent{Type: 0x00, Code: 0, Value: 0}, true},                                // EV_SYN
		{inputEvent{Type: evKey, Code: DefaultKeyCode, Value: evValueRelease}, false},
		{inputEvent{Type: evKey, Code: DefaultKeyCode, Value: evValueRepeat}, true},
	}

	for i, st := range steps {
		k.decode(encodeEvents(t, st.ev))
		if got, err := k.read(); err != nil || got != st.want {
			t.Fatalf("step %d: got (%v, %v), want %v", i, got, err, st.want)
		}
	}
}

func TestKeyState_DecodeBatchAndPartial(t *testing.T) {
	k := keyState{code: DefaultKeyCode}
	buf := encodeEvents(t,
		inputEvent{Type: evKey, Code: DefaultKeyCode, Value: evValuePress},
		inputEvent{Type: evKey, Code: DefaultKeyCode, Value: evValueRelease},
		inputEvent{Type: evKey, Code: DefaultKeyCode, Value: evValuePress},
	)
	// Trailing partial event is ignored.
	k.decode(append(buf, 1, 2, 3))

	if got, _ := k.read(); !got {
		t.Fatalf("expected last complete event (press) to win")
	}
}

func TestKeyState_FailIsSticky(t *testing.T) {
	k := keyState{code: DefaultKeyCode}
	k.pressed.Store(true)
	k.fail(ErrReaderStopped)
	k.fail(errors.New("second"))

	if _, err := k.read(); !errors.Is(err, ErrReaderStopped) {
		t.Fatalf("expected first failure to stick, got %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"1\n", true, false},
		{"0\n", false, false},
		{"1", true, false},
		{"", false, true},
		{"x\n", false, true},
	}
	for _, tt := range tests {
		got, err := parseLevel([]byte(tt.in))
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseLevel(%q) = (%v, %v), want (%v, err=%v)", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

type failingSource struct{ err error }

func (f failingSource) Read() (bool, error) { return false, f.err }

func TestAny(t *testing.T) {
	var a, b Latch
	src := Any{&a, &b}

	if p, err := src.Read(); err != nil || p {
		t.Fatalf("both released: got (%v, %v)", p, err)
	}
	b.Set(true)
	if p, err := src.Read(); err != nil || !p {
		t.Fatalf("one pressed: got (%v, %v)", p, err)
	}

	boom := errors.New("boom")
	a.Set(true)
	if _, err := (Any{&a, failingSource{boom}}).Read(); !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}

	if p, err := (Any{}).Read(); err != nil || p {
		t.Fatalf("empty Any: got (%v, %v)", p, err)
	}
}
