package terminal

import (
	"strings"
	"testing"
	"time"

	"github.com/mil-ad/duploctl/input"
)

func newTestPins(now *time.Time) *Pins {
	p := New()
	p.now = func() time.Time { return *now }
	return p
}

func TestPins_Potentiometer(t *testing.T) {
	now := time.Unix(1000, 0)
	p := newTestPins(&now)

	if got := p.ReadAnalog(); got != input.PotMid {
		t.Fatalf("ReadAnalog() = %d, want %d", got, input.PotMid)
	}

	p.Key([]byte("\x1b[C"))
	if got := p.ReadAnalog(); got != input.PotMid+Step {
		t.Errorf("after right arrow ReadAnalog() = %d, want %d", got, input.PotMid+Step)
	}

	for i := 0; i < 32; i++ {
		p.Key([]byte("d"))
	}
	if got := p.ReadAnalog(); got != input.PotMax {
		t.Errorf("ReadAnalog() = %d, want saturation at %d", got, input.PotMax)
	}

	for i := 0; i < 32; i++ {
		p.Key([]byte("\x1b[D"))
	}
	if got := p.ReadAnalog(); got != input.PotMin {
		t.Errorf("ReadAnalog() = %d, want saturation at %d", got, input.PotMin)
	}

	p.Key([]byte(" "))
	if got := p.ReadAnalog(); got != input.PotMid {
		t.Errorf("after centre ReadAnalog() = %d, want %d", got, input.PotMid)
	}
}

func TestPins_ButtonHold(t *testing.T) {
	now := time.Unix(1000, 0)
	p := newTestPins(&now)

	p.Key([]byte("2"))
	if !p.ReadButton(input.ButtonColor) {
		t.Fatal("color button not held after key press")
	}
	if p.ReadButton(input.ButtonHorn) {
		t.Error("horn button held without key press")
	}

	now = now.Add(input.DebounceTime)
	if !p.ReadButton(input.ButtonColor) {
		t.Error("button released before the debounce time passed")
	}

	now = now.Add(holdTime)
	if p.ReadButton(input.ButtonColor) {
		t.Error("button still held after hold time")
	}
}

func TestPins_DebouncedPress(t *testing.T) {
	now := time.Unix(1000, 0)
	p := newTestPins(&now)

	var d input.Debouncer
	p.Key([]byte("1"))
	presses := 0
	for i := 0; i < 30; i++ {
		if d.Update(p.ReadButton(input.ButtonHorn), now) {
			presses++
		}
		now = now.Add(10 * time.Millisecond)
	}
	if presses != 1 {
		t.Errorf("presses = %d, want 1", presses)
	}
}

func TestPins_ReadFrom(t *testing.T) {
	p := New()
	if err := p.ReadFrom(strings.NewReader("dq")); err != nil {
		t.Fatalf("ReadFrom() error = %v", err)
	}
	select {
	case <-p.Quit():
	default:
		t.Fatal("Quit() not closed after q")
	}
	if got := p.ReadAnalog(); got != input.PotMid+Step {
		t.Errorf("ReadAnalog() = %d, want %d", got, input.PotMid+Step)
	}
}

func TestSplitKeys(t *testing.T) {
	got := splitKeys([]byte("a\x1b[C1\x1b"))
	want := []string{"a", "\x1b[C", "1", "\x1b"}
	if len(got) != len(want) {
		t.Fatalf("splitKeys() = %q, want %q", got, want)
	}
	for i := range want {
		if string(got[i]) != want[i] {
			t.Errorf("key %d = %q, want %q", i, got[i], want[i])
		}
	}
}
