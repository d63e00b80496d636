// Package terminal emulates the remote's potentiometer and buttons with the
// keyboard, for running the controller on a host without GPIO.
//
// Keys:
//
//	left/right, a/d   move the potentiometer one step
//	s, space          centre the potentiometer
//	1..4              horn, color, departure, water buttons
//	q                 quit
package terminal

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/term"

	"github.com/mil-ad/duploctl/input"
)

// Step is how far one key press moves the potentiometer.
const Step = 256

// holdTime is how long a key press keeps a button down. It must exceed the
// debounce time or presses would be filtered out.
const holdTime = 2 * input.DebounceTime

// Pins implements input.Pins from terminal key presses.
type Pins struct {
	mu       sync.Mutex
	analog   int
	heldTill [input.ButtonCount]time.Time
	now      func() time.Time

	quit     chan struct{}
	quitOnce sync.Once
}

// New returns pins with the potentiometer centred and no button held.
func New() *Pins {
	return &Pins{
		analog: input.PotMid,
		now:    time.Now,
		quit:   make(chan struct{}),
	}
}

func (p *Pins) ReadAnalog() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.analog
}

func (p *Pins) ReadButton(b input.Button) bool {
	if b >= input.ButtonCount {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now().Before(p.heldTill[b])
}

// Quit is closed when the quit key is pressed or the terminal is closed.
func (p *Pins) Quit() <-chan struct{} {
	return p.quit
}

// Key applies one key sequence as read from the terminal.
func (p *Pins) Key(seq []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch string(seq) {
	case "\x1b[D", "a":
		p.move(-Step)
	case "\x1b[C", "d":
		p.move(Step)
	case "s", " ":
		p.analog = input.PotMid
	case "1":
		p.press(input.ButtonHorn)
	case "2":
		p.press(input.ButtonColor)
	case "3":
		p.press(input.ButtonDepart)
	case "4":
		p.press(input.ButtonWater)
	case "q":
		p.stop()
	}
}

func (p *Pins) move(delta int) {
	v := p.analog + delta
	if v < input.PotMin {
		v = input.PotMin
	}
	if v > input.PotMax {
		v = input.PotMax
	}
	p.analog = v
}

func (p *Pins) press(b input.Button) {
	p.heldTill[b] = p.now().Add(holdTime)
}

func (p *Pins) stop() {
	p.quitOnce.Do(func() { close(p.quit) })
}

// ReadFrom feeds key presses from r until it fails or the quit key is
// pressed.
func (p *Pins) ReadFrom(r io.Reader) error {
	buf := make([]byte, 8)
	for {
		n, err := r.Read(buf)
		for _, k := range splitKeys(buf[:n]) {
			p.Key(k)
		}
		if err != nil {
			p.stop()
			if err == io.EOF {
				return nil
			}
			return err
		}
		select {
		case <-p.quit:
			return nil
		default:
		}
	}
}

// splitKeys breaks a read into single keys and three byte escape sequences.
func splitKeys(b []byte) [][]byte {
	var keys [][]byte
	for len(b) > 0 {
		n := 1
		if b[0] == 0x1b && len(b) >= 3 && b[1] == '[' {
			n = 3
		}
		keys = append(keys, b[:n])
		b = b[n:]
	}
	return keys
}

// Open puts the terminal at path into cbreak mode and starts reading keys
// from it. The returned function restores and closes the terminal.
func Open(path string) (*Pins, func() error, error) {
	t, err := term.Open(path, term.CBreakMode)
	if err != nil {
		return nil, nil, fmt.Errorf("open terminal %s: %w", path, err)
	}
	p := New()
	go p.ReadFrom(t)

	closer := func() error {
		if err := t.Restore(); err != nil {
			t.Close()
			return fmt.Errorf("restore terminal: %w", err)
		}
		return t.Close()
	}
	return p, closer, nil
}

var _ input.Pins = (*Pins)(nil)
