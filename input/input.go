// Package input turns the remote's potentiometer and buttons into commands.
package input

import (
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mil-ad/duploctl/command"
)

// Potentiometer range of a 12-bit ADC. Readings within PotDeadBand of PotMid
// stop the vehicle.
const (
	PotMin      = 0
	PotMax      = 4095
	PotMid      = 2048
	PotDeadBand = 200
)

// DebounceTime is how long a raw button level must hold before it counts.
const DebounceTime = 50 * time.Millisecond

// Button identifies one of the remote's momentary buttons.
type Button uint8

const (
	ButtonHorn Button = iota
	ButtonColor
	ButtonDepart
	ButtonWater

	ButtonCount
)

func (b Button) String() string {
	switch b {
	case ButtonHorn:
		return "horn"
	case ButtonColor:
		return "color"
	case ButtonDepart:
		return "depart"
	case ButtonWater:
		return "water"
	}
	return "unknown"
}

// Pins is the raw hardware the sampler reads each tick.
type Pins interface {
	// ReadAnalog returns the potentiometer position in [PotMin, PotMax].
	// Values outside that range are saturated.
	ReadAnalog() int

	// ReadButton returns the undebounced level of b, true while held down.
	ReadButton(b Button) bool
}

// SpeedFromAnalog maps a potentiometer reading to a signed speed percentage.
// The lower segment [PotMin, PotMid-PotDeadBand) maps onto [SpeedMin, 0) and
// the upper segment (PotMid+PotDeadBand, PotMax] onto (0, SpeedMax].
func SpeedFromAnalog(raw int) int8 {
	if raw < PotMin {
		raw = PotMin
	}
	if raw > PotMax {
		raw = PotMax
	}

	lo, hi := PotMid-PotDeadBand, PotMid+PotDeadBand
	switch {
	case raw < lo:
		return int8(scale(raw, PotMin, lo, command.SpeedMin, 0))
	case raw > hi:
		return int8(scale(raw, hi, PotMax, 0, command.SpeedMax))
	}
	return 0
}

// scale linearly maps x from [inMin, inMax] to [outMin, outMax] using integer
// arithmetic. x-inMin is never negative, so division floors and the result is
// monotonic.
func scale(x, inMin, inMax, outMin, outMax int) int {
	return (x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
}

// Debouncer filters one button. A level change is accepted once the raw level
// has stayed the same for DebounceTime.
type Debouncer struct {
	stable   bool
	raw      bool
	rawSince time.Time
}

// Update feeds the current raw level and reports whether a press (released
// to pressed transition) was accepted on this call.
func (d *Debouncer) Update(pressed bool, now time.Time) bool {
	if pressed != d.raw {
		d.raw = pressed
		d.rawSince = now
		return false
	}
	if d.raw == d.stable || now.Sub(d.rawSince) < DebounceTime {
		return false
	}
	d.stable = d.raw
	return d.stable
}

// Sampler reads Pins once per tick and writes changes into a command.Store.
type Sampler struct {
	l       hclog.Logger
	pins    Pins
	store   *command.Store
	buttons [ButtonCount]Debouncer

	lastSpeed int8
}

func NewSampler(pins Pins, store *command.Store, l hclog.Logger) *Sampler {
	return &Sampler{
		l:     l.Named("input"),
		pins:  pins,
		store: store,
	}
}

// Sample reads the potentiometer and buttons and records any resulting
// commands.
func (s *Sampler) Sample(now time.Time) {
	speed := SpeedFromAnalog(s.pins.ReadAnalog())
	if speed != s.lastSpeed {
		s.lastSpeed = speed
		s.store.SetSpeed(speed)
		s.l.Info("speed changed", "speed", speed)
	}

	for b := Button(0); b < ButtonCount; b++ {
		if !s.buttons[b].Update(s.pins.ReadButton(b), now) {
			continue
		}
		switch b {
		case ButtonHorn:
			s.store.TriggerSound(command.SoundHorn)
		case ButtonColor:
			s.l.Info("indicator color", "color", s.store.CycleColor())
			continue
		case ButtonDepart:
			s.store.TriggerSound(command.SoundDepart)
		case ButtonWater:
			s.store.TriggerSound(command.SoundWaterRefill)
		}
		s.l.Info("button pressed", "button", b)
	}
}
