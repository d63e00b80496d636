// Package command holds the latest user intent for the vehicle: motor speed,
// indicator color and a pending sound. Each channel carries a dirty flag set
// by producers and cleared by the single consumer that forwards values to the
// hub.
//
// A Store is not safe for concurrent use. Producers and the consumer are
// expected to run on the same goroutine, one after the other, within a tick.
package command

const (
	SpeedMin = -100
	SpeedMax = 100
)

// Color is the indicator color shown by the hub LED.
type Color uint8

// Colors in cycle order.
const (
	Green Color = iota
	Red
	Blue
	Yellow
	Orange
	Purple
	Cyan
	Pink

	ColorCount
)

var colorNames = [ColorCount]string{
	"GREEN", "RED", "BLUE", "YELLOW", "ORANGE", "PURPLE", "CYAN", "PINK",
}

func (c Color) String() string {
	if c >= ColorCount {
		return "???"
	}
	return colorNames[c]
}

// Valid reports whether c is one of the named colors.
func (c Color) Valid() bool {
	return c < ColorCount
}

// Next returns the color following c in the cycle, wrapping after Pink.
// An out-of-range color restarts the cycle at Green.
func (c Color) Next() Color {
	if !c.Valid() {
		return Green
	}
	return (c + 1) % ColorCount
}

// Sound is a one-shot sound effect played by the hub speaker.
type Sound uint8

const (
	SoundNone Sound = iota
	SoundHorn
	SoundDepart
	SoundWaterRefill
)

func (s Sound) String() string {
	switch s {
	case SoundNone:
		return "none"
	case SoundHorn:
		return "horn"
	case SoundDepart:
		return "station-departure"
	case SoundWaterRefill:
		return "water-refill"
	}
	return "???"
}

// Store is the shared command record.
type Store struct {
	speed      int8
	speedDirty bool

	color      Color
	colorDirty bool

	sound      Sound
	soundDirty bool
}

// Snapshot is a read-only copy of a Store.
type Snapshot struct {
	Speed      int8  `json:"speed"`
	SpeedDirty bool  `json:"speed_dirty"`
	Color      Color `json:"color"`
	ColorDirty bool  `json:"color_dirty"`
	Sound      Sound `json:"sound"`
	SoundDirty bool  `json:"sound_dirty"`
}

// NewStore returns a store with speed 0, color Green, no pending sound and
// every flag clear.
func NewStore() *Store {
	return &Store{}
}

// SetSpeed latches v, clamped to [SpeedMin, SpeedMax], and marks it dirty even
// when v equals the stored value.
func (s *Store) SetSpeed(v int8) {
	if v < SpeedMin {
		v = SpeedMin
	}
	if v > SpeedMax {
		v = SpeedMax
	}
	s.speed = v
	s.speedDirty = true
}

// SetColor latches c and marks it dirty.
func (s *Store) SetColor(c Color) {
	s.color = c
	s.colorDirty = true
}

// CycleColor advances the color to the next in the cycle, marks it dirty and
// returns the new color.
func (s *Store) CycleColor() Color {
	s.SetColor(s.color.Next())
	return s.color
}

// TriggerSound makes snd the pending sound, replacing any sound not yet
// consumed.
func (s *Store) TriggerSound(snd Sound) {
	s.sound = snd
	s.soundDirty = true
}

func (s *Store) Speed() int8  { return s.speed }
func (s *Store) Color() Color { return s.color }
func (s *Store) Sound() Sound { return s.sound }

// TakeSpeed returns the latched speed and true if it was dirty, clearing the
// flag. A clean speed returns false and leaves the store untouched.
func (s *Store) TakeSpeed() (int8, bool) {
	if !s.speedDirty {
		return s.speed, false
	}
	s.speedDirty = false
	return s.speed, true
}

// TakeColor is TakeSpeed for the indicator color.
func (s *Store) TakeColor() (Color, bool) {
	if !s.colorDirty {
		return s.color, false
	}
	s.colorDirty = false
	return s.color, true
}

// TakeSound consumes the pending sound. When the flag was set it is cleared
// and the pending sound resets to SoundNone; the returned bool is true only if
// there was an actual sound to play.
func (s *Store) TakeSound() (Sound, bool) {
	if !s.soundDirty {
		return SoundNone, false
	}
	snd := s.sound
	s.soundDirty = false
	s.sound = SoundNone
	return snd, snd != SoundNone
}

func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		Speed:      s.speed,
		SpeedDirty: s.speedDirty,
		Color:      s.color,
		ColorDirty: s.colorDirty,
		Sound:      s.sound,
		SoundDirty: s.soundDirty,
	}
}
