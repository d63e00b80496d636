// Package lwp encodes and decodes the subset of LEGO Wireless Protocol 3
// messages needed to drive a DUPLO train base.
package lwp

import (
	"encoding/binary"
	"errors"
	"strings"

	"github.com/mil-ad/duploctl/command"
	"github.com/mil-ad/duploctl/link"
)

// GATT identifiers of the LEGO hub service.
const (
	ServiceUUID        = "00001623-1212-efde-1623-785feabcd123"
	CharacteristicUUID = "00001624-1212-efde-1623-785feabcd123"
)

// Message types.
const (
	MsgPortInputFormatSetup byte = 0x41
	MsgPortValueSingle      byte = 0x45
	MsgPortOutputCommand    byte = 0x81
)

const (
	startupExecuteImmediately = 0x11 // execute immediately, request feedback
	subCmdWriteDirectModeData = 0x51
)

// DUPLO train base ports.
const (
	PortMotor       byte = 0x00
	PortSpeaker     byte = 0x01
	PortLED         byte = 0x11
	PortColor       byte = 0x12
	PortSpeedometer byte = 0x13
)

// Sensor modes enabled for notification on connect.
const (
	ModeColorIndex byte = 0x01
	ModeSpeed      byte = 0x00
)

const (
	modeLEDIndex  = 0x00
	modeSoundPlay = 0x01
)

// Hub color indices.
const (
	HubPink      byte = 1
	HubPurple    byte = 2
	HubBlue      byte = 3
	HubLightBlue byte = 4
	HubGreen     byte = 6
	HubYellow    byte = 7
	HubOrange    byte = 8
	HubRed       byte = 9
)

// DUPLO train base sound ids.
const (
	SoundStationDeparture byte = 5
	SoundWaterRefill      byte = 7
	SoundHorn             byte = 9
)

var (
	ErrShortFrame     = errors.New("lwp: frame too short")
	ErrUnknownMessage = errors.New("lwp: unhandled message")
)

// EncodeColor maps a remote color to the hub's color index. Unknown colors
// fall back to the first color of the cycle.
func EncodeColor(c command.Color) byte {
	switch c {
	case command.Green:
		return HubGreen
	case command.Red:
		return HubRed
	case command.Blue:
		return HubBlue
	case command.Yellow:
		return HubYellow
	case command.Orange:
		return HubOrange
	case command.Purple:
		return HubPurple
	case command.Cyan:
		return HubLightBlue
	case command.Pink:
		return HubPink
	}
	return HubGreen
}

// EncodeSound maps a remote sound to the hub's sound id. ok is false for
// SoundNone and unknown sounds, which must not be sent.
func EncodeSound(s command.Sound) (id byte, ok bool) {
	switch s {
	case command.SoundHorn:
		return SoundHorn, true
	case command.SoundDepart:
		return SoundStationDeparture, true
	case command.SoundWaterRefill:
		return SoundWaterRefill, true
	}
	return 0, false
}

// frame prefixes body with the common header: total length and hub id 0.
func frame(body ...byte) []byte {
	out := make([]byte, 0, len(body)+2)
	out = append(out, byte(len(body)+2), 0x00)
	return append(out, body...)
}

func writeDirect(port, mode byte, data ...byte) []byte {
	body := []byte{MsgPortOutputCommand, port, startupExecuteImmediately, subCmdWriteDirectModeData, mode}
	return frame(append(body, data...)...)
}

// PortInputFormat sets port to mode with a delta interval of 1, enabling or
// disabling value notifications.
func PortInputFormat(port, mode byte, notify bool) []byte {
	body := []byte{MsgPortInputFormatSetup, port, mode, 0, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(body[3:7], 1)
	if notify {
		body[7] = 1
	}
	return frame(body...)
}

// MotorSpeed sets the train motor power in percent.
func MotorSpeed(speed int8) []byte {
	return writeDirect(PortMotor, 0x00, byte(speed))
}

// LEDColor returns the frames that switch the hub LED to c.
func LEDColor(c command.Color) [][]byte {
	return [][]byte{
		PortInputFormat(PortLED, modeLEDIndex, false),
		writeDirect(PortLED, modeLEDIndex, EncodeColor(c)),
	}
}

// PlaySound returns the frames that play s, or nil if s has no hub sound.
func PlaySound(s command.Sound) [][]byte {
	id, ok := EncodeSound(s)
	if !ok {
		return nil
	}
	return [][]byte{
		PortInputFormat(PortSpeaker, modeSoundPlay, true),
		writeDirect(PortSpeaker, modeSoundPlay, id),
	}
}

// SensorSetup returns the frames enabling color and speedometer
// notifications.
func SensorSetup() [][]byte {
	return [][]byte{
		PortInputFormat(PortColor, ModeColorIndex, true),
		PortInputFormat(PortSpeedometer, ModeSpeed, true),
	}
}

// Decode parses a hub notification into a sensor reading. Messages other
// than color or speedometer values return ErrUnknownMessage.
func Decode(b []byte) (link.SensorReading, error) {
	if len(b) < 3 {
		return link.SensorReading{}, ErrShortFrame
	}
	if int(b[0]) != len(b) || b[2] != MsgPortValueSingle {
		return link.SensorReading{}, ErrUnknownMessage
	}
	if len(b) < 5 {
		return link.SensorReading{}, ErrShortFrame
	}

	switch b[3] {
	case PortColor:
		return link.SensorReading{Kind: link.SensorColor, Value: int(b[4])}, nil
	case PortSpeedometer:
		if len(b) < 6 {
			return link.SensorReading{}, ErrShortFrame
		}
		v := int16(binary.LittleEndian.Uint16(b[4:6]))
		return link.SensorReading{Kind: link.SensorSpeedometer, Value: int(v)}, nil
	}
	return link.SensorReading{}, ErrUnknownMessage
}

// HasService reports whether uuids advertises the LEGO hub service.
func HasService(uuids []string) bool {
	for _, u := range uuids {
		if strings.EqualFold(u, ServiceUUID) {
			return true
		}
	}
	return false
}
