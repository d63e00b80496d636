// Package link keeps the remote's commands in step with an intermittently
// connected hub.
package link

import (
	"time"

	"github.com/mil-ad/duploctl/command"
)

// Status is the state of the link to the hub.
type Status uint8

const (
	Disconnected Status = iota
	Scanning
	Connecting
	Connected
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Scanning:
		return "scanning"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

const (
	// ScanDuration is how long a single scan is trusted to find the hub.
	ScanDuration = 5 * time.Second

	// ReconnectDelay separates a disconnect, or an unsuccessful scan, from
	// the next scan.
	ReconnectDelay = 3 * time.Second

	// InitialScanDelay postpones the first scan after startup.
	InitialScanDelay = 1 * time.Second
)

// Driver is the radio link to the hub. Scanning and connecting proceed in the
// background; callers only poll IsConnected and IsConnecting.
type Driver interface {
	IsConnected() bool

	// IsConnecting reports that a hub was discovered but the connection is
	// not complete yet.
	IsConnecting() bool

	// BeginScan starts looking for a hub. Calling it while a scan is already
	// running is harmless.
	BeginScan()

	// Connect pushes the connection to a discovered hub forward. It does not
	// block and is called repeatedly until the hub is connected or lost.
	Connect()

	SendSpeed(speed int8) error
	SendColor(c command.Color) error
	SendSound(s command.Sound) error
}

// SensorKind identifies which hub sensor produced a reading.
type SensorKind uint8

const (
	SensorColor SensorKind = iota
	SensorSpeedometer
)

func (k SensorKind) String() string {
	switch k {
	case SensorColor:
		return "color"
	case SensorSpeedometer:
		return "speedometer"
	}
	return "unknown"
}

// SensorReading is a decoded value reported by the hub outside the command
// flow.
type SensorReading struct {
	Kind  SensorKind
	Value int
}

// SensorSource is implemented by drivers that forward hub sensor readings.
type SensorSource interface {
	Readings() <-chan SensorReading
}
