package link

import (
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mil-ad/duploctl/command"
)

// Machine drives a Driver from the commands latched in a command.Store. It is
// evaluated once per tick by Update and never blocks.
//
// Commands produced while the link is down stay latched in the store and are
// delivered as soon as the hub connects. Only the latest value per channel
// survives.
type Machine struct {
	l      hclog.Logger
	driver Driver
	store  *command.Store

	status       Status
	scanDeadline time.Time
}

// NewMachine returns a machine in the Disconnected state whose first scan is
// allowed InitialScanDelay after start.
func NewMachine(d Driver, s *command.Store, start time.Time, l hclog.Logger) *Machine {
	return &Machine{
		l:            l.Named("link"),
		driver:       d,
		store:        s,
		status:       Disconnected,
		scanDeadline: start.Add(InitialScanDelay),
	}
}

func (m *Machine) Status() Status { return m.status }

// ScanDeadline is the earliest time the next scan may start.
func (m *Machine) ScanDeadline() time.Time { return m.scanDeadline }

// Update evaluates the link once at time now.
func (m *Machine) Update(now time.Time) {
	switch {
	case m.driver.IsConnected():
		if m.status != Connected {
			m.setStatus(Connected)
			// The hub LED always shows the current selection after a
			// (re)connect, dirty or not. This does not consume the flag.
			m.sendColor(m.store.Color())
		}
		m.flush()

	case m.driver.IsConnecting():
		if m.status != Connecting {
			m.setStatus(Connecting)
		}
		m.l.Trace("connect attempt")
		m.driver.Connect()

	default:
		if m.status == Connected {
			m.l.Info("hub disconnected")
			m.scanDeadline = now.Add(ReconnectDelay)
		}

		if !now.Before(m.scanDeadline) {
			m.setStatus(Scanning)
			m.driver.BeginScan()
			m.scanDeadline = now.Add(ScanDuration + ReconnectDelay)
		} else if m.status != Scanning {
			m.setStatus(Disconnected)
		}
	}
}

// flush forwards every dirty command to the driver, clearing its flag.
func (m *Machine) flush() {
	if speed, ok := m.store.TakeSpeed(); ok {
		if err := m.driver.SendSpeed(speed); err != nil {
			m.l.Warn("send speed", "speed", speed, "error", err)
		} else {
			m.l.Info("motor speed", "speed", speed)
		}
	}

	if c, ok := m.store.TakeColor(); ok {
		m.sendColor(c)
	}

	if snd, ok := m.store.TakeSound(); ok {
		if err := m.driver.SendSound(snd); err != nil {
			m.l.Warn("send sound", "sound", snd, "error", err)
		} else {
			m.l.Info("playing sound", "sound", snd)
		}
	}
}

func (m *Machine) sendColor(c command.Color) {
	if err := m.driver.SendColor(c); err != nil {
		m.l.Warn("send color", "color", c, "error", err)
		return
	}
	m.l.Info("indicator color", "color", c)
}

func (m *Machine) setStatus(s Status) {
	if s == m.status {
		return
	}
	m.l.Info("link status", "from", m.status, "to", s)
	m.status = s
}
