// Package stub provides an in-memory link.Driver for host-side testing and
// dry runs without a hub.
package stub

import (
	"fmt"
	"sync"

	"github.com/mil-ad/duploctl/command"
	"github.com/mil-ad/duploctl/link"
)

// Operations recorded in the call log.
const (
	OpScan    = "scan"
	OpConnect = "connect"
	OpSpeed   = "speed"
	OpColor   = "color"
	OpSound   = "sound"
)

// Call is one recorded driver invocation. Value is zero for scan and connect.
type Call struct {
	Op    string
	Value int
}

func (c Call) String() string {
	switch c.Op {
	case OpScan, OpConnect:
		return c.Op
	}
	return fmt.Sprintf("%s(%d)", c.Op, c.Value)
}

// Driver records every call it receives. Its connection state is set by the
// test, or advanced automatically when created with NewSimulated.
type Driver struct {
	mu         sync.Mutex
	connected  bool
	connecting bool
	simulated  bool
	calls      []Call
	sendErr    error

	readings chan link.SensorReading
}

func New() *Driver {
	return &Driver{readings: make(chan link.SensorReading, 16)}
}

// NewSimulated returns a driver that behaves like a hub in range: a scan
// discovers it and the first Connect completes the connection.
func NewSimulated() *Driver {
	d := New()
	d.simulated = true
	return d
}

func (d *Driver) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *Driver) IsConnecting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connecting
}

func (d *Driver) BeginScan() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{Op: OpScan})
	if d.simulated && !d.connected {
		d.connecting = true
	}
}

func (d *Driver) Connect() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{Op: OpConnect})
	if d.simulated && d.connecting {
		d.connecting = false
		d.connected = true
	}
}

func (d *Driver) SendSpeed(speed int8) error {
	return d.record(OpSpeed, int(speed))
}

func (d *Driver) SendColor(c command.Color) error {
	return d.record(OpColor, int(c))
}

func (d *Driver) SendSound(s command.Sound) error {
	return d.record(OpSound, int(s))
}

func (d *Driver) record(op string, v int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, Call{Op: op, Value: v})
	return d.sendErr
}

func (d *Driver) Readings() <-chan link.SensorReading {
	return d.readings
}

// Inject queues a sensor reading as if the hub had reported it. Readings are
// dropped when nobody drains the queue.
func (d *Driver) Inject(r link.SensorReading) {
	select {
	case d.readings <- r:
	default:
	}
}

func (d *Driver) SetConnected(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = v
	if v {
		d.connecting = false
	}
}

func (d *Driver) SetConnecting(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connecting = v
}

// SetSendError makes every subsequent Send* call record and return err.
func (d *Driver) SetSendError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sendErr = err
}

// Calls returns a copy of the call log.
func (d *Driver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// Count returns how many calls of op were recorded.
func (d *Driver) Count(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Reset clears the call log.
func (d *Driver) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = d.calls[:0]
}

var (
	_ link.Driver       = (*Driver)(nil)
	_ link.SensorSource = (*Driver)(nil)
)
