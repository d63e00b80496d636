package bluez

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/hashicorp/go-hclog"

	"github.com/mil-ad/duploctl/command"
	"github.com/mil-ad/duploctl/link"
	"github.com/mil-ad/duploctl/lwp"
)

// Options configures a Driver.
type Options struct {
	// Adapter is the controller name, e.g. "hci0".
	Adapter string

	// Hub restricts connections to one MAC address. Empty accepts the first
	// hub found.
	Hub string

	Logger hclog.Logger
}

// Driver talks to a DUPLO train hub through BlueZ. D-Bus calls that may take
// a while run on their own goroutines so that none of the link.Driver methods
// block the caller for longer than a single GATT write.
type Driver struct {
	l   hclog.Logger
	bus *bus
	hub string

	mu          sync.Mutex
	discovering bool
	candidate   dbus.ObjectPath
	pending     bool // a Connect or GATT setup is in flight
	connected   bool
	resolved    bool
	char        dbus.ObjectPath

	readings chan link.SensorReading
}

// New connects to the system bus and starts watching BlueZ for hubs.
func New(opts Options) (*Driver, error) {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}
	b, err := newBus(opts.Adapter)
	if err != nil {
		return nil, err
	}
	signals, err := b.subscribe()
	if err != nil {
		b.close()
		return nil, err
	}

	d := newDriver(b, opts)
	go d.watch(signals)
	return d, nil
}

func newDriver(b *bus, opts Options) *Driver {
	l := opts.Logger
	if l == nil {
		l = hclog.NewNullLogger()
	}
	return &Driver{
		l:        l.Named("bluez"),
		bus:      b,
		hub:      strings.ToUpper(opts.Hub),
		readings: make(chan link.SensorReading, 16),
	}
}

// Close disconnects from the hub, if connected, and releases the bus.
func (d *Driver) Close() {
	d.mu.Lock()
	dev, connected := d.candidate, d.connected
	d.mu.Unlock()

	if connected && dev != "" {
		if err := d.bus.disconnect(dev); err != nil {
			d.l.Warn("disconnect", "error", err)
		}
	}
	d.bus.close()
}

func (d *Driver) Readings() <-chan link.SensorReading {
	return d.readings
}

func (d *Driver) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready()
}

func (d *Driver) IsConnecting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.candidate != "" && !d.ready()
}

// ready must be called with mu held.
func (d *Driver) ready() bool {
	return d.connected && d.char != ""
}

func (d *Driver) BeginScan() {
	d.mu.Lock()
	if d.discovering {
		d.mu.Unlock()
		return
	}
	d.discovering = true
	d.mu.Unlock()

	go d.scan()
}

func (d *Driver) scan() {
	if err := d.bus.powerOn(); err != nil {
		d.l.Warn("power on adapter", "error", err)
	}
	if err := d.bus.startDiscovery(lwp.ServiceUUID); err != nil {
		d.l.Warn("start discovery", "error", err)
		d.mu.Lock()
		d.discovering = false
		d.mu.Unlock()
		return
	}
	d.l.Debug("discovery started")

	// Devices BlueZ already knows about do not emit InterfacesAdded.
	objs, err := d.bus.managedObjects()
	if err != nil {
		d.l.Warn("scan known devices", "error", err)
	}
	for path, ifaces := range objs {
		if props, ok := ifaces[deviceIface]; ok {
			d.consider(path, props)
		}
	}

	time.AfterFunc(link.ScanDuration, d.endScan)
}

func (d *Driver) endScan() {
	d.mu.Lock()
	discovering := d.discovering
	d.discovering = false
	d.mu.Unlock()

	if discovering {
		if err := d.bus.stopDiscovery(); err != nil {
			d.l.Debug("stop discovery", "error", err)
		}
	}
}

func (d *Driver) Connect() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.candidate == "" || d.pending || d.ready() {
		return
	}
	switch {
	case !d.connected:
		d.pending = true
		go d.connect(d.candidate)
	case d.resolved:
		d.pending = true
		go d.setup(d.candidate)
	}
	// Connected but services not resolved yet: wait for the signal.
}

func (d *Driver) connect(dev dbus.ObjectPath) {
	d.endScan()

	call := <-d.bus.connectAsync(dev).Done
	if call.Err != nil && !isBluezError(call.Err, errAlreadyConnected) {
		d.l.Warn("connect", "device", dev, "error", call.Err)
		d.mu.Lock()
		d.dropCandidate()
		d.mu.Unlock()
		return
	}

	resolved := false
	if v, err := d.bus.getProp(dev, deviceIface, "ServicesResolved"); err == nil {
		resolved, _ = v.Value().(bool)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.candidate != dev {
		return
	}
	d.connected = true
	d.resolved = d.resolved || resolved
	d.pending = false
}

// setup locates the hub characteristic, subscribes to notifications and
// enables the train base sensors.
func (d *Driver) setup(dev dbus.ObjectPath) {
	char, err := d.findCharacteristic(dev)
	if err == nil {
		err = d.bus.startNotify(char)
	}
	if err == nil {
		for _, f := range lwp.SensorSetup() {
			if err = d.bus.writeValue(char, f); err != nil {
				break
			}
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = false
	if err != nil {
		d.l.Warn("hub setup", "device", dev, "error", err)
		return
	}
	if d.candidate != dev || !d.connected {
		return
	}
	d.char = char
	d.l.Info("hub ready", "address", macFromPath(d.adapter(), dev))
}

func (d *Driver) findCharacteristic(dev dbus.ObjectPath) (dbus.ObjectPath, error) {
	objs, err := d.bus.managedObjects()
	if err != nil {
		return "", err
	}
	for path, ifaces := range objs {
		props, ok := ifaces[gattCharIface]
		if !ok || !isBelow(path, dev) {
			continue
		}
		if uuid, _ := props["UUID"].Value().(string); strings.EqualFold(uuid, lwp.CharacteristicUUID) {
			return path, nil
		}
	}
	return "", fmt.Errorf("characteristic %s not found on %s", lwp.CharacteristicUUID, dev)
}

// consider adopts dev as the connection candidate if it advertises the hub
// service and matches the configured address.
func (d *Driver) consider(dev dbus.ObjectPath, props map[string]dbus.Variant) {
	uuids, _ := props["UUIDs"].Value().([]string)
	if !lwp.HasService(uuids) {
		return
	}
	mac := macFromPath(d.adapter(), dev)
	if mac == "" || (d.hub != "" && dev != deviceObjectPath(d.adapter(), d.hub)) {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.candidate != "" {
		return
	}
	d.candidate = dev
	if c, ok := props["Connected"].Value().(bool); ok {
		d.connected = c
	}
	if r, ok := props["ServicesResolved"].Value().(bool); ok {
		d.resolved = r
	}
	d.l.Info("hub found", "address", mac)
}

// dropCandidate forgets the current hub. Must be called with mu held.
func (d *Driver) dropCandidate() {
	d.candidate = ""
	d.pending = false
	d.connected = false
	d.resolved = false
	d.char = ""
}

func (d *Driver) adapter() string {
	if d.bus == nil {
		return "hci0"
	}
	return d.bus.adapter
}

func (d *Driver) SendSpeed(speed int8) error {
	return d.write(lwp.MotorSpeed(speed))
}

func (d *Driver) SendColor(c command.Color) error {
	return d.write(lwp.LEDColor(c)...)
}

func (d *Driver) SendSound(s command.Sound) error {
	frames := lwp.PlaySound(s)
	if frames == nil {
		return nil
	}
	return d.write(frames...)
}

func (d *Driver) write(frames ...[]byte) error {
	d.mu.Lock()
	char, ready := d.char, d.ready()
	d.mu.Unlock()

	if !ready {
		return ErrNotConnected
	}
	for _, f := range frames {
		if err := d.bus.writeValue(char, f); err != nil {
			return fmt.Errorf("write % x: %w", f, err)
		}
	}
	return nil
}

// watch consumes D-Bus signals until the connection is closed.
func (d *Driver) watch(signals chan *dbus.Signal) {
	for sig := range signals {
		d.handleSignal(sig)
	}
}

func (d *Driver) handleSignal(sig *dbus.Signal) {
	switch sig.Name {
	case interfacesAdded:
		// Body: [object_path, map[interface]map[property]Variant]
		if len(sig.Body) < 2 {
			return
		}
		path, ok := sig.Body[0].(dbus.ObjectPath)
		if !ok {
			return
		}
		ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
		if !ok {
			return
		}
		if props, ok := ifaces[deviceIface]; ok {
			d.consider(path, props)
		}

	case propsSignal:
		// Body: [interface_name string, changed_props map[string]Variant, invalidated []string]
		if len(sig.Body) < 2 {
			return
		}
		iface, ok := sig.Body[0].(string)
		if !ok {
			return
		}
		changed, ok := sig.Body[1].(map[string]dbus.Variant)
		if !ok {
			return
		}
		switch iface {
		case deviceIface:
			d.deviceChanged(sig.Path, changed)
		case gattCharIface:
			d.characteristicChanged(sig.Path, changed)
		case adapterIface:
			if v, ok := changed["Discovering"].Value().(bool); ok && !v {
				d.mu.Lock()
				d.discovering = false
				d.mu.Unlock()
			}
		}
	}
}

func (d *Driver) deviceChanged(dev dbus.ObjectPath, changed map[string]dbus.Variant) {
	d.mu.Lock()
	isCandidate := d.candidate != "" && d.candidate == dev
	d.mu.Unlock()

	if !isCandidate {
		if _, ok := changed["UUIDs"]; ok {
			d.consider(dev, changed)
		}
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if v, ok := changed["Connected"].Value().(bool); ok {
		if !v {
			if d.connected {
				d.l.Info("hub disconnected", "address", macFromPath(d.adapter(), dev))
			}
			d.dropCandidate()
			return
		}
		d.connected = true
	}
	if v, ok := changed["ServicesResolved"].Value().(bool); ok {
		d.resolved = v
	}
}

func (d *Driver) characteristicChanged(path dbus.ObjectPath, changed map[string]dbus.Variant) {
	d.mu.Lock()
	ours := d.char != "" && d.char == path
	d.mu.Unlock()
	if !ours {
		return
	}

	value, ok := changed["Value"].Value().([]byte)
	if !ok {
		return
	}
	r, err := lwp.Decode(value)
	if errors.Is(err, lwp.ErrUnknownMessage) {
		return
	}
	if err != nil {
		d.l.Debug("decode notification", "data", fmt.Sprintf("% x", value), "error", err)
		return
	}
	select {
	case d.readings <- r:
	default:
		d.l.Trace("sensor reading dropped", "kind", r.Kind)
	}
}

var (
	_ link.Driver       = (*Driver)(nil)
	_ link.SensorSource = (*Driver)(nil)
)
