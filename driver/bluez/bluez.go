// Package bluez implements link.Driver on top of BlueZ over the system D-Bus.
package bluez

import (
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	busName       = "org.bluez"
	adapterIface  = "org.bluez.Adapter1"
	deviceIface   = "org.bluez.Device1"
	gattCharIface = "org.bluez.GattCharacteristic1"
	propsIface    = "org.freedesktop.DBus.Properties"
	objMgrIface   = "org.freedesktop.DBus.ObjectManager"

	propsSignal         = propsIface + ".PropertiesChanged"
	interfacesAdded     = objMgrIface + ".InterfacesAdded"
	errInProgress       = "org.bluez.Error.InProgress"
	errAlreadyConnected = "org.bluez.Error.AlreadyConnected"
)

var (
	ErrNoAdapter    = errors.New("bluez: adapter not found")
	ErrNotConnected = errors.New("bluez: hub not connected")
)

// managedObjects is the reply of ObjectManager.GetManagedObjects.
type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

func adapterPath(adapter string) dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + adapter)
}

// deviceObjectPath converts a MAC address like "AA:BB:CC:DD:EE:FF" to
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func deviceObjectPath(adapter, addr string) dbus.ObjectPath {
	escaped := strings.ReplaceAll(strings.ToUpper(addr), ":", "_")
	return dbus.ObjectPath(string(adapterPath(adapter)) + "/dev_" + escaped)
}

// macFromPath extracts a MAC address from a BlueZ device object path, or
// from any object below it such as a GATT characteristic.
func macFromPath(adapter string, path dbus.ObjectPath) string {
	s := string(path)
	prefix := string(adapterPath(adapter)) + "/dev_"
	if !strings.HasPrefix(s, prefix) {
		return ""
	}
	s = s[len(prefix):]
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return strings.ReplaceAll(s, "_", ":")
}

// isBelow reports whether child is path itself or one of its descendants.
func isBelow(child, path dbus.ObjectPath) bool {
	return child == path || strings.HasPrefix(string(child), string(path)+"/")
}

// bus wraps a system D-Bus connection for BlueZ operations.
type bus struct {
	conn    *dbus.Conn
	adapter string
}

func newBus(adapter string) (*bus, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	// Quick check that BlueZ is on the bus.
	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	found := false
	for _, n := range names {
		if n == busName {
			found = true
			break
		}
	}
	if !found {
		conn.Close()
		return nil, fmt.Errorf("org.bluez not found on system bus, is bluetooth.service running?")
	}

	b := &bus{conn: conn, adapter: adapter}
	if _, err := b.getProp(adapterPath(adapter), adapterIface, "Address"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrNoAdapter, adapter, err)
	}
	return b, nil
}

func (b *bus) close() {
	b.conn.Close()
}

// --- property helpers ---

func (b *bus) getProp(path dbus.ObjectPath, iface, prop string) (dbus.Variant, error) {
	obj := b.conn.Object(busName, path)
	var v dbus.Variant
	err := obj.Call(propsIface+".Get", 0, iface, prop).Store(&v)
	return v, err
}

func (b *bus) setProp(path dbus.ObjectPath, iface, prop string, val interface{}) error {
	obj := b.conn.Object(busName, path)
	return obj.Call(propsIface+".Set", 0, iface, prop, dbus.MakeVariant(val)).Err
}

func (b *bus) managedObjects() (managedObjects, error) {
	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := b.conn.Object(busName, "/").Call(objMgrIface+".GetManagedObjects", 0).Store(&objs)
	if err != nil {
		return nil, fmt.Errorf("get managed objects: %w", err)
	}
	return managedObjects(objs), nil
}

// --- adapter ---

func (b *bus) powerOn() error {
	return b.setProp(adapterPath(b.adapter), adapterIface, "Powered", true)
}

func (b *bus) startDiscovery(serviceUUID string) error {
	obj := b.conn.Object(busName, adapterPath(b.adapter))
	filter := map[string]dbus.Variant{
		"Transport": dbus.MakeVariant("le"),
		"UUIDs":     dbus.MakeVariant([]string{serviceUUID}),
	}
	if err := obj.Call(adapterIface+".SetDiscoveryFilter", 0, filter).Err; err != nil {
		return fmt.Errorf("set discovery filter: %w", err)
	}
	err := obj.Call(adapterIface+".StartDiscovery", 0).Err
	if isBluezError(err, errInProgress) {
		return nil
	}
	return err
}

func (b *bus) stopDiscovery() error {
	obj := b.conn.Object(busName, adapterPath(b.adapter))
	return obj.Call(adapterIface+".StopDiscovery", 0).Err
}

// --- device ---

// connectAsync starts Device1.Connect and returns the pending call.
func (b *bus) connectAsync(dev dbus.ObjectPath) *dbus.Call {
	obj := b.conn.Object(busName, dev)
	return obj.Go(deviceIface+".Connect", 0, make(chan *dbus.Call, 1))
}

func (b *bus) disconnect(dev dbus.ObjectPath) error {
	obj := b.conn.Object(busName, dev)
	return obj.Call(deviceIface+".Disconnect", 0).Err
}

// --- gatt ---

func (b *bus) startNotify(char dbus.ObjectPath) error {
	obj := b.conn.Object(busName, char)
	return obj.Call(gattCharIface+".StartNotify", 0).Err
}

// writeValue writes data without response, which is how the hub expects
// commands.
func (b *bus) writeValue(char dbus.ObjectPath, data []byte) error {
	obj := b.conn.Object(busName, char)
	opts := map[string]dbus.Variant{"type": dbus.MakeVariant("command")}
	return obj.Call(gattCharIface+".WriteValue", 0, data, opts).Err
}

// --- signal subscription ---

func (b *bus) subscribe() (chan *dbus.Signal, error) {
	rules := []string{
		"type='signal',interface='" + propsIface + "',member='PropertiesChanged',path_namespace='/org/bluez'",
		"type='signal',interface='" + objMgrIface + "',member='InterfacesAdded'",
	}
	for _, r := range rules {
		if err := b.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, r).Err; err != nil {
			return nil, fmt.Errorf("add match: %w", err)
		}
	}
	ch := make(chan *dbus.Signal, 16)
	b.conn.Signal(ch)
	return ch, nil
}

func isBluezError(err error, name string) bool {
	var derr dbus.Error
	if errors.As(err, &derr) {
		return derr.Name == name
	}
	var pderr *dbus.Error
	if errors.As(err, &pderr) {
		return pderr.Name == name
	}
	return false
}
