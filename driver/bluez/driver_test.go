package bluez

import (
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/mil-ad/duploctl/command"
	"github.com/mil-ad/duploctl/link"
	"github.com/mil-ad/duploctl/lwp"
)

const hubPath = dbus.ObjectPath("/org/bluez/hci0/dev_90_84_2B_01_02_03")

func hubProps() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"UUIDs":     dbus.MakeVariant([]string{lwp.ServiceUUID}),
		"Connected": dbus.MakeVariant(false),
	}
}

func added(path dbus.ObjectPath, props map[string]dbus.Variant) *dbus.Signal {
	return &dbus.Signal{
		Name: interfacesAdded,
		Path: "/",
		Body: []interface{}{path, map[string]map[string]dbus.Variant{deviceIface: props}},
	}
}

func changed(path dbus.ObjectPath, iface string, props map[string]dbus.Variant) *dbus.Signal {
	return &dbus.Signal{
		Name: propsSignal,
		Path: path,
		Body: []interface{}{iface, props, []string{}},
	}
}

func TestDeviceObjectPath(t *testing.T) {
	if got := deviceObjectPath("hci0", "90:84:2b:01:02:03"); got != hubPath {
		t.Errorf("deviceObjectPath() = %q, want %q", got, hubPath)
	}
}

func TestMacFromPath(t *testing.T) {
	tests := []struct {
		path dbus.ObjectPath
		want string
	}{
		{hubPath, "90:84:2B:01:02:03"},
		{hubPath + "/service000a/char000b", "90:84:2B:01:02:03"},
		{"/org/bluez/hci1/dev_90_84_2B_01_02_03", ""},
		{"/org/bluez/hci0", ""},
	}
	for _, tt := range tests {
		if got := macFromPath("hci0", tt.path); got != tt.want {
			t.Errorf("macFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestIsBelow(t *testing.T) {
	if !isBelow(hubPath+"/service000a/char000b", hubPath) {
		t.Error("characteristic not below its device")
	}
	if isBelow(hubPath+"0/service000a", hubPath) {
		t.Error("sibling device treated as descendant")
	}
}

func TestDriver_Discovery(t *testing.T) {
	t.Run("hub advertising the service becomes the candidate", func(t *testing.T) {
		d := newDriver(nil, Options{})
		d.handleSignal(added(hubPath, hubProps()))
		if !d.IsConnecting() {
			t.Error("IsConnecting() = false after hub discovered")
		}
		if d.IsConnected() {
			t.Error("IsConnected() = true before setup")
		}
	})

	t.Run("other devices are ignored", func(t *testing.T) {
		d := newDriver(nil, Options{})
		props := map[string]dbus.Variant{
			"UUIDs": dbus.MakeVariant([]string{"0000180f-0000-1000-8000-00805f9b34fb"}),
		}
		d.handleSignal(added(hubPath, props))
		if d.IsConnecting() {
			t.Error("IsConnecting() = true for a non-hub device")
		}
	})

	t.Run("address filter is honoured", func(t *testing.T) {
		d := newDriver(nil, Options{Hub: "aa:bb:cc:dd:ee:ff"})
		d.handleSignal(added(hubPath, hubProps()))
		if d.IsConnecting() {
			t.Error("IsConnecting() = true for a hub not matching the filter")
		}

		d = newDriver(nil, Options{Hub: "90:84:2b:01:02:03"})
		d.handleSignal(added(hubPath, hubProps()))
		if !d.IsConnecting() {
			t.Error("IsConnecting() = false for the configured hub")
		}
	})

	t.Run("late UUIDs update makes a device a candidate", func(t *testing.T) {
		d := newDriver(nil, Options{})
		d.handleSignal(changed(hubPath, deviceIface, map[string]dbus.Variant{
			"UUIDs": dbus.MakeVariant([]string{lwp.ServiceUUID}),
		}))
		if !d.IsConnecting() {
			t.Error("IsConnecting() = false after UUIDs changed")
		}
	})
}

func connectedDriver() *Driver {
	d := newDriver(nil, Options{})
	d.handleSignal(added(hubPath, hubProps()))
	d.handleSignal(changed(hubPath, deviceIface, map[string]dbus.Variant{
		"Connected":        dbus.MakeVariant(true),
		"ServicesResolved": dbus.MakeVariant(true),
	}))
	d.mu.Lock()
	d.char = hubPath + "/service000a/char000b"
	d.mu.Unlock()
	return d
}

func TestDriver_Disconnect(t *testing.T) {
	d := connectedDriver()
	if !d.IsConnected() {
		t.Fatal("IsConnected() = false for a set up hub")
	}

	d.handleSignal(changed(hubPath, deviceIface, map[string]dbus.Variant{
		"Connected": dbus.MakeVariant(false),
	}))
	if d.IsConnected() || d.IsConnecting() {
		t.Error("driver still reports a link after the hub disconnected")
	}
	if err := d.SendSpeed(10); err != ErrNotConnected {
		t.Errorf("SendSpeed() error = %v, want %v", err, ErrNotConnected)
	}
}

func TestDriver_Notifications(t *testing.T) {
	d := connectedDriver()
	char := d.char

	d.handleSignal(changed(char, gattCharIface, map[string]dbus.Variant{
		"Value": dbus.MakeVariant([]byte{0x06, 0x00, 0x45, lwp.PortSpeedometer, 0x2c, 0x01}),
	}))
	d.handleSignal(changed(char, gattCharIface, map[string]dbus.Variant{
		"Value": dbus.MakeVariant([]byte{0x05, 0x00, 0x04, 0x00, 0x01}),
	}))
	d.handleSignal(changed(hubPath+"/service000a/char000f", gattCharIface, map[string]dbus.Variant{
		"Value": dbus.MakeVariant([]byte{0x05, 0x00, 0x45, lwp.PortColor, 0x09}),
	}))

	select {
	case r := <-d.Readings():
		want := link.SensorReading{Kind: link.SensorSpeedometer, Value: 300}
		if r != want {
			t.Errorf("reading = %+v, want %+v", r, want)
		}
	default:
		t.Fatal("no reading delivered")
	}

	select {
	case r := <-d.Readings():
		t.Errorf("unexpected reading %+v", r)
	default:
	}
}

func TestDriver_SendWhileDisconnected(t *testing.T) {
	d := newDriver(nil, Options{})
	if err := d.SendColor(command.Red); err != ErrNotConnected {
		t.Errorf("SendColor() error = %v, want %v", err, ErrNotConnected)
	}
	if err := d.SendSound(command.SoundNone); err != nil {
		t.Errorf("SendSound(none) error = %v, want nil", err)
	}
}
