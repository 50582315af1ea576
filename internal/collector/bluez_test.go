package collector

import (
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/powerd/internal/device"
)

const mousePath = dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF")

func newTestBluez() *BluezSource {
	return &BluezSource{log: quiet, devices: make(map[dbus.ObjectPath]*bluezDevice)}
}

func TestBluezDeviceWithoutBatteryIgnored(t *testing.T) {
	b := newTestBluez()
	_, ok := b.update(mousePath, bluezDeviceIface, map[string]dbus.Variant{
		"Alias": dbus.MakeVariant("Mouse"),
	})
	if ok {
		t.Fatal("update() reported a device without Battery1")
	}
	if _, ok := b.Attribute(string(mousePath), "type"); ok {
		t.Fatal("Attribute() answered for an untracked device")
	}
}

func TestBluezBatteryLifecycle(t *testing.T) {
	b := newTestBluez()
	b.update(mousePath, bluezDeviceIface, map[string]dbus.Variant{
		"Alias":      dbus.MakeVariant("MX Anywhere"),
		"Address":    dbus.MakeVariant("AA:BB:CC:DD:EE:FF"),
		"Appearance": dbus.MakeVariant(uint16(0x03c2)),
	})

	ev, ok := b.update(mousePath, bluezBattery, map[string]dbus.Variant{"Percentage": dbus.MakeVariant(byte(64))})
	if !ok || ev.Action != ActionAdd || ev.Handle != string(mousePath) {
		t.Fatalf("first battery update = %+v, %v, want add", ev, ok)
	}
	ev, ok = b.update(mousePath, bluezBattery, map[string]dbus.Variant{"Percentage": dbus.MakeVariant(byte(63))})
	if !ok || ev.Action != ActionChange {
		t.Fatalf("second battery update = %+v, %v, want change", ev, ok)
	}

	tests := map[string]string{
		"type":          "Battery",
		"scope":         "Device",
		"capacity":      "63",
		"model_name":    "MX Anywhere",
		"serial_number": "AA:BB:CC:DD:EE:FF",
		device.AttrKind: "mouse",
	}
	for name, want := range tests {
		if got, ok := b.Attribute(string(mousePath), name); !ok || got != want {
			t.Errorf("Attribute(%s) = %q, %v, want %q", name, got, ok, want)
		}
	}
	if _, ok := b.Attribute(string(mousePath), "status"); ok {
		t.Error("Attribute(status) ok = true, BlueZ has no charge status")
	}

	ev, ok = b.remove(mousePath, []string{bluezBattery})
	if !ok || ev.Action != ActionRemove {
		t.Fatalf("remove() = %+v, %v, want remove", ev, ok)
	}
	if _, ok := b.Attribute(string(mousePath), "capacity"); ok {
		t.Fatal("Attribute(capacity) ok = true after Battery1 went away")
	}
}

func TestBluezPeripheralColdplug(t *testing.T) {
	b := newTestBluez()
	b.update(mousePath, bluezDeviceIface, map[string]dbus.Variant{"Icon": dbus.MakeVariant("input-keyboard")})
	b.update(mousePath, bluezBattery, map[string]dbus.Variant{"Percentage": dbus.MakeVariant(byte(80))})

	d := device.New(string(mousePath), device.Options{Source: b, Logger: quiet})
	if !d.Coldplug() {
		t.Fatal("Coldplug() = false")
	}
	if d.Props.Kind != device.KindKeyboard || d.Variant() != device.VariantPeripheral {
		t.Fatalf("kind %v variant %v, want keyboard peripheral", d.Props.Kind, d.Variant())
	}
	d.Refresh()
	if d.Props.Percentage != 80 {
		t.Fatalf("Percentage = %v, want 80", d.Props.Percentage)
	}
}

func TestAppearanceKind(t *testing.T) {
	tests := []struct {
		appearance uint16
		want       device.Kind
	}{
		{0x0040, device.KindPhone},
		{0x0080, device.KindComputer},
		{0x0280, device.KindMediaPlayer},
		{0x03c1, device.KindKeyboard},
		{0x03c2, device.KindMouse},
		{0x03c3, device.KindGamingInput},
		{0x03c4, device.KindGamingInput},
		{0x03c5, device.KindTablet},
		{0x03c0, device.KindUnknown},
		{0x0941, device.KindUnknown},
	}
	for _, tt := range tests {
		if got := appearanceKind(tt.appearance); got != tt.want {
			t.Errorf("appearanceKind(%#04x) = %v, want %v", tt.appearance, got, tt.want)
		}
	}
}
