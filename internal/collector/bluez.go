package collector

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/powerd/internal/device"
)

const (
	bluezService     = "org.bluez"
	bluezDeviceIface = "org.bluez.Device1"
	bluezBattery     = "org.bluez.Battery1"
	objectManager    = "org.freedesktop.DBus.ObjectManager"
	propertiesIface  = "org.freedesktop.DBus.Properties"
)

// BluezSource serves Bluetooth devices that expose a battery. Handles are
// BlueZ object paths; attributes come from cached D-Bus properties.
type BluezSource struct {
	conn *dbus.Conn
	log  *slog.Logger

	mu      sync.Mutex
	devices map[dbus.ObjectPath]*bluezDevice
}

type bluezDevice struct {
	props      map[string]dbus.Variant
	percentage byte
	hasBattery bool
}

// NewBluezSource returns a source using conn, normally the system bus.
func NewBluezSource(conn *dbus.Conn, logger *slog.Logger) *BluezSource {
	return &BluezSource{conn: conn, log: logger, devices: make(map[dbus.ObjectPath]*bluezDevice)}
}

// Attribute maps BlueZ properties onto the power supply attributes the
// refresh code understands.
func (b *BluezSource) Attribute(handle, name string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, ok := b.devices[dbus.ObjectPath(handle)]
	if !ok || !d.hasBattery {
		return "", false
	}
	switch name {
	case "type":
		return "Battery", true
	case "scope":
		return "Device", true
	case "present":
		return "1", true
	case "capacity":
		return strconv.Itoa(int(d.percentage)), true
	case "model_name":
		if s := variantString(d.props["Alias"]); s != "" {
			return s, true
		}
		s := variantString(d.props["Name"])
		return s, s != ""
	case "serial_number":
		s := variantString(d.props["Address"])
		return s, s != ""
	case device.AttrKind:
		kind := bluezKind(d.props)
		if kind == device.KindUnknown {
			return "", false
		}
		return kind.String(), true
	}
	return "", false
}

// Run loads the current BlueZ objects and then forwards changes to out
// until ctx is done.
func (b *BluezSource) Run(ctx context.Context, out chan<- Event) error {
	for _, member := range []string{"InterfacesAdded", "InterfacesRemoved"} {
		if err := b.conn.AddMatchSignal(
			dbus.WithMatchSender(bluezService),
			dbus.WithMatchInterface(objectManager),
			dbus.WithMatchMember(member),
		); err != nil {
			return fmt.Errorf("match %s: %w", member, err)
		}
	}
	if err := b.conn.AddMatchSignal(
		dbus.WithMatchSender(bluezService),
		dbus.WithMatchInterface(propertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return fmt.Errorf("match PropertiesChanged: %w", err)
	}

	ch := make(chan *dbus.Signal, 16)
	b.conn.Signal(ch)
	defer b.conn.RemoveSignal(ch)

	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := b.conn.Object(bluezService, "/").CallWithContext(ctx, objectManager+".GetManagedObjects", 0).Store(&objects)
	if err != nil {
		b.log.Info("bluez not available", "err", err)
	}
	for path, ifaces := range objects {
		for iface, props := range ifaces {
			if ev, ok := b.update(path, iface, props); ok {
				if !send(ctx, out, ev) {
					return nil
				}
			}
		}
	}

	for {
		select {
		case sig := <-ch:
			for _, ev := range b.handleSignal(sig) {
				if !send(ctx, out, ev) {
					return nil
				}
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (b *BluezSource) handleSignal(sig *dbus.Signal) []Event {
	switch sig.Name {
	case objectManager + ".InterfacesAdded":
		var path dbus.ObjectPath
		var ifaces map[string]map[string]dbus.Variant
		if err := dbus.Store(sig.Body, &path, &ifaces); err != nil {
			b.log.Debug("bad InterfacesAdded", "err", err)
			return nil
		}
		var events []Event
		for iface, props := range ifaces {
			if ev, ok := b.update(path, iface, props); ok {
				events = append(events, ev)
			}
		}
		return events
	case objectManager + ".InterfacesRemoved":
		var path dbus.ObjectPath
		var ifaces []string
		if err := dbus.Store(sig.Body, &path, &ifaces); err != nil {
			b.log.Debug("bad InterfacesRemoved", "err", err)
			return nil
		}
		if ev, ok := b.remove(path, ifaces); ok {
			return []Event{ev}
		}
	case propertiesIface + ".PropertiesChanged":
		var iface string
		var changed map[string]dbus.Variant
		var invalidated []string
		if err := dbus.Store(sig.Body, &iface, &changed, &invalidated); err != nil {
			return nil
		}
		if ev, ok := b.update(sig.Path, iface, changed); ok {
			return []Event{ev}
		}
	}
	return nil
}

// update merges properties of one interface into the cache and returns the
// event a tracked device should produce.
func (b *BluezSource) update(path dbus.ObjectPath, iface string, props map[string]dbus.Variant) (Event, bool) {
	if iface != bluezDeviceIface && iface != bluezBattery {
		return Event{}, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	d, ok := b.devices[path]
	if !ok {
		d = &bluezDevice{props: make(map[string]dbus.Variant)}
		b.devices[path] = d
	}
	wasTracked := d.hasBattery

	if iface == bluezDeviceIface {
		for k, v := range props {
			d.props[k] = v
		}
	} else {
		if v, ok := props["Percentage"]; ok {
			if p, ok := v.Value().(byte); ok {
				d.percentage = p
				d.hasBattery = true
			}
		}
	}

	switch {
	case !d.hasBattery:
		return Event{}, false
	case !wasTracked:
		return Event{Action: ActionAdd, Handle: string(path), Source: b}, true
	}
	return Event{Action: ActionChange, Handle: string(path), Source: b}, true
}

func (b *BluezSource) remove(path dbus.ObjectPath, ifaces []string) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, ok := b.devices[path]
	if !ok {
		return Event{}, false
	}
	for _, iface := range ifaces {
		switch iface {
		case bluezDeviceIface:
			delete(b.devices, path)
		case bluezBattery:
			d.hasBattery = false
		default:
			continue
		}
		return Event{Action: ActionRemove, Handle: string(path), Source: b}, true
	}
	return Event{}, false
}

func variantString(v dbus.Variant) string {
	s, _ := v.Value().(string)
	return s
}

// bluezKind derives a kind from the GAP appearance, falling back to the
// icon name BlueZ computed from the device class.
func bluezKind(props map[string]dbus.Variant) device.Kind {
	if v, ok := props["Appearance"]; ok {
		if a, ok := v.Value().(uint16); ok {
			if k := appearanceKind(a); k != device.KindUnknown {
				return k
			}
		}
	}
	return iconKind(variantString(props["Icon"]))
}

func appearanceKind(appearance uint16) device.Kind {
	switch appearance >> 6 {
	case 0x01:
		return device.KindPhone
	case 0x02:
		return device.KindComputer
	case 0x0a:
		return device.KindMediaPlayer
	case 0x0f:
		switch appearance & 0x3f {
		case 0x01:
			return device.KindKeyboard
		case 0x02:
			return device.KindMouse
		case 0x03, 0x04:
			return device.KindGamingInput
		case 0x05:
			return device.KindTablet
		}
	}
	return device.KindUnknown
}

func iconKind(icon string) device.Kind {
	switch icon {
	case "phone":
		return device.KindPhone
	case "computer":
		return device.KindComputer
	case "input-keyboard":
		return device.KindKeyboard
	case "input-mouse":
		return device.KindMouse
	case "input-gaming":
		return device.KindGamingInput
	case "input-tablet":
		return device.KindTablet
	case "multimedia-player":
		return device.KindMediaPlayer
	}
	return device.KindUnknown
}
