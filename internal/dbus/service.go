package dbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"

	"github.com/cptspacemanspiff/powerd/internal/collector"
	"github.com/cptspacemanspiff/powerd/internal/daemon"
	"github.com/cptspacemanspiff/powerd/internal/device"
	"github.com/cptspacemanspiff/powerd/internal/storage"
)

const (
	busName     = "org.freedesktop.UPower"
	rootPath    = godbus.ObjectPath("/org/freedesktop/UPower")
	ifaceName   = "org.freedesktop.UPower"
	deviceIface = "org.freedesktop.UPower.Device"
	// powerdIface carries what upower clients do not know about.
	powerdIface = "io.github.cptspacemanspiff.Powerd"
	devicesPath = "/org/freedesktop/UPower/devices/"
	displayPath = godbus.ObjectPath(devicesPath + "DisplayDevice")

	introspectIface = "org.freedesktop.DBus.Introspectable"
	propertiesIface = "org.freedesktop.DBus.Properties"
)

// Error names returned to clients.
const (
	ErrGeneral      = "org.freedesktop.UPower.GeneralError"
	ErrNoSuchDevice = "org.freedesktop.UPower.NoSuchDevice"
)

// callTimeout bounds how long a bus request waits for the event loop.
const callTimeout = 10 * time.Second

// Backend is the daemon as seen by the bus.
type Backend interface {
	Devices(ctx context.Context) ([]daemon.DeviceInfo, error)
	Device(ctx context.Context, id uint64) (daemon.DeviceInfo, error)
	Status(ctx context.Context) (daemon.Status, error)
	CriticalAction(ctx context.Context) (string, error)
	Refresh(ctx context.Context, id uint64) error
	History(ctx context.Context, id uint64, kind string, timespan, resolution uint32) ([]storage.HistoryPoint, error)
	Statistics(ctx context.Context, id uint64, kind string) ([]storage.StatsPoint, error)
	SleepEvents(from, to int64) ([]collector.SleepEvent, error)
}

// Lid reports the laptop lid switch. ok is false when there is no lid.
type Lid interface {
	LidClosed() (closed, ok bool)
}

type Options struct {
	Version   string
	Lid       Lid
	IgnoreLid bool
	Logger    *slog.Logger
}

// Service exposes the daemon as org.freedesktop.UPower on the system bus.
// It also implements daemon.Publisher, turning daemon changes into
// property and signal emissions.
type Service struct {
	backend Backend
	opts    Options
	log     *slog.Logger

	mu        sync.Mutex
	conn      *godbus.Conn
	rootProps *prop.Properties
	objects   map[uint64]*deviceObject
	paths     map[godbus.ObjectPath]uint64
}

// NewService creates a service that is not yet on the bus.
func NewService(backend Backend, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		backend: backend,
		opts:    opts,
		log:     opts.Logger,
		objects: make(map[uint64]*deviceObject),
		paths:   make(map[godbus.ObjectPath]uint64),
	}
}

// Export registers every object on conn and then claims the bus name.
func (s *Service) Export(ctx context.Context, conn *godbus.Conn) error {
	status, err := s.backend.Status(ctx)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	display, err := s.backend.Device(ctx, daemon.DisplayID)
	if err != nil {
		return fmt.Errorf("read display device: %w", err)
	}
	closed, present := s.lid()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn

	if err := conn.Export(&upower{svc: s}, rootPath, ifaceName); err != nil {
		return fmt.Errorf("export %s: %w", rootPath, err)
	}
	props, err := prop.Export(conn, rootPath, prop.Map{ifaceName: {
		"DaemonVersion": readOnly(s.opts.Version),
		"OnBattery":     readOnly(status.OnBattery),
		"LidIsClosed":   readOnly(closed),
		"LidIsPresent":  readOnly(present),
	}})
	if err != nil {
		return fmt.Errorf("export %s properties: %w", rootPath, err)
	}
	s.rootProps = props
	if err := conn.Export(&powerd{svc: s}, rootPath, powerdIface); err != nil {
		return fmt.Errorf("export %s: %w", powerdIface, err)
	}
	if err := conn.Export(introspect.Introspectable(rootXML), rootPath, introspectIface); err != nil {
		return fmt.Errorf("export %s introspection: %w", rootPath, err)
	}

	s.addLocked(display)
	for _, obj := range s.objects {
		if err := s.exportLocked(obj); err != nil {
			return err
		}
	}

	reply, err := conn.RequestName(busName, godbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request name: %w", err)
	}
	if reply != godbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already taken", busName)
	}
	return nil
}

func (s *Service) lid() (closed, present bool) {
	if s.opts.IgnoreLid || s.opts.Lid == nil {
		return false, false
	}
	closed, ok := s.opts.Lid.LidClosed()
	return closed && ok, ok
}

func readOnly(v any) *prop.Prop {
	return &prop.Prop{Value: v, Writable: false, Emit: prop.EmitTrue}
}

// DeviceAdded implements daemon.Publisher.
func (s *Service) DeviceAdded(info daemon.DeviceInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj := s.addLocked(info)
	if s.conn == nil {
		return
	}
	if err := s.exportLocked(obj); err != nil {
		s.log.Error("export device", "path", obj.path, "err", err)
		return
	}
	s.emitLocked("DeviceAdded", obj.path)
}

// DeviceRemoved implements daemon.Publisher.
func (s *Service) DeviceRemoved(info daemon.DeviceInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[info.ID]
	if !ok {
		return
	}
	delete(s.objects, info.ID)
	delete(s.paths, obj.path)
	if s.conn == nil {
		return
	}
	for _, iface := range []string{deviceIface, propertiesIface, introspectIface} {
		if err := s.conn.Export(nil, obj.path, iface); err != nil {
			s.log.Warn("unexport device", "path", obj.path, "iface", iface, "err", err)
		}
	}
	s.emitLocked("DeviceRemoved", obj.path)
}

// DeviceChanged implements daemon.Publisher.
func (s *Service) DeviceChanged(info daemon.DeviceInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if obj, ok := s.objects[info.ID]; ok {
		s.updateLocked(obj, info.Props)
	}
}

// DisplayChanged implements daemon.Publisher.
func (s *Service) DisplayChanged(p device.Properties) {
	s.DeviceChanged(daemon.DeviceInfo{ID: daemon.DisplayID, Props: p})
}

// StatusChanged implements daemon.Publisher.
func (s *Service) StatusChanged(st daemon.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rootProps == nil {
		return
	}
	if err := s.rootProps.Set(ifaceName, "OnBattery", godbus.MakeVariant(st.OnBattery)); err != nil {
		s.log.Warn("set OnBattery", "err", err)
	}
}

func (s *Service) addLocked(info daemon.DeviceInfo) *deviceObject {
	if obj, ok := s.objects[info.ID]; ok {
		return obj
	}
	p := objectPath(info)
	if _, taken := s.paths[p]; taken {
		p = godbus.ObjectPath(fmt.Sprintf("%s_%d", p, info.ID))
	}
	obj := &deviceObject{svc: s, id: info.ID, path: p, values: deviceProperties(info.Props)}
	s.objects[info.ID] = obj
	s.paths[p] = info.ID
	return obj
}

func (s *Service) exportLocked(obj *deviceObject) error {
	if obj.props != nil {
		return nil
	}
	if err := s.conn.Export(obj, obj.path, deviceIface); err != nil {
		return fmt.Errorf("export %s: %w", obj.path, err)
	}
	m := make(map[string]*prop.Prop, len(obj.values))
	for name, v := range obj.values {
		m[name] = readOnly(v)
	}
	props, err := prop.Export(s.conn, obj.path, prop.Map{deviceIface: m})
	if err != nil {
		return fmt.Errorf("export %s properties: %w", obj.path, err)
	}
	obj.props = props
	if err := s.conn.Export(introspect.Introspectable(deviceXML), obj.path, introspectIface); err != nil {
		return fmt.Errorf("export %s introspection: %w", obj.path, err)
	}
	return nil
}

// updateLocked stores the new readings and emits PropertiesChanged for the
// ones that differ.
func (s *Service) updateLocked(obj *deviceObject, p device.Properties) {
	for name, v := range deviceProperties(p) {
		if obj.values[name] == v {
			continue
		}
		obj.values[name] = v
		if obj.props == nil {
			continue
		}
		if err := obj.props.Set(deviceIface, name, godbus.MakeVariant(v)); err != nil {
			s.log.Warn("set property", "path", obj.path, "name", name, "err", err)
		}
	}
}

func (s *Service) emitLocked(signal string, p godbus.ObjectPath) {
	if err := s.conn.Emit(rootPath, ifaceName+"."+signal, p); err != nil {
		s.log.Warn("emit signal", "signal", signal, "err", err)
	}
}

func (s *Service) pathOf(id uint64) (godbus.ObjectPath, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[id]
	if !ok {
		return "", false
	}
	return obj.path, true
}

// upower is the org.freedesktop.UPower interface on the root object.
type upower struct {
	svc *Service
}

// EnumerateDevices returns the object paths of all devices except the
// display device, in the order they were found.
func (u *upower) EnumerateDevices() ([]godbus.ObjectPath, *godbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	infos, err := u.svc.backend.Devices(ctx)
	if err != nil {
		return nil, godbus.MakeFailedError(err)
	}
	paths := make([]godbus.ObjectPath, 0, len(infos))
	for _, info := range infos {
		if p, ok := u.svc.pathOf(info.ID); ok {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

func (u *upower) GetDisplayDevice() (godbus.ObjectPath, *godbus.Error) {
	return displayPath, nil
}

func (u *upower) GetCriticalAction() (string, *godbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	action, err := u.svc.backend.CriticalAction(ctx)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return action, nil
}

type sleepItem struct {
	SleepTime int64
	WakeTime  int64
	Type      string
}

type powerd struct {
	svc *Service
}

// GetSleepEvents returns the suspend/resume cycles overlapping the range,
// in Unix seconds.
func (p *powerd) GetSleepEvents(from, to int64) ([]sleepItem, *godbus.Error) {
	events, err := p.svc.backend.SleepEvents(from, to)
	if err != nil {
		return nil, toError(err, "sleep events")
	}
	items := make([]sleepItem, 0, len(events))
	for _, e := range events {
		items = append(items, sleepItem{SleepTime: e.SleepTime, WakeTime: e.WakeTime, Type: e.Type})
	}
	return items, nil
}

// deviceObject is one org.freedesktop.UPower.Device object. Its exported
// methods are exactly the interface's methods.
type deviceObject struct {
	svc    *Service
	id     uint64
	path   godbus.ObjectPath
	values map[string]any
	props  *prop.Properties
}

type historyItem struct {
	Time  uint32
	Value float64
	State uint32
}

type statsItem struct {
	Value    float64
	Accuracy float64
}

func (o *deviceObject) Refresh() *godbus.Error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if err := o.svc.backend.Refresh(ctx, o.id); err != nil {
		return toError(err, "refresh")
	}
	return nil
}

func (o *deviceObject) GetHistory(typ string, timespan, resolution uint32) ([]historyItem, *godbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	points, err := o.svc.backend.History(ctx, o.id, typ, timespan, resolution)
	if err != nil {
		return nil, toError(err, "getting history")
	}
	items := make([]historyItem, 0, len(points))
	for _, p := range points {
		items = append(items, historyItem{Time: uint32(p.Time), Value: p.Value, State: uint32(p.State)})
	}
	return items, nil
}

func (o *deviceObject) GetStatistics(typ string) ([]statsItem, *godbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	stats, err := o.svc.backend.Statistics(ctx, o.id, typ)
	if err != nil {
		return nil, toError(err, "getting stats")
	}
	items := make([]statsItem, 0, len(stats))
	for _, st := range stats {
		items = append(items, statsItem{Value: st.Value, Accuracy: st.Accuracy})
	}
	return items, nil
}

// toError maps daemon errors to UPower error names. what names the
// operation for the "does not support" message.
func toError(err error, what string) *godbus.Error {
	switch {
	case errors.Is(err, daemon.ErrNoSuchDevice):
		return godbus.NewError(ErrNoSuchDevice, []any{"no such device"})
	case errors.Is(err, daemon.ErrNotSupported):
		return godbus.NewError(ErrGeneral, []any{"device does not support " + what})
	case errors.Is(err, storage.ErrNoHistory):
		return godbus.NewError(ErrGeneral, []any{"device has no history"})
	}
	return godbus.NewError(ErrGeneral, []any{err.Error()})
}

var pathReplacer = strings.NewReplacer("-", "_", ".", "x", ":", "o", "@", "_")

// objectPath derives a stable object path from the device kind and the
// last element of its native path.
func objectPath(info daemon.DeviceInfo) godbus.ObjectPath {
	if info.ID == daemon.DisplayID {
		return displayPath
	}
	id := pathReplacer.Replace(info.Props.Kind.String() + "_" + path.Base(info.Handle))
	id = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, id)
	return godbus.ObjectPath(devicesPath + id)
}

// deviceProperties returns the org.freedesktop.UPower.Device properties
// with their wire types.
func deviceProperties(p device.Properties) map[string]any {
	return map[string]any{
		"NativePath":       p.NativePath,
		"Vendor":           p.Vendor,
		"Model":            p.Model,
		"Serial":           p.Serial,
		"UpdateTime":       p.UpdateTime,
		"Type":             uint32(p.Kind),
		"PowerSupply":      p.PowerSupply,
		"HasHistory":       p.HasHistory,
		"HasStatistics":    p.HasStatistics,
		"Online":           p.Online,
		"Energy":           p.Energy,
		"EnergyEmpty":      p.EnergyEmpty,
		"EnergyFull":       p.EnergyFull,
		"EnergyFullDesign": p.EnergyFullDesign,
		"EnergyRate":       p.EnergyRate,
		"Voltage":          p.Voltage,
		"TimeToEmpty":      p.TimeToEmpty,
		"TimeToFull":       p.TimeToFull,
		"Percentage":       p.Percentage,
		"Temperature":      p.Temperature,
		"IsPresent":        p.IsPresent,
		"State":            uint32(p.State),
		"IsRechargeable":   p.IsRechargeable,
		"Capacity":         p.Capacity,
		"Technology":       uint32(p.Technology),
		"WarningLevel":     uint32(p.WarningLevel),
		"BatteryLevel":     uint32(p.BatteryLevel),
		"IconName":         p.IconName,
	}
}
