// Package daemon owns the device registry and ties refreshes, the composite
// display device, the warning policy and the poll scheduler together on a
// single event loop.
package daemon

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cptspacemanspiff/powerd/internal/clock"
	"github.com/cptspacemanspiff/powerd/internal/collector"
	"github.com/cptspacemanspiff/powerd/internal/device"
	"github.com/cptspacemanspiff/powerd/internal/policy"
	"github.com/cptspacemanspiff/powerd/internal/poll"
	"github.com/cptspacemanspiff/powerd/internal/storage"
)

var (
	// ErrNoSuchDevice is returned for an id that is not registered.
	ErrNoSuchDevice = errors.New("no such device")
	// ErrNotSupported is returned when a device cannot serve a request.
	ErrNotSupported = errors.New("not supported")
)

// DisplayID addresses the composite display device.
const DisplayID uint64 = 0

// Executor runs closures on the event loop. *Loop implements it.
type Executor interface {
	Post(f func())
	Call(ctx context.Context, f func()) error
}

// Power is the system power manager: sleep inhibition and the critical
// actions.
type Power interface {
	policy.Capabilities
	Inhibit() error
	ReleaseInhibit()
	Take(action string) error
}

// Store persists device history and sleep events.
type Store interface {
	Record(deviceID string, p device.Properties, now int64) error
	GetHistory(deviceID string, kind storage.HistoryKind, timespan, resolution uint32, now int64) ([]storage.HistoryPoint, error)
	GetStatistics(deviceID string, charging bool) ([]storage.StatsPoint, error)
	InsertSleepEvent(e collector.SleepEvent) error
	SleepEventsInRange(from, to int64) ([]collector.SleepEvent, error)
}

// Publisher is told about every externally visible change. It is called
// on the event loop and must not call back into the daemon synchronously.
type Publisher interface {
	DeviceAdded(info DeviceInfo)
	DeviceRemoved(info DeviceInfo)
	DeviceChanged(info DeviceInfo)
	DisplayChanged(p device.Properties)
	StatusChanged(s Status)
}

// Status is the daemon-wide power summary.
type Status struct {
	OnBattery    bool
	WarningLevel device.Level
}

type Options struct {
	Exec   Executor
	Clock  clock.Clock
	Logger *slog.Logger
	// DeviceLogger and PollLogger default to Logger.
	DeviceLogger *slog.Logger
	PollLogger   *slog.Logger

	Thresholds     policy.Thresholds
	CriticalAction string
	Power          Power
	Store          Store
	Publisher      Publisher

	NoPollBatteries      bool
	NeedsPollAfterUevent bool
}

// Daemon is the power daemon's state. Apart from the exported methods that
// go through the executor, it must only be touched on the event loop.
type Daemon struct {
	exec   Executor
	clock  clock.Clock
	log    *slog.Logger
	devLog *slog.Logger

	reg     *Registry
	sched   *poll.Scheduler
	action  *policy.ActionTimer
	display *device.Device

	thresholds     policy.Thresholds
	criticalAction string
	power          Power
	store          Store
	pub            Publisher

	noPoll    bool
	needsPoll bool

	status     Status
	sleepStart int64
}

func New(opts Options) *Daemon {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DeviceLogger == nil {
		opts.DeviceLogger = opts.Logger
	}
	if opts.PollLogger == nil {
		opts.PollLogger = opts.Logger
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Publisher == nil {
		opts.Publisher = nopPublisher{}
	}

	d := &Daemon{
		exec:           opts.Exec,
		clock:          opts.Clock,
		log:            opts.Logger,
		devLog:         opts.DeviceLogger,
		reg:            NewRegistry(),
		display:        device.NewDisplay(),
		thresholds:     opts.Thresholds.Normalize(opts.Logger),
		criticalAction: opts.CriticalAction,
		power:          opts.Power,
		store:          opts.Store,
		pub:            opts.Publisher,
		noPoll:         opts.NoPollBatteries,
		needsPoll:      opts.NeedsPollAfterUevent,
		status:         Status{WarningLevel: device.LevelNone},
	}
	d.sched = poll.New(d.clock, d.exec.Post, d.levelOf, opts.PollLogger)
	d.action = policy.NewActionTimer(d.clock, d.exec.Post, d.takeAction, opts.Logger)
	return d
}

// SetPublisher replaces the publisher. It must be called before Start, for
// transports that need the daemon to be constructed first.
func (d *Daemon) SetPublisher(p Publisher) {
	if p == nil {
		p = nopPublisher{}
	}
	d.pub = p
}

// Start takes the sleep inhibitor. Device sources are fed in afterwards
// through Submit.
func (d *Daemon) Start(ctx context.Context) error {
	return d.exec.Call(ctx, func() {
		if d.power == nil {
			return
		}
		if err := d.power.Inhibit(); err != nil {
			d.log.Warn("could not inhibit sleep", "err", err)
		}
	})
}

// Submit queues a device source event.
func (d *Daemon) Submit(ev collector.Event) {
	d.exec.Post(func() { d.handleEvent(ev) })
}

// Sleep queues a suspend (true) or resume (false) notification.
func (d *Daemon) Sleep(sleeping bool) {
	d.exec.Post(func() {
		if sleeping {
			d.aboutToSleep()
		} else {
			d.resumed()
		}
	})
}

// SetThresholds replaces the warning policy and recomputes every level.
func (d *Daemon) SetThresholds(t policy.Thresholds, criticalAction string) {
	d.exec.Post(func() {
		d.thresholds = t.Normalize(d.log)
		d.criticalAction = criticalAction
		d.log.Info("policy reconfigured")
		for _, e := range d.reg.Snapshot() {
			if d.updateDerived(e) {
				d.pub.DeviceChanged(e.Info())
			}
		}
		d.updateWarningLevel()
	})
}

// Devices returns every registered device in registration order.
func (d *Daemon) Devices(ctx context.Context) ([]DeviceInfo, error) {
	var out []DeviceInfo
	err := d.exec.Call(ctx, func() {
		for _, e := range d.reg.Snapshot() {
			out = append(out, e.Info())
		}
	})
	return out, err
}

// Device returns one device, or the display device for DisplayID.
func (d *Daemon) Device(ctx context.Context, id uint64) (DeviceInfo, error) {
	var info DeviceInfo
	found := false
	err := d.exec.Call(ctx, func() {
		if id == DisplayID {
			info, found = DeviceInfo{ID: DisplayID, Props: d.display.Props}, true
			return
		}
		if e := d.reg.ByID(id); e != nil {
			info, found = e.Info(), true
		}
	})
	if err != nil {
		return DeviceInfo{}, err
	}
	if !found {
		return DeviceInfo{}, ErrNoSuchDevice
	}
	return info, nil
}

// Display returns the composite device.
func (d *Daemon) Display(ctx context.Context) (device.Properties, error) {
	info, err := d.Device(ctx, DisplayID)
	return info.Props, err
}

// Status returns the daemon-wide summary.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	var s Status
	err := d.exec.Call(ctx, func() { s = d.status })
	return s, err
}

// CriticalAction returns the action that will be taken at the Action
// level. It queries the power manager and does not touch daemon state
// beyond the configured preference.
func (d *Daemon) CriticalAction(ctx context.Context) (string, error) {
	var preferred string
	if err := d.exec.Call(ctx, func() { preferred = d.criticalAction }); err != nil {
		return "", err
	}
	if d.power == nil {
		return policy.ActionPowerOff, nil
	}
	return policy.CriticalAction(preferred, d.power), nil
}

// Refresh re-reads one device now.
func (d *Daemon) Refresh(ctx context.Context, id uint64) error {
	found := id == DisplayID
	err := d.exec.Call(ctx, func() {
		if e := d.reg.ByID(id); e != nil {
			found = true
			d.refresh(e)
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrNoSuchDevice
	}
	return nil
}

// History returns recorded readings of a device, newest first.
func (d *Daemon) History(ctx context.Context, id uint64, kind string, timespan, resolution uint32) ([]storage.HistoryPoint, error) {
	hk, err := storage.ParseHistoryKind(kind)
	if err != nil {
		return nil, err
	}
	historyID, err := d.historyID(ctx, id, func(p device.Properties) bool { return p.HasHistory })
	if err != nil {
		return nil, err
	}
	return d.store.GetHistory(historyID, hk, timespan, resolution, d.clock.Now().Unix())
}

// Statistics returns the charging or discharging profile of a device.
func (d *Daemon) Statistics(ctx context.Context, id uint64, kind string) ([]storage.StatsPoint, error) {
	var charging bool
	switch kind {
	case "charging":
		charging = true
	case "discharging":
	default:
		return nil, storage.ErrNoHistory
	}
	historyID, err := d.historyID(ctx, id, func(p device.Properties) bool { return p.HasStatistics })
	if err != nil {
		return nil, err
	}
	stats, err := d.store.GetStatistics(historyID, charging)
	if err != nil {
		return nil, err
	}
	if len(stats) != storage.StatsBins {
		return nil, errors.New("statistics invalid")
	}
	return stats, nil
}

// SleepEvents returns the recorded suspend/resume cycles overlapping
// [from, to], in Unix seconds.
func (d *Daemon) SleepEvents(from, to int64) ([]collector.SleepEvent, error) {
	if d.store == nil {
		return nil, ErrNotSupported
	}
	return d.store.SleepEventsInRange(from, to)
}

func (d *Daemon) historyID(ctx context.Context, id uint64, supported func(device.Properties) bool) (string, error) {
	info, err := d.Device(ctx, id)
	if err != nil {
		return "", err
	}
	if d.store == nil || !supported(info.Props) {
		return "", ErrNotSupported
	}
	return device.HistoryID(info.Props), nil
}

// levelOf resolves a scheduler entry to the device's warning level.
func (d *Daemon) levelOf(id uint64) (device.Level, bool) {
	e := d.reg.ByID(id)
	if e == nil {
		return device.LevelUnknown, false
	}
	return e.Device.Props.WarningLevel, true
}

func (d *Daemon) takeAction() {
	if d.power == nil {
		d.log.Error("no power manager to take the critical action")
		return
	}
	action := policy.CriticalAction(d.criticalAction, d.power)
	if err := d.power.Take(action); err != nil {
		d.log.Error("critical action failed", "action", action, "err", err)
	}
}

// LinePower implements device.Env.
func (d *Daemon) LinePower() (present, online bool) {
	for _, e := range d.reg.Snapshot() {
		if e.Device.Props.Kind == device.KindLinePower {
			return true, e.Device.Props.Online
		}
	}
	return false, false
}

// BatteryCount implements device.Env.
func (d *Daemon) BatteryCount() int {
	n := 0
	for _, e := range d.reg.Snapshot() {
		if e.Device.Props.Kind == device.KindBattery {
			n++
		}
	}
	return n
}

// NeedsPollAfterUevent implements device.Env.
func (d *Daemon) NeedsPollAfterUevent() bool { return d.needsPoll }

type nopPublisher struct{}

func (nopPublisher) DeviceAdded(DeviceInfo)           {}
func (nopPublisher) DeviceRemoved(DeviceInfo)         {}
func (nopPublisher) DeviceChanged(DeviceInfo)         {}
func (nopPublisher) DisplayChanged(device.Properties) {}
func (nopPublisher) StatusChanged(Status)             {}
