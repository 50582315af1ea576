// Package device models a single power source and the algorithms that turn
// raw hardware attributes into its exported readings.
package device

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Synthetic attribute names. Sources that cannot answer them report absent.
const (
	// AttrInputClass classifies the input device sharing a parent with the
	// supply: "mouse", "touchpad", "joystick" or "keyboard".
	AttrInputClass = "@input_class"
	AttrInputName  = "@input_name"
	AttrInputUniq  = "@input_uniq"
	// AttrKind carries a kind decided by the source itself, such as a
	// Bluetooth appearance.
	AttrKind = "@kind"
)

// Source reads raw attributes of a native device. A missing or unreadable
// attribute is reported with ok == false.
type Source interface {
	Attribute(handle, name string) (value string, ok bool)
}

// Env exposes the parts of the registry a refresh depends on.
type Env interface {
	// LinePower reports whether a line-power device is registered and
	// whether the first one found is online.
	LinePower() (present, online bool)
	// BatteryCount returns the number of registered devices of KindBattery.
	BatteryCount() int
	// NeedsPollAfterUevent is true on hardware that never sends change
	// events for its batteries.
	NeedsPollAfterUevent() bool
}

// Properties holds every exported reading of a device. It is a plain value
// so snapshots can be compared with ==.
type Properties struct {
	NativePath       string
	Vendor           string
	Model            string
	Serial           string
	UpdateTime       uint64
	Kind             Kind
	PowerSupply      bool
	Online           bool
	IsPresent        bool
	IsRechargeable   bool
	HasHistory       bool
	HasStatistics    bool
	State            State
	Energy           float64
	EnergyEmpty      float64
	EnergyFull       float64
	EnergyFullDesign float64
	EnergyRate       float64
	Voltage          float64
	TimeToEmpty      int64
	TimeToFull       int64
	Percentage       float64
	Temperature      float64
	Capacity         float64
	Technology       Technology
	WarningLevel     Level
	BatteryLevel     Level
	IconName         string
}

// Variant selects the refresh algorithm for a device.
type Variant int

const (
	VariantLinePower Variant = iota
	VariantBattery
	VariantPeripheral
	VariantDisplay
)

func (v Variant) String() string {
	switch v {
	case VariantLinePower:
		return "line-power"
	case VariantBattery:
		return "battery"
	case VariantPeripheral:
		return "peripheral"
	case VariantDisplay:
		return "display"
	}
	return "unknown"
}

// Result is the outcome of a refresh.
type Result int

const (
	ResultSuccess Result = iota
	ResultNoChange
	ResultNoData
	ResultFailure
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultNoChange:
		return "no-change"
	case ResultNoData:
		return "no-data"
	}
	return "failure"
}

type units int

const (
	unitsEnergy units = iota
	unitsCharge
)

const unknownRetries = 5

// RetryDelay is the delay of the fast retry armed while a device reports
// an unknown state.
const RetryDelay = time.Second

// Options configures a new Device.
type Options struct {
	Source Source
	Env    Env
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
	// NoPollBatteries disables polling and fast retries for batteries.
	NoPollBatteries bool
}

// Device is one power source. It is not safe for concurrent use; the daemon
// serializes every access on its event loop.
type Device struct {
	Handle string
	Props  Properties

	display bool
	src     Source
	env     Env
	log     *slog.Logger
	now     func() time.Time
	noPoll  bool

	powerSupply         bool
	kindSettled         bool
	hasColdplugValues   bool
	coldplugUnits       units
	shownVoltageWarning bool
	rate                RateEstimator
	unknownRetries      int
	lastUnknownRetry    time.Time
	retryWanted         bool
}

// New returns an unprobed device for handle.
func New(handle string, opts Options) *Device {
	d := &Device{
		Handle: handle,
		src:    opts.Source,
		env:    opts.Env,
		log:    opts.Logger,
		now:    opts.Now,
		noPoll: opts.NoPollBatteries,
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	d.log = d.log.With("device", handle)
	if d.now == nil {
		d.now = time.Now
	}
	d.Props.NativePath = handle
	d.resetValues()
	return d
}

// NewDisplay returns the synthetic composite device. It has no source and
// is only ever mutated by the aggregator.
func NewDisplay() *Device {
	d := &Device{display: true, log: slog.Default(), now: time.Now}
	d.Props.PowerSupply = true
	d.Props.BatteryLevel = LevelNone
	d.Props.WarningLevel = LevelNone
	d.Props.IconName = IconName(d.Props)
	return d
}

// Variant returns the refresh algorithm currently applicable to d. A
// Battery that does not feed the system is handled like a peripheral.
func (d *Device) Variant() Variant {
	switch {
	case d.display:
		return VariantDisplay
	case d.Props.Kind == KindLinePower:
		return VariantLinePower
	case d.Props.Kind == KindBattery && d.powerSupply:
		return VariantBattery
	}
	return VariantPeripheral
}

// WantsFastRetry reports whether the last refresh asked for the one-second
// unknown-state retry.
func (d *Device) WantsFastRetry() bool { return d.retryWanted }

// WantsPolling reports whether d should be registered with the poll
// scheduler after coldplug.
func (d *Device) WantsPolling() bool {
	switch d.Props.Kind {
	case KindLinePower:
		return false
	case KindBattery:
		return !d.noPoll || !d.powerSupply
	}
	return true
}

func (d *Device) resetValues() {
	p := &d.Props
	p.UpdateTime = 0
	p.Vendor, p.Model, p.Serial = "", "", ""
	p.PowerSupply = false
	p.Online = false
	p.IsPresent = false
	p.IsRechargeable = false
	p.HasHistory = false
	p.HasStatistics = false
	p.State = StateUnknown
	p.Energy, p.EnergyEmpty, p.EnergyFull, p.EnergyFullDesign = 0, 0, 0, 0
	p.EnergyRate, p.Voltage = 0, 0
	p.TimeToEmpty, p.TimeToFull = 0, 0
	p.Percentage, p.Temperature, p.Capacity = 0, 0, 0
	p.Technology = TechnologyUnknown
	p.BatteryLevel = LevelNone
	d.hasColdplugValues = false
	d.rate.Reset()
	d.rate.SetCached(0)
}

func (d *Device) exists(name string) bool {
	_, ok := d.src.Attribute(d.Handle, name)
	return ok
}

// str returns the trimmed attribute; empty means absent.
func (d *Device) str(name string) string {
	v, ok := d.src.Attribute(d.Handle, name)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// float reads a numeric attribute, returning 0 when absent or unparsable.
func (d *Device) float(name string) float64 {
	v, ok := d.floatOK(name)
	if !ok {
		return 0
	}
	return v
}

func (d *Device) floatOK(name string) (float64, bool) {
	s := d.str(name)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (d *Device) boolean(name string) bool {
	switch strings.ToLower(d.str(name)) {
	case "1", "yes", "true":
		return true
	}
	v, err := strconv.Atoi(d.str(name))
	return err == nil && v != 0
}

// micro reads a sysfs attribute reported in micro units.
func (d *Device) micro(name string) float64 {
	return d.float(name) / 1e6
}
