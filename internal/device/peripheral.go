package device

import "strings"

var capacityLevels = []struct {
	name       string
	percentage float64
	level      Level
}{
	{"Normal", 55, LevelNormal},
	{"High", 70, LevelHigh},
	{"Low", 10, LevelLow},
	{"Critical", 5, LevelCritical},
	{"Full", 100, LevelFull},
	{"Unknown", 50, LevelUnknown},
}

// capacityLevel maps the coarse capacity_level attribute to a percentage.
// A negative percentage means no usable reading.
func (d *Device) capacityLevel() (float64, Level) {
	raw, ok := d.src.Attribute(d.Handle, "capacity_level")
	if !ok {
		return -1, LevelNone
	}
	raw = strings.TrimSpace(raw)
	for _, l := range capacityLevels {
		if l.name == raw {
			return l.percentage, l.level
		}
	}
	d.log.Debug("no percentage for capacity level", "level", raw)
	return -1, LevelUnknown
}

func (d *Device) refreshPeripheral() Result {
	p := &d.Props

	if p.Kind == KindBattery && !d.kindSettled {
		if kind := d.guessKind(); kind != KindBattery && kind != KindUnknown {
			d.log.Debug("corrected device kind", "kind", kind)
			p.Kind = kind
			d.kindSettled = true
		}
	}

	if !d.hasColdplugValues {
		model := d.str("model_name")
		serial := d.str("serial_number")
		if model == "" && serial == "" {
			model = d.str(AttrInputName)
			serial = d.str(AttrInputUniq)
		}
		p.IsPresent = true
		p.Model = makeSafe(model)
		p.Serial = makeSafe(serial)
		p.IsRechargeable = true
		p.HasHistory = true
		p.HasStatistics = true
		p.PowerSupply = d.powerSupply
		d.hasColdplugValues = true
	}

	level := LevelNone
	percentage, ok := d.floatOK("capacity")
	if !ok {
		percentage, level = d.capacityLevel()
	}

	if percentage < 0 {
		// usually a Bluetooth device that has not reported yet
		p.State = StateUnknown
		d.setupUnknownRetry(StateUnknown)
		return ResultNoData
	}
	percentage = clamp(percentage, 0, 100)

	state := d.status()
	// these devices often claim to be discharging forever
	if percentage == 100 {
		state = StateFullyCharged
	}
	if state != StateUnknown {
		d.unknownRetries = 0
	}

	p.Percentage = percentage
	p.BatteryLevel = level
	p.State = state
	d.setupUnknownRetry(state)
	return ResultSuccess
}
