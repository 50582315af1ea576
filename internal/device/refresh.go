package device

import "strings"

// Coldplug probes a newly discovered device and fixes its kind and scope.
// It returns false when the device should not be tracked at all.
func (d *Device) Coldplug() bool {
	switch scope := d.str("scope"); {
	case strings.EqualFold(scope, "device"):
		d.powerSupply = false
	case strings.EqualFold(scope, "system"):
		d.powerSupply = true
	default:
		d.log.Debug("taking a guess for power supply scope")
		d.powerSupply = true
	}

	// device-scoped chargers are covered by the device's own battery
	if !d.powerSupply && !d.exists("capacity") && !d.exists("capacity_level") {
		d.log.Debug("ignoring device AC, monitoring the device battery instead")
		return false
	}

	kind := ParseKind(d.str(AttrKind))
	if kind == KindUnknown {
		kind = d.guessKind()
	} else {
		d.kindSettled = true
	}
	if kind == KindUnknown {
		if d.exists("online") {
			kind = KindLinePower
		} else {
			kind = KindBattery
		}
	}
	d.Props.Kind = kind
	return true
}

// guessKind derives a kind from the type attribute and, for peripheral
// batteries, from the input device that shares their parent.
func (d *Device) guessKind() Kind {
	typ := d.str("type")
	switch {
	case typ == "":
		return KindUnknown
	case strings.EqualFold(typ, "mains"):
		return KindLinePower
	case strings.EqualFold(typ, "battery"):
		switch d.str(AttrInputClass) {
		case "":
			return KindBattery
		case "mouse", "touchpad":
			return KindMouse
		case "joystick":
			return KindGamingInput
		default:
			return KindKeyboard
		}
	case strings.EqualFold(typ, "USB"):
		if strings.Contains(d.Handle, "wacom_") {
			return KindTablet
		}
		d.log.Warn("did not recognise USB path, please report")
	default:
		d.log.Warn("did not recognise type, please report", "type", typ)
	}
	return KindUnknown
}

func (d *Device) refreshLinePower() Result {
	d.Props.PowerSupply = d.powerSupply
	d.Props.Online = d.boolean("online")
	return ResultSuccess
}

// Refresh re-reads the device and updates its readings. Derived fields
// (warning level, icon) are left to the caller. When nothing changed the
// result is ResultNoChange and UpdateTime is not advanced.
func (d *Device) Refresh() Result {
	before := d.Props
	d.retryWanted = false

	var res Result
	switch d.Variant() {
	case VariantDisplay:
		return ResultNoChange
	case VariantLinePower:
		res = d.refreshLinePower()
	case VariantBattery:
		res = d.refreshBattery()
	case VariantPeripheral:
		res = d.refreshPeripheral()
	default:
		panic("device: unhandled variant " + d.Variant().String())
	}

	if res != ResultSuccess {
		return res
	}
	if d.Props == before {
		return ResultNoChange
	}
	d.Props.UpdateTime = uint64(d.now().Unix())
	return ResultSuccess
}

// setupUnknownRetry decides whether a one-second retry should follow this
// refresh. Retries are rate limited to one counted attempt per second and
// the budget resets once exhausted, so a device that never reports a state
// keeps retrying in short bursts at every normal poll.
func (d *Device) setupUnknownRetry(state State) {
	if d.noPoll {
		return
	}
	needsPoll := d.env != nil && d.env.NeedsPollAfterUevent()
	if d.unknownRetries < unknownRetries && (state == StateUnknown || needsPoll) {
		d.retryWanted = true
		now := d.now()
		if now.Sub(d.lastUnknownRetry) >= RetryDelay {
			d.unknownRetries++
		}
		d.lastUnknownRetry = now
		return
	}
	d.unknownRetries = 0
}
