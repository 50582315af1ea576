package policy

import "github.com/cptspacemanspiff/powerd/internal/device"

// WarningLevel maps readings to a warning level. Only a discharging device
// can warn; mice and keyboards use a fixed coarse ladder because their
// firmware reports few distinct levels.
func WarningLevel(state device.State, kind device.Kind, powerSupply bool, percentage float64, timeToEmpty int64, t Thresholds) device.Level {
	if state != device.StateDischarging {
		return device.LevelNone
	}

	defaultLevel := device.LevelNone
	switch kind {
	case device.KindMouse, device.KindKeyboard:
		switch {
		case percentage <= 5:
			return device.LevelCritical
		case percentage <= 10:
			return device.LevelLow
		}
		return device.LevelNone
	case device.KindUps:
		defaultLevel = device.LevelDischarging
	}

	if powerSupply && !t.UsePercentageForPolicy && timeToEmpty > 0 {
		switch {
		case timeToEmpty > t.TimeLow:
			return defaultLevel
		case timeToEmpty > t.TimeCritical:
			return device.LevelLow
		case timeToEmpty > t.TimeAction:
			return device.LevelCritical
		}
		return device.LevelAction
	}

	switch {
	case percentage > t.PercentageLow:
		return defaultLevel
	case percentage > t.PercentageCritical:
		return device.LevelLow
	case percentage > t.PercentageAction:
		return device.LevelCritical
	}
	return device.LevelAction
}

// DeviceLevel is the warning level exported on a device. A hardware
// reported battery level takes precedence except at Critical, where the
// computed ladder decides between Critical and Action.
func DeviceLevel(p device.Properties, t Thresholds) device.Level {
	if p.BatteryLevel != device.LevelNone && p.BatteryLevel != device.LevelCritical {
		if p.BatteryLevel == device.LevelLow {
			return device.LevelLow
		}
		return device.LevelNone
	}
	return WarningLevel(p.State, p.Kind, p.PowerSupply, p.Percentage, p.TimeToEmpty, t)
}

// DisplayLevel is the daemon-wide warning level derived from the composite
// device. onAC reports whether any line-power supply is online.
func DisplayLevel(display device.Properties, onAC bool, t Thresholds) device.Level {
	switch display.Kind {
	case device.KindUps:
		if display.State != device.StateDischarging {
			return device.LevelNone
		}
	case device.KindBattery:
		// the batteries may not have noticed the AC yet
		if onAC {
			return device.LevelNone
		}
	default:
		return device.LevelNone
	}
	return WarningLevel(display.State, display.Kind, true, display.Percentage, display.TimeToEmpty, t)
}
