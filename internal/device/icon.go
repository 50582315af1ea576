package device

import "fmt"

// IconName picks the symbolic icon for the given readings.
func IconName(p Properties) string {
	if p.Kind == KindLinePower {
		return "ac-adapter-symbolic"
	}
	if !p.IsPresent {
		return "battery-missing-symbolic"
	}
	switch p.State {
	case StateEmpty:
		return "battery-empty-symbolic"
	case StateFullyCharged:
		return "battery-full-charged-symbolic"
	case StateCharging, StatePendingCharge:
		return chargeIcon(p.Percentage, p.BatteryLevel, true)
	case StateDischarging, StatePendingDischarge:
		return chargeIcon(p.Percentage, p.BatteryLevel, false)
	}
	return "battery-missing-symbolic"
}

func chargeIcon(percentage float64, level Level, charging bool) string {
	var name string
	switch level {
	case LevelNone:
		switch {
		case percentage < 10:
			name = "caution"
		case percentage < 30:
			name = "low"
		case percentage < 60:
			name = "good"
		default:
			name = "full"
		}
	case LevelUnknown:
		if charging {
			name = "good"
		} else {
			name = "caution"
		}
	case LevelLow, LevelCritical:
		name = "caution"
	case LevelNormal:
		name = "low"
	case LevelHigh:
		name = "good"
	case LevelFull:
		name = "full"
	default:
		panic(fmt.Sprintf("device: battery level %v has no icon", level))
	}
	if charging {
		return "battery-" + name + "-charging-symbolic"
	}
	return "battery-" + name + "-symbolic"
}
