package device

import (
	"math"
	"strings"
	"unicode/utf8"
)

const (
	epsilon          = 0.01
	chargedThreshold = 90.0
	// ACPI reports all-ones when it cannot work out the rate.
	rateUnavailable = 0xffff
	maxRate         = 100.0
	maxTimeToEmpty  = 240 * 60 * 60
	maxTimeToFull   = 20 * 60 * 60
)

func (d *Device) refreshBattery() Result {
	p := &d.Props

	isPresent := true
	if d.exists("present") {
		isPresent = d.boolean("present")
	}
	p.IsPresent = isPresent
	if !isPresent {
		d.resetValues()
		p.IsPresent = false
		return ResultSuccess
	}

	energy := d.micro("energy_now")
	if energy < epsilon {
		energy = d.micro("energy_avg")
	}

	voltageDesign := d.designVoltage()

	if !d.hasColdplugValues || d.unitsChanged() {
		d.coldplugBattery(voltageDesign)
	}
	energyFull := p.EnergyFull
	energyFullDesign := p.EnergyFullDesign

	state := d.status()

	energyRate := math.Abs(d.micro("power_now"))
	if energyRate < epsilon {
		if energy < epsilon {
			energy = d.micro("charge_now")
			if energy < epsilon {
				energy = d.micro("charge_avg")
			}
			energy *= voltageDesign
		}

		chargeFull := d.micro("charge_full")
		if chargeFull < epsilon {
			chargeFull = d.micro("charge_full_design")
		}

		// current_now is in µA when charge_* exists, otherwise it is
		// already µW.
		energyRate = math.Abs(d.micro("current_now"))
		if chargeFull != 0 {
			energyRate *= voltageDesign
		}
	}

	if energy > energyFull {
		d.log.Warn("energy bigger than full", "energy", energy, "energy_full", energyFull)
		energyFull = energy
	}

	voltage := d.micro("voltage_now")
	if voltage < epsilon {
		voltage = d.micro("voltage_avg")
	}

	if energyRate == rateUnavailable {
		energyRate = 0
	}
	if energyRate > maxRate {
		energyRate = 0
	}
	if energyRate < epsilon {
		energyRate = d.rate.Estimate(energy, d.now())
	}

	var percentage float64
	if capacity, ok := d.floatOK("capacity"); ok {
		percentage = clamp(capacity, 0, 100)
		// some firmware only provides capacity
		if energy < 0.1 && energyFull > 0 {
			energy = energyFull * percentage / 100
		}
	} else if energyFull > 0 {
		percentage = clamp(100*energy/energyFull, 0, 100)
	}

	if state == StatePendingCharge && percentage == 100 {
		state = StateFullyCharged
	}

	if state == StateUnknown && d.powerSupply {
		state = d.guessState(percentage)
	}

	if state == StateUnknown && energy < epsilon {
		d.log.Warn("setting state empty as unknown and very low")
		state = StateEmpty
	}

	// some batteries report huge rates when nearly empty
	if energy < 0.1 {
		energyRate = 0
	}

	timeToEmpty, timeToFull := TimeRemaining(state, energy, energyFull, energyRate)

	temp := d.float("temp") / 10

	if d.rate.Push(energy, d.now()) {
		d.rate.SetCached(energyRate)
	}

	if p.State != state {
		d.rate.Reset()
	}

	p.Energy = energy
	p.EnergyFull = energyFull
	p.EnergyFullDesign = energyFullDesign
	p.EnergyRate = energyRate
	p.Percentage = percentage
	p.State = state
	p.Voltage = voltage
	p.TimeToEmpty = timeToEmpty
	p.TimeToFull = timeToFull
	p.Temperature = temp

	d.setupUnknownRetry(state)
	return ResultSuccess
}

// coldplugBattery captures the values that only change when the battery
// is swapped or switches between charge and energy reporting.
func (d *Device) coldplugBattery(voltageDesign float64) {
	p := &d.Props
	p.PowerSupply = d.powerSupply
	p.Technology = ParseTechnology(d.str("technology"))
	p.Vendor = makeSafe(d.str("manufacturer"))
	p.Model = makeSafe(d.str("model_name"))
	p.Serial = makeSafe(d.str("serial_number"))
	p.IsRechargeable = true
	p.HasHistory = true
	p.HasStatistics = true

	d.coldplugUnits = unitsEnergy
	energyFull := d.micro("energy_full")
	energyFullDesign := d.micro("energy_full_design")
	if energyFull < epsilon {
		energyFull = d.micro("charge_full") * voltageDesign
		energyFullDesign = d.micro("charge_full_design") * voltageDesign
		d.coldplugUnits = unitsCharge
	}

	if energyFull > energyFullDesign {
		d.log.Warn("energy_full is greater than energy_full_design",
			"energy_full", energyFull, "energy_full_design", energyFullDesign)
	}
	if energyFull < epsilon && energyFullDesign > epsilon {
		d.log.Warn("correcting energy_full using energy_full_design",
			"energy_full", energyFull, "energy_full_design", energyFullDesign)
		energyFull = energyFullDesign
	}

	capacity := 100.0
	if energyFull > 0 {
		capacity = clamp(energyFull/energyFullDesign*100, 0, 100)
	}
	p.EnergyFull = energyFull
	p.EnergyFullDesign = energyFullDesign
	p.Capacity = capacity
	d.hasColdplugValues = true
}

func (d *Device) unitsChanged() bool {
	switch d.coldplugUnits {
	case unitsCharge:
		if d.exists("charge_now") || d.exists("charge_avg") {
			return false
		}
	case unitsEnergy:
		if d.exists("energy_now") || d.exists("energy_avg") {
			return false
		}
	}
	return true
}

func (d *Device) designVoltage() float64 {
	for _, name := range []string{"voltage_max_design", "voltage_min_design", "voltage_present", "voltage_now"} {
		if v := d.micro(name); v > 1 {
			return v
		}
	}
	if strings.EqualFold(d.str("type"), "USB") {
		return 5
	}
	if !d.shownVoltageWarning {
		d.shownVoltageWarning = true
		d.log.Warn("no valid voltage value found, assuming 10V")
	}
	return 10
}

func (d *Device) status() State {
	status := d.str("status")
	switch strings.ToLower(status) {
	case "", "unknown":
		return StateUnknown
	case "charging":
		return StateCharging
	case "discharging":
		return StateDischarging
	case "full":
		return StateFullyCharged
	case "empty":
		return StateEmpty
	case "not charging":
		return StatePendingCharge
	}
	d.log.Warn("unknown status string", "status", status)
	return StateUnknown
}

// guessState picks a state for a power-feeding battery whose firmware
// reports neither charging nor discharging.
func (d *Device) guessState(percentage float64) State {
	hasAC, acOnline := d.env.LinePower()
	state := StateUnknown
	switch {
	case hasAC && acOnline:
		if percentage > chargedThreshold {
			state = StateFullyCharged
		} else {
			state = StateCharging
		}
	case hasAC:
		state = dischargingOrEmpty(percentage)
	case d.env.BatteryCount() == 1:
		// with several batteries and no AC there is nothing to go on
		state = dischargingOrEmpty(percentage)
	}
	d.log.Debug("guessing battery state", "state", state, "ac_present", hasAC, "ac_online", acOnline)
	return state
}

func dischargingOrEmpty(percentage float64) State {
	if percentage < 1 {
		return StateEmpty
	}
	return StateDischarging
}

// TimeRemaining returns time to empty and time to full in seconds,
// discarding values too large to be believable.
func TimeRemaining(state State, energy, energyFull, rate float64) (toEmpty, toFull int64) {
	if rate > 0 {
		switch state {
		case StateDischarging:
			toEmpty = int64(secondsPerHour * (energy / rate))
		case StateCharging:
			toFull = int64(secondsPerHour * ((energyFull - energy) / rate))
		}
	}
	if toEmpty > maxTimeToEmpty {
		toEmpty = 0
	}
	if toFull > maxTimeToFull {
		toFull = 0
	}
	return toEmpty, toFull
}

// makeSafe strips non-printable bytes from strings that are not valid UTF-8.
func makeSafe(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= 0x20 && c < 0x7f {
			b.WriteByte(c)
		}
	}
	return b.String()
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
