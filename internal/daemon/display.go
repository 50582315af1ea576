package daemon

import (
	"math"

	"github.com/cptspacemanspiff/powerd/internal/device"
)

const secondsPerHour = 3600

// Composite holds the aggregated readings of the display device.
type Composite struct {
	Kind        device.Kind
	State       device.State
	Percentage  float64
	Energy      float64
	EnergyFull  float64
	EnergyRate  float64
	TimeToEmpty int64
	TimeToFull  int64
	IsPresent   bool
}

// compositeRank orders the states a battery contributes to the composite.
// The highest ranked state among the batteries wins, which makes the fold
// independent of enumeration order.
func compositeRank(s device.State) int {
	switch s {
	case device.StateCharging:
		return 4
	case device.StateDischarging:
		return 3
	case device.StatePendingCharge:
		return 2
	case device.StateFullyCharged:
		return 1
	}
	return 0
}

// Compose folds the devices into the composite. A UPS, if any, is mirrored
// as is; otherwise the power-feeding batteries are summed.
func Compose(devices []device.Properties) Composite {
	var c Composite
	batteries := 0
	for _, p := range devices {
		if p.Kind == device.KindUps {
			return Composite{
				Kind:        device.KindUps,
				State:       p.State,
				Percentage:  p.Percentage,
				Energy:      p.Energy,
				EnergyFull:  p.EnergyFull,
				EnergyRate:  p.EnergyRate,
				TimeToEmpty: p.TimeToEmpty,
				TimeToFull:  p.TimeToFull,
				IsPresent:   true,
			}
		}
	}

	for _, p := range devices {
		if p.Kind != device.KindBattery || !p.PowerSupply {
			continue
		}
		if compositeRank(p.State) > compositeRank(c.State) {
			c.State = p.State
		}
		c.Kind = device.KindBattery
		c.IsPresent = true
		c.Energy += p.Energy
		c.EnergyFull += p.EnergyFull
		c.EnergyRate += p.EnergyRate
		c.TimeToEmpty += p.TimeToEmpty
		c.TimeToFull += p.TimeToFull
		c.Percentage += p.Percentage
		batteries++
	}
	if batteries <= 1 {
		return c
	}

	// weight by capacity instead of averaging percentages
	if c.EnergyFull > 0 {
		c.Percentage = math.Max(0, math.Min(100, 100*c.Energy/c.EnergyFull))
	}
	if c.EnergyRate > 0 {
		switch c.State {
		case device.StateDischarging:
			c.TimeToEmpty = int64(secondsPerHour * math.Max(0, c.Energy/c.EnergyRate))
		case device.StateCharging:
			c.TimeToFull = int64(secondsPerHour * math.Max(0, (c.EnergyFull-c.Energy)/c.EnergyRate))
		}
	}
	return c
}

// apply copies c into the display device. It reports whether any of the
// aggregated readings changed; presence alone does not count.
func (c Composite) apply(display *device.Device, now uint64) bool {
	p := &display.Props
	cur := Composite{
		Kind:        p.Kind,
		State:       p.State,
		Percentage:  p.Percentage,
		Energy:      p.Energy,
		EnergyFull:  p.EnergyFull,
		EnergyRate:  p.EnergyRate,
		TimeToEmpty: p.TimeToEmpty,
		TimeToFull:  p.TimeToFull,
		IsPresent:   c.IsPresent,
	}
	if cur == c {
		return false
	}
	p.Kind = c.Kind
	p.State = c.State
	p.Percentage = c.Percentage
	p.Energy = c.Energy
	p.EnergyFull = c.EnergyFull
	p.EnergyRate = c.EnergyRate
	p.TimeToEmpty = c.TimeToEmpty
	p.TimeToFull = c.TimeToFull
	p.IsPresent = c.IsPresent
	p.PowerSupply = true
	p.UpdateTime = now
	return true
}
