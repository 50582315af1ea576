// Package policy decides how urgent a device's charge level is and what
// the daemon does when the system runs out of power.
package policy

import "log/slog"

// Thresholds configure the warning ladder. Percentages are compared
// against the charge percentage, times against time to empty in seconds.
type Thresholds struct {
	PercentageLow      float64
	PercentageCritical float64
	PercentageAction   float64
	TimeLow            int64
	TimeCritical       int64
	TimeAction         int64
	// UsePercentageForPolicy disables the time ladder even when a time
	// estimate is available.
	UsePercentageForPolicy bool
}

// DefaultThresholds returns the built-in ladder.
func DefaultThresholds() Thresholds {
	t := Thresholds{}
	t.setDefaultPercentages()
	t.setDefaultTimes()
	return t
}

func (t *Thresholds) setDefaultPercentages() {
	t.PercentageLow = 10
	t.PercentageCritical = 3
	t.PercentageAction = 2
}

func (t *Thresholds) setDefaultTimes() {
	t.TimeLow = 1200
	t.TimeCritical = 300
	t.TimeAction = 120
}

// Normalize replaces each threshold set that is not strictly descending
// (or, for percentages, not below 100) with the defaults, logging once per
// replaced set.
func (t Thresholds) Normalize(log *slog.Logger) Thresholds {
	if log == nil {
		log = slog.Default()
	}
	if t.PercentageLow >= 100 || t.PercentageCritical >= 100 || t.PercentageAction >= 100 ||
		!(t.PercentageLow > t.PercentageCritical && t.PercentageCritical > t.PercentageAction) {
		log.Warn("invalid percentage thresholds, using defaults",
			"low", t.PercentageLow, "critical", t.PercentageCritical, "action", t.PercentageAction)
		t.setDefaultPercentages()
	}
	if !(t.TimeLow > t.TimeCritical && t.TimeCritical > t.TimeAction) {
		log.Warn("invalid time thresholds, using defaults",
			"low", t.TimeLow, "critical", t.TimeCritical, "action", t.TimeAction)
		t.setDefaultTimes()
	}
	return t
}
