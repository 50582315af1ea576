package collector

import "github.com/cptspacemanspiff/powerd/internal/device"

// Action is the kind of change a device source reports.
type Action int

const (
	ActionAdd Action = iota
	ActionRemove
	ActionChange
)

func (a Action) String() string {
	switch a {
	case ActionAdd:
		return "add"
	case ActionRemove:
		return "remove"
	case ActionChange:
		return "change"
	}
	return "unknown"
}

// Event announces a device appearing, disappearing or changing. Source is
// where the device's attributes are read from.
type Event struct {
	Action Action
	Handle string
	Source device.Source
}

// SleepEvent records a sleep/wake cycle.
type SleepEvent struct {
	SleepTime int64  `json:"sleep_time"`
	WakeTime  int64  `json:"wake_time"`
	Type      string `json:"type"` // "suspend", "hibernate", or "unknown"
}
