package device

import "strings"

// Kind is the type of power source a device represents. The numeric values
// are part of the D-Bus wire format and must not be reordered.
type Kind uint32

const (
	KindUnknown Kind = iota
	KindLinePower
	KindBattery
	KindUps
	KindMonitor
	KindMouse
	KindKeyboard
	KindPda
	KindPhone
	KindMediaPlayer
	KindTablet
	KindComputer
	KindGamingInput
)

var kindNames = [...]string{
	KindUnknown:     "unknown",
	KindLinePower:   "line-power",
	KindBattery:     "battery",
	KindUps:         "ups",
	KindMonitor:     "monitor",
	KindMouse:       "mouse",
	KindKeyboard:    "keyboard",
	KindPda:         "pda",
	KindPhone:       "phone",
	KindMediaPlayer: "media-player",
	KindTablet:      "tablet",
	KindComputer:    "computer",
	KindGamingInput: "gaming-input",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// ParseKind is the inverse of Kind.String. Unrecognized names map to KindUnknown.
func ParseKind(s string) Kind {
	for i, name := range kindNames {
		if name == s {
			return Kind(i)
		}
	}
	return KindUnknown
}

// State is the charge state of a device.
type State uint32

const (
	StateUnknown State = iota
	StateCharging
	StateDischarging
	StateEmpty
	StateFullyCharged
	StatePendingCharge
	StatePendingDischarge
)

var stateNames = [...]string{
	StateUnknown:          "unknown",
	StateCharging:         "charging",
	StateDischarging:      "discharging",
	StateEmpty:            "empty",
	StateFullyCharged:     "fully-charged",
	StatePendingCharge:    "pending-charge",
	StatePendingDischarge: "pending-discharge",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// ParseState is the inverse of State.String.
func ParseState(s string) State {
	for i, name := range stateNames {
		if name == s {
			return State(i)
		}
	}
	return StateUnknown
}

// Technology is the battery chemistry.
type Technology uint32

const (
	TechnologyUnknown Technology = iota
	TechnologyLithiumIon
	TechnologyLithiumPolymer
	TechnologyLithiumIronPhosphate
	TechnologyLeadAcid
	TechnologyNickelCadmium
	TechnologyNickelMetalHydride
)

var technologyNames = [...]string{
	TechnologyUnknown:              "unknown",
	TechnologyLithiumIon:           "lithium-ion",
	TechnologyLithiumPolymer:       "lithium-polymer",
	TechnologyLithiumIronPhosphate: "lithium-iron-phosphate",
	TechnologyLeadAcid:             "lead-acid",
	TechnologyNickelCadmium:        "nickel-cadmium",
	TechnologyNickelMetalHydride:   "nickel-metal-hydride",
}

func (t Technology) String() string {
	if int(t) < len(technologyNames) {
		return technologyNames[t]
	}
	return "unknown"
}

// ParseTechnology converts the free-form chemistry strings reported by
// firmware into a Technology. Matching is case-insensitive.
func ParseTechnology(s string) Technology {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "li-ion", "lion":
		return TechnologyLithiumIon
	case "pb", "pbac":
		return TechnologyLeadAcid
	case "lip", "lipo", "li-poly":
		return TechnologyLithiumPolymer
	case "nimh":
		return TechnologyNickelMetalHydride
	case "nicd":
		return TechnologyNickelCadmium
	case "life":
		return TechnologyLithiumIronPhosphate
	}
	return TechnologyUnknown
}

// Level is shared by the computed warning level and the hardware reported
// battery level. Warning levels only use Unknown through Action.
type Level uint32

const (
	LevelUnknown Level = iota
	LevelNone
	LevelDischarging
	LevelLow
	LevelCritical
	LevelAction
	LevelNormal
	LevelHigh
	LevelFull
)

var levelNames = [...]string{
	LevelUnknown:     "unknown",
	LevelNone:        "none",
	LevelDischarging: "discharging",
	LevelLow:         "low",
	LevelCritical:    "critical",
	LevelAction:      "action",
	LevelNormal:      "normal",
	LevelHigh:        "high",
	LevelFull:        "full",
}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}
