package device

import (
	"fmt"
	"strings"
)

// HistoryID returns the identifier history is stored under so that it
// survives re-plugging and reboots. Line power and absent batteries have
// no history and return "".
func HistoryID(p Properties) string {
	var parts []string
	switch p.Kind {
	case KindLinePower:
		return ""
	case KindBattery:
		if !p.IsPresent {
			return ""
		}
		if len(p.Model) > 2 {
			parts = append(parts, p.Model)
		}
		if p.EnergyFullDesign > 0 {
			parts = append(parts, fmt.Sprintf("%d", uint(p.EnergyFullDesign)))
		}
		if len(p.Serial) > 2 {
			parts = append(parts, p.Serial)
		}
	default:
		for _, s := range []string{p.Vendor, p.Model, p.Serial} {
			if s != "" {
				parts = append(parts, s)
			}
		}
	}
	id := strings.Join(parts, "-")
	if id == "" {
		id = "generic_id"
	}
	return historyIDReplacer.Replace(id)
}

var historyIDReplacer = strings.NewReplacer(
	`\`, "_", "\t", "_", `"`, "_", "?", "_", "'", "_", " ", "_", "/", "_", ",", "_", ".", "_",
)
