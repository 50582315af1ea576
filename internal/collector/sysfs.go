package collector

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cptspacemanspiff/powerd/internal/device"
)

var (
	sysfsRoot   = "/sys"
	udevDataDir = "/run/udev/data"
)

// SysfsSource reads power supplies from /sys/class/power_supply. Handles
// are the supply's directory under the class.
type SysfsSource struct {
	root    string
	udevDir string
	log     *slog.Logger
}

// NewSysfsSource returns a source rooted at the system sysfs mount.
func NewSysfsSource(logger *slog.Logger) *SysfsSource {
	return &SysfsSource{root: sysfsRoot, udevDir: udevDataDir, log: logger}
}

// Handle returns the handle of the supply called name in subsystem.
func (s *SysfsSource) Handle(subsystem, name string) string {
	return filepath.Join(s.root, "class", subsystem, name)
}

// Coldplug lists every power supply present right now.
func (s *SysfsSource) Coldplug() ([]Event, error) {
	dir := filepath.Join(s.root, "class", "power_supply")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list power supplies: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	events := make([]Event, 0, len(names))
	for _, name := range names {
		events = append(events, Event{Action: ActionAdd, Handle: filepath.Join(dir, name), Source: s})
	}
	return events, nil
}

// Attribute reads a sysfs attribute file of handle, or one of the synthetic
// attributes describing the input device sharing its parent.
func (s *SysfsSource) Attribute(handle, name string) (string, bool) {
	switch name {
	case device.AttrInputClass:
		input := s.siblingInput(handle)
		if input == "" {
			return "", false
		}
		return s.inputClass(input), true
	case device.AttrInputName:
		return s.readInputAttr(handle, "name")
	case device.AttrInputUniq:
		return s.readInputAttr(handle, "uniq")
	case device.AttrKind:
		return "", false
	}

	data, err := os.ReadFile(filepath.Join(handle, name))
	if err != nil {
		return "", false
	}
	return strings.TrimRight(string(data), "\n"), true
}

// IsMacBook reports whether the DMI product name marks Apple hardware that
// never emits battery change events.
func (s *SysfsSource) IsMacBook() bool {
	data, err := os.ReadFile(filepath.Join(s.root, "class", "dmi", "id", "product_name"))
	if err != nil {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(string(data)), "MacBook")
}

func (s *SysfsSource) siblingInput(handle string) string {
	parent, err := filepath.EvalSymlinks(filepath.Join(handle, "device"))
	if err != nil {
		return ""
	}
	matches, _ := filepath.Glob(filepath.Join(parent, "input", "input*"))
	if len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return matches[0]
}

func (s *SysfsSource) readInputAttr(handle, name string) (string, bool) {
	input := s.siblingInput(handle)
	if input == "" {
		return "", false
	}
	data, err := os.ReadFile(filepath.Join(input, name))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// inputClass classifies an input device from the properties udev stored
// for it. Input devices udev did not flag are assumed to be keyboards.
func (s *SysfsSource) inputClass(input string) string {
	props := s.udevProperties("+input:" + filepath.Base(input))
	switch {
	case props["ID_INPUT_MOUSE"] == "1":
		return "mouse"
	case props["ID_INPUT_TOUCHPAD"] == "1":
		return "touchpad"
	case props["ID_INPUT_JOYSTICK"] == "1":
		return "joystick"
	}
	return "keyboard"
}

func (s *SysfsSource) udevProperties(id string) map[string]string {
	props := make(map[string]string)
	f, err := os.Open(filepath.Join(s.udevDir, id))
	if err != nil {
		s.log.Debug("no udev data", "id", id, "err", err)
		return props
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line, ok := strings.CutPrefix(scanner.Text(), "E:")
		if !ok {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok {
			props[k] = v
		}
	}
	return props
}
