package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	godbus "github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/powerd/internal/device"
)

// printProperties writes one "name: value" line per property, sorted by
// name, decoding the enum-valued ones.
func printProperties(w io.Writer, props map[string]godbus.Variant) {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(tw, "  %s:\t%s\n", name, formatValue(name, props[name].Value()))
	}
	tw.Flush()
}

func formatValue(name string, v any) string {
	switch name {
	case "Type":
		if u, ok := v.(uint32); ok {
			return device.Kind(u).String()
		}
	case "State":
		if u, ok := v.(uint32); ok {
			return device.State(u).String()
		}
	case "Technology":
		if u, ok := v.(uint32); ok {
			return device.Technology(u).String()
		}
	case "WarningLevel", "BatteryLevel":
		if u, ok := v.(uint32); ok {
			return device.Level(u).String()
		}
	case "UpdateTime":
		if u, ok := v.(uint64); ok && u > 0 {
			return time.Unix(int64(u), 0).Format(time.DateTime)
		}
	case "TimeToEmpty", "TimeToFull":
		if s, ok := v.(int64); ok && s > 0 {
			return (time.Duration(s) * time.Second).String()
		}
	case "Percentage":
		if f, ok := v.(float64); ok {
			return fmt.Sprintf("%.1f%%", f)
		}
	case "EnergyRate":
		if f, ok := v.(float64); ok {
			return fmt.Sprintf("%.1f W", f)
		}
	case "Energy", "EnergyEmpty", "EnergyFull", "EnergyFullDesign":
		if f, ok := v.(float64); ok {
			return fmt.Sprintf("%.2f Wh", f)
		}
	}
	return fmt.Sprint(v)
}

func printHistory(w io.Writer, items []historyItem, typ string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "TIME\t%s\tSTATE\n", strings.ToUpper(typ))
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%.2f\t%s\n",
			time.Unix(int64(it.Time), 0).Format(time.DateTime), it.Value, device.State(it.State))
	}
	tw.Flush()
}

// printStatistics skips the percentages that have no samples.
func printStatistics(w io.Writer, items []statsItem) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PERCENT\tSECONDS/PERCENT\tACCURACY")
	for i, it := range items {
		if it.Accuracy == 0 {
			continue
		}
		fmt.Fprintf(tw, "%d\t%.1f\t%.0f%%\n", i, it.Value, it.Accuracy)
	}
	tw.Flush()
}

func printSleeps(w io.Writer, items []sleepItem) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLEEP\tWAKE\tDURATION\tTYPE")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			time.Unix(it.SleepTime, 0).Format(time.DateTime),
			time.Unix(it.WakeTime, 0).Format(time.DateTime),
			time.Duration(it.WakeTime-it.SleepTime)*time.Second,
			it.Type)
	}
	tw.Flush()
}
