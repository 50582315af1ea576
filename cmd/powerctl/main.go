// Command powerctl queries a running powerd over D-Bus.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	godbus "github.com/godbus/dbus/v5"
)

type timeRange struct {
	Label    string
	Duration time.Duration
}

var timeRanges = []timeRange{
	{"15m", 15 * time.Minute},
	{"1h", time.Hour},
	{"3h", 3 * time.Hour},
	{"6h", 6 * time.Hour},
	{"24h", 24 * time.Hour},
	{"7d", 7 * 24 * time.Hour},
	{"all", 0},
}

func parseRange(label string) (time.Duration, error) {
	for _, tr := range timeRanges {
		if tr.Label == label {
			return tr.Duration, nil
		}
	}
	return 0, fmt.Errorf("unknown range %q", label)
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage:
  powerctl dump
  powerctl history [-range 6h] [-points 100] <device> [charge|rate|time-full|time-empty]
  powerctl stats <device> [charging|discharging]
  powerctl sleeps [-range 24h]
`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	client, err := newDBusClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "dump":
		err = dump(os.Stdout, client)
	case "history":
		err = history(os.Stdout, client, os.Args[2:])
	case "stats":
		err = stats(os.Stdout, client, os.Args[2:])
	case "sleeps":
		err = sleeps(os.Stdout, client, os.Args[2:], time.Now())
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "powerctl:", err)
		os.Exit(1)
	}
}

func dump(w io.Writer, c *dbusClient) error {
	paths, err := c.EnumerateDevices()
	if err != nil {
		return err
	}
	display, err := c.DisplayDevice()
	if err != nil {
		return err
	}
	for _, p := range append(paths, display) {
		props, err := c.DeviceProperties(p)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		fmt.Fprintf(w, "Device: %s\n", p)
		printProperties(w, props)
		fmt.Fprintln(w)
	}

	props, err := c.DaemonProperties()
	if err != nil {
		return err
	}
	action, err := c.CriticalAction()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Daemon:")
	props["CriticalAction"] = godbus.MakeVariant(action)
	printProperties(w, props)
	return nil
}

func history(w io.Writer, c *dbusClient, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	rangeFlag := fs.String("range", "6h", "time range: 15m, 1h, 3h, 6h, 24h, 7d or all")
	points := fs.Uint("points", 100, "maximum number of points")
	fs.Parse(args)
	if fs.NArg() < 1 {
		usage()
	}
	span, err := parseRange(*rangeFlag)
	if err != nil {
		return err
	}
	typ := "charge"
	if fs.NArg() > 1 {
		typ = fs.Arg(1)
	}

	path, err := findDevice(c, fs.Arg(0))
	if err != nil {
		return err
	}
	items, err := c.GetHistory(path, typ, uint32(span/time.Second), uint32(*points))
	if err != nil {
		return err
	}
	printHistory(w, items, typ)
	return nil
}

func stats(w io.Writer, c *dbusClient, args []string) error {
	if len(args) < 1 {
		usage()
	}
	typ := "discharging"
	if len(args) > 1 {
		typ = args[1]
	}
	path, err := findDevice(c, args[0])
	if err != nil {
		return err
	}
	items, err := c.GetStatistics(path, typ)
	if err != nil {
		return err
	}
	printStatistics(w, items)
	return nil
}

func sleeps(w io.Writer, c *dbusClient, args []string, now time.Time) error {
	fs := flag.NewFlagSet("sleeps", flag.ExitOnError)
	rangeFlag := fs.String("range", "24h", "time range: 15m, 1h, 3h, 6h, 24h, 7d or all")
	fs.Parse(args)
	span, err := parseRange(*rangeFlag)
	if err != nil {
		return err
	}
	var from int64
	if span > 0 {
		from = now.Add(-span).Unix()
	}
	items, err := c.SleepEvents(from, now.Unix())
	if err != nil {
		return err
	}
	printSleeps(w, items)
	return nil
}

func findDevice(c *dbusClient, name string) (godbus.ObjectPath, error) {
	paths, err := c.EnumerateDevices()
	if err != nil {
		return "", err
	}
	return resolveDevice(paths, name)
}
