package storage

import (
	"fmt"
	"math"

	"github.com/cptspacemanspiff/powerd/internal/device"
)

// HistoryKind names one recorded reading.
type HistoryKind string

const (
	HistoryCharge    HistoryKind = "charge"
	HistoryRate      HistoryKind = "rate"
	HistoryTimeFull  HistoryKind = "time-full"
	HistoryTimeEmpty HistoryKind = "time-empty"
)

// ParseHistoryKind validates a history type requested by a client.
func ParseHistoryKind(s string) (HistoryKind, error) {
	switch k := HistoryKind(s); k {
	case HistoryCharge, HistoryRate, HistoryTimeFull, HistoryTimeEmpty:
		return k, nil
	}
	return "", fmt.Errorf("history type %q: %w", s, ErrNoHistory)
}

// HistoryPoint is one recorded reading.
type HistoryPoint struct {
	Time  int64
	Value float64
	State device.State
}

// StatsPoint is one percentage step of a charge or discharge profile.
type StatsPoint struct {
	// Value is the mean number of seconds spent per percent.
	Value float64
	// Accuracy is 0 to 100.
	Accuracy float64
}

// StatsBins is the number of points GetStatistics always returns, one per
// integer percentage.
const StatsBins = 101

// accuracyFullAt is the sample count at which a profile bin is fully trusted.
const accuracyFullAt = 20

// GetHistory returns the points of kind recorded in the last timespan
// seconds before now (all of them when timespan is 0), averaged down to at
// most resolution points. Points are returned newest first.
func (d *DB) GetHistory(deviceID string, kind HistoryKind, timespan, resolution uint32, now int64) ([]HistoryPoint, error) {
	if _, err := ParseHistoryKind(string(kind)); err != nil {
		return nil, err
	}
	var from int64
	if timespan > 0 {
		from = now - int64(timespan)
	}
	points, err := d.pointsSince(deviceID, kind, from)
	if err != nil {
		return nil, fmt.Errorf("query %s history: %w", kind, err)
	}
	if len(points) == 0 {
		return []HistoryPoint{}, nil
	}

	if resolution > 0 && len(points) > int(resolution) {
		start := from
		if timespan == 0 {
			start = points[0].Time
		}
		points = reduce(points, start, now, int(resolution))
	}

	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

// reduce averages oldest-first points into equal-width time bins between
// start and end. Empty bins produce no point; a bin takes the state of its
// newest point.
func reduce(points []HistoryPoint, start, end int64, bins int) []HistoryPoint {
	width := float64(end-start+1) / float64(bins)
	if width <= 0 {
		width = 1
	}

	type acc struct {
		time, value float64
		n           int
		state       device.State
	}
	accs := make([]acc, bins)
	for _, pt := range points {
		i := int(float64(pt.Time-start) / width)
		i = max(0, min(i, bins-1))
		accs[i].time += float64(pt.Time)
		accs[i].value += pt.Value
		accs[i].n++
		accs[i].state = pt.State
	}

	out := make([]HistoryPoint, 0, bins)
	for _, a := range accs {
		if a.n == 0 {
			continue
		}
		n := float64(a.n)
		out = append(out, HistoryPoint{
			Time:  int64(math.Round(a.time / n)),
			Value: a.value / n,
			State: a.state,
		})
	}
	return out
}

// GetStatistics derives a charge (charging == true) or discharge profile
// from the charge history: for every integer percentage the mean seconds
// per percent observed while in that state.
func (d *DB) GetStatistics(deviceID string, charging bool) ([]StatsPoint, error) {
	points, err := d.pointsSince(deviceID, HistoryCharge, 0)
	if err != nil {
		return nil, fmt.Errorf("query charge history: %w", err)
	}
	want := device.StateDischarging
	if charging {
		want = device.StateCharging
	}
	return profile(points, want), nil
}

func profile(points []HistoryPoint, want device.State) []StatsPoint {
	var total [StatsBins]float64
	var count [StatsBins]int

	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		if a.State != want || b.State != want {
			continue
		}
		dt := float64(b.Time - a.Time)
		dp := b.Value - a.Value
		if want == device.StateDischarging {
			dp = -dp
		}
		if dt <= 0 || dp <= 0 {
			continue
		}
		bin := int(math.Floor(a.Value))
		bin = max(0, min(bin, StatsBins-1))
		total[bin] += dt / dp
		count[bin]++
	}

	out := make([]StatsPoint, StatsBins)
	for i := range out {
		if count[i] == 0 {
			continue
		}
		out[i] = StatsPoint{
			Value:    total[i] / float64(count[i]),
			Accuracy: float64(min(count[i], accuracyFullAt)) * 100 / accuracyFullAt,
		}
	}
	return out
}
