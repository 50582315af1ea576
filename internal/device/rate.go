package device

import (
	"math"
	"time"
)

const (
	rateSamples    = 4
	secondsPerHour = 3600.0
)

type energySample struct {
	energy float64
	ts     int64 // unix seconds, 0 means unused
}

// RateEstimator smooths the charge/discharge rate of a battery whose
// firmware does not report one, using a least-squares fit over the last few
// distinct energy readings.
type RateEstimator struct {
	samples [rateSamples]energySample
	newest  int
	cached  float64
}

// Push records energy if it differs from the newest stored value, overwriting
// the oldest slot. It reports whether a value was stored.
func (r *RateEstimator) Push(energy float64, now time.Time) bool {
	if r.samples[r.newest].energy == energy {
		return false
	}
	pos := (r.newest + rateSamples - 1) % rateSamples
	r.samples[pos] = energySample{energy: energy, ts: now.Unix()}
	r.newest = pos
	return true
}

// Estimate pushes energy and returns the fitted rate in watts. When fewer than
// three earlier samples are usable, or the fit is implausible, the cached rate
// is returned instead.
func (r *RateEstimator) Estimate(energy float64, now time.Time) float64 {
	r.Push(energy, now)

	if energy < 0.1 || r.samples[r.newest].energy < 0.1 {
		return 0
	}

	ref := r.samples[r.newest].ts
	var rate, sumX float64
	valid := 0
	for i := 1; i < rateSamples; i++ {
		s := r.samples[(r.newest+i)%rateSamples]
		if s.ts == 0 || s.energy == 0 {
			continue
		}
		dt := float64(ref - s.ts)
		sumX += dt * dt
		rate += math.Abs(dt * (energy - s.energy))
		valid++
	}

	if sumX == 0 || valid < 3 {
		return r.cached
	}

	rate /= sumX / secondsPerHour
	if rate == 0 || rate > 100 {
		return r.cached
	}
	return rate
}

// SetCached stores the rate returned when no fit is possible.
func (r *RateEstimator) SetCached(rate float64) { r.cached = rate }

// Reset forgets every stored sample. The cached rate is kept.
func (r *RateEstimator) Reset() {
	r.samples = [rateSamples]energySample{}
	r.newest = 0
}

// Len returns the number of occupied slots.
func (r *RateEstimator) Len() int {
	n := 0
	for _, s := range r.samples {
		if s.ts != 0 {
			n++
		}
	}
	return n
}
