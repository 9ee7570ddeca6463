package calibration

import "sort"

// Record is a completed calibration for one input. Min and Max live in the
// inversion-adjusted raw domain, so downstream arithmetic never cares which
// way the sensor is wired.
type Record struct {
	MinValue         int  `json:"min_value"`
	MaxValue         int  `json:"max_value"`
	IsInverted       bool `json:"is_inverted"`
	HasRollover      bool `json:"has_rollover"`
	MaxHardwareValue int  `json:"max_hardware_value"`
}

// CalculateMin derives the calibrated minimum from the min-position samples.
func CalculateMin(minSamples []int, ch Characteristics, maxHardwareValue int) int {
	m := median(minSamples)
	if ch.Inverted {
		return maxHardwareValue - m
	}
	return m
}

// CalculateMax derives the calibrated maximum. With rollover, an adjusted
// max that lands below the adjusted min gets unwrapped by one full hardware
// revolution so Normalize can treat the range as linear.
func CalculateMax(maxSamples, minSamples []int, ch Characteristics, maxHardwareValue int) int {
	maxAdj := median(maxSamples)
	minAdj := median(minSamples)
	if ch.Inverted {
		maxAdj = maxHardwareValue - maxAdj
		minAdj = maxHardwareValue - minAdj
	}
	if ch.Rollover && maxAdj < minAdj {
		maxAdj += maxHardwareValue + 1
	}
	return maxAdj
}

// TotalTravel is the calibrated range width.
func TotalTravel(r Record) int {
	return r.MaxValue - r.MinValue
}

// Normalize maps a raw reading into [0, TotalTravel]. Order matters: invert,
// then unwrap rollover, then clamp. Clamping first would misclassify
// legitimate near-boundary rollover values as out-of-range.
func Normalize(raw int, r Record) int {
	v := raw
	if r.IsInverted {
		v = r.MaxHardwareValue - v
	}
	if r.HasRollover && v < r.MinValue {
		v += r.MaxHardwareValue + 1
	}
	if v < r.MinValue {
		v = r.MinValue
	}
	if v > r.MaxValue {
		v = r.MaxValue
	}
	return v - r.MinValue
}

func median(samples []int) int {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]int, len(samples))
	copy(sorted, samples)
	sort.Ints(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
