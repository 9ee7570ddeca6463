package calibration

// Characteristics describes what a sweep revealed about the sensor wiring.
type Characteristics struct {
	Inverted bool `json:"inverted"`
	Rollover bool `json:"rollover"`
}

// AnalyzeSweep classifies a full-travel sweep of raw samples.
//
// Direction is judged by majority vote over consecutive deltas rather than
// first-vs-last value, so a few noisy samples do not flip the result. A
// delta whose magnitude exceeds half the hardware ceiling is a wraparound
// (the sensor jumped from near the ceiling to near zero or back); it marks
// rollover and is excluded from the trend vote.
func AnalyzeSweep(samples []int, maxHardwareValue int) Characteristics {
	var ch Characteristics
	if len(samples) < 2 {
		return ch
	}

	half := maxHardwareValue / 2
	rising, falling := 0, 0

	for i := 1; i < len(samples); i++ {
		delta := samples[i] - samples[i-1]
		if delta > half || delta < -half {
			ch.Rollover = true
			continue
		}
		switch {
		case delta > 0:
			rising++
		case delta < 0:
			falling++
		}
	}

	ch.Inverted = falling > rising
	return ch
}
