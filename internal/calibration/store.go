package calibration

// Store persists completed calibration records. Real persistence lives
// outside this process; sessions only need these two seams.
type Store interface {
	SaveCalibration(port string, pin uint8, record Record) error
}

// NotchStore persists the ranges a notch mapping session captured.
type NotchStore interface {
	SaveNotchRanges(port string, pin uint8, ranges []NotchRange) error
}
