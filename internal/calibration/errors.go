package calibration

import "errors"

// Every calibration failure is recoverable by user action; the codes are
// stable strings the API layer maps to corrective instructions.
var (
	ErrInsufficientSamples      = errors.New("insufficient_samples")
	ErrInsufficientSweepSamples = errors.New("insufficient_sweep_samples")
	ErrUnstableValue            = errors.New("unstable_value")
	ErrNoRangeDetected          = errors.New("no_range_detected")
	ErrNotEnoughSamples         = errors.New("not_enough_samples")
	ErrIncompleteRanges         = errors.New("incomplete_ranges")
	ErrSessionFinished          = errors.New("session_finished")
	ErrNoActiveCapture          = errors.New("no_active_capture")
	ErrUnknownNotch             = errors.New("unknown_notch")
)
