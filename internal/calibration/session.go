package calibration

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tswio/panelcore/internal/events"
)

// Step is a calibration wizard state.
type Step string

const (
	StepCollectingMin Step = "collecting_min"
	StepSweeping      Step = "sweeping"
	StepCollectingMax Step = "collecting_max"
	StepAnalyzing     Step = "analyzing"
	StepComplete      Step = "complete"
	StepCancelled     Step = "cancelled"
)

// Collection thresholds. Collection steps need enough samples and enough
// distinct values to prove the lever actually sat at the position; the sweep
// only needs volume.
const (
	DefaultMinSamples        = 10
	DefaultMinDistinctValues = 3

	// A collection step whose last stabilityWindow samples span more than
	// maxHardware/stabilityDivisor is still moving.
	stabilityWindow  = 5
	stabilityDivisor = 20
)

// SessionConfig wires one calibration session to its input and collaborators.
type SessionConfig struct {
	Port             string
	Pin              uint8
	MaxHardwareValue int
	MinSamples       int
	MinDistinct      int
	Hub              *events.Hub
	Store            Store
	Logger           *zap.Logger
}

// Session drives the guided min/sweep/max capture for one input. It owns its
// sample buffers exclusively; live values arrive via a hub subscription
// consumed on the session's own goroutine.
type Session struct {
	id  uuid.UUID
	cfg SessionConfig

	mu           sync.Mutex
	step         Step
	minSamples   []int
	sweepSamples []int
	maxSamples   []int
	result       *Record

	sub  *events.Subscription
	done chan struct{}
}

// NewSession creates a session in collecting_min and starts consuming live
// values for its pin.
func NewSession(cfg SessionConfig) *Session {
	if cfg.MinSamples == 0 {
		cfg.MinSamples = DefaultMinSamples
	}
	if cfg.MinDistinct == 0 {
		cfg.MinDistinct = DefaultMinDistinctValues
	}

	s := &Session{
		id:   uuid.New(),
		cfg:  cfg,
		step: StepCollectingMin,
		done: make(chan struct{}),
	}
	s.sub = cfg.Hub.Subscribe(events.TypeInputValue)
	go s.collect()

	s.publish(events.TypeCalibrationStarted, events.CalibrationData{
		SessionID: s.id.String(),
		Port:      cfg.Port,
		Pin:       cfg.Pin,
		Step:      string(StepCollectingMin),
	})
	return s
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Step returns the current wizard state.
func (s *Session) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// Result returns the persisted record once the session completed.
func (s *Session) Result() *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// SampleCounts reports how many samples each bucket holds.
func (s *Session) SampleCounts() (min, sweep, max int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.minSamples), len(s.sweepSamples), len(s.maxSamples)
}

// collect consumes live values until the session reaches a terminal state.
func (s *Session) collect() {
	for {
		select {
		case <-s.done:
			return
		case evt, ok := <-s.sub.C:
			if !ok {
				return
			}
			data, valid := evt.Data.(events.InputValueData)
			if !valid || data.Port != s.cfg.Port || data.Pin != s.cfg.Pin {
				continue
			}
			s.addSample(data.Value)
		}
	}
}

func (s *Session) addSample(value int) {
	s.mu.Lock()
	var count int
	switch s.step {
	case StepCollectingMin:
		s.minSamples = append(s.minSamples, value)
		count = len(s.minSamples)
	case StepSweeping:
		s.sweepSamples = append(s.sweepSamples, value)
		count = len(s.sweepSamples)
	case StepCollectingMax:
		s.maxSamples = append(s.maxSamples, value)
		count = len(s.maxSamples)
	default:
		s.mu.Unlock()
		return
	}
	step := s.step
	s.mu.Unlock()

	s.publish(events.TypeCalibrationSample, events.CalibrationData{
		SessionID: s.id.String(),
		Port:      s.cfg.Port,
		Pin:       s.cfg.Pin,
		Step:      string(step),
		Samples:   count,
	})
}

// Advance moves the wizard to the next step. Validation failures leave the
// collected samples intact so the user can keep sampling and retry.
func (s *Session) Advance() error {
	s.mu.Lock()

	switch s.step {
	case StepCollectingMin:
		if err := s.validateCollection(s.minSamples); err != nil {
			s.mu.Unlock()
			return err
		}
		s.step = StepSweeping
		s.mu.Unlock()
		s.publishStep(StepSweeping)
		return nil

	case StepSweeping:
		if len(s.sweepSamples) < s.cfg.MinSamples {
			s.mu.Unlock()
			return ErrInsufficientSweepSamples
		}
		s.step = StepCollectingMax
		s.mu.Unlock()
		s.publishStep(StepCollectingMax)
		return nil

	case StepCollectingMax:
		if err := s.validateCollection(s.maxSamples); err != nil {
			s.mu.Unlock()
			return err
		}
		s.step = StepAnalyzing
		s.mu.Unlock()
		s.publishStep(StepAnalyzing)
		return s.analyze()

	default:
		step := s.step
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot advance from %s", ErrSessionFinished, step)
	}
}

// validateCollection is called with the session lock held.
func (s *Session) validateCollection(samples []int) error {
	if len(samples) < s.cfg.MinSamples || distinctCount(samples) < s.cfg.MinDistinct {
		return ErrInsufficientSamples
	}
	if !isStable(samples, s.cfg.MaxHardwareValue) {
		return ErrUnstableValue
	}
	return nil
}

// analyze is the transient computation state: run the analyzer over the
// sweep, derive the record, persist it, finish. Observers see exactly one
// result event.
func (s *Session) analyze() error {
	s.mu.Lock()
	ch := AnalyzeSweep(s.sweepSamples, s.cfg.MaxHardwareValue)
	record := Record{
		MinValue:         CalculateMin(s.minSamples, ch, s.cfg.MaxHardwareValue),
		MaxValue:         CalculateMax(s.maxSamples, s.minSamples, ch, s.cfg.MaxHardwareValue),
		IsInverted:       ch.Inverted,
		HasRollover:      ch.Rollover,
		MaxHardwareValue: s.cfg.MaxHardwareValue,
	}
	s.mu.Unlock()

	if err := s.cfg.Store.SaveCalibration(s.cfg.Port, s.cfg.Pin, record); err != nil {
		s.finish(StepComplete, nil)
		s.publish(events.TypeCalibrationResult, events.CalibrationData{
			SessionID: s.id.String(),
			Port:      s.cfg.Port,
			Pin:       s.cfg.Pin,
			Error:     err.Error(),
		})
		return fmt.Errorf("failed to persist calibration: %w", err)
	}

	s.finish(StepComplete, &record)
	s.cfg.Logger.Info("Calibration complete",
		zap.String("port", s.cfg.Port),
		zap.Uint8("pin", s.cfg.Pin),
		zap.Int("min", record.MinValue),
		zap.Int("max", record.MaxValue),
		zap.Bool("inverted", record.IsInverted),
		zap.Bool("rollover", record.HasRollover))

	s.publish(events.TypeCalibrationResult, events.CalibrationData{
		SessionID: s.id.String(),
		Port:      s.cfg.Port,
		Pin:       s.cfg.Pin,
		Record:    record,
	})
	return nil
}

// Cancel aborts the session from any non-terminal state, releasing every
// collected sample. Nothing is persisted.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.step == StepComplete || s.step == StepCancelled {
		s.mu.Unlock()
		return
	}
	s.minSamples = nil
	s.sweepSamples = nil
	s.maxSamples = nil
	s.mu.Unlock()

	s.finish(StepCancelled, nil)
	s.publish(events.TypeCalibrationResult, events.CalibrationData{
		SessionID: s.id.String(),
		Port:      s.cfg.Port,
		Pin:       s.cfg.Pin,
		Error:     "cancelled",
	})
}

func (s *Session) finish(step Step, record *Record) {
	s.mu.Lock()
	alreadyDone := s.step == StepComplete || s.step == StepCancelled
	s.step = step
	s.result = record
	s.mu.Unlock()

	if !alreadyDone {
		close(s.done)
		s.sub.Close()
	}
}

func (s *Session) publishStep(step Step) {
	s.publish(events.TypeCalibrationStep, events.CalibrationData{
		SessionID: s.id.String(),
		Port:      s.cfg.Port,
		Pin:       s.cfg.Pin,
		Step:      string(step),
	})
}

func (s *Session) publish(t events.Type, data events.CalibrationData) {
	s.cfg.Hub.Publish(events.New(t, data))
}

func distinctCount(samples []int) int {
	seen := make(map[int]struct{}, len(samples))
	for _, v := range samples {
		seen[v] = struct{}{}
	}
	return len(seen)
}

// isStable checks that the tail of a collection holds still: the lever must
// have stopped moving before the step may advance.
func isStable(samples []int, maxHardwareValue int) bool {
	if len(samples) < stabilityWindow {
		return true
	}
	tail := samples[len(samples)-stabilityWindow:]
	lo, hi := tail[0], tail[0]
	for _, v := range tail[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi-lo <= maxHardwareValue/stabilityDivisor
}
