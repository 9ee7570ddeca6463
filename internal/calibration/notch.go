package calibration

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tswio/panelcore/internal/events"
)

// NotchType distinguishes a fixed detent from a continuous sub-range.
type NotchType string

const (
	NotchGate   NotchType = "gate"
	NotchLinear NotchType = "linear"
)

// Notch describes one position of a lever before capture.
type Notch struct {
	Index       int       `json:"index"`
	Type        NotchType `json:"type"`
	Description string    `json:"description"`
}

// NotchRange is one captured raw-domain range.
type NotchRange struct {
	Index       int       `json:"index"`
	Type        NotchType `json:"type"`
	Description string    `json:"description"`
	Min         int       `json:"min"`
	Max         int       `json:"max"`
}

type capturedRange struct {
	min, max int
	count    int
}

// NotchSessionConfig wires a notch mapping session to its lever.
type NotchSessionConfig struct {
	Port       string
	Pin        uint8
	Notches    []Notch
	MinSamples int
	Hub        *events.Hub
	Store      NotchStore
	Logger     *zap.Logger
}

// NotchSession walks an ordered list of notches, capturing the raw range the
// lever produces at each one. Unlike a calibration session, sampling only
// runs while a capture phase is explicitly active.
type NotchSession struct {
	id  uuid.UUID
	cfg NotchSessionConfig

	mu        sync.Mutex
	current   int
	capturing bool
	active    capturedRange
	captured  map[int]capturedRange
	finished  bool

	sub  *events.Subscription
	done chan struct{}
}

// NewNotchSession starts a session positioned at the first notch, not yet
// capturing.
func NewNotchSession(cfg NotchSessionConfig) (*NotchSession, error) {
	if len(cfg.Notches) == 0 {
		return nil, fmt.Errorf("notch session needs at least one notch")
	}
	if cfg.MinSamples == 0 {
		cfg.MinSamples = DefaultMinSamples
	}

	s := &NotchSession{
		id:       uuid.New(),
		cfg:      cfg,
		captured: make(map[int]capturedRange),
		done:     make(chan struct{}),
	}
	s.sub = cfg.Hub.Subscribe(events.TypeInputValue)
	go s.collect()

	s.publish(events.TypeNotchStarted, events.NotchData{
		SessionID: s.id.String(),
		Port:      cfg.Port,
		Pin:       cfg.Pin,
		Notch:     0,
	})
	return s, nil
}

// ID returns the session identifier.
func (s *NotchSession) ID() uuid.UUID { return s.id }

// CurrentNotch returns the notch index the wizard is positioned at.
func (s *NotchSession) CurrentNotch() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Capturing reports whether a capture phase is active.
func (s *NotchSession) Capturing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capturing
}

func (s *NotchSession) collect() {
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

func (s *NotchSession) addSample(value int) {
	s.mu.Lock()
	if !s.capturing || s.finished {
		s.mu.Unlock()
		return
	}
	if s.active.count == 0 {
		s.active.min, s.active.max = value, value
	} else {
		if value < s.active.min {
			s.active.min = value
		}
		if value > s.active.max {
			s.active.max = value
		}
	}
	s.active.count++
	count := s.active.count
	notch := s.current
	s.mu.Unlock()

	s.publish(events.TypeNotchSample, events.NotchData{
		SessionID: s.id.String(),
		Port:      s.cfg.Port,
		Pin:       s.cfg.Pin,
		Notch:     notch,
		Samples:   count,
	})
}

// StartCapture begins (or restarts) tracking min/max for the current notch.
func (s *NotchSession) StartCapture() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return ErrSessionFinished
	}
	s.capturing = true
	s.active = capturedRange{}
	return nil
}

// ResetSamples discards the running range mid-capture.
func (s *NotchSession) ResetSamples() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return ErrSessionFinished
	}
	if !s.capturing {
		return ErrNoActiveCapture
	}
	s.active = capturedRange{}
	return nil
}

// CompleteNotch commits the active capture for the current notch and moves
// on to the next uncaptured one.
func (s *NotchSession) CompleteNotch() error {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return ErrSessionFinished
	}
	if !s.capturing || s.active.count == 0 {
		s.mu.Unlock()
		return ErrNoRangeDetected
	}
	if s.active.count < s.cfg.MinSamples {
		s.mu.Unlock()
		return ErrNotEnoughSamples
	}

	s.captured[s.current] = s.active
	s.capturing = false
	s.active = capturedRange{}

	// Advance to the next uncaptured notch, if one remains.
	next := s.current
	for i := range s.cfg.Notches {
		if _, done := s.captured[i]; !done {
			next = i
			break
		}
	}
	s.current = next
	notch := s.current
	s.mu.Unlock()

	s.publish(events.TypeNotchChanged, events.NotchData{
		SessionID: s.id.String(),
		Port:      s.cfg.Port,
		Pin:       s.cfg.Pin,
		Notch:     notch,
	})
	return nil
}

// GoToNotch repositions the wizard at an arbitrary notch index so already
// captured notches can be redone before the save step.
func (s *NotchSession) GoToNotch(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return ErrSessionFinished
	}
	if index < 0 || index >= len(s.cfg.Notches) {
		return fmt.Errorf("%w: index %d of %d", ErrUnknownNotch, index, len(s.cfg.Notches))
	}
	s.current = index
	s.capturing = false
	s.active = capturedRange{}
	return nil
}

// Preview aggregates every captured range by notch index.
func (s *NotchSession) Preview() []NotchRange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rangesLocked()
}

// rangesLocked is called with the session lock held.
func (s *NotchSession) rangesLocked() []NotchRange {
	ranges := make([]NotchRange, 0, len(s.captured))
	for idx, r := range s.captured {
		notch := s.cfg.Notches[idx]
		ranges = append(ranges, NotchRange{
			Index:       idx,
			Type:        notch.Type,
			Description: notch.Description,
			Min:         r.min,
			Max:         r.max,
		})
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Index < ranges[j].Index })
	return ranges
}

// Save commits all captured ranges. Every notch must have been captured.
func (s *NotchSession) Save() error {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return ErrSessionFinished
	}
	if len(s.captured) != len(s.cfg.Notches) {
		s.mu.Unlock()
		return ErrIncompleteRanges
	}
	ranges := s.rangesLocked()
	s.finished = true
	s.mu.Unlock()

	s.teardown()

	if err := s.cfg.Store.SaveNotchRanges(s.cfg.Port, s.cfg.Pin, ranges); err != nil {
		return fmt.Errorf("failed to persist notch ranges: %w", err)
	}

	s.cfg.Logger.Info("Notch mapping saved",
		zap.String("port", s.cfg.Port),
		zap.Uint8("pin", s.cfg.Pin),
		zap.Int("notches", len(ranges)))

	s.publish(events.TypeNotchSaved, events.NotchData{
		SessionID: s.id.String(),
		Port:      s.cfg.Port,
		Pin:       s.cfg.Pin,
		Samples:   len(ranges),
	})
	return nil
}

// Cancel aborts the session; nothing is persisted.
func (s *NotchSession) Cancel() {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.captured = make(map[int]capturedRange)
	s.active = capturedRange{}
	s.mu.Unlock()

	s.teardown()
	s.publish(events.TypeNotchCancelled, events.NotchData{
		SessionID: s.id.String(),
		Port:      s.cfg.Port,
		Pin:       s.cfg.Pin,
	})
}

func (s *NotchSession) teardown() {
	close(s.done)
	s.sub.Close()
}

func (s *NotchSession) publish(t events.Type, data events.NotchData) {
	s.cfg.Hub.Publish(events.New(t, data))
}
