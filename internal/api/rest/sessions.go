package rest

import (
	"sync"

	"github.com/tswio/panelcore/internal/calibration"
)

// SessionTracker holds the running wizard sessions by id so HTTP handlers
// can address them across requests.
type SessionTracker struct {
	mu           sync.Mutex
	calibrations map[string]*calibration.Session
	notches      map[string]*calibration.NotchSession
}

func NewSessionTracker() *SessionTracker {
	return &SessionTracker{
		calibrations: make(map[string]*calibration.Session),
		notches:      make(map[string]*calibration.NotchSession),
	}
}

func (t *SessionTracker) AddCalibration(s *calibration.Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calibrations[s.ID().String()] = s
}

func (t *SessionTracker) Calibration(id string) (*calibration.Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.calibrations[id]
	return s, ok
}

func (t *SessionTracker) RemoveCalibration(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.calibrations, id)
}

func (t *SessionTracker) AddNotch(s *calibration.NotchSession) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notches[s.ID().String()] = s
}

func (t *SessionTracker) Notch(id string) (*calibration.NotchSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.notches[id]
	return s, ok
}

func (t *SessionTracker) RemoveNotch(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.notches, id)
}
