// Package store keeps calibration results in memory. Durable persistence
// lives outside this process; consumers read results back over the API and
// store them wherever they keep panel profiles.
package store

import (
	"sync"

	"github.com/tswio/panelcore/internal/calibration"
)

type pinKey struct {
	port string
	pin  uint8
}

// Memory is the in-process implementation of the calibration stores.
type Memory struct {
	mu           sync.RWMutex
	calibrations map[pinKey]calibration.Record
	notchRanges  map[pinKey][]calibration.NotchRange
}

func NewMemory() *Memory {
	return &Memory{
		calibrations: make(map[pinKey]calibration.Record),
		notchRanges:  make(map[pinKey][]calibration.NotchRange),
	}
}

func (m *Memory) SaveCalibration(port string, pin uint8, record calibration.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calibrations[pinKey{port, pin}] = record
	return nil
}

func (m *Memory) SaveNotchRanges(port string, pin uint8, ranges []calibration.NotchRange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notchRanges[pinKey{port, pin}] = append([]calibration.NotchRange(nil), ranges...)
	return nil
}

// Calibration returns the stored record for a port/pin, if any.
func (m *Memory) Calibration(port string, pin uint8) (calibration.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.calibrations[pinKey{port, pin}]
	return record, ok
}

// NotchRanges returns the stored ranges for a port/pin, if any.
func (m *Memory) NotchRanges(port string, pin uint8) ([]calibration.NotchRange, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ranges, ok := m.notchRanges[pinKey{port, pin}]
	if !ok {
		return nil, false
	}
	return append([]calibration.NotchRange(nil), ranges...), true
}
