package calibration

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tswio/panelcore/internal/events"
)

type fakeStore struct {
	mu           sync.Mutex
	calibrations map[string]Record
	notchRanges  map[string][]NotchRange
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		calibrations: make(map[string]Record),
		notchRanges:  make(map[string][]NotchRange),
	}
}

func (f *fakeStore) SaveCalibration(port string, pin uint8, record Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calibrations[port] = record
	return nil
}

func (f *fakeStore) SaveNotchRanges(port string, pin uint8, ranges []NotchRange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notchRanges[port] = ranges
	return nil
}

func (f *fakeStore) calibration(port string) (Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.calibrations[port]
	return rec, ok
}

const testPort = "/dev/ttyUSB0"

func newTestSession(t *testing.T) (*Session, *events.Hub, *fakeStore) {
	t.Helper()
	hub := events.NewHub(zap.NewNop())
	store := newFakeStore()
	s := NewSession(SessionConfig{
		Port:             testPort,
		Pin:              4,
		MaxHardwareValue: 1023,
		Hub:              hub,
		Store:            store,
		Logger:           zap.NewNop(),
	})
	t.Cleanup(s.Cancel)
	return s, hub, store
}

// feedSamples publishes live values and waits until the session consumed
// them into the bucket selected by counts().
func feedSamples(t *testing.T, hub *events.Hub, s *Session, values []int, count func() int) {
	t.Helper()
	want := count() + len(values)
	for _, v := range values {
		hub.Publish(events.New(events.TypeInputValue, events.InputValueData{
			Port: testPort, Pin: 4, Value: v,
		}))
	}
	require.Eventually(t, func() bool { return count() >= want },
		2*time.Second, time.Millisecond, "session did not consume samples")
}

func minCount(s *Session) func() int {
	return func() int { n, _, _ := s.SampleCounts(); return n }
}

func sweepCount(s *Session) func() int {
	return func() int { _, n, _ := s.SampleCounts(); return n }
}

func maxCount(s *Session) func() int {
	return func() int { _, _, n := s.SampleCounts(); return n }
}

func TestAdvanceInsufficientSamples(t *testing.T) {
	s, hub, _ := newTestSession(t)

	// 9 samples of a single value: not enough volume, not enough variety.
	feedSamples(t, hub, s, []int{7, 7, 7, 7, 7, 7, 7, 7, 7}, minCount(s))

	assert.ErrorIs(t, s.Advance(), ErrInsufficientSamples)
	assert.Equal(t, StepCollectingMin, s.Step())

	// Samples survive the failed advance.
	n, _, _ := s.SampleCounts()
	assert.Equal(t, 9, n)
}

func TestAdvanceRequiresDistinctValues(t *testing.T) {
	s, hub, _ := newTestSession(t)

	// Plenty of samples, only two distinct values.
	feedSamples(t, hub, s, []int{7, 8, 7, 8, 7, 8, 7, 8, 7, 8, 7, 8}, minCount(s))

	assert.ErrorIs(t, s.Advance(), ErrInsufficientSamples)
}

func TestAdvanceUnstableValue(t *testing.T) {
	s, hub, _ := newTestSession(t)

	// Enough volume and variety, but the tail is still sweeping wildly.
	feedSamples(t, hub, s, []int{10, 11, 12, 10, 11, 100, 300, 500, 700, 900}, minCount(s))

	assert.ErrorIs(t, s.Advance(), ErrUnstableValue)
}

func TestAdvanceInsufficientSweepSamples(t *testing.T) {
	s, hub, _ := newTestSession(t)

	feedSamples(t, hub, s, []int{10, 11, 12, 10, 11, 12, 10, 11, 12, 10}, minCount(s))
	require.NoError(t, s.Advance())
	require.Equal(t, StepSweeping, s.Step())

	feedSamples(t, hub, s, []int{10, 30, 50}, sweepCount(s))
	assert.ErrorIs(t, s.Advance(), ErrInsufficientSweepSamples)
}

func TestFullCalibrationFlow(t *testing.T) {
	s, hub, store := newTestSession(t)

	resultSub := hub.Subscribe(events.TypeCalibrationResult)
	defer resultSub.Close()

	feedSamples(t, hub, s, []int{10, 10, 10, 10, 10, 11, 12, 10, 11, 12}, minCount(s))
	require.NoError(t, s.Advance())

	feedSamples(t, hub, s, []int{10, 30, 50, 70, 90, 110, 130, 150, 150, 150}, sweepCount(s))
	require.NoError(t, s.Advance())
	require.Equal(t, StepCollectingMax, s.Step())

	feedSamples(t, hub, s, []int{150, 151, 149, 150, 151, 149, 150, 151, 149, 150}, maxCount(s))
	require.NoError(t, s.Advance())

	assert.Equal(t, StepComplete, s.Step())

	record, ok := store.calibration(testPort)
	require.True(t, ok, "record not persisted")
	assert.Equal(t, 10, record.MinValue)
	assert.Equal(t, 150, record.MaxValue)
	assert.False(t, record.IsInverted)
	assert.False(t, record.HasRollover)
	assert.Equal(t, 1023, record.MaxHardwareValue)

	// Exactly one result event.
	select {
	case evt := <-resultSub.C:
		data := evt.Data.(events.CalibrationData)
		assert.Empty(t, data.Error)
		assert.NotNil(t, data.Record)
	case <-time.After(time.Second):
		t.Fatal("no result event published")
	}
	assert.Empty(t, resultSub.C)

	// The session is terminal; further advances fail.
	assert.ErrorIs(t, s.Advance(), ErrSessionFinished)
}

func TestInvertedCalibrationFlow(t *testing.T) {
	s, hub, store := newTestSession(t)

	feedSamples(t, hub, s, []int{920, 921, 923, 923, 923, 923, 923, 923, 923, 923}, minCount(s))
	require.NoError(t, s.Advance())

	feedSamples(t, hub, s, []int{920, 800, 700, 600, 500, 400, 300, 200, 150, 123}, sweepCount(s))
	require.NoError(t, s.Advance())

	feedSamples(t, hub, s, []int{123, 124, 122, 123, 123, 123, 123, 123, 123, 123}, maxCount(s))
	require.NoError(t, s.Advance())

	record, ok := store.calibration(testPort)
	require.True(t, ok)
	assert.True(t, record.IsInverted)
	assert.Equal(t, 1023-923, record.MinValue)
	assert.Equal(t, 1023-123, record.MaxValue)
}

func TestCancelReleasesSamplesAndPersistsNothing(t *testing.T) {
	s, hub, store := newTestSession(t)

	feedSamples(t, hub, s, []int{10, 11, 12, 10, 11}, minCount(s))
	s.Cancel()

	assert.Equal(t, StepCancelled, s.Step())
	n, sw, mx := s.SampleCounts()
	assert.Zero(t, n+sw+mx)

	_, ok := store.calibration(testPort)
	assert.False(t, ok)

	assert.ErrorIs(t, s.Advance(), ErrSessionFinished)
}

func TestSessionIgnoresOtherPins(t *testing.T) {
	s, hub, _ := newTestSession(t)

	hub.Publish(events.New(events.TypeInputValue, events.InputValueData{
		Port: testPort, Pin: 9, Value: 500,
	}))
	hub.Publish(events.New(events.TypeInputValue, events.InputValueData{
		Port: "/dev/ttyUSB9", Pin: 4, Value: 500,
	}))
	feedSamples(t, hub, s, []int{42}, minCount(s))

	n, _, _ := s.SampleCounts()
	assert.Equal(t, 1, n)
}
