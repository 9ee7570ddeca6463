package calibration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tswio/panelcore/internal/events"
)

func testNotches() []Notch {
	return []Notch{
		{Index: 0, Type: NotchGate, Description: "Off"},
		{Index: 1, Type: NotchGate, Description: "Idle"},
		{Index: 2, Type: NotchLinear, Description: "Power"},
	}
}

func newTestNotchSession(t *testing.T) (*NotchSession, *events.Hub, *fakeStore) {
	t.Helper()
	hub := events.NewHub(zap.NewNop())
	store := newFakeStore()
	s, err := NewNotchSession(NotchSessionConfig{
		Port:    testPort,
		Pin:     2,
		Notches: testNotches(),
		Hub:     hub,
		Store:   store,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(s.Cancel)
	return s, hub, store
}

func feedNotchSamples(t *testing.T, hub *events.Hub, s *NotchSession, values []int) {
	t.Helper()

	sampleSub := hub.Subscribe(events.TypeNotchSample)
	defer sampleSub.Close()

	for _, v := range values {
		hub.Publish(events.New(events.TypeInputValue, events.InputValueData{
			Port: testPort, Pin: 2, Value: v,
		}))
	}
	for range values {
		select {
		case <-sampleSub.C:
		case <-time.After(2 * time.Second):
			t.Fatal("session did not consume samples")
		}
	}
}

func TestNotchRequiresActiveCapture(t *testing.T) {
	s, hub, _ := newTestNotchSession(t)

	// Samples before StartCapture are ignored entirely.
	hub.Publish(events.New(events.TypeInputValue, events.InputValueData{
		Port: testPort, Pin: 2, Value: 100,
	}))
	assert.ErrorIs(t, s.CompleteNotch(), ErrNoRangeDetected)
	assert.ErrorIs(t, s.ResetSamples(), ErrNoActiveCapture)
}

func TestNotchNotEnoughSamples(t *testing.T) {
	s, hub, _ := newTestNotchSession(t)

	require.NoError(t, s.StartCapture())
	feedNotchSamples(t, hub, s, []int{100, 101, 102})

	assert.ErrorIs(t, s.CompleteNotch(), ErrNotEnoughSamples)
}

func TestNotchCaptureAndAdvance(t *testing.T) {
	s, hub, _ := newTestNotchSession(t)

	require.NoError(t, s.StartCapture())
	feedNotchSamples(t, hub, s, []int{100, 105, 98, 102, 100, 101, 99, 103, 100, 100})
	require.NoError(t, s.CompleteNotch())

	assert.Equal(t, 1, s.CurrentNotch())
	assert.False(t, s.Capturing())

	preview := s.Preview()
	require.Len(t, preview, 1)
	assert.Equal(t, 98, preview[0].Min)
	assert.Equal(t, 105, preview[0].Max)
	assert.Equal(t, NotchGate, preview[0].Type)
}

func TestNotchResetSamplesMidCapture(t *testing.T) {
	s, hub, _ := newTestNotchSession(t)

	require.NoError(t, s.StartCapture())
	feedNotchSamples(t, hub, s, []int{900, 910, 920})
	require.NoError(t, s.ResetSamples())
	feedNotchSamples(t, hub, s, []int{100, 101, 102, 103, 104, 100, 101, 102, 103, 104})
	require.NoError(t, s.CompleteNotch())

	preview := s.Preview()
	require.Len(t, preview, 1)
	assert.Equal(t, 100, preview[0].Min)
	assert.Equal(t, 104, preview[0].Max)
}

func TestNotchDirectNavigation(t *testing.T) {
	s, _, _ := newTestNotchSession(t)

	require.NoError(t, s.GoToNotch(2))
	assert.Equal(t, 2, s.CurrentNotch())

	assert.ErrorIs(t, s.GoToNotch(3), ErrUnknownNotch)
	assert.ErrorIs(t, s.GoToNotch(-1), ErrUnknownNotch)
}

func TestNotchSaveRequiresAllRanges(t *testing.T) {
	s, hub, store := newTestNotchSession(t)

	require.NoError(t, s.StartCapture())
	feedNotchSamples(t, hub, s, []int{10, 11, 12, 10, 11, 12, 10, 11, 12, 10})
	require.NoError(t, s.CompleteNotch())

	assert.ErrorIs(t, s.Save(), ErrIncompleteRanges)
	assert.Empty(t, store.notchRanges)
}

func TestNotchFullFlow(t *testing.T) {
	s, hub, store := newTestNotchSession(t)

	ranges := [][]int{
		{10, 12, 11, 10, 12, 11, 10, 12, 11, 10},
		{500, 505, 498, 502, 500, 501, 499, 503, 500, 500},
		{900, 1000, 950, 920, 980, 990, 960, 940, 930, 1010},
	}
	for i, values := range ranges {
		require.Equal(t, i, s.CurrentNotch())
		require.NoError(t, s.StartCapture())
		feedNotchSamples(t, hub, s, values)
		require.NoError(t, s.CompleteNotch())
	}

	require.NoError(t, s.Save())

	saved := store.notchRanges[testPort]
	require.Len(t, saved, 3)
	assert.Equal(t, 10, saved[0].Min)
	assert.Equal(t, 12, saved[0].Max)
	assert.Equal(t, 498, saved[1].Min)
	assert.Equal(t, 505, saved[1].Max)
	assert.Equal(t, 900, saved[2].Min)
	assert.Equal(t, 1010, saved[2].Max)
	assert.Equal(t, NotchLinear, saved[2].Type)

	assert.ErrorIs(t, s.Save(), ErrSessionFinished)
}

func TestNotchRecaptureBeforeSave(t *testing.T) {
	s, hub, _ := newTestNotchSession(t)

	require.NoError(t, s.StartCapture())
	feedNotchSamples(t, hub, s, []int{10, 11, 12, 10, 11, 12, 10, 11, 12, 10})
	require.NoError(t, s.CompleteNotch())

	// Redo notch 0 with a different range.
	require.NoError(t, s.GoToNotch(0))
	require.NoError(t, s.StartCapture())
	feedNotchSamples(t, hub, s, []int{20, 21, 22, 20, 21, 22, 20, 21, 22, 20})
	require.NoError(t, s.CompleteNotch())

	preview := s.Preview()
	require.Len(t, preview, 1)
	assert.Equal(t, 20, preview[0].Min)
	assert.Equal(t, 22, preview[0].Max)
}

func TestNotchCancelPersistsNothing(t *testing.T) {
	s, hub, store := newTestNotchSession(t)

	cancelSub := hub.Subscribe(events.TypeNotchCancelled)
	defer cancelSub.Close()

	require.NoError(t, s.StartCapture())
	feedNotchSamples(t, hub, s, []int{10, 11, 12, 10, 11, 12, 10, 11, 12, 10})
	s.Cancel()

	assert.Empty(t, store.notchRanges)
	assert.ErrorIs(t, s.StartCapture(), ErrSessionFinished)

	select {
	case <-cancelSub.C:
	case <-time.After(time.Second):
		t.Fatal("no cancelled event published")
	}
}
