package device

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tswio/panelcore/internal/events"
	"github.com/tswio/panelcore/internal/protocol"
	"github.com/tswio/panelcore/internal/serialport"
)

// fakePort is a scripted serial handle. Reads pop queued frames one per call;
// an empty queue behaves like an expired read timeout.
type fakePort struct {
	mu      sync.Mutex
	queue   [][]byte
	writes  [][]byte
	closed  bool
	onWrite func(p *fakePort, msg protocol.Message)
}

func (p *fakePort) enqueue(msgs ...protocol.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		frame, err := protocol.Encode(m)
		if err != nil {
			panic(err)
		}
		p.queue = append(p.queue, frame)
	}
}

func (p *fakePort) enqueueRaw(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, b)
}

func (p *fakePort) Write(b []byte) (int, error) {
	frame := append([]byte(nil), b...)
	p.mu.Lock()
	p.writes = append(p.writes, frame)
	onWrite := p.onWrite
	p.mu.Unlock()

	if onWrite != nil {
		if msg, _, err := protocol.Decode(frame); err == nil {
			onWrite(p, msg)
		}
	}
	return len(b), nil
}

func (p *fakePort) Drain() error                       { return nil }
func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.queue) == 0 {
		p.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	frame := p.queue[0]
	p.queue = p.queue[1:]
	p.mu.Unlock()
	return copy(b, frame), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// fakeProvider hands out fakePorts built by factory.
type fakeProvider struct {
	mu      sync.Mutex
	ports   []string
	handles map[string]*fakePort
	opened  map[string]int
	factory func(port string) *fakePort
}

func newFakeProvider(factory func(port string) *fakePort, ports ...string) *fakeProvider {
	return &fakeProvider{
		ports:   ports,
		handles: make(map[string]*fakePort),
		opened:  make(map[string]int),
		factory: factory,
	}
}

func (f *fakeProvider) Enumerate() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ports...), nil
}

func (f *fakeProvider) Open(port string) (serialport.Port, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	handle := f.factory(port)
	f.handles[port] = handle
	f.opened[port]++
	return handle, nil
}

func (f *fakeProvider) setPorts(ports ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ports = ports
}

func (f *fakeProvider) handle(port string) *fakePort {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[port]
}

func (f *fakeProvider) openCount(port string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened[port]
}

// answeringDevice behaves like healthy firmware: it answers identity requests
// and acknowledges every configuration.
func answeringDevice(version string, configID uint32) func(port string) *fakePort {
	return func(string) *fakePort {
		return &fakePort{onWrite: func(p *fakePort, msg protocol.Message) {
			switch m := msg.(type) {
			case protocol.IdentityRequest:
				p.enqueue(protocol.IdentityResponse{
					RequestID: m.RequestID, Version: version, ConfigID: configID,
				})
			case protocol.ConfigurationApply:
				p.enqueue(protocol.ConfigurationStored{ConfigID: m.ConfigID})
			}
		}}
	}
}

// silentDevice never answers anything.
func silentDevice(string) *fakePort { return &fakePort{} }

func testOptions() Options {
	return Options{
		HandshakeTimeout: 100 * time.Millisecond,
		HandshakeRetries: 3,
		ApplyTimeout:     100 * time.Millisecond,
		PollInterval:     time.Millisecond,
	}
}

const devicePort = "/dev/ttyACM0"

func startSession(t *testing.T, factory func(string) *fakePort) (*Session, *fakeProvider, *events.Hub) {
	t.Helper()
	hub := events.NewHub(zap.NewNop())
	provider := newFakeProvider(factory, devicePort)
	s := NewSession(devicePort, provider, testOptions(), hub, zap.NewNop())
	t.Cleanup(s.Disconnect)
	return s, provider, hub
}

func waitStatus(t *testing.T, s *Session, want Status) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Status() == want },
		2*time.Second, time.Millisecond, "session never reached %s", want)
}

func TestHandshakeConnects(t *testing.T) {
	s, _, _ := startSession(t, answeringDevice("1.4.2", 7))

	waitStatus(t, s, StatusConnected)

	snap := s.Snapshot()
	assert.Equal(t, "1.4.2", snap.Version)
	require.NotNil(t, snap.ConfigID)
	assert.Equal(t, uint32(7), *snap.ConfigID)
}

func TestHandshakeToleratesWrongTypeMessages(t *testing.T) {
	// Two decodable-but-wrong messages before the real answer.
	factory := func(string) *fakePort {
		return &fakePort{onWrite: func(p *fakePort, msg protocol.Message) {
			if m, ok := msg.(protocol.IdentityRequest); ok {
				p.enqueue(protocol.Heartbeat{}, protocol.Heartbeat{},
					protocol.IdentityResponse{RequestID: m.RequestID, Version: "2.0.0", ConfigID: 1})
			}
		}}
	}
	s, _, _ := startSession(t, factory)

	waitStatus(t, s, StatusConnected)
	assert.Equal(t, "2.0.0", s.Snapshot().Version)
}

func TestHandshakeGivesUpAfterWrongTypeBudget(t *testing.T) {
	factory := func(string) *fakePort {
		return &fakePort{onWrite: func(p *fakePort, msg protocol.Message) {
			if _, ok := msg.(protocol.IdentityRequest); ok {
				p.enqueue(protocol.Heartbeat{}, protocol.Heartbeat{}, protocol.Heartbeat{})
			}
		}}
	}
	s, provider, _ := startSession(t, factory)

	waitStatus(t, s, StatusFailed)
	assert.Equal(t, ReasonNoValidResponse, s.Snapshot().ErrorReason)
	assert.True(t, provider.handle(devicePort).isClosed())
	assert.False(t, s.Snapshot().FailedAt.IsZero())
}

func TestHandshakeTimeoutFailsWithoutRetry(t *testing.T) {
	s, provider, _ := startSession(t, silentDevice)

	waitStatus(t, s, StatusFailed)
	assert.Equal(t, ReasonTimeout, s.Snapshot().ErrorReason)
	assert.Equal(t, 1, provider.openCount(devicePort))
}

func TestHandshakeResyncsOnLineNoise(t *testing.T) {
	factory := func(string) *fakePort {
		p := &fakePort{}
		p.enqueueRaw([]byte{0xFF, 0xEE, 0xDD})
		p.onWrite = func(p *fakePort, msg protocol.Message) {
			if m, ok := msg.(protocol.IdentityRequest); ok {
				p.enqueue(protocol.IdentityResponse{RequestID: m.RequestID, Version: "1.0.0", ConfigID: 3})
			}
		}
		return p
	}
	s, _, _ := startSession(t, factory)

	waitStatus(t, s, StatusConnected)
}

func TestInputValuesTrackedAndPublished(t *testing.T) {
	s, provider, hub := startSession(t, answeringDevice("1.0.0", 1))
	waitStatus(t, s, StatusConnected)

	sub := hub.Subscribe(events.TypeInputValue)
	defer sub.Close()

	provider.handle(devicePort).enqueue(protocol.InputValue{Pin: 4, Value: 512})

	select {
	case evt := <-sub.C:
		data := evt.Data.(events.InputValueData)
		assert.Equal(t, devicePort, data.Port)
		assert.Equal(t, uint8(4), data.Pin)
		assert.Equal(t, 512, data.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("no input value event published")
	}

	assert.Equal(t, map[uint8]uint16{4: 512}, s.InputValues())
}

func TestApplyConfigurationStored(t *testing.T) {
	s, _, _ := startSession(t, answeringDevice("1.0.0", 1))
	waitStatus(t, s, StatusConnected)

	cfg := protocol.ConfigurationApply{
		ConfigID: 42,
		Inputs:   []protocol.InputConfig{{Pin: 4, Type: protocol.InputTypeAnalog}},
	}
	require.NoError(t, s.ApplyConfiguration(cfg))

	snap := s.Snapshot()
	require.NotNil(t, snap.ConfigID)
	assert.Equal(t, uint32(42), *snap.ConfigID)
}

func TestApplyConfigurationRejected(t *testing.T) {
	factory := func(string) *fakePort {
		return &fakePort{onWrite: func(p *fakePort, msg protocol.Message) {
			switch m := msg.(type) {
			case protocol.IdentityRequest:
				p.enqueue(protocol.IdentityResponse{RequestID: m.RequestID, Version: "1.0.0", ConfigID: 1})
			case protocol.ConfigurationApply:
				p.enqueue(protocol.ConfigurationError{ConfigID: m.ConfigID})
			}
		}}
	}
	s, _, _ := startSession(t, factory)
	waitStatus(t, s, StatusConnected)

	cfg := protocol.ConfigurationApply{
		ConfigID: 42,
		Inputs:   []protocol.InputConfig{{Pin: 4, Type: protocol.InputTypeAnalog}},
	}
	assert.ErrorIs(t, s.ApplyConfiguration(cfg), ErrDeviceRejected)

	// The previously active configuration stays reported.
	snap := s.Snapshot()
	require.NotNil(t, snap.ConfigID)
	assert.Equal(t, uint32(1), *snap.ConfigID)
}

func TestApplyConfigurationTimeout(t *testing.T) {
	factory := func(string) *fakePort {
		return &fakePort{onWrite: func(p *fakePort, msg protocol.Message) {
			if m, ok := msg.(protocol.IdentityRequest); ok {
				p.enqueue(protocol.IdentityResponse{RequestID: m.RequestID, Version: "1.0.0", ConfigID: 1})
			}
		}}
	}
	s, _, _ := startSession(t, factory)
	waitStatus(t, s, StatusConnected)

	cfg := protocol.ConfigurationApply{
		ConfigID: 42,
		Inputs:   []protocol.InputConfig{{Pin: 4, Type: protocol.InputTypeAnalog}},
	}
	assert.ErrorIs(t, s.ApplyConfiguration(cfg), ErrTimeout)
	assert.Equal(t, StatusConnected, s.Status())
}

func TestApplyConfigurationRequiresInputs(t *testing.T) {
	s, _, _ := startSession(t, answeringDevice("1.0.0", 1))
	waitStatus(t, s, StatusConnected)

	assert.ErrorIs(t, s.ApplyConfiguration(protocol.ConfigurationApply{ConfigID: 9}), ErrNoInputs)
}

func TestApplyConfigurationNotConnected(t *testing.T) {
	s, _, _ := startSession(t, silentDevice)
	waitStatus(t, s, StatusFailed)

	cfg := protocol.ConfigurationApply{
		ConfigID: 1,
		Inputs:   []protocol.InputConfig{{Pin: 4, Type: protocol.InputTypeAnalog}},
	}
	assert.ErrorIs(t, s.ApplyConfiguration(cfg), ErrNotConnected)
}

func TestDisconnectClosesHandleAndClearsValues(t *testing.T) {
	s, provider, hub := startSession(t, answeringDevice("1.0.0", 1))
	waitStatus(t, s, StatusConnected)

	sub := hub.Subscribe(events.TypeInputValue)
	defer sub.Close()
	provider.handle(devicePort).enqueue(protocol.InputValue{Pin: 4, Value: 512})
	select {
	case <-sub.C:
	case <-time.After(2 * time.Second):
		t.Fatal("no input value event published")
	}

	s.Disconnect()

	snap := s.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, ReasonDisconnected, snap.ErrorReason)
	assert.True(t, provider.handle(devicePort).isClosed())
	assert.Empty(t, s.InputValues())
}
