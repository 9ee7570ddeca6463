package device

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tswio/panelcore/internal/events"
	"github.com/tswio/panelcore/internal/protocol"
	"github.com/tswio/panelcore/internal/serialport"
)

// Options bounds every blocking boundary of a session.
type Options struct {
	// HandshakeTimeout is the identity read bound. A timed-out read fails
	// the session immediately; it is never retried.
	HandshakeTimeout time.Duration

	// HandshakeRetries bounds how many decoded-but-wrong-type messages the
	// handshake tolerates before giving up with no_valid_response.
	HandshakeRetries int

	// ApplyTimeout bounds the wait for a configuration ack.
	ApplyTimeout time.Duration

	// PollInterval is the connected read loop's per-read timeout; it also
	// bounds how long teardown and apply requests wait for the loop.
	PollInterval time.Duration
}

// DefaultOptions are the reference bounds.
func DefaultOptions() Options {
	return Options{
		HandshakeTimeout: time.Second,
		HandshakeRetries: 3,
		ApplyTimeout:     time.Second,
		PollInterval:     50 * time.Millisecond,
	}
}

// errStopped aborts the handshake when a disconnect arrives mid-connect.
var errStopped = errors.New("session stopped")

var requestCounter uint32

func nextRequestID() uint32 {
	return atomic.AddUint32(&requestCounter, 1)
}

type applyRequest struct {
	msg   protocol.ConfigurationApply
	reply chan error
}

// Session owns one port: the open handle, the handshake, the connected read
// loop and all protocol traffic. The handle is touched only on the session's
// own goroutine, so a stuck device stalls this session and nothing else.
type Session struct {
	port     string
	provider serialport.Provider
	opts     Options
	hub      *events.Hub
	logger   *zap.Logger

	mu          sync.RWMutex
	status      Status
	version     string
	configID    uint32
	hasConfigID bool
	failedAt    time.Time
	errorReason string
	lastSeen    time.Time
	inputs      map[uint8]uint16

	// rxBuf is owned by the run goroutine; partial frames survive reads.
	rxBuf []byte

	applyCh  chan applyRequest
	stop     chan struct{}
	stopOnce sync.Once
	exited   chan struct{}
}

// NewSession creates a session in discovering state and starts its goroutine.
func NewSession(port string, provider serialport.Provider, opts Options, hub *events.Hub, logger *zap.Logger) *Session {
	s := &Session{
		port:     port,
		provider: provider,
		opts:     opts,
		hub:      hub,
		logger:   logger.With(zap.String("port", port)),
		status:   StatusDiscovering,
		inputs:   make(map[uint8]uint16),
		applyCh:  make(chan applyRequest),
		stop:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Port returns the port identifier.
func (s *Session) Port() string { return s.port }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Snapshot returns the connection's current state for listing.
func (s *Session) Snapshot() Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn := Connection{
		Port:        s.port,
		Status:      s.status,
		Version:     s.version,
		ErrorReason: s.errorReason,
		FailedAt:    s.failedAt,
		LastSeen:    s.lastSeen,
	}
	if s.hasConfigID {
		id := s.configID
		conn.ConfigID = &id
	}
	return conn
}

// InputValues returns the last known raw value per pin.
func (s *Session) InputValues() map[uint8]uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values := make(map[uint8]uint16, len(s.inputs))
	for pin, v := range s.inputs {
		values[pin] = v
	}
	return values
}

// ApplyConfiguration sends a configuration and waits for the device's ack,
// bounded by ApplyTimeout. An empty configuration is rejected up front.
func (s *Session) ApplyConfiguration(cfg protocol.ConfigurationApply) error {
	if len(cfg.Inputs) == 0 {
		return ErrNoInputs
	}
	if s.Status() != StatusConnected {
		return ErrNotConnected
	}

	req := applyRequest{msg: cfg, reply: make(chan error, 1)}
	select {
	case s.applyCh <- req:
	case <-s.exited:
		return ErrNotConnected
	}

	select {
	case err := <-req.reply:
		return err
	case <-s.exited:
		return ErrNotConnected
	}
}

// Disconnect tears the session down from any state: the handle is closed and
// tracked input values dropped. Blocks until the session goroutine exited.
func (s *Session) Disconnect() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.exited
}

// run is the session goroutine: connect, handshake, then the connected loop.
func (s *Session) run() {
	defer close(s.exited)

	s.setStatus(StatusConnecting)

	handle, err := s.provider.Open(s.port)
	if err != nil {
		s.fail(nil, fmt.Sprintf("open failed: %v", err))
		return
	}

	identity, err := s.handshake(handle)
	if errors.Is(err, errStopped) {
		s.teardown(handle)
		return
	}
	if err != nil {
		s.fail(handle, err.Error())
		return
	}

	s.mu.Lock()
	s.version = identity.Version
	s.configID = identity.ConfigID
	s.hasConfigID = true
	s.lastSeen = time.Now()
	s.mu.Unlock()

	s.logger.Info("Device connected",
		zap.String("version", identity.Version),
		zap.Uint32("config_id", identity.ConfigID))
	s.setStatus(StatusConnected)
	s.hub.Publish(events.New(events.TypeDeviceConnected, events.DeviceData{
		Port:   s.port,
		Status: string(StatusConnected),
	}))

	s.readLoop(handle)
}

// handshake sends IdentityRequest and reads until the matching
// IdentityResponse arrives. A read timeout fails immediately; wrong-type
// messages consume one retry each.
func (s *Session) handshake(handle serialport.Port) (protocol.IdentityResponse, error) {
	requestID := nextRequestID()

	frame, err := protocol.Encode(protocol.IdentityRequest{RequestID: requestID})
	if err != nil {
		return protocol.IdentityResponse{}, err
	}
	if _, err := handle.Write(frame); err != nil {
		return protocol.IdentityResponse{}, fmt.Errorf("identity write failed: %w", err)
	}
	if err := handle.Drain(); err != nil {
		return protocol.IdentityResponse{}, fmt.Errorf("identity drain failed: %w", err)
	}
	if err := handle.SetReadTimeout(s.opts.HandshakeTimeout); err != nil {
		return protocol.IdentityResponse{}, fmt.Errorf("set read timeout failed: %w", err)
	}

	attempts := 0
	chunk := make([]byte, 256)

	for {
		select {
		case <-s.stop:
			return protocol.IdentityResponse{}, errStopped
		default:
		}

		n, err := handle.Read(chunk)
		if err != nil {
			return protocol.IdentityResponse{}, fmt.Errorf("identity read failed: %w", err)
		}
		if n == 0 {
			return protocol.IdentityResponse{}, ErrTimeout
		}
		s.rxBuf = append(s.rxBuf, chunk[:n]...)

		for len(s.rxBuf) > 0 {
			msg, rest, err := protocol.Decode(s.rxBuf)
			if errors.Is(err, protocol.ErrShortBuffer) {
				break
			}
			if err != nil {
				// Line noise: resync on the next byte.
				s.rxBuf = s.rxBuf[1:]
				continue
			}
			s.rxBuf = rest

			if resp, ok := msg.(protocol.IdentityResponse); ok && resp.RequestID == requestID {
				return resp, nil
			}

			attempts++
			if attempts >= s.opts.HandshakeRetries {
				return protocol.IdentityResponse{}, ErrNoValidResponse
			}
		}
	}
}

// readLoop is the connected steady state: decode inbound frames, serve apply
// requests, honor disconnects.
func (s *Session) readLoop(handle serialport.Port) {
	if err := handle.SetReadTimeout(s.opts.PollInterval); err != nil {
		s.fail(handle, fmt.Sprintf("set read timeout failed: %v", err))
		return
	}

	chunk := make([]byte, 256)

	for {
		select {
		case <-s.stop:
			s.teardown(handle)
			return
		case req := <-s.applyCh:
			req.reply <- s.doApply(handle, req.msg, chunk)
			if s.Status() != StatusConnected {
				// An I/O failure during apply already failed the session.
				return
			}
		default:
		}

		n, err := handle.Read(chunk)
		if err != nil {
			s.fail(handle, fmt.Sprintf("read failed: %v", err))
			return
		}
		if n > 0 {
			s.rxBuf = append(s.rxBuf, chunk[:n]...)
			s.dispatchFrames()
		}
	}
}

// dispatchFrames consumes every complete frame in rxBuf, keeping partial
// frames for the next read. Malformed bytes are logged and skipped; the loop
// never crashes on line noise.
func (s *Session) dispatchFrames() {
	for len(s.rxBuf) > 0 {
		msg, rest, err := protocol.Decode(s.rxBuf)
		if errors.Is(err, protocol.ErrShortBuffer) {
			return
		}
		if err != nil {
			s.logger.Debug("Discarding undecodable byte", zap.Error(err))
			s.rxBuf = s.rxBuf[1:]
			continue
		}
		s.rxBuf = rest
		s.handleMessage(msg)
	}
}

func (s *Session) handleMessage(msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.InputValue:
		s.mu.Lock()
		s.inputs[m.Pin] = m.Value
		s.lastSeen = time.Now()
		s.mu.Unlock()

		s.hub.Publish(events.New(events.TypeInputValue, events.InputValueData{
			Port:  s.port,
			Pin:   m.Pin,
			Value: int(m.Value),
		}))

	case protocol.Heartbeat:
		s.mu.Lock()
		s.lastSeen = time.Now()
		s.mu.Unlock()

	default:
		s.logger.Debug("Ignoring unexpected message in connected state",
			zap.Uint8("tag", msg.Tag()))
	}
}

// doApply writes a ConfigurationApply and waits for the correlated ack.
// Live values keep flowing while waiting. Expiry reports timeout, never a
// silent drop.
func (s *Session) doApply(handle serialport.Port, msg protocol.ConfigurationApply, chunk []byte) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if _, err := handle.Write(frame); err != nil {
		s.fail(handle, fmt.Sprintf("configuration write failed: %v", err))
		return fmt.Errorf("configuration write failed: %w", err)
	}
	if err := handle.Drain(); err != nil {
		s.fail(handle, fmt.Sprintf("configuration drain failed: %v", err))
		return fmt.Errorf("configuration drain failed: %w", err)
	}

	deadline := time.Now().Add(s.opts.ApplyTimeout)

	for time.Now().Before(deadline) {
		n, err := handle.Read(chunk)
		if err != nil {
			s.fail(handle, fmt.Sprintf("read failed: %v", err))
			return fmt.Errorf("configuration read failed: %w", err)
		}
		if n == 0 {
			continue
		}
		s.rxBuf = append(s.rxBuf, chunk[:n]...)

		for len(s.rxBuf) > 0 {
			inner, rest, err := protocol.Decode(s.rxBuf)
			if errors.Is(err, protocol.ErrShortBuffer) {
				break
			}
			if err != nil {
				s.rxBuf = s.rxBuf[1:]
				continue
			}
			s.rxBuf = rest

			switch ack := inner.(type) {
			case protocol.ConfigurationStored:
				if ack.ConfigID == msg.ConfigID {
					s.mu.Lock()
					s.configID = msg.ConfigID
					s.hasConfigID = true
					s.mu.Unlock()
					return nil
				}
			case protocol.ConfigurationError:
				if ack.ConfigID == msg.ConfigID {
					return ErrDeviceRejected
				}
			default:
				s.handleMessage(inner)
			}
		}
	}

	return ErrTimeout
}

// teardown handles an explicit disconnect: close the handle, drop tracked
// values, park the connection in failed so the registry's backoff applies.
func (s *Session) teardown(handle serialport.Port) {
	s.setStatus(StatusDisconnecting)
	if handle != nil {
		handle.Close()
	}

	s.mu.Lock()
	s.inputs = make(map[uint8]uint16)
	s.status = StatusFailed
	s.failedAt = time.Now()
	s.errorReason = ReasonDisconnected
	s.mu.Unlock()

	s.logger.Info("Device disconnected")
	s.publishChanged(StatusFailed, ReasonDisconnected)
}

// fail releases the session's resources and records the failure with a
// monotonic timestamp for backoff bookkeeping.
func (s *Session) fail(handle serialport.Port, reason string) {
	if handle != nil {
		handle.Close()
	}

	s.mu.Lock()
	s.inputs = make(map[uint8]uint16)
	s.status = StatusFailed
	s.failedAt = time.Now()
	s.errorReason = reason
	s.mu.Unlock()

	s.logger.Warn("Device session failed", zap.String("reason", reason))
	s.hub.Publish(events.New(events.TypeDeviceFailed, events.DeviceData{
		Port:   s.port,
		Status: string(StatusFailed),
		Reason: reason,
	}))
	s.publishChanged(StatusFailed, reason)
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
	s.publishChanged(status, "")
}

func (s *Session) publishChanged(status Status, reason string) {
	s.hub.Publish(events.New(events.TypeDeviceListChanged, events.DeviceData{
		Port:   s.port,
		Status: string(status),
		Reason: reason,
	}))
}
