package device

import (
	"errors"
	"time"
)

// Status is a connection lifecycle state. Transitions are
// discovering -> connecting -> connected, disconnecting -> failed, and
// failed -> discovering once the backoff window elapsed.
type Status string

const (
	StatusDiscovering   Status = "discovering"
	StatusConnecting    Status = "connecting"
	StatusConnected     Status = "connected"
	StatusDisconnecting Status = "disconnecting"
	StatusFailed        Status = "failed"
)

// Failure reason codes. Timeout and no_valid_response stay distinct: a
// timeout means nothing answered, no_valid_response means something answered
// in the wrong dialect.
const (
	ReasonTimeout         = "timeout"
	ReasonNoValidResponse = "no_valid_response"
	ReasonDisconnected    = "disconnected"
)

var (
	// ErrTimeout means no response arrived within the bound. Never retried.
	ErrTimeout = errors.New(ReasonTimeout)

	// ErrNoValidResponse means the wrong-message-type retry budget ran out.
	ErrNoValidResponse = errors.New(ReasonNoValidResponse)

	// ErrNoInputs rejects applying an empty configuration.
	ErrNoInputs = errors.New("no_inputs")

	// ErrDeviceRejected is a device-side ConfigurationError.
	ErrDeviceRejected = errors.New("device_rejected")

	// ErrNotConnected means the session is not in connected state.
	ErrNotConnected = errors.New("not_connected")

	// ErrPortLeased means the port is held by a firmware upload lease.
	ErrPortLeased = errors.New("port_leased")

	// ErrUnknownPort means no connection is tracked for the port.
	ErrUnknownPort = errors.New("unknown_port")

	// ErrInvalidToken rejects a lease release with the wrong token.
	ErrInvalidToken = errors.New("invalid_token")
)

// Connection is a point-in-time snapshot of one port's state.
type Connection struct {
	Port        string    `json:"port"`
	Status      Status    `json:"status"`
	Version     string    `json:"version,omitempty"`
	ConfigID    *uint32   `json:"config_id,omitempty"`
	ErrorReason string    `json:"error_reason,omitempty"`
	FailedAt    time.Time `json:"failed_at,omitempty"`
	LastSeen    time.Time `json:"last_seen,omitempty"`
}
