package device

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tswio/panelcore/internal/events"
	"github.com/tswio/panelcore/internal/serialport"
)

// DefaultReconnectBackoff is how long a failed port stays quarantined before
// a scan may try it again.
const DefaultReconnectBackoff = 30 * time.Second

// Registry tracks one session per serial port. Scans are idempotent: running
// twice in a row changes nothing unless the port list or a session's state
// changed in between.
type Registry struct {
	provider serialport.Provider
	hub      *events.Hub
	logger   *zap.Logger
	opts     Options
	backoff  time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	leases   map[string]string
}

// NewRegistry creates an empty registry. backoff <= 0 selects the default.
func NewRegistry(provider serialport.Provider, hub *events.Hub, opts Options, backoff time.Duration, logger *zap.Logger) *Registry {
	if backoff <= 0 {
		backoff = DefaultReconnectBackoff
	}
	return &Registry{
		provider: provider,
		hub:      hub,
		logger:   logger,
		opts:     opts,
		backoff:  backoff,
		sessions: make(map[string]*Session),
		leases:   make(map[string]string),
	}
}

// Scan reconciles tracked sessions against the ports currently present:
// sessions for vanished ports are torn down, new ports get a fresh session,
// and failed ports are retried once their backoff window elapsed. Leased
// ports are left alone entirely.
func (r *Registry) Scan() error {
	ports, err := r.provider.Enumerate()
	if err != nil {
		return err
	}

	present := make(map[string]struct{}, len(ports))
	for _, p := range ports {
		present[p] = struct{}{}
	}

	r.mu.Lock()
	var vanished []*Session
	for port, session := range r.sessions {
		if _, ok := present[port]; !ok {
			vanished = append(vanished, session)
			delete(r.sessions, port)
		}
	}

	var respawn []*Session
	for _, port := range ports {
		if _, leased := r.leases[port]; leased {
			continue
		}
		session, tracked := r.sessions[port]
		if !tracked {
			r.logger.Info("New serial port detected", zap.String("port", port))
			r.sessions[port] = NewSession(port, r.provider, r.opts, r.hub, r.logger)
			continue
		}
		snap := session.Snapshot()
		if snap.Status == StatusFailed && time.Since(snap.FailedAt) >= r.backoff {
			respawn = append(respawn, session)
			r.sessions[port] = NewSession(port, r.provider, r.opts, r.hub, r.logger)
		}
	}
	r.mu.Unlock()

	for _, session := range vanished {
		r.logger.Info("Serial port vanished", zap.String("port", session.Port()))
		session.Disconnect()
	}
	for _, session := range respawn {
		session.Disconnect()
	}
	return nil
}

// List returns snapshots of every tracked connection, sorted by port.
func (r *Registry) List() []Connection {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	conns := make([]Connection, 0, len(sessions))
	for _, s := range sessions {
		conns = append(conns, s.Snapshot())
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].Port < conns[j].Port })
	return conns
}

// Get returns the session tracked for a port.
func (r *Registry) Get(port string) (*Session, error) {
	r.mu.Lock()
	session, ok := r.sessions[port]
	r.mu.Unlock()
	if !ok {
		return nil, ErrUnknownPort
	}
	return session, nil
}

// Disconnect tears down a port's session and stops tracking it. The next
// scan treats the port as brand new.
func (r *Registry) Disconnect(port string) error {
	r.mu.Lock()
	session, ok := r.sessions[port]
	delete(r.sessions, port)
	r.mu.Unlock()
	if !ok {
		return ErrUnknownPort
	}

	session.Disconnect()
	return nil
}

// RequestUploadAccess frees a port for exclusive external use, typically a
// firmware upload. The returned token must be presented on release. While
// leased, scans skip the port and no session touches it.
func (r *Registry) RequestUploadAccess(port string) (string, error) {
	r.mu.Lock()
	if _, leased := r.leases[port]; leased {
		r.mu.Unlock()
		return "", ErrPortLeased
	}
	token := uuid.NewString()
	r.leases[port] = token
	session, tracked := r.sessions[port]
	delete(r.sessions, port)
	r.mu.Unlock()

	if tracked {
		session.Disconnect()
	}
	r.logger.Info("Port leased for upload", zap.String("port", port))
	return token, nil
}

// ReleaseUploadAccess returns a leased port to normal management. The next
// scan reconnects it.
func (r *Registry) ReleaseUploadAccess(port, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, leased := r.leases[port]
	if !leased {
		return ErrUnknownPort
	}
	if current != token {
		return ErrInvalidToken
	}
	delete(r.leases, port)
	r.logger.Info("Port lease released", zap.String("port", port))
	return nil
}
