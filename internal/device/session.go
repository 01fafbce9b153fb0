package device

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muurk/iotctl/internal/logging"
	"github.com/muurk/iotctl/internal/transport"
)

// Device Portal endpoints used by a session
const (
	LandingPath   = "/default.htm"
	RestartPath   = "/api/control/restart"
	ShutdownPath  = "/api/control/shutdown"
	ProcessesPath = "/api/resourcemanager/processes"
)

// Kind identifies the class of device a session manages
type Kind string

// KindIoT is the only kind a Session manages
const KindIoT Kind = "IoT"

// Credential is the username/password pair used by Auth
type Credential = transport.Credential

// State is a point-in-time snapshot of a session
type State struct {
	Address       string `json:"address"`
	Kind          Kind   `json:"kind"`
	Ready         bool   `json:"ready"`
	Connected     bool   `json:"connected"`
	Authenticated bool   `json:"authenticated"`
}

// Session manages the connection and authentication lifecycle for one device.
//
// A connectivity probe starts when the session is created. Until it finishes
// the session is not ready, and every operation waits for it before reading
// connection or authentication state.
type Session struct {
	id      string
	address string
	opts    options

	ready chan struct{}

	// mu guards the fields below
	mu            sync.RWMutex
	connected     bool
	authenticated bool
	transport     transport.Transport

	// authMu serializes Auth calls
	authMu sync.Mutex
}

// New creates a session for the device at address and starts the
// connectivity probe in the background. It never blocks.
func New(address string, opts ...Option) *Session {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		id:      uuid.NewString(),
		address: address,
		opts:    o,
		ready:   make(chan struct{}),
	}
	s.transport = s.newTransport(nil)

	go s.probe(s.transport)

	return s
}

func (s *Session) newTransport(cred *Credential) transport.Transport {
	return s.opts.factory(transport.Config{
		Address:         s.address,
		Timeout:         s.opts.timeout,
		Headers:         map[string]string{"User-Agent": s.opts.userAgent},
		Credential:      cred,
		FollowRedirects: false,
	})
}

// probe issues the initial landing page request. Readiness is signalled on
// every path, including a panicking transport.
func (s *Session) probe(t transport.Transport) {
	var connected, authenticated bool

	defer func() {
		if r := recover(); r != nil {
			logging.Warn("Connectivity probe panicked",
				zap.String("session_id", s.id),
				zap.String("address", s.address),
				zap.Any("panic", r),
			)
			connected, authenticated = false, false
		}

		s.mu.Lock()
		s.connected = connected
		s.authenticated = authenticated
		s.mu.Unlock()

		close(s.ready)
		logging.LogSessionState(s.id, s.address, "probe_complete", connected, authenticated)
	}()

	resp, err := t.Get(context.Background(), LandingPath)
	switch {
	case err != nil:
		logging.Debug("Connectivity probe failed",
			zap.String("session_id", s.id),
			zap.String("address", s.address),
			zap.Error(err),
		)
	case resp.Success():
		connected, authenticated = true, true
	case resp.StatusCode == http.StatusUnauthorized:
		connected = true
	}
}

// Ready returns a channel that is closed once the connectivity probe finishes
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// WaitReady blocks until the connectivity probe finishes or ctx is done
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	default:
	}

	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for session to become ready: %w", ctx.Err())
	}
}

// ID returns the identifier used to correlate this session's log entries
func (s *Session) ID() string {
	return s.id
}

// Address returns the device address the session was created for
func (s *Session) Address() string {
	return s.address
}

// Kind returns the device kind
func (s *Session) Kind() Kind {
	return KindIoT
}

// PollInterval returns the configured interval for callers that poll IsReady
func (s *Session) PollInterval() time.Duration {
	return s.opts.pollInterval
}

// IsReady reports whether the connectivity probe has finished
func (s *Session) IsReady() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// IsConnected reports whether the last probe or auth attempt reached the
// device. It is always false before the session is ready.
func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// IsAuthed reports whether the device accepted the current credentials
func (s *Session) IsAuthed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// State returns a snapshot of the session without waiting for readiness
func (s *Session) State() State {
	ready := s.IsReady()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Address:       s.address,
		Kind:          KindIoT,
		Ready:         ready,
		Connected:     s.connected,
		Authenticated: s.authenticated,
	}
}

// current returns the installed transport and connection flag together
func (s *Session) current() (transport.Transport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transport, s.connected
}

// Auth replaces the session's credentials. A fresh transport carrying cred
// requests the landing page; only a 2xx installs it for later operations.
// A non-2xx clears the authenticated flag. A transport failure clears both
// flags, so a later Reboot or Shutdown returns NotConnected until Auth
// succeeds. Cancelling ctx leaves the state untouched.
func (s *Session) Auth(ctx context.Context, cred Credential) error {
	if err := s.WaitReady(ctx); err != nil {
		return err
	}

	s.authMu.Lock()
	defer s.authMu.Unlock()

	t := s.newTransport(&cred)

	resp, err := t.Get(ctx, LandingPath)
	if err != nil {
		closeIdle(t)
		if ctx.Err() != nil {
			return fmt.Errorf("authentication cancelled: %w", ctx.Err())
		}
		s.mu.Lock()
		s.connected = false
		s.authenticated = false
		s.mu.Unlock()
		logging.LogSessionState(s.id, s.address, "auth_unreachable", false, false)
		return NewNetworkError("authentication request failed", err, s.address)
	}

	if !resp.Success() {
		closeIdle(t)
		s.mu.Lock()
		s.authenticated = false
		connected := s.connected
		s.mu.Unlock()
		logging.LogSessionState(s.id, s.address, "auth_rejected", connected, false)
		return NewAuthFailedError(resp.StatusCode, s.address)
	}

	s.mu.Lock()
	previous := s.transport
	s.transport = t
	s.connected = true
	s.authenticated = true
	s.mu.Unlock()

	closeIdle(previous)
	logging.LogSessionState(s.id, s.address, "auth_accepted", true, true)
	return nil
}

// Reboot restarts the device
func (s *Session) Reboot(ctx context.Context) error {
	return s.control(ctx, RestartPath)
}

// Shutdown powers the device off
func (s *Session) Shutdown(ctx context.Context) error {
	return s.control(ctx, ShutdownPath)
}

func (s *Session) control(ctx context.Context, path string) error {
	if err := s.WaitReady(ctx); err != nil {
		return err
	}

	t, connected := s.current()
	if !connected {
		return NewNotConnectedError(s.address)
	}

	resp, err := t.Post(ctx, path, nil)
	if err != nil {
		return NewNetworkError(fmt.Sprintf("control request %s failed", path), err, s.address)
	}

	if resp.Success() {
		logging.Info("Control request accepted",
			zap.String("session_id", s.id),
			zap.String("address", s.address),
			zap.String("path", path),
		)
		return nil
	}

	// The device answers 307 when it no longer honours the session's credentials
	if resp.StatusCode == http.StatusTemporaryRedirect {
		s.mu.Lock()
		s.authenticated = false
		connected := s.connected
		s.mu.Unlock()
		logging.LogSessionState(s.id, s.address, "auth_revoked", connected, false)
	}

	return NewControlError(path, resp.StatusCode, s.address)
}

// Processes returns the device's running processes in the order the device
// reports them
func (s *Session) Processes(ctx context.Context) ([]Process, error) {
	if err := s.WaitReady(ctx); err != nil {
		return nil, err
	}

	t, connected := s.current()
	if !connected {
		return nil, NewNotConnectedError(s.address)
	}

	procs, err := s.opts.processes.Processes(ctx, t)
	if err != nil {
		var devErr *DeviceError
		if errors.As(err, &devErr) && devErr.Address == "" {
			devErr.Address = s.address
		}
		return nil, err
	}
	return procs, nil
}

// Close releases idle connections held by the current transport. The
// session stays usable.
func (s *Session) Close() {
	t, _ := s.current()
	closeIdle(t)
}

type idleCloser interface {
	CloseIdleConnections()
}

func closeIdle(t transport.Transport) {
	if c, ok := t.(idleCloser); ok {
		c.CloseIdleConnections()
	}
}
