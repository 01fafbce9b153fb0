package device

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/muurk/iotctl/internal/transport"
)

const testAddress = "192.168.1.20:8080"

func waitReady(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.WaitReady(ctx))
}

func TestNew_ProbeOutcomes(t *testing.T) {
	tests := []struct {
		name          string
		resp          *transport.Response
		err           error
		connected     bool
		authenticated bool
	}{
		{name: "200 OK", resp: status(http.StatusOK), connected: true, authenticated: true},
		{name: "204 No Content", resp: status(http.StatusNoContent), connected: true, authenticated: true},
		{name: "401 Unauthorized", resp: status(http.StatusUnauthorized), connected: true, authenticated: false},
		{name: "403 Forbidden", resp: status(http.StatusForbidden), connected: false, authenticated: false},
		{name: "307 Redirect", resp: status(http.StatusTemporaryRedirect), connected: false, authenticated: false},
		{name: "500 Server Error", resp: status(http.StatusInternalServerError), connected: false, authenticated: false},
		{name: "transport failure", err: errors.New("dial tcp: connection refused"), connected: false, authenticated: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := &mockTransport{}
			probe.On("Get", mock.Anything, LandingPath).Return(tt.resp, tt.err).Once()
			q := newTransportQueue(t, probe)

			s := New(testAddress, WithTransportFactory(q.factory))
			waitReady(t, s)

			assert.True(t, s.IsReady())
			assert.Equal(t, tt.connected, s.IsConnected())
			assert.Equal(t, tt.authenticated, s.IsAuthed())
		})
	}
}

func TestNew_ProbeConfiguration(t *testing.T) {
	probe := &mockTransport{}
	probe.On("Get", mock.Anything, LandingPath).Return(status(http.StatusOK), nil).Once()
	q := newTransportQueue(t, probe)

	s := New(testAddress,
		WithTransportFactory(q.factory),
		WithTimeout(3*time.Second),
		WithUserAgent("iotctl-test"),
	)
	waitReady(t, s)

	cfgs := q.configs()
	require.Len(t, cfgs, 1)
	assert.Equal(t, testAddress, cfgs[0].Address)
	assert.Equal(t, 3*time.Second, cfgs[0].Timeout)
	assert.Equal(t, "iotctl-test", cfgs[0].Headers["User-Agent"])
	assert.Nil(t, cfgs[0].Credential, "probe must be anonymous")
	assert.False(t, cfgs[0].FollowRedirects)
}

func TestNew_DefaultConfiguration(t *testing.T) {
	probe := &mockTransport{}
	probe.On("Get", mock.Anything, LandingPath).Return(status(http.StatusOK), nil).Once()
	q := newTransportQueue(t, probe)

	s := New(testAddress, WithTransportFactory(q.factory))
	waitReady(t, s)

	cfg := q.configs()[0]
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, transport.DefaultUserAgent, cfg.Headers["User-Agent"])
	assert.Equal(t, DefaultPollInterval, s.PollInterval())
}

func TestNew_ReturnsBeforeProbeCompletes(t *testing.T) {
	release := make(chan time.Time)
	probe := &mockTransport{}
	probe.On("Get", mock.Anything, LandingPath).WaitUntil(release).Return(status(http.StatusOK), nil).Once()
	q := newTransportQueue(t, probe)

	s := New(testAddress, WithTransportFactory(q.factory))

	assert.False(t, s.IsReady())
	assert.False(t, s.IsConnected())
	assert.False(t, s.IsAuthed())
	assert.False(t, s.State().Ready)

	close(release)
	waitReady(t, s)

	assert.True(t, s.IsReady())
	assert.True(t, s.IsAuthed())
}

func TestNew_ProbePanicStillSignalsReady(t *testing.T) {
	probe := &mockTransport{}
	probe.On("Get", mock.Anything, LandingPath).Panic("transport exploded").Once()
	q := newTransportQueue(t, probe)

	s := New(testAddress, WithTransportFactory(q.factory))
	waitReady(t, s)

	assert.False(t, s.IsConnected())
	assert.False(t, s.IsAuthed())
}

func TestReadyChannel(t *testing.T) {
	probe := &mockTransport{}
	probe.On("Get", mock.Anything, LandingPath).Return(status(http.StatusUnauthorized), nil).Once()
	q := newTransportQueue(t, probe)

	s := New(testAddress, WithTransportFactory(q.factory))

	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("session never became ready")
	}

	// Closed channels stay readable
	select {
	case <-s.Ready():
	default:
		t.Fatal("Ready() should stay closed")
	}
}

func TestWaitReady_ContextCancelled(t *testing.T) {
	release := make(chan time.Time)
	probe := &mockTransport{}
	probe.On("Get", mock.Anything, LandingPath).WaitUntil(release).Return(status(http.StatusOK), nil).Once()
	q := newTransportQueue(t, probe)

	s := New(testAddress, WithTransportFactory(q.factory))
	defer func() {
		close(release)
		waitReady(t, s)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.WaitReady(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, s.IsReady())
}

func TestObservers(t *testing.T) {
	probe := &mockTransport{}
	probe.On("Get", mock.Anything, LandingPath).Return(status(http.StatusOK), nil).Once()
	q := newTransportQueue(t, probe)

	s := New(testAddress, WithTransportFactory(q.factory))
	waitReady(t, s)

	assert.Equal(t, testAddress, s.Address())
	assert.Equal(t, KindIoT, s.Kind())
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, State{
		Address:       testAddress,
		Kind:          KindIoT,
		Ready:         true,
		Connected:     true,
		Authenticated: true,
	}, s.State())
}

func TestOperationsWaitForProbe(t *testing.T) {
	release := make(chan time.Time)
	probe := &mockTransport{}
	probe.On("Get", mock.Anything, LandingPath).WaitUntil(release).Return(status(http.StatusOK), nil).Once()
	probe.On("Post", mock.Anything, RestartPath, mock.Anything).Return(status(http.StatusOK), nil).Once()
	q := newTransportQueue(t, probe)

	s := New(testAddress, WithTransportFactory(q.factory))

	done := make(chan error, 1)
	go func() {
		done <- s.Reboot(context.Background())
	}()

	select {
	case err := <-done:
		t.Fatalf("Reboot returned before readiness: %v", err)
	case <-time.After(30 * time.Millisecond):
	}
	probe.AssertNotCalled(t, "Post", mock.Anything, mock.Anything, mock.Anything)

	close(release)

	select {
	case err := <-done:
		assert.NoError(t, err, "Reboot should observe the final probe outcome, not the initial state")
	case <-time.After(2 * time.Second):
		t.Fatal("Reboot never returned")
	}
}

func TestOperationsBeforeReady_ObserveFailedProbe(t *testing.T) {
	release := make(chan time.Time)
	probe := &mockTransport{}
	probe.On("Get", mock.Anything, LandingPath).WaitUntil(release).Return(nil, errors.New("i/o timeout")).Once()
	q := newTransportQueue(t, probe)

	s := New(testAddress, WithTransportFactory(q.factory))

	shutdownErr := make(chan error, 1)
	processErr := make(chan error, 1)
	go func() { shutdownErr <- s.Shutdown(context.Background()) }()
	go func() {
		_, err := s.Processes(context.Background())
		processErr <- err
	}()

	close(release)

	for _, ch := range []chan error{shutdownErr, processErr} {
		select {
		case err := <-ch:
			assert.True(t, IsNotConnected(err), "got %v", err)
		case <-time.After(2 * time.Second):
			t.Fatal("operation never returned")
		}
	}
	probe.AssertNumberOfCalls(t, "Post", 0)
}

func TestShutdown_NotConnected_NoNetworkCall(t *testing.T) {
	probe := &mockTransport{}
	probe.On("Get", mock.Anything, LandingPath).Return(status(http.StatusNotFound), nil).Once()
	q := newTransportQueue(t, probe)

	s := New(testAddress, WithTransportFactory(q.factory))
	waitReady(t, s)
	require.False(t, s.IsConnected())

	err := s.Shutdown(context.Background())

	require.Error(t, err)
	assert.True(t, IsNotConnected(err))
	assert.ErrorIs(t, err, ErrNotConnected)
	probe.AssertNumberOfCalls(t, "Post", 0)
}

func TestReboot_NotConnected_NoNetworkCall(t *testing.T) {
	probe := &mockTransport{}
	probe.On("Get", mock.Anything, LandingPath).Return(nil, errors.New("no route to host")).Once()
	q := newTransportQueue(t, probe)

	s := New(testAddress, WithTransportFactory(q.factory))

	err := s.Reboot(context.Background())

	assert.True(t, IsNotConnected(err))
	probe.AssertNumberOfCalls(t, "Post", 0)
}

func TestControl_Success(t *testing.T) {
	tests := []struct {
		name string
		op   func(*Session, context.Context) error
		path string
	}{
		{"reboot", (*Session).Reboot, RestartPath},
		{"shutdown", (*Session).Shutdown, ShutdownPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := &mockTransport{}
			probe.On("Get", mock.Anything, LandingPath).Return(status(http.StatusOK), nil).Once()
			probe.On("Post", mock.Anything, tt.path, []byte(nil)).Return(status(http.StatusOK), nil).Once()
			q := newTransportQueue(t, probe)

			s := New(testAddress, WithTransportFactory(q.factory))

			require.NoError(t, tt.op(s, context.Background()))
			assert.True(t, s.IsAuthed())
			assert.True(t, s.IsConnected())
		})
	}
}

func TestControl_Rejected(t *testing.T) {
	probe := &mockTransport{}
	probe.On("Get", mock.Anything, LandingPath).Return(status(http.StatusOK), nil).Once()
	probe.On("Post", mock.Anything, ShutdownPath, mock.Anything).Return(status(http.StatusForbidden), nil).Once()
	q := newTransportQueue(t, probe)

	s := New(testAddress, WithTransportFactory(q.factory))

	err := s.Shutdown(context.Background())

	require.Error(t, err)
	assert.True(t, IsControlError(err))
	assert.Equal(t, http.StatusForbidden, StatusCode(err))
	assert.True(t, s.IsAuthed(), "non-redirect rejection leaves authentication unchanged")
}

func TestControl_RedirectClearsAuthentication(t *testing.T) {
	probe := &mockTransport{}
	probe.On("Get", mock.Anything, LandingPath).Return(status(http.StatusOK), nil).Once()
	probe.On("Post", mock.Anything, RestartPath, mock.Anything).Return(status(http.StatusTemporaryRedirect), nil).Once()
	q := newTransportQueue(t, probe)

	s := New(testAddress, WithTransportFactory(q.factory))
	waitReady(t, s)
	require.True(t, s.IsAuthed())

	err := s.Reboot(context.Background())

	require.Error(t, err)
	assert.True(t, IsControlError(err))
	assert.Equal(t, http.StatusTemporaryRedirect, StatusCode(err))
	assert.False(t, s.IsAuthed())
	assert.True(t, s.IsConnected())
}

func TestControl_TransportFailure(t *testing.T) {
	probe := &mockTransport{}
	probe.On("Get", mock.Anything, LandingPath).Return(status(http.StatusOK), nil).Once()
	probe.On("Post", mock.Anything, RestartPath, mock.Anything).Return(nil, errors.New("connection reset by peer")).Once()
	q := newTransportQueue(t, probe)

	s := New(testAddress, WithTransportFactory(q.factory))

	err := s.Reboot(context.Background())

	assert.True(t, IsNetworkError(err))
	assert.True(t, s.IsAuthed())
	assert.True(t, s.IsConnected())
}

func TestAuth_Success_SwapsTransport(t *testing.T) {
	anonymous := &mockTransport{}
	anonymous.On("Get", mock.Anything, LandingPath).Return(status(http.StatusUnauthorized), nil).Once()

	authed := &mockTransport{}
	authed.On("Get", mock.Anything, LandingPath).Return(status(http.StatusOK), nil).Once()
	authed.On("Post", mock.Anything, ShutdownPath, mock.Anything).Return(status(http.StatusOK), nil).Once()

	q := newTransportQueue(t, anonymous, authed)
	s := New(testAddress, WithTransportFactory(q.factory))

	waitReady(t, s)
	require.False(t, s.IsAuthed())

	cred := Credential{Username: "Administrator", Password: "p@ssw0rd"}
	require.NoError(t, s.Auth(context.Background(), cred))

	assert.True(t, s.IsAuthed())
	assert.True(t, s.IsConnected())

	require.NoError(t, s.Shutdown(context.Background()))

	anonymous.AssertNumberOfCalls(t, "Post", 0)
	authed.AssertNumberOfCalls(t, "Post", 1)

	cfgs := q.configs()
	require.Len(t, cfgs, 2)
	require.NotNil(t, cfgs[1].Credential)
	assert.Equal(t, cred, *cfgs[1].Credential)
	assert.False(t, cfgs[1].FollowRedirects)
	assert.Equal(t, cfgs[0].Timeout, cfgs[1].Timeout)
	assert.Equal(t, cfgs[0].Headers, cfgs[1].Headers)
}

func TestAuth_Rejected(t *testing.T) {
	anonymous := &mockTransport{}
	anonymous.On("Get", mock.Anything, LandingPath).Return(status(http.StatusOK), nil).Once()
	anonymous.On("Post", mock.Anything, RestartPath, mock.Anything).Return(status(http.StatusOK), nil).Once()

	rejected := &mockTransport{}
	rejected.On("Get", mock.Anything, LandingPath).Return(status(http.StatusForbidden), nil).Once()

	q := newTransportQueue(t, anonymous, rejected)
	s := New(testAddress, WithTransportFactory(q.factory))
	waitReady(t, s)

	err := s.Auth(context.Background(), Credential{Username: "user", Password: "secret"})

	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, http.StatusForbidden, StatusCode(err))
	assert.False(t, s.IsAuthed())
	assert.True(t, s.IsConnected(), "a rejection still reached the device")

	// The rejected transport is never installed
	require.NoError(t, s.Reboot(context.Background()))
	rejected.AssertNumberOfCalls(t, "Post", 0)
}

func TestAuth_TransportFailure(t *testing.T) {
	anonymous := &mockTransport{}
	anonymous.On("Get", mock.Anything, LandingPath).Return(status(http.StatusOK), nil).Once()

	unreachable := &mockTransport{}
	unreachable.On("Get", mock.Anything, LandingPath).Return(nil, errors.New("dial tcp: i/o timeout")).Once()

	q := newTransportQueue(t, anonymous, unreachable)
	s := New(testAddress, WithTransportFactory(q.factory))
	waitReady(t, s)

	err := s.Auth(context.Background(), Credential{Username: "user", Password: "secret"})

	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
	assert.False(t, s.IsAuthed())
	assert.False(t, s.IsConnected())

	assert.True(t, IsNotConnected(s.Reboot(context.Background())))
}

func TestAuth_WaitsForProbe(t *testing.T) {
	release := make(chan time.Time)
	anonymous := &mockTransport{}
	anonymous.On("Get", mock.Anything, LandingPath).WaitUntil(release).Return(status(http.StatusOK), nil).Once()

	authed := &mockTransport{}
	authed.On("Get", mock.Anything, LandingPath).Return(status(http.StatusForbidden), nil).Once()

	q := newTransportQueue(t, anonymous, authed)
	s := New(testAddress, WithTransportFactory(q.factory))

	done := make(chan error, 1)
	go func() {
		done <- s.Auth(context.Background(), Credential{Username: "user", Password: "secret"})
	}()

	select {
	case err := <-done:
		t.Fatalf("Auth returned before readiness: %v", err)
	case <-time.After(30 * time.Millisecond):
	}

	close(release)

	select {
	case err := <-done:
		assert.True(t, IsAuthError(err))
	case <-time.After(2 * time.Second):
		t.Fatal("Auth never returned")
	}

	// The probe finished first, so the rejected Auth is the last word
	assert.False(t, s.IsAuthed())
}

func TestAuth_CancelledContextKeepsState(t *testing.T) {
	anonymous := &mockTransport{}
	anonymous.On("Get", mock.Anything, LandingPath).Return(status(http.StatusOK), nil).Once()

	ctx, cancel := context.WithCancel(context.Background())

	pending := &mockTransport{}
	pending.On("Get", mock.Anything, LandingPath).Run(func(mock.Arguments) {
		cancel()
	}).Return(nil, context.Canceled).Once()

	q := newTransportQueue(t, anonymous, pending)
	s := New(testAddress, WithTransportFactory(q.factory))
	waitReady(t, s)

	err := s.Auth(ctx, Credential{Username: "user"})

	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, s.IsConnected())
	assert.True(t, s.IsAuthed())
}

type stubProvider struct {
	procs []Process
	err   error
	seen  transport.Transport
}

func (p *stubProvider) Processes(ctx context.Context, t transport.Transport) ([]Process, error) {
	p.seen = t
	return p.procs, p.err
}

func TestProcesses_DelegatesWithCurrentTransport(t *testing.T) {
	anonymous := &mockTransport{}
	anonymous.On("Get", mock.Anything, LandingPath).Return(status(http.StatusUnauthorized), nil).Once()
	authed := &mockTransport{}
	authed.On("Get", mock.Anything, LandingPath).Return(status(http.StatusOK), nil).Once()

	provider := &stubProvider{procs: []Process{
		{ImageName: "System", ProcessID: 4},
		{ImageName: "svchost.exe", ProcessID: 812},
	}}

	q := newTransportQueue(t, anonymous, authed)
	s := New(testAddress, WithTransportFactory(q.factory), WithProcessProvider(provider))

	require.NoError(t, s.Auth(context.Background(), Credential{Username: "Administrator"}))

	procs, err := s.Processes(context.Background())
	require.NoError(t, err)
	require.Len(t, procs, 2)
	assert.Equal(t, "System", procs[0].ImageName)
	assert.Equal(t, "svchost.exe", procs[1].ImageName)
	assert.Same(t, authed, provider.seen)
}

func TestProcesses_ProviderErrorCarriesAddress(t *testing.T) {
	probe := &mockTransport{}
	probe.On("Get", mock.Anything, LandingPath).Return(status(http.StatusOK), nil).Once()
	q := newTransportQueue(t, probe)

	provider := &stubProvider{err: NewHTTPError(http.StatusInternalServerError, "boom", "")}
	s := New(testAddress, WithTransportFactory(q.factory), WithProcessProvider(provider))

	_, err := s.Processes(context.Background())

	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, testAddress, devErr.Address)
	assert.Equal(t, http.StatusInternalServerError, devErr.StatusCode)
}

func TestWatchProcesses_UnsupportedTransport(t *testing.T) {
	probe := &mockTransport{}
	probe.On("Get", mock.Anything, LandingPath).Return(status(http.StatusOK), nil).Once()
	q := newTransportQueue(t, probe)

	s := New(testAddress, WithTransportFactory(q.factory))

	err := s.WatchProcesses(context.Background(), func([]Process) error { return nil })

	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, ErrTypeUnsupported, devErr.Type)
}

func TestWatchProcesses_NotConnected(t *testing.T) {
	probe := &mockTransport{}
	probe.On("Get", mock.Anything, LandingPath).Return(status(http.StatusBadGateway), nil).Once()
	q := newTransportQueue(t, probe)

	s := New(testAddress, WithTransportFactory(q.factory))

	err := s.WatchProcesses(context.Background(), func([]Process) error { return nil })
	assert.True(t, IsNotConnected(err))
}

func TestConcurrentAuthIsSerialized(t *testing.T) {
	anonymous := &mockTransport{}
	anonymous.On("Get", mock.Anything, LandingPath).Return(status(http.StatusUnauthorized), nil).Once()

	first := &mockTransport{}
	second := &mockTransport{}
	inFlight := make(chan struct{}, 2)
	for _, m := range []*mockTransport{first, second} {
		m.On("Get", mock.Anything, LandingPath).Run(func(mock.Arguments) {
			inFlight <- struct{}{}
			defer func() { <-inFlight }()
			if len(inFlight) > 1 {
				t.Error("two Auth requests were in flight at once")
			}
			time.Sleep(10 * time.Millisecond)
		}).Return(status(http.StatusOK), nil).Once()
	}

	q := newTransportQueue(t, anonymous, first, second)
	s := New(testAddress, WithTransportFactory(q.factory))
	waitReady(t, s)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			errs <- s.Auth(context.Background(), Credential{Username: "Administrator"})
		}()
	}
	for i := 0; i < 2; i++ {
		assert.NoError(t, <-errs)
	}
	assert.True(t, s.IsAuthed())
}
