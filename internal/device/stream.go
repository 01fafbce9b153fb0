package device

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/iotctl/internal/logging"
	"github.com/muurk/iotctl/internal/transport"
)

// ProcessHandler receives each process snapshot from WatchProcesses.
// Returning an error stops the watch and WatchProcesses returns that error.
type ProcessHandler func(procs []Process) error

// WatchProcesses streams process snapshots from the device until ctx is
// done, the device closes the stream, or fn returns an error. A normal close
// by either side returns nil.
func (s *Session) WatchProcesses(ctx context.Context, fn ProcessHandler) error {
	if err := s.WaitReady(ctx); err != nil {
		return err
	}

	t, connected := s.current()
	if !connected {
		return NewNotConnectedError(s.address)
	}

	dialer, ok := t.(transport.StreamDialer)
	if !ok {
		return NewUnsupportedError("transport cannot open process streams")
	}

	stream, err := dialer.DialStream(ctx, ProcessesPath)
	if err != nil {
		return s.streamDialError(err)
	}

	var once sync.Once
	closeStream := func() {
		once.Do(func() { _ = stream.Close() })
	}
	defer closeStream()

	// Unblock ReadJSON when the caller gives up
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeStream()
		case <-done:
		}
	}()

	logging.LogSessionState(s.id, s.address, "stream_open", true, s.IsAuthed())
	defer func() {
		logging.LogSessionState(s.id, s.address, "stream_closed", s.IsConnected(), s.IsAuthed())
	}()

	for {
		var frame processList
		if err := stream.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			logging.Debug("Process stream read failed",
				zap.String("session_id", s.id),
				zap.Error(err),
			)
			if isDecodeError(err) {
				return NewParseError("malformed process stream frame", err)
			}
			return NewNetworkError("process stream interrupted", err, s.address)
		}

		if frame.Processes == nil {
			frame.Processes = []Process{}
		}
		if err := fn(frame.Processes); err != nil {
			return err
		}
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

func (s *Session) streamDialError(err error) error {
	var hsErr *transport.HandshakeError
	if !errors.As(err, &hsErr) {
		return NewNetworkError("process stream connect failed", err, s.address)
	}

	switch hsErr.StatusCode {
	case http.StatusUnauthorized:
		return NewAuthFailedError(hsErr.StatusCode, s.address)
	case http.StatusTemporaryRedirect:
		s.mu.Lock()
		s.authenticated = false
		s.mu.Unlock()
		return NewAuthFailedError(hsErr.StatusCode, s.address)
	default:
		return NewHTTPError(hsErr.StatusCode, "process stream rejected", s.address)
	}
}
