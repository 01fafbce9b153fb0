// Package device manages a session with a single Windows IoT Core device
// through its Device Portal HTTP API.
//
// # Lifecycle
//
// New starts a connectivity probe (GET /default.htm) in the background and
// returns immediately. The session becomes ready exactly once, when the probe
// finishes, whatever its outcome:
//
//   - 2xx: connected and authenticated
//   - 401: connected, not authenticated (credentials required)
//   - anything else, or no response: neither
//
// Every operation (Auth, Reboot, Shutdown, Processes, WatchProcesses) waits
// for readiness before reading connection state, so calling one straight
// after New observes the probe's outcome rather than the initial zero state.
//
// # Authentication
//
// Auth builds a new transport carrying the credentials and requests the
// landing page with it. Only a 2xx installs the new transport; subsequent
// operations then use it exclusively.
//
//	s := device.New("192.168.1.20:8080")
//	if err := s.Auth(ctx, device.Credential{Username: "Administrator", Password: pw}); err != nil {
//	    return err
//	}
//	if err := s.Reboot(ctx); err != nil {
//	    return err
//	}
//
// # Errors
//
// Operations return *DeviceError. Use IsNotConnected, IsAuthError,
// IsControlError and IsNetworkError to branch on the category, and
// StatusCode to read the HTTP status a rejection carried. A 307 on a control
// request means the device dropped the session's authorization; the session
// clears its authenticated flag before returning the error.
//
// # Retries
//
// A session never retries. One failed request is terminal for that call.
// WaitForRestart is the only polling loop in the package; it builds a fresh
// session per attempt and is meant for use after Reboot.
//
// # Thread Safety
//
// Sessions are safe for concurrent use. Auth calls are serialized, and the
// transport swap happens under the same lock that guards the state flags.
package device
