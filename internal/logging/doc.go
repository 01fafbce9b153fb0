// Package logging provides structured logging for iotctl.
//
// This package wraps a global zap logger with convenience functions for the
// events a device session produces: outgoing requests, response statuses and
// session state transitions.
//
// # Log Levels
//
//   - Debug: Per-request and per-response detail
//   - Info: Session state changes (probe outcome, auth result, stream open/close)
//   - Warn: Recovered failures (probe panics, malformed stream frames)
//   - Error: Failures the CLI could not recover from
//
// # Configuration
//
// Logging is silent unless a level is given, either explicitly or through
// the IOTCTL_LOG_LEVEL environment variable:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Output goes to stderr so that JSON output on stdout stays machine readable.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
