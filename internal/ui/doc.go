// Package ui provides terminal UI components for the iotctl CLI.
//
// Most commands follow a "run once and exit" pattern: a Header describing the
// command and device, a step list driven by an OperationRunner, then a Result
// box. Failures carry troubleshooting tips derived from device errors.
//
// The watch command is the exception. WatchModel is a Bubble Tea program that
// shows a spinner while the device is probed and then a live process table
// fed by the device's process stream.
//
// Example:
//
//	runner := ui.NewOperationRunner(ui.RunnerConfig{
//	    Title:   "Reboot",
//	    Command: "iotctl reboot",
//	    Params:  map[string]string{"Device": "192.168.1.50:8080"},
//	    Steps:   []string{"Probing device", "Authenticating", "Sending reboot"},
//	})
//
//	_, err := runner.Run(func(onStep ui.StepCallback) (map[string]string, error) {
//	    onStep(1, ui.StepRunning, "")
//	    // ... do work ...
//	    onStep(1, ui.StepComplete, "")
//	    return nil, nil
//	})
//
// # Logging Integration
//
// Logging is controlled by IOTCTL_LOG_LEVEL or --log-level and written to
// stderr, so curated output on stdout stays clean.
package ui
