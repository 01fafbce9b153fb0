package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/muurk/iotctl/internal/device"
)

// RunnerConfig holds configuration for a device operation
type RunnerConfig struct {
	Title   string            // Operation title (e.g., "Reboot")
	Command string            // Full command (e.g., "iotctl reboot")
	Params  map[string]string // Parameters to display in header
	Steps   []string          // Names for each step
	Output  io.Writer         // Output writer (default: os.Stdout)
}

// OperationRunner orchestrates the header, step list and result box for a
// device operation.
type OperationRunner struct {
	config   RunnerConfig
	header   *Header
	progress *Progress
	output   io.Writer
	width    int
}

// Operation is the work performed by an OperationRunner. It reports progress
// through onStep and returns details for the success box.
type Operation func(onStep StepCallback) (map[string]string, error)

// NewOperationRunner creates a new runner
func NewOperationRunner(config RunnerConfig) *OperationRunner {
	if config.Output == nil {
		config.Output = os.Stdout
	}

	width := GetTerminalWidth()

	return &OperationRunner{
		config:   config,
		header:   NewHeader(config.Title, config.Command, config.Params).SetWidth(width),
		progress: NewProgress(config.Steps).SetWidth(width),
		output:   config.Output,
		width:    width,
	}
}

// SetWidth overrides the detected terminal width
func (r *OperationRunner) SetWidth(width int) *OperationRunner {
	r.width = width
	r.header.SetWidth(width)
	r.progress.SetWidth(width)
	return r
}

// Run prints the header, executes the operation and prints the result.
// The operation's error is returned unchanged.
func (r *OperationRunner) Run(operation Operation) (map[string]string, error) {
	start := time.Now()

	_, _ = fmt.Fprintln(r.output, r.header.Render())
	_, _ = fmt.Fprintln(r.output)

	details, err := operation(r.onStep)
	duration := time.Since(start)

	_, _ = fmt.Fprintln(r.output)
	_, _ = fmt.Fprintln(r.output, r.progress.RenderBar())
	_, _ = fmt.Fprintln(r.output)
	if err != nil {
		result := NewFailureResult(r.config.Title+" failed", err, device.TroubleshootingHints(err))
		_, _ = fmt.Fprintln(r.output, result.SetWidth(r.width).Render())
		return details, err
	}

	out := make(map[string]string, len(details)+1)
	for k, v := range details {
		out[k] = v
	}
	out["Duration"] = duration.Round(time.Millisecond).String()

	result := NewSuccessResult(r.config.Title+" complete", out)
	_, _ = fmt.Fprintln(r.output, result.SetWidth(r.width).Render())
	return details, nil
}

func (r *OperationRunner) onStep(stepNumber int, status StepStatus, message string) {
	if stepNumber < 1 || stepNumber > r.progress.Total() {
		return
	}

	r.progress.UpdateStep(stepNumber, status, message)
	line := r.progress.RenderStep(r.progress.Steps[stepNumber-1])

	if status == StepRunning {
		// Overwritten when the step finishes
		_, _ = fmt.Fprint(r.output, line+"\r")
		return
	}
	_, _ = fmt.Fprintln(r.output, line)
}
