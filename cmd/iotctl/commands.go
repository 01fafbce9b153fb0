package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/iotctl/internal/device"
	"github.com/muurk/iotctl/internal/ui"
)

// Command flags
var (
	assumeYes    bool
	processLimit int
	sortFlag     string
	waitFlag     bool
	waitTimeout  int
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(rebootCmd)
	rootCmd.AddCommand(shutdownCmd)
	rootCmd.AddCommand(psCmd)
	rootCmd.AddCommand(watchCmd)

	for _, c := range []*cobra.Command{rebootCmd, shutdownCmd} {
		c.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
	}
	rebootCmd.Flags().BoolVar(&waitFlag, "wait", false, "Wait until the device is back online")
	rebootCmd.Flags().IntVar(&waitTimeout, "wait-timeout", 300, "Seconds to wait for the device with --wait")
	psCmd.Flags().IntVar(&processLimit, "limit", 0, "Show at most this many processes (0 for all)")
	psCmd.Flags().StringVar(&sortFlag, "sort", "cpu", "Sort order (cpu, memory, name)")
}

// commandContext cancels on Ctrl+C
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt)
}

// statusCmd reports reachability and authentication
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a device is reachable and authenticated",
	Long: `Probe a device's Device Portal and report its state.

A device is connected when the landing page answers, and authenticated when
it answers successfully. Pass --user (or set IOTCTL_PASSWORD) to
authenticate before reporting.`,
	Example: `  # Probe a specific device
  iotctl status --device 192.168.1.50:8080

  # Probe and authenticate
  iotctl status --device kitchen-pi --user Administrator

  # JSON output for scripting
  iotctl status --device 192.168.1.50:8080 --format json`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	out := cmd.OutOrStdout()
	dc, err := openSession(ctx, out)
	if err != nil {
		return err
	}
	defer dc.close()

	authErr := dc.authenticate(ctx, false)
	state := dc.session.State()

	switch outputFormat {
	case "json":
		if err := writeJSON(out, state); err != nil {
			return err
		}
	case "compact":
		_, _ = fmt.Fprintf(out, "%s connected=%t authenticated=%t\n", state.Address, state.Connected, state.Authenticated)
	default:
		printer := ui.NewPrinter(out)
		printer.PrintState(state)
		if authErr != nil {
			printer.PrintError("Authentication failed", authErr)
		}
	}

	return authErr
}

// rebootCmd restarts the device
var rebootCmd = &cobra.Command{
	Use:   "reboot",
	Short: "Reboot the device",
	Long: `Ask the device to restart through Device Portal.

Devices usually require authentication for power actions. If the device
ends the authenticated session while handling the request, iotctl reports
it and the session is treated as unauthenticated.`,
	Example: `  iotctl reboot --device kitchen-pi --user Administrator
  IOTCTL_PASSWORD=secret iotctl reboot --device 192.168.1.50:8080 --yes

  # Block until the device answers again
  iotctl reboot --device kitchen-pi --user Administrator --wait`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPowerAction(cmd, "Reboot", (*device.Session).Reboot)
	},
}

// shutdownCmd powers the device off
var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Shut the device down",
	Long: `Ask the device to power off through Device Portal.

The device will not be reachable again until it is powered on manually.`,
	Example: `  iotctl shutdown --device kitchen-pi --user Administrator`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPowerAction(cmd, "Shutdown", (*device.Session).Shutdown)
	},
}

func runPowerAction(cmd *cobra.Command, action string, do func(*device.Session, context.Context) error) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	out := cmd.OutOrStdout()
	registry := loadRegistry()

	address, err := resolveDevice(registry, out)
	if err != nil {
		return err
	}

	if !assumeYes && outputFormat == "detailed" && !ui.ConfirmPowerAction(confirmInput, out, action, address) {
		return nil
	}

	dc := &deviceContext{registry: registry, address: address}
	waitForRestart := waitFlag && action == "Reboot"

	steps := []string{"Probing device", "Authenticating", "Sending " + strings.ToLower(action)}
	if waitForRestart {
		steps = append(steps, "Waiting for device")
	}

	operation := func(onStep ui.StepCallback) (map[string]string, error) {
		onStep(1, ui.StepRunning, "")
		dc.session = device.New(address, sessionOptions(registry)...)
		if err := dc.session.WaitReady(ctx); err != nil {
			onStep(1, ui.StepFailed, "")
			return nil, err
		}
		state := dc.session.State()
		onStep(1, ui.StepComplete, describeState(state))

		onStep(2, ui.StepRunning, "")
		if err := dc.authenticate(ctx, true); err != nil {
			onStep(2, ui.StepFailed, device.ShortMessage(err))
			return nil, err
		}
		if dc.username != "" {
			onStep(2, ui.StepComplete, dc.username)
		} else {
			onStep(2, ui.StepSkipped, describeState(dc.session.State()))
		}

		onStep(3, ui.StepRunning, "")
		if err := do(dc.session, ctx); err != nil {
			onStep(3, ui.StepFailed, device.ShortMessage(err))
			return nil, err
		}
		onStep(3, ui.StepComplete, "")

		details := map[string]string{"Device": address}
		if !waitForRestart {
			return details, nil
		}

		onStep(4, ui.StepRunning, "")
		waitCtx, cancelWait := context.WithTimeout(ctx, time.Duration(waitTimeout)*time.Second)
		defer cancelWait()

		result, err := device.WaitForRestart(waitCtx, address, device.DefaultWaitOptions(), sessionOptions(registry)...)
		if err != nil {
			onStep(4, ui.StepFailed, fmt.Sprintf("%d probes", result.Attempts))
			return nil, err
		}
		onStep(4, ui.StepComplete, fmt.Sprintf("%d probes", result.Attempts))
		details["Back online after"] = result.Elapsed.Round(time.Second).String()
		return details, nil
	}

	var opErr error
	switch outputFormat {
	case "detailed":
		runner := ui.NewOperationRunner(ui.RunnerConfig{
			Title:   action,
			Command: "iotctl " + strings.ToLower(action),
			Params:  map[string]string{"Device": address},
			Steps:   steps,
			Output:  out,
		})
		_, opErr = runner.Run(operation)
	default:
		_, opErr = operation(func(int, ui.StepStatus, string) {})
		if err := printActionResult(out, action, address, opErr); err != nil {
			return err
		}
	}

	if dc.session != nil {
		dc.close()
	}
	return opErr
}

type actionResult struct {
	Device string `json:"device"`
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Status int    `json:"status,omitempty"`
}

func printActionResult(out io.Writer, action, address string, err error) error {
	result := actionResult{
		Device: address,
		Action: strings.ToLower(action),
		OK:     err == nil,
		Status: device.StatusCode(err),
	}
	if err != nil {
		result.Error = err.Error()
	}

	if outputFormat == "json" {
		return writeJSON(out, result)
	}

	if result.OK {
		_, _ = fmt.Fprintf(out, "%s %s: ok\n", address, result.Action)
	} else {
		_, _ = fmt.Fprintf(out, "%s %s: %s\n", address, result.Action, device.ShortMessage(err))
	}
	return nil
}

func describeState(state device.State) string {
	switch {
	case state.Connected && state.Authenticated:
		return "authenticated"
	case state.Connected:
		return "authentication required"
	default:
		return "not connected"
	}
}

// psCmd lists running processes
var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List processes running on the device",
	Example: `  iotctl ps --device kitchen-pi --user Administrator
  iotctl ps --device 192.168.1.50:8080 --sort memory --limit 10
  iotctl ps --device 192.168.1.50:8080 --format json`,
	RunE: runPs,
}

func runPs(cmd *cobra.Command, args []string) error {
	order, err := parseSortOrder(sortFlag)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	out := cmd.OutOrStdout()
	dc, err := openSession(ctx, out)
	if err != nil {
		return err
	}
	defer dc.close()

	if err := dc.authenticate(ctx, true); err != nil {
		return reportFailure(out, "Authentication failed", err)
	}

	procs, err := dc.session.Processes(ctx)
	if err != nil {
		return reportFailure(out, "Process list failed", err)
	}

	switch outputFormat {
	case "json":
		return writeJSON(out, ui.SortProcesses(procs, order))
	case "compact":
		for _, p := range ui.SortProcesses(procs, order) {
			_, _ = fmt.Fprintln(out, p.String())
		}
	default:
		ui.NewPrinter(out).PrintProcesses(procs, order, processLimit)
	}
	return nil
}

func parseSortOrder(s string) (ui.SortOrder, error) {
	switch strings.ToLower(s) {
	case "", "cpu":
		return ui.SortByCPU, nil
	case "memory", "mem":
		return ui.SortByMemory, nil
	case "name":
		return ui.SortByName, nil
	default:
		return ui.SortByCPU, fmt.Errorf("unknown sort order %q (use cpu, memory or name)", s)
	}
}

// reportFailure prints a failure box in detailed mode and returns err
func reportFailure(out io.Writer, title string, err error) error {
	if outputFormat == "detailed" {
		ui.NewPrinter(out).PrintError(title, err)
	}
	return err
}

// watchCmd shows a live process table
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch device processes live",
	Long: `Open the device's process stream and show a live process table.

Press s to change the sort order, +/- to change the number of rows, and q
to quit.`,
	Example: `  iotctl watch --device kitchen-pi --user Administrator`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	out := cmd.OutOrStdout()
	dc, err := openSession(ctx, out)
	if err != nil {
		return err
	}
	defer dc.close()

	if err := dc.authenticate(ctx, true); err != nil {
		return reportFailure(out, "Authentication failed", err)
	}

	if outputFormat != "detailed" {
		// Non-interactive: one line (or JSON document) per frame
		return dc.session.WatchProcesses(ctx, func(procs []device.Process) error {
			if outputFormat == "json" {
				return writeJSON(out, procs)
			}
			_, err := fmt.Fprintf(out, "%d processes\n", len(procs))
			return err
		})
	}

	return ui.RunWatch(ctx, dc.session, dc.address, out)
}
