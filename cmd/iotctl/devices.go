package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/iotctl/internal/config"
	"github.com/muurk/iotctl/internal/discovery"
	"github.com/muurk/iotctl/internal/ui"
)

var (
	scanTimeout int
	scanSave    bool
)

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(devicesCmd)

	scanCmd.Flags().IntVar(&scanTimeout, "scan-timeout", 0, "Scan timeout in seconds (default from config)")
	scanCmd.Flags().BoolVar(&scanSave, "save", true, "Remember discovered devices in the config file")

	devicesCmd.AddCommand(devicesNameCmd)
	devicesCmd.AddCommand(devicesForgetCmd)
}

// scanCmd discovers devices on the network
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for Device Portal endpoints on the network",
	Long: `Scan for Windows IoT Core devices using mDNS/DNS-SD discovery.

Devices advertise Device Portal as a _wdp._tcp service. Discovered devices
are remembered in the config file so they can be referred to later.`,
	Example: `  # Scan with the configured timeout
  iotctl scan

  # Longer scan for busy networks
  iotctl scan --scan-timeout 15`,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	registry := loadRegistry()

	timeout := registry.Preferences.DiscoverDuration()
	if scanTimeout > 0 {
		timeout = time.Duration(scanTimeout) * time.Second
	}

	if outputFormat == "detailed" {
		_, _ = fmt.Fprintf(out, "Scanning for devices (timeout: %s)...\n\n", timeout)
	}

	devices, err := discovery.ScanForDevices(timeout)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if scanSave && len(devices) > 0 {
		rememberDiscovered(registry, devices)
		if err := registry.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
	}

	switch outputFormat {
	case "json":
		return writeJSON(out, devices)
	case "compact":
		for _, d := range devices {
			_, _ = fmt.Fprintf(out, "%s %s\n", d.Address(), d.Instance)
		}
		return nil
	}

	printer := ui.NewPrinter(out)
	if len(devices) == 0 {
		printer.PrintWarning("No devices found", map[string]string{
			"Timeout": timeout.String(),
			"Hint":    "Check Device Portal is enabled, or use --device",
		})
		return nil
	}

	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, []string{d.Address(), d.Instance, d.Hostname})
	}
	printer.PrintTable([]string{"ADDRESS", "INSTANCE", "HOSTNAME"}, rows)
	printer.Newline()
	printer.Println("Use 'iotctl status --device <address>' to probe a device")

	return nil
}

// rememberDiscovered records discovered devices, using the instance name as
// nickname unless the user already chose one
func rememberDiscovered(registry *config.Registry, devices []*discovery.Device) {
	for _, d := range devices {
		entry := registry.EnsureDevice(d.Address())
		entry.Hostname = d.Hostname
		if entry.Nickname == "" {
			entry.Nickname = d.Instance
		}
	}
}

// devicesCmd lists remembered devices
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List devices remembered in the config file",
	RunE:  runDevices,
}

func runDevices(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	registry := loadRegistry()

	addresses := make([]string, 0, len(registry.Devices))
	for address := range registry.Devices {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)

	switch outputFormat {
	case "json":
		return writeJSON(out, registry.Devices)
	case "compact":
		for _, address := range addresses {
			_, _ = fmt.Fprintf(out, "%s %s\n", address, registry.Devices[address].Nickname)
		}
		return nil
	}

	if len(addresses) == 0 {
		ui.NewPrinter(out).Println("No devices remembered yet. Run 'iotctl scan' or 'iotctl status --device <address>'.")
		return nil
	}

	rows := make([][]string, 0, len(addresses))
	for _, address := range addresses {
		rows = append(rows, deviceRow(address, registry.Devices[address]))
	}
	ui.NewPrinter(out).PrintTable([]string{"ADDRESS", "NICKNAME", "USER", "LAST SEEN", "STATE"}, rows)
	return nil
}

func deviceRow(address string, d *config.Device) []string {
	lastSeen := "never"
	if !d.LastSeen.IsZero() {
		lastSeen = d.LastSeen.Local().Format("2006-01-02 15:04")
	}

	state := "not connected"
	switch {
	case d.LastSeen.IsZero():
		state = "unknown"
	case d.LastConnected && d.LastAuthenticated:
		state = "authenticated"
	case d.LastConnected:
		state = "connected"
	}

	return []string{address, d.Nickname, d.Username, lastSeen, state}
}

var devicesNameCmd = &cobra.Command{
	Use:   "name <address> <nickname>",
	Short: "Give a device a nickname usable with --device",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := loadRegistry()
		registry.SetNickname(args[0], args[1])
		if err := registry.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s is now known as %s\n", args[0], args[1])
		return err
	},
}

var devicesForgetCmd = &cobra.Command{
	Use:   "forget <address|nickname>",
	Short: "Remove a device from the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := loadRegistry()
		address := registry.ResolveAddress(args[0])
		if !registry.Forget(address) {
			return fmt.Errorf("device %s is not remembered", args[0])
		}
		if err := registry.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", address)
		return err
	},
}
