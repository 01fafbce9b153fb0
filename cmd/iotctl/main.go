// Iotctl controls Windows IoT Core devices through Device Portal.
//
// It probes a device, authenticates when credentials are supplied, and can
// reboot or shut the device down, list its processes, or watch them live.
// Devices can be found with mDNS and are remembered in the user's config
// file by address and nickname.
//
// Usage:
//
//	iotctl [command] [flags]
//
// See 'iotctl --help' for available commands.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/iotctl/internal/logging"
	"github.com/muurk/iotctl/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the root command and flushes the logger afterwards
func run() error {
	defer logging.Sync()
	return rootCmd.Execute()
}

// Global flags
var (
	deviceFlag   string
	userFlag     string
	outputFormat string
	logLevel     string
	timeoutFlag  int
)

var rootCmd = &cobra.Command{
	Use:   "iotctl",
	Short: "Windows IoT Core device control utility",
	Long: `A command-line client for Windows IoT Core devices.

Talks to a device's Device Portal over HTTP to check reachability and
authentication, reboot or shut the device down, and inspect running
processes. Devices can be discovered on the local network with mDNS.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(); err != nil {
			return err
		}
		return logging.Initialize(logLevel)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&deviceFlag, "device", "", "Device address or nickname (skips discovery)")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "", "Username for Device Portal authentication")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, compact, json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when empty")
	rootCmd.PersistentFlags().IntVar(&timeoutFlag, "timeout", 0, "Per-request timeout in seconds (default from config)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if outputFormat == "json" {
			return writeJSON(cmd.OutOrStdout(), version.Get())
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "iotctl %s\n", version.Full())
		return err
	},
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
