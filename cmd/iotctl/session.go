package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/muurk/iotctl/internal/config"
	"github.com/muurk/iotctl/internal/device"
	"github.com/muurk/iotctl/internal/discovery"
	"github.com/muurk/iotctl/internal/logging"
)

// PasswordEnvVar supplies the Device Portal password non-interactively
const PasswordEnvVar = "IOTCTL_PASSWORD"

// deviceContext bundles what a device command needs
type deviceContext struct {
	registry *config.Registry
	session  *device.Session
	address  string
	username string // username that was used to authenticate, if any
}

// loadRegistry loads the config registry, falling back to defaults when the
// file is unreadable so device commands still work
func loadRegistry() *config.Registry {
	registry, err := config.LoadRegistry()
	if err != nil {
		logging.Warn("Failed to load config, using defaults", zap.Error(err))
		return config.NewRegistry()
	}
	return registry
}

// resolveDevice turns --device (address or nickname) into an address,
// running discovery when the flag is empty
func resolveDevice(registry *config.Registry, out io.Writer) (string, error) {
	if deviceFlag != "" {
		return registry.ResolveAddress(deviceFlag), nil
	}

	_, _ = fmt.Fprintln(out, "No device specified, attempting auto-discovery...")
	devices, err := discovery.ScanForDevices(registry.Preferences.DiscoverDuration())
	if err != nil {
		return "", fmt.Errorf("discovery failed: %w", err)
	}

	return pickDiscovered(devices, out)
}

func pickDiscovered(devices []*discovery.Device, out io.Writer) (string, error) {
	switch len(devices) {
	case 0:
		return "", fmt.Errorf("no devices found. Use --device flag to specify an address")
	case 1:
		d := devices[0]
		_, _ = fmt.Fprintf(out, "Found device: %s\n\n", d)
		return d.Address(), nil
	default:
		_, _ = fmt.Fprintf(out, "Found %d devices:\n", len(devices))
		for i, d := range devices {
			_, _ = fmt.Fprintf(out, "%d. %s\n", i+1, d)
		}
		return "", fmt.Errorf("multiple devices found. Use --device flag to specify which one")
	}
}

// sessionOptions merges config preferences with command-line overrides
func sessionOptions(registry *config.Registry) []device.Option {
	opts := registry.Preferences.SessionOptions()
	if timeoutFlag > 0 {
		opts = append(opts, device.WithTimeout(time.Duration(timeoutFlag)*time.Second))
	}
	return opts
}

// openSession resolves the device, starts a session and waits for the probe
func openSession(ctx context.Context, out io.Writer) (*deviceContext, error) {
	registry := loadRegistry()

	address, err := resolveDevice(registry, out)
	if err != nil {
		return nil, err
	}

	s := device.New(address, sessionOptions(registry)...)
	if err := s.WaitReady(ctx); err != nil {
		s.Close()
		return nil, err
	}

	return &deviceContext{registry: registry, session: s, address: address}, nil
}

// authenticate authenticates the session when it is connected but anonymous.
// With required unset it only runs when --user or IOTCTL_PASSWORD was given.
// Without a password source the device's own rejection is left to surface.
func (dc *deviceContext) authenticate(ctx context.Context, required bool) error {
	s := dc.session
	if s.IsAuthed() || !s.IsConnected() {
		return nil
	}

	explicit := userFlag != "" || os.Getenv(PasswordEnvVar) != ""
	if !explicit && !required {
		return nil
	}

	username := userFlag
	if username == "" {
		username = dc.registry.UsernameFor(dc.address)
	}

	password, ok, err := readPassword(username, dc.address)
	if err != nil {
		return err
	}
	if !ok {
		logging.Debug("No password available, continuing anonymously", zap.String("address", dc.address))
		return nil
	}

	if err := s.Auth(ctx, device.Credential{Username: username, Password: password}); err != nil {
		return err
	}
	dc.username = username
	return nil
}

// readPassword returns the password from IOTCTL_PASSWORD or an interactive
// prompt. ok is false when neither is available.
func readPassword(username, address string) (string, bool, error) {
	if pw := os.Getenv(PasswordEnvVar); pw != "" {
		return pw, true, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", false, nil
	}

	fmt.Fprintf(os.Stderr, "Password for %s@%s: ", username, address)
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", false, fmt.Errorf("failed to read password: %w", err)
	}
	return string(data), true, nil
}

// confirmInput is where power action confirmations are read from
var confirmInput io.Reader = bufio.NewReader(os.Stdin)

// close records the final session state in the registry and releases the session
func (dc *deviceContext) close() {
	dc.registry.RecordState(dc.session.State(), dc.username)
	if err := dc.registry.Save(); err != nil {
		logging.Warn("Failed to save config", zap.Error(err))
	}
	dc.session.Close()
}

func validateFormat() error {
	switch strings.ToLower(outputFormat) {
	case "detailed", "compact", "json":
		outputFormat = strings.ToLower(outputFormat)
		return nil
	default:
		return fmt.Errorf("unknown output format %q (use detailed, compact or json)", outputFormat)
	}
}
