package config

import (
	"strings"
	"time"

	"github.com/muurk/iotctl/internal/device"
)

// CurrentVersion is the registry file format version
const CurrentVersion = 1

// Registry represents the entire user configuration file.
// It remembers devices the user has talked to and application preferences.
type Registry struct {
	Version     int                `yaml:"version"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by device address
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Device represents what iotctl remembers about one device address.
type Device struct {
	Nickname          string    `yaml:"nickname,omitempty"`  // User-friendly name
	Hostname          string    `yaml:"hostname,omitempty"`  // mDNS hostname, when discovered
	Username          string    `yaml:"username,omitempty"`  // Last username that authenticated
	LastSeen          time.Time `yaml:"last_seen,omitempty"` // Last time a session became ready
	LastConnected     bool      `yaml:"last_connected"`
	LastAuthenticated bool      `yaml:"last_authenticated"`
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	RequestTimeout  int    `yaml:"request_timeout"`           // Per-request timeout in seconds
	PollIntervalMs  int    `yaml:"poll_interval_ms"`          // Readiness poll interval for interactive output
	DiscoverTimeout int    `yaml:"discover_timeout"`          // mDNS discovery timeout in seconds
	UserAgent       string `yaml:"user_agent,omitempty"`      // Overrides the default User-Agent header
	DefaultUsername string `yaml:"default_username,omitempty"` // Username used when --user is not given
	// Passwords are NEVER stored in the config file
}

// DefaultPreferences returns the preferences a new registry starts with.
func DefaultPreferences() *Preferences {
	return &Preferences{
		RequestTimeout:  int(device.DefaultTimeout / time.Second),
		PollIntervalMs:  int(device.DefaultPollInterval / time.Millisecond),
		DiscoverTimeout: 5,
		DefaultUsername: "Administrator",
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     CurrentVersion,
		Devices:     make(map[string]*Device),
		Preferences: DefaultPreferences(),
	}
}

// SessionOptions converts preferences into device session options.
// Zero values fall back to the session defaults.
func (p *Preferences) SessionOptions() []device.Option {
	if p == nil {
		return nil
	}
	return []device.Option{
		device.WithTimeout(time.Duration(p.RequestTimeout) * time.Second),
		device.WithPollInterval(time.Duration(p.PollIntervalMs) * time.Millisecond),
		device.WithUserAgent(p.UserAgent),
	}
}

// DiscoverDuration returns the discovery timeout as a duration.
func (p *Preferences) DiscoverDuration() time.Duration {
	if p == nil || p.DiscoverTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(p.DiscoverTimeout) * time.Second
}

// GetDevice retrieves device metadata by address.
// Returns nil if the device doesn't exist in the registry.
func (r *Registry) GetDevice(address string) *Device {
	return r.Devices[address]
}

// EnsureDevice ensures a device entry exists in the registry.
func (r *Registry) EnsureDevice(address string) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}

	if d, exists := r.Devices[address]; exists {
		return d
	}

	d := &Device{}
	r.Devices[address] = d
	return d
}

// RecordState stores the outcome of a session for its address.
func (r *Registry) RecordState(state device.State, username string) {
	d := r.EnsureDevice(state.Address)
	d.LastSeen = time.Now()
	d.LastConnected = state.Connected
	d.LastAuthenticated = state.Authenticated
	if state.Authenticated && username != "" {
		d.Username = username
	}
}

// SetNickname sets a user-friendly nickname for a device.
func (r *Registry) SetNickname(address, nickname string) {
	r.EnsureDevice(address).Nickname = nickname
}

// Forget removes a device from the registry.
func (r *Registry) Forget(address string) bool {
	if _, ok := r.Devices[address]; !ok {
		return false
	}
	delete(r.Devices, address)
	return true
}

// ResolveAddress maps a nickname to its address. Anything that is not a
// known nickname is returned unchanged.
func (r *Registry) ResolveAddress(nameOrAddress string) string {
	for address, d := range r.Devices {
		if d.Nickname != "" && strings.EqualFold(d.Nickname, nameOrAddress) {
			return address
		}
	}
	return nameOrAddress
}

// UsernameFor returns the remembered username for address, falling back to
// the default username preference.
func (r *Registry) UsernameFor(address string) string {
	if d := r.GetDevice(address); d != nil && d.Username != "" {
		return d.Username
	}
	if r.Preferences != nil {
		return r.Preferences.DefaultUsername
	}
	return ""
}
