package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Device represents a Device Portal endpoint discovered on the network
type Device struct {
	// Instance is the advertised mDNS instance name (e.g., "minwinpc")
	Instance string

	// Hostname is the mDNS hostname (e.g., "minwinpc.local.")
	Hostname string

	// IP is the IPv4 address, or IPv6 when no IPv4 address was advertised
	IP string

	// Port is the Device Portal HTTP port (IoT Core uses 8080)
	Port int

	// Metadata contains the mDNS TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the device was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("%s (%s) at %s", d.Instance, d.Hostname, d.Address())
}

// Address returns the host:port a device session should be opened against
func (d *Device) Address() string {
	return net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
