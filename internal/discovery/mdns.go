package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/iotctl/internal/logging"
)

const (
	// ServiceType is the mDNS service type Windows Device Portal advertises
	ServiceType = "_wdp._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for device discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultPort is the Device Portal port on IoT Core devices
	DefaultPort = 8080
)

// browseFunc starts an mDNS browse that delivers entries until ctx is done
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// Scanner handles mDNS device discovery
type Scanner struct {
	// Timeout is the maximum time to wait for device discovery
	Timeout time.Duration

	browse browseFunc
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
		browse:  zeroconfBrowse,
	}
}

func zeroconfBrowse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}
	if err := resolver.Browse(ctx, service, domain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	return nil
}

// ScanForDevices discovers all Device Portal endpoints on the local network
func (s *Scanner) ScanForDevices() ([]*Device, error) {
	return s.ScanForDevicesWithContext(context.Background())
}

// ScanForDevicesWithContext discovers devices with a custom context.
// Devices are de-duplicated by address and sorted by instance name.
func (s *Scanner) ScanForDevicesWithContext(ctx context.Context) ([]*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)

	var mu sync.Mutex
	found := make(map[string]*Device)

	go func() {
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				if device := parseServiceEntry(entry); device != nil {
					logging.Debug("mDNS device found",
						zap.String("instance", device.Instance),
						zap.String("address", device.Address()))
					mu.Lock()
					found[device.Address()] = device
					mu.Unlock()
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := s.browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, err
	}

	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()

	devices := make([]*Device, 0, len(found))
	for _, d := range found {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Instance != devices[j].Instance {
			return devices[i].Instance < devices[j].Instance
		}
		return devices[i].Address() < devices[j].Address()
	})

	logging.Info("mDNS scan complete", zap.Int("devices", len(devices)), zap.Duration("timeout", s.Timeout))

	return devices, nil
}

// WaitForDevice waits for a device advertising the given instance name or hostname
func (s *Scanner) WaitForDevice(name string) (*Device, error) {
	return s.WaitForDeviceWithContext(context.Background(), name)
}

// WaitForDeviceWithContext waits for a specific device with a custom context
func (s *Scanner) WaitForDeviceWithContext(ctx context.Context, name string) (*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	deviceChan := make(chan *Device, 1)

	go func() {
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				device := parseServiceEntry(entry)
				if device != nil && device.matches(name) {
					deviceChan <- device
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := s.browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, err
	}

	select {
	case device := <-deviceChan:
		return device, nil
	case <-ctx.Done():
		// The collector may have delivered just before cancelling
		select {
		case device := <-deviceChan:
			return device, nil
		default:
		}
		return nil, fmt.Errorf("device %s not found within timeout", name)
	}
}

func (d *Device) matches(name string) bool {
	name = strings.TrimSuffix(strings.ToLower(name), ".")
	host := strings.TrimSuffix(strings.ToLower(d.Hostname), ".")
	return strings.EqualFold(d.Instance, name) ||
		host == name ||
		strings.TrimSuffix(host, ".local") == name
}

// parseServiceEntry converts a zeroconf service entry to a Device.
// Returns nil if the entry carries no usable address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Device {
	if entry == nil {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	}
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	instance := entry.Instance
	if instance == "" {
		instance = strings.TrimSuffix(strings.TrimSuffix(entry.HostName, "."), ".local")
	}

	return &Device{
		Instance:     instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// ScanForDevices is a convenience function to scan for devices with a custom timeout
func ScanForDevices(timeout time.Duration) ([]*Device, error) {
	scanner := NewScanner()
	scanner.Timeout = timeout
	return scanner.ScanForDevices()
}

// FindDevice searches for a device by instance name or hostname with the default timeout
func FindDevice(name string) (*Device, error) {
	return NewScanner().WaitForDevice(name)
}
