// Package discovery finds Windows Device Portal endpoints with mDNS.
//
// IoT Core devices advertise Device Portal as a "_wdp._tcp" service. The
// scanner browses for that service type for a bounded time and returns one
// Device per advertised address, ready to be handed to device.New.
//
// # Usage Example
//
//	devices, err := discovery.ScanForDevices(5 * time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, d := range devices {
//	    fmt.Printf("Found: %s at %s\n", d.Instance, d.Address())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Devices must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
