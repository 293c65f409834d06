package discovery

import (
	"fmt"
	"time"
)

// Device represents a discovered BioHarness serial bridge on the network
type Device struct {
	// Serial is the device serial number when the bridge advertises it
	// (e.g., "BHT039095")
	Serial string

	// Hostname is the mDNS hostname (e.g., "bht-bridge-039095.local")
	Hostname string

	// IP is the IPv4 address (e.g., "192.168.4.16")
	IP string

	// Port is the TCP port carrying the raw serial stream
	Port int

	// Metadata contains additional mDNS TXT record data
	// Common fields: "serial=BHT039095", "fw=1.2.3"
	Metadata map[string]string

	// DiscoveredAt is when the device was discovered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	if d.Serial != "" {
		return fmt.Sprintf("BioHarness bridge %s (%s) at %s:%d", d.Serial, d.Hostname, d.IP, d.Port)
	}
	return fmt.Sprintf("BioHarness bridge %s at %s:%d", d.Hostname, d.IP, d.Port)
}

// Addr returns the dialable host:port address of the bridge
func (d *Device) Addr() string {
	return fmt.Sprintf("%s:%d", d.IP, d.Port)
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
