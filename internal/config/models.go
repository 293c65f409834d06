package config

import "time"

// Registry represents the entire user configuration file.
// It stores cached device addresses and session preferences.
type Registry struct {
	Version     int                `yaml:"version"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by device serial number
	Preferences *Preferences       `yaml:"preferences,omitempty"`
}

// Device caches what was learned about one BioHarness bridge, keyed by the
// device's serial number in the Registry. The cached address lets the next
// session skip discovery.
type Device struct {
	Nickname    string    `yaml:"nickname,omitempty"`     // User-friendly name
	LastAddress string    `yaml:"last_address,omitempty"` // Last known host:port of the bridge
	LastSeen    time.Time `yaml:"last_seen,omitempty"`    // Last discovery/connection time
}

// Preferences represents session defaults. CLI flags override these.
type Preferences struct {
	Streams       []string `yaml:"streams,omitempty"`        // Enabled output streams (empty = all)
	StreamPrefix  string   `yaml:"stream_prefix,omitempty"`  // Prefix prepended to stream names
	NATSURL       string   `yaml:"nats_url,omitempty"`       // Publish sink server URL
	SubjectRoot   string   `yaml:"subject_root,omitempty"`   // Root of published NATS subjects
	MetricsListen string   `yaml:"metrics_listen,omitempty"` // Prometheus listen address (empty = disabled)
	IdleTimeout   int      `yaml:"idle_timeout,omitempty"`   // Seconds without a valid packet before reconnecting
	MaxRetries    int      `yaml:"max_retries,omitempty"`    // Reconnect ceiling when no address is cached
}

// DefaultStreamPrefix is prepended to stream names when the user does not
// configure one.
const DefaultStreamPrefix = "Zephyr"

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version: 1,
		Devices: make(map[string]*Device),
		Preferences: &Preferences{
			StreamPrefix: DefaultStreamPrefix,
			IdleTimeout:  10,
			MaxRetries:   5,
		},
	}
}

// EnsureDevice ensures a device entry exists in the registry.
// Returns the device entry (existing or newly created).
func (r *Registry) EnsureDevice(serial string) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}

	if device, exists := r.Devices[serial]; exists {
		return device
	}

	device := &Device{}
	r.Devices[serial] = device
	return device
}

// UpdateDeviceLastSeen updates the last seen timestamp and address for a device.
func (r *Registry) UpdateDeviceLastSeen(serial, address string) {
	device := r.EnsureDevice(serial)
	device.LastSeen = time.Now()
	device.LastAddress = address
}

// CachedAddress returns the most recently seen bridge address, or the empty
// string when nothing has been cached yet.
func (r *Registry) CachedAddress() string {
	_, device := r.mostRecentDevice()
	if device == nil {
		return ""
	}
	return device.LastAddress
}

// CachedSerial returns the serial of the most recently seen bridge, or the
// empty string. Used to target discovery at the bridge last connected to.
func (r *Registry) CachedSerial() string {
	serial, _ := r.mostRecentDevice()
	return serial
}

func (r *Registry) mostRecentDevice() (string, *Device) {
	var (
		bestSerial string
		best       *Device
		bestSeen   time.Time
	)
	for serial, device := range r.Devices {
		if device.LastAddress != "" && device.LastSeen.After(bestSeen) {
			bestSerial = serial
			best = device
			bestSeen = device.LastSeen
		}
	}
	return bestSerial, best
}
