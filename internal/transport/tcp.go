package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/labstreaminglayer/App-Zephyr/internal/discovery"
	"github.com/labstreaminglayer/App-Zephyr/internal/logging"
)

// DefaultDialTimeout bounds a single TCP connection attempt.
const DefaultDialTimeout = 10 * time.Second

// TCP connects to a serial-over-TCP bridge that exposes the BioHarness
// RFCOMM byte stream on a plain socket. With an empty address the bridge is
// located via mDNS.
type TCP struct {
	DialTimeout time.Duration

	// Serial, when set, targets discovery at one specific bridge and lets
	// the transport re-locate it when a cached address stops answering.
	Serial string

	// Scanner locates bridges when no address is given. Nil uses a
	// default mDNS scanner.
	Scanner *discovery.Scanner
}

// NewTCP creates a TCP transport with default settings.
func NewTCP() *TCP {
	return &TCP{DialTimeout: DefaultDialTimeout}
}

// Open dials the bridge. An empty address triggers discovery; if several
// bridges answer, the first one discovered is used. When a serial is
// configured, a dead address is retried once via serial-targeted discovery,
// which covers bridges that moved to a new DHCP lease.
func (t *TCP) Open(ctx context.Context, address string) (Conn, error) {
	if address == "" {
		dev, err := t.discover(ctx)
		if err != nil {
			return nil, err
		}
		address = dev.Addr()
	}

	conn, err := t.dial(ctx, address)
	if err != nil && t.Serial != "" && ctx.Err() == nil {
		logging.Warn("address unreachable, re-locating bridge by serial",
			zap.String("address", address),
			zap.String("serial", t.Serial), zap.Error(err))
		dev, derr := t.scanner().WaitForDevice(ctx, t.Serial)
		if derr != nil {
			return nil, err
		}
		conn, err = t.dial(ctx, dev.Addr())
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (t *TCP) dial(ctx context.Context, address string) (Conn, error) {
	timeout := t.DialTimeout
	if timeout == 0 {
		timeout = DefaultDialTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", address, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		// Telemetry frames are small; coalescing them adds latency.
		_ = tc.SetNoDelay(true)
	}
	logging.Info("transport open", zap.String("address", address))
	return conn, nil
}

func (t *TCP) scanner() *discovery.Scanner {
	if t.Scanner != nil {
		return t.Scanner
	}
	return discovery.NewScanner()
}

func (t *TCP) discover(ctx context.Context) (*discovery.Device, error) {
	scanner := t.scanner()
	logging.Info("no device address configured, starting discovery")
	if t.Serial != "" {
		if dev, err := scanner.WaitForDevice(ctx, t.Serial); err == nil {
			return dev, nil
		}
		logging.Warn("known bridge did not answer, falling back to a broad scan",
			zap.String("serial", t.Serial))
	}
	devices, err := scanner.ScanForDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}
	if len(devices) == 0 {
		return nil, ErrNoAddress
	}
	if len(devices) > 1 {
		logging.Warn("multiple bridges discovered, using the first",
			zap.Int("count", len(devices)),
			zap.String("selected", devices[0].String()))
	}
	return devices[0], nil
}
