package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/labstreaminglayer/App-Zephyr/internal/config"
	"github.com/labstreaminglayer/App-Zephyr/internal/discovery"
	"github.com/labstreaminglayer/App-Zephyr/internal/logging"
	"github.com/labstreaminglayer/App-Zephyr/internal/metrics"
	"github.com/labstreaminglayer/App-Zephyr/internal/protocol"
	"github.com/labstreaminglayer/App-Zephyr/internal/session"
	"github.com/labstreaminglayer/App-Zephyr/internal/sink"
	"github.com/labstreaminglayer/App-Zephyr/internal/transport"
)

// Bridge flags. Unset flags fall back to saved preferences, then defaults.
var (
	address       string
	streamsFlag   []string
	streamPrefix  string
	natsURL       string
	subjectRoot   string
	logLevel      string
	idleTimeout   int
	maxRetries    int
	metricsListen string
	utcMarkers    bool
	scanTimeout   int
)

func init() {
	f := rootCmd.Flags()
	f.StringVar(&address, "address", "", "Bridge address (host:port or ws:// URL; empty = discover via mDNS)")
	f.StringSliceVar(&streamsFlag, "streams", nil, "Streams to publish (comma separated; empty = all)")
	f.StringVar(&streamPrefix, "prefix", "", "Prefix prepended to stream names")
	f.StringVar(&natsURL, "nats-url", "", "NATS server URL for publishing")
	f.StringVar(&subjectRoot, "subject-root", "", "Root of published NATS subjects")
	f.IntVar(&idleTimeout, "idle-timeout", 0, "Seconds without a valid packet before reconnecting")
	f.IntVar(&maxRetries, "max-retries", 0, "Connect attempt ceiling when no address is known")
	f.StringVar(&metricsListen, "metrics-listen", "", "Prometheus listen address (empty = disabled)")
	f.BoolVar(&utcMarkers, "utc-markers", false, "Render event marker timestamps in UTC instead of local time")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(scanCmd)
}

func runBridge(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(logLevel); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer logging.Sync()

	reg, err := config.LoadRegistry()
	if err != nil {
		logging.Warn("could not load saved configuration", zap.Error(err))
		reg = config.NewRegistry()
	}
	prefs := reg.Preferences

	pick := func(flag, saved, fallback string) string {
		if flag != "" {
			return flag
		}
		if saved != "" {
			return saved
		}
		return fallback
	}
	streamPrefix = pick(streamPrefix, prefs.StreamPrefix, config.DefaultStreamPrefix)
	natsURL = pick(natsURL, prefs.NATSURL, "nats://127.0.0.1:4222")
	subjectRoot = pick(subjectRoot, prefs.SubjectRoot, sink.DefaultSubjectRoot)
	metricsListen = pick(metricsListen, prefs.MetricsListen, "")
	if address == "" {
		address = reg.CachedAddress()
	}
	if idleTimeout == 0 {
		idleTimeout = prefs.IdleTimeout
	}
	if maxRetries == 0 {
		maxRetries = prefs.MaxRetries
	}
	names := streamsFlag
	if len(names) == 0 {
		names = prefs.Streams
	}
	streams, err := parseStreams(names)
	if err != nil {
		return err
	}
	if utcMarkers {
		protocol.MarkerTimeLocation = time.UTC
	}

	if metricsListen != "" {
		go func() {
			if err := metrics.Serve(metricsListen); err != nil {
				logging.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	out, err := sink.NewNATSSink(natsURL, subjectRoot)
	if err != nil {
		return fmt.Errorf("connecting to NATS at %s: %w", natsURL, err)
	}
	defer out.Close()

	var trans transport.Transport
	if strings.HasPrefix(address, "ws://") || strings.HasPrefix(address, "wss://") {
		trans = transport.NewWebSocket()
	} else {
		tcp := transport.NewTCP()
		// A known serial lets the transport re-locate the bridge when its
		// cached address goes stale.
		tcp.Serial = reg.CachedSerial()
		trans = tcp
	}

	ctrl := session.New(trans, out, session.Options{
		Address:      address,
		Streams:      streams,
		StreamPrefix: streamPrefix,
		IdleTimeout:  time.Duration(idleTimeout) * time.Second,
		MaxRetries:   maxRetries,
	})
	ctrl.AddressCached = func(serial, addr string) {
		reg.UpdateDeviceLastSeen(serial, addr)
		if err := reg.Save(); err != nil {
			logging.Warn("could not save device registry", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info("starting bridge",
		zap.String("address", address),
		zap.String("nats_url", natsURL),
		zap.String("prefix", streamPrefix))

	runErr := ctrl.Run(ctx)
	ctrl.ClosePublisher()
	if runErr != nil {
		return fmt.Errorf("session ended: %w", runErr)
	}
	return nil
}

// parseStreams validates user-supplied stream names against the known set.
func parseStreams(names []string) ([]protocol.StreamID, error) {
	if len(names) == 0 {
		return nil, nil
	}
	known := make(map[string]protocol.StreamID, len(protocol.AllStreams))
	for _, s := range protocol.AllStreams {
		known[strings.ToLower(string(s))] = s
	}
	out := make([]protocol.StreamID, 0, len(names))
	for _, name := range names {
		s, ok := known[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown stream %q (choose from %v)", name, protocol.AllStreams)
		}
		out = append(out, s)
	}
	return out, nil
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BioHarness bridges on the network",
	Long: `Scan for BioHarness serial bridges using mDNS/DNS-SD discovery.

This command listens for mDNS broadcasts from bridge devices and displays
all discovered bridges with their addresses, serial numbers, and metadata.`,
	Example: `  # Scan for 10 seconds (default)
  zephyr-bridge scan

  # Quick 3-second scan
  zephyr-bridge scan --timeout 3`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 10, "Scan timeout in seconds")
}

func runScan(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(logLevel); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer logging.Sync()

	fmt.Printf("Scanning for BioHarness bridges (timeout: %ds)...\n\n", scanTimeout)

	devices, err := discovery.ScanForDevices(context.Background(),
		time.Duration(scanTimeout)*time.Second)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("No bridges found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Ensure the bridge is powered on and paired with the strap")
		fmt.Println("  - Check that the bridge is on the same network segment")
		fmt.Println("  - Try increasing --timeout for slower networks")
		fmt.Println("  - Use --address to specify the bridge manually")
		return nil
	}

	fmt.Printf("Found %d bridge(s):\n\n", len(devices))
	for i, device := range devices {
		fmt.Printf("%d. %s\n", i+1, device.Hostname)
		fmt.Printf("   Serial:  %s\n", device.Serial)
		fmt.Printf("   Address: %s:%d\n", device.IP, device.Port)
		if fw := device.GetMetadata("fw"); fw != "" {
			fmt.Printf("   Firmware: %s\n", fw)
		}
		if len(device.Metadata) > 0 {
			fmt.Printf("   Metadata: %v\n", device.Metadata)
		}
		fmt.Println()
	}

	fmt.Println("Use 'zephyr-bridge --address <host:port>' to connect directly")
	return nil
}
