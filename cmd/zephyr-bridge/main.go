// Zephyr-bridge republishes live telemetry from a Zephyr BioHarness chest
// strap as timestamped data streams.
//
// It connects to a serial-over-TCP bridge (or WebSocket relay) in front of
// the device, decodes the binary wire protocol, reconstructs per-sample
// timestamps, and publishes each waveform and summary channel group as its
// own named stream over NATS.
//
// Usage:
//
//	zephyr-bridge [command] [flags]
//
// Running without arguments starts the bridge.
// See 'zephyr-bridge --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/labstreaminglayer/App-Zephyr/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "zephyr-bridge",
	Short: "Zephyr BioHarness Stream Bridge",
	Long: `A bridge that decodes live telemetry from a Zephyr BioHarness 3
chest strap and republishes it as timestamped data streams.

The device speaks a binary framed protocol over a serial line; this tool
expects a serial-to-TCP bridge (or WebSocket relay) in front of it. ECG,
respiration, accelerometry, R-to-R intervals, summary vitals and device
events each become their own named stream.

If no command is specified, the bridge starts with the configured or
discovered device.`,
	Version: version.Version,
	RunE:    runBridge,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("zephyr-bridge %s (commit: %s)\n", version.Version, version.Commit)
	},
}
