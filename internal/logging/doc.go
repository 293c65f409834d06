// Package logging provides structured logging for the Zephyr bridge.
//
// This package wraps zap with convenience functions for the logging
// patterns used throughout the bridge. Logging is silent by default so the
// CLI stays quiet in scripted use; set ZEPHYR_LOG_LEVEL (or pass --log-level)
// to enable output.
//
// # Log Levels
//
//   - Debug: hex dumps of raw transport chunks, per-packet decode traces
//   - Info: session state changes, stream declarations, device info
//   - Warn: dropped batches, transient decode failures, reconnect attempts
//   - Error: connect failures, sink failures
//
// # Structured Logging
//
// All log functions take structured fields:
//
//	logging.Info("device connected",
//	    zap.String("address", "192.168.4.16:7023"),
//	    zap.String("serial", "BHT039095"),
//	)
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
