// Package config manages the user configuration registry.
//
// The registry is a YAML file in the platform config directory that caches
// bridge addresses by device serial number (so subsequent sessions connect
// without discovery) and holds session defaults: enabled streams, stream
// name prefix, sink URL, timeouts. CLI flags always take precedence; the
// registry is only a fallback.
//
// Writes are atomic (temp file + rename) so a crash never leaves a
// corrupted config behind.
package config
