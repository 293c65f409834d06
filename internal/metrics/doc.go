// Package metrics exposes Prometheus instrumentation for the bridge:
// framing and decode outcomes, publication volume, drops, and session state
// transitions. The /metrics endpoint is optional and enabled from the CLI.
package metrics
