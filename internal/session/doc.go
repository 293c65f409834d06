// Package session drives the connection lifecycle against a BioHarness
// serial bridge. A Controller opens the transport, switches on the desired
// data packets, and runs the receive pipeline from a single goroutine:
// framing, decoding, timestamp reconstruction and publication. On link
// failure, idle timeout or sustained framing errors it tears the connection
// down and reconnects with jittered exponential backoff, resetting
// per-connection state so stale sequence numbers cannot poison the new link.
package session
