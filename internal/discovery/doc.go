// Package discovery locates BioHarness serial bridges on the local network
// via mDNS/DNS-SD. Bridges advertise the _zephyr-bht._tcp service; the
// scanner collects them and extracts the device serial from TXT records or
// the bridge hostname. Used by the TCP transport when no address is
// configured.
package discovery
