// Package transport provides byte-stream links to a BioHarness serial
// bridge. The device itself speaks Bluetooth RFCOMM; a bridge (ser2net, an
// ESP32 adapter, or similar) exposes that stream on the network. TCP is the
// common case and supports mDNS discovery; WebSocket covers bridges that
// tunnel the stream behind an HTTP server.
package transport
