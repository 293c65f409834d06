// Package protocol implements the Zephyr BioHarness (BHT) wire protocol.
//
// This package handles framing, validation, and decoding of the binary
// telemetry messages a BioHarness chest strap emits over its serial link,
// and the construction of the small command set needed to enable streaming.
//
// # Framing
//
// Every message has the same shape:
//
//	STX (0x02) | message ID | payload length | payload | CRC-8 | ETX/ACK/NAK
//
// The CRC-8 is a BHT-specific reflected CRC (polynomial 0x8C, zero init)
// computed over the payload alone. Command responses terminate with ACK or
// NAK instead of ETX.
//
// The Framer consumes an arbitrarily chunked byte stream and yields
// validated packets. On any checksum or structural failure it discards a
// single byte and rescans, so an isolated corrupted byte never prevents
// recovery of the frames that follow.
//
// # Periodic packets
//
// Once enabled, the device pushes periodic data packets. Each begins with a
// one-byte sequence counter and an 8-byte device timestamp, followed by the
// kind-specific body:
//
//	GeneralData  0x20  1 Hz     slow-changing vitals and status bits
//	Breathing    0x21  17.86 Hz 18 bit-packed respiration samples
//	ECG          0x22  250 Hz   63 bit-packed ECG samples
//	RtoR         0x24  17.86 Hz 18 signed 16-bit R-to-R intervals
//	Accel        0x25  50 Hz    20 XYZ sample sets, 10-bit packed
//	Accel100Mg   0x2A  50 Hz    like Accel, scaled to g
//	Summary      0x2B  1 Hz     derived metrics (V2 and V3 layouts)
//	Event        0x2C  -        event code plus event data
//
// Waveform samples are packed as a continuous little-endian bit stream of
// 10-bit values; see bitpack.go for the exact layout.
//
// Decoders are pure functions from validated packet to Burst and are safe
// for concurrent use. The Framer keeps per-stream accumulation state and is
// confined to a single goroutine by the session.
package protocol
