package protocol

import (
	"fmt"
	"time"
)

// Framer limits
const (
	// frameOverhead is STX + msgid + length + CRC + terminator.
	frameOverhead = 5

	// MaxAccumulator bounds the internal byte buffer. If no valid frame is
	// found within this window the oldest bytes are dropped.
	MaxAccumulator = 4096
)

// Packet is a single framed, checksum-verified message extracted from the
// transport byte stream.
type Packet struct {
	ID         MessageID
	Payload    []byte
	Terminator byte // ETX, ACK or NAK
	ReceivedAt time.Time
}

// Acked reports whether the packet terminator signals success (ETX for data
// packets, ACK for command responses).
func (p *Packet) Acked() bool {
	return p.Terminator == ETX || p.Terminator == ACK
}

func (p *Packet) String() string {
	return fmt.Sprintf("Packet{id=%s, len=%d, fin=0x%02x}", p.ID, len(p.Payload), p.Terminator)
}

// FramerStats counts framing outcomes since the framer was created or last
// reset. JunkRun is the number of bytes discarded since the last valid
// packet; a large run indicates a desynchronized or hostile byte stream.
type FramerStats struct {
	Packets   uint64
	Discarded uint64
	JunkRun   uint64
}

// Framer incrementally extracts validated packets from an arbitrarily
// chunked byte stream. Partial frames are kept across Feed calls. After a
// failed candidate frame exactly one byte is discarded and scanning resumes,
// so a single corrupted byte cannot suppress later valid frames.
//
// Framer is not safe for concurrent use; the session drives it from a single
// goroutine.
type Framer struct {
	buf   []byte
	stats FramerStats
	now   func() time.Time
}

// NewFramer creates an empty framer.
func NewFramer() *Framer {
	return &Framer{now: time.Now}
}

// Stats returns the current framing counters.
func (f *Framer) Stats() FramerStats {
	return f.stats
}

// Reset discards buffered bytes and counters. Called on reconnect so stale
// partial frames from the previous link do not leak into the new one.
func (f *Framer) Reset() {
	f.buf = nil
	f.stats = FramerStats{}
}

// Feed appends data to the accumulator and returns all packets that can be
// validated so far.
func (f *Framer) Feed(data []byte) []*Packet {
	f.buf = append(f.buf, data...)

	var packets []*Packet
	for {
		pkt, advance, ok := f.scan()
		if advance > 0 {
			f.buf = f.buf[advance:]
		}
		if pkt != nil {
			packets = append(packets, pkt)
		}
		if !ok {
			break
		}
	}

	// Bound the accumulator if sync is never found.
	if len(f.buf) > MaxAccumulator {
		drop := len(f.buf) - MaxAccumulator
		f.buf = f.buf[drop:]
		f.stats.Discarded += uint64(drop)
		f.stats.JunkRun += uint64(drop)
	}
	return packets
}

// scan examines the front of the buffer. It returns a validated packet (or
// nil), the number of bytes to consume, and whether scanning should continue.
func (f *Framer) scan() (*Packet, int, bool) {
	// Skip to the next STX.
	start := 0
	for start < len(f.buf) && f.buf[start] != STX {
		start++
	}
	if start > 0 {
		f.stats.Discarded += uint64(start)
		f.stats.JunkRun += uint64(start)
		return nil, start, start < len(f.buf)
	}
	if len(f.buf) < frameOverhead {
		// Not enough for the smallest possible frame; wait for more input.
		return nil, 0, false
	}

	payloadLen := int(f.buf[2])
	if payloadLen > MaxPayloadLen {
		// Bogus length field; this STX was not a real frame start.
		return f.reject()
	}

	total := frameOverhead + payloadLen
	if len(f.buf) < total {
		return nil, 0, false
	}

	payload := f.buf[3 : 3+payloadLen]
	crc := f.buf[3+payloadLen]
	fin := f.buf[4+payloadLen]

	if crc != Checksum(payload) {
		return f.reject()
	}
	if fin != ETX && fin != ACK && fin != NAK {
		return f.reject()
	}

	pkt := &Packet{
		ID:         MessageID(f.buf[1]),
		Payload:    append([]byte(nil), payload...),
		Terminator: fin,
		ReceivedAt: f.now(),
	}
	f.stats.Packets++
	f.stats.JunkRun = 0
	return pkt, total, true
}

// reject discards a single byte so scanning resumes from the next position.
func (f *Framer) reject() (*Packet, int, bool) {
	f.stats.Discarded++
	f.stats.JunkRun++
	return nil, 1, true
}
