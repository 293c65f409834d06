package protocol

import (
	"bytes"
	"testing"
)

func TestFramerFeed(t *testing.T) {
	ecgFrame := Encode(MsgECG, make([]byte, 88))
	lifesignFrame := EncodeLifesign()

	tests := []struct {
		name   string
		feeds  [][]byte
		verify func(t *testing.T, packets []*Packet, stats FramerStats)
	}{
		{
			name:  "single frame in one feed",
			feeds: [][]byte{ecgFrame},
			verify: func(t *testing.T, packets []*Packet, stats FramerStats) {
				if len(packets) != 1 {
					t.Fatalf("got %d packets, want 1", len(packets))
				}
				if packets[0].ID != MsgECG {
					t.Errorf("ID = %s, want %s", packets[0].ID, MsgECG)
				}
				if len(packets[0].Payload) != 88 {
					t.Errorf("payload length = %d, want 88", len(packets[0].Payload))
				}
				if !packets[0].Acked() {
					t.Error("ETX-terminated packet should report Acked")
				}
				if stats.Discarded != 0 {
					t.Errorf("discarded = %d, want 0", stats.Discarded)
				}
			},
		},
		{
			name: "frame split across feeds",
			feeds: [][]byte{
				ecgFrame[:4],
				ecgFrame[4:50],
				ecgFrame[50:],
			},
			verify: func(t *testing.T, packets []*Packet, stats FramerStats) {
				if len(packets) != 1 {
					t.Fatalf("got %d packets, want 1", len(packets))
				}
				if packets[0].ID != MsgECG {
					t.Errorf("ID = %s, want %s", packets[0].ID, MsgECG)
				}
			},
		},
		{
			name: "one byte at a time",
			feeds: func() [][]byte {
				var feeds [][]byte
				for _, b := range lifesignFrame {
					feeds = append(feeds, []byte{b})
				}
				return feeds
			}(),
			verify: func(t *testing.T, packets []*Packet, stats FramerStats) {
				if len(packets) != 1 {
					t.Fatalf("got %d packets, want 1", len(packets))
				}
				if packets[0].ID != MsgLifesign {
					t.Errorf("ID = %s, want %s", packets[0].ID, MsgLifesign)
				}
			},
		},
		{
			name: "two frames back to back",
			feeds: [][]byte{
				append(append([]byte(nil), lifesignFrame...), ecgFrame...),
			},
			verify: func(t *testing.T, packets []*Packet, stats FramerStats) {
				if len(packets) != 2 {
					t.Fatalf("got %d packets, want 2", len(packets))
				}
				if packets[0].ID != MsgLifesign || packets[1].ID != MsgECG {
					t.Errorf("IDs = %s, %s", packets[0].ID, packets[1].ID)
				}
				if stats.Packets != 2 {
					t.Errorf("stats.Packets = %d, want 2", stats.Packets)
				}
			},
		},
		{
			name: "junk before frame is skipped",
			feeds: [][]byte{
				append([]byte{0x00, 0xFF, 0x07}, lifesignFrame...),
			},
			verify: func(t *testing.T, packets []*Packet, stats FramerStats) {
				if len(packets) != 1 {
					t.Fatalf("got %d packets, want 1", len(packets))
				}
				if stats.Discarded != 3 {
					t.Errorf("discarded = %d, want 3", stats.Discarded)
				}
				if stats.JunkRun != 0 {
					t.Errorf("junk run = %d, want 0 after a valid packet", stats.JunkRun)
				}
			},
		},
		{
			name: "corrupted checksum does not emit, next frame recovered",
			feeds: func() [][]byte {
				bad := append([]byte(nil), ecgFrame...)
				bad[10] ^= 0x01 // flip a payload bit, CRC now fails
				return [][]byte{append(bad, lifesignFrame...)}
			}(),
			verify: func(t *testing.T, packets []*Packet, stats FramerStats) {
				if len(packets) != 1 {
					t.Fatalf("got %d packets, want 1", len(packets))
				}
				if packets[0].ID != MsgLifesign {
					t.Errorf("ID = %s, want %s", packets[0].ID, MsgLifesign)
				}
				if stats.Discarded == 0 {
					t.Error("corrupted frame bytes should be counted as discarded")
				}
			},
		},
		{
			name: "valid frame starting inside a false header",
			feeds: [][]byte{
				// An STX followed by a plausible length, with the real
				// frame's bytes landing where the false frame's payload
				// would be. The checksum fails, one byte is dropped, and
				// scanning finds the real frame.
				append([]byte{STX, 0x22, 0x03}, lifesignFrame...),
			},
			verify: func(t *testing.T, packets []*Packet, stats FramerStats) {
				if len(packets) != 1 {
					t.Fatalf("got %d packets, want 1", len(packets))
				}
				if packets[0].ID != MsgLifesign {
					t.Errorf("ID = %s, want %s", packets[0].ID, MsgLifesign)
				}
			},
		},
		{
			name: "length byte over the limit rejects the header",
			feeds: [][]byte{
				append([]byte{STX, 0x20, 0xFF}, ecgFrame...),
			},
			verify: func(t *testing.T, packets []*Packet, stats FramerStats) {
				if len(packets) != 1 {
					t.Fatalf("got %d packets, want 1", len(packets))
				}
				if packets[0].ID != MsgECG {
					t.Errorf("ID = %s, want %s", packets[0].ID, MsgECG)
				}
			},
		},
		{
			name: "nak terminator is a valid frame but not acked",
			feeds: func() [][]byte {
				payload := []byte{0x01}
				frame := []byte{STX, byte(MsgSetECGTransmit), byte(len(payload))}
				frame = append(frame, payload...)
				frame = append(frame, Checksum(payload), NAK)
				return [][]byte{frame}
			}(),
			verify: func(t *testing.T, packets []*Packet, stats FramerStats) {
				if len(packets) != 1 {
					t.Fatalf("got %d packets, want 1", len(packets))
				}
				if packets[0].Acked() {
					t.Error("NAK-terminated packet should not report Acked")
				}
				if packets[0].Terminator != NAK {
					t.Errorf("terminator = 0x%02x, want NAK", packets[0].Terminator)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFramer()
			var packets []*Packet
			for _, feed := range tt.feeds {
				packets = append(packets, f.Feed(feed)...)
			}
			tt.verify(t, packets, f.Stats())
		})
	}
}

func TestFramerPayloadIsCopied(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC}
	frame := Encode(MsgGetSerialNumber, payload)

	f := NewFramer()
	packets := f.Feed(frame)
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}

	// Mutating the input buffer must not reach the extracted packet.
	for i := range frame {
		frame[i] = 0
	}
	if !bytes.Equal(packets[0].Payload, payload) {
		t.Errorf("payload = %v, want %v", packets[0].Payload, payload)
	}
}

func TestFramerReset(t *testing.T) {
	frame := EncodeLifesign()

	f := NewFramer()
	f.Feed(frame[:3]) // partial frame buffered
	f.Reset()

	// The partial frame is gone; its tail must not corrupt new input.
	if got := f.Feed(frame[3:]); len(got) != 0 {
		t.Fatalf("got %d packets from a discarded partial frame, want 0", len(got))
	}
	if got := f.Feed(frame); len(got) != 1 {
		t.Fatalf("got %d packets after reset, want 1", len(got))
	}
	if stats := f.Stats(); stats.Packets != 1 {
		t.Errorf("stats.Packets = %d, want 1 (reset clears counters)", stats.Packets)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x00}
	frame := Encode(MsgSetSummaryUpdateRate, payload)

	f := NewFramer()
	packets := f.Feed(frame)
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}
	if packets[0].ID != MsgSetSummaryUpdateRate {
		t.Errorf("ID = %s, want %s", packets[0].ID, MsgSetSummaryUpdateRate)
	}
	if !bytes.Equal(packets[0].Payload, payload) {
		t.Errorf("payload = %v, want %v", packets[0].Payload, payload)
	}
}
