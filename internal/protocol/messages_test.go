package protocol

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

// stampBytes encodes a device timestamp header field.
func stampBytes(year int, month, day byte, msecOfDay uint32) []byte {
	return []byte{
		byte(year), byte(year >> 8),
		month, day,
		byte(msecOfDay), byte(msecOfDay >> 8), byte(msecOfDay >> 16), byte(msecOfDay >> 24),
	}
}

// periodicPayload builds a payload with the standard streaming header in
// front of body, padded with zeros to total bytes.
func periodicPayload(seq byte, total int, body []byte) []byte {
	p := make([]byte, 0, total)
	p = append(p, seq)
	p = append(p, stampBytes(2025, 6, 15, 43_200_000)...) // noon
	p = append(p, body...)
	for len(p) < total {
		p = append(p, 0)
	}
	return p
}

func packetFor(id MessageID, payload []byte) *Packet {
	return &Packet{
		ID:         id,
		Payload:    payload,
		Terminator: ETX,
		ReceivedAt: time.Date(2025, 6, 15, 12, 0, 1, 0, time.UTC),
	}
}

// channelValue finds a summary channel by label.
func channelValue(t *testing.T, b *Burst, label string) float64 {
	t.Helper()
	for i, ch := range b.Channels {
		if ch.Label == label {
			return b.Samples[0][i]
		}
	}
	t.Fatalf("no channel %q in %v", label, b.Channels)
	return 0
}

func TestParseTimestamp(t *testing.T) {
	got := parseTimestamp(stampBytes(2025, 6, 15, 43_200_000))
	want := float64(time.Date(2025, 6, 15, 0, 0, 0, 0, time.Local).Unix()) + 43_200
	if got != want {
		t.Errorf("parseTimestamp = %v, want %v", got, want)
	}
}

func TestDecodeECG(t *testing.T) {
	// First packed value is 0x201 = 513; shifted gives 1 count = 0.025 mV.
	payload := periodicPayload(7, 88, []byte{0x01, 0x02})
	burst, err := Decode(packetFor(MsgECG, payload))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if burst.Stream != StreamECG {
		t.Errorf("stream = %s, want %s", burst.Stream, StreamECG)
	}
	if burst.SeqNo != 7 {
		t.Errorf("seq = %d, want 7", burst.SeqNo)
	}
	if len(burst.Samples) != 63 {
		t.Fatalf("got %d samples, want 63", len(burst.Samples))
	}
	if len(burst.Channels) != 1 || burst.Channels[0].Label != "ECG1" {
		t.Errorf("channels = %v", burst.Channels)
	}
	if got := burst.Samples[0][0]; got != 0.025 {
		t.Errorf("first sample = %v, want 0.025", got)
	}
	// Zero-valued packed samples are the invalid marker.
	if !math.IsNaN(burst.Samples[2][0]) {
		t.Errorf("zero-packed sample = %v, want NaN", burst.Samples[2][0])
	}
}

func TestDecodeBreathing(t *testing.T) {
	payload := periodicPayload(1, 32, []byte{0x01, 0x02})
	burst, err := Decode(packetFor(MsgBreathing, payload))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if burst.Stream != StreamResp {
		t.Errorf("stream = %s, want %s", burst.Stream, StreamResp)
	}
	if len(burst.Samples) != 18 {
		t.Fatalf("got %d samples, want 18", len(burst.Samples))
	}
	if got := burst.Samples[0][0]; got != 1 {
		t.Errorf("first sample = %v, want 1 (unscaled counts)", got)
	}
}

func TestDecodeAccel100Mg(t *testing.T) {
	body := make([]byte, 75)
	for i := range body {
		body[i] = 0xFF
	}
	payload := periodicPayload(9, 84, body)
	burst, err := Decode(packetFor(MsgAccel100Mg, payload))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if burst.Stream != StreamAccel100Mg {
		t.Errorf("stream = %s, want %s", burst.Stream, StreamAccel100Mg)
	}
	if len(burst.Samples) != 20 {
		t.Fatalf("got %d samples, want 20", len(burst.Samples))
	}
	if len(burst.Channels) != 3 {
		t.Fatalf("got %d channels, want X, Y, Z", len(burst.Channels))
	}
	// All-ones two's complement is -1 count, scaled by 0.1g per count.
	for axis := 0; axis < 3; axis++ {
		if got := burst.Samples[0][axis]; got != -0.1 {
			t.Errorf("axis %d = %v, want -0.1", axis, got)
		}
	}
}

func TestDecodeRtoRPreservesSign(t *testing.T) {
	// The device alternates interval sign per detected beat; the decoder
	// must pass both polarities through untouched.
	body := []byte{
		0x2C, 0x01, // 300
		0xD4, 0xFE, // -300
	}
	payload := periodicPayload(3, 45, body)
	burst, err := Decode(packetFor(MsgRtoR, payload))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(burst.Samples) != 18 {
		t.Fatalf("got %d samples, want 18", len(burst.Samples))
	}
	if got := burst.Samples[0][0]; got != 300 {
		t.Errorf("interval[0] = %v, want 300", got)
	}
	if got := burst.Samples[1][0]; got != -300 {
		t.Errorf("interval[1] = %v, want -300", got)
	}
}

func TestDecodeGeneral(t *testing.T) {
	payload := periodicPayload(2, 53, nil)
	payload[9], payload[10] = 72, 0       // heart_rate
	payload[11], payload[12] = 0x2C, 0x01 // respiration_rate raw 300
	payload[13], payload[14] = 0x00, 0x80 // skin_temperature invalid
	payload[51] = 5                       // battery percent bits
	payload[52] = 0x80                    // worn bit (bit 15)

	burst, err := Decode(packetFor(MsgGeneralData, payload))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if burst.Stream != StreamGeneral {
		t.Errorf("stream = %s, want %s", burst.Stream, StreamGeneral)
	}
	if len(burst.Samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(burst.Samples))
	}
	if burst.Channels[0].Label != "seq_no" || burst.Channels[1].Label != "stamp" {
		t.Errorf("leading channels = %v, want seq_no, stamp", burst.Channels[:2])
	}
	if got := channelValue(t, burst, "seq_no"); got != 2 {
		t.Errorf("seq_no = %v, want 2", got)
	}
	if got := channelValue(t, burst, "heart_rate"); got != 72 {
		t.Errorf("heart_rate = %v, want 72", got)
	}
	if got := channelValue(t, burst, "respiration_rate"); got != 30 {
		t.Errorf("respiration_rate = %v, want 30", got)
	}
	if got := channelValue(t, burst, "skin_temperature"); !math.IsNaN(got) {
		t.Errorf("skin_temperature = %v, want NaN (invalid marker)", got)
	}
	if got := channelValue(t, burst, "physio_monitor_worn"); got != 1 {
		t.Errorf("physio_monitor_worn = %v, want 1", got)
	}
	if got := channelValue(t, burst, "battery_percent"); got != 5 {
		t.Errorf("battery_percent = %v, want 5", got)
	}
}

func TestDecodeSummary(t *testing.T) {
	tests := []struct {
		name    string
		version byte
		wantErr bool
		verify  func(t *testing.T, b *Burst)
	}{
		{
			name:    "version 2",
			version: 2,
			verify: func(t *testing.T, b *Burst) {
				if got := channelValue(t, b, "device_worn_confidence"); got != 1 {
					t.Errorf("device_worn_confidence = %v, want 1", got)
				}
				// Extended flags are only valid with bit 15 of the
				// trailing word set; a zero word reports NaN.
				if got := channelValue(t, b, "resp_rate_low"); !math.IsNaN(got) {
					t.Errorf("resp_rate_low = %v, want NaN", got)
				}
				if got := channelValue(t, b, "heart_rate"); got != 0 {
					t.Errorf("heart_rate = %v, want 0", got)
				}
			},
		},
		{
			name:    "version 3",
			version: 3,
			verify: func(t *testing.T, b *Burst) {
				if got := channelValue(t, b, "walk_step_count"); got != 0 {
					t.Errorf("walk_step_count = %v, want 0", got)
				}
				if got := channelValue(t, b, "lat_degrees"); got != 0 {
					t.Errorf("lat_degrees = %v, want 0", got)
				}
			},
		},
		{
			name:    "unsupported version",
			version: 9,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := periodicPayload(1, 71, nil)
			payload[9] = tt.version
			burst, err := Decode(packetFor(MsgSummary, payload))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedPayload) {
					t.Fatalf("err = %v, want ErrMalformedPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if burst.Stream != StreamSummary {
				t.Errorf("stream = %s, want %s", burst.Stream, StreamSummary)
			}
			tt.verify(t, burst)
		})
	}
}

func TestDecodeEvent(t *testing.T) {
	body := []byte{0x40, 0x00, 0xAB} // button press, one data byte
	payload := periodicPayload(4, 12, body)
	burst, err := Decode(packetFor(MsgEvent, payload))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if burst.Stream != StreamMarkers {
		t.Errorf("stream = %s, want %s", burst.Stream, StreamMarkers)
	}
	if len(burst.Marks) != 1 {
		t.Fatalf("got %d marks, want 1", len(burst.Marks))
	}
	if !strings.HasPrefix(burst.Marks[0], "button press/ab@") {
		t.Errorf("mark = %q, want button press prefix", burst.Marks[0])
	}
}

func TestDecodeEventUTCMarkerTime(t *testing.T) {
	defer func() { MarkerTimeLocation = time.Local }()
	MarkerTimeLocation = time.UTC

	body := []byte{0x40, 0x00, 0xAB}
	payload := periodicPayload(4, 12, body)
	burst, err := Decode(packetFor(MsgEvent, payload))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := "button press/ab@" +
		time.Unix(int64(burst.DeviceStamp), 0).UTC().Format("2006-01-02 15:04:05")
	if burst.Marks[0] != want {
		t.Errorf("mark = %q, want %q", burst.Marks[0], want)
	}
}

func TestEventNameUnknownCode(t *testing.T) {
	if got := EventName(0x0999); got != "unknown:2457" {
		t.Errorf("EventName = %q, want unknown:2457", got)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		packet  *Packet
		wantErr error
	}{
		{
			name:    "wrong payload length",
			packet:  packetFor(MsgECG, periodicPayload(1, 87, nil)),
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "truncated header",
			packet:  packetFor(MsgEvent, []byte{0x01, 0x02}),
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "event without code",
			packet:  packetFor(MsgEvent, periodicPayload(1, 9, nil)),
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "lifesign is not periodic data",
			packet:  packetFor(MsgLifesign, nil),
			wantErr: ErrNotPeriodic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.packet)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
