package protocol

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMalformedPayload is returned when a packet's payload length does not
// match its kind's layout. The packet is dropped; the stream continues.
var ErrMalformedPayload = errors.New("malformed payload")

// ErrNotPeriodic is returned when Decode is handed a packet that carries no
// stream data (command responses, lifesigns).
var ErrNotPeriodic = errors.New("not a periodic data packet")

// MarkerTimeLocation is the zone used to render device timestamps inside
// event marker strings. Set once at startup, before decoding begins.
var MarkerTimeLocation = time.Local

// Channel describes one channel of a declared output stream.
type Channel struct {
	Label string
	Unit  string
	Type  string
}

// Burst is the decoded content of one validated periodic packet: a short
// run of samples for waveform kinds, exactly one sample for summary kinds,
// or marker strings for events.
type Burst struct {
	Stream      StreamID
	SeqNo       byte      // device sequence counter, +1 per packet mod 256
	DeviceStamp float64   // device clock, unix seconds
	ReceivedAt  time.Time // host clock at frame validation
	Channels    []Channel
	Samples     [][]float64 // ordered sub-samples, one value per channel
	Marks       []string    // marker payloads (Markers stream only)
}

// Decode turns a validated packet into a Burst. No state is shared between
// calls; a given packet always decodes the same way for a fixed
// MarkerTimeLocation.
func Decode(p *Packet) (*Burst, error) {
	switch p.ID {
	case MsgECG:
		return decodeECG(p)
	case MsgBreathing:
		return decodeBreathing(p)
	case MsgAccel:
		return decodeAccel(p)
	case MsgAccel100Mg:
		return decodeAccel100Mg(p)
	case MsgRtoR:
		return decodeRtoR(p)
	case MsgGeneralData:
		return decodeGeneral(p)
	case MsgSummary:
		return decodeSummary(p)
	case MsgEvent:
		return decodeEvent(p)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotPeriodic, p.ID)
	}
}

// streamingHeaderLen is the sequence byte plus the 8-byte device timestamp
// that prefix every periodic payload.
const streamingHeaderLen = 9

func decodeHeader(p *Packet, wantLen int) (byte, float64, error) {
	if wantLen >= 0 && len(p.Payload) != wantLen {
		return 0, 0, fmt.Errorf("%w: %s expects %d payload bytes, got %d",
			ErrMalformedPayload, p.ID, wantLen, len(p.Payload))
	}
	if len(p.Payload) < streamingHeaderLen {
		return 0, 0, fmt.Errorf("%w: %s header truncated at %d bytes",
			ErrMalformedPayload, p.ID, len(p.Payload))
	}
	return p.Payload[0], parseTimestamp(p.Payload[1:streamingHeaderLen]), nil
}

// le reads an unsigned little-endian integer of up to 4 bytes.
func le(b []byte) uint32 {
	var v uint32
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint32(b[i])
	}
	return v
}

// num decodes a little-endian field as float64, converting to two's
// complement when signed.
func num(b []byte, signed bool) float64 {
	v := le(b)
	if signed && b[len(b)-1] > 127 {
		return float64(int64(v) - int64(1)<<(8*len(b)))
	}
	return float64(v)
}

// numInval is num with an invalid-data sentinel that decodes as NaN.
func numInval(b []byte, signed bool, inval uint32) float64 {
	if le(b) == inval {
		return math.NaN()
	}
	return num(b, signed)
}

// parseTimestamp decodes the device timestamp: year u16, month, day, then
// milliseconds of day as u32, all little-endian. The result is unix seconds
// in the host's local zone, matching how the device clock is usually set.
func parseTimestamp(b []byte) float64 {
	year := int(le(b[0:2]))
	month := time.Month(b[2])
	day := int(b[3])
	msec := le(b[4:8])
	midnight := time.Date(year, month, day, 0, 0, 0, 0, time.Local)
	return float64(midnight.Unix()) + float64(msec)*0.001
}

// --- waveform kinds ---

func decodeECG(p *Packet) (*Burst, error) {
	seq, stamp, err := decodeHeader(p, 88)
	if err != nil {
		return nil, err
	}
	vals := unpackSamples(p.Payload[streamingHeaderLen:], 63, 10, packShifted)
	samples := make([][]float64, len(vals))
	for i, v := range vals {
		samples[i] = []float64{v * 0.025} // counts to mV
	}
	return &Burst{
		Stream:      StreamECG,
		SeqNo:       seq,
		DeviceStamp: stamp,
		ReceivedAt:  p.ReceivedAt,
		Channels:    []Channel{{Label: "ECG1", Unit: "millivolts", Type: "ECG"}},
		Samples:     samples,
	}, nil
}

func decodeBreathing(p *Packet) (*Burst, error) {
	seq, stamp, err := decodeHeader(p, 32)
	if err != nil {
		return nil, err
	}
	vals := unpackSamples(p.Payload[streamingHeaderLen:], 18, 10, packShifted)
	samples := make([][]float64, len(vals))
	for i, v := range vals {
		samples[i] = []float64{v}
	}
	return &Burst{
		Stream:      StreamResp,
		SeqNo:       seq,
		DeviceStamp: stamp,
		ReceivedAt:  p.ReceivedAt,
		Channels:    []Channel{{Label: "Respiration", Unit: "unnormalized", Type: "EXG"}},
		Samples:     samples,
	}, nil
}

func accelChannels(unit string) []Channel {
	return []Channel{
		{Label: "X", Unit: unit, Type: "AccelerationX"},
		{Label: "Y", Unit: unit, Type: "AccelerationY"},
		{Label: "Z", Unit: unit, Type: "AccelerationZ"},
	}
}

// groupXYZ folds a flat interleaved x,y,z,... value sequence into 3-channel
// samples, applying scale to each value.
func groupXYZ(vals []float64, scale float64) [][]float64 {
	samples := make([][]float64, 0, len(vals)/3)
	for i := 0; i+2 < len(vals); i += 3 {
		samples = append(samples, []float64{
			vals[i] * scale, vals[i+1] * scale, vals[i+2] * scale,
		})
	}
	return samples
}

func decodeAccel(p *Packet) (*Burst, error) {
	seq, stamp, err := decodeHeader(p, 84)
	if err != nil {
		return nil, err
	}
	vals := unpackSamples(p.Payload[streamingHeaderLen:], 60, 10, packShifted)
	return &Burst{
		Stream:      StreamAccel,
		SeqNo:       seq,
		DeviceStamp: stamp,
		ReceivedAt:  p.ReceivedAt,
		Channels:    accelChannels("unnormalized"),
		Samples:     groupXYZ(vals, 1),
	}, nil
}

func decodeAccel100Mg(p *Packet) (*Burst, error) {
	seq, stamp, err := decodeHeader(p, 84)
	if err != nil {
		return nil, err
	}
	vals := unpackSamples(p.Payload[streamingHeaderLen:], 60, 10, packSigned)
	return &Burst{
		Stream:      StreamAccel100Mg,
		SeqNo:       seq,
		DeviceStamp: stamp,
		ReceivedAt:  p.ReceivedAt,
		Channels:    accelChannels("g"),
		Samples:     groupXYZ(vals, 0.1), // 100mg counts to g
	}, nil
}

func decodeRtoR(p *Packet) (*Burst, error) {
	seq, stamp, err := decodeHeader(p, 45)
	if err != nil {
		return nil, err
	}
	// 16-bit intervals whose sign alternates with each newly detected
	// R-wave and otherwise holds. The alternation comes from the device
	// and is passed through untouched.
	body := p.Payload[streamingHeaderLen:]
	samples := make([][]float64, 0, len(body)/2)
	for i := 0; i+1 < len(body); i += 2 {
		samples = append(samples, []float64{num(body[i:i+2], true)})
	}
	return &Burst{
		Stream:      StreamRtoR,
		SeqNo:       seq,
		DeviceStamp: stamp,
		ReceivedAt:  p.ReceivedAt,
		Channels:    []Channel{{Label: "RtoR", Unit: "milliseconds", Type: "Misc"}},
		Samples:     samples,
	}, nil
}

// --- summary kinds ---

// record accumulates labeled channel values in declaration order.
type record struct {
	channels []Channel
	values   []float64
}

func (r *record) add(label string, v float64) {
	r.channels = append(r.channels, Channel{Label: label, Unit: UnitFor(label)})
	r.values = append(r.values, v)
}

func (r *record) addBool(label string, b bool) {
	v := 0.0
	if b {
		v = 1.0
	}
	r.add(label, v)
}

func (r *record) burst(stream StreamID, seq byte, stamp float64, at time.Time) *Burst {
	return &Burst{
		Stream:      stream,
		SeqNo:       seq,
		DeviceStamp: stamp,
		ReceivedAt:  at,
		Channels:    r.channels,
		Samples:     [][]float64{r.values},
	}
}

// addHeader records the sequence counter and device timestamp as the two
// leading channels of the summary-style streams.
func (r *record) addHeader(seq byte, stamp float64) {
	r.add("seq_no", float64(seq))
	r.add("stamp", stamp)
}

func decodeGeneral(p *Packet) (*Burst, error) {
	seq, stamp, err := decodeHeader(p, 53)
	if err != nil {
		return nil, err
	}
	b := p.Payload
	r := &record{}
	r.addHeader(seq, stamp)
	r.add("heart_rate", numInval(b[9:11], false, 0xFFFF))
	r.add("respiration_rate", numInval(b[11:13], false, 0xFFFF)*0.1)
	r.add("skin_temperature", numInval(b[13:15], true, 0x8000)*0.1)
	r.add("posture", numInval(b[15:17], true, 0x8000))
	r.add("vmu_activity", numInval(b[17:19], false, 0xFFFF)*0.01)
	r.add("peak_acceleration", numInval(b[19:21], false, 0xFFFF)*0.01)
	r.add("battery_voltage", numInval(b[21:23], false, 0xFFFF)*0.001)
	r.add("breathing_wave_amplitude", numInval(b[23:25], false, 0xFFFF))
	r.add("ecg_amplitude", numInval(b[25:27], false, 0xFFFF)*0.000001)
	r.add("ecg_noise", numInval(b[27:29], false, 0xFFFF)*0.000001)
	r.add("vertical_accel_min", numInval(b[29:31], true, 0x8000)*0.01)
	r.add("vertical_accel_peak", numInval(b[31:33], true, 0x8000)*0.01)
	r.add("lateral_accel_min", numInval(b[33:35], true, 0x8000)*0.01)
	r.add("lateral_accel_peak", numInval(b[35:37], true, 0x8000)*0.01)
	r.add("sagittal_accel_min", numInval(b[37:39], true, 0x8000)*0.01)
	r.add("sagittal_accel_peak", numInval(b[39:41], true, 0x8000)*0.01)
	r.add("system_channel", num(b[41:43], false))
	r.add("gsr", numInval(b[43:45], false, 0xFFFF))
	r.add("unused1", numInval(b[45:47], false, 0xFFFF))
	r.add("unused2", numInval(b[47:49], false, 0xFFFF))
	r.add("rog", numInval(b[49:51], false, 0xFFFF))
	r.add("alarm", numInval(b[49:51], false, 0xFFFF))
	status := le(b[51:53])
	r.addBool("physio_monitor_worn", status&(1<<15) != 0)
	r.addBool("ui_button_pressed", status&(1<<14) != 0)
	r.addBool("heart_rate_is_low_quality", status&(1<<13) != 0)
	r.addBool("external_sensors_connected", status&(1<<12) != 0)
	r.add("battery_percent", float64(status&127))
	return r.burst(StreamGeneral, seq, stamp, p.ReceivedAt), nil
}

// addStatusInfo decodes the worn/reliability status word shared by the two
// summary packet versions.
func (r *record) addStatusInfo(status uint32) {
	r.add("device_worn_confidence", 1-float64(status&3)/3)
	r.addBool("button_pressed", status&(1<<2) != 0)
	r.addBool("not_fitted_to_garment", status&(1<<3) != 0)
	r.addBool("heart_rate_unreliable", status&(1<<4) != 0)
	r.addBool("respiration_rate_unreliable", status&(1<<5) != 0)
	r.addBool("skin_temperature_unreliable", status&(1<<6) != 0)
	r.addBool("posture_unreliable", status&(1<<7) != 0)
	r.addBool("activity_unreliable", status&(1<<8) != 0)
	r.addBool("hrv_unreliable", status&(1<<9) != 0)
	r.addBool("estimated_core_temp_unreliable", status&(1<<10) != 0)
	r.addBool("usb_power_connected", status&(1<<11) != 0)
	r.addBool("resting_state_detected", status&(1<<14) != 0)
	r.addBool("external_sensors_connected", status&(1<<15) != 0)
}

func decodeSummary(p *Packet) (*Burst, error) {
	seq, stamp, err := decodeHeader(p, 71)
	if err != nil {
		return nil, err
	}
	switch ver := p.Payload[9]; ver {
	case 2:
		return decodeSummaryV2(p, seq, stamp), nil
	case 3:
		return decodeSummaryV3(p, seq, stamp), nil
	default:
		return nil, fmt.Errorf("%w: unsupported summary packet version %d",
			ErrMalformedPayload, ver)
	}
}

func decodeSummaryV2(p *Packet, seq byte, stamp float64) *Burst {
	b := p.Payload
	r := &record{}
	r.addHeader(seq, stamp)
	r.add("heart_rate", numInval(b[10:12], false, 0xFFFF))
	r.add("respiration_rate", numInval(b[12:14], false, 0xFFFF)*0.1)
	r.add("skin_temperature", numInval(b[14:16], true, 0x8000)*0.1)
	r.add("posture", numInval(b[16:18], true, 0x8000))
	r.add("activity", numInval(b[18:20], false, 0xFFFF)*0.01)
	r.add("peak_acceleration", numInval(b[20:22], false, 0xFFFF)*0.01)
	r.add("battery_voltage", numInval(b[22:24], false, 0xFFFF)*0.001)
	r.add("battery_percent", numInval(b[24:25], false, 0xFF))
	r.add("breathing_wave_amplitude", numInval(b[25:27], false, 0xFFFF))
	r.add("breathing_wave_noise", numInval(b[27:29], false, 0xFFFF))
	r.add("breathing_rate_confidence", numInval(b[29:30], false, 0xFF))
	r.add("ecg_amplitude", numInval(b[30:32], false, 0xFFFF)*0.000001)
	r.add("ecg_noise", numInval(b[32:34], false, 0xFFFF)*0.000001)
	r.add("heart_rate_confidence", numInval(b[34:35], false, 0xFF))
	r.add("heart_rate_variability", numInval(b[35:37], false, 0xFFFF))
	r.add("system_confidence", numInval(b[37:38], false, 0xFF))
	r.add("gsr", numInval(b[38:40], false, 0xFFFF))
	r.add("rog", numInval(b[40:42], false, 0))
	r.add("vertical_accel_min", numInval(b[42:44], true, 0x8000)*0.01)
	r.add("vertical_accel_peak", numInval(b[44:46], true, 0x8000)*0.01)
	r.add("lateral_accel_min", numInval(b[46:48], true, 0x8000)*0.01)
	r.add("lateral_accel_peak", numInval(b[48:50], true, 0x8000)*0.01)
	r.add("sagittal_accel_min", numInval(b[50:52], true, 0x8000)*0.01)
	r.add("sagittal_accel_peak", numInval(b[52:54], true, 0x8000)*0.01)
	r.add("device_internal_temp", numInval(b[54:56], true, 0x8000)*0.1)
	r.addStatusInfo(le(b[56:58]))
	r.add("link_quality", numInval(b[58:59], false, 0xFF)*100/254)
	r.add("rssi", numInval(b[59:60], false, 0x80))
	r.add("tx_power", numInval(b[60:61], false, 0x80))
	r.add("estimated_core_temperature", numInval(b[61:63], false, 0xFFFF)*0.1)
	r.add("aux_adc_chan1", numInval(b[63:65], false, 0xFFFF))
	r.add("aux_adc_chan2", numInval(b[65:67], false, 0xFFFF))
	r.add("aux_adc_chan3", numInval(b[67:69], false, 0xFFFF))
	// The extended status flags are only meaningful when the validity bit
	// is set; otherwise they are reported as NaN.
	ext := le(b[69:71])
	extFlag := func(bit uint) float64 {
		if ext == 0xFFFF || ext&(1<<15) == 0 {
			return math.NaN()
		}
		if ext&(1<<bit) != 0 {
			return 1
		}
		return 0
	}
	r.add("resp_rate_low", extFlag(0))
	r.add("resp_rate_high", extFlag(1))
	r.add("br_amplitude_low", extFlag(2))
	r.add("br_amplitude_high", extFlag(3))
	r.add("br_amplitude_variance_high", extFlag(4))
	if ext != 0xFFFF && ext&(1<<15) != 0 {
		r.add("br_signal_eval_state", float64((ext>>5)&3))
	} else {
		r.add("br_signal_eval_state", math.NaN())
	}
	return r.burst(StreamSummary, seq, stamp, p.ReceivedAt)
}

func decodeSummaryV3(p *Packet, seq byte, stamp float64) *Burst {
	b := p.Payload
	r := &record{}
	r.addHeader(seq, stamp)
	r.add("heart_rate", numInval(b[10:12], false, 0xFFFF))
	r.add("respiration_rate", numInval(b[12:14], false, 0xFFFF)*0.1)
	r.add("posture", numInval(b[14:16], true, 0x8000))
	r.add("activity", numInval(b[16:18], false, 0xFFFF)*0.01)
	r.add("peak_acceleration", numInval(b[18:20], false, 0xFFFF)*0.01)
	r.add("battery_percent", num(b[20:21], false))
	r.add("breathing_wave_amplitude", numInval(b[21:23], false, 0xFFFF))
	r.add("ecg_amplitude", numInval(b[23:25], false, 0xFFFF)*0.000001)
	r.add("ecg_noise", numInval(b[25:27], false, 0xFFFF)*0.000001)
	r.add("heart_rate_confidence", num(b[27:28], false))
	r.add("heart_rate_variability", numInval(b[28:30], false, 0xFFFF))
	r.add("rog", numInval(b[30:32], false, 0))
	r.addStatusInfo(le(b[32:34]))
	r.add("link_quality", numInval(b[34:35], false, 0xFF)*100/254)
	r.add("rssi", numInval(b[35:36], false, 0x80))
	r.add("tx_power", numInval(b[36:37], false, 0x80))
	r.add("estimated_core_temperature", numInval(b[37:39], false, 0xFFFF)*0.1)

	// GPS position, bit-packed like the waveforms.
	gps := newBitReader(b[39:49])
	r.add("lat_degrees", float64(gps.readUint(7)))
	r.add("lat_minutes", float64(gps.readUint(6)))
	r.add("lat_decimal_minutes", float64(gps.readUint(14)))
	r.add("lat_dir", float64(gps.readInt(1)))
	r.add("long_degrees", float64(gps.readUint(8)))
	r.add("long_minutes", float64(gps.readUint(6)))
	r.add("long_decimal_minutes", float64(gps.readUint(14)))
	r.add("long_dir", float64(gps.readInt(1)))
	r.add("qual_indication", float64(gps.readUint(1)))
	r.add("altitude", float64(gps.readUint(15)))
	r.add("horz_dilution_of_precision", float64(gps.readUint(6)))
	r.add("gps_speed", float64(le(b[49:51])&0x3FFF))

	// Accelerometry counters, same packing scheme.
	acc := newBitReader(b[51:71])
	r.add("impulse_load", float64(acc.readUint(20)))
	r.add("walk_step_count", float64(acc.readUint(18)))
	r.add("run_step_count", float64(acc.readUint(18)))
	r.add("bound_count", float64(acc.readUint(10)))
	r.add("jump_count", float64(acc.readUint(10)))
	r.add("impact_count3g", float64(acc.readUint(10)))
	r.add("impact_count7g", float64(acc.readUint(10)))
	r.add("avg_rate_of_force_development", float64(acc.readUint(12))*0.01)
	r.add("avg_step_impulse", float64(acc.readUint(10))*0.01)
	r.add("avg_step_period", float64(acc.readUint(10))*0.001)
	r.add("last_jump_flight_time", float64(acc.readUint(8))*0.01)
	r.add("peak_accel_phi", float64(acc.readUint(8)))
	r.add("peak_accel_theta", float64(acc.readInt(10)))
	return r.burst(StreamSummary, seq, stamp, p.ReceivedAt)
}

// --- events ---

// eventNames maps known device event codes to labels. Unknown codes are
// preserved with a numeric fallback, never dropped.
var eventNames = map[uint32]string{
	0x0040: "button press",
	0x0041: "emergency button press",
	0x0080: "battery level low",
	0x00C0: "self test result",
	0x1000: "ROG change",
	0x1040: "worn status change",
	0x1080: "HR reliability change",
	0x10C0: "fall detected",
	0x1100: "jump detected",
	0x1140: "dash detected",
}

// EventName returns the label for a device event code.
func EventName(code uint32) string {
	if name, ok := eventNames[code]; ok {
		return name
	}
	return fmt.Sprintf("unknown:%d", code)
}

func decodeEvent(p *Packet) (*Burst, error) {
	seq, stamp, err := decodeHeader(p, -1)
	if err != nil {
		return nil, err
	}
	if len(p.Payload) < streamingHeaderLen+2 {
		return nil, fmt.Errorf("%w: event packet missing code", ErrMalformedPayload)
	}
	code := le(p.Payload[9:11])
	data := p.Payload[11:]
	when := time.Unix(int64(stamp), 0).In(MarkerTimeLocation).Format("2006-01-02 15:04:05")
	mark := fmt.Sprintf("%s/%x@%s", EventName(code), data, when)
	return &Burst{
		Stream:      StreamMarkers,
		SeqNo:       seq,
		DeviceStamp: stamp,
		ReceivedAt:  p.ReceivedAt,
		Channels:    []Channel{{Label: "Event", Type: "Markers"}},
		Marks:       []string{mark},
	}, nil
}
