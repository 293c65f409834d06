package protocol

import "time"

// StreamID names one logical output stream derived from the telemetry. A
// user-configured prefix may be prepended at publication time; IDs here are
// the bare stream names.
type StreamID string

const (
	StreamECG        StreamID = "ECG"
	StreamResp       StreamID = "Resp"
	StreamAccel      StreamID = "Accel"
	StreamAccel100Mg StreamID = "Accel100mg"
	StreamRtoR       StreamID = "RtoR"
	StreamSummary    StreamID = "Summary"
	StreamGeneral    StreamID = "General"
	StreamMarkers    StreamID = "Markers"
)

// AllStreams lists every stream this bridge can produce, in the order they
// are presented to the user.
var AllStreams = []StreamID{
	StreamECG, StreamResp, StreamAccel, StreamAccel100Mg,
	StreamRtoR, StreamSummary, StreamGeneral, StreamMarkers,
}

// DataPacketFor maps a stream to the periodic packet that feeds it.
var DataPacketFor = map[StreamID]MessageID{
	StreamECG:        MsgECG,
	StreamResp:       MsgBreathing,
	StreamAccel:      MsgAccel,
	StreamAccel100Mg: MsgAccel100Mg,
	StreamRtoR:       MsgRtoR,
	StreamSummary:    MsgSummary,
	StreamGeneral:    MsgGeneralData,
	StreamMarkers:    MsgEvent,
}

// NominalRate returns the documented sampling frequency of a stream in Hz.
// Markers are irregular and report zero.
func NominalRate(s StreamID) float64 {
	switch s {
	case StreamECG:
		return 250
	case StreamResp, StreamRtoR:
		return 1000.0 / 56
	case StreamAccel, StreamAccel100Mg:
		return 50
	case StreamSummary, StreamGeneral:
		return 1
	default:
		return 0
	}
}

// NominalPeriod returns the sample spacing of a stream, or zero for
// irregular streams.
func NominalPeriod(s StreamID) time.Duration {
	switch s {
	case StreamECG:
		return 4 * time.Millisecond
	case StreamResp, StreamRtoR:
		return 56 * time.Millisecond
	case StreamAccel, StreamAccel100Mg:
		return 20 * time.Millisecond
	case StreamSummary, StreamGeneral:
		return time.Second
	default:
		return 0
	}
}
