package protocol

// Encode serializes an outbound message for transmission to the device:
// STX, message ID, payload length, payload, CRC over the payload, ETX.
func Encode(id MessageID, payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+frameOverhead)
	frame = append(frame, STX, byte(id), byte(len(payload)))
	frame = append(frame, payload...)
	frame = append(frame, Checksum(payload), ETX)
	return frame
}

// EncodeLifesign builds the keepalive message the host must send
// periodically to hold the link open.
func EncodeLifesign() []byte {
	return Encode(MsgLifesign, nil)
}

// EncodeTransmitState builds the command that enables or disables a
// periodic data packet. The summary packet takes a two-byte update interval
// in seconds instead of a boolean.
func EncodeTransmitState(dataID MessageID, enable bool) ([]byte, bool) {
	cmd, ok := TransmitStateForData[dataID]
	if !ok {
		return nil, false
	}
	if cmd == MsgSetSummaryUpdateRate {
		ival := byte(0)
		if enable {
			ival = 1
		}
		return Encode(cmd, []byte{ival, 0}), true
	}
	state := byte(0)
	if enable {
		state = 1
	}
	return Encode(cmd, []byte{state}), true
}
