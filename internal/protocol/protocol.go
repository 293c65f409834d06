package protocol

import "fmt"

// Framing control bytes
const (
	STX = 0x02 // start of a message
	ETX = 0x03 // normal terminator
	ACK = 0x06 // command acknowledged
	NAK = 0x15 // command rejected
)

// MaxPayloadLen is the largest declared payload length the device produces.
// Anything above this in a length field means we are not looking at a real
// message header.
const MaxPayloadLen = 128

// MessageID identifies a BHT message type (one byte on the wire).
type MessageID byte

// Periodic data packets sent by the device once the corresponding transmit
// state is enabled.
const (
	MsgGeneralData   MessageID = 0x20 // 53-byte payload, slow-changing vitals
	MsgBreathing     MessageID = 0x21 // 32-byte payload, 18 samples at 56ms
	MsgECG           MessageID = 0x22 // 88-byte payload, 63 samples at 4ms
	MsgLifesign      MessageID = 0x23 // keepalive, both directions
	MsgRtoR          MessageID = 0x24 // 45-byte payload, 18 samples at 56ms
	MsgAccel         MessageID = 0x25 // 84-byte payload, 20 XYZ sets at 20ms
	MsgAccel100Mg    MessageID = 0x2A // like MsgAccel but in units of 0.1g
	MsgSummary       MessageID = 0x2B // 71-byte payload, version byte selects V2/V3
	MsgEvent         MessageID = 0x2C // event code plus event-specific data
	MsgBluetoothData MessageID = 0x27
	MsgExtendedData  MessageID = 0x28
	MsgLoggingData   MessageID = 0x3F
	MsgLiveLogAccess MessageID = 0x60
)

// Commands used by the session to control streaming and query the device.
const (
	MsgSetGeneralTransmit    MessageID = 0x14
	MsgSetBreathingTransmit  MessageID = 0x15
	MsgSetECGTransmit        MessageID = 0x16
	MsgSetRtoRTransmit       MessageID = 0x19
	MsgSetAccelTransmit      MessageID = 0x1E
	MsgSetAccel100MgTransmit MessageID = 0xBC
	MsgSetSummaryUpdateRate  MessageID = 0xBD

	MsgGetSerialNumber MessageID = 0x0B
	MsgGetHardwarePart MessageID = 0x0C
	MsgGetFriendlyName MessageID = 0x17
)

// PeriodicMessages is the set of message IDs the device emits on its own
// once enabled.
var PeriodicMessages = map[MessageID]bool{
	MsgGeneralData:   true,
	MsgBreathing:     true,
	MsgECG:           true,
	MsgRtoR:          true,
	MsgAccel:         true,
	MsgBluetoothData: true,
	MsgExtendedData:  true,
	MsgAccel100Mg:    true,
	MsgSummary:       true,
	MsgEvent:         true,
	MsgLoggingData:   true,
	MsgLiveLogAccess: true,
}

// TransmitStateForData maps a periodic data packet ID to the command that
// toggles it on or off.
var TransmitStateForData = map[MessageID]MessageID{
	MsgGeneralData: MsgSetGeneralTransmit,
	MsgBreathing:   MsgSetBreathingTransmit,
	MsgECG:         MsgSetECGTransmit,
	MsgRtoR:        MsgSetRtoRTransmit,
	MsgAccel:       MsgSetAccelTransmit,
	MsgAccel100Mg:  MsgSetAccel100MgTransmit,
	MsgSummary:     MsgSetSummaryUpdateRate,
}

// String returns a human-readable name for a message ID.
func (id MessageID) String() string {
	switch id {
	case MsgGeneralData:
		return "GeneralData"
	case MsgBreathing:
		return "BreathingWaveform"
	case MsgECG:
		return "ECGWaveform"
	case MsgLifesign:
		return "Lifesign"
	case MsgRtoR:
		return "RtoR"
	case MsgAccel:
		return "Accelerometer"
	case MsgAccel100Mg:
		return "Accelerometer100Mg"
	case MsgSummary:
		return "SummaryData"
	case MsgEvent:
		return "Event"
	case MsgBluetoothData:
		return "BluetoothDeviceData"
	case MsgExtendedData:
		return "ExtendedData"
	case MsgLoggingData:
		return "LoggingData"
	case MsgLiveLogAccess:
		return "LiveLogAccessData"
	case MsgGetSerialNumber:
		return "GetSerialNumber"
	case MsgGetHardwarePart:
		return "GetHardwarePartNumber"
	case MsgGetFriendlyName:
		return "GetFriendlyName"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", byte(id))
	}
}
