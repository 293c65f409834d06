package protocol

// The BHT framing trailer carries a CRC-8 over the payload bytes. This is
// not one of the standard CRC-8 variants: it is a reflected CRC with
// polynomial 0x8C and zero init, specific to the BioHarness firmware.

var crcTable [256]byte

func init() {
	for i := 0; i < 256; i++ {
		crc := byte(i)
		for bit := 0; bit < 8; bit++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0x8C
			} else {
				crc >>= 1
			}
		}
		crcTable[i] = crc
	}
}

// Checksum computes the BHT CRC-8 of the given payload.
func Checksum(payload []byte) byte {
	var accum byte
	for _, b := range payload {
		accum = crcTable[accum^b]
	}
	return accum
}
