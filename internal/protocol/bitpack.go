package protocol

import "math"

// The BHT waveform payloads pack samples as a continuous little-endian bit
// stream: the first value occupies the low bits of the first byte, and
// leftover high bits spill into the low bits of the next byte. A 10-bit
// stream therefore decodes as
//
//	v0 = b0 | (b1&0x03)<<8
//	v1 = b1>>2 | (b2&0x0F)<<6
//	...
//
// bitReader reads such a stream.
type bitReader struct {
	data []byte
	pos  int // bit position, LSB of data[0] is bit 0
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data}
}

// remaining reports how many unread bits are left.
func (r *bitReader) remaining() int {
	return len(r.data)*8 - r.pos
}

// readUint reads the next width bits as an unsigned integer. The caller must
// ensure enough bits remain.
func (r *bitReader) readUint(width int) uint32 {
	var v uint32
	for i := 0; i < width; i++ {
		byteIdx := r.pos >> 3
		bitIdx := r.pos & 7
		if r.data[byteIdx]&(1<<bitIdx) != 0 {
			v |= 1 << i
		}
		r.pos++
	}
	return v
}

// readInt reads the next width bits as a two's complement signed integer.
func (r *bitReader) readInt(width int) int32 {
	v := r.readUint(width)
	if v&(1<<(width-1)) != 0 {
		return int32(v) - int32(1)<<width
	}
	return int32(v)
}

// Value encodings used by the waveform packets.
const (
	packUnsigned = iota // plain unsigned
	packSigned          // two's complement
	packShifted         // unsigned with half-range shift; zero marks invalid
)

// unpackSamples decodes count values of the given bit width from data using
// the selected encoding. Shifted values of zero decode as NaN (the device's
// invalid-sample marker).
func unpackSamples(data []byte, count, width, mode int) []float64 {
	r := newBitReader(data)
	out := make([]float64, 0, count)
	for i := 0; i < count && r.remaining() >= width; i++ {
		switch mode {
		case packSigned:
			out = append(out, float64(r.readInt(width)))
		case packShifted:
			v := r.readUint(width)
			if v == 0 {
				out = append(out, math.NaN())
			} else {
				out = append(out, float64(int32(v)-1<<(width-1)))
			}
		default:
			out = append(out, float64(r.readUint(width)))
		}
	}
	return out
}
