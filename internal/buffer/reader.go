package buffer

import (
	"encoding/binary"
	"math"
)

// Reader layers Cassandra's typed scalar decoders on top of a Source.
// Every decoder is EOF-soft: at end of stream it returns the zero value
// and the caller is expected to check IsEOF rather than get a panic
// mid-parse on a truncated block.
type Reader struct {
	src Source
}

// NewReader wraps src with the typed decoders.
func NewReader(src Source) *Reader {
	return &Reader{src: src}
}

func (r *Reader) Source() Source { return r.src }
func (r *Reader) IsEOF() bool    { return r.src.IsEOF() }
func (r *Reader) Seek(pos int64) { r.src.Seek(pos) }
func (r *Reader) SkipBytes(n int64) { r.src.SkipBytes(n) }

// ReadByte reads a single unsigned byte.
func (r *Reader) ReadByte() byte {
	b := r.src.ReadBytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// ReadInt16 reads a big-endian signed 16-bit integer.
func (r *Reader) ReadInt16() int16 {
	b := r.src.ReadBytes(2)
	if b == nil {
		return 0
	}
	return int16(uint16(b[0])<<8 | uint16(b[1]))
}

// ReadInt32 reads a big-endian signed 32-bit integer.
func (r *Reader) ReadInt32() int32 {
	b := r.src.ReadBytes(4)
	if b == nil {
		return 0
	}
	return int32(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
}

// ReadInt64 reads a big-endian signed 64-bit integer.
func (r *Reader) ReadInt64() int64 {
	b := r.src.ReadBytes(8)
	if b == nil {
		return 0
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return int64(v)
}

// ReadFloat32 reads a host-endian IEEE-754 single, matching the
// source's direct struct reinterpretation (§9: the on-disk bytes are
// whatever the writing host produced; we read native order).
func (r *Reader) ReadFloat32() float32 {
	b := r.src.ReadBytes(4)
	if b == nil {
		return 0
	}
	return math.Float32frombits(binary.NativeEndian.Uint32(b))
}

// ReadFloat64 reads a host-endian IEEE-754 double.
func (r *Reader) ReadFloat64() float64 {
	b := r.src.ReadBytes(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.NativeEndian.Uint64(b))
}

// ReadUnsignedVint decodes Cassandra's variable-length unsigned integer:
// the leading one-bits of the first byte count the number of following
// bytes (0..8); the remaining low bits of the first byte, concatenated
// big-endian with those bytes, form the value.
func (r *Reader) ReadUnsignedVint() uint64 {
	first := r.src.ReadBytes(1)
	if first == nil {
		return 0
	}
	b0 := first[0]
	if b0 < 0x7f {
		return uint64(b0)
	}

	extraBytes := 0
	for extraBytes < 8 && (b0&(0x80>>uint(extraBytes))) != 0 {
		extraBytes++
	}

	retval := uint64(b0 & (0xff >> uint(extraBytes)))
	data := r.src.ReadBytes(extraBytes)
	if data == nil {
		return 0
	}
	for i := 0; i < extraBytes; i++ {
		retval = retval<<8 | uint64(data[i])
	}
	return retval
}

// ReadVint decodes a signed vint as a zig-zag transform of the unsigned
// decode, matching the source's formula verbatim (see spec §9 Open
// Question 1 — this mirrors the reference byte-for-byte).
func (r *Reader) ReadVint() int64 {
	n := int64(r.ReadUnsignedVint())
	return (n << 1) ^ (n >> 63)
}

// ReadString reads a short-length-prefixed string: big-endian int16
// length, then that many bytes.
func (r *Reader) ReadString() string {
	length := r.ReadInt16()
	if r.src.IsEOF() {
		return ""
	}
	if length < 0 {
		return ""
	}
	data := r.src.ReadBytes(int(length))
	if data == nil {
		return ""
	}
	return string(data)
}

// ReadVintLengthString reads an unsigned-vint-length-prefixed string.
func (r *Reader) ReadVintLengthString() string {
	length := r.ReadUnsignedVint()
	if r.src.IsEOF() {
		return ""
	}
	data := r.src.ReadBytes(int(length))
	if data == nil {
		return ""
	}
	return string(data)
}

// ReadData reads an int32-length-prefixed blob, matching Buffer::read_data.
// It returns ok=false on EOF, never panicking on a truncated tail.
func (r *Reader) ReadData() (data []byte, ok bool) {
	length := r.ReadInt32()
	if r.src.IsEOF() {
		return nil, false
	}
	b := r.src.ReadBytes(int(length))
	if b == nil {
		return nil, false
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, true
}

// SkipData skips an int32-length-prefixed blob without materializing it.
func (r *Reader) SkipData() {
	length := r.ReadInt32()
	r.src.SkipBytes(int64(length))
}
