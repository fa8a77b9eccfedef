// Package codec implements the bancho binary packet format: encode/decode of
// the client<->server wire protocol used by the gateway and score pipeline.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

// ErrTruncated is returned when a reader runs out of bytes mid-field.
var ErrTruncated = errors.New("codec: truncated")

// stringPresent/stringEmpty are the two legal leading flag bytes for a string field.
const (
	stringEmpty   byte = 0x00
	stringPresent byte = 0x0b
)

// Reader sequentially consumes primitive and composite values from a byte slice.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential reads starting at offset 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining returns how many bytes are left unread.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// Rest consumes and returns every byte left unread, used for opaque
// pass-through payloads like spectator frames.
func (r *Reader) Rest() []byte {
	b := r.buf[r.pos:]
	r.pos = len(r.buf)
	return b
}

func (r *Reader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, ErrTruncated
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) U8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) I8() (int8, error) {
	v, err := r.U8()
	return int8(v), err
}

func (r *Reader) U16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) I16() (int16, error) {
	v, err := r.U16()
	return int16(v), err
}

func (r *Reader) U32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

func (r *Reader) U64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) I64() (int64, error) {
	v, err := r.U64()
	return int64(v), err
}

func (r *Reader) F32() (float32, error) {
	v, err := r.U32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *Reader) F64() (float64, error) {
	v, err := r.U64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// ULEB128 reads an unsigned little-endian base-128 varint, as used for string lengths.
func (r *Reader) ULEB128() (uint64, error) {
	var result uint64
	var shift uint
	for {
		b, err := r.U8()
		if err != nil {
			return 0, err
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, errors.New("codec: uleb128 overflow")
		}
	}
}

// String reads the flag-byte + ULEB128-length + UTF-8 bytes string encoding.
func (r *Reader) String() (string, error) {
	flag, err := r.U8()
	if err != nil {
		return "", err
	}
	if flag == stringEmpty {
		return "", nil
	}
	if flag != stringPresent {
		return "", errors.New("codec: invalid string flag byte")
	}
	n, err := r.ULEB128()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// I32List16 reads a 16-bit-length-prefixed list of int32s.
func (r *Reader) I32List16() ([]int32, error) {
	n, err := r.U16()
	if err != nil {
		return nil, err
	}
	return r.i32List(int(n))
}

// I32List32 reads a 32-bit-length-prefixed list of int32s.
func (r *Reader) I32List32() ([]int32, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	return r.i32List(int(n))
}

func (r *Reader) i32List(n int) ([]int32, error) {
	out := make([]int32, n)
	for i := range out {
		v, err := r.I32()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Writer accumulates primitive and composite values into a growing buffer.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated payload.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

func (w *Writer) WriteU8(v uint8)   { w.buf.WriteByte(v) }
func (w *Writer) WriteI8(v int8)    { w.buf.WriteByte(byte(v)) }

func (w *Writer) WriteU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteI16(v int16) { w.WriteU16(uint16(v)) }

func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteI32(v int32) { w.WriteU32(uint32(v)) }

func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteI64(v int64) { w.WriteU64(uint64(v)) }

func (w *Writer) WriteF32(v float32) { w.WriteU32(math.Float32bits(v)) }
func (w *Writer) WriteF64(v float64) { w.WriteU64(math.Float64bits(v)) }

// WriteULEB128 writes v as an unsigned LEB128 varint.
func (w *Writer) WriteULEB128(v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

// WriteString writes the flag-byte + ULEB128-length + UTF-8 bytes encoding.
// An empty string encodes as a single 0x00 byte.
func (w *Writer) WriteString(s string) {
	if s == "" {
		w.buf.WriteByte(stringEmpty)
		return
	}
	w.buf.WriteByte(stringPresent)
	w.WriteULEB128(uint64(len(s)))
	w.buf.WriteString(s)
}

// WriteI32List16 writes a 16-bit-length-prefixed list of int32s.
func (w *Writer) WriteI32List16(vals []int32) {
	w.WriteU16(uint16(len(vals)))
	for _, v := range vals {
		w.WriteI32(v)
	}
}

// WriteI32List32 writes a 32-bit-length-prefixed list of int32s.
func (w *Writer) WriteI32List32(vals []int32) {
	w.WriteU32(uint32(len(vals)))
	for _, v := range vals {
		w.WriteI32(v)
	}
}

// WriteRaw appends pre-encoded bytes verbatim (used for spectator frame relay).
func (w *Writer) WriteRaw(b []byte) { w.buf.Write(b) }
