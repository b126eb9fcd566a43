// Package codec implements the compact binary encoding spec.md §6 requires
// for config blobs and level metadata: fixed or variable-length
// little-endian integers, independent of host word size, no reflection.
// This mirrors the teacher's own on-disk attribute codec
// (internal/chunk/types.go Attributes.Encode/DecodeAttributes) rather than
// reaching for a general-purpose serialization library.
package codec

import (
	"encoding/binary"
	"math"

	"bloomkeep/bloomerr"
)

// Writer accumulates a binary-encoded blob.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated blob.
func (w *Writer) Bytes() []byte { return w.buf }

// U8 appends a single byte.
func (w *Writer) U8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

// U32 appends a 4-byte little-endian uint32.
func (w *Writer) U32(v uint32) *Writer {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

// U64 appends an 8-byte little-endian uint64.
func (w *Writer) U64(v uint64) *Writer {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

// F64 appends an 8-byte little-endian IEEE-754 float64.
func (w *Writer) F64(v float64) *Writer {
	return w.U64(math.Float64bits(v))
}

// Varint appends v as an unsigned LEB128 varint.
func (w *Writer) Varint(v uint64) *Writer {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], v)
	w.buf = append(w.buf, b[:n]...)
	return w
}

// Bool appends a single presence/flag byte.
func (w *Writer) Bool(v bool) *Writer {
	if v {
		return w.U8(1)
	}
	return w.U8(0)
}

// Bytes16 appends data prefixed by a 2-byte little-endian length. Used for
// strings and other short byte payloads embedded in config blobs.
func (w *Writer) Bytes16(data []byte) *Writer {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(len(data)))
	w.buf = append(w.buf, b[:]...)
	w.buf = append(w.buf, data...)
	return w
}

// String16 appends s as Bytes16.
func (w *Writer) String16(s string) *Writer {
	return w.Bytes16([]byte(s))
}

// Reader consumes a binary-encoded blob produced by Writer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps data for sequential decoding.
func NewReader(data []byte) *Reader {
	return &Reader{buf: data}
}

func (r *Reader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return bloomerr.Codecf(nil, "unexpected end of blob: need %d bytes at offset %d, have %d", n, r.pos, len(r.buf))
	}
	return nil
}

// U8 reads a single byte.
func (r *Reader) U8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// U32 reads a 4-byte little-endian uint32.
func (r *Reader) U32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

// U64 reads an 8-byte little-endian uint64.
func (r *Reader) U64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

// F64 reads an 8-byte little-endian IEEE-754 float64.
func (r *Reader) F64() (float64, error) {
	bits, err := r.U64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

// Varint reads an unsigned LEB128 varint.
func (r *Reader) Varint() (uint64, error) {
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, bloomerr.Codecf(nil, "invalid varint at offset %d", r.pos)
	}
	r.pos += n
	return v, nil
}

// Bool reads a single presence/flag byte.
func (r *Reader) Bool() (bool, error) {
	v, err := r.U8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// Bytes16 reads a 2-byte-length-prefixed byte payload.
func (r *Reader) Bytes16() ([]byte, error) {
	if err := r.need(2); err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint16(r.buf[r.pos : r.pos+2]))
	r.pos += 2
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := make([]byte, n)
	copy(v, r.buf[r.pos:r.pos+n])
	r.pos += n
	return v, nil
}

// String16 reads a Bytes16 payload as a string.
func (r *Reader) String16() (string, error) {
	b, err := r.Bytes16()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Done reports whether the reader has consumed the entire blob.
func (r *Reader) Done() bool { return r.pos >= len(r.buf) }
