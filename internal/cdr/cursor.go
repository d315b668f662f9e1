// Package cdr implements a big-endian CDR primitive codec. Every primitive
// is aligned to its own size relative to the start of the stream; padding
// bytes are written as zero and skipped on read.
package cdr

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	// ErrShortBuffer is returned when a read runs past the end of the input.
	ErrShortBuffer = errors.New("cdr: short buffer")
	// ErrMalformed is returned when the input decodes to an invalid value,
	// such as a bool byte other than 0 or 1 or a zero-length string field.
	ErrMalformed = errors.New("cdr: malformed input")
)

// Writer is a growable write cursor. The zero value is ready to use.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty write cursor.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the encoded stream. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the current stream length in bytes.
func (w *Writer) Len() int { return len(w.buf) }

// align pads the stream with zero bytes until its length is a multiple of n.
func (w *Writer) align(n int) {
	for len(w.buf)%n != 0 {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteUint16(v uint16) {
	w.align(2)
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *Writer) WriteUint32(v uint32) {
	w.align(4)
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *Writer) WriteUint64(v uint64) {
	w.align(8)
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

func (w *Writer) WriteInt8(v int8)   { w.WriteUint8(uint8(v)) }
func (w *Writer) WriteInt16(v int16) { w.WriteUint16(uint16(v)) }
func (w *Writer) WriteInt32(v int32) { w.WriteUint32(uint32(v)) }
func (w *Writer) WriteInt64(v int64) { w.WriteUint64(uint64(v)) }

// WriteFloat32 preserves the exact bit pattern, NaN payloads included.
func (w *Writer) WriteFloat32(v float32) {
	w.WriteUint32(math.Float32bits(v))
}

func (w *Writer) WriteFloat64(v float64) {
	w.WriteUint64(math.Float64bits(v))
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
}

// WriteChar writes a single narrow character (one octet).
func (w *Writer) WriteChar(v byte) { w.WriteUint8(v) }

// WriteChar16 writes a single UTF-16 code unit.
func (w *Writer) WriteChar16(v uint16) { w.WriteUint16(v) }

// WriteString encodes s as a CDR string: u32 length including one NUL
// terminator, the bytes, then the NUL. An empty s encodes as length 1 + NUL.
func (w *Writer) WriteString(s []byte) {
	w.WriteUint32(uint32(len(s) + 1))
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// WriteU16String encodes a wide string: u32 code-unit count followed by
// big-endian u16 code units, with no terminator.
func (w *Writer) WriteU16String(s []uint16) {
	w.WriteUint32(uint32(len(s)))
	for _, u := range s {
		w.buf = binary.BigEndian.AppendUint16(w.buf, u)
	}
}

// Reader is a read cursor over a CDR stream. It keeps its own copy of the
// input, so the caller may reuse the source buffer after construction.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a read cursor positioned at the start of b.
func NewReader(b []byte) *Reader {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &Reader{buf: cp}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// need aligns the cursor to n and checks that size bytes are available.
func (r *Reader) need(align, size int) error {
	off := r.off
	if rem := off % align; rem != 0 {
		off += align - rem
	}
	if off+size > len(r.buf) {
		return ErrShortBuffer
	}
	r.off = off
	return nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	if err := r.need(1, 1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	if err := r.need(2, 2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4, 4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.need(8, 8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

func (r *Reader) ReadInt8() (int8, error) {
	v, err := r.ReadUint8()
	return int8(v), err
}

func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadUint8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, ErrMalformed
	}
}

func (r *Reader) ReadChar() (byte, error) {
	return r.ReadUint8()
}

func (r *Reader) ReadChar16() (uint16, error) {
	return r.ReadUint16()
}

// ReadString decodes a CDR string and returns its bytes without the NUL
// terminator. A length field of zero or a missing terminator is malformed.
func (r *Reader) ReadString() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrMalformed
	}
	if r.off+int(n) > len(r.buf) {
		return nil, ErrShortBuffer
	}
	raw := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	if raw[len(raw)-1] != 0 {
		return nil, ErrMalformed
	}
	out := make([]byte, len(raw)-1)
	copy(out, raw[:len(raw)-1])
	return out, nil
}

// ReadU16String decodes a wide string as a slice of UTF-16 code units.
func (r *Reader) ReadU16String() ([]uint16, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if r.off+2*int(n) > len(r.buf) {
		return nil, ErrShortBuffer
	}
	out := make([]uint16, n)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(r.buf[r.off:])
		r.off += 2
	}
	return out, nil
}
