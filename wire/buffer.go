package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrShortBuffer is returned when a read runs past the end of the data.
	ErrShortBuffer = errors.New("wire: unexpected end of data")
	// ErrLengthMismatch is returned when a declared length disagrees with the
	// bytes actually present or produced.
	ErrLengthMismatch = errors.New("wire: declared length does not match payload")
	// ErrFieldTooLarge is returned when a value does not fit a u16 length slot.
	ErrFieldTooLarge = errors.New("wire: field exceeds u16 length")
)

// Writer appends little-endian fields to a growing buffer. Length prefixes
// are written by reserving a slot and patching it once the body is known.
type Writer struct {
	buf []byte
}

// Slot marks a reserved u16 length field.
type Slot struct {
	at int
}

// NewWriter creates a writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Byte appends one byte.
func (w *Writer) Byte(b byte) {
	w.buf = append(w.buf, b)
}

// Uint16 appends a little-endian u16.
func (w *Writer) Uint16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// Uint32 appends a little-endian u32.
func (w *Writer) Uint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// Bool appends a byte holding 1 or 0.
func (w *Writer) Bool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
		return
	}
	w.buf = append(w.buf, 0)
}

// Uint64 appends a little-endian u64.
func (w *Writer) Uint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// Write appends raw bytes. It never fails and satisfies io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Bytes appends raw bytes.
func (w *Writer) Bytes(p []byte) {
	w.buf = append(w.buf, p...)
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

// ReserveUint16 writes a placeholder u16 and returns its slot.
func (w *Writer) ReserveUint16() Slot {
	s := Slot{at: len(w.buf)}
	w.buf = append(w.buf, 0, 0)
	return s
}

// PatchLength fills a reserved slot with the number of bytes written after
// it and returns that length.
func (w *Writer) PatchLength(s Slot) (uint16, error) {
	n := len(w.buf) - (s.at + 2)
	if n < 0 {
		return 0, fmt.Errorf("%w: slot at %d beyond buffer of %d", ErrLengthMismatch, s.at, len(w.buf))
	}
	if n > math.MaxUint16 {
		return 0, fmt.Errorf("%w: %d bytes", ErrFieldTooLarge, n)
	}
	binary.LittleEndian.PutUint16(w.buf[s.at:], uint16(n))
	return uint16(n), nil
}

// Result returns the encoded bytes. The writer must not be used afterwards.
func (w *Writer) Result() []byte {
	return w.buf
}

// Reader consumes little-endian fields from a byte slice without copying
// past its end.
type Reader struct {
	data []byte
	off  int
}

// NewReader creates a reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Byte reads one byte.
func (r *Reader) Byte() (byte, error) {
	if r.Remaining() < 1 {
		return 0, ErrShortBuffer
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

// Uint16 reads a little-endian u16.
func (r *Reader) Uint16() (uint16, error) {
	if r.Remaining() < 2 {
		return 0, ErrShortBuffer
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v, nil
}

// Uint32 reads a little-endian u32.
func (r *Reader) Uint32() (uint32, error) {
	if r.Remaining() < 4 {
		return 0, ErrShortBuffer
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

// Bool reads a byte and reports whether it is non-zero.
func (r *Reader) Bool() (bool, error) {
	b, err := r.Byte()
	return b != 0, err
}

// Uint64 reads a little-endian u64.
func (r *Reader) Uint64() (uint64, error) {
	if r.Remaining() < 8 {
		return 0, ErrShortBuffer
	}
	v := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v, nil
}

// Next returns the next n bytes without copying them.
func (r *Reader) Next(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrShortBuffer
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

// ReadFull copies len(dst) bytes into dst.
func (r *Reader) ReadFull(dst []byte) error {
	b, err := r.Next(len(dst))
	if err != nil {
		return err
	}
	copy(dst, b)
	return nil
}

// Rest returns every unread byte and exhausts the reader.
func (r *Reader) Rest() []byte {
	b := r.data[r.off:]
	r.off = len(r.data)
	return b
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// Offset returns the current read position.
func (r *Reader) Offset() int {
	return r.off
}

// Skip advances the reader by n bytes, clamping at the end.
func (r *Reader) Skip(n int) {
	r.off += n
	if r.off > len(r.data) {
		r.off = len(r.data)
	}
}
