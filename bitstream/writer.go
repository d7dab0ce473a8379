// Package bitstream reads and writes MSB-first bit fields over byte streams.
//
// All variable sized integers on the wire (entity ids, ticks, string lengths)
// use an IntFormat: a unary-coded index into a list of breakpoint widths
// followed by the value itself.
package bitstream

import (
	"errors"
	"fmt"
	"io"
	"math"
)

var (
	// ErrEndOfStream is returned when a read runs past the end of the input.
	ErrEndOfStream = errors.New("bitstream: unexpected end of stream")
	// ErrWidth is returned for field widths outside 0..64.
	ErrWidth = errors.New("bitstream: invalid field width")
)

// Writer packs bit fields into an io.ByteWriter. Errors are sticky: after
// the first failure every write is a no-op and Err reports the cause.
type Writer struct {
	w   io.ByteWriter
	acc byte
	n   uint // bits held in acc
	err error
}

func NewWriter(w io.ByteWriter) *Writer {
	return &Writer{w: w}
}

// Err returns the first error encountered by the writer.
func (w *Writer) Err() error {
	return w.err
}

func mask(bits uint) uint64 {
	return uint64(1)<<bits - 1
}

// WriteBits writes the low `bits` bits of value, most significant bit first.
func (w *Writer) WriteBits(value uint64, bits uint) {
	if w.err != nil {
		return
	}
	if bits > 64 {
		w.err = fmt.Errorf("%w: %d", ErrWidth, bits)
		return
	}
	for bits > 0 {
		space := 8 - w.n
		take := min(space, bits)
		chunk := byte((value >> (bits - take)) & mask(take))
		w.acc |= chunk << (space - take)
		w.n += take
		bits -= take
		if w.n == 8 {
			w.emit()
		}
	}
}

func (w *Writer) emit() {
	if err := w.w.WriteByte(w.acc); err != nil && w.err == nil {
		w.err = err
	}
	w.acc = 0
	w.n = 0
}

// WriteInt writes an unsigned value in exactly `bits` bits.
func (w *Writer) WriteInt(value uint64, bits uint) {
	w.WriteBits(value, bits)
}

// WriteSigned writes a two's complement value in exactly `bits` bits.
func (w *Writer) WriteSigned(value int64, bits uint) {
	w.WriteBits(uint64(value)&mask(bits), bits)
}

// WriteBool writes v as one bit and returns it, so a flag can guard the
// fields it announces.
func (w *Writer) WriteBool(v bool) bool {
	if v {
		w.WriteBits(1, 1)
		return true
	}
	w.WriteBits(0, 1)
	return false
}

func (w *Writer) WriteFloat32(v float32) {
	w.WriteBits(uint64(math.Float32bits(v)), 32)
}

// WriteFormat writes value using the variable width format f.
func (w *Writer) WriteFormat(f IntFormat, value int64) {
	if w.err != nil {
		return
	}
	if err := f.encode(w, value); err != nil {
		w.err = err
	}
}

// WriteBytes writes a blob prefixed by its length in StringLengthFormat.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteFormat(StringLengthFormat, int64(len(b)))
	for _, c := range b {
		w.WriteBits(uint64(c), 8)
	}
}

// WriteString writes s as length-prefixed UTF-8.
func (w *Writer) WriteString(s string) {
	w.WriteBytes([]byte(s))
}

// Align pads the current byte with zero bits.
func (w *Writer) Align() {
	if w.n > 0 && w.err == nil {
		w.emit()
	}
}
