package bitstream

import (
	"errors"
	"fmt"
	"math/bits"
	"sort"
)

// ErrOverflow is returned when a value does not fit the widest breakpoint.
var ErrOverflow = errors.New("bitstream: value exceeds format width")

// IntFormat is a self-describing variable width integer encoding.
//
// A value is written as the unary index p of the smallest breakpoint that
// holds it (p one-bits, then a zero-bit unless p is the last breakpoint),
// followed by the value in breakpoints[p] bits.
type IntFormat struct {
	widths []uint
	signed bool
}

// NewIntFormat sorts and deduplicates widths. Every width must be in 1..64.
func NewIntFormat(signed bool, widths ...uint) (IntFormat, error) {
	if len(widths) == 0 {
		return IntFormat{}, errors.New("bitstream: format needs at least one width")
	}
	sorted := append([]uint(nil), widths...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	out := sorted[:0]
	for i, w := range sorted {
		if w == 0 || w > 64 {
			return IntFormat{}, fmt.Errorf("%w: %d", ErrWidth, w)
		}
		if i > 0 && w == sorted[i-1] {
			continue
		}
		out = append(out, w)
	}
	return IntFormat{widths: out, signed: signed}, nil
}

// MustFormat is NewIntFormat for package level format tables.
func MustFormat(signed bool, widths ...uint) IntFormat {
	f, err := NewIntFormat(signed, widths...)
	if err != nil {
		panic(err)
	}
	return f
}

var (
	Uint4to32          = MustFormat(false, 4, 8, 16, 24, 32)
	EntityIDFormat     = MustFormat(false, 4, 8, 12, 16, 32)
	TickFormat         = MustFormat(true, 8, 16, 24, 32)
	StringLengthFormat = MustFormat(false, 4, 8, 16)
	SmallSigned        = MustFormat(true, 4, 8, 16, 32)
)

// Widths returns a copy of the breakpoint list.
func (f IntFormat) Widths() []uint {
	return append([]uint(nil), f.widths...)
}

func (f IntFormat) Signed() bool {
	return f.signed
}

// MinBits is the number of bits needed to represent v in this format.
// Signed zero needs no bits so it always fits the smallest breakpoint.
func (f IntFormat) MinBits(v int64) uint {
	if !f.signed {
		return uint(bits.Len64(uint64(v)))
	}
	switch {
	case v == 0:
		return 0
	case v > 0:
		return uint(bits.Len64(uint64(v))) + 1
	default:
		return uint(bits.Len64(uint64(^v))) + 1
	}
}

// Breakpoint returns the index of the breakpoint used for v.
func (f IntFormat) Breakpoint(v int64) (int, error) {
	if !f.signed && v < 0 {
		return 0, fmt.Errorf("%w: negative value %d in unsigned format", ErrOverflow, v)
	}
	m := f.MinBits(v)
	for i, w := range f.widths {
		if w >= m {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %d needs %d bits", ErrOverflow, v, m)
}

func (f IntFormat) encode(w *Writer, v int64) error {
	if len(f.widths) == 0 {
		return errors.New("bitstream: zero value IntFormat")
	}
	p, err := f.Breakpoint(v)
	if err != nil {
		return err
	}
	for i := 0; i < p; i++ {
		w.WriteBits(1, 1)
	}
	if p < len(f.widths)-1 {
		w.WriteBits(0, 1)
	}
	if f.signed {
		w.WriteSigned(v, f.widths[p])
	} else {
		w.WriteInt(uint64(v), f.widths[p])
	}
	return w.err
}

func (f IntFormat) decode(r *Reader) (int64, error) {
	if len(f.widths) == 0 {
		return 0, errors.New("bitstream: zero value IntFormat")
	}
	p := 0
	for p < len(f.widths)-1 {
		bit, err := r.ReadBits(1)
		if err != nil {
			return 0, err
		}
		if bit == 0 {
			break
		}
		p++
	}
	if f.signed {
		return r.ReadSigned(f.widths[p])
	}
	u, err := r.ReadInt(f.widths[p])
	return int64(u), err
}
