package bitstream

import (
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

// Reader unpacks bit fields from an io.ByteReader.
type Reader struct {
	r   io.ByteReader
	acc byte
	n   uint // unread bits left in acc
}

func NewReader(r io.ByteReader) *Reader {
	return &Reader{r: r}
}

// ReadBits reads `bits` bits, most significant bit first.
func (r *Reader) ReadBits(bits uint) (uint64, error) {
	if bits > 64 {
		return 0, fmt.Errorf("%w: %d", ErrWidth, bits)
	}
	var v uint64
	for bits > 0 {
		if r.n == 0 {
			b, err := r.r.ReadByte()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return 0, ErrEndOfStream
				}
				return 0, err
			}
			r.acc = b
			r.n = 8
		}
		take := min(r.n, bits)
		chunk := uint64(r.acc>>(r.n-take)) & mask(take)
		v = v<<take | chunk
		r.n -= take
		bits -= take
	}
	return v, nil
}

// ReadInt reads an unsigned value of exactly `bits` bits.
func (r *Reader) ReadInt(bits uint) (uint64, error) {
	return r.ReadBits(bits)
}

// ReadSigned reads a two's complement value of `bits` bits and sign-extends it.
func (r *Reader) ReadSigned(bits uint) (int64, error) {
	u, err := r.ReadBits(bits)
	if err != nil {
		return 0, err
	}
	return signExtend(u, bits), nil
}

func signExtend(u uint64, bits uint) int64 {
	if bits == 0 || bits >= 64 {
		return int64(u)
	}
	shift := 64 - bits
	return int64(u<<shift) >> shift
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadBits(1)
	return v == 1, err
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadBits(32)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(uint32(v)), nil
}

// ReadFormat reads a value written with WriteFormat using the same format.
func (r *Reader) ReadFormat(f IntFormat) (int64, error) {
	return f.decode(r)
}

// ReadBytes reads a length-prefixed blob.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadFormat(StringLengthFormat)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	for i := range b {
		c, err := r.ReadBits(8)
		if err != nil {
			return nil, err
		}
		b[i] = byte(c)
	}
	return b, nil
}

// ErrInvalidUTF8 is returned by ReadString for malformed text.
var ErrInvalidUTF8 = errors.New("bitstream: invalid utf-8 string")

func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

// Align drops the unread bits of the current byte.
func (r *Reader) Align() {
	r.acc = 0
	r.n = 0
}
