package bitstream

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestBitsCrossByteBoundaries(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteInt(0x5, 3)
	w.WriteInt(0x1ABC, 13)
	w.WriteInt(0, 0)
	w.WriteSigned(-3, 5)
	w.WriteInt(0xDEADBEEFCAFE, 48)
	w.Align()
	if err := w.Err(); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := NewReader(bytes.NewReader(buf.Bytes()))
	if v, _ := r.ReadInt(3); v != 0x5 {
		t.Fatalf("ReadInt(3) = %#x, want 0x5", v)
	}
	if v, _ := r.ReadInt(13); v != 0x1ABC {
		t.Fatalf("ReadInt(13) = %#x, want 0x1abc", v)
	}
	if v, err := r.ReadInt(0); v != 0 || err != nil {
		t.Fatalf("ReadInt(0) = %d, %v; want 0, nil", v, err)
	}
	if v, _ := r.ReadSigned(5); v != -3 {
		t.Fatalf("ReadSigned(5) = %d, want -3", v)
	}
	if v, _ := r.ReadInt(48); v != 0xDEADBEEFCAFE {
		t.Fatalf("ReadInt(48) = %#x, want 0xdeadbeefcafe", v)
	}
}

func TestWriterIsMSBFirst(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteBool(true)
	w.Align()
	w.WriteInt(0x3, 2)
	w.Align()
	if got := buf.Bytes(); !bytes.Equal(got, []byte{0x80, 0xC0}) {
		t.Fatalf("bytes = %x, want 80c0", got)
	}
}

func TestReaderAlignDiscardsPartialByte(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0xFF, 0x12}))
	if _, err := r.ReadInt(3); err != nil {
		t.Fatal(err)
	}
	r.Align()
	if v, _ := r.ReadInt(8); v != 0x12 {
		t.Fatalf("after align ReadInt(8) = %#x, want 0x12", v)
	}
}

func TestTruncatedInput(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0xAB}))
	if _, err := r.ReadInt(12); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("err = %v, want ErrEndOfStream", err)
	}

	r = NewReader(bytes.NewReader(nil))
	if _, err := r.ReadFormat(Uint4to32); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("err = %v, want ErrEndOfStream", err)
	}
}

func TestInvalidWidth(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteInt(1, 65)
	if !errors.Is(w.Err(), ErrWidth) {
		t.Fatalf("err = %v, want ErrWidth", w.Err())
	}
	if _, err := NewIntFormat(false); err == nil {
		t.Fatalf("expected error for empty format")
	}
	if _, err := NewIntFormat(false, 0, 8); !errors.Is(err, ErrWidth) {
		t.Fatalf("err = %v, want ErrWidth", err)
	}
}

func TestNewIntFormatSortsAndDedupes(t *testing.T) {
	f, err := NewIntFormat(false, 16, 4, 8, 4, 16)
	if err != nil {
		t.Fatal(err)
	}
	got := f.Widths()
	want := []uint{4, 8, 16}
	if len(got) != len(want) {
		t.Fatalf("widths = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("widths = %v, want %v", got, want)
		}
	}
}

func edgeValues(f IntFormat) []int64 {
	var out []int64
	out = append(out, 0)
	for _, k := range f.Widths() {
		if f.Signed() {
			if k == 64 {
				out = append(out, math.MinInt64, math.MaxInt64)
				continue
			}
			out = append(out, -(int64(1) << (k - 1)), int64(1)<<(k-1)-1, -1, 1)
			continue
		}
		if k >= 63 {
			out = append(out, math.MaxInt64)
			continue
		}
		out = append(out, int64(1)<<k-1, 1)
	}
	return out
}

func TestIntFormatRoundTrip(t *testing.T) {
	formats := map[string]IntFormat{
		"Uint4to32":          Uint4to32,
		"EntityIDFormat":     EntityIDFormat,
		"TickFormat":         TickFormat,
		"StringLengthFormat": StringLengthFormat,
		"SmallSigned":        SmallSigned,
		"single":             MustFormat(false, 7),
		"signed-single":      MustFormat(true, 12),
		"wide":               MustFormat(true, 1, 33, 64),
		"wide-unsigned":      MustFormat(false, 2, 64),
	}
	for name, f := range formats {
		t.Run(name, func(t *testing.T) {
			values := edgeValues(f)
			var buf bytes.Buffer
			w := NewWriter(&buf)
			// Interleave a stray bit so formats are exercised unaligned.
			for _, v := range values {
				w.WriteBool(true)
				w.WriteFormat(f, v)
			}
			w.Align()
			if err := w.Err(); err != nil {
				t.Fatalf("write: %v", err)
			}
			r := NewReader(bytes.NewReader(buf.Bytes()))
			for _, want := range values {
				if b, _ := r.ReadBool(); !b {
					t.Fatalf("lost sync before %d", want)
				}
				got, err := r.ReadFormat(f)
				if err != nil {
					t.Fatalf("read %d: %v", want, err)
				}
				if got != want {
					t.Fatalf("decode(encode(%d)) = %d", want, got)
				}
			}
		})
	}
}

func TestIntFormatBreakpointSelection(t *testing.T) {
	cases := []struct {
		f     IntFormat
		v     int64
		wantP int
	}{
		{Uint4to32, 0, 0},
		{Uint4to32, 15, 0},
		{Uint4to32, 16, 1},
		{Uint4to32, 1 << 31, 4},
		{TickFormat, 0, 0},
		{TickFormat, -1, 0},
		{TickFormat, -128, 0},
		{TickFormat, 128, 1},
		{SmallSigned, 7, 0},
		{SmallSigned, 8, 1},
	}
	for _, c := range cases {
		p, err := c.f.Breakpoint(c.v)
		if err != nil {
			t.Fatalf("Breakpoint(%d): %v", c.v, err)
		}
		if p != c.wantP {
			t.Fatalf("Breakpoint(%d) = %d, want %d", c.v, p, c.wantP)
		}
	}
}

func TestIntFormatEncodedLength(t *testing.T) {
	// Last breakpoint omits the terminating zero: 4 ones + 32 bits.
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteFormat(Uint4to32, 1<<31)
	w.Align()
	if got := buf.Len(); got != 5 {
		t.Fatalf("encoded length = %d bytes, want 5", got)
	}

	buf.Reset()
	w = NewWriter(&buf)
	w.WriteFormat(Uint4to32, 9) // "0" + 4 bits
	if w.n != 5 {
		t.Fatalf("pending bits = %d, want 5", w.n)
	}
}

func TestIntFormatOverflow(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteFormat(StringLengthFormat, 1<<16)
	if !errors.Is(w.Err(), ErrOverflow) {
		t.Fatalf("err = %v, want ErrOverflow", w.Err())
	}
	w = NewWriter(&buf)
	w.WriteFormat(Uint4to32, -1)
	if !errors.Is(w.Err(), ErrOverflow) {
		t.Fatalf("err = %v, want ErrOverflow", w.Err())
	}
}

func TestStringsFloatsAndBlobs(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteBool(false)
	w.WriteString("héllo arena")
	w.WriteFloat32(-12.625)
	w.WriteBytes([]byte{0, 1, 2, 255})
	w.WriteString("")
	w.Align()

	r := NewReader(bytes.NewReader(buf.Bytes()))
	if b, _ := r.ReadBool(); b {
		t.Fatalf("ReadBool = true, want false")
	}
	if s, err := r.ReadString(); err != nil || s != "héllo arena" {
		t.Fatalf("ReadString = %q, %v", s, err)
	}
	if f, _ := r.ReadFloat32(); f != -12.625 {
		t.Fatalf("ReadFloat32 = %v, want -12.625", f)
	}
	if b, _ := r.ReadBytes(); !bytes.Equal(b, []byte{0, 1, 2, 255}) {
		t.Fatalf("ReadBytes = %v", b)
	}
	if s, err := r.ReadString(); err != nil || s != "" {
		t.Fatalf("empty ReadString = %q, %v", s, err)
	}
}

func TestReadStringRejectsInvalidUTF8(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteBytes([]byte{0xff, 0xfe})
	w.Align()
	r := NewReader(bytes.NewReader(buf.Bytes()))
	if _, err := r.ReadString(); !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("err = %v, want ErrInvalidUTF8", err)
	}
}
