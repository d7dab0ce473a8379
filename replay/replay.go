// Package replay records the snapshots of a match to a file and reads them
// back. A replay is a magic string, a length-prefixed msgpack header and a
// sequence of length-prefixed records, each a protobuf-wire message with
// field 1 the tick and field 2 the full snapshot in the bit codec.
package replay

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/protobuf/encoding/protowire"

	"arenagame/bitstream"
	"arenagame/world"
)

var magic = [8]byte{'A', 'R', 'E', 'N', 'A', 'R', 'P', 'L'}

const (
	fieldTick     protowire.Number = 1
	fieldSnapshot protowire.Number = 2

	maxHeaderSize = 1 << 20
	maxRecordSize = 1 << 24
)

var (
	ErrNotReplay  = errors.New("not a replay file")
	ErrBadRecord  = errors.New("malformed replay record")
	ErrTooLarge   = errors.New("replay section too large")
	ErrTickDiffer = errors.New("record tick does not match snapshot")
)

type Player struct {
	Username string         `msgpack:"username"`
	Team     uint8          `msgpack:"team"`
	Champion int16          `msgpack:"champion"`
	EntityID world.EntityID `msgpack:"entity_id"`
}

type Header struct {
	MatchID   string    `msgpack:"match_id"`
	Map       string    `msgpack:"map"`
	TickDelta float64   `msgpack:"tick_delta"`
	Started   time.Time `msgpack:"started"`
	Roster    []Player  `msgpack:"roster"`
}

type Recorder struct {
	w      *bufio.Writer
	closer io.Closer
	buf    bytes.Buffer
	record []byte
	count  int
}

// NewRecorder writes the header to w. Records are buffered until Close.
func NewRecorder(w io.Writer, h Header) (*Recorder, error) {
	header, err := msgpack.Marshal(&h)
	if err != nil {
		return nil, fmt.Errorf("encode replay header: %w", err)
	}
	r := &Recorder{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	if _, err := r.w.Write(magic[:]); err != nil {
		return nil, err
	}
	if _, err := r.w.Write(protowire.AppendBytes(nil, header)); err != nil {
		return nil, err
	}
	return r, nil
}

// Create starts a replay file named after the match in dir.
func Create(dir string, h Header) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(filepath.Join(dir, h.MatchID+".replay"))
	if err != nil {
		return nil, err
	}
	r, err := NewRecorder(f, h)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// Record appends s in full.
func (r *Recorder) Record(s *world.Snapshot) error {
	r.buf.Reset()
	w := bitstream.NewWriter(&r.buf)
	if err := world.EncodeSnapshot(w, s, nil); err != nil {
		return err
	}
	w.Align()
	if err := w.Err(); err != nil {
		return err
	}

	rec := r.record[:0]
	rec = protowire.AppendTag(rec, fieldTick, protowire.VarintType)
	rec = protowire.AppendVarint(rec, uint64(s.Tick))
	rec = protowire.AppendTag(rec, fieldSnapshot, protowire.BytesType)
	rec = protowire.AppendBytes(rec, r.buf.Bytes())
	r.record = rec

	if _, err := r.w.Write(protowire.AppendVarint(nil, uint64(len(rec)))); err != nil {
		return err
	}
	if _, err := r.w.Write(rec); err != nil {
		return err
	}
	r.count++
	return nil
}

func (r *Recorder) Count() int {
	return r.count
}

func (r *Recorder) Close() error {
	err := r.w.Flush()
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

type Reader struct {
	r      *bufio.Reader
	closer io.Closer
	header Header
}

func NewReader(rd io.Reader) (*Reader, error) {
	r := &Reader{r: bufio.NewReader(rd)}
	if c, ok := rd.(io.Closer); ok {
		r.closer = c
	}
	var m [8]byte
	if _, err := io.ReadFull(r.r, m[:]); err != nil || m != magic {
		return nil, ErrNotReplay
	}
	header, err := r.section(maxHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("read replay header: %w", err)
	}
	if err := msgpack.Unmarshal(header, &r.header); err != nil {
		return nil, fmt.Errorf("decode replay header: %w", err)
	}
	return r, nil
}

func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next snapshot, or io.EOF after the last one.
func (r *Reader) Next() (*world.Snapshot, error) {
	rec, err := r.section(maxRecordSize)
	if err != nil {
		return nil, err
	}

	tick := world.NilTick
	var body []byte
	for len(rec) > 0 {
		num, typ, n := protowire.ConsumeTag(rec)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrBadRecord, protowire.ParseError(n))
		}
		rec = rec[n:]
		switch {
		case num == fieldTick && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(rec)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrBadRecord, protowire.ParseError(n))
			}
			tick = world.Tick(v)
			rec = rec[n:]
		case num == fieldSnapshot && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(rec)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrBadRecord, protowire.ParseError(n))
			}
			body = v
			rec = rec[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, rec)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrBadRecord, protowire.ParseError(n))
			}
			rec = rec[n:]
		}
	}
	if body == nil {
		return nil, fmt.Errorf("%w: no snapshot", ErrBadRecord)
	}
	s, err := world.DecodeSnapshot(bitstream.NewReader(bytes.NewReader(body)), nil)
	if err != nil {
		return nil, err
	}
	if s.Tick != tick {
		return nil, fmt.Errorf("%w: %d vs %d", ErrTickDiffer, tick, s.Tick)
	}
	return s, nil
}

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// section reads a varint length followed by that many bytes. A clean end
// of input before the length is io.EOF.
func (r *Reader) section(max uint64) ([]byte, error) {
	size, err := binary.ReadUvarint(r.r)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: %v", ErrBadRecord, err)
	}
	if size > max {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, size)
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRecord, err)
	}
	return b, nil
}
