package protocol

import (
	"bytes"
	"encoding"
	"fmt"

	"arenagame/bitstream"
)

// CommandKind is the 4-bit command tag of a client datagram.
type CommandKind uint8

const (
	CommandNone CommandKind = iota
	CommandMove
	CommandAttack
)

func (k CommandKind) String() string {
	switch k {
	case CommandNone:
		return "none"
	case CommandMove:
		return "move"
	case CommandAttack:
		return "attack"
	default:
		return fmt.Sprintf("CommandKind(%d)", uint8(k))
	}
}

// NoTick marks an absent tick on the wire.
const NoTick int64 = -1

// ALPN is the TLS protocol name of the simulation channel.
const ALPN = "arena-sim"

// MaxDatagramSize is the largest payload sent as a single datagram.
// Larger server payloads go over a one-shot stream instead.
const MaxDatagramSize = 1150

// DatagramCommand is the latest player command, resent until acknowledged.
type DatagramCommand struct {
	Seq      uint16
	Kind     CommandKind
	X, Y     float32
	TargetID uint32
}

// ClientDatagram is {token:16, lastAckedTick, cmdSeq:12, cmdKind:4, payload}.
type ClientDatagram struct {
	Token     uint16
	AckedTick int64
	Command   DatagramCommand
}

var (
	_ encoding.BinaryMarshaler   = (*ClientDatagram)(nil)
	_ encoding.BinaryUnmarshaler = (*ClientDatagram)(nil)
)

func (d *ClientDatagram) MarshalBinary() ([]byte, error) {
	if d.Token == 0 {
		return nil, ErrZeroToken
	}
	var buf bytes.Buffer
	w := bitstream.NewWriter(&buf)
	w.WriteInt(uint64(d.Token), 16)
	w.WriteFormat(bitstream.TickFormat, d.AckedTick)
	w.WriteInt(uint64(d.Command.Seq&SeqMask), SeqBits)
	w.WriteInt(uint64(d.Command.Kind), 4)
	switch d.Command.Kind {
	case CommandNone:
	case CommandMove:
		w.WriteFloat32(d.Command.X)
		w.WriteFloat32(d.Command.Y)
	case CommandAttack:
		w.WriteFormat(bitstream.EntityIDFormat, int64(d.Command.TargetID))
	default:
		return nil, fmt.Errorf("%w: command kind %d", ErrInvalidEnum, d.Command.Kind)
	}
	w.Align()
	if err := w.Err(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *ClientDatagram) UnmarshalBinary(b []byte) error {
	r := bitstream.NewReader(bytes.NewReader(b))
	f := fields{r: r}
	d.Token = uint16(f.unsigned(16))
	if f.err == nil {
		d.AckedTick, f.err = r.ReadFormat(bitstream.TickFormat)
	}
	d.Command.Seq = uint16(f.unsigned(SeqBits))
	d.Command.Kind = CommandKind(f.unsigned(4))
	if f.err != nil {
		return Fault("decode client datagram", f.err)
	}
	if d.Token == 0 {
		return Fault("decode client datagram", ErrZeroToken)
	}
	switch d.Command.Kind {
	case CommandNone:
	case CommandMove:
		var err error
		if d.Command.X, err = r.ReadFloat32(); err != nil {
			return Fault("decode move", err)
		}
		if d.Command.Y, err = r.ReadFloat32(); err != nil {
			return Fault("decode move", err)
		}
	case CommandAttack:
		id, err := r.ReadFormat(bitstream.EntityIDFormat)
		if err != nil {
			return Fault("decode attack", err)
		}
		d.Command.TargetID = uint32(id)
	default:
		return Fault("decode client datagram", fmt.Errorf("%w: command kind %d", ErrInvalidEnum, d.Command.Kind))
	}
	return nil
}

// WriteServerHeader writes {lastCommandSeq:12, deltaBaselineTick}. The
// snapshot diff follows and the datagram is aligned at the end.
func WriteServerHeader(w *bitstream.Writer, lastSeq uint16, baselineTick int64) {
	w.WriteInt(uint64(lastSeq&SeqMask), SeqBits)
	w.WriteFormat(bitstream.TickFormat, baselineTick)
}

// ReadServerHeader reads the header written by WriteServerHeader.
func ReadServerHeader(r *bitstream.Reader) (lastSeq uint16, baselineTick int64, err error) {
	seq, err := r.ReadInt(SeqBits)
	if err != nil {
		return 0, 0, Fault("decode server datagram", err)
	}
	baselineTick, err = r.ReadFormat(bitstream.TickFormat)
	if err != nil {
		return 0, 0, Fault("decode server datagram", err)
	}
	return uint16(seq), baselineTick, nil
}
