package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MessageType tags a control channel frame.
type MessageType int8

// FrameHeaderSize is [Len:2][Type:1].
const FrameHeaderSize = 3

const MaxPayload = 1<<16 - 1

// WriteFrame writes {length:uint16, typeId:int8, payload}.
func WriteFrame(w io.Writer, t MessageType, payload []byte) error {
	if len(payload) > MaxPayload {
		return Fault("write frame", ErrPayloadTooBig)
	}
	var header [FrameHeaderSize]byte
	binary.BigEndian.PutUint16(header[0:2], uint16(len(payload)))
	header[2] = byte(t)
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// ReadFrame reads one frame. A stream that ends inside a frame is a
// protocol fault; a stream that ends between frames returns io.EOF.
func ReadFrame(r io.Reader) (MessageType, []byte, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return 0, nil, Fault("read frame header", err)
		}
		return 0, nil, err
	}
	n := binary.BigEndian.Uint16(header[0:2])
	t := MessageType(int8(header[2]))
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, nil, Fault(fmt.Sprintf("read frame payload (type %d)", t), io.ErrUnexpectedEOF)
		}
		return 0, nil, err
	}
	return t, payload, nil
}
