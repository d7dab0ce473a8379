package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Version is bumped on any incompatible wire change.
const Version uint32 = 3

var (
	ClientMagic = [8]byte{'A', 'R', 'E', 'N', 'A', 'C', 'L', 'I'}
	ServerMagic = [8]byte{'A', 'R', 'E', 'N', 'A', 'S', 'R', 'V'}
)

// Handshake sends local magic and version, then expects the peer's.
// Any mismatch is a protocol fault.
func Handshake(rw io.ReadWriter, local, remote [8]byte, version uint32) error {
	var out [12]byte
	copy(out[:8], local[:])
	binary.BigEndian.PutUint32(out[8:], version)

	// Write concurrently so unbuffered transports cannot deadlock with
	// both peers writing first.
	written := make(chan error, 1)
	go func() {
		_, err := rw.Write(out[:])
		written <- err
	}()

	var in [12]byte
	if _, err := io.ReadFull(rw, in[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Fault("handshake", err)
		}
		return err
	}
	if err := <-written; err != nil {
		return err
	}
	var magic [8]byte
	copy(magic[:], in[:8])
	if magic != remote {
		return Fault("handshake", fmt.Errorf("%w: got %q", ErrBadMagic, magic[:]))
	}
	if v := binary.BigEndian.Uint32(in[8:]); v != version {
		return Fault("handshake", fmt.Errorf("%w: got %d, want %d", ErrBadVersion, v, version))
	}
	return nil
}

// ServerHandshake runs the handshake from the server side.
func ServerHandshake(rw io.ReadWriter) error {
	return Handshake(rw, ServerMagic, ClientMagic, Version)
}

// ClientHandshake runs the handshake from the client side.
func ClientHandshake(rw io.ReadWriter) error {
	return Handshake(rw, ClientMagic, ServerMagic, Version)
}
