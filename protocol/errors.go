package protocol

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// ProtocolFault marks malformed or invalid input. The offending
// connection is always closed and the operation is never retried.
type ProtocolFault struct {
	Op  string
	Err error
}

func (e *ProtocolFault) Error() string {
	return fmt.Sprintf("protocol fault: %s: %v", e.Op, e.Err)
}

func (e *ProtocolFault) Unwrap() error {
	return e.Err
}

// Fault wraps err as a ProtocolFault unless it already is one.
func Fault(op string, err error) error {
	if err == nil {
		return nil
	}
	var pf *ProtocolFault
	if errors.As(err, &pf) {
		return err
	}
	return &ProtocolFault{Op: op, Err: err}
}

func IsProtocolFault(err error) bool {
	var pf *ProtocolFault
	return errors.As(err, &pf)
}

var (
	ErrBadMagic       = errors.New("handshake magic mismatch")
	ErrBadVersion     = errors.New("protocol version mismatch")
	ErrUnknownMessage = errors.New("unknown message type")
	ErrPayloadTooBig  = errors.New("payload exceeds 65535 bytes")
	ErrInvalidEnum    = errors.New("invalid enum tag")
	ErrZeroToken      = errors.New("session token must be nonzero")
)

// Transport fault categories shown to the player.
const (
	CategoryTimeout = "timeout"
	CategoryRefused = "refused"
	CategoryReset   = "reset"
	CategoryDNS     = "dns"
	CategoryClosed  = "closed"
	CategoryOther   = "other"
)

// TransportFault is a socket level failure. It is reported to the user and
// never retried by the core.
type TransportFault struct {
	Category string
	Err      error
}

func (e *TransportFault) Error() string {
	return fmt.Sprintf("connection %s: %v", e.Category, e.Err)
}

func (e *TransportFault) Unwrap() error {
	return e.Err
}

// Message returns a human readable description of the fault.
func (e *TransportFault) Message() string {
	switch e.Category {
	case CategoryTimeout:
		return "The server did not respond in time."
	case CategoryRefused:
		return "The server refused the connection. It may be offline."
	case CategoryReset:
		return "The connection was reset by the server."
	case CategoryDNS:
		return "The server address could not be resolved."
	case CategoryClosed:
		return "The connection was closed."
	default:
		return "A network error occurred."
	}
}

// ClassifyTransport categorises err. Protocol faults and nil are not
// transport faults and yield nil.
func ClassifyTransport(err error) *TransportFault {
	if err == nil || IsProtocolFault(err) {
		return nil
	}
	var tf *TransportFault
	if errors.As(err, &tf) {
		return tf
	}
	category := CategoryOther
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.As(err, &dnsErr):
		category = CategoryDNS
	case errors.Is(err, os.ErrDeadlineExceeded):
		category = CategoryTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		category = CategoryTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		category = CategoryRefused
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		category = CategoryReset
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		category = CategoryClosed
	}
	return &TransportFault{Category: category, Err: err}
}
