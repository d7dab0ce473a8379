package client

import (
	"context"
	"crypto/tls"
	"io"
	"time"

	"github.com/quic-go/quic-go"

	"arenagame/protocol"
)

// maxStreamPayload bounds a snapshot that arrives on a fallback stream.
const maxStreamPayload = 1 << 20

// DatagramConn is the client side of the simulation channel. Payloads
// arrive either as QUIC datagrams or, when too large, on one-shot
// unidirectional streams; both land in Incoming.
type DatagramConn struct {
	conn quic.Connection
	in   chan []byte
}

// DialDatagrams connects to the simulation channel. The server binds the
// connection to a session by the token of the first datagram sent.
func DialDatagrams(ctx context.Context, addr string, insecure bool) (*DatagramConn, error) {
	tlsConf := &tls.Config{
		InsecureSkipVerify: insecure,
		NextProtos:         []string{protocol.ALPN},
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConf, &quic.Config{
		EnableDatagrams: true,
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 5 * time.Second,
	})
	if err != nil {
		return nil, transportError(err)
	}
	d := &DatagramConn{conn: conn, in: make(chan []byte, 64)}
	go d.readDatagrams()
	go d.readStreams()
	return d, nil
}

// Incoming delivers received payloads. Payloads are dropped when the
// frame loop falls behind; the next snapshot supersedes them.
func (d *DatagramConn) Incoming() <-chan []byte {
	return d.in
}

func (d *DatagramConn) Done() <-chan struct{} {
	return d.conn.Context().Done()
}

func (d *DatagramConn) Send(dg protocol.ClientDatagram) error {
	b, err := dg.MarshalBinary()
	if err != nil {
		return err
	}
	return d.conn.SendDatagram(b)
}

func (d *DatagramConn) Close() error {
	return d.conn.CloseWithError(0, "bye")
}

func (d *DatagramConn) push(b []byte) {
	select {
	case d.in <- b:
	default:
	}
}

func (d *DatagramConn) readDatagrams() {
	ctx := d.conn.Context()
	for {
		b, err := d.conn.ReceiveDatagram(ctx)
		if err != nil {
			return
		}
		d.push(b)
	}
}

func (d *DatagramConn) readStreams() {
	ctx := d.conn.Context()
	for {
		stream, err := d.conn.AcceptUniStream(ctx)
		if err != nil {
			return
		}
		b, err := io.ReadAll(io.LimitReader(stream, maxStreamPayload))
		if err != nil {
			continue
		}
		d.push(b)
	}
}
