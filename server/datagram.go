package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"arenagame/protocol"
)

const (
	codeNormal   quic.ApplicationErrorCode = 0
	codeProtocol quic.ApplicationErrorCode = 1
	codeToken    quic.ApplicationErrorCode = 2
)

// DatagramServer accepts QUIC connections for the simulation channel. A
// connection is bound to the session whose token arrives in its first
// datagram.
type DatagramServer struct {
	ln       *quic.Listener
	sessions *Sessions
}

func ListenDatagrams(addr string, tlsConf *tls.Config, sessions *Sessions) (*DatagramServer, error) {
	ln, err := quic.ListenAddr(addr, tlsConf, &quic.Config{
		EnableDatagrams: true,
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return &DatagramServer{ln: ln, sessions: sessions}, nil
}

func (d *DatagramServer) Addr() net.Addr {
	return d.ln.Addr()
}

func (d *DatagramServer) Close() error {
	return d.ln.Close()
}

func (d *DatagramServer) Serve(ctx context.Context) error {
	for {
		conn, err := d.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				return nil
			}
			return err
		}
		go d.handle(conn)
	}
}

func (d *DatagramServer) handle(conn quic.Connection) {
	ctx := conn.Context()
	first, err := conn.ReceiveDatagram(ctx)
	if err != nil {
		return
	}
	var dg protocol.ClientDatagram
	if err := dg.UnmarshalBinary(first); err != nil {
		log.Printf("datagram %v: %v", conn.RemoteAddr(), err)
		conn.CloseWithError(codeProtocol, "bad datagram")
		return
	}
	s := d.sessions.ByToken(dg.Token)
	if s == nil || !s.bind() {
		conn.CloseWithError(codeToken, "unknown token")
		return
	}
	defer s.unbind()
	log.Printf("datagram %v: bound to %s", conn.RemoteAddr(), s.Username)

	go d.write(conn, s)
	deliver(s, dg)
	for {
		b, err := conn.ReceiveDatagram(ctx)
		if err != nil {
			return
		}
		var dg protocol.ClientDatagram
		if err := dg.UnmarshalBinary(b); err != nil {
			log.Printf("datagram %s: %v", s.Username, err)
			conn.CloseWithError(codeProtocol, "bad datagram")
			return
		}
		if dg.Token != s.Token {
			log.Printf("datagram %s: token %d on a connection bound to %d", s.Username, dg.Token, s.Token)
			conn.CloseWithError(codeToken, "token mismatch")
			return
		}
		deliver(s, dg)
	}
}

func deliver(s *Session, dg protocol.ClientDatagram) {
	if m := s.Match(); m != nil {
		m.Deliver(s.Token, dg)
	}
}

// write drains the session's datagram queue. Payloads too large for one
// datagram go out on a one-shot unidirectional stream.
func (d *DatagramServer) write(conn quic.Connection, s *Session) {
	ctx := conn.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.Done():
			conn.CloseWithError(codeNormal, "session closed")
			return
		case b := <-s.Datagrams():
			err := sendPayload(conn, b)
			if err != nil {
				log.Printf("datagram %s: %v", s.Username, err)
				return
			}
		}
	}
}

func sendPayload(conn quic.Connection, b []byte) error {
	if len(b) <= protocol.MaxDatagramSize {
		err := conn.SendDatagram(b)
		var tooLarge *quic.DatagramTooLargeError
		if !errors.As(err, &tooLarge) {
			return err
		}
	}
	stream, err := conn.OpenUniStream()
	if err != nil {
		return err
	}
	if _, err := stream.Write(b); err != nil {
		return err
	}
	return stream.Close()
}
