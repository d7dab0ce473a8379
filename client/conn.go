package client

import (
	"context"
	"net"
	"time"

	"nhooyr.io/websocket"

	"arenagame/protocol"
)

// Dial opens a control connection over TCP and runs the handshake.
func Dial(ctx context.Context, addr string, cfg protocol.ConnConfig) (*protocol.Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, transportError(err)
	}
	return start(c, cfg)
}

// DialWebsocket opens a control connection through the server's websocket
// endpoint. ctx bounds the dial only.
func DialWebsocket(ctx context.Context, url string, cfg protocol.ConnConfig) (*protocol.Conn, error) {
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, transportError(err)
	}
	return start(websocket.NetConn(context.Background(), ws, websocket.MessageBinary), cfg)
}

func start(c net.Conn, cfg protocol.ConnConfig) (*protocol.Conn, error) {
	c.SetDeadline(time.Now().Add(5 * time.Second))
	if err := protocol.ClientHandshake(c); err != nil {
		c.Close()
		return nil, err
	}
	c.SetDeadline(time.Time{})
	conn := protocol.NewConn(c, cfg, protocol.DecodeServerMessage)
	conn.Start()
	return conn, nil
}

func transportError(err error) error {
	if tf := protocol.ClassifyTransport(err); tf != nil {
		return tf
	}
	return err
}
