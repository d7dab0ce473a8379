package protocol

import (
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"arenagame/bitstream"
)

func TestIsStaleWindow(t *testing.T) {
	for last := 0; last <= SeqMask; last++ {
		for seq := 0; seq <= SeqMask; seq++ {
			want := ((seq-last-1)&0xFFF)&0x800 != 0
			if got := IsStale(uint16(seq), uint16(last)); got != want {
				t.Fatalf("IsStale(%d, %d) = %v, want %v", seq, last, got, want)
			}
		}
		if !IsStale(uint16(last), uint16(last)) {
			t.Fatalf("IsStale(%d, %d) = false, want true", last, last)
		}
		if IsStale(NextSeq(uint16(last)), uint16(last)) {
			t.Fatalf("IsStale(%d+1, %d) = true, want false", last, last)
		}
	}
}

func TestIsStaleWraparound(t *testing.T) {
	if IsStale(0, 4095) {
		t.Fatalf("seq 0 after 4095 should be fresh")
	}
	if !IsStale(4095, 0) {
		t.Fatalf("seq 4095 after 0 should be stale")
	}
	if NextSeq(4095) != 0 {
		t.Fatalf("NextSeq(4095) = %d, want 0", NextSeq(4095))
	}
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, MsgNotice, []byte("abc")); err != nil {
		t.Fatal(err)
	}
	if err := WriteFrame(&buf, MsgLobbyLeave, nil); err != nil {
		t.Fatal(err)
	}
	if got := buf.Bytes()[:FrameHeaderSize]; !bytes.Equal(got, []byte{0, 3, byte(MsgNotice)}) {
		t.Fatalf("header = %v", got)
	}

	typ, payload, err := ReadFrame(&buf)
	if err != nil || typ != MsgNotice || string(payload) != "abc" {
		t.Fatalf("ReadFrame = %d, %q, %v", typ, payload, err)
	}
	typ, payload, err = ReadFrame(&buf)
	if err != nil || typ != MsgLobbyLeave || len(payload) != 0 {
		t.Fatalf("ReadFrame = %d, %q, %v", typ, payload, err)
	}
	if _, _, err := ReadFrame(&buf); err != io.EOF {
		t.Fatalf("ReadFrame at end = %v, want io.EOF", err)
	}
}

func TestTruncatedFrameIsProtocolFault(t *testing.T) {
	for _, b := range [][]byte{{0}, {0, 5, 1, 'a'}} {
		if _, _, err := ReadFrame(bytes.NewReader(b)); !IsProtocolFault(err) {
			t.Fatalf("ReadFrame(%v) err = %v, want protocol fault", b, err)
		}
	}
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	err := WriteFrame(io.Discard, MsgNotice, make([]byte, MaxPayload+1))
	if !errors.Is(err, ErrPayloadTooBig) || !IsProtocolFault(err) {
		t.Fatalf("err = %v, want ErrPayloadTooBig fault", err)
	}
}

func TestHandshake(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	errc := make(chan error, 1)
	go func() { errc <- ServerHandshake(a) }()
	if err := ClientHandshake(b); err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("server handshake: %v", err)
	}
}

func TestHandshakeMismatch(t *testing.T) {
	cases := []struct {
		name    string
		magic   [8]byte
		version uint32
		want    error
	}{
		{"magic", ServerMagic, Version, ErrBadMagic},
		{"version", ClientMagic, Version + 1, ErrBadVersion},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			a, b := net.Pipe()
			defer a.Close()
			defer b.Close()
			go Handshake(b, c.magic, ServerMagic, c.version)
			err := ServerHandshake(a)
			if !errors.Is(err, c.want) || !IsProtocolFault(err) {
				t.Fatalf("err = %v, want %v fault", err, c.want)
			}
		})
	}
}

func TestLoginResponseOptionalFields(t *testing.T) {
	ok := &LoginResponse{Success: true, Message: "welcome", Username: "ana", SessionToken: 0xBEEF}
	payload, err := Marshal(ok)
	if err != nil {
		t.Fatal(err)
	}
	m, err := DecodeServerMessage(MsgLoginResponse, payload)
	if err != nil {
		t.Fatal(err)
	}
	if got := *m.(*LoginResponse); got != *ok {
		t.Fatalf("decoded %+v, want %+v", got, *ok)
	}

	fail := &LoginResponse{Message: "bad credentials", Username: "ignored", SessionToken: 9}
	payload, _ = Marshal(fail)
	m, err = DecodeServerMessage(MsgLoginResponse, payload)
	if err != nil {
		t.Fatal(err)
	}
	got := m.(*LoginResponse)
	if got.Success || got.Username != "" || got.SessionToken != 0 || got.Message != "bad credentials" {
		t.Fatalf("failure response decoded as %+v", got)
	}
}

func TestDirectionalPayloads(t *testing.T) {
	payload, err := Marshal(&ChatSend{RoomID: -7, Message: "gl hf"})
	if err != nil {
		t.Fatal(err)
	}
	m, err := DecodeClientMessage(MsgChatMessage, payload)
	if err != nil {
		t.Fatal(err)
	}
	if got := m.(*ChatSend); got.RoomID != -7 || got.Message != "gl hf" {
		t.Fatalf("decoded %+v", got)
	}

	if _, err := DecodeClientMessage(MsgGameStartLoad, nil); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("client decoding a server-only message: err = %v", err)
	}
	if _, err := DecodeServerMessage(MsgChatMessage, payload[:1]); !IsProtocolFault(err) {
		t.Fatalf("truncated payload err = %v, want protocol fault", err)
	}
}

func TestGameStartLoadSlot(t *testing.T) {
	start := &GameStartLoad{
		YourTeam: 2,
		Teams: [2][]RosterEntry{
			{{Username: "a", ChampionID: 1}},
			{{Username: "b", ChampionID: 2}, {Username: "c", ChampionID: 3}},
		},
	}
	payload, err := Marshal(start)
	if err != nil {
		t.Fatal(err)
	}
	m, err := DecodeServerMessage(MsgGameStartLoad, payload)
	if err != nil {
		t.Fatal(err)
	}
	got := m.(*GameStartLoad)
	if got.Slot("c") != 1 || got.Slot("a") != -1 {
		t.Fatalf("Slot(c) = %d, Slot(a) = %d; want 1, -1", got.Slot("c"), got.Slot("a"))
	}
	if len(got.Teams[0]) != 1 || got.Teams[1][0].ChampionID != 2 {
		t.Fatalf("teams = %+v", got.Teams)
	}
}

func TestClientDatagram(t *testing.T) {
	cases := []ClientDatagram{
		{Token: 1, AckedTick: NoTick, Command: DatagramCommand{Seq: 0, Kind: CommandNone}},
		{Token: 0xFFFF, AckedTick: 123456, Command: DatagramCommand{Seq: 4095, Kind: CommandMove, X: 10.5, Y: -3}},
		{Token: 42, AckedTick: 7, Command: DatagramCommand{Seq: 17, Kind: CommandAttack, TargetID: 900}},
	}
	for _, want := range cases {
		b, err := want.MarshalBinary()
		if err != nil {
			t.Fatal(err)
		}
		var got ClientDatagram
		if err := got.UnmarshalBinary(b); err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("decoded %+v, want %+v", got, want)
		}
	}
}

func TestClientDatagramFaults(t *testing.T) {
	if _, err := (&ClientDatagram{}).MarshalBinary(); !errors.Is(err, ErrZeroToken) {
		t.Fatalf("zero token err = %v", err)
	}

	var buf bytes.Buffer
	w := bitstream.NewWriter(&buf)
	w.WriteInt(5, 16)
	w.WriteFormat(bitstream.TickFormat, 1)
	w.WriteInt(1, SeqBits)
	w.WriteInt(9, 4)
	w.Align()
	var d ClientDatagram
	if err := d.UnmarshalBinary(buf.Bytes()); !errors.Is(err, ErrInvalidEnum) || !IsProtocolFault(err) {
		t.Fatalf("invalid kind err = %v", err)
	}

	b, _ := (&ClientDatagram{Token: 3, Command: DatagramCommand{Kind: CommandMove, X: 1, Y: 2}}).MarshalBinary()
	if err := d.UnmarshalBinary(b[:len(b)-2]); !IsProtocolFault(err) {
		t.Fatalf("truncated err = %v, want protocol fault", err)
	}
}

func TestServerHeader(t *testing.T) {
	var buf bytes.Buffer
	w := bitstream.NewWriter(&buf)
	WriteServerHeader(w, 0xABC, NoTick)
	w.Align()
	seq, base, err := ReadServerHeader(bitstream.NewReader(bytes.NewReader(buf.Bytes())))
	if err != nil || seq != 0xABC || base != NoTick {
		t.Fatalf("ReadServerHeader = %#x, %d, %v", seq, base, err)
	}
}

func TestConnExchangesMessages(t *testing.T) {
	a, b := net.Pipe()
	cfg := DefaultConnConfig()
	cfg.FlushInterval = 5 * time.Millisecond
	server := NewConn(a, cfg, DecodeClientMessage)
	client := NewConn(b, cfg, DecodeServerMessage)
	server.Start()
	client.Start()
	defer server.Close()
	defer client.Close()

	if !client.SendAndFlush(&Login{Username: "ana", EncryptedPassword: []byte{1, 2}}) {
		t.Fatalf("client send failed")
	}
	select {
	case m := <-server.Incoming():
		login, ok := m.(*Login)
		if !ok || login.Username != "ana" || !bytes.Equal(login.EncryptedPassword, []byte{1, 2}) {
			t.Fatalf("server got %#v", m)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for login")
	}

	// No explicit flush: the writer's timeout flush delivers it.
	server.Send(&Notice{Message: "hi"})
	select {
	case m := <-client.Incoming():
		if n, ok := m.(*Notice); !ok || n.Message != "hi" {
			t.Fatalf("client got %#v", m)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for timeout flush")
	}
}

func TestConnClosesOnProtocolFault(t *testing.T) {
	a, b := net.Pipe()
	server := NewConn(a, DefaultConnConfig(), DecodeClientMessage)
	server.Start()
	defer b.Close()

	go WriteFrame(b, MessageType(99), nil)

	select {
	case <-server.Done():
	case <-time.After(time.Second):
		t.Fatalf("connection not closed after unknown message")
	}
	if !IsProtocolFault(server.Err()) {
		t.Fatalf("Err() = %v, want protocol fault", server.Err())
	}
	if server.Send(&Notice{}) {
		t.Fatalf("Send succeeded on closed connection")
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyTransport(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, CategoryRefused},
		{&net.OpError{Op: "read", Err: syscall.ECONNRESET}, CategoryReset},
		{&net.DNSError{Name: "nowhere.invalid"}, CategoryDNS},
		{os.ErrDeadlineExceeded, CategoryTimeout},
		{timeoutErr{}, CategoryTimeout},
		{io.EOF, CategoryClosed},
		{errors.New("boom"), CategoryOther},
	}
	for _, c := range cases {
		tf := ClassifyTransport(c.err)
		if tf == nil || tf.Category != c.want {
			t.Fatalf("ClassifyTransport(%v) = %+v, want %s", c.err, tf, c.want)
		}
		if tf.Message() == "" {
			t.Fatalf("empty message for %s", c.want)
		}
	}
	if ClassifyTransport(Fault("x", io.EOF)) != nil {
		t.Fatalf("protocol faults are not transport faults")
	}
}
