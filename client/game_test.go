package client

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"arenagame/protocol"
	"arenagame/server"
	"arenagame/utils"
	"arenagame/world"
)

type fakeControl struct {
	done chan struct{}
}

func (c *fakeControl) SendAndFlush(protocol.Message) bool { return true }
func (c *fakeControl) Done() <-chan struct{}              { return c.done }

func listenDatagrams(t *testing.T, ctx context.Context, sessions *server.Sessions) *server.DatagramServer {
	t.Helper()
	tlsConf, err := server.SelfSignedTLS()
	if err != nil {
		t.Fatal(err)
	}
	ds, err := server.ListenDatagrams("127.0.0.1:0", tlsConf, sessions)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ds.Close() })
	go ds.Serve(ctx)
	return ds
}

func TestDatagramsAndStreamFallback(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sessions := server.NewSessions(8)
	sess, err := sessions.Open("ana", &fakeControl{done: make(chan struct{})})
	if err != nil {
		t.Fatal(err)
	}
	ds := listenDatagrams(t, ctx, sessions)

	d, err := DialDatagrams(ctx, ds.Addr().String(), true)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if err := d.Send(protocol.ClientDatagram{Token: sess.Token, AckedTick: protocol.NoTick}); err != nil {
		t.Fatal(err)
	}

	small := []byte("small payload")
	large := bytes.Repeat([]byte{7}, 3*protocol.MaxDatagramSize)
	sess.SendDatagram(small)
	sess.SendDatagram(large)

	var gotSmall, gotLarge bool
	for !gotSmall || !gotLarge {
		select {
		case b := <-d.Incoming():
			gotSmall = gotSmall || bytes.Equal(b, small)
			gotLarge = gotLarge || bytes.Equal(b, large)
		case <-ctx.Done():
			t.Fatalf("received small=%v large=%v", gotSmall, gotLarge)
		}
	}
}

func TestDatagramUnknownTokenClosed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ds := listenDatagrams(t, ctx, server.NewSessions(8))

	d, err := DialDatagrams(ctx, ds.Addr().String(), true)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if err := d.Send(protocol.ClientDatagram{Token: 999, AckedTick: protocol.NoTick}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-d.Done():
	case <-ctx.Done():
		t.Fatalf("connection with an unknown token stayed open")
	}
}

func TestDatagramBadInputClosesBoundConnection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sessions := server.NewSessions(8)
	bo, err := sessions.Open("bo", &fakeControl{done: make(chan struct{})})
	if err != nil {
		t.Fatal(err)
	}
	ds := listenDatagrams(t, ctx, sessions)

	foreign, err := (&protocol.ClientDatagram{Token: bo.Token, AckedTick: protocol.NoTick}).MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name    string
		payload []byte
	}{
		{"truncated", []byte{0x01, 0x02}},
		{"other session's token", foreign},
	}
	for _, tt := range tests {
		owner, err := sessions.Open("ana "+tt.name, &fakeControl{done: make(chan struct{})})
		if err != nil {
			t.Fatal(err)
		}
		d, err := DialDatagrams(ctx, ds.Addr().String(), true)
		if err != nil {
			t.Fatal(err)
		}
		if err := d.Send(protocol.ClientDatagram{Token: owner.Token, AckedTick: protocol.NoTick}); err != nil {
			t.Fatal(err)
		}
		// Wait for the bind so the bad datagram is not taken as the first one.
		owner.SendDatagram([]byte("bound"))
		select {
		case <-d.Incoming():
		case <-time.After(5 * time.Second):
			t.Fatalf("%s: connection never bound", tt.name)
		}

		if err := d.conn.SendDatagram(tt.payload); err != nil {
			t.Fatal(err)
		}
		select {
		case <-d.Done():
		case <-time.After(5 * time.Second):
			t.Fatalf("%s: connection stayed open after a bad datagram", tt.name)
		}
		d.Close()
	}
}

func TestBotPlaysMatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := utils.DefaultConfig()
	cfg.Sim.WaveSize = 0

	srv, err := server.NewServer(ctx, cfg, server.NewMemoryAccounts(), server.PlainCipher{})
	if err != nil {
		t.Fatal(err)
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	go srv.ServeControl(l)
	ds := listenDatagrams(t, ctx, srv.Sessions())
	cfg.Client.DatagramAddr = ds.Addr().String()

	conn, err := Dial(ctx, l.Addr().String(), protocol.DefaultConnConfig())
	if err != nil {
		t.Fatal(err)
	}
	g := NewGame(cfg, conn)
	defer g.Close()
	bot := NewBot("ana", 1, world.DefaultMap())
	bot.Start(g)

	deadline := time.Now().Add(15 * time.Second)
	for {
		if err := g.Update(frame); err != nil {
			t.Fatal(err)
		}
		bot.Frame(g)
		if self, ok := g.Self(); ok && bot.goal != (world.Point{}) && !g.Commands().Pending() {
			v, ok := g.Reconciler().Get(self)
			if ok && v.Team == world.TeamBlue && v.Kind == world.KindChampion {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("bot did not get into a match: token %d, load %v, in match %v",
				g.Token(), g.GameStart() != nil, g.InMatch())
		}
		time.Sleep(time.Second / 60)
	}
	if g.GameStart().YourTeam != uint8(world.TeamBlue) {
		t.Fatalf("YourTeam = %d", g.GameStart().YourTeam)
	}
}
