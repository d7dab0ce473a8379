package client

import (
	"bytes"
	"errors"
	"testing"

	"arenagame/bitstream"
	"arenagame/protocol"
	"arenagame/world"
)

func encode(t *testing.T, seq uint16, snap, base *world.Snapshot) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := bitstream.NewWriter(&buf)
	baseTick := protocol.NoTick
	if base != nil {
		baseTick = int64(base.Tick)
	}
	protocol.WriteServerHeader(w, seq, baseTick)
	if err := world.EncodeSnapshot(w, snap, base); err != nil {
		t.Fatal(err)
	}
	w.Align()
	if err := w.Err(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestStoreReceivesFullAndDelta(t *testing.T) {
	s := NewSnapshotStore(8)
	first := still(3, 1, 2)
	seq, got, err := s.Receive(encode(t, 7, first, nil))
	if err != nil {
		t.Fatal(err)
	}
	if seq != 7 || !got.Equal(first) {
		t.Fatalf("seq %d, snapshot %+v", seq, got)
	}

	second := still(4, 2, 5)
	_, got, err = s.Receive(encode(t, 8, second, first))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(second) {
		t.Fatalf("delta decoded to %+v", got)
	}
	if s.LatestTick() != 4 {
		t.Fatalf("latest = %d, want 4", s.LatestTick())
	}
}

func TestStoreDropsUnusableDatagrams(t *testing.T) {
	s := NewSnapshotStore(8)
	if s.LatestTick() != world.NilTick {
		t.Fatalf("empty store latest = %d", s.LatestTick())
	}
	base := still(3, 1)
	next := still(4, 1)
	if _, _, err := s.Receive(encode(t, 1, next, base)); !errors.Is(err, ErrMissingBaseline) {
		t.Fatalf("err = %v, want ErrMissingBaseline", err)
	}

	if _, _, err := s.Receive(encode(t, 1, next, nil)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Receive(encode(t, 1, base, nil)); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("err = %v, want ErrOutOfOrder", err)
	}
	if _, _, err := s.Receive([]byte{0xff}); !protocol.IsProtocolFault(err) {
		t.Fatalf("err = %v, want protocol fault", err)
	}
	if s.LatestTick() != 4 {
		t.Fatalf("rejected datagrams changed the store")
	}
}
