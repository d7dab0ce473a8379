package client

import (
	"bytes"
	"errors"
	"fmt"

	"arenagame/bitstream"
	"arenagame/protocol"
	"arenagame/world"
)

var (
	// ErrMissingBaseline means the datagram was diffed against a snapshot
	// this client no longer holds. The server sends a full snapshot on its
	// next safe interval tick.
	ErrMissingBaseline = errors.New("delta baseline not held")
	ErrOutOfOrder      = errors.New("snapshot older than the latest")
)

// SnapshotStore keeps recently decoded snapshots as delta baselines and as
// reconciliation input.
type SnapshotStore struct {
	history *world.History
}

func NewSnapshotStore(capacity int) *SnapshotStore {
	return &SnapshotStore{history: world.NewHistory(capacity)}
}

func (s *SnapshotStore) Latest() *world.Snapshot {
	return s.history.Latest()
}

// LatestTick is the tick to acknowledge, or NilTick before any snapshot.
func (s *SnapshotStore) LatestTick() world.Tick {
	if l := s.history.Latest(); l != nil {
		return l.Tick
	}
	return world.NilTick
}

func (s *SnapshotStore) Get(tick world.Tick) *world.Snapshot {
	return s.history.Get(tick)
}

func (s *SnapshotStore) After(tick world.Tick) *world.Snapshot {
	return s.history.After(tick)
}

func (s *SnapshotStore) AtOrBefore(tick world.Tick) *world.Snapshot {
	return s.history.AtOrBefore(tick)
}

// Add stores snap unless a snapshot at or after its tick is already held.
func (s *SnapshotStore) Add(snap *world.Snapshot) error {
	if l := s.history.Latest(); l != nil && snap.Tick <= l.Tick {
		return fmt.Errorf("%w: tick %d, latest %d", ErrOutOfOrder, snap.Tick, l.Tick)
	}
	s.history.Add(snap)
	return nil
}

// Receive decodes a server datagram against the held baseline and stores
// the result.
func (s *SnapshotStore) Receive(b []byte) (lastSeq uint16, snap *world.Snapshot, err error) {
	r := bitstream.NewReader(bytes.NewReader(b))
	lastSeq, baseline, err := protocol.ReadServerHeader(r)
	if err != nil {
		return 0, nil, err
	}
	var base *world.Snapshot
	if baseline != protocol.NoTick {
		base = s.history.Get(world.Tick(baseline))
		if base == nil {
			return lastSeq, nil, fmt.Errorf("%w: tick %d", ErrMissingBaseline, baseline)
		}
	}
	snap, err = world.DecodeSnapshot(r, base)
	if err != nil {
		return lastSeq, nil, protocol.Fault("decode snapshot", err)
	}
	if err := s.Add(snap); err != nil {
		return lastSeq, nil, err
	}
	return lastSeq, snap, nil
}
