package server

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/segmentio/ksuid"

	"arenagame/bitstream"
	"arenagame/protocol"
	"arenagame/replay"
	"arenagame/utils"
	"arenagame/world"
)

var ErrEmptyRoster = errors.New("roster has no players")

type MatchConfig struct {
	Rules           world.Rules
	BroadcastEvery  int
	SafeInterval    world.Tick
	HistoryCap      int
	MaxCatchupTicks int
	InboxSize       int
	ReplayDir       string
}

type inbound struct {
	token    uint16
	datagram protocol.ClientDatagram
}

type matchPlayer struct {
	session  *Session
	team     world.Team
	champion int16
	entity   world.EntityID
	send     world.SendState
	lastSeq  uint16
	hasSeq   bool
	gone     bool
}

// Match runs one game on its own goroutine. Everything but the inbox and
// the tick counter is owned by that goroutine.
type Match struct {
	ID      string
	cfg     MatchConfig
	world   *world.World
	history *world.History
	players map[uint16]*matchPlayer
	order   []*matchPlayer
	inbox   chan inbound
	replay  *replay.Recorder
	done    chan struct{}
	tick    atomic.Int64
	roster  Roster
}

func NewMatch(cfg MatchConfig, m *world.Map, champions world.Champions, roster Roster) (*Match, error) {
	if cfg.BroadcastEvery < 1 {
		cfg.BroadcastEvery = 1
	}
	if cfg.InboxSize < 1 {
		cfg.InboxSize = 1024
	}
	match := &Match{
		ID:      ksuid.New().String(),
		cfg:     cfg,
		world:   world.New(cfg.Rules, m, champions),
		history: world.NewHistory(cfg.HistoryCap),
		players: make(map[uint16]*matchPlayer),
		inbox:   make(chan inbound, cfg.InboxSize),
		done:    make(chan struct{}),
		roster:  roster,
	}
	match.tick.Store(int64(world.NilTick))

	var header []replay.Player
	for i, team := range roster.Teams {
		for _, slot := range team {
			t := world.TeamFromIndex(i)
			id, err := match.world.AddPlayer(t, slot.Champion)
			if err != nil {
				return nil, err
			}
			p := &matchPlayer{
				session:  slot.Session,
				team:     t,
				champion: slot.Champion,
				entity:   id,
				send:     world.NewSendState(),
			}
			match.players[slot.Session.Token] = p
			match.order = append(match.order, p)
			header = append(header, replay.Player{
				Username: slot.Session.Username,
				Team:     uint8(t),
				Champion: slot.Champion,
				EntityID: id,
			})
		}
	}
	if len(match.order) == 0 {
		return nil, ErrEmptyRoster
	}

	if cfg.ReplayDir != "" {
		rec, err := replay.Create(cfg.ReplayDir, replay.Header{
			MatchID:   match.ID,
			Map:       m.Name,
			TickDelta: cfg.Rules.TickDelta,
			Started:   time.Now(),
			Roster:    header,
		})
		if err != nil {
			log.Printf("match %s: replay disabled: %v", match.ID, err)
		} else {
			match.replay = rec
		}
	}
	return match, nil
}

// Deliver hands a datagram to the match without blocking. A full inbox
// drops it; the client resends its command until acknowledged.
func (m *Match) Deliver(token uint16, d protocol.ClientDatagram) bool {
	select {
	case m.inbox <- inbound{token: token, datagram: d}:
		return true
	default:
		return false
	}
}

func (m *Match) Done() <-chan struct{} {
	return m.done
}

func (m *Match) Tick() world.Tick {
	return world.Tick(m.tick.Load())
}

func (m *Match) Players() int {
	return len(m.order)
}

// GameStart builds the load message for a team.
func (m *Match) GameStart(team world.Team) *protocol.GameStartLoad {
	msg := &protocol.GameStartLoad{YourTeam: uint8(team)}
	for i, slots := range m.roster.Teams {
		for _, slot := range slots {
			msg.Teams[i] = append(msg.Teams[i], protocol.RosterEntry{
				Username:   slot.Session.Username,
				ChampionID: slot.Champion,
			})
		}
	}
	return msg
}

// Run steps the match at a fixed rate until every player has left or ctx is
// cancelled. When the loop falls more than MaxCatchupTicks behind, the
// missed ticks are dropped and the clock restarts from now.
func (m *Match) Run(ctx context.Context) {
	defer close(m.done)
	defer m.finish()
	log.Printf("match %s: started with %d players", m.ID, len(m.order))

	interval := utils.Seconds(m.cfg.Rules.TickDelta)
	maxBehind := time.Duration(m.cfg.MaxCatchupTicks) * interval
	next := time.Now()
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if !m.step() {
			return
		}
		next = next.Add(interval)
		if behind := time.Since(next); maxBehind > 0 && behind > maxBehind {
			log.Printf("match %s: %v behind, dropping ticks", m.ID, behind)
			next = time.Now()
		}
		timer.Reset(time.Until(next))
	}
}

// step runs one tick and reports whether the match goes on.
func (m *Match) step() bool {
	if !m.checkPlayers() {
		return false
	}
	m.drainInbox()
	m.world.Step()
	tick := m.world.Tick()
	m.tick.Store(int64(tick))
	if int(tick)%m.cfg.BroadcastEvery == 0 {
		m.broadcast()
	}
	return true
}

func (m *Match) checkPlayers() bool {
	present := 0
	for _, p := range m.order {
		if p.gone {
			continue
		}
		select {
		case <-p.session.Done():
			p.gone = true
			log.Printf("match %s: %s disconnected", m.ID, p.session.Username)
			continue
		default:
		}
		present++
	}
	return present > 0
}

func (m *Match) drainInbox() {
	for {
		select {
		case in := <-m.inbox:
			m.handle(in)
		default:
			return
		}
	}
}

func (m *Match) handle(in inbound) {
	p := m.players[in.token]
	if p == nil || p.gone {
		return
	}
	p.send.Ack(world.Tick(in.datagram.AckedTick))

	cmd := in.datagram.Command
	if cmd.Kind == protocol.CommandNone {
		return
	}
	if p.hasSeq && protocol.IsStale(cmd.Seq, p.lastSeq) {
		return
	}
	p.lastSeq, p.hasSeq = cmd.Seq, true

	wc := world.Command{Seq: cmd.Seq, QueuedAt: m.world.NextTime()}
	switch cmd.Kind {
	case protocol.CommandMove:
		wc.Kind = world.CommandMove
		wc.Target = world.Vec(float64(cmd.X), float64(cmd.Y))
	case protocol.CommandAttack:
		wc.Kind = world.CommandAttack
		wc.TargetID = world.EntityID(cmd.TargetID)
	}
	if err := m.world.QueueCommand(p.entity, wc); err != nil {
		log.Printf("match %s: %s: %v", m.ID, p.session.Username, err)
	}
}

func (m *Match) broadcast() {
	snap := m.world.Snapshot()
	m.history.Add(snap)

	states := make([]world.SendState, 0, len(m.order))
	for _, p := range m.order {
		if p.gone {
			continue
		}
		base := m.history.Baseline(p.send, snap.Tick, m.cfg.SafeInterval)
		b, err := EncodeServerDatagram(p.lastSeq, snap, base)
		if err != nil {
			log.Printf("match %s: encode for %s: %v", m.ID, p.session.Username, err)
			continue
		}
		p.send.Sent(snap.Tick, base == nil)
		p.session.SendDatagram(b)
		states = append(states, p.send)
	}
	m.history.TrimAcked(states)

	if m.replay != nil {
		if err := m.replay.Record(snap); err != nil {
			log.Printf("match %s: replay: %v", m.ID, err)
			m.replay.Close()
			m.replay = nil
		}
	}
}

func (m *Match) finish() {
	if m.replay != nil {
		if err := m.replay.Close(); err != nil {
			log.Printf("match %s: replay: %v", m.ID, err)
		}
	}
	for _, p := range m.order {
		if p.session.Match() == m {
			p.session.setMatch(nil)
		}
	}
	log.Printf("match %s: ended at tick %d", m.ID, m.Tick())
}

// EncodeServerDatagram builds {lastCommandSeq, baselineTick, diff}. A nil
// base sends the snapshot in full.
func EncodeServerDatagram(lastSeq uint16, snap, base *world.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	w := bitstream.NewWriter(&buf)
	baseTick := protocol.NoTick
	if base != nil {
		baseTick = int64(base.Tick)
	}
	protocol.WriteServerHeader(w, lastSeq, baseTick)
	if err := world.EncodeSnapshot(w, snap, base); err != nil {
		return nil, err
	}
	w.Align()
	if err := w.Err(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
