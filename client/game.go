package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"arenagame/protocol"
	"arenagame/utils"
	"arenagame/world"
)

var ErrDisconnected = errors.New("disconnected from server")

type dialResult struct {
	conn *DatagramConn
	err  error
}

// Game is the client side of a session: one frame loop that polls the
// control and simulation channels without blocking, reconciles the world
// and sends the current command.
type Game struct {
	cfg       *utils.Config
	control   *protocol.Conn
	datagrams *DatagramConn
	dialed    chan dialResult

	store    *SnapshotStore
	recon    *Reconciler
	commands *CommandSender

	Username   string
	token      uint16
	loginError string
	lobby      *protocol.LobbyUpdate
	load       *protocol.GameStartLoad
	lastNotice string
}

func NewGame(cfg *utils.Config, control *protocol.Conn) *Game {
	store := NewSnapshotStore(cfg.Sim.HistoryCap)
	return &Game{
		cfg:      cfg,
		control:  control,
		dialed:   make(chan dialResult, 1),
		store:    store,
		recon:    NewReconciler(NewClockConfig(cfg), store),
		commands: NewCommandSender(),
	}
}

func (g *Game) Token() uint16                      { return g.token }
func (g *Game) LoginError() string                 { return g.loginError }
func (g *Game) Lobby() *protocol.LobbyUpdate       { return g.lobby }
func (g *Game) GameStart() *protocol.GameStartLoad { return g.load }
func (g *Game) LastNotice() string                 { return g.lastNotice }
func (g *Game) Reconciler() *Reconciler            { return g.recon }
func (g *Game) Commands() *CommandSender           { return g.commands }

// InMatch reports whether the simulation channel is up.
func (g *Game) InMatch() bool {
	return g.datagrams != nil
}

// Self returns the entity of the local player once a snapshot names it.
func (g *Game) Self() (world.EntityID, bool) {
	if g.load == nil {
		return world.NoEntity, false
	}
	snap := g.store.Latest()
	slot := g.load.Slot(g.Username)
	if snap == nil || slot < 0 {
		return world.NoEntity, false
	}
	team, ok := world.Team(g.load.YourTeam).Index()
	if !ok || slot >= len(snap.Players[team]) {
		return world.NoEntity, false
	}
	return snap.Players[team][slot], true
}

func (g *Game) send(m protocol.Message) {
	if !g.control.SendAndFlush(m) {
		log.Printf("dropped %T: %v", m, protocol.ErrQueueFull)
	}
}

func (g *Game) Login(username, password string) {
	g.Username = username
	g.send(&protocol.Login{Username: username, EncryptedPassword: []byte(password)})
}

func (g *Game) Register(username, password string) {
	g.Username = username
	g.send(&protocol.Register{Username: username, EncryptedPassword: []byte(password)})
}

func (g *Game) JoinChat(room int32) { g.send(&protocol.ChatJoin{RoomID: room}) }

func (g *Game) Say(room int32, text string) {
	g.send(&protocol.ChatSend{RoomID: room, Message: text})
}

func (g *Game) CreateLobby(name string) { g.send(&protocol.LobbyCreate{Name: name}) }
func (g *Game) JoinLobby(id int32)      { g.send(&protocol.LobbyJoin{LobbyID: id}) }
func (g *Game) LeaveLobby()             { g.send(&protocol.LobbyLeave{}) }
func (g *Game) SwitchTeam()             { g.send(&protocol.LobbySwitchTeam{}) }
func (g *Game) StartSelect()            { g.send(&protocol.LobbyStartSelect{}) }
func (g *Game) SelectChampion(id int16) { g.send(&protocol.ChampionSelect{ChampionID: id}) }
func (g *Game) LockChampion()           { g.send(&protocol.ChampionLock{}) }

func (g *Game) Move(x, y float32) {
	g.commands.Move(x, y)
}

func (g *Game) Attack(target world.EntityID) {
	g.commands.Attack(target)
}

// Update runs one frame of dt seconds.
func (g *Game) Update(dt float64) error {
	if err := g.handleServerMessages(); err != nil {
		return err
	}
	if err := g.handleDatagrams(); err != nil {
		return err
	}
	g.recon.Advance(dt)
	return g.sendDatagram()
}

func (g *Game) handleServerMessages() error {
	for {
		select {
		case msg, ok := <-g.control.Incoming():
			if !ok {
				return g.disconnected(g.control.Err())
			}
			g.handle(msg)
		default:
			return nil
		}
	}
}

func (g *Game) disconnected(err error) error {
	if err == nil {
		return ErrDisconnected
	}
	if tf := protocol.ClassifyTransport(err); tf != nil {
		return fmt.Errorf("%w: %s", ErrDisconnected, tf.Message())
	}
	return fmt.Errorf("%w: %v", ErrDisconnected, err)
}

func (g *Game) handle(msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.LoginResponse:
		if m.Success {
			g.token = m.SessionToken
			g.Username = m.Username
			g.loginError = ""
		} else {
			g.loginError = m.Message
		}
		log.Printf("login: %s", m.Message)
	case *protocol.ChatMemberJoined:
		log.Printf("[%d] %s joined", m.RoomID, m.Name)
	case *protocol.ChatMemberLeft:
		log.Printf("[%d] %s left", m.RoomID, m.Name)
	case *protocol.ChatMessage:
		log.Printf("[%d] %s: %s", m.RoomID, m.Name, m.Message)
	case *protocol.LobbyUpdate:
		if len(m.Members) == 0 {
			g.lobby = nil
		} else {
			g.lobby = m
		}
	case *protocol.GameStartLoad:
		g.load = m
		g.lobby = nil
		g.dial()
	case *protocol.Notice:
		g.lastNotice = m.Message
		log.Printf("notice: %s", m.Message)
	}
}

// dial connects the simulation channel off the frame loop.
func (g *Game) dial() {
	addr, insecure := g.cfg.Client.DatagramAddr, g.cfg.Client.InsecureSkipVerify
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		d, err := DialDatagrams(ctx, addr, insecure)
		g.dialed <- dialResult{conn: d, err: err}
	}()
}

func (g *Game) handleDatagrams() error {
	select {
	case res := <-g.dialed:
		if res.err != nil {
			return res.err
		}
		g.datagrams = res.conn
	default:
	}
	if g.datagrams == nil {
		return nil
	}
	for {
		select {
		case b := <-g.datagrams.Incoming():
			lastSeq, _, err := g.store.Receive(b)
			switch {
			case err == nil:
				g.commands.Ack(lastSeq)
			case protocol.IsProtocolFault(err):
				g.datagrams.Close()
				return err
			}
		case <-g.datagrams.Done():
			return g.disconnected(context.Cause(g.datagrams.conn.Context()))
		default:
			return nil
		}
	}
}

func (g *Game) sendDatagram() error {
	if g.datagrams == nil || g.token == 0 {
		return nil
	}
	if err := g.datagrams.Send(g.commands.Datagram(g.token, g.store.LatestTick())); err != nil {
		log.Printf("datagram: %v", err)
	}
	return nil
}

// Run calls Update at the configured frame rate, then frame, until ctx is
// cancelled or the connection fails.
func (g *Game) Run(ctx context.Context, frame func(*Game)) error {
	rate := g.cfg.Client.FrameRate
	if rate <= 0 {
		rate = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if err := g.Update(dt); err != nil {
				return err
			}
			if frame != nil {
				frame(g)
			}
		}
	}
}

func (g *Game) Close() error {
	if g.datagrams != nil {
		g.datagrams.Close()
	}
	err := g.control.Close()
	g.control.Wait()
	return err
}
