package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"time"

	"github.com/sasha-s/go-deadlock"
	"nhooyr.io/websocket"

	"arenagame/protocol"
	"arenagame/utils"
	"arenagame/world"
)

type Server struct {
	ctx       context.Context
	cfg       *utils.Config
	accounts  Accounts
	cipher    Cipher
	champions world.Champions
	gameMap   *world.Map
	started   time.Time

	sessions *Sessions
	chat     *Chat
	lobbies  *Lobbies

	mu      deadlock.Mutex
	matches map[string]*Match

	serveMux http.ServeMux
}

// NewServer builds a server whose matches live until ctx is cancelled.
func NewServer(ctx context.Context, cfg *utils.Config, accounts Accounts, cipher Cipher) (*Server, error) {
	gameMap := world.DefaultMap()
	if cfg.Sim.Map != "" {
		m, err := world.LoadMapFile(cfg.Sim.Map)
		if err != nil {
			return nil, err
		}
		gameMap = m
	}
	s := &Server{
		ctx:       ctx,
		cfg:       cfg,
		accounts:  accounts,
		cipher:    cipher,
		champions: world.DefaultChampions(),
		gameMap:   gameMap,
		started:   time.Now(),
		sessions:  NewSessions(cfg.Server.DatagramQueue),
		chat:      NewChat(),
		matches:   make(map[string]*Match),
	}
	s.lobbies = NewLobbies(s.champions, s.StartMatch)

	s.serveMux.HandleFunc("/ws", s.onWebsocket)
	s.serveMux.HandleFunc("/status", s.onStatus)
	s.serveMux.HandleFunc("/debug/pprof/", pprof.Index)
	s.serveMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	s.serveMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	s.serveMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	s.serveMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return s, nil
}

func (s *Server) Sessions() *Sessions {
	return s.sessions
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.serveMux.ServeHTTP(w, r)
}

// ServeControl accepts plain TCP control connections until l is closed.
func (s *Server) ServeControl(l net.Listener) error {
	for {
		c, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handle(c, c.RemoteAddr().String())
	}
}

func (s *Server) onWebsocket(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.Server.OriginPatterns,
	})
	if err != nil {
		log.Println(err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "")

	s.handle(websocket.NetConn(r.Context(), c, websocket.MessageBinary), r.RemoteAddr)
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// handle runs one control connection to completion. The handshake must
// finish within HandshakeTimeout or the connection is dropped unadmitted.
func (s *Server) handle(rwc io.ReadWriteCloser, remote string) {
	defer rwc.Close()
	d, hasDeadline := rwc.(deadliner)
	if hasDeadline {
		d.SetDeadline(time.Now().Add(utils.Seconds(s.cfg.Server.HandshakeTimeout)))
	}
	if err := protocol.ServerHandshake(rwc); err != nil {
		log.Printf("%s: handshake: %v", remote, describe(err))
		return
	}
	if hasDeadline {
		d.SetDeadline(time.Time{})
	}

	conn := protocol.NewConn(rwc, protocol.ConnConfig{
		SendQueueSize: s.cfg.Server.SendQueueSize,
		RecvQueueSize: s.cfg.Server.SendQueueSize,
		FlushInterval: utils.Seconds(s.cfg.Server.FlushInterval),
	}, protocol.DecodeClientMessage)
	conn.Start()
	log.Printf("%s: connected as %s", remote, conn.ID)

	s.serve(conn)
	conn.Close()
	conn.Wait()
	if err := conn.Err(); err != nil {
		log.Printf("%s: %v", remote, describe(err))
	}
}

func describe(err error) string {
	if protocol.IsProtocolFault(err) {
		return err.Error()
	}
	if tf := protocol.ClassifyTransport(err); tf != nil {
		return tf.Message()
	}
	return err.Error()
}

func (s *Server) serve(conn *protocol.Conn) {
	var sess *Session
	defer func() {
		if sess != nil {
			s.logout(sess)
		}
	}()
	for msg := range conn.Incoming() {
		if sess == nil {
			sess = s.login(conn, msg)
			continue
		}
		if err := s.dispatch(sess, msg); err != nil {
			sess.Notice(err.Error())
		}
	}
}

// login handles messages before a session exists. It returns the new
// session once credentials check out.
func (s *Server) login(conn *protocol.Conn, msg protocol.Message) *Session {
	var username string
	var password []byte
	var register bool
	switch m := msg.(type) {
	case *protocol.Login:
		username, password = m.Username, m.EncryptedPassword
	case *protocol.Register:
		username, password, register = m.Username, m.EncryptedPassword, true
	default:
		conn.SendAndFlush(&protocol.Notice{Message: "log in first"})
		return nil
	}

	fail := func(err error) *Session {
		conn.SendAndFlush(&protocol.LoginResponse{Message: err.Error()})
		return nil
	}
	plain, err := s.cipher.Decrypt(password)
	if err != nil {
		return fail(ErrBadCredentials)
	}
	if register {
		err = s.accounts.Register(username, plain)
	} else {
		err = s.accounts.Login(username, plain)
	}
	if err != nil {
		return fail(err)
	}
	sess, err := s.sessions.Open(username, conn)
	if err != nil {
		return fail(err)
	}
	sess.Send(&protocol.LoginResponse{
		Success:      true,
		Message:      fmt.Sprintf("welcome, %s", username),
		Username:     username,
		SessionToken: sess.Token,
	})
	log.Printf("%s: logged in as %s (token %d)", conn.ID, username, sess.Token)
	return sess
}

func (s *Server) dispatch(sess *Session, msg protocol.Message) error {
	switch m := msg.(type) {
	case *protocol.Login, *protocol.Register:
		return ErrLoggedIn
	case *protocol.ChatJoin:
		s.chat.Join(sess, m.RoomID)
		return nil
	case *protocol.ChatLeave:
		return s.chat.Leave(sess, m.RoomID)
	case *protocol.ChatSend:
		return s.chat.Say(sess, m.RoomID, m.Message)
	case *protocol.LobbyCreate:
		_, err := s.lobbies.Create(sess, m.Name)
		return err
	case *protocol.LobbyJoin:
		return s.lobbies.Join(sess, m.LobbyID)
	case *protocol.LobbyLeave:
		return s.lobbies.Leave(sess)
	case *protocol.LobbySwitchTeam:
		return s.lobbies.SwitchTeam(sess)
	case *protocol.LobbyStartSelect:
		return s.lobbies.StartSelect(sess)
	case *protocol.ChampionSelect:
		return s.lobbies.Select(sess, m.ChampionID)
	case *protocol.ChampionLock:
		return s.lobbies.Lock(sess)
	default:
		return fmt.Errorf("unexpected message %T", msg)
	}
}

func (s *Server) logout(sess *Session) {
	s.chat.LeaveAll(sess)
	if sess.Lobby() != nil {
		s.lobbies.Leave(sess)
	}
	s.sessions.Close(sess)
	log.Printf("%s logged out", sess.Username)
}

func (s *Server) matchConfig() MatchConfig {
	sim := s.cfg.Sim
	rules := world.DefaultRules()
	rules.TickDelta = sim.TickDelta
	rules.MaxCommandAge = sim.MaxCommandAge
	rules.RepathInterval = sim.RepathInterval
	rules.FirstWave = sim.FirstWave
	rules.WaveInterval = sim.WaveInterval
	rules.WaveSize = sim.WaveSize
	rules.AggroRange = sim.AggroRange
	return MatchConfig{
		Rules:           rules,
		BroadcastEvery:  sim.BroadcastEvery,
		SafeInterval:    world.Tick(sim.SafeInterval),
		HistoryCap:      sim.HistoryCap,
		MaxCatchupTicks: sim.MaxCatchupTicks,
		InboxSize:       s.cfg.Server.InboxSize,
		ReplayDir:       s.cfg.Replay.Dir,
	}
}

// StartMatch launches a match for roster and tells every player to load.
func (s *Server) StartMatch(roster Roster) {
	match, err := NewMatch(s.matchConfig(), s.gameMap, s.champions, roster)
	if err != nil {
		log.Printf("start match for %q: %v", roster.Lobby, err)
		for _, team := range roster.Teams {
			for _, slot := range team {
				slot.Session.Notice("could not start the match")
			}
		}
		return
	}

	s.mu.Lock()
	s.matches[match.ID] = match
	s.mu.Unlock()

	for i, team := range roster.Teams {
		load := match.GameStart(world.TeamFromIndex(i))
		for _, slot := range team {
			slot.Session.setMatch(match)
			slot.Session.Send(load)
		}
	}

	go func() {
		match.Run(s.ctx)
		s.mu.Lock()
		delete(s.matches, match.ID)
		s.mu.Unlock()
	}()
}

type matchStatus struct {
	ID      string `json:"id"`
	Tick    int64  `json:"tick"`
	Players int    `json:"players"`
}

type status struct {
	Uptime   string        `json:"uptime"`
	Sessions int           `json:"sessions"`
	Lobbies  int           `json:"lobbies"`
	Matches  []matchStatus `json:"matches"`
}

func (s *Server) onStatus(w http.ResponseWriter, r *http.Request) {
	st := status{
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Sessions: s.sessions.Len(),
		Lobbies:  s.lobbies.Len(),
		Matches:  []matchStatus{},
	}
	s.mu.Lock()
	for _, m := range s.matches {
		st.Matches = append(st.Matches, matchStatus{ID: m.ID, Tick: int64(m.Tick()), Players: m.Players()})
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		log.Println(err)
	}
}

// Run starts the control, HTTP and datagram listeners and serves until
// interrupted. args[1], if present, overrides the control address.
func Run(args []string) error {
	log.SetFlags(log.LstdFlags | log.Llongfile)
	cfg, err := utils.LoadConfig("config.toml")
	if err != nil {
		return err
	}
	if len(args) > 1 {
		cfg.Server.ControlAddr = args[1]
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server, err := NewServer(ctx, cfg, NewMemoryAccounts(), PlainCipher{})
	if err != nil {
		return err
	}

	var tlsConf *tls.Config
	if cfg.Server.CertFile != "" {
		tlsConf, err = LoadTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
	} else {
		tlsConf, err = SelfSignedTLS()
	}
	if err != nil {
		return err
	}

	control, err := net.Listen("tcp", cfg.Server.ControlAddr)
	if err != nil {
		return err
	}
	defer control.Close()
	web, err := net.Listen("tcp", cfg.Server.HTTPAddr)
	if err != nil {
		return err
	}
	datagrams, err := ListenDatagrams(cfg.Server.DatagramAddr, tlsConf, server.sessions)
	if err != nil {
		return err
	}
	defer datagrams.Close()
	log.Printf("Listening on tcp://%v, http://%v, quic://%v", control.Addr(), web.Addr(), datagrams.Addr())

	s := &http.Server{
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 3)
	go func() {
		errc <- server.ServeControl(control)
	}()
	go func() {
		errc <- s.Serve(web)
	}()
	go func() {
		errc <- datagrams.Serve(ctx)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case err := <-errc:
		log.Println(err)
	case sig := <-sigs:
		log.Printf("terminating: %v", sig)
	}

	cancel()
	return s.Shutdown(context.Background())
}
