package server

import (
	"errors"

	"github.com/sasha-s/go-deadlock"

	"arenagame/protocol"
)

var ErrNoTokens = errors.New("no free session tokens")

// ControlConn is the part of a control connection sessions use.
type ControlConn interface {
	SendAndFlush(m protocol.Message) bool
	Done() <-chan struct{}
}

// Session is a logged-in player. Its control connection and the datagram
// channel bound to its token are owned by their own goroutines; the rest
// is guarded by mu.
type Session struct {
	Token    uint16
	Username string
	conn     ControlConn

	// datagrams is the bounded outbound queue drained by the datagram
	// writer once a datagram connection binds.
	datagrams chan []byte

	mu    deadlock.Mutex
	lobby *Lobby
	match *Match
	bound bool
}

func (s *Session) Send(m protocol.Message) bool {
	return s.conn.SendAndFlush(m)
}

func (s *Session) Notice(text string) bool {
	return s.Send(&protocol.Notice{Message: text})
}

// SendDatagram queues b without blocking; a full queue drops it.
func (s *Session) SendDatagram(b []byte) bool {
	select {
	case s.datagrams <- b:
		return true
	default:
		return false
	}
}

func (s *Session) Datagrams() <-chan []byte {
	return s.datagrams
}

func (s *Session) Done() <-chan struct{} {
	return s.conn.Done()
}

func (s *Session) Lobby() *Lobby {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lobby
}

func (s *Session) setLobby(l *Lobby) {
	s.mu.Lock()
	s.lobby = l
	s.mu.Unlock()
}

func (s *Session) Match() *Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.match
}

func (s *Session) setMatch(m *Match) {
	s.mu.Lock()
	s.match = m
	s.mu.Unlock()
}

// bind marks the datagram channel as taken; only the first connection
// presenting the token wins.
func (s *Session) bind() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bound {
		return false
	}
	s.bound = true
	return true
}

func (s *Session) unbind() {
	s.mu.Lock()
	s.bound = false
	s.mu.Unlock()
}

// Sessions is the registry of logged-in players keyed by token and name.
type Sessions struct {
	mu        deadlock.Mutex
	byToken   map[uint16]*Session
	byName    map[string]*Session
	next      uint16
	queueSize int
}

func NewSessions(datagramQueue int) *Sessions {
	if datagramQueue <= 0 {
		datagramQueue = 64
	}
	return &Sessions{
		byToken:   make(map[uint16]*Session),
		byName:    make(map[string]*Session),
		queueSize: datagramQueue,
	}
}

// Open registers a session for username with a fresh nonzero token.
func (r *Sessions) Open(username string, conn ControlConn) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[username]; ok {
		return nil, ErrLoggedIn
	}
	if len(r.byToken) >= 0xFFFF {
		return nil, ErrNoTokens
	}
	for {
		r.next++
		if r.next == 0 {
			continue
		}
		if _, used := r.byToken[r.next]; !used {
			break
		}
	}
	s := &Session{
		Token:     r.next,
		Username:  username,
		conn:      conn,
		datagrams: make(chan []byte, r.queueSize),
	}
	r.byToken[s.Token] = s
	r.byName[username] = s
	return s, nil
}

func (r *Sessions) Close(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byToken[s.Token] == s {
		delete(r.byToken, s.Token)
		delete(r.byName, s.Username)
	}
}

func (r *Sessions) ByToken(token uint16) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byToken[token]
}

func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byToken)
}
