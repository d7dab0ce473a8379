package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sasha-s/go-deadlock"

	"arenagame/protocol"
	"arenagame/world"
)

const maxTeamSize = 5

var (
	ErrInLobby      = errors.New("already in a lobby")
	ErrNoLobby      = errors.New("no such lobby")
	ErrNotInLobby   = errors.New("not in a lobby")
	ErrLobbyFull    = errors.New("lobby is full")
	ErrTeamFull     = errors.New("team is full")
	ErrSelecting    = errors.New("champion select already started")
	ErrNotSelecting = errors.New("champion select has not started")
	ErrNoChampion   = errors.New("pick a champion first")
	ErrLocked       = errors.New("champion already locked")
	ErrInMatch      = errors.New("already in a match")
	ErrLobbyName    = errors.New("lobby name must be 1 to 32 characters")
)

type RosterSlot struct {
	Session  *Session
	Champion int16
}

// Roster is the outcome of a lobby whose members all locked a champion.
type Roster struct {
	Lobby string
	Teams [2][]RosterSlot
}

type lobbyMember struct {
	session  *Session
	team     world.Team
	champion int16
	locked   bool
}

type Lobby struct {
	ID        int32
	Name      string
	members   []*lobbyMember
	selecting bool
}

func (l *Lobby) member(s *Session) *lobbyMember {
	for _, m := range l.members {
		if m.session == s {
			return m
		}
	}
	return nil
}

func (l *Lobby) teamSize(t world.Team) int {
	n := 0
	for _, m := range l.members {
		if m.team == t {
			n++
		}
	}
	return n
}

func (l *Lobby) update() *protocol.LobbyUpdate {
	u := &protocol.LobbyUpdate{LobbyID: l.ID, Name: l.Name, Selecting: l.selecting}
	for _, m := range l.members {
		u.Members = append(u.Members, protocol.LobbyMember{
			Username:   m.session.Username,
			Team:       uint8(m.team),
			ChampionID: m.champion,
			Locked:     m.locked,
		})
	}
	return u
}

func (l *Lobby) broadcast() {
	u := l.update()
	for _, m := range l.members {
		m.session.Send(u)
	}
}

func (l *Lobby) roster() Roster {
	r := Roster{Lobby: l.Name}
	for _, m := range l.members {
		i, _ := m.team.Index()
		r.Teams[i] = append(r.Teams[i], RosterSlot{Session: m.session, Champion: m.champion})
	}
	return r
}

// Lobbies is the lobby registry. One lock covers every lobby; members are
// told about each change.
type Lobbies struct {
	mu        deadlock.Mutex
	next      int32
	lobbies   map[int32]*Lobby
	champions world.Champions
	start     func(Roster)
}

// NewLobbies calls start with the roster of each lobby that finished
// champion select.
func NewLobbies(champions world.Champions, start func(Roster)) *Lobbies {
	return &Lobbies{
		lobbies:   make(map[int32]*Lobby),
		champions: champions,
		start:     start,
	}
}

func (r *Lobbies) Create(s *Session, name string) (*Lobby, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 32 {
		return nil, ErrLobbyName
	}
	if s.Match() != nil {
		return nil, ErrInMatch
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Lobby() != nil {
		return nil, ErrInLobby
	}
	r.next++
	l := &Lobby{ID: r.next, Name: name}
	r.lobbies[l.ID] = l
	r.add(l, s)
	return l, nil
}

func (r *Lobbies) Join(s *Session, id int32) error {
	if s.Match() != nil {
		return ErrInMatch
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Lobby() != nil {
		return ErrInLobby
	}
	l, ok := r.lobbies[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoLobby, id)
	}
	if l.selecting {
		return ErrSelecting
	}
	if len(l.members) >= 2*maxTeamSize {
		return ErrLobbyFull
	}
	r.add(l, s)
	return nil
}

func (r *Lobbies) add(l *Lobby, s *Session) {
	team := world.TeamBlue
	if l.teamSize(world.TeamRed) < l.teamSize(world.TeamBlue) {
		team = world.TeamRed
	}
	l.members = append(l.members, &lobbyMember{session: s, team: team})
	s.setLobby(l)
	l.broadcast()
}

func (r *Lobbies) Leave(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := s.Lobby()
	if l == nil {
		return ErrNotInLobby
	}
	for i, m := range l.members {
		if m.session == s {
			l.members = append(l.members[:i], l.members[i+1:]...)
			break
		}
	}
	s.setLobby(nil)
	s.Send(&protocol.LobbyUpdate{LobbyID: l.ID, Name: l.Name})
	if len(l.members) == 0 {
		delete(r.lobbies, l.ID)
		return nil
	}
	if l.selecting {
		l.selecting = false
		for _, m := range l.members {
			m.locked = false
		}
	}
	l.broadcast()
	return nil
}

func (r *Lobbies) SwitchTeam(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, m, err := r.memberOf(s)
	if err != nil {
		return err
	}
	if l.selecting {
		return ErrSelecting
	}
	other := m.team.Enemy()
	if l.teamSize(other) >= maxTeamSize {
		return ErrTeamFull
	}
	m.team = other
	l.broadcast()
	return nil
}

func (r *Lobbies) StartSelect(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, _, err := r.memberOf(s)
	if err != nil {
		return err
	}
	if l.selecting {
		return ErrSelecting
	}
	l.selecting = true
	for _, m := range l.members {
		m.champion = 0
		m.locked = false
	}
	l.broadcast()
	return nil
}

func (r *Lobbies) Select(s *Session, champion int16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, m, err := r.memberOf(s)
	if err != nil {
		return err
	}
	if !l.selecting {
		return ErrNotSelecting
	}
	if m.locked {
		return ErrLocked
	}
	if _, ok := r.champions[champion]; !ok {
		return fmt.Errorf("%w: %d", world.ErrUnknownChampion, champion)
	}
	m.champion = champion
	l.broadcast()
	return nil
}

// Lock fixes the member's pick. When the last member locks, the lobby is
// dissolved and its roster handed to start.
func (r *Lobbies) Lock(s *Session) error {
	r.mu.Lock()
	l, m, err := r.memberOf(s)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if !l.selecting {
		r.mu.Unlock()
		return ErrNotSelecting
	}
	if m.champion == 0 {
		r.mu.Unlock()
		return ErrNoChampion
	}
	m.locked = true
	l.broadcast()
	for _, other := range l.members {
		if !other.locked {
			r.mu.Unlock()
			return nil
		}
	}
	roster := l.roster()
	delete(r.lobbies, l.ID)
	for _, other := range l.members {
		other.session.setLobby(nil)
	}
	r.mu.Unlock()

	if r.start != nil {
		r.start(roster)
	}
	return nil
}

func (r *Lobbies) memberOf(s *Session) (*Lobby, *lobbyMember, error) {
	l := s.Lobby()
	if l == nil {
		return nil, nil, ErrNotInLobby
	}
	m := l.member(s)
	if m == nil {
		return nil, nil, ErrNotInLobby
	}
	return l, m, nil
}

func (r *Lobbies) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lobbies)
}
