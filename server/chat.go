package server

import (
	"errors"

	"github.com/sasha-s/go-deadlock"

	"arenagame/protocol"
)

var (
	ErrNotInRoom = errors.New("not in that chat room")
	ErrEmptyChat = errors.New("empty chat message")
)

const maxChatLength = 256

type room struct {
	id      int32
	members map[*Session]struct{}
}

// Chat holds the rooms. Membership is explicit: sessions join and leave,
// and a closing session is removed from every room it joined.
type Chat struct {
	mu    deadlock.Mutex
	rooms map[int32]*room
}

func NewChat() *Chat {
	return &Chat{rooms: make(map[int32]*room)}
}

func tagOf(s *Session) string {
	if l := s.Lobby(); l != nil {
		return l.Name
	}
	return ""
}

// Join adds s to roomID, tells the members about it and tells s about the
// members already there.
func (c *Chat) Join(s *Session, roomID int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rooms[roomID]
	if !ok {
		r = &room{id: roomID, members: make(map[*Session]struct{})}
		c.rooms[roomID] = r
	}
	if _, ok := r.members[s]; ok {
		return
	}
	joined := &protocol.ChatMemberJoined{RoomID: roomID, Name: s.Username, Tag: tagOf(s)}
	for member := range r.members {
		member.Send(joined)
		s.Send(&protocol.ChatMemberJoined{RoomID: roomID, Name: member.Username, Tag: tagOf(member)})
	}
	r.members[s] = struct{}{}
	s.Send(joined)
}

func (c *Chat) Leave(s *Session, roomID int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.leave(s, roomID)
}

func (c *Chat) leave(s *Session, roomID int32) error {
	r, ok := c.rooms[roomID]
	if !ok {
		return ErrNotInRoom
	}
	if _, ok := r.members[s]; !ok {
		return ErrNotInRoom
	}
	delete(r.members, s)
	left := &protocol.ChatMemberLeft{RoomID: roomID, Name: s.Username, Tag: tagOf(s)}
	s.Send(left)
	for member := range r.members {
		member.Send(left)
	}
	if len(r.members) == 0 {
		delete(c.rooms, roomID)
	}
	return nil
}

// LeaveAll removes s from every room.
func (c *Chat) LeaveAll(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, r := range c.rooms {
		if _, ok := r.members[s]; ok {
			c.leave(s, id)
		}
	}
}

func (c *Chat) Say(s *Session, roomID int32, text string) error {
	if text == "" {
		return ErrEmptyChat
	}
	if len(text) > maxChatLength {
		text = text[:maxChatLength]
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rooms[roomID]
	if !ok {
		return ErrNotInRoom
	}
	if _, ok := r.members[s]; !ok {
		return ErrNotInRoom
	}
	msg := &protocol.ChatMessage{RoomID: roomID, Name: s.Username, Message: text}
	for member := range r.members {
		member.Send(msg)
	}
	return nil
}

func (c *Chat) Members(roomID int32) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rooms[roomID]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(r.members))
	for member := range r.members {
		names = append(names, member.Username)
	}
	return names
}
