package protocol

import (
	"bytes"
	"fmt"

	"arenagame/bitstream"
)

const (
	MsgLogin         MessageType = 1
	MsgRegister      MessageType = 2
	MsgLoginResponse MessageType = 3

	MsgChatJoin    MessageType = 10
	MsgChatLeave   MessageType = 11
	MsgChatMessage MessageType = 12

	MsgLobbyCreate      MessageType = 20
	MsgLobbyJoin        MessageType = 21
	MsgLobbyLeave       MessageType = 22
	MsgLobbySwitchTeam  MessageType = 23
	MsgLobbyStartSelect MessageType = 24
	MsgLobbyUpdate      MessageType = 25

	MsgChampionSelect MessageType = 30
	MsgChampionLock   MessageType = 31

	MsgGameStartLoad MessageType = 40

	MsgNotice MessageType = 50
)

// Message is a control channel payload. The same MessageType may carry a
// different payload per direction, so decoding needs the direction.
type Message interface {
	Type() MessageType
	Encode(w *bitstream.Writer)
	Decode(r *bitstream.Reader) error
}

// Marshal encodes m into a byte aligned payload.
func Marshal(m Message) ([]byte, error) {
	var buf bytes.Buffer
	w := bitstream.NewWriter(&buf)
	m.Encode(w)
	w.Align()
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("marshal message %d: %w", m.Type(), err)
	}
	return buf.Bytes(), nil
}

// Decoder turns a frame into a message.
type Decoder func(t MessageType, payload []byte) (Message, error)

var clientMessages = map[MessageType]func() Message{
	MsgLogin:            func() Message { return &Login{} },
	MsgRegister:         func() Message { return &Register{} },
	MsgChatJoin:         func() Message { return &ChatJoin{} },
	MsgChatLeave:        func() Message { return &ChatLeave{} },
	MsgChatMessage:      func() Message { return &ChatSend{} },
	MsgLobbyCreate:      func() Message { return &LobbyCreate{} },
	MsgLobbyJoin:        func() Message { return &LobbyJoin{} },
	MsgLobbyLeave:       func() Message { return &LobbyLeave{} },
	MsgLobbySwitchTeam:  func() Message { return &LobbySwitchTeam{} },
	MsgLobbyStartSelect: func() Message { return &LobbyStartSelect{} },
	MsgChampionSelect:   func() Message { return &ChampionSelect{} },
	MsgChampionLock:     func() Message { return &ChampionLock{} },
}

var serverMessages = map[MessageType]func() Message{
	MsgLoginResponse: func() Message { return &LoginResponse{} },
	MsgChatJoin:      func() Message { return &ChatMemberJoined{} },
	MsgChatLeave:     func() Message { return &ChatMemberLeft{} },
	MsgChatMessage:   func() Message { return &ChatMessage{} },
	MsgLobbyUpdate:   func() Message { return &LobbyUpdate{} },
	MsgGameStartLoad: func() Message { return &GameStartLoad{} },
	MsgNotice:        func() Message { return &Notice{} },
}

func decodeWith(table map[MessageType]func() Message, t MessageType, payload []byte) (Message, error) {
	ctor, ok := table[t]
	if !ok {
		return nil, Fault("decode message", fmt.Errorf("%w: %d", ErrUnknownMessage, t))
	}
	m := ctor()
	if err := m.Decode(bitstream.NewReader(bytes.NewReader(payload))); err != nil {
		return nil, Fault(fmt.Sprintf("decode message %d", t), err)
	}
	return m, nil
}

// DecodeClientMessage decodes a frame sent by a client.
func DecodeClientMessage(t MessageType, payload []byte) (Message, error) {
	return decodeWith(clientMessages, t, payload)
}

// DecodeServerMessage decodes a frame sent by the server.
func DecodeServerMessage(t MessageType, payload []byte) (Message, error) {
	return decodeWith(serverMessages, t, payload)
}

// fields reads with a sticky error so decoders stay linear.
type fields struct {
	r   *bitstream.Reader
	err error
}

func (f *fields) str() string {
	if f.err != nil {
		return ""
	}
	s, err := f.r.ReadString()
	f.err = err
	return s
}

func (f *fields) blob() []byte {
	if f.err != nil {
		return nil
	}
	b, err := f.r.ReadBytes()
	f.err = err
	return b
}

func (f *fields) boolean() bool {
	if f.err != nil {
		return false
	}
	b, err := f.r.ReadBool()
	f.err = err
	return b
}

func (f *fields) signed(bits uint) int64 {
	if f.err != nil {
		return 0
	}
	v, err := f.r.ReadSigned(bits)
	f.err = err
	return v
}

func (f *fields) unsigned(bits uint) uint64 {
	if f.err != nil {
		return 0
	}
	v, err := f.r.ReadInt(bits)
	f.err = err
	return v
}

func (f *fields) count() int {
	if f.err != nil {
		return 0
	}
	v, err := f.r.ReadFormat(bitstream.Uint4to32)
	f.err = err
	return int(v)
}

type Login struct {
	Username          string
	EncryptedPassword []byte
}

func (*Login) Type() MessageType { return MsgLogin }

func (m *Login) Encode(w *bitstream.Writer) {
	w.WriteString(m.Username)
	w.WriteBytes(m.EncryptedPassword)
}

func (m *Login) Decode(r *bitstream.Reader) error {
	f := fields{r: r}
	m.Username = f.str()
	m.EncryptedPassword = f.blob()
	return f.err
}

// Register has the same payload as Login.
type Register Login

func (*Register) Type() MessageType { return MsgRegister }

func (m *Register) Encode(w *bitstream.Writer) { (*Login)(m).Encode(w) }

func (m *Register) Decode(r *bitstream.Reader) error { return (*Login)(m).Decode(r) }

// LoginResponse answers Login and Register. Username and SessionToken are
// only present on success.
type LoginResponse struct {
	Success      bool
	Message      string
	Username     string
	SessionToken uint16
}

func (*LoginResponse) Type() MessageType { return MsgLoginResponse }

func (m *LoginResponse) Encode(w *bitstream.Writer) {
	w.WriteBool(m.Success)
	w.WriteString(m.Message)
	if m.Success {
		w.WriteString(m.Username)
		w.WriteInt(uint64(m.SessionToken), 16)
	}
}

func (m *LoginResponse) Decode(r *bitstream.Reader) error {
	f := fields{r: r}
	m.Success = f.boolean()
	m.Message = f.str()
	if m.Success {
		m.Username = f.str()
		m.SessionToken = uint16(f.unsigned(16))
	}
	return f.err
}

type ChatJoin struct {
	RoomID int32
}

func (*ChatJoin) Type() MessageType { return MsgChatJoin }

func (m *ChatJoin) Encode(w *bitstream.Writer) { w.WriteSigned(int64(m.RoomID), 32) }

func (m *ChatJoin) Decode(r *bitstream.Reader) error {
	f := fields{r: r}
	m.RoomID = int32(f.signed(32))
	return f.err
}

type ChatLeave struct {
	RoomID int32
}

func (*ChatLeave) Type() MessageType { return MsgChatLeave }

func (m *ChatLeave) Encode(w *bitstream.Writer) { w.WriteSigned(int64(m.RoomID), 32) }

func (m *ChatLeave) Decode(r *bitstream.Reader) error {
	f := fields{r: r}
	m.RoomID = int32(f.signed(32))
	return f.err
}

// ChatSend is a client posting to a room.
type ChatSend struct {
	RoomID  int32
	Message string
}

func (*ChatSend) Type() MessageType { return MsgChatMessage }

func (m *ChatSend) Encode(w *bitstream.Writer) {
	w.WriteSigned(int64(m.RoomID), 32)
	w.WriteString(m.Message)
}

func (m *ChatSend) Decode(r *bitstream.Reader) error {
	f := fields{r: r}
	m.RoomID = int32(f.signed(32))
	m.Message = f.str()
	return f.err
}

// ChatMemberJoined announces a member entering a room.
type ChatMemberJoined struct {
	RoomID int32
	Name   string
	Tag    string
}

func (*ChatMemberJoined) Type() MessageType { return MsgChatJoin }

func (m *ChatMemberJoined) Encode(w *bitstream.Writer) {
	w.WriteSigned(int64(m.RoomID), 32)
	w.WriteString(m.Name)
	w.WriteString(m.Tag)
}

func (m *ChatMemberJoined) Decode(r *bitstream.Reader) error {
	f := fields{r: r}
	m.RoomID = int32(f.signed(32))
	m.Name = f.str()
	m.Tag = f.str()
	return f.err
}

// ChatMemberLeft announces a member leaving a room.
type ChatMemberLeft ChatMemberJoined

func (*ChatMemberLeft) Type() MessageType { return MsgChatLeave }

func (m *ChatMemberLeft) Encode(w *bitstream.Writer) { (*ChatMemberJoined)(m).Encode(w) }

func (m *ChatMemberLeft) Decode(r *bitstream.Reader) error {
	return (*ChatMemberJoined)(m).Decode(r)
}

// ChatMessage relays a post to the room members.
type ChatMessage struct {
	RoomID  int32
	Name    string
	Message string
}

func (*ChatMessage) Type() MessageType { return MsgChatMessage }

func (m *ChatMessage) Encode(w *bitstream.Writer) {
	w.WriteSigned(int64(m.RoomID), 32)
	w.WriteString(m.Name)
	w.WriteString(m.Message)
}

func (m *ChatMessage) Decode(r *bitstream.Reader) error {
	f := fields{r: r}
	m.RoomID = int32(f.signed(32))
	m.Name = f.str()
	m.Message = f.str()
	return f.err
}

type LobbyCreate struct {
	Name string
}

func (*LobbyCreate) Type() MessageType { return MsgLobbyCreate }

func (m *LobbyCreate) Encode(w *bitstream.Writer) { w.WriteString(m.Name) }

func (m *LobbyCreate) Decode(r *bitstream.Reader) error {
	f := fields{r: r}
	m.Name = f.str()
	return f.err
}

type LobbyJoin struct {
	LobbyID int32
}

func (*LobbyJoin) Type() MessageType { return MsgLobbyJoin }

func (m *LobbyJoin) Encode(w *bitstream.Writer) { w.WriteSigned(int64(m.LobbyID), 32) }

func (m *LobbyJoin) Decode(r *bitstream.Reader) error {
	f := fields{r: r}
	m.LobbyID = int32(f.signed(32))
	return f.err
}

type empty struct{}

func (empty) Encode(*bitstream.Writer)       {}
func (empty) Decode(*bitstream.Reader) error { return nil }

type LobbyLeave struct{ empty }

func (*LobbyLeave) Type() MessageType { return MsgLobbyLeave }

type LobbySwitchTeam struct{ empty }

func (*LobbySwitchTeam) Type() MessageType { return MsgLobbySwitchTeam }

type LobbyStartSelect struct{ empty }

func (*LobbyStartSelect) Type() MessageType { return MsgLobbyStartSelect }

type ChampionLock struct{ empty }

func (*ChampionLock) Type() MessageType { return MsgChampionLock }

type ChampionSelect struct {
	ChampionID int16
}

func (*ChampionSelect) Type() MessageType { return MsgChampionSelect }

func (m *ChampionSelect) Encode(w *bitstream.Writer) { w.WriteSigned(int64(m.ChampionID), 16) }

func (m *ChampionSelect) Decode(r *bitstream.Reader) error {
	f := fields{r: r}
	m.ChampionID = int16(f.signed(16))
	return f.err
}

type LobbyMember struct {
	Username   string
	Team       uint8
	ChampionID int16
	Locked     bool
}

// LobbyUpdate is the full lobby state, sent on every change.
type LobbyUpdate struct {
	LobbyID   int32
	Name      string
	Selecting bool
	Members   []LobbyMember
}

func (*LobbyUpdate) Type() MessageType { return MsgLobbyUpdate }

func (m *LobbyUpdate) Encode(w *bitstream.Writer) {
	w.WriteSigned(int64(m.LobbyID), 32)
	w.WriteString(m.Name)
	w.WriteBool(m.Selecting)
	w.WriteFormat(bitstream.Uint4to32, int64(len(m.Members)))
	for _, member := range m.Members {
		w.WriteString(member.Username)
		w.WriteInt(uint64(member.Team), 8)
		w.WriteSigned(int64(member.ChampionID), 16)
		w.WriteBool(member.Locked)
	}
}

func (m *LobbyUpdate) Decode(r *bitstream.Reader) error {
	f := fields{r: r}
	m.LobbyID = int32(f.signed(32))
	m.Name = f.str()
	m.Selecting = f.boolean()
	n := f.count()
	m.Members = make([]LobbyMember, 0, min(n, 64))
	for i := 0; i < n && f.err == nil; i++ {
		m.Members = append(m.Members, LobbyMember{
			Username:   f.str(),
			Team:       uint8(f.unsigned(8)),
			ChampionID: int16(f.signed(16)),
			Locked:     f.boolean(),
		})
	}
	return f.err
}

type RosterEntry struct {
	Username   string
	ChampionID int16
}

// GameStartLoad tells a player its team and the per-team roster. A
// player's slot is its index in its team list.
type GameStartLoad struct {
	YourTeam uint8
	Teams    [2][]RosterEntry
}

func (*GameStartLoad) Type() MessageType { return MsgGameStartLoad }

func (m *GameStartLoad) Encode(w *bitstream.Writer) {
	w.WriteInt(uint64(m.YourTeam), 8)
	for _, team := range m.Teams {
		w.WriteFormat(bitstream.Uint4to32, int64(len(team)))
		for _, p := range team {
			w.WriteString(p.Username)
			w.WriteSigned(int64(p.ChampionID), 16)
		}
	}
}

func (m *GameStartLoad) Decode(r *bitstream.Reader) error {
	f := fields{r: r}
	m.YourTeam = uint8(f.unsigned(8))
	for i := range m.Teams {
		n := f.count()
		team := make([]RosterEntry, 0, min(n, 64))
		for j := 0; j < n && f.err == nil; j++ {
			team = append(team, RosterEntry{
				Username:   f.str(),
				ChampionID: int16(f.signed(16)),
			})
		}
		m.Teams[i] = team
	}
	return f.err
}

// Slot returns the index of username in its own team list, or -1.
func (m *GameStartLoad) Slot(username string) int {
	if m.YourTeam < 1 || int(m.YourTeam) > len(m.Teams) {
		return -1
	}
	for i, p := range m.Teams[m.YourTeam-1] {
		if p.Username == username {
			return i
		}
	}
	return -1
}

// Notice carries a user facing failure message.
type Notice struct {
	Message string
}

func (*Notice) Type() MessageType { return MsgNotice }

func (m *Notice) Encode(w *bitstream.Writer) { w.WriteString(m.Message) }

func (m *Notice) Decode(r *bitstream.Reader) error {
	f := fields{r: r}
	m.Message = f.str()
	return f.err
}
