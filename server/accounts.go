package server

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/sasha-s/go-deadlock"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrBadCredentials = errors.New("wrong username or password")
	ErrUserExists     = errors.New("username already taken")
	ErrBadUsername    = errors.New("username must be 3 to 16 characters")
	ErrLoggedIn       = errors.New("already logged in")
	ErrBadPassword    = errors.New("password must be at most 72 bytes")
)

// Accounts stores credentials. Errors are shown to the user.
type Accounts interface {
	Register(username string, password []byte) error
	Login(username string, password []byte) error
}

// Cipher decrypts the password blob sent by clients.
type Cipher interface {
	Decrypt(blob []byte) ([]byte, error)
	Encrypt(plain []byte) ([]byte, error)
}

// PlainCipher passes passwords through unchanged.
type PlainCipher struct{}

func (PlainCipher) Decrypt(blob []byte) ([]byte, error)  { return blob, nil }
func (PlainCipher) Encrypt(plain []byte) ([]byte, error) { return plain, nil }

// MemoryAccounts keeps bcrypt password hashes in memory.
type MemoryAccounts struct {
	// Cost is the bcrypt work factor used for new accounts.
	Cost int

	mu    deadlock.Mutex
	users map[string][]byte
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{Cost: bcrypt.DefaultCost, users: make(map[string][]byte)}
}

func validUsername(username string) bool {
	n := utf8.RuneCountInString(username)
	return n >= 3 && n <= 16 && strings.TrimSpace(username) == username
}

func (a *MemoryAccounts) Register(username string, password []byte) error {
	if !validUsername(username) {
		return ErrBadUsername
	}
	key := strings.ToLower(username)
	a.mu.Lock()
	_, taken := a.users[key]
	a.mu.Unlock()
	if taken {
		return ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword(password, a.Cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return ErrBadPassword
	}
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.users[key]; ok {
		return ErrUserExists
	}
	a.users[key] = hash
	return nil
}

func (a *MemoryAccounts) Login(username string, password []byte) error {
	a.mu.Lock()
	hash, ok := a.users[strings.ToLower(username)]
	a.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(hash, password) != nil {
		return ErrBadCredentials
	}
	return nil
}
