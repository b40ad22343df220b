// Package client provides a Go client for the user auth API with pluggable
// storage for the issued token pair.
package client

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
)

// ErrNoSession is returned when an operation needs a stored token pair and
// none exists (never logged in, or cleared after an auth failure).
var ErrNoSession = errors.New("no stored session")

// TokenPair is the credential set issued at login.
type TokenPair struct {
	Access  string `json:"access_token"`
	Refresh string `json:"refresh_token"`
}

// TokenStore is the process-wide client session state: set on login,
// cleared on logout and on auth-failure recovery. Implementations must be
// safe for concurrent use.
type TokenStore interface {
	Save(pair TokenPair) error
	Load() (TokenPair, error)
	Clear() error
}

// MemoryTokenStore keeps the token pair in process memory.
type MemoryTokenStore struct {
	mu   sync.Mutex
	pair TokenPair
	set  bool
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Save(pair TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = pair
	s.set = true
	return nil
}

func (s *MemoryTokenStore) Load() (TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return TokenPair{}, ErrNoSession
	}
	return s.pair, nil
}

func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = TokenPair{}
	s.set = false
	return nil
}

// FileTokenStore persists the token pair as a JSON file, surviving process
// restarts the way browser local storage survives page loads.
type FileTokenStore struct {
	mu   sync.Mutex
	path string
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (s *FileTokenStore) Save(pair TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(pair)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

func (s *FileTokenStore) Load() (TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return TokenPair{}, ErrNoSession
		}
		return TokenPair{}, err
	}
	var pair TokenPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return TokenPair{}, err
	}
	if pair.Access == "" && pair.Refresh == "" {
		return TokenPair{}, ErrNoSession
	}
	return pair, nil
}

func (s *FileTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
