package authclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StoredToken is the credential kept between requests
type StoredToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Email       string    `json:"email"`
	RememberMe  bool      `json:"remember_me"`
}

// Expired reports whether the token is past its expiry
func (t *StoredToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// TokenStore persists the access token. Load returns (nil, nil) when
// nothing is stored.
type TokenStore interface {
	Load() (*StoredToken, error)
	Save(tok *StoredToken) error
	Clear() error
}

// MemoryTokenStore keeps the token for the life of the process only.
type MemoryTokenStore struct {
	mu  sync.Mutex
	tok *StoredToken
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Load() (*StoredToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tok == nil {
		return nil, nil
	}
	t := *s.tok
	return &t, nil
}

func (s *MemoryTokenStore) Save(tok *StoredToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := *tok
	s.tok = &t
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = nil
	return nil
}

// FileTokenStore keeps the token in a JSON file readable by the owner only.
type FileTokenStore struct {
	Path string
	mu   sync.Mutex
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{Path: path}
}

func (s *FileTokenStore) Load() (*StoredToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var tok StoredToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, nil
	}
	return &tok, nil
}

func (s *FileTokenStore) Save(tok *StoredToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}

func (s *FileTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// RememberingStore routes remembered tokens to a durable store and every
// other token to a session store, so only "remember me" logins outlive the
// process.
type RememberingStore struct {
	Session TokenStore
	Durable TokenStore
}

func NewRememberingStore(durable TokenStore) *RememberingStore {
	return &RememberingStore{Session: NewMemoryTokenStore(), Durable: durable}
}

// Load prefers the session token over the durable one
func (s *RememberingStore) Load() (*StoredToken, error) {
	tok, err := s.Session.Load()
	if err != nil || tok != nil {
		return tok, err
	}
	return s.Durable.Load()
}

func (s *RememberingStore) Save(tok *StoredToken) error {
	if tok.RememberMe {
		if err := s.Durable.Save(tok); err != nil {
			return err
		}
		return s.Session.Clear()
	}
	if err := s.Session.Save(tok); err != nil {
		return err
	}
	// a stale remembered login must not come back after this one ends
	return s.Durable.Clear()
}

func (s *RememberingStore) Clear() error {
	return errors.Join(s.Session.Clear(), s.Durable.Clear())
}
