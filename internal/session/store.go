package session

import "sync"

// Credentials is the durable client-side session state. The token pair is
// cleared together, never independently. The active wallet id is a player
// preference that rides along so it survives restarts.
type Credentials struct {
	AccessToken    string `json:"access_token"`
	RefreshToken   string `json:"refresh_token"`
	PlayerID       string `json:"player_id"`
	ActiveWalletID string `json:"active_wallet_id"`
}

// Store persists credentials between process runs. Implementations must
// treat an absent record as empty credentials, not an error.
type Store interface {
	Load() (Credentials, error)
	Save(creds Credentials) error
	Clear() error
}

// MemoryStore keeps credentials in memory only. Used in tests and for
// sessions that opted out of being remembered.
type MemoryStore struct {
	mu    sync.Mutex
	creds Credentials
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds, nil
}

func (s *MemoryStore) Save(creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = Credentials{}
	return nil
}
