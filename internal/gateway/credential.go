package gateway

import (
	"context"
	"sync"
)

// CredentialStore persists the single refresh token the gateway works with.
// Load returns ErrNoCredential when nothing has been saved; Save replaces any
// previous token.
type CredentialStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, refreshToken string) error
}

// MemoryStore keeps the token for the lifetime of the process only.
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return "", ErrNoCredential
	}
	return m.token, nil
}

func (m *MemoryStore) Save(_ context.Context, refreshToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = refreshToken
	return nil
}
