package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Holder reserves a slot key for a short time so concurrent requests for the
// same slot do not all reach the calendar. It narrows the race; the calendar
// stays the source of truth.
type Holder interface {
	// Acquire returns ok=false when the key is already held.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// Release drops the hold if token still owns it.
	Release(ctx context.Context, key, token string) error
}

type memoryHold struct {
	token   string
	expires time.Time
}

// MemoryHolder keeps holds in process memory.
type MemoryHolder struct {
	mu    sync.Mutex
	holds map[string]memoryHold
	now   func() time.Time
}

func NewMemoryHolder() *MemoryHolder {
	return &MemoryHolder{holds: make(map[string]memoryHold), now: time.Now}
}

func (m *MemoryHolder) Acquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if h, ok := m.holds[key]; ok && now.Before(h.expires) {
		return "", false, nil
	}
	for k, h := range m.holds {
		if !now.Before(h.expires) {
			delete(m.holds, k)
		}
	}
	token := uuid.NewString()
	m.holds[key] = memoryHold{token: token, expires: now.Add(ttl)}
	return token, true, nil
}

func (m *MemoryHolder) Release(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.holds[key]; ok && h.token == token {
		delete(m.holds, key)
	}
	return nil
}
