package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is the single-process fallback. Expiry mirrors the Redis TTL so a
// holder that never releases cannot block a key forever.
type Memory struct {
	mu   sync.Mutex
	held map[string]lease
	now  func() time.Time
}

type lease struct {
	token string
	until time.Time
}

func NewMemory() *Memory {
	return &Memory{held: make(map[string]lease), now: time.Now}
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if l, ok := m.held[key]; ok && now.Before(l.until) {
		return "", false, nil
	}
	token := uuid.NewString()
	m.held[key] = lease{token: token, until: now.Add(ttl)}
	return token, true, nil
}

func (m *Memory) Release(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.held[key]; ok && l.token == token {
		delete(m.held, key)
	}
	return nil
}
