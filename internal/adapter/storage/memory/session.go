package memory

import (
	"context"
	"sync"

	"github.com/agriconnect/market-core/internal/core/domain"
	"github.com/agriconnect/market-core/internal/port"
)

// SessionStore keeps sessions in process memory.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.SessionContext
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]domain.SessionContext)}
}

func (s *SessionStore) Load(ctx context.Context, key string) (*domain.SessionContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key]
	if !ok {
		return nil, port.ErrSessionNotFound
	}
	return &sess, nil
}

func (s *SessionStore) Save(ctx context.Context, key string, sess *domain.SessionContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key] = *sess
	return nil
}

func (s *SessionStore) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
	return nil
}

// IdempotencyGuard claims keys in process memory. Suitable for a single
// instance; multi-instance deployments use the Redis guard.
type IdempotencyGuard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewIdempotencyGuard() *IdempotencyGuard {
	return &IdempotencyGuard{seen: make(map[string]struct{})}
}

func (g *IdempotencyGuard) Reserve(ctx context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[key]; ok {
		return false, nil
	}
	g.seen[key] = struct{}{}
	return true, nil
}
