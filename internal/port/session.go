package port

import (
	"context"
	"errors"

	"github.com/agriconnect/market-core/internal/core/domain"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists a buyer's session between requests. Keys are opaque
// session tokens issued by the identity layer.
type SessionStore interface {
	Load(ctx context.Context, key string) (*domain.SessionContext, error)
	Save(ctx context.Context, key string, s *domain.SessionContext) error
	Clear(ctx context.Context, key string) error
}
