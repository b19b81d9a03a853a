// Package redis backs the idempotency guard and the session store with
// Redis, for deployments running more than one service instance.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agriconnect/market-core/internal/core/domain"
	"github.com/agriconnect/market-core/internal/port"
)

const (
	idempotencyKeyPrefix = "idem:"
	sessionKeyPrefix     = "session:"

	idempotencyTTL = 24 * time.Hour
	sessionTTL     = 7 * 24 * time.Hour
)

type Adapter struct {
	client *redis.Client
}

func NewAdapter(client *redis.Client) *Adapter {
	return &Adapter{client: client}
}

// Reserve claims the key with SETNX semantics; a second claim within the TTL
// reports a duplicate.
func (a *Adapter) Reserve(ctx context.Context, key string) (bool, error) {
	ok, err := a.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, idempotencyTTL).Result()
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	return ok, nil
}

func (a *Adapter) Load(ctx context.Context, key string) (*domain.SessionContext, error) {
	raw, err := a.client.Get(ctx, sessionKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, port.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var sess domain.SessionContext
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (a *Adapter) Save(ctx context.Context, key string, sess *domain.SessionContext) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := a.client.Set(ctx, sessionKeyPrefix+key, raw, sessionTTL).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (a *Adapter) Clear(ctx context.Context, key string) error {
	if err := a.client.Del(ctx, sessionKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
