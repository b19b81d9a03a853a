package port

import "context"

// IdempotencyGuard shields the coordinator from duplicate submissions of the
// same purchase request.
type IdempotencyGuard interface {
	// Reserve claims the key, returning false if it was already claimed.
	Reserve(ctx context.Context, key string) (bool, error)
}
