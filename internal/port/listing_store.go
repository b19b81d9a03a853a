package port

import (
	"context"
	"errors"

	"github.com/agriconnect/market-core/internal/core/domain"
)

var (
	ErrListingNotFound = errors.New("listing not found")
	ErrVersionConflict = errors.New("listing version conflict")
)

// MutateListing edits a listing in place during a version-gated update. It
// must not touch ID, Version or CreatedAt; the store owns those.
type MutateListing func(l *domain.Listing) error

type ListingStore interface {
	// Get retrieves a listing by ID, or ErrListingNotFound.
	Get(ctx context.Context, id string) (*domain.Listing, error)

	// Create persists a new listing at version 1.
	Create(ctx context.Context, l *domain.Listing) error

	// CASUpdate applies mutate only if the stored version still equals
	// expectedVersion, then advances the version. Returns
	// ErrVersionConflict when another writer got there first.
	CASUpdate(ctx context.Context, id string, expectedVersion int, mutate MutateListing) (*domain.Listing, error)

	// ByOwner lists a farmer's listings, newest first, retired included.
	ByOwner(ctx context.Context, ownerID string) ([]domain.Listing, error)
}

// AtomicCommitter is an optional capability of a listing store: commit the
// stock decrement, the order and the notification as one transaction. The
// coordinator falls back to ordered writes with compensation when the store
// does not support it.
type AtomicCommitter interface {
	CommitOrder(ctx context.Context, listingID string, expectedVersion, quantity int, order *domain.Order, n *domain.Notification) error
}
