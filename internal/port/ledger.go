package port

import (
	"context"
	"errors"

	"github.com/agriconnect/market-core/internal/core/domain"
)

var ErrNotificationNotFound = errors.New("notification not found")

// OrderLedger is append-only; nothing in the system updates or deletes an
// order once written.
type OrderLedger interface {
	Append(ctx context.Context, o *domain.Order) error

	// ByBuyer returns the buyer's orders, newest first.
	ByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error)

	// BySeller returns orders against the seller's listings, newest first.
	BySeller(ctx context.Context, sellerID string) ([]domain.Order, error)
}

// NotificationSink records farmer-facing notifications. MarkRead is the only
// mutation it exposes.
type NotificationSink interface {
	Append(ctx context.Context, n *domain.Notification) error
	BySeller(ctx context.Context, sellerID string) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id string) error
}
