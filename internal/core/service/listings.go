package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agriconnect/market-core/internal/core/domain"
	"github.com/agriconnect/market-core/internal/port"
)

var (
	ErrInvalidPrice    = errors.New("price must be positive")
	ErrInvalidStock    = errors.New("stock must not be negative")
	ErrInvalidDiscount = errors.New("discount must be between 0 and 100")
)

type CreateListingInput struct {
	OwnerID      string
	Name         string
	Category     string
	Location     string
	Unit         string
	PricePerUnit decimal.Decimal
	Stock        int
}

// CreateListing registers a new active listing for a farmer.
func (c *Coordinator) CreateListing(ctx context.Context, in CreateListingInput) (*domain.Listing, error) {
	if !in.PricePerUnit.IsPositive() {
		return nil, ErrInvalidPrice
	}
	if in.Stock < 0 {
		return nil, ErrInvalidStock
	}

	now := c.clock.Now()
	unit := in.Unit
	if unit == "" {
		unit = "kg"
	}
	l := &domain.Listing{
		ID:            uuid.NewString(),
		OwnerID:       in.OwnerID,
		Name:          in.Name,
		Category:      in.Category,
		Location:      in.Location,
		Unit:          unit,
		PricePerUnit:  in.PricePerUnit,
		StockQuantity: in.Stock,
		Status:        domain.ListingStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := c.listings.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}
	return l, nil
}

// UpdatePrice changes the list price. Competes through CAS with in-flight
// purchases, so a buyer mid-retry always re-prices against the new value.
func (c *Coordinator) UpdatePrice(ctx context.Context, listingID string, price decimal.Decimal) (*domain.Listing, error) {
	if !price.IsPositive() {
		return nil, ErrInvalidPrice
	}
	return c.mutateListing(ctx, listingID, func(l *domain.Listing) error {
		l.PricePerUnit = price
		return nil
	})
}

// UpdateStock sets absolute stock. A farmer dropping stock below a pending
// purchase's quantity correctly fails that purchase with insufficient stock.
func (c *Coordinator) UpdateStock(ctx context.Context, listingID string, stock int) (*domain.Listing, error) {
	if stock < 0 {
		return nil, ErrInvalidStock
	}
	return c.mutateListing(ctx, listingID, func(l *domain.Listing) error {
		l.StockQuantity = stock
		return nil
	})
}

const defaultDealWindow = 24 * time.Hour

// SetUrgentDeal enables a time-boxed discount on the listing. A nil expiresAt
// boxes the deal to 24 hours from now.
func (c *Coordinator) SetUrgentDeal(ctx context.Context, listingID string, discountPercent int, expiresAt *time.Time) (*domain.Listing, error) {
	if discountPercent < 0 || discountPercent > 100 {
		return nil, ErrInvalidDiscount
	}
	expiry := c.clock.Now().Add(defaultDealWindow)
	if expiresAt != nil {
		expiry = *expiresAt
	}
	return c.mutateListing(ctx, listingID, func(l *domain.Listing) error {
		l.IsUrgentDeal = true
		l.DiscountPercent = &discountPercent
		l.DealExpiresAt = &expiry
		return nil
	})
}

// ClearUrgentDeal disables the discount and clears its metadata.
func (c *Coordinator) ClearUrgentDeal(ctx context.Context, listingID string) (*domain.Listing, error) {
	return c.mutateListing(ctx, listingID, func(l *domain.Listing) error {
		l.IsUrgentDeal = false
		l.DiscountPercent = nil
		l.DealExpiresAt = nil
		return nil
	})
}

// RetireListing soft-deletes: the listing stops selling but stays resolvable
// for historical orders.
func (c *Coordinator) RetireListing(ctx context.Context, listingID string) (*domain.Listing, error) {
	return c.mutateListing(ctx, listingID, func(l *domain.Listing) error {
		l.Status = domain.ListingStatusRetired
		return nil
	})
}

// GetListing resolves a listing by ID.
func (c *Coordinator) GetListing(ctx context.Context, listingID string) (*domain.Listing, error) {
	l, err := c.listings.Get(ctx, listingID)
	if err != nil {
		if errors.Is(err, port.ErrListingNotFound) {
			return nil, ErrListingGone
		}
		return nil, fmt.Errorf("read listing: %w", err)
	}
	return l, nil
}

// ListingsForOwner returns a farmer's listings, newest first.
func (c *Coordinator) ListingsForOwner(ctx context.Context, ownerID string) ([]domain.Listing, error) {
	return c.listings.ByOwner(ctx, ownerID)
}

// NotificationsForSeller returns a farmer's notifications, newest first.
func (c *Coordinator) NotificationsForSeller(ctx context.Context, sellerID string) ([]domain.Notification, error) {
	return c.notifications.BySeller(ctx, sellerID)
}

// MarkNotificationRead flags a notification as seen.
func (c *Coordinator) MarkNotificationRead(ctx context.Context, id string) error {
	return c.notifications.MarkRead(ctx, id)
}

// mutateListing runs a read-modify-write through the same bounded CAS retry
// loop the purchase path uses.
func (c *Coordinator) mutateListing(ctx context.Context, listingID string, mutate port.MutateListing) (*domain.Listing, error) {
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		l, err := c.listings.Get(ctx, listingID)
		if err != nil {
			if errors.Is(err, port.ErrListingNotFound) {
				return nil, ErrListingGone
			}
			return nil, fmt.Errorf("read listing: %w", err)
		}

		updated, err := c.listings.CASUpdate(ctx, listingID, l.Version, mutate)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, port.ErrVersionConflict) {
			return nil, fmt.Errorf("update listing: %w", err)
		}
	}
	return nil, fmt.Errorf("%w: listing %s", ErrTooManyConflicts, listingID)
}
