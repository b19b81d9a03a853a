package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/agriconnect/market-core/internal/core/domain"
	"github.com/agriconnect/market-core/internal/core/pricing"
	"github.com/agriconnect/market-core/internal/port"
)

var (
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrListingGone      = errors.New("listing no longer available")
	ErrOutOfStock       = errors.New("listing out of stock")
	ErrTooManyConflicts = errors.New("too many concurrent updates")
	ErrDuplicateRequest = errors.New("duplicate request")

	// ErrUnknownOutcome means the commit may or may not have landed. The
	// caller must reconcile against order history before retrying.
	ErrUnknownOutcome = errors.New("order outcome unknown")
)

// InsufficientStockError reports the quantity actually available so the
// caller can offer a corrected amount.
type InsufficientStockError struct {
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: %d available", e.Available)
}

const (
	defaultMaxRetries     = 5
	defaultAttemptTimeout = 10 * time.Second
	initialRetryBackoff   = 5 * time.Millisecond
	maxRetryBackoff       = 250 * time.Millisecond
)

// Coordinator executes the place-order protocol: validate, read, price,
// commit. It holds no per-call state and is safe for concurrent use;
// serialization of competing purchases happens entirely through the
// version-gated update of the listing store.
type Coordinator struct {
	listings      port.ListingStore
	orders        port.OrderLedger
	notifications port.NotificationSink
	guard         port.IdempotencyGuard
	clock         port.Clock
	logger        *slog.Logger

	maxRetries     int
	attemptTimeout time.Duration
}

type CoordinatorOption func(*Coordinator)

// WithIdempotencyGuard enables duplicate-request protection keyed by the
// caller-supplied request ID.
func WithIdempotencyGuard(g port.IdempotencyGuard) CoordinatorOption {
	return func(c *Coordinator) { c.guard = g }
}

func WithClock(clk port.Clock) CoordinatorOption {
	return func(c *Coordinator) { c.clock = clk }
}

func WithLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

func WithMaxRetries(n int) CoordinatorOption {
	return func(c *Coordinator) { c.maxRetries = n }
}

func WithAttemptTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.attemptTimeout = d }
}

func NewCoordinator(listings port.ListingStore, orders port.OrderLedger, notifications port.NotificationSink, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		listings:       listings,
		orders:         orders,
		notifications:  notifications,
		clock:          port.SystemClock{},
		logger:         slog.Default(),
		maxRetries:     defaultMaxRetries,
		attemptTimeout: defaultAttemptTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PlaceOrder purchases quantity units of a listing for buyer. On success the
// stock decrement, the order and the seller notification are all committed;
// on any error none of them are (a failure after the decrement is
// compensated, and a compensation failure is logged as an inconsistency).
//
// Version conflicts with concurrent buyers or farmer edits are retried
// internally with fresh listing state; pricing is recomputed on every retry
// so an expired deal is never honored late.
func (c *Coordinator) PlaceOrder(ctx context.Context, listingID string, quantity int, buyer domain.Buyer) (*domain.Order, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	backoff := initialRetryBackoff
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
		order, err := c.attempt(attemptCtx, listingID, quantity, buyer)
		cancel()

		if err == nil {
			return order, nil
		}
		if !errors.Is(err, port.ErrVersionConflict) {
			return nil, err
		}

		if attempt == c.maxRetries-1 {
			break
		}
		jitter := time.Duration(rand.Int63n(int64(backoff)))
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if backoff *= 2; backoff > maxRetryBackoff {
			backoff = maxRetryBackoff
		}
	}

	return nil, fmt.Errorf("%w: listing %s contended across %d attempts", ErrTooManyConflicts, listingID, c.maxRetries)
}

// PlaceOrderIdempotent is PlaceOrder behind a request-scoped idempotency key.
func (c *Coordinator) PlaceOrderIdempotent(ctx context.Context, requestID, listingID string, quantity int, buyer domain.Buyer) (*domain.Order, error) {
	if c.guard != nil && requestID != "" {
		ok, err := c.guard.Reserve(ctx, "order:req:"+requestID)
		if err != nil {
			return nil, fmt.Errorf("idempotency check: %w", err)
		}
		if !ok {
			return nil, ErrDuplicateRequest
		}
	}
	return c.PlaceOrder(ctx, listingID, quantity, buyer)
}

func (c *Coordinator) attempt(ctx context.Context, listingID string, quantity int, buyer domain.Buyer) (*domain.Order, error) {
	l, err := c.listings.Get(ctx, listingID)
	if err != nil {
		if errors.Is(err, port.ErrListingNotFound) {
			return nil, ErrListingGone
		}
		return nil, fmt.Errorf("read listing: %w", err)
	}
	if l.Status != domain.ListingStatusActive {
		return nil, ErrListingGone
	}

	available := l.StockQuantity
	if available <= 0 {
		return nil, ErrOutOfStock
	}
	if quantity > available {
		return nil, &InsufficientStockError{Available: available}
	}

	now := c.clock.Now()
	quote := pricing.EffectivePrice(l, now)

	order := &domain.Order{
		ID:               uuid.NewString(),
		ListingID:        l.ID,
		ListingName:      l.Name,
		Unit:             l.Unit,
		BuyerID:          buyer.ID,
		BuyerName:        buyer.Name,
		BuyerMobile:      buyer.Mobile,
		SellerID:         l.OwnerID,
		Quantity:         quantity,
		UnitPriceApplied: quote.UnitPrice,
		TotalPrice:       quote.Total(quantity),
		Status:           domain.OrderStatusPlaced,
		CreatedAt:        now,
	}
	notification := &domain.Notification{
		ID:        uuid.NewString(),
		SellerID:  l.OwnerID,
		OrderID:   order.ID,
		Message:   fmt.Sprintf("Consumer %s purchased %d %s of %s", buyer.Name, quantity, l.Unit, l.Name),
		CreatedAt: now,
	}

	if committer, ok := c.listings.(port.AtomicCommitter); ok {
		if err := committer.CommitOrder(ctx, l.ID, l.Version, quantity, order, notification); err != nil {
			return nil, c.classifyCommitErr(ctx, err, "commit order")
		}
		return order, nil
	}

	// Ordered fallback for stores without multi-write transactions: the
	// decrement is the source of truth for "sold" and goes first.
	if _, err := c.listings.CASUpdate(ctx, l.ID, l.Version, decrementStock(quantity)); err != nil {
		return nil, c.classifyCommitErr(ctx, err, "decrement stock")
	}

	if err := c.orders.Append(ctx, order); err != nil {
		c.compensateDecrement(ctx, l.ID, quantity, order.ID)
		return nil, c.classifyCommitErr(ctx, err, "append order")
	}

	if err := c.notifications.Append(ctx, notification); err != nil {
		// The order is committed; losing the notification is an
		// inconsistency to follow up on, not a reason to unwind.
		c.logger.ErrorContext(ctx, "notification write failed after commit",
			"order_id", order.ID, "seller_id", l.OwnerID, "error", err)
	}

	return order, nil
}

func decrementStock(quantity int) port.MutateListing {
	return func(l *domain.Listing) error {
		l.StockQuantity -= quantity
		return nil
	}
}

// classifyCommitErr maps storage failures during the write phase. A context
// expiry here is ambiguous: the write may have landed, so the caller gets
// ErrUnknownOutcome instead of a plain failure.
func (c *Coordinator) classifyCommitErr(ctx context.Context, err error, op string) error {
	if errors.Is(err, port.ErrVersionConflict) {
		return err
	}
	if errors.Is(err, port.ErrListingNotFound) {
		return ErrListingGone
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %v", ErrUnknownOutcome, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// compensateDecrement restores stock after the order append failed. The
// restore itself competes through CAS; if it cannot land the imbalance is
// logged for out-of-band repair.
func (c *Coordinator) compensateDecrement(ctx context.Context, listingID string, quantity int, orderID string) {
	restoreCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.attemptTimeout)
	defer cancel()

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		l, err := c.listings.Get(restoreCtx, listingID)
		if err != nil {
			break
		}
		_, err = c.listings.CASUpdate(restoreCtx, listingID, l.Version, func(l *domain.Listing) error {
			l.StockQuantity += quantity
			return nil
		})
		if err == nil {
			c.logger.WarnContext(ctx, "rolled back stock decrement",
				"listing_id", listingID, "quantity", quantity, "order_id", orderID)
			return
		}
		if !errors.Is(err, port.ErrVersionConflict) {
			break
		}
	}

	c.logger.ErrorContext(ctx, "CRITICAL: stock decrement not compensated",
		"listing_id", listingID, "quantity", quantity, "order_id", orderID)
}

// OrdersForBuyer returns the buyer's order history, newest first.
func (c *Coordinator) OrdersForBuyer(ctx context.Context, buyerID string) ([]domain.Order, error) {
	return c.orders.ByBuyer(ctx, buyerID)
}

// OrdersForSeller returns orders placed against the seller's listings,
// newest first.
func (c *Coordinator) OrdersForSeller(ctx context.Context, sellerID string) ([]domain.Order, error) {
	return c.orders.BySeller(ctx, sellerID)
}

// ReconcileOrder resolves an ErrUnknownOutcome: it reports whether an order
// for the listing was recorded for the buyer at or after since. A nil order
// with nil error means the write did not land and a retry is safe.
func (c *Coordinator) ReconcileOrder(ctx context.Context, buyerID, listingID string, since time.Time) (*domain.Order, error) {
	orders, err := c.orders.ByBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("reconcile order: %w", err)
	}
	for i := range orders {
		o := &orders[i]
		if o.ListingID == listingID && !o.CreatedAt.Before(since) {
			return o, nil
		}
	}
	return nil, nil
}
