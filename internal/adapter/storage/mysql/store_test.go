package mysql

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/agriconnect/market-core/internal/core/domain"
	"github.com/agriconnect/market-core/internal/port"
)

func getMySQLStore(t *testing.T) *Store {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		dsn = "root:root@tcp(localhost:3306)/marketcore?parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func seedMySQLListing(t *testing.T, store *Store, stock int) *domain.Listing {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	l := &domain.Listing{
		ID:            uuid.NewString(),
		OwnerID:       "test-farmer-" + uuid.NewString(),
		Name:          "Spinach",
		Category:      "vegetables",
		Unit:          "kg",
		PricePerUnit:  decimal.NewFromInt(40),
		StockQuantity: stock,
		Status:        domain.ListingStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := store.Create(context.Background(), l); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return l
}

func TestMySQL_GetNotFound(t *testing.T) {
	store := getMySQLStore(t)
	if _, err := store.Get(context.Background(), "missing-"+uuid.NewString()); !errors.Is(err, port.ErrListingNotFound) {
		t.Errorf("expected ErrListingNotFound, got %v", err)
	}
}

func TestMySQL_CASUpdate(t *testing.T) {
	store := getMySQLStore(t)
	ctx := context.Background()
	l := seedMySQLListing(t, store, 10)

	updated, err := store.CASUpdate(ctx, l.ID, 1, func(l *domain.Listing) error {
		l.StockQuantity = 7
		return nil
	})
	if err != nil {
		t.Fatalf("CASUpdate: %v", err)
	}
	if updated.Version != 2 || updated.StockQuantity != 7 {
		t.Errorf("got version %d stock %d, want 2 and 7", updated.Version, updated.StockQuantity)
	}

	_, err = store.CASUpdate(ctx, l.ID, 1, func(l *domain.Listing) error {
		l.StockQuantity = 0
		return nil
	})
	if !errors.Is(err, port.ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict on stale version, got %v", err)
	}
}

func TestMySQL_DealFieldsRoundTrip(t *testing.T) {
	store := getMySQLStore(t)
	ctx := context.Background()
	l := seedMySQLListing(t, store, 10)

	expires := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	discount := 20
	_, err := store.CASUpdate(ctx, l.ID, 1, func(l *domain.Listing) error {
		l.IsUrgentDeal = true
		l.DiscountPercent = &discount
		l.DealExpiresAt = &expires
		return nil
	})
	if err != nil {
		t.Fatalf("CASUpdate: %v", err)
	}

	got, err := store.Get(ctx, l.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.IsUrgentDeal || got.DiscountPercent == nil || *got.DiscountPercent != 20 {
		t.Errorf("discount did not round-trip: %+v", got)
	}
	if got.DealExpiresAt == nil || !got.DealExpiresAt.Equal(expires) {
		t.Errorf("expiry did not round-trip: got %v, want %v", got.DealExpiresAt, expires)
	}
}

func TestMySQL_CommitOrder(t *testing.T) {
	store := getMySQLStore(t)
	ctx := context.Background()
	l := seedMySQLListing(t, store, 10)

	buyerID := "test-buyer-" + uuid.NewString()
	order := &domain.Order{
		ID:               uuid.NewString(),
		ListingID:        l.ID,
		ListingName:      l.Name,
		Unit:             l.Unit,
		BuyerID:          buyerID,
		BuyerName:        "Asha",
		SellerID:         l.OwnerID,
		Quantity:         4,
		UnitPriceApplied: decimal.NewFromInt(40),
		TotalPrice:       decimal.NewFromInt(160),
		Status:           domain.OrderStatusPlaced,
		CreatedAt:        time.Now().UTC().Truncate(time.Second),
	}
	notification := &domain.Notification{
		ID:        uuid.NewString(),
		SellerID:  l.OwnerID,
		OrderID:   order.ID,
		Message:   "Consumer Asha purchased 4 kg of Spinach",
		CreatedAt: order.CreatedAt,
	}

	if err := store.CommitOrder(ctx, l.ID, 1, 4, order, notification); err != nil {
		t.Fatalf("CommitOrder: %v", err)
	}

	got, _ := store.Get(ctx, l.ID)
	if got.StockQuantity != 6 {
		t.Errorf("stock = %d, want 6", got.StockQuantity)
	}
	if got.Version != 2 {
		t.Errorf("version = %d, want 2", got.Version)
	}

	orders, err := store.ByBuyer(ctx, buyerID)
	if err != nil {
		t.Fatalf("ByBuyer: %v", err)
	}
	if len(orders) != 1 || !orders[0].TotalPrice.Equal(decimal.NewFromInt(160)) {
		t.Errorf("order did not round-trip: %+v", orders)
	}

	notifications, err := store.NotificationSink().BySeller(ctx, l.OwnerID)
	if err != nil {
		t.Fatalf("BySeller: %v", err)
	}
	if len(notifications) != 1 || notifications[0].OrderID != order.ID {
		t.Errorf("notification did not round-trip: %+v", notifications)
	}

	// Stale version: nothing is written.
	err = store.CommitOrder(ctx, l.ID, 1, 4,
		&domain.Order{ID: uuid.NewString(), ListingID: l.ID, BuyerID: buyerID, SellerID: l.OwnerID, Status: domain.OrderStatusPlaced, CreatedAt: order.CreatedAt, UnitPriceApplied: decimal.Zero, TotalPrice: decimal.Zero},
		&domain.Notification{ID: uuid.NewString(), SellerID: l.OwnerID, OrderID: order.ID, CreatedAt: order.CreatedAt})
	if !errors.Is(err, port.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	orders, _ = store.ByBuyer(ctx, buyerID)
	if len(orders) != 1 {
		t.Errorf("stale commit appended an order: %d", len(orders))
	}
	got, _ = store.Get(ctx, l.ID)
	if got.StockQuantity != 6 {
		t.Errorf("stale commit changed stock: %d", got.StockQuantity)
	}
}

func TestMySQL_CommitOrder_InsufficientStockGate(t *testing.T) {
	store := getMySQLStore(t)
	ctx := context.Background()
	l := seedMySQLListing(t, store, 3)

	// Version matches but stock does not cover the quantity; the double
	// gate must refuse rather than go negative.
	err := store.CommitOrder(ctx, l.ID, 1, 5,
		&domain.Order{ID: uuid.NewString(), ListingID: l.ID, BuyerID: "b", SellerID: l.OwnerID, Status: domain.OrderStatusPlaced, CreatedAt: time.Now(), UnitPriceApplied: decimal.Zero, TotalPrice: decimal.Zero},
		&domain.Notification{ID: uuid.NewString(), SellerID: l.OwnerID, CreatedAt: time.Now()})
	if !errors.Is(err, port.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	got, _ := store.Get(ctx, l.ID)
	if got.StockQuantity != 3 {
		t.Errorf("stock = %d, want 3", got.StockQuantity)
	}
}

func TestMySQL_MarkRead(t *testing.T) {
	store := getMySQLStore(t)
	ctx := context.Background()
	sink := store.NotificationSink()

	n := &domain.Notification{
		ID:        uuid.NewString(),
		SellerID:  "test-farmer-" + uuid.NewString(),
		OrderID:   uuid.NewString(),
		Message:   "test",
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := sink.Append(ctx, n); err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := sink.MarkRead(ctx, n.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	// Marking twice stays idempotent.
	if err := sink.MarkRead(ctx, n.ID); err != nil {
		t.Fatalf("second mark read: %v", err)
	}

	if err := sink.MarkRead(ctx, "missing-"+uuid.NewString()); !errors.Is(err, port.ErrNotificationNotFound) {
		t.Errorf("expected ErrNotificationNotFound, got %v", err)
	}
}
