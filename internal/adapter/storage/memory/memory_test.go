package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/agriconnect/market-core/internal/core/domain"
	"github.com/agriconnect/market-core/internal/port"
)

func newListing(id string) *domain.Listing {
	return &domain.Listing{
		ID:            id,
		OwnerID:       "farmer-1",
		Name:          "Carrots",
		Unit:          "kg",
		PricePerUnit:  decimal.NewFromInt(30),
		StockQuantity: 10,
		Status:        domain.ListingStatusActive,
		CreatedAt:     time.Now(),
	}
}

func TestGet_NotFound(t *testing.T) {
	store := NewStore()
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, port.ErrListingNotFound) {
		t.Errorf("expected ErrListingNotFound, got %v", err)
	}
}

func TestCreate_DuplicateID(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	if err := store.Create(ctx, newListing("l-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	// A second create with the same ID must fail like a duplicate primary
	// key would, not overwrite the record.
	dup := newListing("l-1")
	dup.StockQuantity = 99
	if err := store.Create(ctx, dup); err == nil {
		t.Fatal("expected duplicate create to fail")
	}
	current, _ := store.Get(ctx, "l-1")
	if current.StockQuantity != 10 {
		t.Errorf("stock = %d, want original 10", current.StockQuantity)
	}
}

func TestCASUpdate_VersionGate(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	if err := store.Create(ctx, newListing("l-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := store.CASUpdate(ctx, "l-1", 1, func(l *domain.Listing) error {
		l.StockQuantity = 5
		return nil
	})
	if err != nil {
		t.Fatalf("CASUpdate: %v", err)
	}
	if updated.Version != 2 || updated.StockQuantity != 5 {
		t.Errorf("got version %d stock %d, want 2 and 5", updated.Version, updated.StockQuantity)
	}

	// Stale version must conflict and leave the record untouched.
	_, err = store.CASUpdate(ctx, "l-1", 1, func(l *domain.Listing) error {
		l.StockQuantity = 0
		return nil
	})
	if !errors.Is(err, port.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	current, _ := store.Get(ctx, "l-1")
	if current.StockQuantity != 5 || current.Version != 2 {
		t.Errorf("conflicting write leaked: %+v", current)
	}
}

func TestCASUpdate_MutateErrorLeavesRecord(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	store.Create(ctx, newListing("l-1"))

	boom := errors.New("boom")
	_, err := store.CASUpdate(ctx, "l-1", 1, func(l *domain.Listing) error {
		l.StockQuantity = 0
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutate error, got %v", err)
	}
	current, _ := store.Get(ctx, "l-1")
	if current.StockQuantity != 10 || current.Version != 1 {
		t.Errorf("failed mutate leaked: %+v", current)
	}
}

func TestGet_ReturnsIsolatedCopy(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	l := newListing("l-1")
	discount := 20
	l.IsUrgentDeal = true
	l.DiscountPercent = &discount
	store.Create(ctx, l)

	got, _ := store.Get(ctx, "l-1")
	got.StockQuantity = 0
	*got.DiscountPercent = 99

	fresh, _ := store.Get(ctx, "l-1")
	if fresh.StockQuantity != 10 || *fresh.DiscountPercent != 20 {
		t.Errorf("caller mutation leaked into store: %+v", fresh)
	}
}

func TestCommitOrder_AllOrNothing(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	store.Create(ctx, newListing("l-1"))

	order := &domain.Order{ID: "o-1", ListingID: "l-1", BuyerID: "b-1", SellerID: "farmer-1", Quantity: 4}
	n := &domain.Notification{ID: "n-1", SellerID: "farmer-1", OrderID: "o-1"}

	if err := store.CommitOrder(ctx, "l-1", 1, 4, order, n); err != nil {
		t.Fatalf("CommitOrder: %v", err)
	}
	l, _ := store.Get(ctx, "l-1")
	if l.StockQuantity != 6 {
		t.Errorf("stock = %d, want 6", l.StockQuantity)
	}
	orders, _ := store.ByBuyer(ctx, "b-1")
	if len(orders) != 1 {
		t.Errorf("orders = %d, want 1", len(orders))
	}
	notifications, _ := store.NotificationSink().BySeller(ctx, "farmer-1")
	if len(notifications) != 1 {
		t.Errorf("notifications = %d, want 1", len(notifications))
	}

	// A stale commit writes nothing at all.
	err := store.CommitOrder(ctx, "l-1", 1, 4,
		&domain.Order{ID: "o-2", BuyerID: "b-1"}, &domain.Notification{ID: "n-2", SellerID: "farmer-1"})
	if !errors.Is(err, port.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	l, _ = store.Get(ctx, "l-1")
	if l.StockQuantity != 6 {
		t.Errorf("stale commit changed stock: %d", l.StockQuantity)
	}
	orders, _ = store.ByBuyer(ctx, "b-1")
	if len(orders) != 1 {
		t.Errorf("stale commit appended an order: %d", len(orders))
	}
	notifications, _ = store.NotificationSink().BySeller(ctx, "farmer-1")
	if len(notifications) != 1 {
		t.Errorf("stale commit appended a notification: %d", len(notifications))
	}
}

func TestCommitOrder_ConcurrentSingleWinner(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	store.Create(ctx, newListing("l-1"))

	const racers = 10
	var winners int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.CommitOrder(ctx, "l-1", 1, 1,
				&domain.Order{ID: "o", BuyerID: "b"}, &domain.Notification{ID: "n"})
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1 against the same base version", winners)
	}
}

func TestSessionStore(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	if _, err := store.Load(ctx, "tok"); !errors.Is(err, port.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}

	sess := &domain.SessionContext{
		Buyer:           domain.Buyer{ID: "b-1", Name: "Asha", Mobile: "555-0101"},
		AuthenticatedAt: time.Now(),
	}
	if err := store.Save(ctx, "tok", sess); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := store.Load(ctx, "tok")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Buyer != sess.Buyer {
		t.Errorf("loaded buyer = %+v, want %+v", loaded.Buyer, sess.Buyer)
	}

	if err := store.Clear(ctx, "tok"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := store.Load(ctx, "tok"); !errors.Is(err, port.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after clear, got %v", err)
	}
}

func TestIdempotencyGuard(t *testing.T) {
	guard := NewIdempotencyGuard()
	ctx := context.Background()

	ok, err := guard.Reserve(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("first reserve: ok=%v err=%v", ok, err)
	}
	ok, err = guard.Reserve(ctx, "k")
	if err != nil || ok {
		t.Fatalf("second reserve: ok=%v err=%v, want false", ok, err)
	}
}
