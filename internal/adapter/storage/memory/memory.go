// Package memory provides an in-process document store implementing every
// storage port. It is the reference backend for tests and for running the
// service without external infrastructure.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agriconnect/market-core/internal/core/domain"
	"github.com/agriconnect/market-core/internal/port"
)

type Store struct {
	mu            sync.RWMutex
	listings      map[string]*domain.Listing
	orders        []domain.Order
	notifications []domain.Notification
}

func NewStore() *Store {
	return &Store{listings: make(map[string]*domain.Listing)}
}

func cloneListing(l *domain.Listing) *domain.Listing {
	c := *l
	if l.DiscountPercent != nil {
		v := *l.DiscountPercent
		c.DiscountPercent = &v
	}
	if l.DealExpiresAt != nil {
		t := *l.DealExpiresAt
		c.DealExpiresAt = &t
	}
	return &c
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, port.ErrListingNotFound
	}
	return cloneListing(l), nil
}

func (s *Store) Create(ctx context.Context, l *domain.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listings[l.ID]; ok {
		return fmt.Errorf("listing %s already exists", l.ID)
	}
	c := cloneListing(l)
	c.Version = 1
	s.listings[c.ID] = c
	l.Version = c.Version
	return nil
}

func (s *Store) CASUpdate(ctx context.Context, id string, expectedVersion int, mutate port.MutateListing) (*domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.casUpdateLocked(id, expectedVersion, mutate)
}

func (s *Store) casUpdateLocked(id string, expectedVersion int, mutate port.MutateListing) (*domain.Listing, error) {
	current, ok := s.listings[id]
	if !ok {
		return nil, port.ErrListingNotFound
	}
	if current.Version != expectedVersion {
		return nil, port.ErrVersionConflict
	}

	next := cloneListing(current)
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.Version = current.Version + 1
	next.UpdatedAt = time.Now()

	s.listings[id] = next
	return cloneListing(next), nil
}

func (s *Store) ByOwner(ctx context.Context, ownerID string) ([]domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Listing
	for _, l := range s.listings {
		if l.OwnerID == ownerID {
			out = append(out, *cloneListing(l))
		}
	}
	sortNewestFirst(out, func(l domain.Listing) time.Time { return l.CreatedAt })
	return out, nil
}

// CommitOrder performs the stock decrement, order insert and notification
// insert under one lock: either all three are visible or none are.
func (s *Store) CommitOrder(ctx context.Context, listingID string, expectedVersion, quantity int, order *domain.Order, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.casUpdateLocked(listingID, expectedVersion, func(l *domain.Listing) error {
		l.StockQuantity -= quantity
		return nil
	}); err != nil {
		return err
	}

	s.orders = append(s.orders, *order)
	s.notifications = append(s.notifications, *n)
	return nil
}

func (s *Store) Append(ctx context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, *o)
	return nil
}

func (s *Store) ByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error) {
	return s.filterOrders(func(o domain.Order) bool { return o.BuyerID == buyerID }), nil
}

func (s *Store) BySeller(ctx context.Context, sellerID string) ([]domain.Order, error) {
	return s.filterOrders(func(o domain.Order) bool { return o.SellerID == sellerID }), nil
}

func (s *Store) filterOrders(keep func(domain.Order) bool) []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Order
	for i := len(s.orders) - 1; i >= 0; i-- {
		if keep(s.orders[i]) {
			out = append(out, s.orders[i])
		}
	}
	return out
}

// Notifications returns a separate view so the store can back both the order
// ledger and the notification sink ports.
type Notifications struct {
	store *Store
}

func (s *Store) NotificationSink() *Notifications {
	return &Notifications{store: s}
}

func (n *Notifications) Append(ctx context.Context, notification *domain.Notification) error {
	n.store.mu.Lock()
	defer n.store.mu.Unlock()
	n.store.notifications = append(n.store.notifications, *notification)
	return nil
}

func (n *Notifications) BySeller(ctx context.Context, sellerID string) ([]domain.Notification, error) {
	n.store.mu.RLock()
	defer n.store.mu.RUnlock()
	var out []domain.Notification
	for i := len(n.store.notifications) - 1; i >= 0; i-- {
		if n.store.notifications[i].SellerID == sellerID {
			out = append(out, n.store.notifications[i])
		}
	}
	return out, nil
}

func (n *Notifications) MarkRead(ctx context.Context, id string) error {
	n.store.mu.Lock()
	defer n.store.mu.Unlock()
	for i := range n.store.notifications {
		if n.store.notifications[i].ID == id {
			n.store.notifications[i].Read = true
			return nil
		}
	}
	return port.ErrNotificationNotFound
}

func sortNewestFirst[T any](items []T, at func(T) time.Time) {
	sort.SliceStable(items, func(i, j int) bool {
		return at(items[i]).After(at(items[j]))
	})
}
