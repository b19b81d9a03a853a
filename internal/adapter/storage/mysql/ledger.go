package mysql

import (
	"context"
	"fmt"

	"github.com/agriconnect/market-core/internal/core/domain"
	"github.com/agriconnect/market-core/internal/port"
)

const orderColumns = `id, listing_id, listing_name, unit, buyer_id, buyer_name,
	buyer_mobile, seller_id, quantity, unit_price_applied, total_price,
	status, created_at`

func (s *Store) Append(ctx context.Context, o *domain.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders
			(id, listing_id, listing_name, unit, buyer_id, buyer_name,
			 buyer_mobile, seller_id, quantity, unit_price_applied,
			 total_price, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.ListingID, o.ListingName, o.Unit, o.BuyerID, o.BuyerName,
		o.BuyerMobile, o.SellerID, o.Quantity, o.UnitPriceApplied,
		o.TotalPrice, o.Status, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *Store) ByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE buyer_id = ? ORDER BY created_at DESC`, buyerID)
}

func (s *Store) BySeller(ctx context.Context, sellerID string) ([]domain.Order, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE seller_id = ? ORDER BY created_at DESC`, sellerID)
}

func (s *Store) queryOrders(ctx context.Context, query string, arg any) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var o domain.Order
		err := rows.Scan(
			&o.ID, &o.ListingID, &o.ListingName, &o.Unit, &o.BuyerID,
			&o.BuyerName, &o.BuyerMobile, &o.SellerID, &o.Quantity,
			&o.UnitPriceApplied, &o.TotalPrice, &o.Status, &o.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Notifications adapts the same database to the notification sink port.
type Notifications struct {
	store *Store
}

func (s *Store) NotificationSink() *Notifications {
	return &Notifications{store: s}
}

func (n *Notifications) Append(ctx context.Context, notification *domain.Notification) error {
	_, err := n.store.db.ExecContext(ctx, `
		INSERT INTO notifications (id, seller_id, order_id, message, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		notification.ID, notification.SellerID, notification.OrderID,
		notification.Message, notification.Read, notification.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (n *Notifications) BySeller(ctx context.Context, sellerID string) ([]domain.Notification, error) {
	rows, err := n.store.db.QueryContext(ctx, `
		SELECT id, seller_id, order_id, message, is_read, created_at
		FROM notifications WHERE seller_id = ? ORDER BY created_at DESC`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var notification domain.Notification
		err := rows.Scan(
			&notification.ID, &notification.SellerID, &notification.OrderID,
			&notification.Message, &notification.Read, &notification.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, notification)
	}
	return out, rows.Err()
}

func (n *Notifications) MarkRead(ctx context.Context, id string) error {
	result, err := n.store.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		// MySQL reports zero affected rows for no-op updates too, so an
		// already-read notification needs the existence check.
		var exists bool
		err := n.store.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM notifications WHERE id = ?)`, id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check notification exists: %w", err)
		}
		if !exists {
			return port.ErrNotificationNotFound
		}
	}
	return nil
}
