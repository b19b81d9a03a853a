// Package mysql persists listings, orders and notifications in MySQL. The
// listing table carries a version column; every update is gated on it, and
// the order commit runs as a single transaction.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/agriconnect/market-core/internal/core/domain"
	"github.com/agriconnect/market-core/internal/port"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const listingColumns = `id, owner_id, name, category, location, unit, price_per_unit,
	stock_quantity, is_urgent_deal, discount_percent, deal_expires_at,
	status, version, created_at, updated_at`

func scanListing(row interface{ Scan(...any) error }) (*domain.Listing, error) {
	var l domain.Listing
	var discount sql.NullInt64
	var expires sql.NullTime
	err := row.Scan(
		&l.ID, &l.OwnerID, &l.Name, &l.Category, &l.Location, &l.Unit,
		&l.PricePerUnit, &l.StockQuantity, &l.IsUrgentDeal, &discount,
		&expires, &l.Status, &l.Version, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if discount.Valid {
		v := int(discount.Int64)
		l.DiscountPercent = &v
	}
	if expires.Valid {
		t := expires.Time
		l.DealExpiresAt = &t
	}
	return &l, nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Listing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = ?`, id)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query listing: %w", err)
	}
	return l, nil
}

func (s *Store) Create(ctx context.Context, l *domain.Listing) error {
	l.Version = 1
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO listings
			(id, owner_id, name, category, location, unit, price_per_unit,
			 stock_quantity, is_urgent_deal, discount_percent, deal_expires_at,
			 status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.OwnerID, l.Name, l.Category, l.Location, l.Unit, l.PricePerUnit,
		l.StockQuantity, l.IsUrgentDeal, l.DiscountPercent, l.DealExpiresAt,
		l.Status, l.Version, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

func (s *Store) CASUpdate(ctx context.Context, id string, expectedVersion int, mutate port.MutateListing) (*domain.Listing, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Version != expectedVersion {
		return nil, port.ErrVersionConflict
	}

	next := *current
	if err := mutate(&next); err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE listings
		SET owner_id = ?, name = ?, category = ?, location = ?, unit = ?,
		    price_per_unit = ?, stock_quantity = ?, is_urgent_deal = ?,
		    discount_percent = ?, deal_expires_at = ?, status = ?,
		    version = version + 1, updated_at = NOW()
		WHERE id = ? AND version = ?`,
		next.OwnerID, next.Name, next.Category, next.Location, next.Unit,
		next.PricePerUnit, next.StockQuantity, next.IsUrgentDeal,
		next.DiscountPercent, next.DealExpiresAt, next.Status,
		id, expectedVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("update listing: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return nil, port.ErrVersionConflict
	}

	return s.Get(ctx, id)
}

func (s *Store) ByOwner(ctx context.Context, ownerID string) ([]domain.Listing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// CommitOrder binds the stock decrement, the order insert and the
// notification insert into one transaction. The decrement is double-gated on
// version and remaining stock; zero rows affected means a concurrent writer
// won and the whole transaction rolls back.
func (s *Store) CommitOrder(ctx context.Context, listingID string, expectedVersion, quantity int, order *domain.Order, n *domain.Notification) error {
	return withTransaction(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE listings
			SET stock_quantity = stock_quantity - ?, version = version + 1, updated_at = NOW()
			WHERE id = ? AND version = ? AND stock_quantity >= ?`,
			quantity, listingID, expectedVersion, quantity,
		)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if rows == 0 {
			return port.ErrVersionConflict
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO orders
				(id, listing_id, listing_name, unit, buyer_id, buyer_name,
				 buyer_mobile, seller_id, quantity, unit_price_applied,
				 total_price, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			order.ID, order.ListingID, order.ListingName, order.Unit,
			order.BuyerID, order.BuyerName, order.BuyerMobile, order.SellerID,
			order.Quantity, order.UnitPriceApplied, order.TotalPrice,
			order.Status, order.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO notifications (id, seller_id, order_id, message, is_read, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			n.ID, n.SellerID, n.OrderID, n.Message, n.Read, n.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
		return nil
	})
}
