package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/agriconnect/market-core/internal/config"
)

// Connect opens and verifies a MySQL pool. The DSN must set parseTime=true
// so timestamps scan into time.Time.
func Connect(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS listings (
		id               VARCHAR(36) PRIMARY KEY,
		owner_id         VARCHAR(64)  NOT NULL,
		name             VARCHAR(255) NOT NULL,
		category         VARCHAR(64)  NOT NULL DEFAULT '',
		location         VARCHAR(255) NOT NULL DEFAULT '',
		unit             VARCHAR(16)  NOT NULL DEFAULT 'kg',
		price_per_unit   DECIMAL(12,2) NOT NULL,
		stock_quantity   INT          NOT NULL,
		is_urgent_deal   BOOLEAN      NOT NULL DEFAULT FALSE,
		discount_percent INT          NULL,
		deal_expires_at  DATETIME     NULL,
		status           VARCHAR(16)  NOT NULL DEFAULT 'active',
		version          INT          NOT NULL,
		created_at       DATETIME     NOT NULL,
		updated_at       DATETIME     NOT NULL,
		INDEX idx_listings_owner (owner_id, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id                 VARCHAR(36) PRIMARY KEY,
		listing_id         VARCHAR(36)  NOT NULL,
		listing_name       VARCHAR(255) NOT NULL,
		unit               VARCHAR(16)  NOT NULL,
		buyer_id           VARCHAR(64)  NOT NULL,
		buyer_name         VARCHAR(255) NOT NULL,
		buyer_mobile       VARCHAR(32)  NOT NULL DEFAULT '',
		seller_id          VARCHAR(64)  NOT NULL,
		quantity           INT          NOT NULL,
		unit_price_applied DECIMAL(12,2) NOT NULL,
		total_price        DECIMAL(12,2) NOT NULL,
		status             VARCHAR(16)  NOT NULL,
		created_at         DATETIME     NOT NULL,
		INDEX idx_orders_buyer (buyer_id, created_at),
		INDEX idx_orders_seller (seller_id, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id         VARCHAR(36) PRIMARY KEY,
		seller_id  VARCHAR(64) NOT NULL,
		order_id   VARCHAR(36) NOT NULL,
		message    TEXT        NOT NULL,
		is_read    BOOLEAN     NOT NULL DEFAULT FALSE,
		created_at DATETIME    NOT NULL,
		INDEX idx_notifications_seller (seller_id, created_at)
	)`,
}

// EnsureSchema creates the tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
