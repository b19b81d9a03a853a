package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ListingStatus string

const (
	ListingStatusActive  ListingStatus = "active"
	ListingStatusRetired ListingStatus = "retired"
)

// Listing is a farmer's sellable inventory record. Version advances on every
// write and gates concurrent updates (optimistic locking).
type Listing struct {
	ID              string
	OwnerID         string
	Name            string
	Category        string
	Location        string
	Unit            string
	PricePerUnit    decimal.Decimal
	StockQuantity   int
	IsUrgentDeal    bool
	DiscountPercent *int // meaningful only while IsUrgentDeal
	DealExpiresAt   *time.Time
	Status          ListingStatus
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
