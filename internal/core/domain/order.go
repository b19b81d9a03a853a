package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPlaced OrderStatus = "placed"
)

// Order is an immutable ledger entry created once per successful purchase.
type Order struct {
	ID               string
	ListingID        string
	ListingName      string
	Unit             string
	BuyerID          string
	BuyerName        string
	BuyerMobile      string
	SellerID         string
	Quantity         int
	UnitPriceApplied decimal.Decimal
	TotalPrice       decimal.Decimal
	Status           OrderStatus
	CreatedAt        time.Time
}
