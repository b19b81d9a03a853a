package domain

import "time"

// Notification is the farmer-facing record written alongside each order.
type Notification struct {
	ID        string
	SellerID  string
	OrderID   string
	Message   string
	Read      bool
	CreatedAt time.Time
}
