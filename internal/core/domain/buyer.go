package domain

import "time"

// Buyer is the identity the coordinator trusts as given; it performs no
// authentication itself.
type Buyer struct {
	ID     string
	Name   string
	Mobile string
}

// SessionContext carries an authenticated buyer between requests. Its
// persistence lives behind port.SessionStore.
type SessionContext struct {
	Buyer           Buyer
	AuthenticatedAt time.Time
}
