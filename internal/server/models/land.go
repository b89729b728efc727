package models

import "time"

// Land is the parcel record documents are uploaded against. Ownership and
// registration live in another service; the server only needs existence and
// the owner for notification routing.
type Land struct {
	ID           string
	ParcelNumber string
	OwnerID      string
	CreatedAt    time.Time
}
