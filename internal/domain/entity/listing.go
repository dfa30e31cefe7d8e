package entity

import "time"

// Listing types. A "produce" listing is posted by a seller, a "request"
// is posted by a buyer looking for produce.
const (
	ListingTypeProduce = "produce"
	ListingTypeRequest = "request"
)

// Listing is owned by the listing service; conversations reference it for
// preview data only.
type Listing struct {
	ID        string    `json:"id" firestore:"id"`
	OwnerID   string    `json:"owner_id" firestore:"ownerId"`
	Title     string    `json:"title" firestore:"title"`
	Type      string    `json:"type" firestore:"type"`
	Price     float64   `json:"price,omitempty" firestore:"price,omitempty"`
	Unit      string    `json:"unit,omitempty" firestore:"unit,omitempty"`
	Location  string    `json:"location,omitempty" firestore:"location,omitempty"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
}
