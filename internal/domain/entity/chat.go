package entity

import (
	"fmt"
	"time"
)

// Chat is a conversation between exactly one buyer and one seller about
// one listing. Its document ID is derived from that triple so that lazy
// creation stays idempotent under concurrent attempts.
type Chat struct {
	ID            string    `json:"id" firestore:"id"`
	ListingID     string    `json:"listing_id" firestore:"listingId"`
	BuyerID       string    `json:"buyer_id" firestore:"buyerId"`
	SellerID      string    `json:"seller_id" firestore:"sellerId"`
	Participants  []string  `json:"participants" firestore:"participants"`
	LastMessage   string    `json:"last_message,omitempty" firestore:"lastMessage,omitempty"`
	LastMessageAt time.Time `json:"last_message_at" firestore:"lastMessageAt"`
	CreatedAt     time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt     time.Time `json:"updated_at" firestore:"updatedAt"`
}

// ChatID returns the deterministic conversation ID for a
// (listing, buyer, seller) triple.
func ChatID(listingID, buyerID, sellerID string) string {
	return fmt.Sprintf("chat_%s_%s_%s", listingID, buyerID, sellerID)
}

func (c *Chat) IsParticipant(userID string) bool {
	return userID == c.BuyerID || userID == c.SellerID
}

// OtherParticipant returns the participant opposite to userID. Empty when
// userID is not a participant.
func (c *Chat) OtherParticipant(userID string) string {
	switch userID {
	case c.BuyerID:
		return c.SellerID
	case c.SellerID:
		return c.BuyerID
	}
	return ""
}
