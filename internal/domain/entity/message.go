package entity

import "time"

// Message belongs to exactly one chat. CreatedAt is assigned by the
// server; ClientTime is the sender's clock and is kept for display only,
// never for ordering. Seen is monotonic: set by the recipient, never
// reverted.
type Message struct {
	ID          string    `json:"id" firestore:"id"`
	ChatID      string    `json:"chat_id" firestore:"chatId"`
	SenderID    string    `json:"sender_id" firestore:"senderId"`
	RecipientID string    `json:"recipient_id" firestore:"recipientId"`
	Body        string    `json:"message" firestore:"body"`
	ClientTime  string    `json:"client_timestamp,omitempty" firestore:"clientTimestamp,omitempty"`
	Seen        bool      `json:"seen" firestore:"seen"`
	CreatedAt   time.Time `json:"timestamp" firestore:"createdAt"`
}
