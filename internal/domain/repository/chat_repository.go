package repository

import (
	"context"
	"time"

	"agromart/internal/domain/entity"
)

// ChatRepository is the persistence gateway for conversations and their
// messages. It is the single source of truth shared by the realtime
// engine and the REST facade.
type ChatRepository interface {
	// Create inserts a chat under its deterministic ID and fails with
	// ALREADY_EXISTS when a concurrent creation won the race.
	Create(ctx context.Context, chat *entity.Chat) error
	GetByID(ctx context.Context, id string) (*entity.Chat, error)
	// ListByUserID returns the user's chats ordered by most recent
	// activity.
	ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.Chat, int64, error)
	UpdateLastMessage(ctx context.Context, chatID, preview string, at time.Time) error

	CreateMessage(ctx context.Context, message *entity.Message) error
	GetMessageByID(ctx context.Context, chatID, messageID string) (*entity.Message, error)
	// GetMessagesByChat returns messages oldest first, ties broken by
	// document ID.
	GetMessagesByChat(ctx context.Context, chatID string, limit, offset int) ([]*entity.Message, int64, error)
	MarkMessageSeen(ctx context.Context, chatID, messageID string) error
	// MarkAllSeen flips every unseen message addressed to recipientID and
	// reports how many changed.
	MarkAllSeen(ctx context.Context, chatID, recipientID string) (int, error)
	// CountUnread recomputes the recipient's unread count; it is never
	// cached.
	CountUnread(ctx context.Context, chatID, recipientID string) (int, error)
}
