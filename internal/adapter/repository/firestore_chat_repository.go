package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"agromart/internal/domain/entity"
	"agromart/internal/domain/repository"
	"agromart/pkg/errors"
	"agromart/pkg/logger"
)

type firestoreChatRepository struct {
	client *firestore.Client
}

func NewFirestoreChatRepository(client *firestore.Client) repository.ChatRepository {
	return &firestoreChatRepository{
		client: client,
	}
}

func (r *firestoreChatRepository) chats() *firestore.CollectionRef {
	return r.client.Collection("chats")
}

func (r *firestoreChatRepository) messages(chatID string) *firestore.CollectionRef {
	return r.chats().Doc(chatID).Collection("messages")
}

func (r *firestoreChatRepository) Create(ctx context.Context, chat *entity.Chat) error {
	if chat.ID == "" {
		chat.ID = entity.ChatID(chat.ListingID, chat.BuyerID, chat.SellerID)
	}
	if len(chat.Participants) == 0 {
		chat.Participants = []string{chat.BuyerID, chat.SellerID}
	}

	now := time.Now()
	chat.CreatedAt = now
	chat.UpdatedAt = now
	if chat.LastMessageAt.IsZero() {
		chat.LastMessageAt = now
	}

	// Create (not Set) so a concurrent creation of the same triple is
	// reported instead of silently overwritten.
	_, err := r.chats().Doc(chat.ID).Create(ctx, chat)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return errors.AlreadyExists("Chat", err)
		}
		return errors.Internal("Failed to create chat", err)
	}

	return nil
}

func (r *firestoreChatRepository) GetByID(ctx context.Context, id string) (*entity.Chat, error) {
	doc, err := r.chats().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Chat", err)
		}
		return nil, errors.Internal("Failed to get chat", err)
	}

	var chat entity.Chat
	if err := doc.DataTo(&chat); err != nil {
		return nil, errors.Internal("Failed to parse chat data", err)
	}
	if chat.ID == "" {
		chat.ID = doc.Ref.ID
	}

	return &chat, nil
}

func (r *firestoreChatRepository) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.Chat, int64, error) {
	query := r.chats().Where("participants", "array-contains", userID).OrderBy("lastMessageAt", firestore.Desc)

	allDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		logger.Error("Firestore error while fetching chats for user %s: %v", userID, err)
		return nil, 0, errors.Internal("Failed to fetch chats", err)
	}

	total := int64(len(allDocs))

	start := offset
	if start > len(allDocs) {
		start = len(allDocs)
	}
	end := len(allDocs)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	var chats []*entity.Chat
	for i := start; i < end; i++ {
		var chat entity.Chat
		if err := allDocs[i].DataTo(&chat); err != nil {
			logger.Warn("Skipping malformed chat document %s: %v", allDocs[i].Ref.ID, err)
			continue
		}
		if chat.ID == "" {
			chat.ID = allDocs[i].Ref.ID
		}
		chats = append(chats, &chat)
	}

	return chats, total, nil
}

func (r *firestoreChatRepository) UpdateLastMessage(ctx context.Context, chatID, preview string, at time.Time) error {
	_, err := r.chats().Doc(chatID).Update(ctx, []firestore.Update{
		{Path: "lastMessage", Value: preview},
		{Path: "lastMessageAt", Value: at},
		{Path: "updatedAt", Value: time.Now()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Chat", err)
		}
		return errors.Internal("Failed to update chat preview", err)
	}
	return nil
}

func (r *firestoreChatRepository) CreateMessage(ctx context.Context, message *entity.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	message.CreatedAt = time.Now()
	message.Seen = false

	_, err := r.messages(message.ChatID).Doc(message.ID).Create(ctx, message)
	if err != nil {
		return errors.Internal("Failed to create message", err)
	}

	return nil
}

func (r *firestoreChatRepository) GetMessageByID(ctx context.Context, chatID, messageID string) (*entity.Message, error) {
	doc, err := r.messages(chatID).Doc(messageID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Message", err)
		}
		return nil, errors.Internal("Failed to get message", err)
	}

	var message entity.Message
	if err := doc.DataTo(&message); err != nil {
		return nil, errors.Internal("Failed to parse message data", err)
	}
	return &message, nil
}

func (r *firestoreChatRepository) GetMessagesByChat(ctx context.Context, chatID string, limit, offset int) ([]*entity.Message, int64, error) {
	// Oldest first; document ID breaks createdAt ties so concurrent sends
	// keep a stable order.
	query := r.messages(chatID).OrderBy("createdAt", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)

	allDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		logger.Error("Firestore error while fetching messages for chat %s: %v", chatID, err)
		return nil, 0, errors.Internal("Failed to fetch messages", err)
	}

	total := int64(len(allDocs))

	start := offset
	if start > len(allDocs) {
		start = len(allDocs)
	}
	end := len(allDocs)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	var messages []*entity.Message
	for i := start; i < end; i++ {
		var message entity.Message
		if err := allDocs[i].DataTo(&message); err != nil {
			return nil, 0, errors.Internal("Failed to parse message data", err)
		}
		messages = append(messages, &message)
	}

	return messages, total, nil
}

func (r *firestoreChatRepository) MarkMessageSeen(ctx context.Context, chatID, messageID string) error {
	_, err := r.messages(chatID).Doc(messageID).Update(ctx, []firestore.Update{
		{Path: "seen", Value: true},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return errors.NotFound("Message", err)
		}
		return errors.Internal("Failed to update message seen state", err)
	}
	return nil
}

func (r *firestoreChatRepository) MarkAllSeen(ctx context.Context, chatID, recipientID string) (int, error) {
	query := r.messages(chatID).Where("recipientId", "==", recipientID).Where("seen", "==", false)

	iter := query.Documents(ctx)
	updated := 0

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return updated, errors.Internal("Failed to iterate unseen messages", err)
		}

		if _, err := doc.Ref.Update(ctx, []firestore.Update{{Path: "seen", Value: true}}); err != nil {
			return updated, errors.Internal("Failed to update message seen state", err)
		}
		updated++
	}

	return updated, nil
}

func (r *firestoreChatRepository) CountUnread(ctx context.Context, chatID, recipientID string) (int, error) {
	docs, err := r.messages(chatID).Where("recipientId", "==", recipientID).Where("seen", "==", false).Documents(ctx).GetAll()
	if err != nil {
		return 0, errors.Internal("Failed to count unread messages", err)
	}
	return len(docs), nil
}
