package usecase

import (
	"context"
	"fmt"
	"time"

	"agromart/internal/domain/entity"
	"agromart/internal/domain/repository"
	"agromart/internal/infrastructure/ratelimit"
	ws "agromart/internal/infrastructure/websocket"
	"agromart/pkg/errors"
	"agromart/pkg/logger"
)

// RealtimePusher is the outbound side of the realtime channel. Delivery
// is best-effort: offline recipients simply miss the push and catch up
// from persistence.
type RealtimePusher interface {
	SendToUser(userID string, message []byte)
	SendToChatRoom(chatID string, message []byte, excludeUserID string)
}

// ChatUseCase is the message delivery engine. Every mutation, whether it
// arrives over the realtime channel or the REST facade, goes through
// here: authorization first, persistence second, pushes and
// notifications only after the write is durable.
type ChatUseCase struct {
	chatRepo        repository.ChatRepository
	userRepo        repository.UserRepository
	listingRepo     repository.ListingRepository
	pusher          RealtimePusher
	dispatcher      NotificationDispatcher
	limiter         *ratelimit.RateLimiter
	unreadThreshold int
}

func NewChatUseCase(
	chatRepo repository.ChatRepository,
	userRepo repository.UserRepository,
	listingRepo repository.ListingRepository,
	pusher RealtimePusher,
	dispatcher NotificationDispatcher,
	limiter *ratelimit.RateLimiter,
	unreadThreshold int,
) *ChatUseCase {
	if unreadThreshold <= 0 {
		unreadThreshold = 5
	}
	return &ChatUseCase{
		chatRepo:        chatRepo,
		userRepo:        userRepo,
		listingRepo:     listingRepo,
		pusher:          pusher,
		dispatcher:      dispatcher,
		limiter:         limiter,
		unreadThreshold: unreadThreshold,
	}
}

type CreateChatInput struct {
	ListingID string `json:"listing_id" validate:"required"`
	BuyerID   string `json:"buyer_id" validate:"required"`
	SellerID  string `json:"seller_id" validate:"required"`
}

type SendMessageInput struct {
	ChatID      string `json:"chat_id" validate:"required"`
	RecipientID string `json:"recipient_id" validate:"required"`
	Body        string `json:"message" validate:"required"`
	ClientTime  string `json:"client_timestamp,omitempty"`
}

// SenderInfo is the slice of the sender embedded in message payloads so
// clients can render without a second lookup.
type SenderInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type MessageResponse struct {
	*entity.Message
	Sender *SenderInfo `json:"sender,omitempty"`
}

// ChatPreview is one row of the inbox listing.
type ChatPreview struct {
	ChatID          string `json:"chat_id"`
	ListingID       string `json:"listing_id"`
	ListingType     string `json:"listing_type,omitempty"`
	ListingTitle    string `json:"listing_title,omitempty"`
	RecipientID     string `json:"recipient_id"`
	RecipientName   string `json:"recipient_name,omitempty"`
	LastMessage     string `json:"last_message,omitempty"`
	LastMessageTime string `json:"last_message_time,omitempty"`
	UnreadCount     int    `json:"unread_count"`
}

// CreateChat lazily creates the conversation for a (listing, buyer,
// seller) triple. Calling it again with the same triple returns the
// existing chat, including when two callers race on first contact.
func (uc *ChatUseCase) CreateChat(ctx context.Context, callerID string, input CreateChatInput) (*entity.Chat, bool, error) {
	if allowed, wait := uc.limiter.Allow(callerID, "create_chat"); !allowed {
		return nil, false, errors.TooManyRequests(fmt.Sprintf("Too many new conversations, retry in %s", wait.Round(time.Second)))
	}

	if input.BuyerID == input.SellerID {
		return nil, false, errors.BadRequest("Buyer and seller cannot be the same user", nil)
	}
	if callerID != input.BuyerID && callerID != input.SellerID {
		return nil, false, errors.Forbidden("You can only open conversations you participate in", nil)
	}

	listing, err := uc.listingRepo.GetByID(ctx, input.ListingID)
	if err != nil {
		return nil, false, err
	}
	// The listing owner must sit on one side of the conversation:
	// the seller for produce, the buyer for requests.
	switch listing.Type {
	case entity.ListingTypeRequest:
		if listing.OwnerID != input.BuyerID {
			return nil, false, errors.BadRequest("Buyer does not own this request listing", nil)
		}
	default:
		if listing.OwnerID != input.SellerID {
			return nil, false, errors.BadRequest("Seller does not own this listing", nil)
		}
	}

	other := input.SellerID
	if callerID == input.SellerID {
		other = input.BuyerID
	}
	if _, err := uc.userRepo.GetByID(ctx, other); err != nil {
		return nil, false, err
	}

	chatID := entity.ChatID(input.ListingID, input.BuyerID, input.SellerID)
	if existing, err := uc.chatRepo.GetByID(ctx, chatID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, "NOT_FOUND") {
		return nil, false, err
	}

	chat := &entity.Chat{
		ID:           chatID,
		ListingID:    input.ListingID,
		BuyerID:      input.BuyerID,
		SellerID:     input.SellerID,
		Participants: []string{input.BuyerID, input.SellerID},
	}
	if err := uc.chatRepo.Create(ctx, chat); err != nil {
		if errors.Is(err, "ALREADY_EXISTS") {
			existing, getErr := uc.chatRepo.GetByID(ctx, chatID)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	logger.Info("Chat %s created between buyer %s and seller %s", chat.ID, chat.BuyerID, chat.SellerID)
	return chat, true, nil
}

// GetChatByID returns a chat to one of its participants.
func (uc *ChatUseCase) GetChatByID(ctx context.Context, userID, chatID string) (*entity.Chat, error) {
	chat, err := uc.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsParticipant(userID) {
		return nil, errors.Forbidden("You are not a participant in this conversation", nil)
	}
	return chat, nil
}

// ListChats returns the caller's inbox, most recent activity first. Each
// row carries the counterparty, listing context and a freshly computed
// unread count. Decoration failures degrade the row instead of failing
// the whole listing.
func (uc *ChatUseCase) ListChats(ctx context.Context, userID string, limit, offset int) ([]*ChatPreview, int64, error) {
	chats, total, err := uc.chatRepo.ListByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	previews := make([]*ChatPreview, 0, len(chats))
	for _, chat := range chats {
		other := chat.OtherParticipant(userID)
		preview := &ChatPreview{
			ChatID:      chat.ID,
			ListingID:   chat.ListingID,
			RecipientID: other,
			LastMessage: chat.LastMessage,
		}
		if !chat.LastMessageAt.IsZero() {
			preview.LastMessageTime = chat.LastMessageAt.UTC().Format(time.RFC3339)
		}

		if user, err := uc.userRepo.GetByID(ctx, other); err == nil {
			preview.RecipientName = user.DisplayName()
		} else {
			logger.Warn("Counterparty %s not resolved for chat %s: %v", other, chat.ID, err)
		}

		if listing, err := uc.listingRepo.GetByID(ctx, chat.ListingID); err == nil {
			preview.ListingTitle = listing.Title
			preview.ListingType = listing.Type
		} else {
			logger.Warn("Listing %s not resolved for chat %s: %v", chat.ListingID, chat.ID, err)
		}

		if n, err := uc.chatRepo.CountUnread(ctx, chat.ID, userID); err == nil {
			preview.UnreadCount = n
		} else {
			logger.Warn("Unread count failed for chat %s: %v", chat.ID, err)
		}

		previews = append(previews, preview)
	}

	return previews, total, nil
}

// GetChatMessages returns a chat's messages, oldest first, to one of its
// participants. Sender info is embedded per message.
func (uc *ChatUseCase) GetChatMessages(ctx context.Context, userID, chatID string, limit, offset int) ([]*MessageResponse, int64, error) {
	chat, err := uc.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, 0, err
	}
	if !chat.IsParticipant(userID) {
		return nil, 0, errors.Forbidden("You are not a participant in this conversation", nil)
	}

	messages, total, err := uc.chatRepo.GetMessagesByChat(ctx, chatID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	// Only two senders are possible, cache both lookups.
	senders := make(map[string]*SenderInfo, 2)
	responses := make([]*MessageResponse, 0, len(messages))
	for _, msg := range messages {
		info, ok := senders[msg.SenderID]
		if !ok {
			if user, err := uc.userRepo.GetByID(ctx, msg.SenderID); err == nil {
				info = &SenderInfo{ID: user.ID, Name: user.DisplayName()}
			} else {
				logger.Warn("Sender %s not resolved for chat %s: %v", msg.SenderID, chatID, err)
				info = &SenderInfo{ID: msg.SenderID}
			}
			senders[msg.SenderID] = info
		}
		responses = append(responses, &MessageResponse{Message: msg, Sender: info})
	}

	return responses, total, nil
}

// SendMessage persists a message and fans it out. Order is fixed:
// authorization, durable write, preview update, realtime push to both
// participants, unread threshold check. The caller gets the persisted
// message back as soon as the write lands; everything after that is
// best-effort.
func (uc *ChatUseCase) SendMessage(ctx context.Context, senderID string, input SendMessageInput) (*MessageResponse, error) {
	if allowed, wait := uc.limiter.Allow(senderID, "send_message"); !allowed {
		return nil, errors.TooManyRequests(fmt.Sprintf("Sending too fast, retry in %s", wait.Round(time.Second)))
	}

	chat, err := uc.chatRepo.GetByID(ctx, input.ChatID)
	if err != nil {
		return nil, err
	}
	if !chat.IsParticipant(senderID) {
		return nil, errors.Forbidden("You are not a participant in this conversation", nil)
	}
	if input.RecipientID != chat.OtherParticipant(senderID) {
		return nil, errors.BadRequest("Recipient is not the other participant of this conversation", nil)
	}

	sender, err := uc.userRepo.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}

	message := &entity.Message{
		ChatID:      chat.ID,
		SenderID:    senderID,
		RecipientID: input.RecipientID,
		Body:        input.Body,
		ClientTime:  input.ClientTime,
	}
	if err := uc.chatRepo.CreateMessage(ctx, message); err != nil {
		return nil, err
	}

	// Preview staleness is tolerable, a lost message is not.
	if err := uc.chatRepo.UpdateLastMessage(ctx, chat.ID, message.Body, message.CreatedAt); err != nil {
		logger.Warn("Preview update failed for chat %s: %v", chat.ID, err)
	}

	response := &MessageResponse{
		Message: message,
		Sender:  &SenderInfo{ID: sender.ID, Name: sender.DisplayName()},
	}

	payload := ws.Envelope(ws.EventReceiveMessage, response)
	uc.pusher.SendToUser(input.RecipientID, payload)
	uc.pusher.SendToUser(senderID, payload)

	uc.maybeNotifyUnread(ctx, chat, input.RecipientID)

	return response, nil
}

// maybeNotifyUnread dispatches an unread alert when the recipient's
// count lands exactly on the threshold. Landing exactly means one alert
// per unread streak; reading anything resets the streak naturally, with
// no notification state to store.
func (uc *ChatUseCase) maybeNotifyUnread(ctx context.Context, chat *entity.Chat, recipientID string) {
	count, err := uc.chatRepo.CountUnread(ctx, chat.ID, recipientID)
	if err != nil {
		logger.Warn("Unread count failed for chat %s: %v", chat.ID, err)
		return
	}
	if count != uc.unreadThreshold {
		return
	}

	p := UnreadAlertPayload{
		RecipientID: recipientID,
		ChatID:      chat.ID,
		ListingID:   chat.ListingID,
		Unread:      count,
	}
	if err := uc.dispatcher.DispatchUnreadAlert(ctx, p); err != nil {
		logger.Error("Unread alert dispatch failed for user %s chat %s: %v", recipientID, chat.ID, err)
	}
}

// MarkSeen flips one message to seen. Only the recipient may do it, and
// doing it twice is a no-op. The sender gets a message_seen push.
func (uc *ChatUseCase) MarkSeen(ctx context.Context, userID, chatID, messageID string) error {
	chat, err := uc.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.IsParticipant(userID) {
		return errors.Forbidden("You are not a participant in this conversation", nil)
	}

	message, err := uc.chatRepo.GetMessageByID(ctx, chatID, messageID)
	if err != nil {
		return err
	}
	if message.RecipientID != userID {
		return errors.Forbidden("Only the recipient can mark a message as seen", nil)
	}
	if message.Seen {
		return nil
	}

	if err := uc.chatRepo.MarkMessageSeen(ctx, chatID, messageID); err != nil {
		return err
	}

	uc.pusher.SendToUser(message.SenderID, ws.Envelope(ws.EventMessageSeen, ws.MarkSeenEvent{
		MessageID: messageID,
		UserID:    userID,
		ChatID:    chatID,
	}))

	return nil
}

// MarkAllSeen flips every unseen message addressed to the caller. Both
// participants get an all_messages_seen push when anything changed.
func (uc *ChatUseCase) MarkAllSeen(ctx context.Context, userID, chatID string) error {
	chat, err := uc.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.IsParticipant(userID) {
		return errors.Forbidden("You are not a participant in this conversation", nil)
	}

	updated, err := uc.chatRepo.MarkAllSeen(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if updated == 0 {
		return nil
	}

	payload := ws.Envelope(ws.EventAllMessagesSeen, ws.MarkAllSeenEvent{
		ChatID: chatID,
		UserID: userID,
	})
	uc.pusher.SendToUser(chat.BuyerID, payload)
	uc.pusher.SendToUser(chat.SellerID, payload)

	return nil
}

// NotifyTyping relays a typing indicator to whoever else is viewing the
// chat room. Purely advisory, never persisted, failures are silent.
func (uc *ChatUseCase) NotifyTyping(ctx context.Context, userID, chatID string, typing bool) {
	if allowed, _ := uc.limiter.Allow(userID, "typing"); !allowed {
		return
	}

	chat, err := uc.chatRepo.GetByID(ctx, chatID)
	if err != nil || !chat.IsParticipant(userID) {
		return
	}

	uc.pusher.SendToChatRoom(chatID, ws.Envelope(ws.EventTypingIndicator, map[string]interface{}{
		"chat_id": chatID,
		"user_id": userID,
		"typing":  typing,
	}), userID)
}

// SendChatMessage adapts realtime send_message frames onto SendMessage.
func (uc *ChatUseCase) SendChatMessage(ctx context.Context, senderID string, ev ws.SendMessageEvent) error {
	_, err := uc.SendMessage(ctx, senderID, SendMessageInput{
		ChatID:      ev.ChatID,
		RecipientID: ev.RecipientID,
		Body:        ev.Message,
		ClientTime:  ev.Timestamp,
	})
	return err
}

// MarkMessageSeen adapts realtime mark_seen frames onto MarkSeen.
func (uc *ChatUseCase) MarkMessageSeen(ctx context.Context, userID, chatID, messageID string) error {
	return uc.MarkSeen(ctx, userID, chatID, messageID)
}

// MarkAllMessagesSeen adapts realtime mark_all_seen frames onto
// MarkAllSeen.
func (uc *ChatUseCase) MarkAllMessagesSeen(ctx context.Context, userID, chatID string) error {
	return uc.MarkAllSeen(ctx, userID, chatID)
}
