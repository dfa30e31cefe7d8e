package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"agromart/internal/usecase"
	"agromart/pkg/response"
)

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase: chatUseCase,
	}
}

type createChatRequest struct {
	ListingID string `json:"listing_id" validate:"required"`
	BuyerID   string `json:"buyer_id" validate:"required"`
	SellerID  string `json:"seller_id" validate:"required"`
}

type sendMessageRequest struct {
	RecipientID string `json:"recipient_id" validate:"required"`
	Message     string `json:"message" validate:"required,max=5000"`
	ClientTime  string `json:"client_timestamp,omitempty"`
}

// CreateChat opens the conversation for a (listing, buyer, seller)
// triple. Repeat calls with the same triple return the existing chat
// with 200 instead of 201.
func (h *ChatHandler) CreateChat(c echo.Context) error {
	var req createChatRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	chat, created, err := h.chatUseCase.CreateChat(c.Request().Context(), userID, usecase.CreateChatInput{
		ListingID: req.ListingID,
		BuyerID:   req.BuyerID,
		SellerID:  req.SellerID,
	})
	if err != nil {
		return response.Error(c, err)
	}

	if created {
		return response.Created(c, chat)
	}
	return response.Success(c, chat)
}

// GetUserChats returns the caller's inbox.
func (h *ChatHandler) GetUserChats(c echo.Context) error {
	userID := c.Get("uid").(string)
	limit, offset := pagination(c, 20)

	chats, total, err := h.chatUseCase.ListChats(c.Request().Context(), userID, limit, offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.SuccessPaginated(c, chats, total, limit, offset)
}

// GetChatByID returns a single chat the caller participates in.
func (h *ChatHandler) GetChatByID(c echo.Context) error {
	userID := c.Get("uid").(string)
	chatID := c.Param("id")

	chat, err := h.chatUseCase.GetChatByID(c.Request().Context(), userID, chatID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, chat)
}

// GetChatMessages returns a chat's messages, oldest first.
func (h *ChatHandler) GetChatMessages(c echo.Context) error {
	userID := c.Get("uid").(string)
	chatID := c.Param("id")
	limit, offset := pagination(c, 50)

	messages, total, err := h.chatUseCase.GetChatMessages(c.Request().Context(), userID, chatID, limit, offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.SuccessPaginated(c, messages, total, limit, offset)
}

// SendMessage is the REST path into the delivery engine, for clients
// without a live realtime connection.
func (h *ChatHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)
	chatID := c.Param("id")

	message, err := h.chatUseCase.SendMessage(c.Request().Context(), userID, usecase.SendMessageInput{
		ChatID:      chatID,
		RecipientID: req.RecipientID,
		Body:        req.Message,
		ClientTime:  req.ClientTime,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}

// MarkMessageSeen marks a single message as seen by its recipient.
func (h *ChatHandler) MarkMessageSeen(c echo.Context) error {
	userID := c.Get("uid").(string)
	chatID := c.Param("id")
	messageID := c.Param("messageId")

	if err := h.chatUseCase.MarkSeen(c.Request().Context(), userID, chatID, messageID); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"status": "seen"})
}

// MarkChatAsRead marks every message addressed to the caller as seen.
func (h *ChatHandler) MarkChatAsRead(c echo.Context) error {
	userID := c.Get("uid").(string)
	chatID := c.Param("id")

	if err := h.chatUseCase.MarkAllSeen(c.Request().Context(), userID, chatID); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"status": "read"})
}

func pagination(c echo.Context, defaultLimit int) (int, int) {
	limit := defaultLimit
	offset := 0

	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if offsetStr := c.QueryParam("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	return limit, offset
}
