package websocket

import (
	"context"
	"encoding/json"
	"time"

	"agromart/pkg/logger"
)

// Event types exchanged over the realtime channel.
const (
	// Client to server.
	EventSendMessage   = "send_message"
	EventMarkSeen      = "mark_seen"
	EventMarkAllSeen   = "mark_all_seen"
	EventJoinChatRoom  = "join_chat_room"
	EventLeaveChatRoom = "leave_chat_room"
	EventTyping        = "typing"
	EventPing          = "ping"

	// Server to client.
	EventReceiveMessage  = "receive_message"
	EventMessageSeen     = "message_seen"
	EventAllMessagesSeen = "all_messages_seen"
	EventTypingIndicator = "typing_indicator"
	EventPong            = "pong"
	EventError           = "error"
)

// WSMessage is the envelope every frame travels in, both directions.
type WSMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

type SendMessageEvent struct {
	ChatID      string `json:"chat_id"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Message     string `json:"message"`
	ListingID   string `json:"listing_id,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

type MarkSeenEvent struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	ChatID    string `json:"chat_id"`
}

type MarkAllSeenEvent struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}

type RoomEvent struct {
	ChatID string `json:"chat_id"`
}

type TypingEvent struct {
	ChatID string `json:"chat_id"`
	Typing bool   `json:"typing"`
}

// EventSink is the message delivery engine as seen from the realtime
// channel. Implemented by usecase.ChatUseCase.
type EventSink interface {
	SendChatMessage(ctx context.Context, senderID string, ev SendMessageEvent) error
	MarkMessageSeen(ctx context.Context, userID, chatID, messageID string) error
	MarkAllMessagesSeen(ctx context.Context, userID, chatID string) error
	NotifyTyping(ctx context.Context, userID, chatID string, typing bool)
}

// Envelope marshals an outbound event. Marshal failures cannot happen for
// the payload types used here, so the error is only logged.
func Envelope(eventType string, data interface{}) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		logger.Error("Failed to marshal %s payload: %v", eventType, err)
		return nil
	}

	message, err := json.Marshal(WSMessage{
		Type:      eventType,
		Data:      raw,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		logger.Error("Failed to marshal %s envelope: %v", eventType, err)
		return nil
	}
	return message
}

// HandleClientMessage dispatches one inbound frame. Malformed payloads
// and engine failures are reported back on the connection as an error
// event with a generic message; internals are only logged.
func (m *Manager) HandleClientMessage(client *Client, messageBytes []byte) {
	var wsMessage WSMessage
	if err := json.Unmarshal(messageBytes, &wsMessage); err != nil {
		logger.Warn("Invalid frame from user %s: %v", client.UserID, err)
		m.sendErrorToClient(client, "Invalid message format")
		return
	}

	ctx := context.Background()

	switch wsMessage.Type {
	case EventPing:
		m.sendToClient(client, Envelope(EventPong, map[string]string{"status": "alive"}))

	case EventSendMessage:
		var ev SendMessageEvent
		if err := json.Unmarshal(wsMessage.Data, &ev); err != nil {
			m.sendErrorToClient(client, "Invalid send_message payload")
			return
		}
		if ev.SenderID != "" && ev.SenderID != client.UserID {
			m.sendErrorToClient(client, "Sender does not match authenticated user")
			return
		}
		if ev.ChatID == "" || ev.RecipientID == "" || ev.Message == "" {
			m.sendErrorToClient(client, "Missing required fields")
			return
		}
		if err := m.events.SendChatMessage(ctx, client.UserID, ev); err != nil {
			logger.Error("send_message failed for user %s chat %s: %v", client.UserID, ev.ChatID, err)
			m.sendErrorToClient(client, "Failed to send message")
		}

	case EventMarkSeen:
		var ev MarkSeenEvent
		if err := json.Unmarshal(wsMessage.Data, &ev); err != nil {
			m.sendErrorToClient(client, "Invalid mark_seen payload")
			return
		}
		if ev.MessageID == "" || ev.ChatID == "" {
			m.sendErrorToClient(client, "Missing required fields")
			return
		}
		if err := m.events.MarkMessageSeen(ctx, client.UserID, ev.ChatID, ev.MessageID); err != nil {
			logger.Error("mark_seen failed for user %s message %s: %v", client.UserID, ev.MessageID, err)
			m.sendErrorToClient(client, "Failed to mark message as seen")
		}

	case EventMarkAllSeen:
		var ev MarkAllSeenEvent
		if err := json.Unmarshal(wsMessage.Data, &ev); err != nil {
			m.sendErrorToClient(client, "Invalid mark_all_seen payload")
			return
		}
		if ev.ChatID == "" {
			m.sendErrorToClient(client, "Missing required fields")
			return
		}
		if err := m.events.MarkAllMessagesSeen(ctx, client.UserID, ev.ChatID); err != nil {
			logger.Error("mark_all_seen failed for user %s chat %s: %v", client.UserID, ev.ChatID, err)
			m.sendErrorToClient(client, "Failed to mark messages as seen")
		}

	case EventJoinChatRoom:
		var ev RoomEvent
		if err := json.Unmarshal(wsMessage.Data, &ev); err != nil || ev.ChatID == "" {
			m.sendErrorToClient(client, "Missing chat_id")
			return
		}
		m.JoinChatRoom(ev.ChatID, client.UserID)
		client.ActiveChatRoom = ev.ChatID

	case EventLeaveChatRoom:
		var ev RoomEvent
		if err := json.Unmarshal(wsMessage.Data, &ev); err != nil || ev.ChatID == "" {
			m.sendErrorToClient(client, "Missing chat_id")
			return
		}
		m.LeaveChatRoom(ev.ChatID, client.UserID)
		if client.ActiveChatRoom == ev.ChatID {
			client.ActiveChatRoom = ""
		}

	case EventTyping:
		var ev TypingEvent
		if err := json.Unmarshal(wsMessage.Data, &ev); err != nil || ev.ChatID == "" {
			m.sendErrorToClient(client, "Missing chat_id")
			return
		}
		m.events.NotifyTyping(ctx, client.UserID, ev.ChatID, ev.Typing)

	default:
		logger.Warn("Unknown event type %q from user %s", wsMessage.Type, client.UserID)
		m.sendErrorToClient(client, "Unknown message type")
	}
}

// sendToClient delivers to one session. The read lock orders this
// against removeClient, which closes Send under the write lock; a
// session already dropped from the registry is skipped, never written.
func (m *Manager) sendToClient(client *Client, message []byte) {
	if message == nil {
		return
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if !m.clients[client.UserID][client] {
		return
	}

	select {
	case client.Send <- message:
	default:
		logger.Warn("Send buffer full for user %s, dropping session", client.UserID)
		go func() { m.Unregister <- client }()
	}
}

func (m *Manager) sendErrorToClient(client *Client, errorMsg string) {
	m.sendToClient(client, Envelope(EventError, map[string]string{"error": errorMsg}))
}
