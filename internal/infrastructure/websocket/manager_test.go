package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkCall struct {
	kind   string
	userID string
	chatID string
}

type recordingSink struct {
	mu    sync.Mutex
	calls []sinkCall
	err   error
}

func (s *recordingSink) SendChatMessage(ctx context.Context, senderID string, ev SendMessageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{kind: "send", userID: senderID, chatID: ev.ChatID})
	return s.err
}

func (s *recordingSink) MarkMessageSeen(ctx context.Context, userID, chatID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{kind: "mark_seen", userID: userID, chatID: chatID})
	return s.err
}

func (s *recordingSink) MarkAllMessagesSeen(ctx context.Context, userID, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{kind: "mark_all_seen", userID: userID, chatID: chatID})
	return s.err
}

func (s *recordingSink) NotifyTyping(ctx context.Context, userID, chatID string, typing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, sinkCall{kind: "typing", userID: userID, chatID: chatID})
}

func (s *recordingSink) last(t *testing.T) sinkCall {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.calls)
	return s.calls[len(s.calls)-1]
}

func newTestClient(userID string) *Client {
	return &Client{
		UserID: userID,
		Send:   make(chan []byte, 16),
	}
}

func frame(t *testing.T, eventType string, data interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	msg, err := json.Marshal(WSMessage{Type: eventType, Data: raw})
	require.NoError(t, err)
	return msg
}

func receive(t *testing.T, c *Client) WSMessage {
	t.Helper()
	select {
	case payload := <-c.Send:
		var msg WSMessage
		require.NoError(t, json.Unmarshal(payload, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return WSMessage{}
	}
}

func TestSendToUserReachesEverySession(t *testing.T) {
	m := NewManager()

	phone := newTestClient("user-1")
	laptop := newTestClient("user-1")
	m.addClient(phone)
	m.addClient(laptop)

	m.SendToUser("user-1", []byte("hello"))

	assert.Equal(t, "hello", string(<-phone.Send))
	assert.Equal(t, "hello", string(<-laptop.Send))
	assert.Equal(t, 2, m.SessionCount("user-1"))
}

func TestSendToUserSkipsOfflineUser(t *testing.T) {
	m := NewManager()

	// Must not panic or block.
	m.SendToUser("ghost", []byte("anyone there"))
	assert.False(t, m.IsOnline("ghost"))
}

func TestRemoveLastSessionLeavesRooms(t *testing.T) {
	m := NewManager()

	client := newTestClient("user-1")
	m.addClient(client)
	m.JoinChatRoom("chat-1", "user-1")

	m.removeClient(client)

	assert.False(t, m.IsOnline("user-1"))
	m.mutex.RLock()
	_, ok := m.rooms["chat-1"]
	m.mutex.RUnlock()
	assert.False(t, ok)
}

func TestRemoveOneOfManySessionsKeepsUser(t *testing.T) {
	m := NewManager()

	phone := newTestClient("user-1")
	laptop := newTestClient("user-1")
	m.addClient(phone)
	m.addClient(laptop)
	m.JoinChatRoom("chat-1", "user-1")

	m.removeClient(phone)

	assert.True(t, m.IsOnline("user-1"))
	m.mutex.RLock()
	_, ok := m.rooms["chat-1"]
	m.mutex.RUnlock()
	assert.True(t, ok)
}

func TestSendToChatRoomExcludesSender(t *testing.T) {
	m := NewManager()

	buyer := newTestClient("buyer-1")
	seller := newTestClient("seller-1")
	m.addClient(buyer)
	m.addClient(seller)
	m.JoinChatRoom("chat-1", "buyer-1")
	m.JoinChatRoom("chat-1", "seller-1")

	m.SendToChatRoom("chat-1", []byte("typing"), "buyer-1")

	assert.Equal(t, "typing", string(<-seller.Send))
	select {
	case <-buyer.Send:
		t.Fatal("sender must not receive its own room broadcast")
	default:
	}
}

func TestHandleClientMessageDispatchesSend(t *testing.T) {
	m := NewManager()
	sink := &recordingSink{}
	m.Bind(sink)

	client := newTestClient("buyer-1")
	m.HandleClientMessage(client, frame(t, EventSendMessage, SendMessageEvent{
		ChatID:      "chat-1",
		RecipientID: "seller-1",
		Message:     "hello",
	}))

	call := sink.last(t)
	assert.Equal(t, "send", call.kind)
	assert.Equal(t, "buyer-1", call.userID)
	assert.Equal(t, "chat-1", call.chatID)
}

func TestHandleClientMessageRejectsSpoofedSender(t *testing.T) {
	m := NewManager()
	sink := &recordingSink{}
	m.Bind(sink)

	client := newTestClient("buyer-1")
	m.addClient(client)
	m.HandleClientMessage(client, frame(t, EventSendMessage, SendMessageEvent{
		ChatID:      "chat-1",
		SenderID:    "someone-else",
		RecipientID: "seller-1",
		Message:     "spoof",
	}))

	assert.Empty(t, sink.calls)
	msg := receive(t, client)
	assert.Equal(t, EventError, msg.Type)
}

func TestHandleClientMessageReportsEngineFailureGenerically(t *testing.T) {
	m := NewManager()
	sink := &recordingSink{err: assert.AnError}
	m.Bind(sink)

	client := newTestClient("buyer-1")
	m.addClient(client)
	m.HandleClientMessage(client, frame(t, EventSendMessage, SendMessageEvent{
		ChatID:      "chat-1",
		RecipientID: "seller-1",
		Message:     "hello",
	}))

	msg := receive(t, client)
	assert.Equal(t, EventError, msg.Type)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, "Failed to send message", payload["error"])
	assert.NotContains(t, payload["error"], assert.AnError.Error())
}

func TestHandleClientMessageMalformedFrame(t *testing.T) {
	m := NewManager()
	sink := &recordingSink{}
	m.Bind(sink)

	client := newTestClient("buyer-1")
	m.addClient(client)
	m.HandleClientMessage(client, []byte("{not json"))

	msg := receive(t, client)
	assert.Equal(t, EventError, msg.Type)
	assert.Empty(t, sink.calls)
}

func TestHandleClientMessagePing(t *testing.T) {
	m := NewManager()
	m.Bind(&recordingSink{})

	client := newTestClient("buyer-1")
	m.addClient(client)
	m.HandleClientMessage(client, frame(t, EventPing, map[string]string{}))

	msg := receive(t, client)
	assert.Equal(t, EventPong, msg.Type)
}

func TestHandleClientMessageRoomLifecycle(t *testing.T) {
	m := NewManager()
	m.Bind(&recordingSink{})

	client := newTestClient("buyer-1")
	m.addClient(client)

	m.HandleClientMessage(client, frame(t, EventJoinChatRoom, RoomEvent{ChatID: "chat-1"}))
	assert.Equal(t, "chat-1", client.ActiveChatRoom)

	m.HandleClientMessage(client, frame(t, EventLeaveChatRoom, RoomEvent{ChatID: "chat-1"}))
	assert.Equal(t, "", client.ActiveChatRoom)
}

func TestSendToClientAfterRemovalIsSkipped(t *testing.T) {
	m := NewManager()
	m.Bind(&recordingSink{})

	client := newTestClient("user-1")
	m.addClient(client)
	m.removeClient(client)

	// Send is closed now; a late inbound frame must not write to it.
	require.NotPanics(t, func() {
		m.HandleClientMessage(client, frame(t, EventPing, map[string]string{}))
	})
}

func TestBufferFullDropThenInboundFrame(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager()
	m.Bind(&recordingSink{})
	m.Start(ctx)

	// An unbuffered Send with no reader trips the buffer-full drop on the
	// first push.
	client := &Client{UserID: "user-1", Send: make(chan []byte)}
	m.Register <- client

	require.Eventually(t, func() bool {
		return m.IsOnline("user-1")
	}, time.Second, 10*time.Millisecond)

	m.SendToUser("user-1", []byte("overflow"))

	require.Eventually(t, func() bool {
		return !m.IsOnline("user-1")
	}, time.Second, 10*time.Millisecond)

	// The read pump may still dispatch one last frame for the dropped
	// session.
	require.NotPanics(t, func() {
		m.HandleClientMessage(client, frame(t, EventPing, map[string]string{}))
	})
}

func TestStartProcessesRegistrations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager()
	m.Start(ctx)

	client := newTestClient("user-1")
	m.Register <- client

	require.Eventually(t, func() bool {
		return m.IsOnline("user-1")
	}, time.Second, 10*time.Millisecond)

	m.Unregister <- client

	require.Eventually(t, func() bool {
		return !m.IsOnline("user-1")
	}, time.Second, 10*time.Millisecond)
}
