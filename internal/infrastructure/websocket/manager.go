package websocket

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"agromart/pkg/logger"
)

// Client is one authenticated realtime session. A user with several
// devices holds several clients, all reachable through the same per-user
// address.
type Client struct {
	UserID         string
	Conn           *websocket.Conn
	Send           chan []byte
	ActiveChatRoom string
}

// Manager is the chat session registry: it maps user IDs to their live
// sessions and maintains the advisory per-conversation rooms. Message
// delivery is always addressed per user; rooms only carry typing and
// presence traffic.
type Manager struct {
	clients map[string]map[*Client]bool
	rooms   map[string]map[string]bool

	Register   chan *Client
	Unregister chan *Client

	events EventSink
	mutex  sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		clients:    make(map[string]map[*Client]bool),
		rooms:      make(map[string]map[string]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Bind attaches the engine that consumes inbound client events. Called
// once during wiring, before any connection is accepted.
func (m *Manager) Bind(events EventSink) {
	m.events = events
}

// Start runs the registry's lifecycle loop until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-m.Register:
				m.addClient(client)
				logger.Info("Client registered: user=%s sessions=%d", client.UserID, m.SessionCount(client.UserID))

			case client := <-m.Unregister:
				m.removeClient(client)
				logger.Info("Client unregistered: user=%s", client.UserID)

			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Manager) addClient(client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	sessions, ok := m.clients[client.UserID]
	if !ok {
		sessions = make(map[*Client]bool)
		m.clients[client.UserID] = sessions
	}
	sessions[client] = true
}

func (m *Manager) removeClient(client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	sessions, ok := m.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := sessions[client]; !ok {
		return
	}

	delete(sessions, client)
	close(client.Send)

	if len(sessions) == 0 {
		delete(m.clients, client.UserID)
		// Last session gone: drop the user from every advisory room.
		for chatID, members := range m.rooms {
			delete(members, client.UserID)
			if len(members) == 0 {
				delete(m.rooms, chatID)
			}
		}
	}
}

// SendToUser pushes a payload to every live session of a user. A user
// with no sessions is silently skipped; the message stays durable in the
// store and shows up on the next fetch.
func (m *Manager) SendToUser(userID string, message []byte) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for client := range m.clients[userID] {
		select {
		case client.Send <- message:
		default:
			logger.Warn("Send buffer full for user %s, dropping session", userID)
			go func(c *Client) { m.Unregister <- c }(client)
		}
	}
}

// SendToChatRoom pushes a payload to every room member except
// excludeUserID. Advisory traffic only.
func (m *Manager) SendToChatRoom(chatID string, message []byte, excludeUserID string) {
	m.mutex.RLock()
	members := make([]string, 0, len(m.rooms[chatID]))
	for userID := range m.rooms[chatID] {
		if userID != excludeUserID {
			members = append(members, userID)
		}
	}
	m.mutex.RUnlock()

	for _, userID := range members {
		m.SendToUser(userID, message)
	}
}

func (m *Manager) JoinChatRoom(chatID, userID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	members, ok := m.rooms[chatID]
	if !ok {
		members = make(map[string]bool)
		m.rooms[chatID] = members
	}
	members[userID] = true
}

func (m *Manager) LeaveChatRoom(chatID, userID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if members, ok := m.rooms[chatID]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(m.rooms, chatID)
		}
	}
}

func (m *Manager) IsOnline(userID string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients[userID]) > 0
}

func (m *Manager) SessionCount(userID string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients[userID])
}

// ReadPump reads frames from the connection and hands them to the event
// dispatcher until the peer goes away.
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		m.Unregister <- c
		c.Conn.Close()
	}()

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket read error for user %s: %v", c.UserID, err)
			}
			break
		}

		m.HandleClientMessage(c, message)
	}
}

// WritePump drains the send channel onto the connection.
func (c *Client) WritePump() {
	defer c.Conn.Close()

	for {
		message, ok := <-c.Send
		if !ok {
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			logger.Warn("WebSocket write error for user %s: %v", c.UserID, err)
			return
		}
	}
}
