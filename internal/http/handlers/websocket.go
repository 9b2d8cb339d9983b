package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/AmaniTsuma/smartdesk-backend-sub000/internal/auth"
	"github.com/AmaniTsuma/smartdesk-backend-sub000/internal/chat"
	"github.com/AmaniTsuma/smartdesk-backend-sub000/pkg/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// WebSocketMessage represents a message sent through WebSocket
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Topic     string      `json:"topic,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// clientEvent is what connected sockets send upward.
type clientEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
	MessageType    string `json:"message_type,omitempty"`
}

// WebSocketClient represents a connected WebSocket client
type WebSocketClient struct {
	conn   *websocket.Conn
	sender chat.SenderInfo
	topics map[string]bool
	send   chan WebSocketMessage
	hub    *WebSocketHub
}

type subscription struct {
	client *WebSocketClient
	topic  string
	join   bool
}

// WebSocketHub fans realtime events out to sockets joined to per-user and
// per-conversation topics. It implements the Publish side of the engine's
// notification contract.
type WebSocketHub struct {
	clients    map[*WebSocketClient]bool
	broadcast  chan WebSocketMessage
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	subscribe  chan subscription
	mu         sync.RWMutex
}

// AccountDirectory resolves account records for socket principals. JWT
// claims carry no display name, so the handler looks it up here.
type AccountDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub         *WebSocketHub
	authService *auth.Service
	directory   AccountDirectory
	chatService *chat.Service
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(authService *auth.Service, directory AccountDirectory, chatService *chat.Service) *WebSocketHandler {
	hub := &WebSocketHub{
		clients:    make(map[*WebSocketClient]bool),
		broadcast:  make(chan WebSocketMessage),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		subscribe:  make(chan subscription),
	}

	go hub.run()
	return &WebSocketHandler{
		hub:         hub,
		authService: authService,
		directory:   directory,
		chatService: chatService,
	}
}

// Upgrader configures the websocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Allow connections from any origin in development
		// In production, check against allowed origins
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// HandleWebSocket upgrades the connection and registers the socket.
// Authenticated users present a JWT (header middleware or token query
// param); public visitors present the public_id they were handed on their
// first message, plus their self-asserted name and email.
func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	sender, err := h.resolveSocketSender(c)
	if err != nil {
		return err
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return err
	}

	client := &WebSocketClient{
		conn:   conn,
		sender: sender,
		topics: map[string]bool{chat.UserTopic(sender.ID): true},
		send:   make(chan WebSocketMessage, 256),
		hub:    h.hub,
	}

	h.hub.register <- client

	go client.writePump()
	go client.readPump(h.chatService)

	return nil
}

func (h *WebSocketHandler) resolveSocketSender(c echo.Context) (chat.SenderInfo, error) {
	if token := c.QueryParam("token"); token != "" {
		claims, err := h.authService.ValidateToken(token)
		if err != nil {
			return chat.SenderInfo{}, echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
		}
		sender := chat.SenderInfo{
			ID:    claims.UserID,
			Email: claims.Email,
			Role:  claims.Role,
		}
		// Claims carry no display name; messages and participant snapshots
		// persist it, so pick it up from the account record.
		if h.directory != nil {
			if user, err := h.directory.GetByID(c.Request().Context(), claims.UserID); err == nil && user != nil {
				sender.Name = user.Name
			}
		}
		return sender, nil
	}

	if publicID := c.QueryParam("public_id"); publicID != "" {
		id, err := uuid.Parse(publicID)
		if err != nil {
			return chat.SenderInfo{}, echo.NewHTTPError(http.StatusBadRequest, "Invalid public_id")
		}
		return chat.SenderInfo{
			ID:    id,
			Name:  c.QueryParam("name"),
			Email: c.QueryParam("email"),
			Role:  models.RolePublic,
		}, nil
	}

	return chat.SenderInfo{}, echo.NewHTTPError(http.StatusUnauthorized, "Missing authorization token")
}

// Publish sends an event to every socket joined to the topic. Satisfies the
// realtime transport contract consumed by the chat handlers.
func (h *WebSocketHandler) Publish(topic, event string, payload interface{}) {
	h.hub.broadcast <- WebSocketMessage{
		Type:      event,
		Topic:     topic,
		Data:      payload,
		Timestamp: time.Now(),
	}
}

// run manages the WebSocket hub
func (hub *WebSocketHub) run() {
	for {
		select {
		case client := <-hub.register:
			hub.mu.Lock()
			hub.clients[client] = true
			log.Debug().Str("user_id", client.sender.ID.String()).Msg("websocket client connected")

			welcome := WebSocketMessage{
				Type:      "connection",
				Data:      map[string]string{"status": "connected"},
				Timestamp: time.Now(),
			}
			select {
			case client.send <- welcome:
			default:
				close(client.send)
				delete(hub.clients, client)
			}
			hub.mu.Unlock()

		case client := <-hub.unregister:
			hub.mu.Lock()
			if _, ok := hub.clients[client]; ok {
				delete(hub.clients, client)
				close(client.send)
				log.Debug().Str("user_id", client.sender.ID.String()).Msg("websocket client disconnected")
			}
			hub.mu.Unlock()

		case sub := <-hub.subscribe:
			hub.mu.Lock()
			if _, ok := hub.clients[sub.client]; ok {
				if sub.join {
					sub.client.topics[sub.topic] = true
				} else {
					delete(sub.client.topics, sub.topic)
				}
			}
			hub.mu.Unlock()

		case message := <-hub.broadcast:
			// Write lock: unresponsive clients are evicted in this branch.
			hub.mu.Lock()
			for client := range hub.clients {
				if message.Topic != "" && !client.topics[message.Topic] {
					continue
				}
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(hub.clients, client)
				}
			}
			hub.mu.Unlock()
		}
	}
}

// readPump handles reading messages from the WebSocket
func (c *WebSocketClient) readPump(chatService *chat.Service) {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	// 30s read deadline, refreshed by pongs; we ping every 20s
	c.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("websocket read error")
			}
			break
		}

		var event clientEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			continue
		}

		switch event.Type {
		case "ping":
			pong := WebSocketMessage{
				Type:      "pong",
				Data:      map[string]string{"status": "ok"},
				Timestamp: time.Now(),
			}
			select {
			case c.send <- pong:
			default:
				return
			}

		case "join-conversation", "leave-conversation":
			id, err := uuid.Parse(event.ConversationID)
			if err != nil {
				continue
			}
			c.hub.subscribe <- subscription{
				client: c,
				topic:  chat.ConversationTopic(id),
				join:   event.Type == "join-conversation",
			}

		case "send-message":
			c.handleSendMessage(chatService, event)
		}
	}
}

// handleSendMessage dispatches a message received over the socket and fans
// the resulting notifications back out through the hub.
func (c *WebSocketClient) handleSendMessage(chatService *chat.Service, event clientEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	input := chat.SendMessageInput{
		Sender:      c.sender,
		Content:     event.Content,
		MessageType: models.MessageType(event.MessageType),
	}
	if event.ConversationID != "" {
		id, err := uuid.Parse(event.ConversationID)
		if err != nil {
			c.sendError("Invalid conversation_id")
			return
		}
		input.ConversationID = &id
	}

	_, notifications, err := chatService.SendMessage(ctx, input)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	for _, n := range notifications {
		c.hub.broadcast <- WebSocketMessage{
			Type:      n.Event,
			Topic:     n.Topic,
			Data:      n.Payload,
			Timestamp: time.Now(),
		}
	}
}

func (c *WebSocketClient) sendError(reason string) {
	msg := WebSocketMessage{
		Type:      "error",
		Data:      map[string]string{"error": reason},
		Timestamp: time.Now(),
	}
	select {
	case c.send <- msg:
	default:
	}
}

// writePump handles writing messages to the WebSocket
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(20 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				log.Warn().Err(err).Msg("websocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// GetConnectedClients returns the number of connected clients
func (h *WebSocketHandler) GetConnectedClients() int {
	h.hub.mu.RLock()
	defer h.hub.mu.RUnlock()
	return len(h.hub.clients)
}
