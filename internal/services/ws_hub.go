package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"kindred-backend/internal/pubsub"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024

	// eventsTopic carries every event between instances; each hub routes
	// locally by the envelope's channel.
	eventsTopic = "kindred:events"
)

// WSMessage is a frame pushed to a client
type WSMessage struct {
	Event   string `json:"event"`
	Channel string `json:"channel,omitempty"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type envelope struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// WSClient is one websocket connection of a user
type WSClient struct {
	ID     string
	UserID string
	hub    *WSHub
	conn   *websocket.Conn
	send   chan []byte

	mu        sync.Mutex
	sessionID string
}

// WSHub routes events to websocket connections by channel. It implements
// Publisher: events go out over pub/sub so every instance delivers to its
// own connections.
type WSHub struct {
	mu       sync.RWMutex
	channels map[string]map[*WSClient]bool
	ps       pubsub.PubSub
}

// NewWSHub creates a new WebSocket hub
func NewWSHub(ps pubsub.PubSub) *WSHub {
	return &WSHub{
		channels: make(map[string]map[*WSClient]bool),
		ps:       ps,
	}
}

// Publish implements Publisher
func (h *WSHub) Publish(ctx context.Context, channel, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	msg, err := json.Marshal(envelope{Channel: channel, Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return h.ps.Publish(ctx, eventsTopic, string(msg))
}

// Run delivers events from pub/sub until ctx is cancelled
func (h *WSHub) Run(ctx context.Context) error {
	msgs, cancel, err := h.ps.Subscribe(ctx, eventsTopic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
				log.Error().Err(err).Msg("Failed to decode event envelope")
				continue
			}
			h.deliver(env)
		}
	}
}

func (h *WSHub) deliver(env envelope) {
	data, err := json.Marshal(WSMessage{Event: env.Event, Channel: env.Channel, Data: env.Data})
	if err != nil {
		log.Error().Err(err).Str("event", env.Event).Msg("Failed to marshal message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.channels[env.Channel] {
		c.enqueue(data)
	}
}

// Register adds a connection and subscribes it to its user channel
func (h *WSHub) Register(userID string, conn *websocket.Conn) *WSClient {
	c := &WSClient{
		ID:     uuid.New().String(),
		UserID: userID,
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
	}

	h.mu.Lock()
	h.join(c, UserChannel(userID))
	h.mu.Unlock()

	log.Info().Str("user_id", userID).Str("conn_id", c.ID).Msg("WebSocket connection registered")
	return c
}

// Unregister removes a connection from every channel and closes its queue
func (h *WSHub) Unregister(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := false
	for channel, clients := range h.channels {
		if clients[c] {
			delete(clients, c)
			removed = true
			if len(clients) == 0 {
				delete(h.channels, channel)
			}
		}
	}
	if removed {
		close(c.send)
		log.Info().Str("user_id", c.UserID).Str("conn_id", c.ID).Msg("WebSocket connection unregistered")
	}
}

// JoinSession moves the connection into a session room. Callers check
// that the user participates in the session.
func (h *WSHub) JoinSession(c *WSClient, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.mu.Lock()
	if c.sessionID != "" {
		h.leave(c, SessionChannel(c.sessionID))
	}
	c.sessionID = sessionID
	c.mu.Unlock()

	h.join(c, SessionChannel(sessionID))
}

// LeaveSession removes the connection from its session room
func (h *WSHub) LeaveSession(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID != "" {
		h.leave(c, SessionChannel(c.sessionID))
		c.sessionID = ""
	}
}

// join and leave require h.mu held
func (h *WSHub) join(c *WSClient, channel string) {
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*WSClient]bool)
	}
	h.channels[channel][c] = true
}

func (h *WSHub) leave(c *WSClient, channel string) {
	if clients, ok := h.channels[channel]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.channels, channel)
		}
	}
}

// IsOnline reports whether the user has a connection on this instance
func (h *WSHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[UserChannel(userID)]) > 0
}

// enqueue requires the hub read lock, which keeps send open
func (c *WSClient) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		log.Warn().Str("user_id", c.UserID).Str("conn_id", c.ID).Msg("Dropping message for slow client")
	}
}

// Send queues a frame for this connection only
func (c *WSClient) Send(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal message")
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if c.hub.channels[UserChannel(c.UserID)][c] {
		c.enqueue(data)
	}
}

// ReadPump reads client frames until the connection fails, passing each
// to handle. It unregisters the client on exit.
func (c *WSClient) ReadPump(handle func(c *WSClient, data []byte)) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("user_id", c.UserID).Msg("WebSocket error")
			}
			return
		}
		handle(c, data)
	}
}

// WritePump drains the send queue and keeps the connection alive with pings
func (c *WSClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SessionID returns the session room the connection has joined, if any
func (c *WSClient) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// userFromChannel extracts the user id from a user channel name
func userFromChannel(channel string) (string, bool) {
	return strings.CutPrefix(channel, "user:")
}
