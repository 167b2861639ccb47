// Package realtime pushes competition events to WebSocket clients grouped in rooms.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/starkspartacus/ecompetition-sub002/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

// Message types sent to clients.
const (
	MessageStatusChanged      = "STATUS_CHANGED"
	MessageParticipationEvent = "PARTICIPATION_EVENT"
)

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	RoomID  string      `json:"roomId,omitempty"`
}

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	room   string
	mu     sync.Mutex
	closed bool
}

// Hub tracks clients per room. Register and unregister go through Run's loop;
// broadcasts read the rooms under a read lock.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	rooms      map[string]map[*Client]struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		logger:     logger,
	}
}

// RoomForCompetition names the room that receives a competition's events.
func RoomForCompetition(id uuid.UUID) string {
	return "competition_" + id.String()
}

// Run serves register and unregister requests until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for room, clients := range h.rooms {
				for client := range clients {
					client.close()
				}
				delete(h.rooms, room)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.rooms[client.room]; !ok {
				h.rooms[client.room] = make(map[*Client]struct{})
			}
			h.rooms[client.room][client] = struct{}{}
			h.logger.Debug("Client registered", slog.String("room", client.room), slog.Int("clients", len(h.rooms[client.room])))
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.room]; ok {
				if _, ok := clients[client]; ok {
					client.close()
					delete(clients, client)
					if len(clients) == 0 {
						delete(h.rooms, client.room)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of clients currently in room.
func (h *Hub) ClientCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// BroadcastToRoom sends message to every client of room. Clients with a full buffer miss it.
func (h *Hub) BroadcastToRoom(room string, message Message) {
	message.RoomID = room
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal realtime message", slog.String("room", room), slog.Any("error", err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[room] {
		if !client.trySend(data) {
			h.logger.Warn("Client send buffer full, message dropped", slog.String("room", room))
		}
	}
}

func (h *Hub) NotifyTransition(_ context.Context, event models.TransitionEvent) error {
	h.BroadcastToRoom(RoomForCompetition(event.Transition.CompetitionID), Message{
		Type:    MessageStatusChanged,
		Payload: event,
	})
	return nil
}

func (h *Hub) NotifyParticipation(_ context.Context, event models.ParticipationEvent) error {
	h.BroadcastToRoom(RoomForCompetition(event.CompetitionID), Message{
		Type:    MessageParticipationEvent,
		Payload: event,
	})
	return nil
}

// Serve registers conn in room and runs its pumps until the connection ends.
func (h *Hub) Serve(conn *websocket.Conn, room string) {
	client := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), room: room}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.send)
		c.closed = true
	}
}

// readPump discards incoming messages; it only keeps the read deadline alive.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket closed unexpectedly", slog.String("room", c.room), slog.Any("error", err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
