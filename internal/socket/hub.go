// internal/socket/hub.go
package socket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// MessageType names an event pushed to subscribers
type MessageType string

const (
	// Technical debt events
	MessageTechnicalDebtCreated   MessageType = "technical_debt_created"
	MessageTechnicalDebtUpdated   MessageType = "technical_debt_updated"
	MessageTechnicalDebtDeleted   MessageType = "technical_debt_deleted"
	MessageTechnicalDebtConverted MessageType = "technical_debt_converted"
	MessageCommentAdded           MessageType = "comment_added"

	// Deprecation events
	MessageDeprecationCreated      MessageType = "deprecation_created"
	MessageDeprecationUpdated      MessageType = "deprecation_updated"
	MessageDeprecationDeleted      MessageType = "deprecation_deleted"
	MessageDeprecationLinksChanged MessageType = "deprecation_links_changed"

	// Deadline reminders
	MessageDeadlineApproaching MessageType = "deprecation_deadline_approaching"
	MessageDeadlineOverdue     MessageType = "deprecation_overdue"

	// System
	MessagePing MessageType = "ping"
	MessagePong MessageType = "pong"
	MessageAck  MessageType = "ack"
)

// Message is the envelope written to every subscriber
type Message struct {
	Type      MessageType            `json:"type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Client is one websocket connection
type Client struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Hub    *Hub
	Send   chan []byte
	Rooms  map[string]bool

	mu       sync.Mutex
	lastPing time.Time
}

// RoomMessage is a payload addressed to a room
type RoomMessage struct {
	Room    string
	Message []byte
	Exclude string // user ID that should not receive it
}

// Hub tracks connected clients and fans room messages out to them
type Hub struct {
	clients     map[*Client]bool
	roomClients map[string]map[*Client]bool

	register      chan *Client
	unregister    chan *Client
	roomBroadcast chan *RoomMessage
	done          chan struct{}

	mu  sync.RWMutex
	log zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:       make(map[*Client]bool),
		roomClients:   make(map[string]map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		roomBroadcast: make(chan *RoomMessage, 256),
		done:          make(chan struct{}),
		log:           log,
	}
}

// Run processes hub traffic until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info().Msg("websocket hub started")

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			h.log.Info().Msg("websocket hub stopped")
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case rm := <-h.roomBroadcast:
			h.broadcastToRoom(rm)

		case <-pingTicker.C:
			h.pingClients()
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	h.log.Debug().Str("user_id", client.UserID).Str("client_id", client.ID).
		Int("clients", len(h.clients)).Msg("client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)

	client.mu.Lock()
	for room := range client.Rooms {
		h.removeFromRoom(client, room)
	}
	client.mu.Unlock()

	close(client.Send)
	h.log.Debug().Str("user_id", client.UserID).Str("client_id", client.ID).
		Int("clients", len(h.clients)).Msg("client disconnected")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.Send)
		delete(h.clients, client)
	}
	h.roomClients = make(map[string]map[*Client]bool)
}

// removeFromRoom expects h.mu to be held.
func (h *Hub) removeFromRoom(client *Client, room string) {
	if clients, ok := h.roomClients[room]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.roomClients, room)
		}
	}
}

func (h *Hub) broadcastToRoom(rm *RoomMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for client := range h.roomClients[rm.Room] {
		if rm.Exclude != "" && client.UserID == rm.Exclude {
			continue
		}
		select {
		case client.Send <- rm.Message:
			sent++
		default:
			go h.drop(client)
		}
	}
	h.log.Debug().Str("room", rm.Room).Int("sent", sent).Msg("room broadcast")
}

func (h *Hub) pingClients() {
	data, _ := json.Marshal(Message{Type: MessagePing, Timestamp: time.Now()})

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.Send <- data:
		default:
			go h.drop(client)
		}
	}
}

// drop unregisters a client. It is a no-op once the hub has stopped.
func (h *Hub) drop(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// add registers a client, reporting false once the hub has stopped.
func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// ============================================
// Rooms
// ============================================

func (h *Hub) JoinRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.mu.Lock()
	client.Rooms[room] = true
	client.mu.Unlock()

	if h.roomClients[room] == nil {
		h.roomClients[room] = make(map[*Client]bool)
	}
	h.roomClients[room][client] = true
	h.log.Debug().Str("user_id", client.UserID).Str("room", room).Msg("joined room")
}

func (h *Hub) LeaveRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.mu.Lock()
	delete(client.Rooms, room)
	client.mu.Unlock()

	h.removeFromRoom(client, room)
	h.log.Debug().Str("user_id", client.UserID).Str("room", room).Msg("left room")
}

// SendToRoom queues a message for every client in room except excludeUserID.
func (h *Hub) SendToRoom(room string, msgType MessageType, payload map[string]interface{}, excludeUserID string) {
	data, err := json.Marshal(Message{Type: msgType, Payload: payload, Timestamp: time.Now()})
	if err != nil {
		h.log.Error().Err(err).Str("type", string(msgType)).Msg("failed to marshal message")
		return
	}

	select {
	case h.roomBroadcast <- &RoomMessage{Room: room, Message: data, Exclude: excludeUserID}:
	default:
		h.log.Warn().Str("room", room).Str("type", string(msgType)).Msg("broadcast queue full, dropping message")
	}
}

// RoomSize reports how many clients are subscribed to room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.roomClients[room])
}

func (h *Hub) ConnectedClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
