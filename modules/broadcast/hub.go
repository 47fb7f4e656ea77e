package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gofiber/contrib/websocket"
)

// Conn is the write side of a client connection. *websocket.Conn satisfies
// it; tests substitute a recording fake.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteJSON(v any) error
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// Client represents a live WebSocket connection. RoomID is the room channel
// the connection is currently attached to, which is distinct from persistent
// membership in the room directory.
type Client struct {
	ID     string
	Conn   Conn
	RoomID string

	writeMu sync.Mutex
}

// WriteJSON marshals v and writes it to the connection. Writes are
// serialized because both the hub loop and the connection's own handler
// goroutine send frames.
func (c *Client) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteJSON(v)
}

func (c *Client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// Delivery scope for a broadcast.
type scope int

const (
	scopeAll scope = iota
	scopeRoom
	scopeOne
)

type broadcastMessage struct {
	scope   scope
	target  string // roomID for scopeRoom, connID for scopeOne
	payload any
	drop    bool // tear down the room channel after delivery
}

// Hub fans messages out to the set of connections live at dispatch time.
// It stores no chat state of its own: a connection that drops mid-dispatch
// simply misses the frame, with no queuing or retry.
type Hub struct {
	clients    map[string]*Client         // connID -> client
	rooms      map[string]map[string]bool // roomID -> set of connIDs
	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage
	done       chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMessage, 256),
		done:       make(chan struct{}),
		logger:     slog.Default().With("module", "broadcast"),
	}
}

// Run starts the hub's main loop. It accepts a context for graceful shutdown.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			close(h.done)
			return
		case client := <-h.register:
			h.handleRegister(client)
		case client := <-h.unregister:
			h.handleUnregister(client)
		case msg := <-h.broadcast:
			h.handleBroadcast(msg)
		}
	}
}

// Wait blocks until the hub has stopped.
func (h *Hub) Wait() {
	<-h.done
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		_ = client.Conn.Close()
	}
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[string]bool)
}

func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.logger.Debug("Client registered", "connID", client.ID)
}

func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	if client.RoomID != "" {
		h.detachLocked(client.ID, client.RoomID)
	}
	h.logger.Debug("Client unregistered", "connID", client.ID)
}

func (h *Hub) handleBroadcast(msg *broadcastMessage) {
	if msg.drop {
		h.handleRoomTeardown(msg)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(msg.payload)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast payload", "error", err)
		return
	}

	switch msg.scope {
	case scopeAll:
		for _, client := range h.clients {
			h.send(client, data)
		}
	case scopeRoom:
		for connID := range h.rooms[msg.target] {
			if client, ok := h.clients[connID]; ok {
				h.send(client, data)
			}
		}
	case scopeOne:
		if client, ok := h.clients[msg.target]; ok {
			h.send(client, data)
		}
	}
}

// handleRoomTeardown delivers the final frame to the room channel and then
// removes the channel itself, so no later frame can target a destroyed room.
func (h *Hub) handleRoomTeardown(msg *broadcastMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := json.Marshal(msg.payload)
	if err != nil {
		h.logger.Error("Failed to marshal teardown payload", "error", err)
		return
	}

	for connID := range h.rooms[msg.target] {
		if client, ok := h.clients[connID]; ok {
			h.send(client, data)
			if client.RoomID == msg.target {
				client.RoomID = ""
			}
		}
	}
	delete(h.rooms, msg.target)
}

func (h *Hub) send(client *Client, data []byte) {
	if err := client.write(data); err != nil {
		h.logger.Debug("Failed to send to client", "connID", client.ID, "error", err)
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub and drops its room attachment.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// SendToAll delivers payload to every live connection.
func (h *Hub) SendToAll(payload any) {
	h.broadcast <- &broadcastMessage{scope: scopeAll, payload: payload}
}

// SendToRoom delivers payload only to connections currently attached to the
// room's live channel.
func (h *Hub) SendToRoom(roomID string, payload any) {
	h.broadcast <- &broadcastMessage{scope: scopeRoom, target: roomID, payload: payload}
}

// SendToOne delivers payload to a single connection.
func (h *Hub) SendToOne(connID string, payload any) {
	h.broadcast <- &broadcastMessage{scope: scopeOne, target: connID, payload: payload}
}

// SendToRoomThenDrop delivers payload to the room channel and tears the
// channel down in the same hub-loop step.
func (h *Hub) SendToRoomThenDrop(roomID string, payload any) {
	h.broadcast <- &broadcastMessage{scope: scopeRoom, target: roomID, payload: payload, drop: true}
}

// AttachRoom associates a connection with a room's live channel, detaching
// it from any previous one first.
func (h *Hub) AttachRoom(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return
	}
	if client.RoomID != "" {
		h.detachLocked(connID, client.RoomID)
	}
	client.RoomID = roomID
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]bool)
	}
	h.rooms[roomID][connID] = true
}

// DetachRoom removes a connection's association with roomID. It is a no-op
// when the connection is attached elsewhere.
func (h *Hub) DetachRoom(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok || client.RoomID != roomID {
		return
	}
	h.detachLocked(connID, roomID)
	client.RoomID = ""
}

// RoomOf returns the room channel a connection is currently attached to.
func (h *Hub) RoomOf(connID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if client, ok := h.clients[connID]; ok {
		return client.RoomID
	}
	return ""
}

func (h *Hub) detachLocked(connID, roomID string) {
	if h.rooms[roomID] != nil {
		delete(h.rooms[roomID], connID)
		if len(h.rooms[roomID]) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// GetClient returns a client by connection id.
func (h *Hub) GetClient(connID string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[connID]
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomClientCount returns the number of connections attached to a room.
func (h *Hub) RoomClientCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
