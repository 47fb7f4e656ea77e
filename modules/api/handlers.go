package api

import (
	"encoding/json"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	domain "github.com/example/chat-server/domain/chat"
	"github.com/example/chat-server/modules/broadcast"
)

// handleWebSocket runs the per-connection protocol loop. Each connection
// moves Unidentified -> Identified via a claim; room-scoped and send
// requests are rejected until then. Every request is answered with exactly
// one outcome frame on this connection.
func (m *Module) handleWebSocket(c *websocket.Conn) {
	connID := uuid.New().String()
	client := &broadcast.Client{ID: connID, Conn: c}

	m.hub.Register(client)
	defer func() {
		// Departure is announced only for identified sessions. Persistent
		// room membership is untouched; identity is the membership key.
		m.chat.ReleaseIdentity(connID)
		m.hub.Unregister(client)
		m.logger.Info("WebSocket client disconnected", "connID", connID)
	}()

	m.logger.Info("WebSocket client connected", "connID", connID)

	if err := client.WriteJSON(Response{Type: OutConnected, ConnID: connID}); err != nil {
		m.logger.Warn("Failed to send welcome frame", "connID", connID, "error", err)
		return
	}

	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Warn("Read error", "connID", connID, "error", err)
			}
			break
		}

		var req Request
		if err := json.Unmarshal(msgBytes, &req); err != nil {
			m.sendError(client, CodeUnknownRequest, "invalid request frame")
			continue
		}

		m.dispatch(client, req)
	}
}

// dispatch routes one request through the closed vocabulary.
func (m *Module) dispatch(client *broadcast.Client, req Request) {
	switch req.Type {
	case ReqClaim:
		m.handleClaim(client, req)
	case ReqGlobalMessage:
		m.handleGlobalMessage(client, req)
	case ReqCreateRoom:
		m.handleCreateRoom(client, req)
	case ReqJoinRoom:
		m.handleJoinRoom(client, req)
	case ReqRoomMessage:
		m.handleRoomMessage(client, req)
	case ReqLeaveRoom:
		m.handleLeaveRoom(client, req)
	case ReqClearRoomHistory:
		m.handleClearRoomHistory(client, req)
	case ReqDeleteRoom:
		m.handleDeleteRoom(client, req)
	case ReqClearGlobalHistory:
		m.handleClearGlobalHistory(client, req)
	case ReqHistory:
		m.handleHistory(client, req)
	case ReqHistoryPage:
		m.handleHistoryPage(client, req)
	default:
		m.sendError(client, CodeUnknownRequest, "unknown request type: "+string(req.Type))
	}
}

// identity returns the caller's claimed identity, or reports the
// authorization failure itself when the session is still unidentified.
func (m *Module) identity(client *broadcast.Client) (string, bool) {
	identity, ok := m.chat.Sessions().Identity(client.ID)
	if !ok {
		m.sendError(client, CodeNotIdentified, "claim an identity first")
		return "", false
	}
	return identity, true
}

func (m *Module) handleClaim(client *broadcast.Client, req Request) {
	identity, err := m.chat.ClaimIdentity(client.ID, req.Identity)
	if err != nil {
		m.sendError(client, errorCode(err), errorMessage(err))
		return
	}
	m.send(client, Response{Type: OutClaimed, Identity: identity})
}

func (m *Module) handleGlobalMessage(client *broadcast.Client, req Request) {
	identity, ok := m.identity(client)
	if !ok {
		return
	}
	msg, err := m.chat.SendGlobal(identity, req.Body)
	if err != nil {
		m.sendError(client, errorCode(err), errorMessage(err))
		return
	}
	m.send(client, Response{
		Type:        OutSent,
		Destination: msg.Destination,
		Seq:         msg.Seq,
		Timestamp:   msg.Timestamp,
	})
}

func (m *Module) handleCreateRoom(client *broadcast.Client, req Request) {
	identity, ok := m.identity(client)
	if !ok {
		return
	}
	room, err := m.chat.CreateRoom(req.RoomID, req.DisplayName, identity)
	if err != nil {
		m.sendError(client, errorCode(err), errorMessage(err))
		return
	}

	// The creator is the room's first member; attach its live channel in
	// the same request.
	m.hub.AttachRoom(client.ID, room.ID)

	m.send(client, Response{
		Type:        OutCreated,
		RoomID:      room.ID,
		DisplayName: room.DisplayName,
		Timestamp:   room.CreatedAt,
	})
}

func (m *Module) handleJoinRoom(client *broadcast.Client, req Request) {
	identity, ok := m.identity(client)
	if !ok {
		return
	}
	room, history, err := m.chat.JoinRoom(req.RoomID, identity)
	if err != nil {
		m.sendError(client, errorCode(err), errorMessage(err))
		return
	}

	m.hub.AttachRoom(client.ID, room.ID)

	m.send(client, Response{
		Type:        OutJoined,
		RoomID:      room.ID,
		DisplayName: room.DisplayName,
		Messages:    history,
	})
}

func (m *Module) handleRoomMessage(client *broadcast.Client, req Request) {
	identity, ok := m.identity(client)
	if !ok {
		return
	}
	msg, err := m.chat.SendRoomMessage(req.RoomID, identity, req.Body)
	if err != nil {
		m.sendError(client, errorCode(err), errorMessage(err))
		return
	}
	m.send(client, Response{
		Type:        OutSent,
		Destination: msg.Destination,
		Seq:         msg.Seq,
		Timestamp:   msg.Timestamp,
	})
}

func (m *Module) handleLeaveRoom(client *broadcast.Client, req Request) {
	identity, ok := m.identity(client)
	if !ok {
		return
	}
	wasMember, err := m.chat.LeaveRoom(req.RoomID, identity)
	if err != nil {
		m.sendError(client, errorCode(err), errorMessage(err))
		return
	}

	m.hub.DetachRoom(client.ID, req.RoomID)

	status := "ok"
	if !wasMember {
		status = "not_member"
	}
	m.send(client, Response{Type: OutLeft, RoomID: req.RoomID, Status: status})
}

func (m *Module) handleClearRoomHistory(client *broadcast.Client, req Request) {
	identity, ok := m.identity(client)
	if !ok {
		return
	}
	if err := m.chat.ClearRoomHistory(req.RoomID, identity); err != nil {
		m.sendError(client, errorCode(err), errorMessage(err))
		return
	}
	m.send(client, Response{Type: OutCleared, RoomID: req.RoomID})
}

func (m *Module) handleDeleteRoom(client *broadcast.Client, req Request) {
	identity, ok := m.identity(client)
	if !ok {
		return
	}
	if _, err := m.chat.DeleteRoom(req.RoomID, identity); err != nil {
		m.sendError(client, errorCode(err), errorMessage(err))
		return
	}
	m.send(client, Response{Type: OutDeleted, RoomID: req.RoomID})
}

func (m *Module) handleClearGlobalHistory(client *broadcast.Client, req Request) {
	identity, ok := m.identity(client)
	if !ok {
		return
	}
	if err := m.chat.ClearGlobalHistory(identity); err != nil {
		m.sendError(client, errorCode(err), errorMessage(err))
		return
	}
	m.send(client, Response{Type: OutCleared})
}

func (m *Module) handleHistory(client *broadcast.Client, req Request) {
	destination := req.Destination
	if destination == "" {
		destination = domain.GlobalDestination
	}
	messages, err := m.chat.History(destination)
	if err != nil {
		m.sendError(client, errorCode(err), errorMessage(err))
		return
	}
	m.send(client, Response{
		Type:        OutHistory,
		Destination: destination,
		Messages:    messages,
	})
}

func (m *Module) handleHistoryPage(client *broadcast.Client, req Request) {
	if req.Offset < 0 || req.Limit <= 0 {
		m.sendError(client, CodeInvalidRange, "offset must be >= 0 and limit > 0")
		return
	}
	destination := req.Destination
	if destination == "" {
		destination = domain.GlobalDestination
	}
	page, err := m.chat.HistoryPage(destination, req.Offset, req.Limit)
	if err != nil {
		m.sendError(client, errorCode(err), errorMessage(err))
		return
	}
	m.send(client, Response{
		Type:        OutHistoryPage,
		Destination: destination,
		Messages:    page.Messages,
		NewOffset:   page.NewOffset,
		HasMore:     page.HasMore,
	})
}

func (m *Module) send(client *broadcast.Client, resp Response) {
	if err := client.WriteJSON(resp); err != nil {
		m.logger.Debug("Failed to send outcome frame", "connID", client.ID, "error", err)
	}
}

func (m *Module) sendError(client *broadcast.Client, code, message string) {
	m.send(client, Response{Type: OutError, Code: code, Error: message})
}
