package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"

	domain "github.com/example/chat-server/domain/chat"
	"github.com/example/chat-server/events"
)

// Frame types pushed to WebSocket clients.
const (
	FrameMessage              = "message"
	FrameUserArrived          = "user_arrived"
	FrameUserDeparted         = "user_departed"
	FrameRoomCreated          = "room_created"
	FrameRoomDeleted          = "room_deleted"
	FrameMemberJoined         = "member_joined"
	FrameMemberLeft           = "member_left"
	FrameRoomHistoryCleared   = "room_history_cleared"
	FrameGlobalHistoryCleared = "global_history_cleared"
)

// Frame is the structure pushed to WebSocket clients for chat events.
type Frame struct {
	Type        string    `json:"type"`
	RoomID      string    `json:"room_id,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Seq         uint      `json:"seq,omitempty"`
	Identity    string    `json:"identity,omitempty"`
	Author      string    `json:"author,omitempty"`
	Body        string    `json:"body,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
}

// Module consumes chat events and fans them out to live connections.
type Module struct {
	hub       *Hub
	cancelHub context.CancelFunc
	logger    *slog.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new broadcast module.
func NewModule() *Module {
	return &Module{
		hub:    NewHub(),
		logger: slog.Default().With("module", "broadcast"),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "broadcast"
}

// Start launches the hub loop.
func (m *Module) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelHub = cancel
	go m.hub.Run(ctx)
	m.logger.Info("Broadcast module started")
	return nil
}

// Stop shuts the hub down and waits for it to drain.
func (m *Module) Stop(_ context.Context) error {
	if m.cancelHub != nil {
		m.cancelHub()
		m.hub.Wait()
	}
	m.logger.Info("Broadcast module stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_clients": m.hub.ClientCount(),
		},
	}
}

// GetHub returns the WebSocket hub for the API module to use.
func (m *Module) GetHub() *Hub {
	return m.hub
}

// RegisterEventConsumers registers handlers for every chat event.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.MessageSentV1, m.handleMessageSent, m,
	); err != nil {
		return fmt.Errorf("failed to register MessageSent consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.IdentityClaimedV1, m.handleIdentityClaimed, m,
	); err != nil {
		return fmt.Errorf("failed to register IdentityClaimed consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.IdentityReleasedV1, m.handleIdentityReleased, m,
	); err != nil {
		return fmt.Errorf("failed to register IdentityReleased consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.RoomCreatedV1, m.handleRoomCreated, m,
	); err != nil {
		return fmt.Errorf("failed to register RoomCreated consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.RoomDeletedV1, m.handleRoomDeleted, m,
	); err != nil {
		return fmt.Errorf("failed to register RoomDeleted consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.MemberJoinedV1, m.handleMemberJoined, m,
	); err != nil {
		return fmt.Errorf("failed to register MemberJoined consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.MemberLeftV1, m.handleMemberLeft, m,
	); err != nil {
		return fmt.Errorf("failed to register MemberLeft consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.RoomHistoryClearedV1, m.handleRoomHistoryCleared, m,
	); err != nil {
		return fmt.Errorf("failed to register RoomHistoryCleared consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.GlobalHistoryClearedV1, m.handleGlobalHistoryCleared, m,
	); err != nil {
		return fmt.Errorf("failed to register GlobalHistoryCleared consumer: %w", err)
	}

	m.logger.Info("Registered chat event consumers")
	return nil
}

func (m *Module) handleMessageSent(_ context.Context, event events.MessageSentEvent, _ *mono.Msg) error {
	frame := Frame{
		Type:      FrameMessage,
		Seq:       event.Seq,
		Author:    event.Author,
		Body:      event.Body,
		Timestamp: event.Timestamp,
	}
	if event.Destination == domain.GlobalDestination {
		m.hub.SendToAll(frame)
	} else {
		frame.RoomID = event.Destination
		m.hub.SendToRoom(event.Destination, frame)
	}
	return nil
}

func (m *Module) handleIdentityClaimed(_ context.Context, event events.IdentityClaimedEvent, _ *mono.Msg) error {
	m.hub.SendToAll(Frame{
		Type:      FrameUserArrived,
		Identity:  event.Identity,
		Timestamp: event.Timestamp,
	})
	return nil
}

func (m *Module) handleIdentityReleased(_ context.Context, event events.IdentityReleasedEvent, _ *mono.Msg) error {
	m.hub.SendToAll(Frame{
		Type:      FrameUserDeparted,
		Identity:  event.Identity,
		Timestamp: event.Timestamp,
	})
	return nil
}

func (m *Module) handleRoomCreated(_ context.Context, event events.RoomCreatedEvent, _ *mono.Msg) error {
	m.hub.SendToAll(Frame{
		Type:        FrameRoomCreated,
		RoomID:      event.RoomID,
		DisplayName: event.DisplayName,
		Identity:    event.Owner,
		Timestamp:   event.Timestamp,
	})
	return nil
}

func (m *Module) handleRoomDeleted(_ context.Context, event events.RoomDeletedEvent, _ *mono.Msg) error {
	// Deliver to the live room channel, then tear the channel down. Both
	// run inside the hub loop so no frame can race the teardown.
	m.hub.SendToRoomThenDrop(event.RoomID, Frame{
		Type:      FrameRoomDeleted,
		RoomID:    event.RoomID,
		Identity:  event.DeletedBy,
		Timestamp: event.Timestamp,
	})
	return nil
}

func (m *Module) handleMemberJoined(_ context.Context, event events.MemberJoinedEvent, _ *mono.Msg) error {
	m.hub.SendToRoom(event.RoomID, Frame{
		Type:      FrameMemberJoined,
		RoomID:    event.RoomID,
		Identity:  event.Identity,
		Timestamp: event.Timestamp,
	})
	return nil
}

func (m *Module) handleMemberLeft(_ context.Context, event events.MemberLeftEvent, _ *mono.Msg) error {
	m.hub.SendToRoom(event.RoomID, Frame{
		Type:      FrameMemberLeft,
		RoomID:    event.RoomID,
		Identity:  event.Identity,
		Timestamp: event.Timestamp,
	})
	return nil
}

func (m *Module) handleRoomHistoryCleared(_ context.Context, event events.RoomHistoryClearedEvent, _ *mono.Msg) error {
	m.hub.SendToRoom(event.RoomID, Frame{
		Type:      FrameRoomHistoryCleared,
		RoomID:    event.RoomID,
		Identity:  event.ClearedBy,
		Timestamp: event.Timestamp,
	})
	return nil
}

func (m *Module) handleGlobalHistoryCleared(_ context.Context, event events.GlobalHistoryClearedEvent, _ *mono.Msg) error {
	m.hub.SendToAll(Frame{
		Type:      FrameGlobalHistoryCleared,
		Identity:  event.ClearedBy,
		Timestamp: event.Timestamp,
	})
	return nil
}
