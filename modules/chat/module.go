package chat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-monolith/mono"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	domain "github.com/example/chat-server/domain/chat"
	"github.com/example/chat-server/events"
)

// Module is the core chat engine: session registry, room directory, and
// message store, with every state-changing operation publishing its event on
// the bus after the durable mutation succeeds.
type Module struct {
	db       *gorm.DB
	dbPath   string
	sessions *SessionRegistry
	rooms    *RoomDirectory
	store    *MessageStore
	eventBus mono.EventBus
	logger   *slog.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new chat module.
func NewModule() *Module {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "chat.db"
	}
	return &Module{
		dbPath:   dbPath,
		sessions: NewSessionRegistry(),
		logger:   slog.Default().With("module", "chat"),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "chat"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.MessageSentV1.ToBase(),
		events.IdentityClaimedV1.ToBase(),
		events.IdentityReleasedV1.ToBase(),
		events.RoomCreatedV1.ToBase(),
		events.RoomDeletedV1.ToBase(),
		events.MemberJoinedV1.ToBase(),
		events.MemberLeftV1.ToBase(),
		events.RoomHistoryClearedV1.ToBase(),
		events.GlobalHistoryClearedV1.ToBase(),
	}
}

// Start opens the durable store and runs migrations.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Connecting to SQLite database", "path", m.dbPath)

	logLevel := logger.Silent
	if os.Getenv("DB_DEBUG") == "true" {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(m.dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	m.db = db

	if err := m.db.AutoMigrate(&domain.Room{}, &domain.Membership{}, &domain.Message{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	m.store = NewMessageStore(m.db)
	m.rooms = NewRoomDirectory(m.db, m.store)

	m.logger.Info("Chat module started")
	return nil
}

// Stop closes the database connection.
func (m *Module) Stop(_ context.Context) error {
	if m.db == nil {
		return nil
	}
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	m.logger.Info("Chat module stopped")
	return nil
}

// Health performs a health check on the chat module.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.db == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "database not initialized",
		}
	}
	sqlDB, err := m.db.DB()
	if err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("failed to get sql.DB: %v", err),
		}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver":              "sqlite",
			"path":                m.dbPath,
			"identified_sessions": m.sessions.Count(),
		},
	}
}

// Sessions returns the session registry.
func (m *Module) Sessions() *SessionRegistry {
	return m.sessions
}

// Rooms returns the room directory.
func (m *Module) Rooms() *RoomDirectory {
	return m.rooms
}

// Store returns the message store.
func (m *Module) Store() *MessageStore {
	return m.store
}

// ClaimIdentity validates and claims an identity for a connection.
func (m *Module) ClaimIdentity(connID, rawIdentity string) (string, error) {
	identity, err := ValidateIdentity(rawIdentity)
	if err != nil {
		return "", err
	}
	if err := m.sessions.Claim(connID, identity); err != nil {
		return "", err
	}

	m.publish(func() error {
		return events.IdentityClaimedV1.Publish(m.eventBus, events.IdentityClaimedEvent{
			Identity:  identity,
			Timestamp: time.Now().UTC(),
		}, nil)
	}, "IdentityClaimed")

	m.logger.Info("Identity claimed", "connID", connID, "identity", identity)
	return identity, nil
}

// ReleaseIdentity releases whatever identity the connection holds and
// announces the departure. Unidentified connections release silently.
func (m *Module) ReleaseIdentity(connID string) (string, bool) {
	identity, ok := m.sessions.Release(connID)
	if !ok {
		return "", false
	}

	m.publish(func() error {
		return events.IdentityReleasedV1.Publish(m.eventBus, events.IdentityReleasedEvent{
			Identity:  identity,
			Timestamp: time.Now().UTC(),
		}, nil)
	}, "IdentityReleased")

	m.logger.Info("Identity released", "connID", connID, "identity", identity)
	return identity, true
}

// SendGlobal appends a message to the lobby log. The event is published only
// after the append succeeds.
func (m *Module) SendGlobal(author, body string) (*domain.Message, error) {
	if err := ValidateBody(body); err != nil {
		return nil, err
	}

	msg := &domain.Message{
		Destination: domain.GlobalDestination,
		Author:      author,
		Body:        body,
		Timestamp:   time.Now().UTC(),
	}
	if err := m.store.Append(msg); err != nil {
		return nil, err
	}

	m.publishMessage(msg)
	return msg, nil
}

// SendRoomMessage appends a message to a room's log after verifying the
// author's membership. A non-member send never touches the log.
func (m *Module) SendRoomMessage(roomID, author, body string) (*domain.Message, error) {
	roomID, err := ValidateRoomID(roomID)
	if err != nil {
		return nil, err
	}
	if err := ValidateBody(body); err != nil {
		return nil, err
	}

	member, err := m.rooms.IsMember(roomID, author)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotMember
	}

	msg := &domain.Message{
		Destination: roomID,
		Author:      author,
		Body:        body,
		Timestamp:   time.Now().UTC(),
	}
	if err := m.store.Append(msg); err != nil {
		return nil, err
	}

	m.publishMessage(msg)
	return msg, nil
}

// CreateRoom registers a room with creator as owner and sole member.
func (m *Module) CreateRoom(roomID, displayName, creator string) (*domain.Room, error) {
	room, err := m.rooms.Create(roomID, displayName, creator)
	if err != nil {
		return nil, err
	}

	m.publish(func() error {
		return events.RoomCreatedV1.Publish(m.eventBus, events.RoomCreatedEvent{
			RoomID:      room.ID,
			DisplayName: room.DisplayName,
			Owner:       room.Owner,
			Timestamp:   room.CreatedAt,
		}, nil)
	}, "RoomCreated")

	m.logger.Info("Room created", "roomID", room.ID, "owner", creator)
	return room, nil
}

// JoinRoom adds identity to the room and returns the full history for
// initial sync.
func (m *Module) JoinRoom(roomID, identity string) (*domain.Room, []domain.Message, error) {
	room, history, err := m.rooms.Join(roomID, identity)
	if err != nil {
		return nil, nil, err
	}

	m.publish(func() error {
		return events.MemberJoinedV1.Publish(m.eventBus, events.MemberJoinedEvent{
			RoomID:    room.ID,
			Identity:  identity,
			Timestamp: time.Now().UTC(),
		}, nil)
	}, "MemberJoined")

	return room, history, nil
}

// LeaveRoom removes identity from the room's membership set. The returned
// bool reports whether the identity was actually a member.
func (m *Module) LeaveRoom(roomID, identity string) (bool, error) {
	wasMember, err := m.rooms.Leave(roomID, identity)
	if err != nil {
		return false, err
	}
	if wasMember {
		m.publish(func() error {
			return events.MemberLeftV1.Publish(m.eventBus, events.MemberLeftEvent{
				RoomID:    roomID,
				Identity:  identity,
				Timestamp: time.Now().UTC(),
			}, nil)
		}, "MemberLeft")
	}
	return wasMember, nil
}

// ClearRoomHistory wipes a room's log on behalf of one of its members.
func (m *Module) ClearRoomHistory(roomID, requester string) error {
	if err := m.rooms.ClearHistory(roomID, requester); err != nil {
		return err
	}

	m.publish(func() error {
		return events.RoomHistoryClearedV1.Publish(m.eventBus, events.RoomHistoryClearedEvent{
			RoomID:    roomID,
			ClearedBy: requester,
			Timestamp: time.Now().UTC(),
		}, nil)
	}, "RoomHistoryCleared")

	return nil
}

// DeleteRoom destroys a room on behalf of its owner and announces the
// deletion to the members it had at the moment of teardown.
func (m *Module) DeleteRoom(roomID, requester string) ([]string, error) {
	members, err := m.rooms.Delete(roomID, requester)
	if err != nil {
		return nil, err
	}

	m.publish(func() error {
		return events.RoomDeletedV1.Publish(m.eventBus, events.RoomDeletedEvent{
			RoomID:    roomID,
			DeletedBy: requester,
			Members:   members,
			Timestamp: time.Now().UTC(),
		}, nil)
	}, "RoomDeleted")

	m.logger.Info("Room deleted", "roomID", roomID, "by", requester)
	return members, nil
}

// ClearGlobalHistory empties the lobby log. The lobby itself stays live.
func (m *Module) ClearGlobalHistory(requester string) error {
	if err := m.store.Clear(domain.GlobalDestination); err != nil {
		return err
	}

	m.publish(func() error {
		return events.GlobalHistoryClearedV1.Publish(m.eventBus, events.GlobalHistoryClearedEvent{
			ClearedBy: requester,
			Timestamp: time.Now().UTC(),
		}, nil)
	}, "GlobalHistoryCleared")

	return nil
}

// History returns the full log for a destination, oldest first.
func (m *Module) History(destination string) ([]domain.Message, error) {
	return m.store.ReadAll(destination)
}

// HistoryPage returns a bounded slice of a destination's log anchored at the
// newest end.
func (m *Module) HistoryPage(destination string, offset, limit int) (Page, error) {
	return m.store.ReadRange(destination, offset, limit)
}

func (m *Module) publishMessage(msg *domain.Message) {
	m.publish(func() error {
		return events.MessageSentV1.Publish(m.eventBus, events.MessageSentEvent{
			Seq:         msg.Seq,
			Destination: msg.Destination,
			Author:      msg.Author,
			Body:        msg.Body,
			Timestamp:   msg.Timestamp,
		}, nil)
	}, "MessageSent")
}

// publish runs fn and logs a warning on failure. A publish failure after a
// successful store mutation loses the broadcast, not the data, so the
// requester still gets a success outcome.
func (m *Module) publish(fn func() error, event string) {
	if m.eventBus == nil {
		return
	}
	if err := fn(); err != nil {
		m.logger.Warn("Failed to publish event", "event", event, "error", err)
	}
}
