package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// MessageSentEvent is emitted after a message has been appended to a
// destination's log. It is never emitted for a failed append.
type MessageSentEvent struct {
	Seq         uint      `json:"seq"`
	Destination string    `json:"destination"`
	Author      string    `json:"author"`
	Body        string    `json:"body"`
	Timestamp   time.Time `json:"timestamp"`
}

// IdentityClaimedEvent is emitted when a connection claims its identity.
type IdentityClaimedEvent struct {
	Identity  string    `json:"identity"`
	Timestamp time.Time `json:"timestamp"`
}

// IdentityReleasedEvent is emitted when an identified connection goes away.
type IdentityReleasedEvent struct {
	Identity  string    `json:"identity"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomCreatedEvent is emitted when a new room is registered.
type RoomCreatedEvent struct {
	RoomID      string    `json:"room_id"`
	DisplayName string    `json:"display_name"`
	Owner       string    `json:"owner"`
	Timestamp   time.Time `json:"timestamp"`
}

// RoomDeletedEvent is emitted when a room is destroyed. Members carries the
// membership set captured before teardown, since that information is gone by
// the time consumers run.
type RoomDeletedEvent struct {
	RoomID    string    `json:"room_id"`
	DeletedBy string    `json:"deleted_by"`
	Members   []string  `json:"members"`
	Timestamp time.Time `json:"timestamp"`
}

// MemberJoinedEvent is emitted when an identity joins a room.
type MemberJoinedEvent struct {
	RoomID    string    `json:"room_id"`
	Identity  string    `json:"identity"`
	Timestamp time.Time `json:"timestamp"`
}

// MemberLeftEvent is emitted when an identity leaves a room.
type MemberLeftEvent struct {
	RoomID    string    `json:"room_id"`
	Identity  string    `json:"identity"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomHistoryClearedEvent is emitted when a member wipes a room's log.
type RoomHistoryClearedEvent struct {
	RoomID    string    `json:"room_id"`
	ClearedBy string    `json:"cleared_by"`
	Timestamp time.Time `json:"timestamp"`
}

// GlobalHistoryClearedEvent is emitted when the lobby log is wiped.
type GlobalHistoryClearedEvent struct {
	ClearedBy string    `json:"cleared_by"`
	Timestamp time.Time `json:"timestamp"`
}

// Event definitions for the chat domain.
var (
	MessageSentV1 = helper.EventDefinition[MessageSentEvent](
		"chat",
		"MessageSent",
		"v1",
	)

	IdentityClaimedV1 = helper.EventDefinition[IdentityClaimedEvent](
		"chat",
		"IdentityClaimed",
		"v1",
	)

	IdentityReleasedV1 = helper.EventDefinition[IdentityReleasedEvent](
		"chat",
		"IdentityReleased",
		"v1",
	)

	RoomCreatedV1 = helper.EventDefinition[RoomCreatedEvent](
		"chat",
		"RoomCreated",
		"v1",
	)

	RoomDeletedV1 = helper.EventDefinition[RoomDeletedEvent](
		"chat",
		"RoomDeleted",
		"v1",
	)

	MemberJoinedV1 = helper.EventDefinition[MemberJoinedEvent](
		"chat",
		"MemberJoined",
		"v1",
	)

	MemberLeftV1 = helper.EventDefinition[MemberLeftEvent](
		"chat",
		"MemberLeft",
		"v1",
	)

	RoomHistoryClearedV1 = helper.EventDefinition[RoomHistoryClearedEvent](
		"chat",
		"RoomHistoryCleared",
		"v1",
	)

	GlobalHistoryClearedV1 = helper.EventDefinition[GlobalHistoryClearedEvent](
		"chat",
		"GlobalHistoryCleared",
		"v1",
	)
)
