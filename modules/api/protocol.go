package api

import (
	"errors"
	"time"

	domain "github.com/example/chat-server/domain/chat"
	"github.com/example/chat-server/modules/chat"
)

// RequestType enumerates the closed request vocabulary a connection may
// send. Dispatch happens through a single exhaustive switch, so a new
// request kind is a compile-visible addition here plus a case there.
type RequestType string

const (
	ReqClaim              RequestType = "claim"
	ReqGlobalMessage      RequestType = "global_message"
	ReqCreateRoom         RequestType = "create_room"
	ReqJoinRoom           RequestType = "join_room"
	ReqRoomMessage        RequestType = "room_message"
	ReqLeaveRoom          RequestType = "leave_room"
	ReqClearRoomHistory   RequestType = "clear_room_history"
	ReqDeleteRoom         RequestType = "delete_room"
	ReqClearGlobalHistory RequestType = "clear_global_history"
	ReqHistory            RequestType = "history"
	ReqHistoryPage        RequestType = "history_page"
)

// Request is an inbound protocol message. Unused fields stay empty for a
// given type.
type Request struct {
	Type        RequestType `json:"type"`
	Identity    string      `json:"identity,omitempty"`
	RoomID      string      `json:"room_id,omitempty"`
	DisplayName string      `json:"display_name,omitempty"`
	Body        string      `json:"body,omitempty"`
	Destination string      `json:"destination,omitempty"`
	Offset      int         `json:"offset,omitempty"`
	Limit       int         `json:"limit,omitempty"`
}

// Outcome frame types. Every request gets exactly one outcome frame, either
// its success type or an error frame.
const (
	OutConnected   = "connected"
	OutClaimed     = "claimed"
	OutSent        = "sent"
	OutCreated     = "created"
	OutJoined      = "joined"
	OutLeft        = "left"
	OutCleared     = "cleared"
	OutDeleted     = "deleted"
	OutHistory     = "history"
	OutHistoryPage = "history_page"
	OutError       = "error"
)

// Response is the unicast outcome frame for a request.
type Response struct {
	Type        string           `json:"type"`
	ConnID      string           `json:"conn_id,omitempty"`
	Identity    string           `json:"identity,omitempty"`
	RoomID      string           `json:"room_id,omitempty"`
	DisplayName string           `json:"display_name,omitempty"`
	Destination string           `json:"destination,omitempty"`
	Seq         uint             `json:"seq,omitempty"`
	Status      string           `json:"status,omitempty"`
	Messages    []domain.Message `json:"messages,omitempty"`
	NewOffset   int              `json:"new_offset,omitempty"`
	HasMore     bool             `json:"has_more,omitempty"`
	Timestamp   time.Time        `json:"timestamp,omitempty"`
	Code        string           `json:"code,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Stable error codes carried on error frames.
const (
	CodeInvalidIdentity   = "invalid_identity"
	CodeIdentityTaken     = "identity_taken"
	CodeAlreadyIdentified = "already_identified"
	CodeNotIdentified     = "not_identified"
	CodeInvalidRoomID     = "invalid_room_id"
	CodeRoomExists        = "room_exists"
	CodeRoomNotFound      = "room_not_found"
	CodeNotMember         = "not_member"
	CodeNotOwner          = "not_owner"
	CodeInvalidBody       = "invalid_body"
	CodeInvalidRange      = "invalid_range"
	CodeUnknownRequest    = "unknown_request"
	CodeStoreFailed       = "store_failed"
)

// errorCode maps a core error to its wire code. Anything unrecognized is a
// persistence-layer failure surfaced as a generic retry notice.
func errorCode(err error) string {
	switch {
	case errors.Is(err, chat.ErrInvalidIdentity):
		return CodeInvalidIdentity
	case errors.Is(err, chat.ErrIdentityTaken):
		return CodeIdentityTaken
	case errors.Is(err, chat.ErrAlreadyIdentified):
		return CodeAlreadyIdentified
	case errors.Is(err, chat.ErrNotIdentified):
		return CodeNotIdentified
	case errors.Is(err, chat.ErrInvalidRoomID):
		return CodeInvalidRoomID
	case errors.Is(err, chat.ErrRoomExists):
		return CodeRoomExists
	case errors.Is(err, chat.ErrRoomNotFound):
		return CodeRoomNotFound
	case errors.Is(err, chat.ErrNotMember):
		return CodeNotMember
	case errors.Is(err, chat.ErrNotOwner):
		return CodeNotOwner
	case errors.Is(err, chat.ErrEmptyBody), errors.Is(err, chat.ErrBodyTooLong):
		return CodeInvalidBody
	default:
		return CodeStoreFailed
	}
}

// errorMessage returns the user-visible message for an error. Persistence
// failures are reduced to a retry notice; details stay in the server log.
func errorMessage(err error) string {
	if errorCode(err) == CodeStoreFailed {
		return "operation failed, retry"
	}
	return err.Error()
}
