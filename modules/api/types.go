package api

import (
	"time"

	domain "github.com/example/chat-server/domain/chat"
)

// RoomView is the REST representation of a room.
type RoomView struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Owner       string    `json:"owner"`
	CreatedAt   time.Time `json:"created_at"`
	Members     []string  `json:"members,omitempty"`
	LiveClients int       `json:"live_clients"`
}

// RoomListResponse is the REST response for listing rooms.
type RoomListResponse struct {
	Rooms []RoomView `json:"rooms"`
}

// HistoryPageResponse is the REST response for a paginated history read.
type HistoryPageResponse struct {
	Destination string           `json:"destination"`
	Messages    []domain.Message `json:"messages"`
	NewOffset   int              `json:"new_offset"`
	HasMore     bool             `json:"has_more"`
}

// ErrorResponse is the REST error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the REST health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
