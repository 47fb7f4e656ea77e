package chat

import "time"

// GlobalDestination is the log key for the lobby shared by every connection.
// It always exists and survives history clears.
const GlobalDestination = "global"

// Room is a chat room record. The ID doubles as the destination key for the
// room's message log. Rooms are never renamed.
type Room struct {
	ID          string    `gorm:"primarykey;size:50" json:"id"`
	DisplayName string    `gorm:"size:100;not null" json:"display_name"`
	Owner       string    `gorm:"size:20;not null;index" json:"owner"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the table name for the Room model.
func (Room) TableName() string {
	return "rooms"
}

// Membership records that an identity belongs to a room. Membership is keyed
// by identity, not connection, so it survives reconnects.
type Membership struct {
	RoomID   string `gorm:"primarykey;size:50" json:"room_id"`
	Identity string `gorm:"primarykey;size:20" json:"identity"`
}

// TableName returns the table name for the Membership model.
func (Membership) TableName() string {
	return "room_members"
}

// Message is a single immutable log entry. Seq is assigned by the store and
// defines the total order within a destination's log.
type Message struct {
	Seq         uint      `gorm:"primarykey" json:"seq"`
	Destination string    `gorm:"size:50;not null;index" json:"destination"`
	Author      string    `gorm:"size:20;not null" json:"author"`
	Body        string    `gorm:"size:5000;not null" json:"body"`
	Timestamp   time.Time `json:"timestamp"`
}

// TableName returns the table name for the Message model.
func (Message) TableName() string {
	return "messages"
}

// Session ties a live connection to its claimed identity. Sessions are
// in-memory only and are rebuilt from the connect/claim sequence after a
// restart.
type Session struct {
	ConnID   string `json:"conn_id"`
	Identity string `json:"identity,omitempty"`
}
