package chat

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/example/chat-server/domain/chat"
)

// RoomDirectory owns room metadata and membership in the durable store.
// Structural mutations (create, delete) are serialized through a directory
// lock; membership writes rely on idempotent upserts.
type RoomDirectory struct {
	db    *gorm.DB
	store *MessageStore

	mu sync.Mutex
}

// NewRoomDirectory creates a room directory backed by db. The message store
// is used to destroy a room's log atomically with its metadata.
func NewRoomDirectory(db *gorm.DB, store *MessageStore) *RoomDirectory {
	return &RoomDirectory{db: db, store: store}
}

// Create registers a new room with creator as owner and sole member.
func (d *RoomDirectory) Create(roomID, displayName, creator string) (*domain.Room, error) {
	roomID, err := ValidateRoomID(roomID)
	if err != nil {
		return nil, err
	}
	if displayName == "" {
		displayName = roomID
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var existing domain.Room
	err = d.db.First(&existing, "id = ?", roomID).Error
	switch {
	case err == nil:
		return nil, ErrRoomExists
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to check room %s: %w", roomID, err)
	}

	room := &domain.Room{
		ID:          roomID,
		DisplayName: displayName,
		Owner:       creator,
		CreatedAt:   time.Now().UTC(),
	}

	err = d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		return tx.Create(&domain.Membership{RoomID: roomID, Identity: creator}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create room %s: %w", roomID, err)
	}
	return room, nil
}

// Get returns a room by id.
func (d *RoomDirectory) Get(roomID string) (*domain.Room, error) {
	var room domain.Room
	if err := d.db.First(&room, "id = ?", roomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to load room %s: %w", roomID, err)
	}
	return &room, nil
}

// List returns all registered rooms.
func (d *RoomDirectory) List() ([]domain.Room, error) {
	var rooms []domain.Room
	if err := d.db.Order("created_at ASC").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

// Join adds identity to the room's membership set and returns the room with
// its full message log for initial sync. Joining twice is a no-op.
func (d *RoomDirectory) Join(roomID, identity string) (*domain.Room, []domain.Message, error) {
	roomID, err := ValidateRoomID(roomID)
	if err != nil {
		return nil, nil, err
	}

	room, err := d.Get(roomID)
	if err != nil {
		return nil, nil, err
	}

	member := domain.Membership{RoomID: roomID, Identity: identity}
	err = d.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error
	if err != nil {
		return nil, nil, fmt.Errorf("failed to join room %s: %w", roomID, err)
	}

	history, err := d.store.ReadAll(roomID)
	if err != nil {
		return nil, nil, err
	}
	return room, history, nil
}

// Leave removes identity from the room's membership set. It reports false
// when the identity was never a member, which is a normal outcome rather
// than a failure.
func (d *RoomDirectory) Leave(roomID, identity string) (bool, error) {
	roomID, err := ValidateRoomID(roomID)
	if err != nil {
		return false, nil
	}

	result := d.db.
		Where("room_id = ? AND identity = ?", roomID, identity).
		Delete(&domain.Membership{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to leave room %s: %w", roomID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// IsMember reports whether identity belongs to the room.
func (d *RoomDirectory) IsMember(roomID, identity string) (bool, error) {
	var n int64
	err := d.db.
		Model(&domain.Membership{}).
		Where("room_id = ? AND identity = ?", roomID, identity).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check membership for %s: %w", roomID, err)
	}
	return n > 0, nil
}

// Members returns the identities currently in the room's membership set.
func (d *RoomDirectory) Members(roomID string) ([]string, error) {
	var identities []string
	err := d.db.
		Model(&domain.Membership{}).
		Where("room_id = ?", roomID).
		Order("identity ASC").
		Pluck("identity", &identities).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list members of %s: %w", roomID, err)
	}
	return identities, nil
}

// ClearHistory wipes the room's message log while keeping metadata and
// membership intact. The requester must currently be a member.
func (d *RoomDirectory) ClearHistory(roomID, requester string) error {
	roomID, err := ValidateRoomID(roomID)
	if err != nil {
		return err
	}

	member, err := d.IsMember(roomID, requester)
	if err != nil {
		return err
	}
	if !member {
		return ErrNotMember
	}
	return d.store.Clear(roomID)
}

// Delete destroys the room, its membership set, and its message log in one
// transaction. Only the owner may delete a room. The pre-deletion member set
// is returned so callers can still notify everyone affected.
func (d *RoomDirectory) Delete(roomID, requester string) ([]string, error) {
	roomID, err := ValidateRoomID(roomID)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	room, err := d.Get(roomID)
	if err != nil {
		return nil, err
	}
	if room.Owner != requester {
		return nil, ErrNotOwner
	}

	members, err := d.Members(roomID)
	if err != nil {
		return nil, err
	}

	// Hold the destination's append lock so a racing send cannot slip an
	// entry into the log mid-teardown.
	lock := d.store.destLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	err = d.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("destination = ?", roomID).Delete(&domain.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", roomID).Delete(&domain.Membership{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Room{}, "id = ?", roomID).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete room %s: %w", roomID, err)
	}
	return members, nil
}
