package chat

import (
	"fmt"
	"sync"

	"gorm.io/gorm"

	domain "github.com/example/chat-server/domain/chat"
)

// Page is a bounded slice of a destination's log, read backwards from the
// newest entry. Messages are ordered newest first.
type Page struct {
	Messages  []domain.Message `json:"messages"`
	NewOffset int              `json:"new_offset"`
	HasMore   bool             `json:"has_more"`
}

// MessageStore owns the per-destination append-only message logs in the
// durable store. Appends to the same destination are serialized so that log
// order always matches admission order.
type MessageStore struct {
	db *gorm.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex // destination -> append lock
}

// NewMessageStore creates a message store on top of db.
func NewMessageStore(db *gorm.DB) *MessageStore {
	return &MessageStore{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *MessageStore) destLock(destination string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[destination]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[destination] = lock
	}
	return lock
}

// Append adds msg as the newest entry of its destination's log and fills in
// the assigned sequence number.
func (s *MessageStore) Append(msg *domain.Message) error {
	lock := s.destLock(msg.Destination)
	lock.Lock()
	defer lock.Unlock()

	if err := s.db.Create(msg).Error; err != nil {
		return fmt.Errorf("failed to append message to %s: %w", msg.Destination, err)
	}
	return nil
}

// ReadAll returns the full log for a destination, ordered oldest to newest.
func (s *MessageStore) ReadAll(destination string) ([]domain.Message, error) {
	var messages []domain.Message
	err := s.db.
		Where("destination = ?", destination).
		Order("seq ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read log for %s: %w", destination, err)
	}
	return messages, nil
}

// ReadRange returns up to limit messages starting offset entries back from
// the newest. The page is ordered newest first; HasMore reports whether a
// full page was returned and another fetch may yield more.
func (s *MessageStore) ReadRange(destination string, offset, limit int) (Page, error) {
	if offset < 0 || limit <= 0 {
		return Page{}, fmt.Errorf("invalid range offset=%d limit=%d", offset, limit)
	}

	var messages []domain.Message
	err := s.db.
		Where("destination = ?", destination).
		Order("seq DESC").
		Offset(offset).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return Page{}, fmt.Errorf("failed to read range for %s: %w", destination, err)
	}

	return Page{
		Messages:  messages,
		NewOffset: offset + len(messages),
		HasMore:   len(messages) == limit,
	}, nil
}

// Count returns the number of entries in a destination's log.
func (s *MessageStore) Count(destination string) (int64, error) {
	var n int64
	err := s.db.
		Model(&domain.Message{}).
		Where("destination = ?", destination).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count log for %s: %w", destination, err)
	}
	return n, nil
}

// Clear empties a destination's log. The destination remains valid for
// future appends.
func (s *MessageStore) Clear(destination string) error {
	lock := s.destLock(destination)
	lock.Lock()
	defer lock.Unlock()

	err := s.db.
		Where("destination = ?", destination).
		Delete(&domain.Message{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear log for %s: %w", destination, err)
	}
	return nil
}
