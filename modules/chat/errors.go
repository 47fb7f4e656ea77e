package chat

import (
	"errors"
	"regexp"
	"strings"
)

// Validation constants
const (
	MinIdentityLength = 2
	MaxIdentityLength = 20
	MinRoomIDLength   = 2
	MaxRoomIDLength   = 50
	MaxBodyLength     = 5000
)

// Validation errors, rejected before any shared state is touched.
var (
	ErrInvalidIdentity = errors.New("identity must be 2-20 characters of [a-zA-Z0-9_-]")
	ErrInvalidRoomID   = errors.New("room id must be 2-50 characters of [a-zA-Z0-9_-]")
	ErrEmptyBody       = errors.New("message body cannot be empty")
	ErrBodyTooLong     = errors.New("message body exceeds maximum length")
)

// Conflict errors.
var (
	ErrIdentityTaken = errors.New("identity already claimed by a live session")
	ErrRoomExists    = errors.New("room already exists")
)

// Authorization errors.
var (
	ErrAlreadyIdentified = errors.New("session already holds an identity")
	ErrNotIdentified     = errors.New("session has not claimed an identity")
	ErrNotMember         = errors.New("identity is not a member of the room")
	ErrNotOwner          = errors.New("only the room owner may delete it")
)

// ErrRoomNotFound is returned when a room id is syntactically valid but not
// registered.
var ErrRoomNotFound = errors.New("room not found")

var (
	identityPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	roomIDPattern   = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateIdentity checks the lexical form of an identity string and returns
// the trimmed value. Identities are case-sensitive.
func ValidateIdentity(identity string) (string, error) {
	identity = strings.TrimSpace(identity)
	if len(identity) < MinIdentityLength || len(identity) > MaxIdentityLength {
		return "", ErrInvalidIdentity
	}
	if !identityPattern.MatchString(identity) {
		return "", ErrInvalidIdentity
	}
	return identity, nil
}

// ValidateRoomID checks the lexical form of a room id and returns the trimmed
// value.
func ValidateRoomID(roomID string) (string, error) {
	roomID = strings.TrimSpace(roomID)
	if len(roomID) < MinRoomIDLength || len(roomID) > MaxRoomIDLength {
		return "", ErrInvalidRoomID
	}
	if !roomIDPattern.MatchString(roomID) {
		return "", ErrInvalidRoomID
	}
	return roomID, nil
}

// ValidateBody checks a message body.
func ValidateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyBody
	}
	if len(body) > MaxBodyLength {
		return ErrBodyTooLong
	}
	return nil
}
