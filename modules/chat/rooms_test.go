package chat

import (
	"errors"
	"testing"
	"time"

	domain "github.com/example/chat-server/domain/chat"
)

func setupDirectory(t *testing.T) (*RoomDirectory, *MessageStore) {
	t.Helper()
	db := setupTestDB(t)
	store := NewMessageStore(db)
	return NewRoomDirectory(db, store), store
}

func TestRoomDirectory_Create(t *testing.T) {
	dir, _ := setupDirectory(t)

	room, err := dir.Create("team1", "Team One", "alice")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if room.Owner != "alice" {
		t.Errorf("owner = %q, want alice", room.Owner)
	}
	if room.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	// The creator is the sole member.
	members, err := dir.Members("team1")
	if err != nil {
		t.Fatalf("Members() error = %v", err)
	}
	if len(members) != 1 || members[0] != "alice" {
		t.Errorf("members = %v, want [alice]", members)
	}
}

func TestRoomDirectory_CreateDuplicate(t *testing.T) {
	dir, _ := setupDirectory(t)

	if _, err := dir.Create("team1", "Team One", "alice"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_, err := dir.Create("team1", "Another", "bob")
	if !errors.Is(err, ErrRoomExists) {
		t.Errorf("duplicate create error = %v, want ErrRoomExists", err)
	}
}

func TestRoomDirectory_CreateInvalidID(t *testing.T) {
	dir, _ := setupDirectory(t)

	for _, id := range []string{"", "x", "bad id", "room!"} {
		if _, err := dir.Create(id, "Name", "alice"); !errors.Is(err, ErrInvalidRoomID) {
			t.Errorf("Create(%q) error = %v, want ErrInvalidRoomID", id, err)
		}
	}
}

func TestRoomDirectory_DefaultDisplayName(t *testing.T) {
	dir, _ := setupDirectory(t)

	room, err := dir.Create("team1", "", "alice")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if room.DisplayName != "team1" {
		t.Errorf("display name = %q, want team1", room.DisplayName)
	}
}

func TestRoomDirectory_Join(t *testing.T) {
	dir, store := setupDirectory(t)

	if _, err := dir.Create("team1", "Team One", "alice"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Append(&domain.Message{
		Destination: "team1", Author: "alice", Body: "hi", Timestamp: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	room, history, err := dir.Join("team1", "bob")
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if room.DisplayName != "Team One" {
		t.Errorf("display name = %q, want Team One", room.DisplayName)
	}
	if len(history) != 1 || history[0].Body != "hi" {
		t.Errorf("history = %v, want the full room log", history)
	}

	// Joining twice is a no-op.
	if _, _, err := dir.Join("team1", "bob"); err != nil {
		t.Fatalf("second Join() error = %v", err)
	}
	members, err := dir.Members("team1")
	if err != nil {
		t.Fatalf("Members() error = %v", err)
	}
	if len(members) != 2 {
		t.Errorf("members = %v, want alice and bob exactly once", members)
	}
}

func TestRoomDirectory_JoinMissingRoom(t *testing.T) {
	dir, _ := setupDirectory(t)

	_, _, err := dir.Join("nowhere", "bob")
	if !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Join() error = %v, want ErrRoomNotFound", err)
	}
}

func TestRoomDirectory_Leave(t *testing.T) {
	dir, _ := setupDirectory(t)

	if _, err := dir.Create("team1", "Team One", "alice"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, _, err := dir.Join("team1", "bob"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}

	wasMember, err := dir.Leave("team1", "bob")
	if err != nil {
		t.Fatalf("Leave() error = %v", err)
	}
	if !wasMember {
		t.Error("Leave() should report bob was a member")
	}

	// Leaving again is a normal outcome, not an error.
	wasMember, err = dir.Leave("team1", "bob")
	if err != nil {
		t.Fatalf("second Leave() error = %v", err)
	}
	if wasMember {
		t.Error("second Leave() should report not a member")
	}

	member, err := dir.IsMember("team1", "bob")
	if err != nil {
		t.Fatalf("IsMember() error = %v", err)
	}
	if member {
		t.Error("bob should no longer be a member")
	}
}

func TestRoomDirectory_ClearHistory(t *testing.T) {
	dir, store := setupDirectory(t)

	if _, err := dir.Create("team1", "Team One", "alice"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	appendN(t, store, "team1", 3)

	t.Run("non-member is rejected", func(t *testing.T) {
		err := dir.ClearHistory("team1", "mallory")
		if !errors.Is(err, ErrNotMember) {
			t.Errorf("ClearHistory() error = %v, want ErrNotMember", err)
		}
	})

	t.Run("member clears the log only", func(t *testing.T) {
		if err := dir.ClearHistory("team1", "alice"); err != nil {
			t.Fatalf("ClearHistory() error = %v", err)
		}

		messages, err := store.ReadAll("team1")
		if err != nil {
			t.Fatalf("ReadAll() error = %v", err)
		}
		if len(messages) != 0 {
			t.Errorf("expected empty log, got %d messages", len(messages))
		}

		// Metadata and membership survive.
		if _, err := dir.Get("team1"); err != nil {
			t.Errorf("room should still exist: %v", err)
		}
		member, err := dir.IsMember("team1", "alice")
		if err != nil {
			t.Fatalf("IsMember() error = %v", err)
		}
		if !member {
			t.Error("membership should survive a history clear")
		}
	})
}

func TestRoomDirectory_Delete(t *testing.T) {
	dir, store := setupDirectory(t)

	if _, err := dir.Create("team1", "Team One", "alice"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, _, err := dir.Join("team1", "bob"); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	appendN(t, store, "team1", 2)

	t.Run("only the owner may delete", func(t *testing.T) {
		_, err := dir.Delete("team1", "bob")
		if !errors.Is(err, ErrNotOwner) {
			t.Errorf("Delete() by member error = %v, want ErrNotOwner", err)
		}
	})

	t.Run("owner delete removes everything", func(t *testing.T) {
		members, err := dir.Delete("team1", "alice")
		if err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if len(members) != 2 {
			t.Errorf("pre-deletion members = %v, want alice and bob", members)
		}

		if _, err := dir.Get("team1"); !errors.Is(err, ErrRoomNotFound) {
			t.Errorf("Get() after delete error = %v, want ErrRoomNotFound", err)
		}
		if _, _, err := dir.Join("team1", "carol"); !errors.Is(err, ErrRoomNotFound) {
			t.Errorf("Join() after delete error = %v, want ErrRoomNotFound", err)
		}

		messages, err := store.ReadAll("team1")
		if err != nil {
			t.Fatalf("ReadAll() error = %v", err)
		}
		if len(messages) != 0 {
			t.Errorf("log should be destroyed with the room, got %d messages", len(messages))
		}
	})

	t.Run("the id is free for re-creation", func(t *testing.T) {
		if _, err := dir.Create("team1", "Rebuilt", "carol"); err != nil {
			t.Fatalf("Create() after delete error = %v", err)
		}
		members, err := dir.Members("team1")
		if err != nil {
			t.Fatalf("Members() error = %v", err)
		}
		if len(members) != 1 || members[0] != "carol" {
			t.Errorf("members = %v, want [carol] only", members)
		}
	})
}

func TestRoomDirectory_DeleteMissingRoom(t *testing.T) {
	dir, _ := setupDirectory(t)

	_, err := dir.Delete("nowhere", "alice")
	if !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Delete() error = %v, want ErrRoomNotFound", err)
	}
}

func TestRoomDirectory_List(t *testing.T) {
	dir, _ := setupDirectory(t)

	if _, err := dir.Create("team1", "Team One", "alice"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := dir.Create("team2", "Team Two", "bob"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rooms, err := dir.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(rooms) != 2 {
		t.Errorf("expected 2 rooms, got %d", len(rooms))
	}
}
