package api

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/example/chat-server/modules/broadcast"
	"github.com/example/chat-server/modules/chat"
)

// fakeConn records every outcome frame written to a client.
type fakeConn struct {
	mu     sync.Mutex
	frames []Response
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, resp)
	return nil
}

func (f *fakeConn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return f.WriteMessage(0, data)
}

func (f *fakeConn) Close() error { return nil }

func (f *fakeConn) last(t *testing.T) Response {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		t.Fatal("no outcome frame was sent")
	}
	return f.frames[len(f.frames)-1]
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func newTestModule(t *testing.T) *Module {
	t.Helper()
	t.Setenv("DB_PATH", ":memory:")

	chatModule := chat.NewModule()
	if err := chatModule.Start(context.Background()); err != nil {
		t.Fatalf("failed to start chat module: %v", err)
	}
	t.Cleanup(func() {
		_ = chatModule.Stop(context.Background())
	})

	m := NewModule(chatModule)
	m.SetHub(broadcast.NewHub())
	return m
}

func newTestClient(id string) (*broadcast.Client, *fakeConn) {
	conn := &fakeConn{}
	return &broadcast.Client{ID: id, Conn: conn}, conn
}

func TestDispatch_RequiresIdentity(t *testing.T) {
	m := newTestModule(t)
	client, conn := newTestClient("conn-1")

	gated := []Request{
		{Type: ReqGlobalMessage, Body: "hi"},
		{Type: ReqCreateRoom, RoomID: "team1"},
		{Type: ReqJoinRoom, RoomID: "team1"},
		{Type: ReqRoomMessage, RoomID: "team1", Body: "hi"},
		{Type: ReqLeaveRoom, RoomID: "team1"},
		{Type: ReqClearRoomHistory, RoomID: "team1"},
		{Type: ReqDeleteRoom, RoomID: "team1"},
		{Type: ReqClearGlobalHistory},
	}

	for _, req := range gated {
		m.dispatch(client, req)
		resp := conn.last(t)
		if resp.Type != OutError || resp.Code != CodeNotIdentified {
			t.Errorf("%s while unidentified: got %s/%s, want error/%s",
				req.Type, resp.Type, resp.Code, CodeNotIdentified)
		}
	}
}

func TestDispatch_Claim(t *testing.T) {
	m := newTestModule(t)

	t.Run("invalid identity", func(t *testing.T) {
		client, conn := newTestClient("conn-1")
		m.dispatch(client, Request{Type: ReqClaim, Identity: "!"})
		resp := conn.last(t)
		if resp.Type != OutError || resp.Code != CodeInvalidIdentity {
			t.Errorf("got %s/%s, want error/%s", resp.Type, resp.Code, CodeInvalidIdentity)
		}
	})

	t.Run("successful claim", func(t *testing.T) {
		client, conn := newTestClient("conn-2")
		m.dispatch(client, Request{Type: ReqClaim, Identity: "alice"})
		resp := conn.last(t)
		if resp.Type != OutClaimed || resp.Identity != "alice" {
			t.Errorf("got %s/%s, want claimed/alice", resp.Type, resp.Identity)
		}
	})

	t.Run("identity already taken", func(t *testing.T) {
		client, conn := newTestClient("conn-3")
		m.dispatch(client, Request{Type: ReqClaim, Identity: "alice"})
		resp := conn.last(t)
		if resp.Type != OutError || resp.Code != CodeIdentityTaken {
			t.Errorf("got %s/%s, want error/%s", resp.Type, resp.Code, CodeIdentityTaken)
		}
	})

	t.Run("second claim on the same connection", func(t *testing.T) {
		client, conn := newTestClient("conn-4")
		m.dispatch(client, Request{Type: ReqClaim, Identity: "carol"})
		m.dispatch(client, Request{Type: ReqClaim, Identity: "carol2"})
		resp := conn.last(t)
		if resp.Type != OutError || resp.Code != CodeAlreadyIdentified {
			t.Errorf("got %s/%s, want error/%s", resp.Type, resp.Code, CodeAlreadyIdentified)
		}
	})
}

func TestDispatch_RoomFlow(t *testing.T) {
	m := newTestModule(t)

	alice, aliceConn := newTestClient("conn-a")
	bob, bobConn := newTestClient("conn-b")
	m.dispatch(alice, Request{Type: ReqClaim, Identity: "alice"})
	m.dispatch(bob, Request{Type: ReqClaim, Identity: "bob"})

	m.dispatch(alice, Request{Type: ReqCreateRoom, RoomID: "team1", DisplayName: "Team One"})
	resp := aliceConn.last(t)
	if resp.Type != OutCreated || resp.RoomID != "team1" {
		t.Fatalf("create: got %s/%s, want created/team1", resp.Type, resp.RoomID)
	}

	m.dispatch(bob, Request{Type: ReqJoinRoom, RoomID: "team1"})
	resp = bobConn.last(t)
	if resp.Type != OutJoined || resp.RoomID != "team1" {
		t.Fatalf("join: got %s/%s, want joined/team1", resp.Type, resp.RoomID)
	}
	if len(resp.Messages) != 0 {
		t.Errorf("fresh room history = %d entries, want 0", len(resp.Messages))
	}

	m.dispatch(alice, Request{Type: ReqRoomMessage, RoomID: "team1", Body: "hi"})
	resp = aliceConn.last(t)
	if resp.Type != OutSent || resp.Destination != "team1" {
		t.Fatalf("send: got %s/%s, want sent/team1", resp.Type, resp.Destination)
	}

	m.dispatch(bob, Request{Type: ReqLeaveRoom, RoomID: "team1"})
	resp = bobConn.last(t)
	if resp.Type != OutLeft || resp.Status != "ok" {
		t.Fatalf("leave: got %s/%s, want left/ok", resp.Type, resp.Status)
	}

	m.dispatch(bob, Request{Type: ReqRoomMessage, RoomID: "team1", Body: "again"})
	resp = bobConn.last(t)
	if resp.Type != OutError || resp.Code != CodeNotMember {
		t.Fatalf("post-leave send: got %s/%s, want error/%s", resp.Type, resp.Code, CodeNotMember)
	}

	m.dispatch(bob, Request{Type: ReqLeaveRoom, RoomID: "team1"})
	resp = bobConn.last(t)
	if resp.Type != OutLeft || resp.Status != "not_member" {
		t.Fatalf("repeat leave: got %s/%s, want left/not_member", resp.Type, resp.Status)
	}
}

func TestDispatch_DeleteRoomAuthorization(t *testing.T) {
	m := newTestModule(t)

	alice, _ := newTestClient("conn-a")
	bob, bobConn := newTestClient("conn-b")
	m.dispatch(alice, Request{Type: ReqClaim, Identity: "alice"})
	m.dispatch(bob, Request{Type: ReqClaim, Identity: "bob"})

	m.dispatch(alice, Request{Type: ReqCreateRoom, RoomID: "team1"})
	m.dispatch(bob, Request{Type: ReqJoinRoom, RoomID: "team1"})

	m.dispatch(bob, Request{Type: ReqDeleteRoom, RoomID: "team1"})
	resp := bobConn.last(t)
	if resp.Type != OutError || resp.Code != CodeNotOwner {
		t.Fatalf("member delete: got %s/%s, want error/%s", resp.Type, resp.Code, CodeNotOwner)
	}
}

func TestDispatch_HistoryWithoutIdentity(t *testing.T) {
	m := newTestModule(t)

	alice, _ := newTestClient("conn-a")
	m.dispatch(alice, Request{Type: ReqClaim, Identity: "alice"})
	m.dispatch(alice, Request{Type: ReqGlobalMessage, Body: "hello"})

	// History fetches carry no identity precondition.
	viewer, viewerConn := newTestClient("conn-v")
	m.dispatch(viewer, Request{Type: ReqHistory})
	resp := viewerConn.last(t)
	if resp.Type != OutHistory || len(resp.Messages) != 1 {
		t.Fatalf("history: got %s with %d messages, want history with 1", resp.Type, len(resp.Messages))
	}

	m.dispatch(viewer, Request{Type: ReqHistoryPage, Offset: 0, Limit: 10})
	resp = viewerConn.last(t)
	if resp.Type != OutHistoryPage || len(resp.Messages) != 1 || resp.HasMore {
		t.Fatalf("history page: got %s with %d messages hasMore=%v", resp.Type, len(resp.Messages), resp.HasMore)
	}
}

func TestDispatch_InvalidRange(t *testing.T) {
	m := newTestModule(t)
	client, conn := newTestClient("conn-1")

	m.dispatch(client, Request{Type: ReqHistoryPage, Offset: -1, Limit: 10})
	resp := conn.last(t)
	if resp.Type != OutError || resp.Code != CodeInvalidRange {
		t.Errorf("got %s/%s, want error/%s", resp.Type, resp.Code, CodeInvalidRange)
	}

	m.dispatch(client, Request{Type: ReqHistoryPage, Offset: 0, Limit: 0})
	resp = conn.last(t)
	if resp.Type != OutError || resp.Code != CodeInvalidRange {
		t.Errorf("got %s/%s, want error/%s", resp.Type, resp.Code, CodeInvalidRange)
	}
}

func TestDispatch_UnknownRequest(t *testing.T) {
	m := newTestModule(t)
	client, conn := newTestClient("conn-1")

	m.dispatch(client, Request{Type: "teleport"})
	resp := conn.last(t)
	if resp.Type != OutError || resp.Code != CodeUnknownRequest {
		t.Errorf("got %s/%s, want error/%s", resp.Type, resp.Code, CodeUnknownRequest)
	}
}

func TestDispatch_OneOutcomePerRequest(t *testing.T) {
	m := newTestModule(t)
	client, conn := newTestClient("conn-1")

	m.dispatch(client, Request{Type: ReqClaim, Identity: "alice"})
	m.dispatch(client, Request{Type: ReqGlobalMessage, Body: "hello"})
	m.dispatch(client, Request{Type: ReqHistory})

	if conn.count() != 3 {
		t.Errorf("outcome frames = %d, want exactly 3 for 3 requests", conn.count())
	}
}
