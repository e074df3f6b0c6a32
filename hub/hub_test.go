package hub

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamiyanagi-000/monsters-socket-server/domain"
)

type mockConn struct {
	id       string
	identity string
	received [][]byte
	sendErr  error
	mu       sync.Mutex
}

func (m *mockConn) ID() string       { return m.id }
func (m *mockConn) Identity() string { return m.identity }
func (m *mockConn) Close() error     { return nil }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) getReceived() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received
}

func connect(h *Hub, id, identity string, rooms ...string) *mockConn {
	conn := &mockConn{id: id, identity: identity}
	h.Register(conn)
	for _, r := range rooms {
		h.Join(conn, r)
	}
	return conn
}

func TestHub_Broadcast(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(*Hub) []*mockConn
		room         string
		wantReceived map[string]int
	}{
		{
			name: "delivers to every room member including sender",
			setup: func(h *Hub) []*mockConn {
				a := connect(h, "a", "alice", domain.FeedRoom)
				b := connect(h, "b", "bob", domain.FeedRoom)
				return []*mockConn{a, b}
			},
			room:         domain.FeedRoom,
			wantReceived: map[string]int{"a": 1, "b": 1},
		},
		{
			name: "no cross-room delivery",
			setup: func(h *Hub) []*mockConn {
				a := connect(h, "a", "alice", domain.FeedRoom)
				b := connect(h, "b", "bob", domain.PrivateRoom("bob"))
				return []*mockConn{a, b}
			},
			room:         domain.FeedRoom,
			wantReceived: map[string]int{"a": 1, "b": 0},
		},
		{
			name: "registered but not joined receives nothing",
			setup: func(h *Hub) []*mockConn {
				a := connect(h, "a", "alice")
				return []*mockConn{a}
			},
			room:         domain.FeedRoom,
			wantReceived: map[string]int{"a": 0},
		},
		{
			name: "absent room is a no-op",
			setup: func(h *Hub) []*mockConn {
				return nil
			},
			room:         "ghost",
			wantReceived: map[string]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			conns := tt.setup(h)

			h.Broadcast(tt.room, []byte("hello"))

			for _, c := range conns {
				assert.Len(t, c.getReceived(), tt.wantReceived[c.ID()], "conn %s", c.ID())
			}
		})
	}
}

func TestHub_BroadcastAll(t *testing.T) {
	h := New()
	a := connect(h, "a", "alice", domain.FeedRoom)
	b := connect(h, "b", "bob")

	h.BroadcastAll([]byte("system"))

	assert.Len(t, a.getReceived(), 1)
	assert.Len(t, b.getReceived(), 1, "room membership must not gate BroadcastAll")
}

func TestHub_PayloadVerbatim(t *testing.T) {
	h := New()
	a := connect(h, "a", "alice", domain.FeedRoom)

	frame := []byte(`{"event":"feed:update-reaction","payload":{"postId":"p1","type":"like"}}`)
	h.Broadcast(domain.FeedRoom, frame)

	received := a.getReceived()
	require.Len(t, received, 1)
	assert.Equal(t, frame, received[0])
}

func TestHub_UnregisterLeavesAllRooms(t *testing.T) {
	h := New()
	a := connect(h, "a", "alice", domain.FeedRoom, domain.PrivateRoom("alice"))
	b := connect(h, "b", "bob", domain.FeedRoom)

	h.Unregister(a)

	h.Broadcast(domain.FeedRoom, []byte("after"))
	h.Broadcast(domain.PrivateRoom("alice"), []byte("private"))

	assert.Empty(t, a.getReceived(), "removed connection must not receive")
	assert.Len(t, b.getReceived(), 1, "remaining member still receives")

	rooms, clients := h.Stats()
	assert.Equal(t, 1, rooms, "alice's private room must be garbage-collected")
	assert.Equal(t, 1, clients)
}

func TestHub_UnregisterTwice(t *testing.T) {
	h := New()
	a := connect(h, "a", "alice", domain.FeedRoom)

	h.Unregister(a)
	h.Unregister(a)

	rooms, clients := h.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, clients)
}

func TestHub_LeaveRemovesEmptyRoom(t *testing.T) {
	h := New()
	a := connect(h, "a", "alice", domain.FeedRoom)

	h.Leave(a, domain.FeedRoom)

	rooms, clients := h.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 1, clients, "leaving a room must not deregister")
}

func TestHub_JoinRequiresRegistration(t *testing.T) {
	h := New()
	stranger := &mockConn{id: "x", identity: "mallory"}

	h.Join(stranger, domain.FeedRoom)

	rooms, _ := h.Stats()
	assert.Equal(t, 0, rooms)
}

func TestHub_FailedSendDetachesOnlyThatClient(t *testing.T) {
	h := New()
	broken := &mockConn{id: "broken", identity: "alice", sendErr: errors.New("closed")}
	h.Register(broken)
	h.Join(broken, domain.FeedRoom)
	healthy := connect(h, "ok", "bob", domain.FeedRoom)

	h.Broadcast(domain.FeedRoom, []byte("one"))

	assert.Len(t, healthy.getReceived(), 1, "failure of one recipient must not abort the rest")

	// The broken connection is detached asynchronously; direct teardown
	// keeps the assertion deterministic.
	h.Unregister(broken)
	h.Broadcast(domain.FeedRoom, []byte("two"))
	assert.Len(t, healthy.getReceived(), 2)
}

func TestHub_SameIdentityTwoConnections(t *testing.T) {
	h := New()
	first := connect(h, "c1", "alice", domain.FeedRoom, domain.PrivateRoom("alice"))
	second := connect(h, "c2", "alice", domain.FeedRoom, domain.PrivateRoom("alice"))

	h.Broadcast(domain.PrivateRoom("alice"), []byte("direct"))

	assert.Len(t, first.getReceived(), 1)
	assert.Len(t, second.getReceived(), 1, "membership is connection-scoped, not identity-scoped")

	h.Unregister(first)
	h.Broadcast(domain.PrivateRoom("alice"), []byte("again"))
	assert.Len(t, second.getReceived(), 2)
}

func TestHub_ConcurrentChurnAndBroadcast(t *testing.T) {
	h := New()
	stable := connect(h, "stable", "carol", domain.FeedRoom)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(id string) {
			defer wg.Done()
			c := connect(h, id, "churn", domain.FeedRoom)
			h.Unregister(c)
		}("churn" + string(rune('a'+i)))
		go func() {
			defer wg.Done()
			h.Broadcast(domain.FeedRoom, []byte("tick"))
		}()
	}
	wg.Wait()

	assert.Len(t, stable.getReceived(), 8, "stable member receives every broadcast")
}

func TestHub_Stats(t *testing.T) {
	h := New()
	connect(h, "a", "alice", domain.FeedRoom, domain.PrivateRoom("alice"))
	connect(h, "b", "bob", domain.FeedRoom, domain.PrivateRoom("bob"))

	rooms, clients := h.Stats()
	assert.Equal(t, 3, rooms)
	assert.Equal(t, 2, clients)
}
