package hub

import (
	"log/slog"
	"sync"

	"github.com/kamiyanagi-000/monsters-socket-server/domain"
)

// Hub tracks live connections and their room memberships and fans events
// out to them. Rooms exist only while they have members; an empty room is
// removed from the index. One mutex guards both maps so that teardown of a
// connection is atomic with respect to broadcasts.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]domain.Connection
	rooms  map[string]map[string]domain.Connection
	joined map[string]map[string]struct{}
}

func New() *Hub {
	return &Hub{
		conns:  make(map[string]domain.Connection),
		rooms:  make(map[string]map[string]domain.Connection),
		joined: make(map[string]map[string]struct{}),
	}
}

func (h *Hub) Register(conn domain.Connection) {
	h.mu.Lock()
	h.conns[conn.ID()] = conn
	h.joined[conn.ID()] = make(map[string]struct{})
	count := len(h.conns)
	h.mu.Unlock()

	slog.Info("client connected", "clientId", conn.ID(), "identity", conn.Identity(), "clients", count)
}

// Unregister removes the connection from every room it joined and drops it
// from the registry in one step.
func (h *Hub) Unregister(conn domain.Connection) {
	h.mu.Lock()
	if _, ok := h.conns[conn.ID()]; !ok {
		h.mu.Unlock()
		return
	}
	for room := range h.joined[conn.ID()] {
		h.removeMember(room, conn.ID())
	}
	delete(h.joined, conn.ID())
	delete(h.conns, conn.ID())
	count := len(h.conns)
	h.mu.Unlock()

	slog.Info("client disconnected", "clientId", conn.ID(), "identity", conn.Identity(), "clients", count)
}

func (h *Hub) Join(conn domain.Connection, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[conn.ID()]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]domain.Connection)
		h.rooms[room] = members
	}
	members[conn.ID()] = conn
	h.joined[conn.ID()][room] = struct{}{}

	slog.Debug("joined room", "room", room, "clientId", conn.ID())
}

func (h *Hub) Leave(conn domain.Connection, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.joined[conn.ID()]; ok {
		delete(set, room)
	}
	h.removeMember(room, conn.ID())
}

// removeMember drops one connection from a room's member set and removes
// the room once empty. Callers hold h.mu.
func (h *Hub) removeMember(room, id string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(h.rooms, room)
		slog.Debug("room removed", "room", room)
	}
}

// Broadcast delivers data to every current member of room, the sender
// included if it is a member. Membership is snapshotted at dispatch;
// delivery to each recipient is best-effort and a failed recipient is
// detached without aborting the rest.
func (h *Hub) Broadcast(room string, data []byte) {
	h.mu.RLock()
	members := make([]domain.Connection, 0, len(h.rooms[room]))
	for _, conn := range h.rooms[room] {
		members = append(members, conn)
	}
	h.mu.RUnlock()

	h.deliver(members, data)
}

// BroadcastAll delivers data to every registered connection regardless of
// room membership.
func (h *Hub) BroadcastAll(data []byte) {
	h.mu.RLock()
	members := make([]domain.Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		members = append(members, conn)
	}
	h.mu.RUnlock()

	h.deliver(members, data)
}

func (h *Hub) deliver(members []domain.Connection, data []byte) {
	for _, conn := range members {
		if err := conn.Send(data); err != nil {
			slog.Debug("dropping unreachable client", "clientId", conn.ID(), "error", err)
			go h.Unregister(conn)
		}
	}
}

func (h *Hub) Stats() (rooms, clients int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms), len(h.conns)
}
