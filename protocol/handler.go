package protocol

import (
	"encoding/json"
	"log/slog"

	"github.com/kamiyanagi-000/monsters-socket-server/domain"
)

// route is the broadcast policy for one recognized client event: either a
// reply sent back to the sender alone, or a verbatim re-broadcast to a room.
type route struct {
	reply string
	room  string
}

// Event names outside this table are dropped. The relay forwards a fixed
// vocabulary, not arbitrary names.
var routes = map[string]route{
	"ping":                         {reply: "pong"},
	"feed:resync-request":          {reply: "feed:resync-ack"},
	"feed:update-reaction":         {room: domain.FeedRoom},
	"feed:update-comment":          {room: domain.FeedRoom},
	"feed:update-comment-reaction": {room: domain.FeedRoom},
	"feed:update-post":             {room: domain.FeedRoom},
	"feed:delete-post":             {room: domain.FeedRoom},
}

type Handler struct {
	broadcaster domain.Broadcaster
}

func NewHandler(b domain.Broadcaster) *Handler {
	return &Handler{broadcaster: b}
}

// Encode builds the wire frame for a named event. A nil payload yields a
// bare event frame.
func Encode(event string, payload json.RawMessage) ([]byte, error) {
	return json.Marshal(domain.Envelope{Event: event, Payload: payload})
}

func (h *Handler) Handle(conn domain.Connection, data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Warn("invalid frame", "clientId", conn.ID(), "error", err)
		return
	}

	rt, ok := routes[env.Event]
	if !ok {
		slog.Debug("ignoring unknown event", "event", env.Event, "clientId", conn.ID())
		return
	}

	if rt.reply != "" {
		if frame, err := Encode(rt.reply, nil); err == nil {
			conn.Send(frame)
		}
		return
	}

	frame, err := Encode(env.Event, env.Payload)
	if err != nil {
		slog.Warn("encode error", "event", env.Event, "clientId", conn.ID(), "error", err)
		return
	}

	slog.Info("relaying event", "event", env.Event, "clientId", conn.ID())
	h.broadcaster.Broadcast(rt.room, frame)
}
