package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kamiyanagi-000/monsters-socket-server/auth"
	"github.com/kamiyanagi-000/monsters-socket-server/domain"
	"github.com/kamiyanagi-000/monsters-socket-server/protocol"
	ws "github.com/kamiyanagi-000/monsters-socket-server/websocket"
)

// Server exposes the HTTP surface: the websocket handshake, the trusted
// server-to-server ingestion endpoints, and the liveness and stats probes.
type Server struct {
	broadcaster domain.Broadcaster
	handler     domain.MessageHandler
	verifier    domain.TokenVerifier
	upgrader    websocket.Upgrader
}

func New(b domain.Broadcaster, h domain.MessageHandler, v domain.TokenVerifier, allowedOrigin string) *Server {
	return &Server{
		broadcaster: b,
		handler:     h,
		verifier:    v,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigin),
		},
	}
}

// originChecker admits any origin for "*" and otherwise requires an exact
// match. Requests without an Origin header are non-browser clients and
// pass.
func originChecker(allowed string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if allowed == "*" {
			return true
		}
		origin := r.Header.Get("Origin")
		return origin == "" || origin == allowed
	}
}

func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/", s.handleRoot)
	r.Get("/ws", s.handleWS)
	r.Get("/stats", s.handleStats)
	r.Post("/emit", s.handleEmit)
	r.Post("/emit/feed:new-post", s.handleEmitNewPost)
	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Monsters Socket Server is running"))
}

// handleWS runs the connection handshake: verify the token, refuse the
// attempt with 401 before upgrading on any auth error, otherwise upgrade
// and hand the session to the adapter. A rejected attempt registers
// nothing.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromRequest(r)
	identity, err := s.verifier.Verify(r.Context(), token)
	if err != nil {
		slog.Warn("connection rejected", "error", err)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("upgrade error", "error", err)
		return
	}

	ws.NewConn(uuid.New().String(), identity, conn, s.broadcaster, s.handler).Start()
}

// handleEmit accepts {event, payload} from a trusted backend and fans the
// event out to every connected client. No token check: reachability is the
// trust boundary here, the endpoint must not be exposed publicly.
func (s *Server) handleEmit(w http.ResponseWriter, r *http.Request) {
	var body domain.Envelope
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if body.Event == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "event required"})
		return
	}

	frame, err := protocol.Encode(body.Event, body.Payload)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	slog.Info("emit received", "event", body.Event)
	s.broadcaster.BroadcastAll(frame)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleEmitNewPost is the narrow legacy ingestion route: the event name is
// fixed and the body carries only the payload, scoped to the feed room.
func (s *Server) handleEmitNewPost(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	frame, err := protocol.Encode("feed:new-post", body.Payload)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	slog.Info("emit received", "event", "feed:new-post")
	s.broadcaster.Broadcast(domain.FeedRoom, frame)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	rooms, clients := s.broadcaster.Stats()
	writeJSON(w, http.StatusOK, map[string]int{"rooms": rooms, "clients": clients})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
