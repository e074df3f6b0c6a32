package domain

import (
	"context"
	"encoding/json"
)

// FeedRoom is the shared broadcast group every authenticated connection
// joins on connect.
const FeedRoom = "feed"

// PrivateRoom returns the room name reserved for targeted delivery to a
// single identity. A connection joins its own private room on connect, so
// one identity with several open connections receives on all of them.
func PrivateRoom(identity string) string {
	return "user:" + identity
}

// Envelope is the wire frame exchanged with clients and backends. Payload
// is opaque to the server and forwarded byte-for-byte.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Connection interface {
	ID() string
	Identity() string
	Send(data []byte) error
	Close() error
}

type Broadcaster interface {
	Register(conn Connection)
	Unregister(conn Connection)
	Join(conn Connection, room string)
	Leave(conn Connection, room string)
	Broadcast(room string, data []byte)
	BroadcastAll(data []byte)
	Stats() (rooms, clients int)
}

type MessageHandler interface {
	Handle(conn Connection, data []byte)
}

// TokenVerifier checks an opaque bearer token against the identity
// provider and returns the stable identity it belongs to.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}
