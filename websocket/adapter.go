package websocket

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kamiyanagi-000/monsters-socket-server/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Conn adapts a gorilla websocket connection to domain.Connection. The
// identity is fixed at construction, after token verification succeeded;
// a Conn never exists for an unauthenticated peer.
type Conn struct {
	id          string
	identity    string
	ws          *websocket.Conn
	send        chan []byte
	createdAt   time.Time
	broadcaster domain.Broadcaster
	handler     domain.MessageHandler
}

func NewConn(id, identity string, ws *websocket.Conn, b domain.Broadcaster, h domain.MessageHandler) *Conn {
	return &Conn{
		id:          id,
		identity:    identity,
		ws:          ws,
		send:        make(chan []byte, 256),
		createdAt:   time.Now(),
		broadcaster: b,
		handler:     h,
	}
}

func (c *Conn) ID() string       { return c.id }
func (c *Conn) Identity() string { return c.identity }

func (c *Conn) Send(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return websocket.ErrCloseSent
	}
}

func (c *Conn) Close() error {
	return c.ws.Close()
}

// Start registers the connection, joins the feed and the private room, and
// runs the pumps. Returns once the pumps are going; teardown happens on the
// read pump's exit.
func (c *Conn) Start() {
	c.broadcaster.Register(c)
	c.broadcaster.Join(c, domain.FeedRoom)
	c.broadcaster.Join(c, domain.PrivateRoom(c.identity))

	go c.writePump()
	go c.readPump()
}

func (c *Conn) readPump() {
	defer func() {
		c.broadcaster.Unregister(c)
		c.ws.Close()
		slog.Debug("session closed", "clientId", c.id, "uptime", time.Since(c.createdAt))
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("read error", "clientId", c.id, "error", err)
			}
			return
		}

		c.handler.Handle(c, data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
