package ws

import (
	"log"
	"sync"
	"time"

	"codeduel/internal/app/duel"

	"github.com/gorilla/websocket"
)

// client wraps one websocket connection. Outbound events go through a
// buffered channel drained by writePump, so hub broadcasts never block on a
// slow connection.
type client struct {
	conn     *websocket.Conn
	outbound chan duel.Event

	closeOnce sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn:     conn,
		outbound: make(chan duel.Event, 64),
	}
}

// Send implements duel.Conn. Events for a client whose buffer is full are
// dropped; the client will resync from the next room snapshot.
func (c *client) Send(event duel.Event) {
	select {
	case c.outbound <- event:
	default:
		log.Printf("WARN: dropping event %q for slow websocket client", event.Type)
	}
}

func (c *client) send(event duel.Event) {
	c.Send(event)
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.outbound:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.outbound)
	})
}
