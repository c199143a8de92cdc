package ws

import (
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
)

// Writes that cannot drain within this window indicate a dead peer.
const writeTimeout = 10 * time.Second

// Client adapts a websocket connection to the hub's Subscriber interface.
// Send is only ever called from the hub run loop, which keeps the
// connection's single-writer contract.
type Client struct {
	conn *websocket.Conn
	log  *slog.Logger
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{conn: conn, log: logger}
}

// Send writes one text frame. A failed write closes the connection; the
// hub drops the subscriber when Send errors.
func (c *Client) Send(payload []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.log.Warn("websocket send failed", "error", err)
		_ = c.conn.Close()
		return err
	}
	return nil
}

// Close terminates the connection.
func (c *Client) Close() {
	_ = c.conn.Close()
}
