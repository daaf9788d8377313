package ws

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/yitech/candlechart/protocol"
)

// Client is the host side of a /ws connection. Send and Recv may run on two
// goroutines, but neither concurrently with itself.
type Client struct {
	conn *websocket.Conn
}

// Dial connects to a surface's /ws endpoint, e.g. "ws://localhost:8080/ws".
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws: dial %s: %w", url, err)
	}
	return &Client{conn: conn}, nil
}

// Send encodes and writes one command.
func (c *Client) Send(cmd protocol.Command) error {
	return c.SendRecord(protocol.EncodeCommand(cmd))
}

// SendRecord writes a raw record, which the surface validates.
func (c *Client) SendRecord(rec protocol.Record) error {
	return c.conn.WriteJSON(rec)
}

// Recv blocks for the next event.
func (c *Client) Recv() (protocol.Event, error) {
	var rec protocol.Record
	if err := c.conn.ReadJSON(&rec); err != nil {
		return nil, err
	}
	return protocol.DecodeEvent(rec)
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}
