// Package client connects to a chat server and turns its frames into display lines.
package client

import (
	"context"
	"strings"

	"github.com/omochice/toy-chat-client/internal/chat"
	"github.com/omochice/toy-chat-client/internal/transport"
	"github.com/omochice/toy-chat-client/pkg/protocol"
)

// Client is the surface used by a user interface: connect, submit text and
// read the resulting display lines.
type Client struct {
	conn   *Connection
	lines  chan chat.DisplayLine
	states chan StateEvent
}

// New creates a Client whose connections come from factory.
func New(factory transport.Factory, opts ...Option) *Client {
	c := &Client{
		lines:  make(chan chat.DisplayLine, 10),
		states: make(chan StateEvent, 10),
	}
	c.conn = NewConnection(factory, c.deliver, opts...)
	c.conn.Observe(c.publish)
	return c
}

// Connection returns the underlying connection.
func (c *Client) Connection() *Connection {
	return c.conn
}

// Connect starts connecting to the server.
func (c *Client) Connect(ctx context.Context) error {
	return c.conn.Connect(ctx)
}

// Submit sends text typed by the user. Blank input is ignored, and text
// submitted while not connected is dropped.
func (c *Client) Submit(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	if err := c.conn.Send(ctx, protocol.Encode(text)); err != nil {
		c.conn.logger.Warn("failed to send message", "error", err)
		return
	}
	c.conn.logger.Debug("finished sending message", "bytes", len(text))
}

// Lines returns the channel of lines to display.
func (c *Client) Lines() <-chan chat.DisplayLine {
	return c.lines
}

// States returns the channel of state transitions. Transitions are dropped
// when nobody keeps up with the channel.
func (c *Client) States() <-chan StateEvent {
	return c.states
}

// State returns the current connection state.
func (c *Client) State() State {
	return c.conn.State()
}

// Close disconnects from the server.
func (c *Client) Close() {
	c.conn.Disconnect()
}

func (c *Client) deliver(ctx context.Context, line chat.DisplayLine) {
	select {
	case c.lines <- line:
	case <-ctx.Done():
	}
}

func (c *Client) publish(ev StateEvent) {
	select {
	case c.states <- ev:
	default:
		c.conn.logger.Debug("state channel full, dropping transition", "to", ev.To.String())
	}
}
