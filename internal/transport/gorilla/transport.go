// Package gorilla implements transport.Transport with gorilla/websocket.
package gorilla

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/omochice/toy-chat-client/internal/transport"
)

const closeGracePeriod = time.Second

// Transport is a single gorilla/websocket connection.
type Transport struct {
	opts   transport.Options
	dialer *websocket.Dialer
	stream *transport.Stream

	mu         sync.Mutex
	conn       *websocket.Conn
	cancelDial context.CancelFunc
	closed     bool

	writeMu sync.Mutex
}

// NewFactory returns a transport.Factory dialing opts.URL.
func NewFactory(opts transport.Options) transport.Factory {
	return func() (transport.Transport, error) {
		return New(opts)
	}
}

// New creates a Transport. The URL is validated here; dialing starts on Connect.
func New(opts transport.Options) (*Transport, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}

	dialer := *websocket.DefaultDialer
	dialer.Subprotocols = opts.Subprotocols

	return &Transport{
		opts:   opts,
		dialer: &dialer,
		stream: transport.NewStream(),
	}, nil
}

// Events implements transport.Transport.
func (t *Transport) Events() <-chan transport.Event {
	return t.stream.Events()
}

// Connect implements transport.Transport.
func (t *Transport) Connect(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		cancel()
		t.stream.Finish()
		return
	}
	t.cancelDial = cancel
	t.mu.Unlock()

	go t.run(ctx, cancel)
}

// Send implements transport.Transport. data is written as one text frame.
func (t *Transport) Send(ctx context.Context, data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return transport.ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Disconnect implements transport.Transport.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	conn := t.conn
	cancel := t.cancelDial
	t.mu.Unlock()

	t.stream.Stop()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		conn.Close()
	}
}

func (t *Transport) run(ctx context.Context, cancel context.CancelFunc) {
	defer t.stream.Finish()
	defer cancel()

	conn, resp, err := t.dialer.DialContext(ctx, t.opts.URL, t.opts.Header)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			t.stream.Emit(transport.Cancelled{})
		} else {
			t.stream.Emit(transport.Error{Err: fmt.Errorf("failed to connect to server: %w", err)})
		}
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.conn = conn
	t.mu.Unlock()

	conn.SetPingHandler(func(data string) error {
		t.stream.Emit(transport.Ping{Data: []byte(data)})
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(closeGracePeriod))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	conn.SetPongHandler(func(data string) error {
		t.stream.Emit(transport.Pong{Data: []byte(data)})
		return nil
	})

	if !t.stream.Emit(transport.Connected{Header: resp.Header}) {
		return
	}

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			t.stream.Emit(t.terminal(err))
			return
		}

		switch messageType {
		case websocket.TextMessage:
			t.stream.Emit(transport.Text{Data: string(data)})
		case websocket.BinaryMessage:
			t.stream.Emit(transport.Binary{Data: data})
		}
	}
}

func (t *Transport) terminal(err error) transport.Event {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return transport.Disconnected{Reason: ce.Text, Code: ce.Code}
	}
	if t.stream.Stopped() {
		return transport.Cancelled{}
	}
	return transport.Error{Err: fmt.Errorf("failed to read from server: %w", err)}
}
