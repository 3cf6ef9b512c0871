// Package gobwas implements transport.Transport with gobwas/ws.
package gobwas

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/omochice/toy-chat-client/internal/transport"
)

const closeGracePeriod = time.Second

// Transport is a single gobwas/ws connection.
type Transport struct {
	opts   transport.Options
	stream *transport.Stream

	mu         sync.Mutex
	conn       net.Conn
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
	return &Transport{
		opts:   opts,
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
	if err := wsutil.WriteClientText(conn, data); err != nil {
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
		t.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(closeGracePeriod))
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = wsutil.WriteClientMessage(conn, ws.OpClose, body)
		t.writeMu.Unlock()
		conn.Close()
	}
}

func (t *Transport) run(ctx context.Context, cancel context.CancelFunc) {
	defer t.stream.Finish()
	defer cancel()

	header := http.Header{}
	dialer := ws.Dialer{
		Protocols: t.opts.Subprotocols,
		Header:    ws.HandshakeHeaderHTTP(t.opts.Header),
		OnHeader: func(key, value []byte) error {
			header.Add(string(key), string(value))
			return nil
		},
	}

	conn, br, hs, err := dialer.Dial(ctx, t.opts.URL)
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

	// Handshake headers are not passed to OnHeader.
	if hs.Protocol != "" {
		header.Set("Sec-WebSocket-Protocol", hs.Protocol)
	}

	// Frames sent right after the handshake may already sit in br.
	var source io.Reader = conn
	if br != nil {
		source = br
	}

	if !t.stream.Emit(transport.Connected{Header: header}) {
		return
	}

	control := wsutil.ControlFrameHandler(&lockedWriter{conn: conn, mu: &t.writeMu}, ws.StateClientSide)
	rd := &wsutil.Reader{
		Source:    source,
		State:     ws.StateClientSide,
		CheckUTF8: true,
		OnIntermediate: func(hdr ws.Header, r io.Reader) error {
			return t.handleControl(control, hdr, r)
		},
	}

	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			t.stream.Emit(t.terminal(err))
			return
		}

		if hdr.OpCode.IsControl() {
			if err := t.handleControl(control, hdr, rd); err != nil {
				t.stream.Emit(t.terminal(err))
				return
			}
			continue
		}

		data, err := io.ReadAll(rd)
		if err != nil {
			t.stream.Emit(t.terminal(err))
			return
		}

		switch hdr.OpCode {
		case ws.OpText:
			t.stream.Emit(transport.Text{Data: string(data)})
		case ws.OpBinary:
			t.stream.Emit(transport.Binary{Data: data})
		}
	}
}

func (t *Transport) handleControl(control wsutil.FrameHandlerFunc, hdr ws.Header, r io.Reader) error {
	switch hdr.OpCode {
	case ws.OpPing, ws.OpPong:
		payload := make([]byte, hdr.Length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return err
		}
		if hdr.OpCode == ws.OpPong {
			t.stream.Emit(transport.Pong{Data: payload})
			return nil
		}
		t.stream.Emit(transport.Ping{Data: payload})
		t.writeMu.Lock()
		defer t.writeMu.Unlock()
		return wsutil.WriteClientMessage(t.currentConn(), ws.OpPong, payload)
	default:
		return control(hdr, r)
	}
}

func (t *Transport) currentConn() net.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn
}

func (t *Transport) terminal(err error) transport.Event {
	var ce wsutil.ClosedError
	if errors.As(err, &ce) {
		return transport.Disconnected{Reason: ce.Reason, Code: int(ce.Code)}
	}
	if t.stream.Stopped() {
		return transport.Cancelled{}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return transport.Disconnected{Reason: "connection closed", Code: int(ws.StatusAbnormalClosure)}
	}
	return transport.Error{Err: fmt.Errorf("failed to read from server: %w", err)}
}

type lockedWriter struct {
	conn net.Conn
	mu   *sync.Mutex
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.Write(p)
}
