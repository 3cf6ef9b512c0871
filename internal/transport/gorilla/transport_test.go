package gorilla_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/omochice/toy-chat-client/internal/transport"
	"github.com/omochice/toy-chat-client/internal/transport/gorilla"
)

func newServer(t *testing.T, handler func(ctx context.Context, c *websocket.Conn)) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: []string{"chat"}})
		if err != nil {
			t.Errorf("failed to accept: %v", err)
			return
		}
		defer c.CloseNow()
		handler(r.Context(), c)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func next(t *testing.T, events <-chan transport.Event) transport.Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

func dial(t *testing.T, url string) *gorilla.Transport {
	t.Helper()
	tr, err := gorilla.New(transport.Options{URL: url, Subprotocols: []string{"chat"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(tr.Disconnect)
	tr.Connect(context.Background())
	return tr
}

func TestTransport_ReceiveFrames(t *testing.T) {
	url := newServer(t, func(ctx context.Context, c *websocket.Conn) {
		c.Write(ctx, websocket.MessageText, []byte("hello"))
		c.Write(ctx, websocket.MessageBinary, []byte{0xFF, 0xFE})
		c.Close(websocket.StatusNormalClosure, "bye")
	})

	tr := dial(t, url)

	connected, ok := next(t, tr.Events()).(transport.Connected)
	if !ok {
		t.Fatal("expected Connected first")
	}
	if got := connected.Header.Get("Sec-WebSocket-Protocol"); got != "chat" {
		t.Errorf("negotiated subprotocol = %q, want %q", got, "chat")
	}

	if text, ok := next(t, tr.Events()).(transport.Text); !ok || text.Data != "hello" {
		t.Errorf("expected Text{hello}, got %#v", text)
	}
	if bin, ok := next(t, tr.Events()).(transport.Binary); !ok || len(bin.Data) != 2 {
		t.Errorf("expected two byte Binary, got %#v", bin)
	}

	closed, ok := next(t, tr.Events()).(transport.Disconnected)
	if !ok {
		t.Fatal("expected Disconnected")
	}
	if closed.Code != int(websocket.StatusNormalClosure) || closed.Reason != "bye" {
		t.Errorf("Disconnected = %+v, want {bye 1000}", closed)
	}

	select {
	case _, ok := <-tr.Events():
		if ok {
			t.Error("expected event channel to be closed after terminal event")
		}
	case <-time.After(time.Second):
		t.Error("event channel not closed after terminal event")
	}
}

func TestTransport_Send(t *testing.T) {
	received := make(chan string, 1)
	url := newServer(t, func(ctx context.Context, c *websocket.Conn) {
		typ, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		if typ == websocket.MessageText {
			received <- string(data)
		}
		c.Read(ctx)
	})

	tr := dial(t, url)
	if _, ok := next(t, tr.Events()).(transport.Connected); !ok {
		t.Fatal("expected Connected")
	}

	if err := tr.Send(context.Background(), []byte("hi there")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case got := <-received:
		if got != "hi there" {
			t.Errorf("server received %q, want %q", got, "hi there")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestTransport_SendNotConnected(t *testing.T) {
	tr, err := gorilla.New(transport.Options{URL: "ws://localhost:9999"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = tr.Send(context.Background(), []byte("hello"))
	if !errors.Is(err, transport.ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}
}

func TestTransport_DialFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	server.Close()

	tr := dial(t, url)

	if _, ok := next(t, tr.Events()).(transport.Error); !ok {
		t.Error("expected Error event for refused connection")
	}
}

func TestTransport_DisconnectStopsEvents(t *testing.T) {
	url := newServer(t, func(ctx context.Context, c *websocket.Conn) {
		for {
			if err := c.Write(ctx, websocket.MessageText, []byte("tick")); err != nil {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	})

	tr := dial(t, url)
	if _, ok := next(t, tr.Events()).(transport.Connected); !ok {
		t.Fatal("expected Connected")
	}

	tr.Disconnect()
	tr.Disconnect()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-tr.Events():
			if !ok {
				return
			}
			if ev.Kind().Terminal() {
				t.Errorf("unexpected terminal event %v after Disconnect", ev.Kind())
			}
		case <-deadline:
			t.Fatal("event channel not closed after Disconnect")
		}
	}
}

func TestNew_RejectsScheme(t *testing.T) {
	if _, err := gorilla.New(transport.Options{URL: "http://localhost:1337/"}); err == nil {
		t.Error("expected error for http scheme")
	}
}
