package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
)

// ErrNotConnected is returned by Send before the handshake completes or
// after the connection ended.
var ErrNotConnected = errors.New("transport not connected")

// Transport is a single websocket connection attempt.
//
// Connect starts the handshake and returns immediately. Its outcome and all
// later activity arrive on Events in order: Connected, then any number of
// Text, Binary, Ping and Pong, then exactly one terminal event, after which
// the channel is closed. A failed handshake produces only the terminal event.
// Once Disconnect is called no further events are delivered.
type Transport interface {
	Connect(ctx context.Context)
	Send(ctx context.Context, data []byte) error
	Disconnect()
	Events() <-chan Event
}

// Factory creates a fresh Transport for each connection attempt.
type Factory func() (Transport, error)

// Options configures the websocket implementations.
type Options struct {
	URL          string
	Subprotocols []string
	Header       http.Header
}

// Stream is the event channel plumbing shared by the implementations.
type Stream struct {
	events   chan Event
	done     chan struct{}
	stopOnce sync.Once
}

// NewStream creates a Stream with a small delivery buffer.
func NewStream() *Stream {
	return &Stream{
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
}

// Events returns the receive side of the stream.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Emit delivers ev unless the stream was stopped. It reports whether ev was delivered.
func (s *Stream) Emit(ev Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// Finish closes the event channel. Only the producing goroutine calls it, once.
func (s *Stream) Finish() {
	close(s.events)
}

// Stop discards all further events. Safe to call more than once.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

// Done is closed by Stop.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Stopped reports whether Stop has been called.
func (s *Stream) Stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
