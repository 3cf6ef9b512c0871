// Package transport defines the boundary between the chat client and the
// websocket library carrying its frames.
package transport

import "net/http"

// Kind tags an Event variant.
type Kind int

const (
	KindConnected Kind = iota
	KindDisconnected
	KindText
	KindBinary
	KindPing
	KindPong
	KindCancelled
	KindError
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindConnected:
		return "connected"
	case KindDisconnected:
		return "disconnected"
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindCancelled:
		return "cancelled"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether an event of this kind ends a connection.
func (k Kind) Terminal() bool {
	return k == KindDisconnected || k == KindCancelled || k == KindError
}

// Event is one transport notification. The set of variants is closed:
// only the types in this file implement it.
type Event interface {
	Kind() Kind
	event()
}

// Connected is delivered once the handshake completes.
type Connected struct {
	Header http.Header
}

// Disconnected is delivered when the peer closes the connection.
type Disconnected struct {
	Reason string
	Code   int
}

// Text carries one text frame.
type Text struct {
	Data string
}

// Binary carries one binary frame.
type Binary struct {
	Data []byte
}

// Ping is delivered when the peer pings. Transports answer it themselves.
type Ping struct {
	Data []byte
}

// Pong is delivered when the peer answers a ping.
type Pong struct {
	Data []byte
}

// Cancelled is delivered when the connection attempt was aborted.
type Cancelled struct{}

// Error is delivered when the connection fails. Err may be nil.
type Error struct {
	Err error
}

func (Connected) Kind() Kind    { return KindConnected }
func (Disconnected) Kind() Kind { return KindDisconnected }
func (Text) Kind() Kind         { return KindText }
func (Binary) Kind() Kind       { return KindBinary }
func (Ping) Kind() Kind         { return KindPing }
func (Pong) Kind() Kind         { return KindPong }
func (Cancelled) Kind() Kind    { return KindCancelled }
func (Error) Kind() Kind        { return KindError }

func (Connected) event()    {}
func (Disconnected) event() {}
func (Text) event()         {}
func (Binary) event()       {}
func (Ping) event()         {}
func (Pong) event()         {}
func (Cancelled) event()    {}
func (Error) event()        {}
