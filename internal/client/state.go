package client

import (
	"errors"
	"fmt"
)

// State is the connection lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// active reports whether a transport is attached in this state.
func (s State) active() bool {
	return s == StateConnecting || s == StateConnected
}

// StateEvent describes one state transition.
type StateEvent struct {
	From State
	To   State
	// Err is the reason for entering Disconnected or Failed.
	Err error

	gen uint64
}

var (
	// ErrNotConnected is returned by Send outside the Connected state.
	ErrNotConnected = errors.New("not connected to server")

	// ErrConnectTimeout ends a connection attempt that saw no handshake in time.
	ErrConnectTimeout = errors.New("connection attempt timed out")

	// ErrClosedByClient is the reason recorded by Disconnect.
	ErrClosedByClient = errors.New("connection closed by client")

	// ErrCancelled is recorded when the transport reports the attempt was cancelled.
	ErrCancelled = errors.New("connection cancelled")

	// ErrTransportClosed is recorded when the transport ends without a terminal event.
	ErrTransportClosed = errors.New("transport closed unexpectedly")
)

// CloseError is recorded when the server closes the connection.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("closed by server: code %d: %s", e.Code, e.Reason)
}
