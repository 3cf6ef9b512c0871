// Package chat turns decoded protocol envelopes into lines for display.
package chat

import (
	"log/slog"
	"sync"

	"github.com/omochice/toy-chat-client/pkg/protocol"
)

// DisplayLine is one chat line handed to the display.
type DisplayLine struct {
	Author string
	Text   string
}

// String renders the line the way the transcript shows it.
func (l DisplayLine) String() string {
	return l.Author + ": " + l.Text
}

// HandlerFunc handles one envelope type. ok is false when nothing should be displayed.
type HandlerFunc func(env protocol.Envelope) (line DisplayLine, ok bool)

// Dispatcher routes envelopes to handlers by type.
// Types without a handler are ignored so the server can add new ones.
type Dispatcher struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewDispatcher creates a Dispatcher that handles "message" envelopes.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
	}
	d.Handle(protocol.TypeMessage, d.handleMessage)
	return d
}

// Handle registers h for envelopes of type typ, replacing any previous handler.
func (d *Dispatcher) Handle(typ string, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[typ] = h
}

// Dispatch returns the line to display for env, if any.
func (d *Dispatcher) Dispatch(env protocol.Envelope) (DisplayLine, bool) {
	d.mu.RLock()
	h, ok := d.handlers[env.Type]
	d.mu.RUnlock()

	if !ok {
		d.logger.Debug("ignoring envelope", "type", env.Type)
		return DisplayLine{}, false
	}
	return h(env)
}

func (d *Dispatcher) handleMessage(env protocol.Envelope) (DisplayLine, bool) {
	msg, err := env.ChatMessage()
	if err != nil {
		d.logger.Debug("dropping message envelope", "error", err)
		return DisplayLine{}, false
	}
	return DisplayLine{Author: msg.Author, Text: msg.Text}, true
}
