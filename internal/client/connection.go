package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/omochice/toy-chat-client/internal/chat"
	"github.com/omochice/toy-chat-client/internal/metrics"
	"github.com/omochice/toy-chat-client/internal/transport"
	"github.com/omochice/toy-chat-client/pkg/protocol"
)

// DefaultConnectTimeout bounds a connection attempt.
const DefaultConnectTimeout = 10 * time.Second

// Sink receives display lines. ctx is cancelled when the connection is torn
// down; a sink that blocks must give up then.
type Sink func(ctx context.Context, line chat.DisplayLine)

// Option configures a Connection.
type Option func(*Connection)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connection) {
		c.logger = logger
	}
}

// WithConnectTimeout sets how long a connection attempt may take.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Connection) {
		c.timeout = d
	}
}

// WithMetrics records activity in m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Connection) {
		c.metrics = m
	}
}

// WithDispatcher replaces the default dispatcher.
func WithDispatcher(d *chat.Dispatcher) Option {
	return func(c *Connection) {
		c.dispatcher = d
	}
}

// Connection owns the transport and the connection state.
//
// Transport events are consumed by one goroutine per connection attempt, in
// order. Each attempt has a generation number; Disconnect and a new Connect
// retire the previous generation so late events from it are ignored.
type Connection struct {
	newTransport transport.Factory
	sink         Sink
	dispatcher   *chat.Dispatcher
	timeout      time.Duration
	logger       *slog.Logger
	metrics      *metrics.Collector

	mu        sync.RWMutex
	state     State
	tr        transport.Transport
	gen       uint64
	stop      context.CancelFunc
	done      chan struct{}
	observers []func(StateEvent)
}

// NewConnection creates an idle Connection delivering lines to sink.
func NewConnection(factory transport.Factory, sink Sink, opts ...Option) *Connection {
	c := &Connection{
		newTransport: factory,
		sink:         sink,
		timeout:      DefaultConnectTimeout,
		state:        StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.dispatcher == nil {
		c.dispatcher = chat.NewDispatcher(c.logger)
	}
	if c.timeout <= 0 {
		c.timeout = DefaultConnectTimeout
	}
	return c
}

// State returns the current state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Observe registers fn to be called after every state transition.
// fn runs on the goroutine that caused the transition and must not call Disconnect.
func (c *Connection) Observe(fn func(StateEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Connect starts a connection attempt and returns without waiting for it.
// It does nothing while connecting or connected. The outcome is reported
// through state transitions; only a transport that cannot be created
// produces an error.
func (c *Connection) Connect(ctx context.Context) error {
	return c.connect(ctx, nil)
}

// reconnect starts an attempt only if nothing has happened since the
// transition of generation gen, so a Disconnect in between wins.
func (c *Connection) reconnect(ctx context.Context, gen uint64) error {
	return c.connect(ctx, &gen)
}

func (c *Connection) connect(ctx context.Context, since *uint64) error {
	c.mu.Lock()
	if c.state.active() {
		c.mu.Unlock()
		return nil
	}
	if since != nil && *since != c.gen {
		c.mu.Unlock()
		c.logger.Debug("skipping reconnect after disconnect")
		return nil
	}

	tr, err := c.newTransport()
	if err != nil {
		c.mu.Unlock()
		return err
	}

	c.gen++
	gen := c.gen
	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.tr, c.stop, c.done = tr, stop, done
	ev := c.setStateLocked(StateConnecting, nil)
	c.mu.Unlock()

	logger := c.logger.With("session", uuid.NewString())
	logger.Info("connecting")
	c.notify(ev)

	dialCtx, cancelDial := context.WithTimeout(ctx, c.timeout)
	tr.Connect(dialCtx)
	go c.run(runCtx, gen, tr, func() { cancelDial(); stop() }, done, logger)
	return nil
}

// Send writes data to the transport. Outside the Connected state the data
// is dropped and ErrNotConnected is returned.
func (c *Connection) Send(ctx context.Context, data []byte) error {
	c.mu.RLock()
	state, tr := c.state, c.tr
	c.mu.RUnlock()

	if state != StateConnected || tr == nil {
		c.metrics.SendDropped()
		return ErrNotConnected
	}
	if err := tr.Send(ctx, data); err != nil {
		c.metrics.SendDropped()
		return err
	}
	c.metrics.MessageSent()
	return nil
}

// Disconnect releases the transport and stops event delivery. When it
// returns no further lines reach the sink. Calling it again is a no-op.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	tr, stop, done := c.tr, c.stop, c.done
	c.tr, c.stop, c.done = nil, nil, nil
	c.gen++
	var ev *StateEvent
	if c.state != StateDisconnected {
		e := c.setStateLocked(StateDisconnected, ErrClosedByClient)
		ev = &e
	}
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	if tr != nil {
		tr.Disconnect()
	}
	if done != nil {
		<-done
	}
	if ev != nil {
		c.logger.Info("disconnected")
		c.notify(*ev)
	}
}

// fail moves a disconnected connection to Failed unless generation gen was retired.
func (c *Connection) fail(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	ev := c.setStateLocked(StateFailed, err)
	c.mu.Unlock()

	c.logger.Warn("connection failed", "error", err)
	c.notify(ev)
}

func (c *Connection) run(ctx context.Context, gen uint64, tr transport.Transport, release func(), done chan struct{}, logger *slog.Logger) {
	defer close(done)
	defer release()
	defer func() {
		// Disconnect cancels ctx and releases the transport itself.
		if ctx.Err() == nil {
			tr.Disconnect()
		}
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	timeout := timer.C

	for {
		select {
		case <-ctx.Done():
			return
		case <-timeout:
			c.terminate(gen, ErrConnectTimeout, logger)
			return
		case ev, ok := <-tr.Events():
			if !ok {
				c.terminate(gen, ErrTransportClosed, logger)
				return
			}
			c.metrics.FrameReceived(ev.Kind().String())

			switch ev := ev.(type) {
			case transport.Connected:
				timeout = nil
				c.connected(gen, ev, logger)
			case transport.Text:
				env, err := protocol.DecodeText(ev.Data)
				c.receive(ctx, gen, env, err, logger)
			case transport.Binary:
				env, err := protocol.Decode(ev.Data)
				c.receive(ctx, gen, env, err, logger)
			case transport.Ping, transport.Pong:
				logger.Debug("control frame", "kind", ev.Kind().String())
			case transport.Disconnected:
				c.terminate(gen, &CloseError{Code: ev.Code, Reason: ev.Reason}, logger)
				return
			case transport.Cancelled:
				c.terminate(gen, ErrCancelled, logger)
				return
			case transport.Error:
				err := ev.Err
				if err == nil {
					err = errors.New("unknown transport error")
				}
				c.terminate(gen, err, logger)
				return
			default:
				logger.Warn("unhandled transport event", "kind", ev.Kind().String())
			}
		}
	}
}

func (c *Connection) connected(gen uint64, ev transport.Connected, logger *slog.Logger) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	sev := c.setStateLocked(StateConnected, nil)
	c.mu.Unlock()

	logger.Info("connected", "subprotocol", ev.Header.Get("Sec-WebSocket-Protocol"))
	c.notify(sev)
}

// terminate handles the terminal event of generation gen. Only the first
// terminal event of a live generation has any effect.
func (c *Connection) terminate(gen uint64, err error, logger *slog.Logger) {
	c.mu.Lock()
	if gen != c.gen || !c.state.active() {
		c.mu.Unlock()
		return
	}
	ev := c.setStateLocked(StateDisconnected, err)
	c.tr, c.stop, c.done = nil, nil, nil
	c.mu.Unlock()

	logger.Warn("connection ended", "error", err)
	c.notify(ev)
}

func (c *Connection) receive(ctx context.Context, gen uint64, env protocol.Envelope, err error, logger *slog.Logger) {
	if err != nil {
		c.metrics.FrameDropped()
		logger.Debug("dropping malformed frame", "error", err)
		return
	}

	line, ok := c.dispatcher.Dispatch(env)
	if !ok {
		return
	}

	c.mu.RLock()
	live := gen == c.gen
	c.mu.RUnlock()
	if !live {
		return
	}

	c.metrics.LineDisplayed()
	c.sink(ctx, line)
}

func (c *Connection) setStateLocked(to State, err error) StateEvent {
	ev := StateEvent{From: c.state, To: to, Err: err, gen: c.gen}
	c.state = to
	return ev
}

func (c *Connection) notify(ev StateEvent) {
	c.metrics.StateChanged(ev.To.String())

	c.mu.RLock()
	observers := slices.Clone(c.observers)
	c.mu.RUnlock()

	for _, fn := range observers {
		fn(ev)
	}
}
