// Package server implements a development chat server speaking the same
// protocol as the chat client.
package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/omochice/toy-chat-client/pkg/protocol"
)

// Subprotocol is the websocket sub-protocol the server negotiates.
const Subprotocol = "chat"

const writeWait = 10 * time.Second

// ErrStopped is returned by Start after Stop.
var ErrStopped = errors.New("server stopped")

// Server is a websocket chat server.
//
// The first text a client sends becomes its name. Every later text is
// broadcast to all clients as a "message" envelope. Frames sent by the
// server are UTF-16 JSON envelopes in binary frames.
type Server struct {
	address  string
	logger   *slog.Logger
	hub      *Hub
	upgrader websocket.Upgrader
	now      func() time.Time

	mu       sync.RWMutex
	listener net.Listener
	server   *http.Server
	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Server listening on address and keeping historySize lines.
func New(address string, historySize int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		address: address,
		logger:  logger,
		hub:     NewHub(historySize),
		upgrader: websocket.Upgrader{
			Subprotocols: []string{Subprotocol},
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for simplicity
			},
		},
		now:  time.Now,
		quit: make(chan struct{}),
	}
}

// Handler returns the HTTP handler serving websocket connections on "/".
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)
	return mux
}

// Start listens and serves until Stop is called.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: writeWait,
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	s.logger.Info("server started", "addr", listener.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("failed to serve: %w", err)
	case <-s.quit:
		return ErrStopped
	}
}

// Stop closes the listener and every client connection.
func (s *Server) Stop() {
	s.quitOnce.Do(func() {
		close(s.quit)
	})

	s.mu.RLock()
	server := s.server
	s.mu.RUnlock()
	if server != nil {
		server.Close()
	}

	s.hub.CloseAll()
	s.wg.Wait()
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	return s.hub.ClientCount()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", "error", err)
		return
	}

	p := &peer{
		id:       uuid.NewString(),
		conn:     conn,
		outgoing: make(chan []byte, 16),
	}
	history := s.hub.Register(p)

	s.wg.Add(1)
	go s.handleClient(p, history)
}

func (s *Server) handleClient(p *peer, history []any) {
	logger := s.logger.With("client", p.id)
	logger.Info("client connected")

	defer s.wg.Done()
	defer func() {
		s.hub.Unregister(p)
		p.conn.Close()
		logger.Info("client disconnected", "name", p.name)
	}()

	s.wg.Add(1)
	go s.writeLoop(p, logger)

	if len(history) > 0 {
		s.send(p, protocol.TypeHistory, history, logger)
	}

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket error", "error", err)
			}
			return
		}
		text := string(data)
		if text == "" {
			continue
		}

		if p.name == "" {
			p.name = text
			p.color = s.hub.AssignColor()
			logger.Info("client named", "name", p.name, "color", p.color)
			s.send(p, protocol.TypeColor, p.color, logger)
			continue
		}

		e := entry{
			Time:   s.now().UnixMilli(),
			Text:   text,
			Author: p.name,
			Color:  p.color,
		}
		s.hub.Record(e)

		frame, err := encode(protocol.TypeMessage, e.value())
		if err != nil {
			logger.Error("failed to encode message", "error", err)
			continue
		}
		if skipped := s.hub.Broadcast(frame); skipped > 0 {
			logger.Warn("client queue full, message skipped", "clients", skipped)
		}
	}
}

func (s *Server) writeLoop(p *peer, logger *slog.Logger) {
	defer s.wg.Done()
	for data := range p.outgoing {
		p.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := p.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			logger.Warn("failed to send message to client", "error", err)
			return
		}
	}
}

// send queues an envelope for p alone. Only the goroutine reading from p calls it.
func (s *Server) send(p *peer, typ string, data any, logger *slog.Logger) {
	frame, err := encode(typ, data)
	if err != nil {
		logger.Error("failed to encode envelope", "type", typ, "error", err)
		return
	}
	select {
	case p.outgoing <- frame:
	default:
		logger.Warn("client queue full, envelope skipped", "type", typ)
	}
}

func encode(typ string, data any) ([]byte, error) {
	env, err := protocol.NewEnvelope(typ, data)
	if err != nil {
		return nil, err
	}
	return protocol.EncodeEnvelope(env)
}
