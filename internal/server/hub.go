package server

import (
	"sync"

	"github.com/gorilla/websocket"
)

// colors are handed out to named clients in order.
var colors = []string{"red", "green", "blue", "magenta", "purple", "plum", "orange"}

// peer is one connected websocket client.
type peer struct {
	id       string
	conn     *websocket.Conn
	name     string
	color    string
	outgoing chan []byte
}

// entry is one chat line kept in the history.
type entry struct {
	Time   int64
	Text   string
	Author string
	Color  string
}

func (e entry) value() map[string]any {
	return map[string]any{
		"time":   e.Time,
		"text":   e.Text,
		"author": e.Author,
		"color":  e.Color,
	}
}

// Hub tracks connected peers and the recent chat history.
type Hub struct {
	mu          sync.RWMutex
	peers       map[*peer]bool
	history     []entry
	historySize int
	nextColor   int
}

// NewHub creates a Hub keeping at most historySize lines.
func NewHub(historySize int) *Hub {
	return &Hub{
		peers:       make(map[*peer]bool),
		historySize: historySize,
	}
}

// Register adds p and returns the history it should be sent.
func (h *Hub) Register(p *peer) []any {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[p] = true

	history := make([]any, 0, len(h.history))
	for _, e := range h.history {
		history = append(history, e.value())
	}
	return history
}

// Unregister removes p and closes its outgoing queue.
func (h *Hub) Unregister(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.peers[p] {
		delete(h.peers, p)
		close(p.outgoing)
	}
}

// ClientCount returns number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// AssignColor returns the next color in rotation.
func (h *Hub) AssignColor() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := colors[h.nextColor%len(colors)]
	h.nextColor++
	return c
}

// Record appends e to the history, dropping the oldest line when full.
func (h *Hub) Record(e entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.historySize <= 0 {
		return
	}
	h.history = append(h.history, e)
	if len(h.history) > h.historySize {
		h.history = h.history[len(h.history)-h.historySize:]
	}
}

// Broadcast queues data for every peer. Peers whose queue is full miss it.
func (h *Hub) Broadcast(data []byte) (skipped int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for p := range h.peers {
		select {
		case p.outgoing <- data:
		default:
			skipped++
		}
	}
	return skipped
}

// CloseAll closes every peer connection.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for p := range h.peers {
		p.conn.Close()
	}
}
