// Package ws pushes orchestrator lifecycle events to attached dashboards.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
)

// Message is the envelope for every event frame sent to clients.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// client is one attached peer with its own outbound queue. The queue is
// closed exactly once, under the hub mutex, when the client leaves the map.
type client struct {
	out chan []byte
}

// Hub fans event frames out to attached WebSocket clients. Peers that stop
// draining their queue are dropped rather than allowed to stall a broadcast.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// HandleWS upgrades the request and serves the peer until it disconnects.
// The handler blocks for the lifetime of the connection so the request
// context stays valid.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin policy is the CORS middleware's job
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}
	defer sock.CloseNow()

	c := &client{out: make(chan []byte, sendBuffer)}
	h.attach(c)
	defer h.detach(c)

	slog.Info("ws client attached", "remote", r.RemoteAddr, "clients", h.ConnectionCount())

	// CloseRead answers control frames and cancels the context when the
	// peer goes away. Data frames from clients are discarded.
	ctx := sock.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-c.out:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := sock.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// Broadcast queues a frame for every attached client. A client whose queue
// is full has stopped draining; it is cut loose so the others keep receiving.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	frame, err := json.Marshal(msg)
	if err != nil {
		slog.Error("ws frame marshal", "type", msg.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.out <- frame:
		default:
			delete(h.clients, c)
			close(c.out)
			slog.Warn("ws client dropped, queue full")
		}
	}
}

// ConnectionCount returns the number of attached clients.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) attach(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.out)
		slog.Info("ws client detached", "clients", len(h.clients))
	}
}
