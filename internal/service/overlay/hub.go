// Package overlay fans live transcript updates out to overlay viewers
// connected over WebSocket.
package overlay

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"interview-copilot/internal/events"
	"interview-copilot/internal/models"
	"interview-copilot/internal/observability/logging"
	"interview-copilot/internal/observability/metrics"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// overlay windows connect from file:// and localhost origins
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub manages overlay viewer connections.
type Hub struct {
	metrics *metrics.Metrics
	logger  zerolog.Logger

	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan models.LiveTranscriptUpdate
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
	last    *models.LiveTranscriptUpdate
}

// NewHub creates a hub. Run must be started before viewers connect.
func NewHub() *Hub {
	return &Hub{
		metrics:    metrics.DefaultMetrics,
		logger:     logging.WithComponent("overlay"),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan models.LiveTranscriptUpdate, 100),
		done:       make(chan struct{}),
		clients:    make(map[*websocket.Conn]bool),
	}
}

// Run serves registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			h.metrics.OverlayClients.Set(0)
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			last := h.last
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.OverlayClients.Set(float64(n))
			h.logger.Info().Int("clients", n).Msg("Overlay viewer connected")
			// late joiners get the current transcript
			if last != nil {
				h.write(conn, *last)
			}

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.OverlayClients.Set(float64(n))
			h.logger.Info().Int("clients", n).Msg("Overlay viewer disconnected")

		case msg := <-h.broadcast:
			h.mu.Lock()
			h.last = &msg
			for conn := range h.clients {
				if !h.write(conn, msg) {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.OverlayClients.Set(float64(n))
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, msg models.LiveTranscriptUpdate) bool {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug().Err(err).Msg("Overlay write failed")
		return false
	}
	return true
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the viewer. Viewers only
// listen; anything they send is discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Overlay upgrade failed")
		return
	}
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) Name() string { return "overlay" }

// Broadcast queues the update for every viewer.
func (h *Hub) Broadcast(ctx context.Context, u events.Update) error {
	msg := models.LiveTranscriptUpdate{
		Type:    models.TypeLiveTranscriptUpdate,
		Text:    u.Text,
		IsFinal: u.IsFinal,
	}
	select {
	case h.broadcast <- msg:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
