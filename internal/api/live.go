package api

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"cantrace/internal/catalog"
	"cantrace/internal/models"
)

// LiveHub streams flushed frame batches to websocket subscribers. It
// implements engine.FrameSink; a slow or dead client is dropped rather
// than allowed to backpressure capture.
type LiveHub struct {
	catalog  *catalog.Catalog
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewLiveHub creates a new websocket hub
func NewLiveHub(cat *catalog.Catalog, logger *slog.Logger) *LiveHub {
	return &LiveHub{
		catalog: cat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// ServeWS upgrades the connection and registers the subscriber
// GET /api/live
func (h *LiveHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("live subscriber connected", "remote", conn.RemoteAddr().String())

	// Drain client messages to observe close frames.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(conn)
				return
			}
		}
	}()
}

// WriteFrames broadcasts one flushed batch to every subscriber.
func (h *LiveHub) WriteFrames(frames []models.Frame) {
	h.mu.Lock()
	if len(h.clients) == 0 {
		h.mu.Unlock()
		return
	}

	payload := make([]models.FrameResponse, 0, len(frames))
	for _, f := range frames {
		payload = append(payload, decorate(models.NewFrameResponse(f), f, h.catalog))
	}

	var dead []*websocket.Conn
	for conn := range h.clients {
		if err := conn.WriteJSON(payload); err != nil {
			dead = append(dead, conn)
		}
	}
	for _, conn := range dead {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mu.Unlock()
}

// CloseAll disconnects every subscriber.
func (h *LiveHub) CloseAll() {
	h.mu.Lock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()
}

func (h *LiveHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mu.Unlock()
}
