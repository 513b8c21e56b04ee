package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomnis/coldbrewer/internal/metrics"
	"github.com/tomnis/coldbrewer/internal/orchestrator"
)

const (
	// statusPushInterval is the cadence of websocket status frames.
	statusPushInterval = time.Second

	wsWriteTimeout = 5 * time.Second
)

// statusHub upgrades clients and pushes the brew status to each of them on a
// fixed cadence. Each connection gets its own pusher goroutine; the hub only
// tracks them for shutdown.
type statusHub struct {
	orch     *orchestrator.Orchestrator
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	closed bool
	conns  map[*websocket.Conn]struct{}

	// pushInterval is injectable for tests.
	pushInterval time.Duration
}

func newStatusHub(orch *orchestrator.Orchestrator, logger *slog.Logger) *statusHub {
	return &statusHub{
		orch:   orch,
		logger: logger.With("component", "ws"),
		upgrader: websocket.Upgrader{
			// CORS policy is enforced on the REST surface; the stream is
			// read-only status data.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns:        make(map[*websocket.Conn]struct{}),
		pushInterval: statusPushInterval,
	}
}

func (h *statusHub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	metrics.WebsocketClients.Inc()
	h.logger.Info("status stream client connected", "remote", conn.RemoteAddr().String())

	go h.push(conn)
	h.drain(conn)
}

// push streams status frames until the write fails or the hub closes.
func (h *statusHub) push(conn *websocket.Conn) {
	ticker := time.NewTicker(h.pushInterval)
	defer ticker.Stop()
	defer h.drop(conn)

	// Immediate first frame so clients render without waiting a tick. A
	// hub close drops the connection, which surfaces here as a write error.
	for {
		status := h.orch.Status(context.Background())
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(status); err != nil {
			return
		}
		<-ticker.C
	}
}

// drain consumes client frames so pings and close messages are processed.
func (h *statusHub) drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.drop(conn)
			return
		}
	}
}

func (h *statusHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	_, present := h.conns[conn]
	delete(h.conns, conn)
	h.mu.Unlock()

	if present {
		metrics.WebsocketClients.Dec()
		conn.Close()
	}
}

func (h *statusHub) close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		h.drop(c)
	}
}
