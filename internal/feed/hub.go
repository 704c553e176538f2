package feed

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/mapdraw/internal/logging"
)

var hubUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub serves feed payloads to websocket subscribers, the publishing side
// of WSSource. A new subscriber immediately receives the latest payload.
type Hub struct {
	log logging.Logger

	mu     sync.Mutex
	subs   map[*hubConn]struct{}
	latest []byte
}

type hubConn struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub returns an empty hub.
func NewHub(log logging.Logger) *Hub {
	return &Hub{
		log:  logging.OrNoop(log),
		subs: make(map[*hubConn]struct{}),
	}
}

// Subscribers reports the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish queues payload for every subscriber. A subscriber that falls
// behind skips intermediate payloads but always receives the latest.
func (h *Hub) Publish(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = payload
	for c := range h.subs {
		c.offer(payload)
	}
}

// offer replaces any undelivered payload with payload. Callers hold h.mu,
// so offer is the only sender on c.send.
func (c *hubConn) offer(payload []byte) {
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- payload:
	default:
	}
}

// ServeHTTP upgrades the request and streams payloads until the
// subscriber disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := hubUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "feed subscriber upgrade failed", logging.Err(err))
		return
	}
	c := &hubConn{conn: conn, send: make(chan []byte, 1)}

	h.mu.Lock()
	if h.latest != nil {
		c.offer(h.latest)
	}
	h.subs[c] = struct{}{}
	h.mu.Unlock()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer func() {
		cancel()
		h.mu.Lock()
		delete(h.subs, c)
		h.mu.Unlock()
		conn.Close()
	}()

	// Drain control frames; any read error means the peer is gone.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.log.Debug(ctx, "feed subscriber write failed", logging.Err(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}
