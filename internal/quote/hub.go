package quote

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chainflip-io/chainflip-backend-sub000/internal/logger"
	"github.com/chainflip-io/chainflip-backend-sub000/internal/metrics"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 8192
	sendBuffer     = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Providers connect from arbitrary origins; authentication is handled
	// elsewhere in the deployment.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ResponseHandler receives every valid quote response arriving on any
// provider connection.
type ResponseHandler func(providerID string, resp *ProviderResponse)

// Hub is the registry of live quote-provider connections. Connections are
// append/remove-only; broadcasts operate on a snapshot, so a provider
// connecting mid-request never blocks an in-flight aggregation.
type Hub struct {
	logger *logger.Logger

	mu     sync.RWMutex
	conns  map[*conn]struct{}
	nextID atomic.Uint64

	onResponse atomic.Pointer[ResponseHandler]
}

// NewHub creates an empty provider hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		logger: log,
		conns:  make(map[*conn]struct{}),
	}
}

// SetResponseHandler routes incoming quote responses. Must be called before
// providers connect.
func (h *Hub) SetResponseHandler(fn ResponseHandler) {
	h.onResponse.Store(&fn)
}

// ServeWS upgrades an HTTP request into a provider connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := &conn{
		id:   fmt.Sprintf("provider-%d", h.nextID.Add(1)),
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		hub:  h,
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()
	metrics.ConnectedProviders.Set(float64(n))

	h.logger.Infow("quote provider connected", "provider", c.id, "remote", r.RemoteAddr)

	go c.writeLoop()
	go c.readLoop()
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	_, present := h.conns[c]
	delete(h.conns, c)
	n := len(h.conns)
	h.mu.Unlock()

	if present {
		metrics.ConnectedProviders.Set(float64(n))
		close(c.send)
		h.logger.Infow("quote provider disconnected", "provider", c.id)
	}
}

// Broadcast sends a message to every currently connected provider and
// returns the ids of the connections reached. Slow consumers whose send
// buffer is full are skipped rather than blocking the broadcast. Sends
// happen under the read lock: remove closes a send channel only under the
// write lock, so a concurrently disconnecting provider either drops out of
// the registry before the broadcast or receives it on a still-open channel.
func (h *Hub) Broadcast(msg any) ([]string, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode broadcast: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.conns))
	for c := range h.conns {
		select {
		case c.send <- payload:
			ids = append(ids, c.id)
		default:
			h.logger.Warnw("dropping broadcast to slow provider", "provider", c.id)
		}
	}
	return ids, nil
}

// Count returns the number of connected providers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

type conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte
	hub  *Hub
}

func (c *conn) readLoop() {
	defer func() {
		c.hub.remove(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		resp, err := decodeProviderResponse(data)
		if err != nil {
			// A misbehaving provider must never affect the aggregation.
			c.hub.logger.Warnw("dropping malformed quote response", "provider", c.id, "err", err)
			metrics.QuoteResponseInc("malformed")
			continue
		}

		if handler := c.hub.onResponse.Load(); handler != nil {
			(*handler)(c.id, resp)
		}
	}
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
