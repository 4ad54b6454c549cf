// Package realtime pushes domain events to websocket clients. The coach
// dashboard subscribes to a subject (an interview or program id) and receives
// the matching events as they are published on the bus.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yorby/backend/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     buildCheckOrigin(),
}

const (
	pongWait   = 60 * time.Second // Time allowed to read the next pong
	pingPeriod = 30 * time.Second // Send pings at this interval (must be < pongWait)
	writeWait  = 10 * time.Second // Time allowed to write a message
	maxMsgSize = 4 * 1024         // Clients only send subscription tweaks
	sendBuffer = 64               // Per-client outbound channel buffer
)

// buildCheckOrigin validates origins against YORBY_ALLOWED_ORIGINS in
// production and allows everything in dev/staging.
func buildCheckOrigin() func(r *http.Request) bool {
	env := os.Getenv("YORBY_ENV")
	allowedRaw := os.Getenv("YORBY_ALLOWED_ORIGINS")

	if env == "production" && allowedRaw != "" {
		allowed := make(map[string]bool)
		for _, origin := range strings.Split(allowedRaw, ",") {
			allowed[strings.TrimSpace(origin)] = true
		}
		return func(r *http.Request) bool {
			return allowed[r.Header.Get("Origin")]
		}
	}

	if env == "production" && allowedRaw == "" {
		slog.Warn("YORBY_ALLOWED_ORIGINS not set in production, allowing all origins")
	}
	return func(r *http.Request) bool { return true }
}

// client is one websocket connection subscribed to a subject.
type client struct {
	hub     *Hub
	subject string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
}

// Hub fans bus events out to subscribed websocket clients.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]map[*client]bool // subject -> clients

	unsubscribes []func()
}

// NewHub creates a hub and subscribes it to the event types the dashboard
// cares about. Call Close to detach from the bus.
func NewHub(bus events.Bus, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		logger:  logger,
		clients: make(map[string]map[*client]bool),
	}

	for _, eventType := range []events.Type{
		events.TypeQuestionEdited,
		events.TypeQuestionDeleted,
		events.TypeQuestionStatusChanged,
		events.TypeQuestionReverted,
		events.TypeAnalysisStarted,
		events.TypeAnalysisSection,
		events.TypeAnalysisCompleted,
		events.TypeAnalysisFailed,
		events.TypeApplicationScreened,
	} {
		h.unsubscribes = append(h.unsubscribes, bus.Subscribe(eventType, h.deliver))
	}
	return h
}

// Close detaches the hub from the bus and disconnects every client.
func (h *Hub) Close() {
	for _, unsub := range h.unsubscribes {
		unsub()
	}
	h.mu.Lock()
	var all []*client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.Unlock()
	for _, c := range all {
		c.close()
	}
}

// deliver pushes a bus event to every client watching its subject.
func (h *Hub) deliver(_ context.Context, event *events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.RLock()
	var targets []*client
	for c := range h.clients[event.Subject] {
		targets = append(targets, c)
	}
	for c := range h.clients["*"] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("send buffer full, dropping event",
				"subject", event.Subject, "type", event.Type)
		}
	}
	return nil
}

// HandleWebSocket upgrades the request and registers the client. The subject
// to watch comes from the "subject" query parameter; "*" watches everything.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	if subject == "" {
		http.Error(w, "subject query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:     h,
		subject: subject,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
	}
	h.register(c)
	h.logger.Info("websocket client connected", "subject", subject)

	// writePump owns all writes to conn, readPump owns all reads.
	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.subject]
	if !ok {
		set = make(map[*client]bool)
		h.clients[c.subject] = set
	}
	set[c] = true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[c.subject]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.subject)
		}
	}
}

// close shuts down the client connection exactly once.
func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.hub.unregister(c)
		c.conn.Close()
		c.hub.logger.Info("websocket client disconnected", "subject", c.subject)
	})
}

// writePump serializes all writes to the connection, including pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Drain anything queued behind this message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// readPump consumes the connection until the client goes away. Inbound
// frames are ignored; the socket is push-only.
func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
	}
}
