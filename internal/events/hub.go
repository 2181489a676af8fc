package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:   4096,
	WriteBufferSize:  4096,
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy belongs to the external routing layer; the hub
		// accepts whatever that layer forwarded.
		return true
	},
}

// clientMessage is a control message from a connected client
type clientMessage struct {
	Type    string `json:"type"`
	BatchID string `json:"batchId,omitempty"`
}

// client is one connected websocket consumer
type client struct {
	conn     *websocket.Conn
	send     chan Event
	id       string
	batches  map[string]bool
	hub      *Hub
	closeMu  sync.Mutex
	isClosed bool
}

// Hub broadcasts progress events to connected websocket clients. Clients may
// subscribe to a single batch; events for an unsubscribed batch are only
// delivered to clients with no subscriptions (firehose consumers).
type Hub struct {
	clients    map[string]*client
	register   chan *client
	unregister chan *client
	broadcast  chan Event

	mu         sync.RWMutex
	shutdown   chan struct{}
	isShutdown bool

	log *logrus.Entry
}

// NewHub creates a hub; call Run before publishing
func NewHub(log *logrus.Entry) *Hub {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Hub{
		clients:    make(map[string]*client),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Event, 64),
		shutdown:   make(chan struct{}),
		log:        log,
	}
}

// Publish implements Notifier. Events are dropped rather than blocking the
// processing loop when the hub is saturated or stopped.
func (h *Hub) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case h.broadcast <- event:
	case <-h.shutdown:
	default:
		h.log.WithField("type", event.Type).Warn("event hub saturated, dropping event")
	}
}

// Run starts the hub's dispatch loop in a goroutine
func (h *Hub) Run() {
	go func() {
		for {
			select {
			case <-h.shutdown:
				h.mu.Lock()
				for _, c := range h.clients {
					c.close()
				}
				h.clients = make(map[string]*client)
				h.mu.Unlock()
				return

			case c := <-h.register:
				h.mu.Lock()
				h.clients[c.id] = c
				h.mu.Unlock()

			case c := <-h.unregister:
				h.mu.Lock()
				if _, ok := h.clients[c.id]; ok {
					delete(h.clients, c.id)
					close(c.send)
				}
				h.mu.Unlock()

			case event := <-h.broadcast:
				h.mu.RLock()
				targets := make([]*client, 0, len(h.clients))
				for _, c := range h.clients {
					if len(c.batches) == 0 || c.batches[event.BatchID] {
						targets = append(targets, c)
					}
				}
				h.mu.RUnlock()

				for _, c := range targets {
					select {
					case c.send <- event:
					default:
						// Slow consumer, drop the connection
						go func(c *client) { h.unregister <- c }(c)
					}
				}
			}
		}
	}()
}

// Shutdown stops the hub and closes all connections
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if !h.isShutdown {
		h.isShutdown = true
		close(h.shutdown)
	}
	h.mu.Unlock()
}

// ServeWs upgrades an HTTP request into a hub connection. The external
// routing layer mounts this; no router lives in this package.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	stopped := h.isShutdown
	h.mu.RUnlock()
	if stopped {
		http.Error(w, "event hub is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{
		conn:    conn,
		send:    make(chan Event, 256),
		id:      uuid.NewString(),
		batches: make(map[string]bool),
		hub:     h,
	}

	h.register <- c

	go c.readPump()
	go c.writePump()
}

func (c *client) close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if !c.isClosed {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		c.conn.Close()
		c.isClosed = true
	}
}

// readPump consumes subscribe/unsubscribe control messages until the
// connection drops
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.close()
	}()

	c.conn.SetReadLimit(32 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				c.hub.log.WithError(err).Debug("websocket read error")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		c.hub.mu.Lock()
		switch msg.Type {
		case "subscribe":
			if msg.BatchID != "" {
				c.batches[msg.BatchID] = true
			}
		case "unsubscribe":
			delete(c.batches, msg.BatchID)
		}
		c.hub.mu.Unlock()
	}
}

// writePump forwards events to the connection and keeps it alive with pings
func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
