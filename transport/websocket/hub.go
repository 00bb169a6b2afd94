package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wricardo/evacuation-drill/drill/engine"
	"github.com/wricardo/evacuation-drill/drill/handler"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Events queued before Publish starts dropping them.
	eventBuffer = 1024

	// AllSessions is the topic of watchers that follow every connection.
	AllSessions = ""
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The monitor is read-only
		return true
	},
}

// RoomSource provides the room state attached to every message
type RoomSource interface {
	Snapshot() *engine.Snapshot
}

// Message is what watchers receive for every drill event
type Message struct {
	Event *handler.Event   `json:"event,omitempty"`
	Room  *engine.Snapshot `json:"room,omitempty"`
}

// Client represents a WebSocket watcher
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	topic string
}

// Hub fans drill events out to websocket watchers. Watchers subscribe either
// to one connection's session ID or to AllSessions.
type Hub struct {
	room   RoomSource
	logger *zap.SugaredLogger

	mu     sync.RWMutex
	topics map[string]map[*Client]bool

	// Events from connection handlers
	events chan handler.Event

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	dropped uint64
}

// NewHub creates a new WebSocket hub. room may be nil, in which case messages
// carry only the event.
func NewHub(room RoomSource, logger *zap.SugaredLogger) *Hub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Hub{
		room:       room,
		logger:     logger,
		topics:     make(map[string]map[*Client]bool),
		events:     make(chan handler.Event, eventBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case event := <-h.events:
			h.broadcastEvent(event)

		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return
		}
	}
}

// Publish queues an event for broadcast. It never blocks; when the queue is
// full the event is dropped.
func (h *Hub) Publish(event handler.Event) {
	select {
	case h.events <- event:
	default:
		h.mu.Lock()
		h.dropped++
		n := h.dropped
		h.mu.Unlock()
		if n%100 == 1 {
			h.logger.Warnw("Dropping drill events, watchers are too slow", "dropped", n)
		}
	}
}

// ServeWS upgrades the request and subscribes the watcher to topic
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, topic string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, 256),
		topic: topic,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	// Start client goroutines
	go client.writePump()
	go client.readPump()
}

// ClientCount returns the number of watchers subscribed to topic
func (h *Hub) ClientCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// registerClient adds a client to its topic
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if h.topics[client.topic] == nil {
		h.topics[client.topic] = make(map[*Client]bool)
	}
	h.topics[client.topic][client] = true
	n := len(h.topics[client.topic])
	h.mu.Unlock()

	h.logger.Debugw("Watcher registered", "topic", client.topic, "clients", n)

	// Send the current room right away so a new watcher has something to draw
	if h.room != nil {
		if data, err := json.Marshal(&Message{Room: h.room.Snapshot()}); err == nil {
			h.deliver(client, data)
		}
	}
}

// unregisterClient removes a client from its topic
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.topics[client.topic]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)

	// Clean up empty topics
	if len(clients) == 0 {
		delete(h.topics, client.topic)
	}

	h.logger.Debugw("Watcher unregistered", "topic", client.topic, "remaining", len(clients))
}

// broadcastEvent sends the event and a fresh room snapshot to every watcher
// of the event's session and to every watcher of all sessions
func (h *Hub) broadcastEvent(event handler.Event) {
	message := &Message{Event: &event}
	if h.room != nil {
		message.Room = h.room.Snapshot()
	}

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Errorw("Failed to marshal broadcast message", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range []string{AllSessions, event.SessionID} {
		for client := range h.topics[topic] {
			select {
			case client.send <- data:
			default:
				// Client's send channel is full, drop it
				h.removeLocked(client)
			}
		}
		if event.SessionID == AllSessions {
			break
		}
	}
}

func (h *Hub) deliver(client *Client, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.topics[client.topic][client] {
		return
	}
	select {
	case client.send <- data:
	default:
		h.removeLocked(client)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.topics {
		for client := range clients {
			h.removeLocked(client)
		}
	}
}

// readPump drains the connection so pongs and close frames are processed
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		// Watchers are read-only; anything they send is ignored
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debugw("WebSocket error", "error", err)
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
