// Package ws pushes live queue and alert state to connected dashboards.
// It is a hub-and-spoke broadcaster: each endpoint maps to one topic, every
// subscriber of a topic gets the same snapshot, and a slow subscriber is
// skipped rather than allowed to block the rest.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Topics served by the hub.
const (
	TopicQueue  = "queue"
	TopicAlerts = "alerts"
)

const snapshotTimeout = 5 * time.Second

// SnapshotFunc produces the full current state for a topic. The hub calls
// it on connect, on an inbound refresh request, and on every Refresh.
type SnapshotFunc func(ctx context.Context) (interface{}, error)

// Event is one outbound message. Type is always "snapshot": listeners get
// whole-state messages, never deltas.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// clientMessage is an inbound message from a listener.
type clientMessage struct {
	Action string `json:"action"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is a single connected listener on one topic.
type Client struct {
	ID    string
	Topic string
	Send  chan []byte
	conn  Conn
}

// Hub tracks listeners per topic and broadcasts snapshots to them.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[*Client]struct{}
	snapshots map[string]SnapshotFunc
	log       zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:   make(map[string]map[*Client]struct{}),
		snapshots: make(map[string]SnapshotFunc),
		log:       log,
	}
}

// RegisterTopic binds a snapshot producer to a topic. Must be called before
// listeners connect to that topic.
func (h *Hub) RegisterTopic(topic string, fn SnapshotFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshots[topic] = fn
}

// Register adds a listener and immediately sends it the current snapshot.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	if h.clients[client.Topic] == nil {
		h.clients[client.Topic] = make(map[*Client]struct{})
	}
	h.clients[client.Topic][client] = struct{}{}
	h.mu.Unlock()

	h.sendSnapshot(client)
}

// Unregister removes a listener and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subscribers, ok := h.clients[client.Topic]
	if !ok {
		return
	}
	if _, ok := subscribers[client]; !ok {
		return
	}
	delete(subscribers, client)
	if len(subscribers) == 0 {
		delete(h.clients, client.Topic)
	}
	close(client.Send)
}

// Refresh recomputes the topic snapshot and broadcasts it to every listener
// of that topic. Unknown topics and snapshot failures are logged and
// dropped: realtime delivery is best-effort.
func (h *Hub) Refresh(topic string) {
	data, err := h.snapshot(topic)
	if err != nil {
		h.log.Warn().Err(err).Str("topic", topic).Msg("snapshot failed")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[topic] {
		select {
		case client.Send <- data:
		default:
			// Listener buffer full; skip so one slow reader never blocks
			// the broadcast.
		}
	}
}

// sendSnapshot delivers the current snapshot to a single listener.
func (h *Hub) sendSnapshot(client *Client) {
	data, err := h.snapshot(client.Topic)
	if err != nil {
		h.log.Warn().Err(err).Str("topic", client.Topic).Msg("snapshot failed")
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

func (h *Hub) snapshot(topic string) ([]byte, error) {
	h.mu.RLock()
	fn, ok := h.snapshots[topic]
	h.mu.RUnlock()
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "unknown topic: "+topic)
	}

	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()
	state, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{
		Type:      "snapshot",
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	})
}

// ClientCount returns the total number of connected listeners.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subscribers := range h.clients {
		n += len(subscribers)
	}
	return n
}

// TopicCount returns the number of listeners on one topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// Handler upgrades HTTP connections onto hub topics.
type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes registers one endpoint per topic.
func (wsh *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/queue", wsh.connect(TopicQueue))
	g.GET("/alerts", wsh.connect(TopicAlerts))
}

func (wsh *Handler) connect(topic string) echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}

		client := &Client{
			ID:    uuid.New().String(),
			Topic: topic,
			Send:  make(chan []byte, 256),
			conn:  &gorillaConnAdapter{conn},
		}
		wsh.hub.Register(client)

		go wsh.writePump(client, conn)
		go wsh.readPump(client, conn)
		return nil
	}
}

// readPump consumes inbound messages; the only recognised action is
// "refresh", which re-sends the topic snapshot to this listener.
func (wsh *Handler) readPump(client *Client, conn *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue // Ignore malformed messages.
		}
		if msg.Action == "refresh" {
			wsh.hub.sendSnapshot(client)
		}
	}
}

func (wsh *Handler) writePump(client *Client, conn *gorillawebsocket.Conn) {
	defer conn.Close()

	for message := range client.Send {
		if err := conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}

type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}
