package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"csvmail/internal/infrastructure"
)

// Message types sent by the hub itself. Job events use the operations
// event names.
const (
	TypeConnection = "connection"
	TypeSnapshot   = "validation:snapshot"
	TypeError      = "error"
)

// broadcastBuffer bounds the number of undelivered broadcasts.
const broadcastBuffer = 256

// Message is the envelope of every frame written to clients.
type Message struct {
	Type      string      `json:"type"`
	Topic     string      `json:"topic,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

type broadcastMessage struct {
	topic   string
	payload []byte
}

// Hub maintains the set of active clients and fans messages out to the
// clients subscribed to their topic.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound messages
	broadcast chan broadcastMessage

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex for thread-safe operations
	mu sync.RWMutex

	logger *slog.Logger

	// Metrics
	totalConnections int64
	messagesSent     int64
	messagesDropped  int64
	slowClients      int64

	// Control
	quit    chan struct{}
	done    chan struct{}
	running bool
}

// NewHub creates a new Hub instance
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	return &Hub{
		broadcast:  make(chan broadcastMessage, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     logger.With(slog.String("component", "websocket.hub")),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start starts the hub loop. It is a no-op on a running hub.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
}

// Run is the hub's main loop.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.quit:
			h.logger.Info("Hub shutting down")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.totalConnections++
			count := len(h.clients)
			h.mu.Unlock()

			h.logger.InfoContext(client.context(), "Client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.String("topic", client.topic),
				slog.String("remote_addr", client.remoteAddr))

			if err := client.Send(TypeConnection, map[string]interface{}{
				"status":    "connected",
				"client_id": client.id,
			}); err != nil {
				h.logger.WarnContext(client.context(), "Failed to send connection message",
					slog.String("client_id", client.id),
					slog.String("error", err.Error()))
			}

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			if ok {
				delete(h.clients, client)
			}
			count := len(h.clients)
			h.mu.Unlock()

			if ok {
				client.closeSend()
				h.logger.InfoContext(client.context(), "Client unregistered",
					slog.Int("total_clients", count),
					slog.String("client_id", client.id),
					slog.Duration("connection_duration", time.Since(client.connectedAt)))
			}

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// deliver writes msg to every client subscribed to its topic. Clients whose
// buffer is full are disconnected.
func (h *Hub) deliver(msg broadcastMessage) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if client.subscribed(msg.topic) {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		if client.enqueue(msg.payload) {
			sent++
			continue
		}

		h.mu.Lock()
		delete(h.clients, client)
		h.slowClients++
		h.mu.Unlock()
		client.closeSend()

		h.logger.WarnContext(client.context(), "Client send buffer full, disconnecting",
			slog.String("client_id", client.id))
	}

	h.mu.Lock()
	h.messagesSent += int64(sent)
	h.mu.Unlock()

	h.logger.Debug("Broadcast delivered",
		slog.String("topic", msg.topic),
		slog.Int("recipients", sent),
		slog.Int("payload_size", len(msg.payload)))
}

// Publish sends an event to the clients subscribed to topic. It never
// blocks: when the hub is stopped or its buffer is full the event is
// dropped.
func (h *Hub) Publish(topic, eventType string, data interface{}) {
	payload, err := encodeMessage(Message{
		Type:      eventType,
		Topic:     topic,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		h.logger.Error("Error marshaling message",
			slog.String("type", eventType),
			slog.String("error", err.Error()))
		return
	}

	select {
	case <-h.quit:
		h.recordDrop()
		return
	default:
	}

	select {
	case h.broadcast <- broadcastMessage{topic: topic, payload: payload}:
	default:
		h.recordDrop()
		h.logger.Warn("Broadcast buffer full, dropping message",
			slog.String("topic", topic),
			slog.String("type", eventType))
	}
}

func (h *Hub) recordDrop() {
	h.mu.Lock()
	h.messagesDropped++
	h.mu.Unlock()
}

// Register adds a client to the hub. It returns false once the hub is
// stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.quit:
		return false
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop stops the hub and closes every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
	<-h.done

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*Client]bool)
	h.mu.Unlock()

	for client := range clients {
		client.closeSend()
	}
}

// GetHubMetrics returns current hub metrics
func (h *Hub) GetHubMetrics() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]interface{}{
		"active_clients":    len(h.clients),
		"total_connections": h.totalConnections,
		"messages_sent":     h.messagesSent,
		"messages_dropped":  h.messagesDropped,
		"slow_clients":      h.slowClients,
	}
}

func encodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

func contextWithTrace(traceID string) context.Context {
	ctx := context.Background()
	if traceID != "" {
		ctx = infrastructure.WithTraceID(ctx, traceID)
	}
	return ctx
}
