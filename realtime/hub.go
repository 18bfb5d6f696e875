// Package realtime keeps per-user rooms of live websocket connections and fans
// events out to them.
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
	"vibeconnect/metrics"
)

// Frame is the wire format of every websocket message, in both directions.
type Frame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Hub tracks which connections are joined to which user's room. It implements
// events.Notifier.
type Hub struct {
	rooms      map[string]map[*Client]bool
	mu         sync.RWMutex
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *zap.Logger
	metrics    *metrics.Collector
}

func NewHub(logger *zap.Logger, m *metrics.Collector) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
		logger:     logger.Named("hub"),
		metrics:    m,
	}
}

// Run processes joins and leaves until ctx is cancelled, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("hub stopped")
			return nil
		case client := <-h.register:
			h.join(client)
		case client := <-h.unregister:
			h.leave(client)
		}
	}
}

func (h *Hub) join(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[client.userID]
	if room == nil {
		room = make(map[*Client]bool)
		h.rooms[client.userID] = room
		h.metrics.Rooms.Inc()
	}
	room[client] = true
	close(client.joined)
	h.metrics.Connections.Inc()

	h.logger.Debug("client joined",
		zap.String("user", client.userID),
		zap.String("conn", client.id),
		zap.Int("room_size", len(room)),
	)
}

func (h *Hub) leave(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[client.userID]
	if !ok || !room[client] {
		return
	}
	delete(room, client)
	close(client.send)
	h.metrics.Connections.Dec()
	if len(room) == 0 {
		delete(h.rooms, client.userID)
		h.metrics.Rooms.Dec()
	}

	h.logger.Debug("client left",
		zap.String("user", client.userID),
		zap.String("conn", client.id),
		zap.Int("room_size", len(room)),
	)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, room := range h.rooms {
		for client := range room {
			close(client.send)
			h.metrics.Connections.Dec()
		}
		delete(h.rooms, userID)
		h.metrics.Rooms.Dec()
	}
}

// Register adds a connection to its user's room and waits until it is joined.
// It returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
	case <-h.done:
		return false
	}
	select {
	case <-client.joined:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a connection from its room. Unknown connections are ignored.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Notify queues event to every connection in userID's room. Connections whose
// buffer is full are dropped rather than blocking the publisher.
func (h *Hub) Notify(userID, event string, payload interface{}) {
	data, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}
	h.deliver(userID, event, data)
}

// deliver sends an encoded frame. Sends happen under the read lock so leave
// cannot close a channel mid-send.
func (h *Hub) deliver(userID, event string, data []byte) {
	var slow []*Client

	h.mu.RLock()
	room := h.rooms[userID]
	if len(room) == 0 {
		h.mu.RUnlock()
		h.metrics.EventsDropped.WithLabelValues("offline").Inc()
		h.logger.Debug("no live connection", zap.String("user", userID), zap.String("event", event))
		return
	}
	for client := range room {
		select {
		case client.send <- data:
			h.metrics.EventsDelivered.WithLabelValues(event).Inc()
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.metrics.EventsDropped.WithLabelValues("slow_client").Inc()
		h.logger.Warn("dropping slow client", zap.String("user", userID), zap.String("conn", client.id))
		h.Unregister(client)
	}
}

// Online reports whether userID has at least one live connection.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID]) > 0
}

// Connections returns the number of live connections in userID's room.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}
