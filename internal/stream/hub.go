// Package stream pushes device notifications to WebSocket subscribers.
//
// Clients connect to the hub, subscribe to one or more notification channels
// and receive every notification published on them. The hub is fed either by
// a Relay reading the message broker or directly as a notify.Publisher when
// the broker is disabled.
package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Misakaka10086/IoT-Platform/common/logging"
	"github.com/Misakaka10086/IoT-Platform/common/messaging"
	"github.com/Misakaka10086/IoT-Platform/internal/config"
	"github.com/Misakaka10086/IoT-Platform/internal/metrics"
	"github.com/Misakaka10086/IoT-Platform/internal/models"
)

// Message types exchanged with clients.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeEvent       = "event"
	TypeSnapshot    = "snapshot"
	TypeResponse    = "response"
	TypeError       = "error"
)

const (
	defaultSendBuffer   = 64
	defaultPingInterval = 30 * time.Second
	maxMessageSize      = 4096
)

// Message is the frame sent to and received from clients.
type Message struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// SubscribePayload carries the channels of a subscribe or unsubscribe frame.
type SubscribePayload struct {
	Channels []string `json:"channels"`
}

// SnapshotFunc returns the presence sent to a client when it subscribes to
// the device-status channel.
type SnapshotFunc func(ctx context.Context) ([]models.Presence, error)

// Hub tracks connected clients and broadcasts notifications to them.
type Hub struct {
	sendBuffer   int
	pingInterval time.Duration
	logger       *logging.Logger
	snapshot     SnapshotFunc

	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub(cfg config.StreamConfig, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	h := &Hub{
		sendBuffer:   cfg.SendBuffer,
		pingInterval: cfg.PingInterval,
		logger:       logger,
		clients:      make(map[*client]struct{}),
	}
	if h.sendBuffer <= 0 {
		h.sendBuffer = defaultSendBuffer
	}
	if h.pingInterval <= 0 {
		h.pingInterval = defaultPingInterval
	}
	return h
}

// WithSnapshot installs the presence source for new device-status subscribers.
func (h *Hub) WithSnapshot(fn SnapshotFunc) *Hub {
	h.snapshot = fn
	return h
}

// Publish broadcasts msg. It never fails; slow clients drop messages instead.
func (h *Hub) Publish(_ context.Context, msg models.NotificationMessage) error {
	h.Broadcast(msg)
	return nil
}

// Broadcast sends msg to every client subscribed to msg.Channel.
func (h *Hub) Broadcast(msg models.NotificationMessage) {
	ts := msg.PublishedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	data, err := json.Marshal(Message{
		Type:      TypeEvent,
		Channel:   msg.Channel,
		EventType: msg.Event,
		Timestamp: ts.UTC().Format(time.RFC3339),
		Payload:   msg.Data,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast", logging.Error(err))
		return
	}

	// Snapshot under the hub lock so client locks are never held with it.
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if c.isSubscribed(msg.Channel) && c.trySend(data) {
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("broadcast sent", logging.Channel(msg.Channel), logging.Event(msg.Event), "recipients", sent)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.StreamClients.Inc()
	h.logger.Debug("stream client connected", "clients", n)
}

// unregister removes c. Only the caller that removed it closes c.send.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		close(c.send)
		metrics.StreamClients.Dec()
	}
	h.logger.Debug("stream client disconnected", "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
		metrics.StreamClients.Dec()
	}
}

func (h *Hub) sendSnapshot(ctx context.Context, c *client, id string) {
	if h.snapshot == nil {
		return
	}
	devices, err := h.snapshot(ctx)
	if err != nil {
		h.logger.Warn("presence snapshot failed", logging.Error(err))
		return
	}
	c.sendFrame(Message{
		Type:      TypeSnapshot,
		ID:        id,
		Channel:   messaging.ChannelDeviceStatus,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   devices,
	})
}
