// Package models provides data models for devicehub.
package models

// =============================================================================
// Broker webhook events
// =============================================================================

// EventKind is the value of the `event` discriminator.
type EventKind string

const (
	KindClientConnected    EventKind = "client.connected"
	KindClientDisconnected EventKind = "client.disconnected"
	KindMessagePublish     EventKind = "message.publish"
)

// Event is a normalized webhook event. The concrete type is one of
// *ClientConnected, *ClientDisconnected or *PublishEvent.
type Event interface {
	Kind() EventKind
	Base() *Envelope
}

// ConnectionEvent is implemented by *ClientConnected and *ClientDisconnected.
type ConnectionEvent interface {
	Event
	Conn() *Connection
	// DisconnectReason is empty for connect events.
	DisconnectReason() string
}

// Envelope holds the fields every webhook event carries.
type Envelope struct {
	Event     EventKind      `json:"event"`
	Timestamp int64          `json:"timestamp"` // epoch millis, set by the broker node
	Node      string         `json:"node"`
	ClientID  string         `json:"clientid"`
	Username  string         `json:"username"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (e *Envelope) Base() *Envelope { return e }

// Connection holds the transport fields shared by connect and disconnect events.
type Connection struct {
	Sockname    string         `json:"sockname"`
	Peername    string         `json:"peername"`
	ProtoName   string         `json:"proto_name"`
	ProtoVer    int            `json:"proto_ver"`
	ClientAttrs map[string]any `json:"client_attrs"`
}

func (c *Connection) Conn() *Connection { return c }

// ClientConnected is emitted when a client completes the MQTT handshake.
type ClientConnected struct {
	Envelope
	Connection
	ConnectedAt    int64          `json:"connected_at"`
	Keepalive      int            `json:"keepalive"`
	CleanStart     bool           `json:"clean_start"`
	ExpiryInterval int64          `json:"expiry_interval"`
	Mountpoint     string         `json:"mountpoint"`
	IsBridge       bool           `json:"is_bridge"`
	ReceiveMaximum int            `json:"receive_maximum"`
	ConnProps      map[string]any `json:"conn_props"`
}

func (*ClientConnected) Kind() EventKind           { return KindClientConnected }
func (*ClientConnected) DisconnectReason() string { return "" }

// ClientDisconnected is emitted when a client session closes.
type ClientDisconnected struct {
	Envelope
	Connection
	DisconnectedAt int64          `json:"disconnected_at"`
	Reason         string         `json:"reason"`
	DisconnProps   map[string]any `json:"disconn_props"`
}

func (*ClientDisconnected) Kind() EventKind            { return KindClientDisconnected }
func (e *ClientDisconnected) DisconnectReason() string { return e.Reason }

// PublishEvent is emitted for an application message. Payload is the raw
// message body as a string, JSON for OTA reports.
type PublishEvent struct {
	Envelope
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

func (*PublishEvent) Kind() EventKind { return KindMessagePublish }

// WebhookResponse is the acknowledgement returned to the broker.
type WebhookResponse struct {
	Success  bool   `json:"success"`
	DeviceID string `json:"device_id,omitempty"`
	Status   string `json:"status,omitempty"`
	Message  string `json:"message,omitempty"`
}
