// Package messaging provides the broker abstraction used for notification
// fanout. Producers depend on Publisher and the live stream relay depends on
// Subscriber, so neither is coupled to a concrete broker.
package messaging

import (
	"context"
	"time"
)

// Message is a message received from or sent to the broker.
type Message struct {
	// Subject the message was published to.
	Subject string

	// Data is the raw payload, a JSON envelope for devicehub notifications.
	Data []byte

	// Metadata carries broker headers such as HeaderEvent.
	Metadata map[string]string

	// Timestamp is when the message was received or built.
	Timestamp time.Time
}

// MessageHandler processes a received message.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription is an active subscription to a subject.
type Subscription interface {
	Unsubscribe() error
	Subject() string
	IsValid() bool
}

// Publisher publishes messages. Delivery is fire-and-forget.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	PublishMsg(ctx context.Context, msg *Message) error
	Close() error
}

// Subscriber receives messages; every subscriber sees every message.
type Subscriber interface {
	Subscribe(subject string, handler MessageHandler) (Subscription, error)
	Close() error
}

// Client combines Publisher and Subscriber with connection management.
type Client interface {
	Publisher
	Subscriber

	// Flush round-trips to the server, bounded by ctx.
	Flush(ctx context.Context) error

	// Drain lets in-flight messages complete before closing.
	Drain() error

	IsConnected() bool
}
