package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Misakaka10086/IoT-Platform/common/messaging"
	"github.com/Misakaka10086/IoT-Platform/internal/models"
)

// BrokerPublisher sends notifications to the message broker, one subject per
// channel. The JSON envelope is the message body and the event name is also
// set as the Event header.
type BrokerPublisher struct {
	pub messaging.Publisher
}

func NewBrokerPublisher(pub messaging.Publisher) *BrokerPublisher {
	return &BrokerPublisher{pub: pub}
}

func (b *BrokerPublisher) Publish(ctx context.Context, msg models.NotificationMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return b.pub.PublishMsg(ctx, &messaging.Message{
		Subject:   messaging.ChannelSubject(msg.Channel),
		Data:      data,
		Metadata:  map[string]string{messaging.HeaderEvent: msg.Event},
		Timestamp: msg.PublishedAt,
	})
}

// DecodeMessage reverses BrokerPublisher.Publish.
func DecodeMessage(m *messaging.Message) (models.NotificationMessage, error) {
	var msg models.NotificationMessage
	if err := json.Unmarshal(m.Data, &msg); err != nil {
		return models.NotificationMessage{}, fmt.Errorf("decode notification: %w", err)
	}
	if msg.Channel == "" {
		if channel, ok := messaging.ChannelFromSubject(m.Subject); ok {
			msg.Channel = channel
		}
	}
	if msg.Event == "" {
		msg.Event = m.Metadata[messaging.HeaderEvent]
	}
	return msg, nil
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, msg models.NotificationMessage) error

func (f PublisherFunc) Publish(ctx context.Context, msg models.NotificationMessage) error {
	return f(ctx, msg)
}
