package stream

import (
	"context"

	"github.com/Misakaka10086/IoT-Platform/common/logging"
	"github.com/Misakaka10086/IoT-Platform/common/messaging"
	"github.com/Misakaka10086/IoT-Platform/internal/notify"
)

// Relay forwards notifications from the broker to the hub.
type Relay struct {
	sub    messaging.Subscriber
	hub    *Hub
	logger *logging.Logger
	subs   messaging.Subscription
}

func NewRelay(sub messaging.Subscriber, hub *Hub, logger *logging.Logger) *Relay {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Relay{sub: sub, hub: hub, logger: logger}
}

// Start subscribes to every notification subject.
func (r *Relay) Start() error {
	s, err := r.sub.Subscribe(messaging.SubjectAll, r.handle)
	if err != nil {
		return err
	}
	r.subs = s
	r.logger.Info("relaying notifications to stream", "subject", messaging.SubjectAll)
	return nil
}

func (r *Relay) Stop() error {
	if r.subs == nil {
		return nil
	}
	return r.subs.Unsubscribe()
}

func (r *Relay) handle(_ context.Context, m *messaging.Message) error {
	msg, err := notify.DecodeMessage(m)
	if err != nil {
		return err
	}
	r.hub.Broadcast(msg)
	return nil
}
