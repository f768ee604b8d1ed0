// Package mqttsource feeds OTA reports to the controller straight from the
// MQTT broker, for deployments without a webhook rule.
package mqttsource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/Misakaka10086/IoT-Platform/common/logging"
	"github.com/Misakaka10086/IoT-Platform/common/middleware"
	"github.com/Misakaka10086/IoT-Platform/internal/config"
	"github.com/Misakaka10086/IoT-Platform/internal/models"
	"github.com/Misakaka10086/IoT-Platform/internal/service"
)

const (
	connectTimeout    = 10 * time.Second
	subscribeTimeout  = 5 * time.Second
	keepAlive         = 60 * time.Second
	disconnectQuiesce = 1000 // milliseconds
	maxQoS            = 2
)

var (
	ErrConnectionFailed = errors.New("mqtt connection failed")
	ErrSubscribeFailed  = errors.New("mqtt subscribe failed")
	ErrInvalidQoS       = errors.New("qos must be 0, 1 or 2")
)

// Processor handles one publish event.
type Processor interface {
	ProcessPublish(ctx context.Context, pub *models.PublishEvent) *service.Outcome
}

// Source subscribes to the OTA topic and hands every message to a Processor.
type Source struct {
	cfg    config.MQTTConfig
	proc   Processor
	logger *logging.Logger
	now    func() time.Time
	client pahomqtt.Client

	newClient      func(*pahomqtt.ClientOptions) pahomqtt.Client
	connectTimeout time.Duration
}

func New(cfg config.MQTTConfig, proc Processor, logger *logging.Logger) *Source {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Source{
		cfg:            cfg,
		proc:           proc,
		logger:         logger,
		now:            time.Now,
		newClient:      pahomqtt.NewClient,
		connectTimeout: connectTimeout,
	}
}

// Start connects and subscribes. The subscription is restored by the
// on-connect handler after every reconnect.
func (s *Source) Start() error {
	if s.cfg.QoS > maxQoS {
		return ErrInvalidQoS
	}

	s.client = s.newClient(s.options())

	// A failed Start is never followed by Stop, so the client's connect
	// and reconnect goroutines are shut down here.
	token := s.client.Connect()
	if !token.WaitTimeout(s.connectTimeout) {
		s.client.Disconnect(0)
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, s.connectTimeout)
	}
	if err := token.Error(); err != nil {
		s.client.Disconnect(0)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return nil
}

func (s *Source) options() *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)

	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, func(_ pahomqtt.Client, m pahomqtt.Message) {
			s.Handle(m.Topic(), m.Payload())
		})
		if !token.WaitTimeout(subscribeTimeout) {
			s.logger.Error("mqtt subscribe timed out", "topic", s.cfg.Topic)
			return
		}
		if err := token.Error(); err != nil {
			s.logger.Error("mqtt subscribe failed", "topic", s.cfg.Topic, logging.Error(fmt.Errorf("%w: %w", ErrSubscribeFailed, err)))
			return
		}
		s.logger.Info("subscribed to OTA topic", "broker", s.cfg.Broker, "topic", s.cfg.Topic)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.logger.Warn("mqtt connection lost", logging.Error(err))
	})
	return opts
}

// Handle wraps a received message into a publish event and processes it.
// Handler panics are recovered so one bad message cannot stop delivery.
func (s *Source) Handle(topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in mqtt message handler", "topic", topic, "panic", r)
		}
	}()

	pub := &models.PublishEvent{
		Envelope: models.Envelope{
			Event:     models.KindMessagePublish,
			Timestamp: s.now().UnixMilli(),
			Node:      s.cfg.Broker,
			ClientID:  clientFromTopic(topic),
		},
		Topic:   topic,
		Payload: string(payload),
	}
	ctx := middleware.WithRequestID(context.Background(), uuid.NewString())
	out := s.proc.ProcessPublish(ctx, pub)
	if len(out.Failed()) > 0 {
		s.logger.DebugContext(ctx, "mqtt OTA report not fully processed", "topic", topic, logging.DeviceID(out.DeviceID))
	}
}

// clientFromTopic returns the second level of topics shaped like
// device/<id>/ota, or "" for anything else.
func clientFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}

// Stop disconnects, letting in-flight handlers finish.
func (s *Source) Stop() {
	if s.client == nil {
		return
	}
	if s.client.IsConnected() {
		s.client.Disconnect(disconnectQuiesce)
	}
}
