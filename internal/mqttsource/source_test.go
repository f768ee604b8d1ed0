package mqttsource

import (
	"context"
	"errors"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Misakaka10086/IoT-Platform/common/messaging"
	"github.com/Misakaka10086/IoT-Platform/internal/config"
	"github.com/Misakaka10086/IoT-Platform/internal/models"
	"github.com/Misakaka10086/IoT-Platform/internal/notify"
	"github.com/Misakaka10086/IoT-Platform/internal/service"
	"github.com/Misakaka10086/IoT-Platform/internal/webhooktest"
)

type recordingProcessor struct {
	events []*models.PublishEvent
	panic  bool
}

func (p *recordingProcessor) ProcessPublish(_ context.Context, pub *models.PublishEvent) *service.Outcome {
	if p.panic {
		panic("boom")
	}
	p.events = append(p.events, pub)
	return &service.Outcome{Kind: pub.Kind()}
}

var testConfig = config.MQTTConfig{
	Broker:   "tcp://broker:1883",
	ClientID: "devicehub-test",
	Topic:    "device/+/ota",
	QoS:      1,
}

func TestHandle_WrapsMessage(t *testing.T) {
	proc := &recordingProcessor{}
	src := New(testConfig, proc, nil)
	src.now = func() time.Time { return time.UnixMilli(1717000000000) }

	payload := webhooktest.OTAPayload("ABC123", string(models.OTAStageProgress), 40)
	src.Handle("device/ESP32-ABC123/ota", []byte(payload))

	require.Len(t, proc.events, 1)
	pub := proc.events[0]
	assert.Equal(t, models.KindMessagePublish, pub.Kind())
	assert.Equal(t, "device/ESP32-ABC123/ota", pub.Topic)
	assert.Equal(t, payload, pub.Payload)
	assert.Equal(t, "ESP32-ABC123", pub.ClientID)
	assert.Equal(t, "tcp://broker:1883", pub.Node)
	assert.Equal(t, int64(1717000000000), pub.Timestamp)
}

func TestHandle_RecoversPanics(t *testing.T) {
	src := New(testConfig, &recordingProcessor{panic: true}, nil)
	assert.NotPanics(t, func() { src.Handle("device/x/ota", []byte(`{}`)) })
}

func TestHandle_ThroughController(t *testing.T) {
	var published []models.NotificationMessage
	fanout := notify.New(notify.PublisherFunc(func(_ context.Context, msg models.NotificationMessage) error {
		published = append(published, msg)
		return nil
	}))
	ctrl := service.NewController(nil, fanout)

	src := New(testConfig, ctrl, nil)
	src.Handle("device/ESP32-ABC123/ota", []byte(webhooktest.OTAPayload("ABC123", string(models.OTAStageSuccess), 100)))

	require.Len(t, published, 1)
	assert.Equal(t, messaging.ChannelDeviceOTAEvents, published[0].Channel)
	assert.Equal(t, messaging.EventOTASuccess, published[0].Event)
	assert.Equal(t, "ABC123", published[0].Data["device_id"])
}

func TestClientFromTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"device/ESP32-1/ota", "ESP32-1"},
		{"device/ESP32-1/ota/extra", "ESP32-1"},
		{"ota", ""},
		{"device/ota", ""},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, clientFromTopic(tt.topic))
		})
	}
}

func TestOptions(t *testing.T) {
	cfg := testConfig
	cfg.Username = "svc"
	cfg.Password = "pw"
	opts := New(cfg, &recordingProcessor{}, nil).options()

	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "broker:1883", opts.Servers[0].Host)
	assert.Equal(t, "devicehub-test", opts.ClientID)
	assert.Equal(t, "svc", opts.Username)
	assert.True(t, opts.AutoReconnect)
	assert.True(t, opts.CleanSession)
}

func TestStart_RejectsInvalidQoS(t *testing.T) {
	cfg := testConfig
	cfg.QoS = 3
	assert.ErrorIs(t, New(cfg, &recordingProcessor{}, nil).Start(), ErrInvalidQoS)
}

// connectToken completes when done is closed, reporting err.
type connectToken struct {
	done chan struct{}
	err  error
}

func (t *connectToken) Wait() bool { <-t.done; return true }

func (t *connectToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *connectToken) Done() <-chan struct{} { return t.done }
func (t *connectToken) Error() error          { return t.err }

// stubClient implements only what Start and Stop call.
type stubClient struct {
	pahomqtt.Client
	token       *connectToken
	connected   bool
	disconnects []uint
}

func (c *stubClient) Connect() pahomqtt.Token { return c.token }
func (c *stubClient) IsConnected() bool       { return c.connected }
func (c *stubClient) Disconnect(quiesce uint) { c.disconnects = append(c.disconnects, quiesce) }

func newStubbedSource(client *stubClient) *Source {
	src := New(testConfig, &recordingProcessor{}, nil)
	src.newClient = func(*pahomqtt.ClientOptions) pahomqtt.Client { return client }
	src.connectTimeout = 20 * time.Millisecond
	return src
}

func TestStart_TimeoutDisconnects(t *testing.T) {
	client := &stubClient{token: &connectToken{done: make(chan struct{})}}

	err := newStubbedSource(client).Start()
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.Equal(t, []uint{0}, client.disconnects)
}

func TestStart_ConnectErrorDisconnects(t *testing.T) {
	done := make(chan struct{})
	close(done)
	client := &stubClient{token: &connectToken{done: done, err: errors.New("connection refused")}}

	err := newStubbedSource(client).Start()
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, []uint{0}, client.disconnects)
}

func TestStartAndStop(t *testing.T) {
	done := make(chan struct{})
	close(done)
	client := &stubClient{token: &connectToken{done: done}, connected: true}
	src := newStubbedSource(client)

	require.NoError(t, src.Start())
	assert.Empty(t, client.disconnects)

	src.Stop()
	assert.Equal(t, []uint{disconnectQuiesce}, client.disconnects)
}
