package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Misakaka10086/IoT-Platform/common/messaging"
	"github.com/Misakaka10086/IoT-Platform/internal/config"
	"github.com/Misakaka10086/IoT-Platform/internal/models"
	"github.com/Misakaka10086/IoT-Platform/internal/notify"
)

func newTestHub() *Hub {
	return NewHub(config.StreamConfig{SendBuffer: 8, PingInterval: time.Second}, nil)
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func subscribe(t *testing.T, conn *websocket.Conn, channels ...string) map[string]any {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":    TypeSubscribe,
		"id":      "sub-1",
		"payload": map[string]any{"channels": channels},
	}))
	return readFrame(t, conn)
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ClientCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastToSubscribers(t *testing.T) {
	hub := newTestHub()
	srv := httptest.NewServer(Handler(hub, nil))
	defer srv.Close()

	conn := dial(t, srv, "")
	waitForClients(t, hub, 1)

	resp := subscribe(t, conn, messaging.ChannelDeviceEvents)
	assert.Equal(t, TypeResponse, resp["type"])
	assert.Equal(t, "sub-1", resp["id"])

	// Not subscribed to device-status: this one must not arrive.
	hub.Broadcast(models.NotificationMessage{
		Channel: messaging.ChannelDeviceStatus,
		Event:   messaging.EventStatusUpdate,
		Data:    map[string]any{"device_id": "skip"},
	})
	require.NoError(t, hub.Publish(context.Background(), models.NotificationMessage{
		Channel:     messaging.ChannelDeviceEvents,
		Event:       messaging.EventDeviceConnected,
		Data:        map[string]any{"device_id": "ABC123", "event_type": "connected"},
		PublishedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}))

	frame := readFrame(t, conn)
	assert.Equal(t, TypeEvent, frame["type"])
	assert.Equal(t, messaging.ChannelDeviceEvents, frame["channel"])
	assert.Equal(t, messaging.EventDeviceConnected, frame["event_type"])
	assert.Equal(t, "2025-01-01T00:00:00Z", frame["timestamp"])
	payload := frame["payload"].(map[string]any)
	assert.Equal(t, "ABC123", payload["device_id"])
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := newTestHub()
	srv := httptest.NewServer(Handler(hub, nil))
	defer srv.Close()

	conn := dial(t, srv, "")
	subscribe(t, conn, messaging.ChannelDeviceOTAStatus, messaging.ChannelDeviceOTAEvents)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":    TypeUnsubscribe,
		"id":      "unsub-1",
		"payload": map[string]any{"channels": []string{messaging.ChannelDeviceOTAStatus}},
	}))
	resp := readFrame(t, conn)
	assert.Equal(t, TypeResponse, resp["type"])
	assert.Equal(t, "unsub-1", resp["id"])

	hub.Broadcast(models.NotificationMessage{Channel: messaging.ChannelDeviceOTAStatus, Event: messaging.EventProgressUpdate})
	hub.Broadcast(models.NotificationMessage{Channel: messaging.ChannelDeviceOTAEvents, Event: messaging.EventOTASuccess})

	frame := readFrame(t, conn)
	assert.Equal(t, messaging.EventOTASuccess, frame["event_type"])
}

func TestHub_ClientErrors(t *testing.T) {
	hub := newTestHub()
	srv := httptest.NewServer(Handler(hub, nil))
	defer srv.Close()

	conn := dial(t, srv, "")

	tests := []struct {
		name string
		send string
		want string
	}{
		{name: "invalid json", send: `{nope`, want: "invalid JSON message"},
		{name: "unknown type", send: `{"type":"shout","id":"x"}`, want: "unknown message type: shout"},
		{name: "missing channels", send: `{"type":"subscribe","id":"x"}`, want: "payload must list channels"},
		{name: "unknown channel", send: `{"type":"subscribe","id":"x","payload":{"channels":["weather"]}}`, want: "unknown channel: weather"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.send)))
			frame := readFrame(t, conn)
			assert.Equal(t, TypeError, frame["type"])
			assert.Equal(t, tt.want, frame["payload"].(map[string]any)["message"])
		})
	}
}

func TestHub_Ping(t *testing.T) {
	hub := newTestHub()
	srv := httptest.NewServer(Handler(hub, nil))
	defer srv.Close()

	conn := dial(t, srv, "")
	require.NoError(t, conn.WriteJSON(map[string]any{"type": TypePing, "id": "p1"}))

	frame := readFrame(t, conn)
	assert.Equal(t, TypePong, frame["type"])
	assert.Equal(t, "p1", frame["id"])
}

func TestHub_SnapshotOnStatusSubscribe(t *testing.T) {
	hub := newTestHub().WithSnapshot(func(context.Context) ([]models.Presence, error) {
		return []models.Presence{{DeviceID: "ABC123", Status: models.StatusOnline}}, nil
	})
	srv := httptest.NewServer(Handler(hub, nil))
	defer srv.Close()

	conn := dial(t, srv, "")
	resp := subscribe(t, conn, messaging.ChannelDeviceStatus)
	assert.Equal(t, TypeResponse, resp["type"])

	frame := readFrame(t, conn)
	assert.Equal(t, TypeSnapshot, frame["type"])
	devices := frame["payload"].([]any)
	require.Len(t, devices, 1)
	assert.Equal(t, "ABC123", devices[0].(map[string]any)["device_id"])
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub := newTestHub()
	srv := httptest.NewServer(Handler(hub, nil))
	defer srv.Close()

	conn := dial(t, srv, "")
	waitForClients(t, hub, 1)

	hub.Close()
	assert.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHandler_RequiresToken(t *testing.T) {
	hub := newTestHub()
	v := NewVerifier("s3cret")
	srv := httptest.NewServer(Handler(hub, v))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := v.Issue("dashboard", time.Minute)
	require.NoError(t, err)
	dial(t, srv, "?token="+token)
	waitForClients(t, hub, 1)
}

func TestVerifier(t *testing.T) {
	v := NewVerifier("s3cret")

	token, err := v.Issue("dashboard", time.Minute)
	require.NoError(t, err)
	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "dashboard", claims.Subject)

	expired, err := v.Issue("dashboard", -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewVerifier("different").Issue("dashboard", time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)

	assert.Nil(t, NewVerifier(""))
}

type fakeSubscriber struct {
	subject string
	handler messaging.MessageHandler
	err     error
}

type fakeSubscription struct{ unsubscribed bool }

func (s *fakeSubscription) Unsubscribe() error { s.unsubscribed = true; return nil }
func (s *fakeSubscription) Subject() string    { return messaging.SubjectAll }
func (s *fakeSubscription) IsValid() bool      { return !s.unsubscribed }

func (f *fakeSubscriber) Subscribe(subject string, handler messaging.MessageHandler) (messaging.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.subject = subject
	f.handler = handler
	return &fakeSubscription{}, nil
}

func (f *fakeSubscriber) Close() error { return nil }

func TestRelay(t *testing.T) {
	hub := newTestHub()
	srv := httptest.NewServer(Handler(hub, nil))
	defer srv.Close()
	conn := dial(t, srv, "")
	subscribe(t, conn, messaging.ChannelDeviceOTAEvents)

	sub := &fakeSubscriber{}
	relay := NewRelay(sub, hub, nil)
	require.NoError(t, relay.Start())
	assert.Equal(t, messaging.SubjectAll, sub.subject)

	var captured *messaging.Message
	pub := notify.NewBrokerPublisher(publishFunc(func(m *messaging.Message) { captured = m }))
	require.NoError(t, pub.Publish(context.Background(), models.NotificationMessage{
		Channel: messaging.ChannelDeviceOTAEvents,
		Event:   messaging.EventOTAError,
		Data:    map[string]any{"device_id": "ABC123", "status": "error"},
	}))
	require.NotNil(t, captured)
	require.NoError(t, sub.handler(context.Background(), captured))

	frame := readFrame(t, conn)
	assert.Equal(t, messaging.EventOTAError, frame["event_type"])

	assert.Error(t, sub.handler(context.Background(), &messaging.Message{Data: []byte("garbage")}))
	require.NoError(t, relay.Stop())
}

func TestRelay_SubscribeError(t *testing.T) {
	relay := NewRelay(&fakeSubscriber{err: errors.New("not connected")}, newTestHub(), nil)
	assert.Error(t, relay.Start())
	assert.NoError(t, relay.Stop())
}

// publishFunc captures messages handed to a messaging.Publisher.
type publishFunc func(m *messaging.Message)

func (f publishFunc) Publish(_ context.Context, subject string, data []byte) error {
	f(&messaging.Message{Subject: subject, Data: data})
	return nil
}

func (f publishFunc) PublishMsg(_ context.Context, m *messaging.Message) error {
	f(m)
	return nil
}

func (f publishFunc) Close() error { return nil }
