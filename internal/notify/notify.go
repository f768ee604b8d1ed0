// Package notify publishes device notifications onto named channels.
//
// Delivery is fire-and-forget: nothing waits for subscribers and failed
// publishes are not retried. Each call is independent, so a failure on one
// channel never prevents a publish on another.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/Misakaka10086/IoT-Platform/common/messaging"
	"github.com/Misakaka10086/IoT-Platform/internal/models"
)

// Publisher delivers a single notification to one transport.
type Publisher interface {
	Publish(ctx context.Context, msg models.NotificationMessage) error
}

// NotificationError reports a failed publish on one channel.
type NotificationError struct {
	Channel string
	Event   string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s/%s: %v", e.Channel, e.Event, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// Fanout builds notification payloads and hands them to a Publisher.
type Fanout struct {
	pub Publisher
	now func() time.Time
}

// New returns a Fanout publishing through pub.
func New(pub Publisher) *Fanout {
	return &Fanout{pub: pub, now: time.Now}
}

// Publish sends one notification. Errors are *NotificationError.
func (f *Fanout) Publish(ctx context.Context, channel, event string, data map[string]any) error {
	msg := models.NotificationMessage{
		Channel:     channel,
		Event:       event,
		Data:        data,
		PublishedAt: f.now().UTC(),
	}
	if err := f.pub.Publish(ctx, msg); err != nil {
		return &NotificationError{Channel: channel, Event: event, Err: err}
	}
	return nil
}

// StatusUpdate publishes status-update on device-status.
func (f *Fanout) StatusUpdate(ctx context.Context, deviceID string, status models.Status, timestamp string, data map[string]any) error {
	return f.Publish(ctx, messaging.ChannelDeviceStatus, messaging.EventStatusUpdate, map[string]any{
		"device_id": deviceID,
		"status":    string(status),
		"timestamp": timestamp,
		"data":      data,
	})
}

// DeviceConnected publishes device-connected on device-events.
func (f *Fanout) DeviceConnected(ctx context.Context, deviceID, timestamp string, data map[string]any) error {
	return f.Publish(ctx, messaging.ChannelDeviceEvents, messaging.EventDeviceConnected, map[string]any{
		"device_id":  deviceID,
		"event_type": "connected",
		"timestamp":  timestamp,
		"data":       data,
	})
}

// DeviceDisconnected publishes device-disconnected on device-events.
func (f *Fanout) DeviceDisconnected(ctx context.Context, deviceID, reason, timestamp string, data map[string]any) error {
	return f.Publish(ctx, messaging.ChannelDeviceEvents, messaging.EventDeviceDisconnected, map[string]any{
		"device_id":  deviceID,
		"event_type": "disconnected",
		"reason":     reason,
		"timestamp":  timestamp,
		"data":       data,
	})
}

// OTAProgress publishes progress-update on device-ota-status.
// progress is already formatted, e.g. "42%".
func (f *Fanout) OTAProgress(ctx context.Context, deviceID, progress string) error {
	return f.Publish(ctx, messaging.ChannelDeviceOTAStatus, messaging.EventProgressUpdate, map[string]any{
		"device_id": deviceID,
		"status":    progress,
		"timestamp": f.timestamp(),
	})
}

// OTASuccess publishes ota-success on device-ota-events.
func (f *Fanout) OTASuccess(ctx context.Context, deviceID string) error {
	return f.Publish(ctx, messaging.ChannelDeviceOTAEvents, messaging.EventOTASuccess, map[string]any{
		"device_id": deviceID,
		"status":    "success",
		"timestamp": f.timestamp(),
	})
}

// OTAError publishes ota-error on device-ota-events. An empty reason is omitted.
func (f *Fanout) OTAError(ctx context.Context, deviceID, reason string) error {
	data := map[string]any{
		"device_id": deviceID,
		"status":    "error",
		"timestamp": f.timestamp(),
	}
	if reason != "" {
		data["error_reason"] = reason
	}
	return f.Publish(ctx, messaging.ChannelDeviceOTAEvents, messaging.EventOTAError, data)
}

func (f *Fanout) timestamp() string {
	return f.now().UTC().Format(time.RFC3339)
}
