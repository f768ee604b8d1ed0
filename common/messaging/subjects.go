package messaging

import "strings"

// Notification channels.
const (
	ChannelDeviceStatus    = "device-status"
	ChannelDeviceEvents    = "device-events"
	ChannelDeviceOTAStatus = "device-ota-status"
	ChannelDeviceOTAEvents = "device-ota-events"
)

// Notification event names, grouped by channel.
const (
	EventStatusUpdate       = "status-update"       // device-status
	EventDeviceConnected    = "device-connected"    // device-events
	EventDeviceDisconnected = "device-disconnected" // device-events
	EventProgressUpdate     = "progress-update"     // device-ota-status
	EventOTASuccess         = "ota-success"         // device-ota-events
	EventOTAError           = "ota-error"           // device-ota-events
)

const (
	// SubjectPrefix namespaces every channel on the broker.
	SubjectPrefix = "devicehub"

	// SubjectAll matches every channel subject.
	SubjectAll = SubjectPrefix + ".>"

	// HeaderEvent carries the event name alongside the envelope.
	HeaderEvent = "Event"
)

// Channels lists every known channel.
func Channels() []string {
	return []string{ChannelDeviceStatus, ChannelDeviceEvents, ChannelDeviceOTAStatus, ChannelDeviceOTAEvents}
}

// ChannelSubject returns the broker subject for a channel.
// Example: devicehub.device-status
func ChannelSubject(channel string) string {
	return SubjectPrefix + "." + channel
}

// ChannelFromSubject reverses ChannelSubject.
func ChannelFromSubject(subject string) (string, bool) {
	channel, ok := strings.CutPrefix(subject, SubjectPrefix+".")
	if !ok || channel == "" {
		return "", false
	}
	return channel, true
}
