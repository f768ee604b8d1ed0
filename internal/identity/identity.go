// Package identity decides which broker clients are devices and derives
// their device identifiers.
package identity

import "strings"

const (
	// DevicePrefix marks a client id as belonging to a managed device.
	DevicePrefix = "ESP32-"

	// DiscardedReason is the disconnect reason the broker reports when a
	// session is taken over; such disconnects are not real state changes.
	DiscardedReason = "discarded"

	MessageNonDevice = "Non-IoT device ignored"
	MessageDiscarded = "Discarded event ignored"
)

// Result is the outcome of Filter. When Applicable is false, Message says why.
type Result struct {
	Applicable bool
	DeviceID   string
	Message    string
}

// Filter checks the prefix first, then the disconnect reason. A bare prefix
// names no device.
// reason is empty for connect events.
func Filter(clientID, reason string) Result {
	deviceID, ok := strings.CutPrefix(clientID, DevicePrefix)
	if !ok || deviceID == "" {
		return Result{Message: MessageNonDevice}
	}
	if reason == DiscardedReason {
		return Result{Message: MessageDiscarded}
	}
	return Result{Applicable: true, DeviceID: deviceID}
}
