package models

import "time"

// =============================================================================
// Device status
// =============================================================================

// Status is the connectivity state reported for a device.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// ParseStatus accepts "online" or "offline".
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusOnline, StatusOffline:
		return Status(s), true
	}
	return "", false
}

// Online reports whether s is StatusOnline.
func (s Status) Online() bool { return s == StatusOnline }

// StatusOf maps an online flag back to a Status.
func StatusOf(online bool) Status {
	if online {
		return StatusOnline
	}
	return StatusOffline
}

// DeviceStatusRecord is the write model for the devices table.
type DeviceStatusRecord struct {
	DeviceID string
	Online   bool
	LastSeen time.Time
}

// Device is a row of the devices table. Chip, Board, GitVersion and
// Description are provisioning data; status writes never touch them.
type Device struct {
	DeviceID    string    `json:"device_id" yaml:"device_id"`
	Chip        *string   `json:"chip" yaml:"chip"`
	Board       *string   `json:"board" yaml:"board"`
	GitVersion  *string   `json:"git_version" yaml:"git_version"`
	Online      bool      `json:"online" yaml:"online"`
	Status      Status    `json:"status" yaml:"status"`
	LastSeen    time.Time `json:"last_seen" yaml:"last_seen"`
	Description *string   `json:"description" yaml:"description"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// StatusSummary counts devices by state.
type StatusSummary struct {
	Total   int `json:"total" yaml:"total"`
	Online  int `json:"online" yaml:"online"`
	Offline int `json:"offline" yaml:"offline"`
}

// DeviceListResponse is returned by GET /api/devices/status without a device_id.
type DeviceListResponse struct {
	Success bool          `json:"success"`
	Devices []*Device     `json:"devices"`
	Summary StatusSummary `json:"summary"`
}

// DeviceResponse is returned for a single device lookup.
type DeviceResponse struct {
	Success bool    `json:"success"`
	Device  *Device `json:"device"`
}

// StatusOverrideRequest is the body of POST /api/devices/status.
type StatusOverrideRequest struct {
	DeviceID string         `json:"device_id"`
	Status   string         `json:"status"`
	Data     map[string]any `json:"data,omitempty"`
}

// Presence is the cached live view of a device, the payload of the
// latest status-update.
type Presence struct {
	DeviceID  string         `json:"device_id"`
	Status    Status         `json:"status"`
	Reason    string         `json:"reason,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}
