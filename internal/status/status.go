// Package status maps connection events to device status updates.
package status

import (
	"time"

	"github.com/Misakaka10086/IoT-Platform/internal/models"
)

// Resolution is the status derived from one connection event.
type Resolution struct {
	DeviceID string
	Status   models.Status
	Reason   string // disconnect reason, empty when online
	Metadata map[string]any
	At       time.Time
}

// Record converts r into the row written to the store.
func (r Resolution) Record() models.DeviceStatusRecord {
	return models.DeviceStatusRecord{
		DeviceID: r.DeviceID,
		Online:   r.Status.Online(),
		LastSeen: r.At,
	}
}

// Presence converts r into the cached live view.
func (r Resolution) Presence() models.Presence {
	return models.Presence{
		DeviceID:  r.DeviceID,
		Status:    r.Status,
		Reason:    r.Reason,
		Metadata:  r.Metadata,
		UpdatedAt: r.At,
	}
}

// Resolve is pure: the same inputs always produce the same Resolution.
// now is recorded as the metadata timestamp and as last_seen.
func Resolve(ev models.ConnectionEvent, deviceID string, now time.Time) Resolution {
	base := ev.Base()
	conn := ev.Conn()

	metadata := map[string]any{
		"username":   base.Username,
		"sockname":   conn.Sockname,
		"peername":   conn.Peername,
		"proto_name": conn.ProtoName,
		"proto_ver":  conn.ProtoVer,
		"node":       base.Node,
		"timestamp":  now.UTC().Format(time.RFC3339),
	}

	res := Resolution{
		DeviceID: deviceID,
		Metadata: metadata,
		At:       now,
	}

	switch e := ev.(type) {
	case *models.ClientConnected:
		res.Status = models.StatusOnline
		metadata["keepalive"] = e.Keepalive
		metadata["clean_start"] = e.CleanStart
		metadata["expiry_interval"] = e.ExpiryInterval
		metadata["mountpoint"] = e.Mountpoint
		metadata["is_bridge"] = e.IsBridge
		metadata["receive_maximum"] = e.ReceiveMaximum
	case *models.ClientDisconnected:
		res.Status = models.StatusOffline
		res.Reason = e.Reason
	}

	return res
}
