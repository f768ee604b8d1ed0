// Package webhooktest builds broker webhook bodies for tests.
package webhooktest

import (
	"encoding/json"
	"fmt"
)

// Connected returns a complete client.connected body as a mutable map.
func Connected(clientID string) map[string]any {
	return map[string]any{
		"event":           "client.connected",
		"timestamp":       int64(1717000000000),
		"node":            "emqx@127.0.0.1",
		"clientid":        clientID,
		"username":        "device",
		"connected_at":    int64(1717000000000),
		"sockname":        "0.0.0.0:1883",
		"peername":        "192.168.1.20:50312",
		"proto_name":      "MQTT",
		"proto_ver":       5,
		"keepalive":       60,
		"clean_start":     true,
		"expiry_interval": 0,
		"mountpoint":      "undefined",
		"is_bridge":       false,
		"receive_maximum": 32,
		"conn_props":      map[string]any{},
		"client_attrs":    map[string]any{},
	}
}

// Disconnected returns a complete client.disconnected body.
func Disconnected(clientID, reason string) map[string]any {
	return map[string]any{
		"event":           "client.disconnected",
		"timestamp":       int64(1717000060000),
		"node":            "emqx@127.0.0.1",
		"clientid":        clientID,
		"username":        "device",
		"disconnected_at": int64(1717000060000),
		"sockname":        "0.0.0.0:1883",
		"peername":        "192.168.1.20:50312",
		"proto_name":      "MQTT",
		"proto_ver":       5,
		"reason":          reason,
		"disconn_props":   map[string]any{},
		"client_attrs":    map[string]any{},
	}
}

// Publish returns a message.publish body carrying payload.
func Publish(clientID, topic, payload string) map[string]any {
	return map[string]any{
		"event":     "message.publish",
		"timestamp": int64(1717000030000),
		"node":      "emqx@127.0.0.1",
		"clientid":  clientID,
		"username":  "device",
		"topic":     topic,
		"payload":   payload,
	}
}

// OTAPayload renders an OTA report as the JSON string carried in Publish.
func OTAPayload(id, stage string, progress int) string {
	return fmt.Sprintf(`{"id":%q,"status":%q,"progress":%d,"chip":"esp32s3","git_version":"v1.2.0","config_version":"3"}`, id, stage, progress)
}

// Encode marshals body, panicking on failure.
func Encode(body map[string]any) []byte {
	b, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return b
}
