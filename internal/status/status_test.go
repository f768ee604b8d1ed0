package status

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Misakaka10086/IoT-Platform/internal/models"
	"github.com/Misakaka10086/IoT-Platform/internal/normalizer"
	"github.com/Misakaka10086/IoT-Platform/internal/webhooktest"
)

var fixedNow = time.Date(2024, 5, 29, 16, 26, 40, 0, time.UTC)

func connectionEvent(t *testing.T, body map[string]any) models.ConnectionEvent {
	t.Helper()
	ev, err := normalizer.NormalizeConnection(webhooktest.Encode(body))
	require.NoError(t, err)
	return ev
}

func TestResolve_Connected(t *testing.T) {
	ev := connectionEvent(t, webhooktest.Connected("ESP32-ABC123"))

	res := Resolve(ev, "ABC123", fixedNow)

	assert.Equal(t, models.StatusOnline, res.Status)
	assert.Empty(t, res.Reason)
	assert.Equal(t, "ABC123", res.DeviceID)
	assert.Equal(t, map[string]any{
		"username":        "device",
		"sockname":        "0.0.0.0:1883",
		"peername":        "192.168.1.20:50312",
		"proto_name":      "MQTT",
		"proto_ver":       5,
		"node":            "emqx@127.0.0.1",
		"timestamp":       "2024-05-29T16:26:40Z",
		"keepalive":       60,
		"clean_start":     true,
		"expiry_interval": int64(0),
		"mountpoint":      "undefined",
		"is_bridge":       false,
		"receive_maximum": 32,
	}, res.Metadata)

	rec := res.Record()
	assert.True(t, rec.Online)
	assert.Equal(t, fixedNow, rec.LastSeen)
}

func TestResolve_Disconnected(t *testing.T) {
	ev := connectionEvent(t, webhooktest.Disconnected("ESP32-ABC123", "keepalive_timeout"))

	res := Resolve(ev, "ABC123", fixedNow)

	assert.Equal(t, models.StatusOffline, res.Status)
	assert.Equal(t, "keepalive_timeout", res.Reason)
	assert.NotContains(t, res.Metadata, "keepalive")
	assert.NotContains(t, res.Metadata, "mountpoint")
	assert.Equal(t, "emqx@127.0.0.1", res.Metadata["node"])
	assert.False(t, res.Record().Online)
}

func TestResolve_Deterministic(t *testing.T) {
	ev := connectionEvent(t, webhooktest.Connected("ESP32-ABC123"))

	a, err := json.Marshal(Resolve(ev, "ABC123", fixedNow).Metadata)
	require.NoError(t, err)
	b, err := json.Marshal(Resolve(ev, "ABC123", fixedNow).Metadata)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestResolution_Presence(t *testing.T) {
	ev := connectionEvent(t, webhooktest.Disconnected("ESP32-ABC123", "normal"))

	p := Resolve(ev, "ABC123", fixedNow).Presence()
	assert.Equal(t, "ABC123", p.DeviceID)
	assert.Equal(t, models.StatusOffline, p.Status)
	assert.Equal(t, "normal", p.Reason)
	assert.Equal(t, fixedNow, p.UpdatedAt)
}
