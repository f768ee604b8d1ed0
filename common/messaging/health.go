package messaging

import (
	"context"
	"time"
)

// HealthStatus is the broker section of the readiness report.
type HealthStatus struct {
	Connected bool          `json:"connected"`
	Latency   time.Duration `json:"latency_ms"`
	Error     string        `json:"error,omitempty"`
}

// CheckClientHealth reports connectivity and measures a flush round-trip.
// A nil client reports as not connected.
func CheckClientHealth(ctx context.Context, client Client) HealthStatus {
	var status HealthStatus

	if client == nil {
		status.Error = "messaging disabled"
		return status
	}

	status.Connected = client.IsConnected()
	if !status.Connected {
		status.Error = "not connected to message broker"
		return status
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := client.Flush(ctx)
	status.Latency = time.Since(start) / time.Millisecond
	if err != nil {
		status.Error = "flush: " + err.Error()
	}
	return status
}
