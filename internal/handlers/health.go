package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Misakaka10086/IoT-Platform/common/httputil"
	"github.com/Misakaka10086/IoT-Platform/common/messaging"
)

const readyTimeout = 2 * time.Second

// Root answers GET /.
func (h *Handler) Root(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "devicehub service is running"})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// Ready pings the database and reports broker connectivity. Only the
// database gates readiness; notifications are best-effort.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := map[string]string{}
	status := http.StatusOK

	if err := h.devices.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.messaging != nil {
		if hs := messaging.CheckClientHealth(ctx, h.messaging); hs.Connected && hs.Error == "" {
			checks["messaging"] = "ok"
		} else {
			checks["messaging"] = hs.Error
		}
	} else {
		checks["messaging"] = "disabled"
	}

	ready := "ready"
	if status != http.StatusOK {
		ready = "not ready"
	}
	httputil.WriteJSON(w, status, map[string]any{
		"status": ready,
		"checks": checks,
	})
}
