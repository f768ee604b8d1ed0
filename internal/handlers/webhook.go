package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Misakaka10086/IoT-Platform/common/httputil"
	"github.com/Misakaka10086/IoT-Platform/common/logging"
	"github.com/Misakaka10086/IoT-Platform/internal/normalizer"
	"github.com/Misakaka10086/IoT-Platform/internal/service"
)

// ConnectionEvent handles client.connected and client.disconnected webhooks.
func (h *Handler) ConnectionEvent(w http.ResponseWriter, r *http.Request) {
	h.webhook(w, r, h.ingest.HandleConnection)
}

// OTAEvent handles message.publish webhooks carrying OTA reports.
func (h *Handler) OTAEvent(w http.ResponseWriter, r *http.Request) {
	h.webhook(w, r, h.ingest.HandleOTA)
}

// webhook acknowledges every body that normalizes, whatever the later
// stages report, so the broker never retries.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request, process func(context.Context, []byte) (*service.Outcome, error)) {
	body, err := httputil.ReadBody(r, h.maxBodyBytes)
	if err != nil {
		httputil.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	out, err := process(r.Context(), body)
	if err != nil {
		if errors.Is(err, normalizer.ErrInvalidEvent) {
			httputil.WriteError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "webhook processing failed", logging.Path(r.URL.Path), logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, out.Response())
}
