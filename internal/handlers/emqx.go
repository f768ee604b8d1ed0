package handlers

import (
	"errors"
	"net/http"

	"github.com/Misakaka10086/IoT-Platform/common/httputil"
	"github.com/Misakaka10086/IoT-Platform/common/logging"
	"github.com/Misakaka10086/IoT-Platform/internal/emqx"
)

// BrokerProxy forwards GET /api/emqx?host=&path= to the management API.
func (h *Handler) BrokerProxy(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	if host == "" {
		httputil.WriteError(w, http.StatusBadRequest, "host query parameter is required")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		path = emqx.DefaultPath
	}

	if h.broker == nil {
		httputil.WriteError(w, http.StatusInternalServerError, emqx.ErrNotConfigured.Error())
		return
	}

	body, err := h.broker.Get(r.Context(), host, path)
	if err != nil {
		if !errors.Is(err, emqx.ErrNotConfigured) {
			h.logger.WarnContext(r.Context(), "broker API request failed", "host", host, logging.Path(path), logging.Error(err))
		}
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteRaw(w, http.StatusOK, body)
}
