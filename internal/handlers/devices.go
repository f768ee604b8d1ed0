package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Misakaka10086/IoT-Platform/common/httputil"
	"github.com/Misakaka10086/IoT-Platform/common/logging"
	"github.com/Misakaka10086/IoT-Platform/internal/models"
	"github.com/Misakaka10086/IoT-Platform/internal/repository"
	"github.com/Misakaka10086/IoT-Platform/internal/service"
)

const maxListLimit = 1000

// GetDeviceStatus returns one device when device_id is given, otherwise the
// device list with an online/offline summary. The list is unbounded unless
// limit or page is set.
func (h *Handler) GetDeviceStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if id := q.Get("device_id"); id != "" {
		device, err := h.devices.GetDevice(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "Device not found")
			return
		}
		if err != nil {
			h.logger.ErrorContext(ctx, "get device failed", logging.DeviceID(id), logging.Error(err))
			httputil.WriteError(w, http.StatusInternalServerError, "failed to load device")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, models.DeviceResponse{Success: true, Device: device})
		return
	}

	limit, offset := 0, 0
	if q.Has("limit") || q.Has("page") {
		p := httputil.ParsePagination(r, maxListLimit, maxListLimit)
		limit, offset = p.Limit, p.Offset()
	}

	devices, err := h.devices.ListDevices(ctx, limit, offset)
	if err != nil {
		h.logger.ErrorContext(ctx, "list devices failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}
	summary, err := h.devices.Summary(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "device summary failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to summarize devices")
		return
	}
	if devices == nil {
		devices = []*models.Device{}
	}

	httputil.WriteJSON(w, http.StatusOK, models.DeviceListResponse{
		Success: true,
		Devices: devices,
		Summary: summary,
	})
}

// SetDeviceStatus applies a manual online/offline override.
func (h *Handler) SetDeviceStatus(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadBody(r, h.maxBodyBytes)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req models.StatusOverrideRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DeviceID == "" || req.Status == "" {
		httputil.WriteError(w, http.StatusBadRequest, "Missing required fields: device_id, status")
		return
	}
	st, ok := models.ParseStatus(req.Status)
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, `Invalid status. Must be "online" or "offline"`)
		return
	}

	out := h.ingest.SetStatus(r.Context(), req.DeviceID, st, req.Data)
	if res, ok := out.Stage(service.StagePersist); ok && !res.OK() {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to update device status")
		return
	}

	resp := out.Response()
	resp.Message = fmt.Sprintf("Device %s status updated to %s", req.DeviceID, st)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// LiveDevices returns the presence cache.
func (h *Handler) LiveDevices(w http.ResponseWriter, r *http.Request) {
	if h.presence == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "presence cache disabled")
		return
	}
	devices, err := h.presence.All(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "presence read failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to read presence")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"devices": devices,
	})
}
