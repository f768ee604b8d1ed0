// Package server assembles the devicehub HTTP router.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Misakaka10086/IoT-Platform/common/middleware"
	"github.com/Misakaka10086/IoT-Platform/internal/handlers"
)

// NewRouter registers every endpoint. stream serves /ws and may be nil.
func NewRouter(h *handlers.Handler, stream http.Handler, cors middleware.CORSConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cors))

	r.Get("/", h.Root)
	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	// Broker webhooks; the short aliases match older rule configurations.
	webhooks := func(r chi.Router) {
		r.Post("/connection", h.ConnectionEvent)
		r.Post("/ota", h.OTAEvent)
	}
	r.Route("/api/emqx/webhook/events", webhooks)
	r.Route("/events", webhooks)

	r.Get("/api/emqx", h.BrokerProxy)

	r.Route("/api/devices", func(r chi.Router) {
		r.Get("/status", h.GetDeviceStatus)
		r.Post("/status", h.SetDeviceStatus)
		r.Get("/live", h.LiveDevices)
	})

	if stream != nil {
		r.Get("/ws", stream.ServeHTTP)
	}

	return r
}
