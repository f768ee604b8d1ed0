// Package handlers implements the devicehub HTTP API.
package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Misakaka10086/IoT-Platform/common/logging"
	"github.com/Misakaka10086/IoT-Platform/common/messaging"
	"github.com/Misakaka10086/IoT-Platform/internal/models"
	"github.com/Misakaka10086/IoT-Platform/internal/service"
)

const defaultMaxBodyBytes = 1 << 20

// Ingestor runs webhook bodies and manual overrides through the pipeline.
type Ingestor interface {
	HandleConnection(ctx context.Context, body []byte) (*service.Outcome, error)
	HandleOTA(ctx context.Context, body []byte) (*service.Outcome, error)
	SetStatus(ctx context.Context, deviceID string, st models.Status, data map[string]any) *service.Outcome
}

// DeviceStore reads persisted device status.
type DeviceStore interface {
	GetDevice(ctx context.Context, deviceID string) (*models.Device, error)
	ListDevices(ctx context.Context, limit, offset int) ([]*models.Device, error)
	Summary(ctx context.Context) (models.StatusSummary, error)
	Ping(ctx context.Context) error
}

// PresenceReader lists cached presence.
type PresenceReader interface {
	All(ctx context.Context) ([]models.Presence, error)
}

// BrokerAPI proxies reads to the broker management API.
type BrokerAPI interface {
	Get(ctx context.Context, host, path string) (json.RawMessage, error)
}

// Handler serves every devicehub endpoint. Optional dependencies may be nil.
type Handler struct {
	ingest       Ingestor
	devices      DeviceStore
	presence     PresenceReader
	broker       BrokerAPI
	messaging    messaging.Client
	logger       *logging.Logger
	maxBodyBytes int64
	startedAt    time.Time
}

type Option func(*Handler)

func WithPresence(p PresenceReader) Option {
	return func(h *Handler) { h.presence = p }
}

func WithBrokerAPI(b BrokerAPI) Option {
	return func(h *Handler) { h.broker = b }
}

// WithMessaging reports the broker connection on /readyz.
func WithMessaging(c messaging.Client) Option {
	return func(h *Handler) { h.messaging = c }
}

func WithLogger(l *logging.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

func New(ingest Ingestor, devices DeviceStore, opts ...Option) *Handler {
	h := &Handler{
		ingest:       ingest,
		devices:      devices,
		logger:       logging.Discard(),
		maxBodyBytes: defaultMaxBodyBytes,
		startedAt:    time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}
