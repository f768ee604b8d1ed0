// Package service runs the per-event ingestion pipeline.
//
// Each request moves through normalize, filter, resolve or interpret,
// persist, notify and acknowledge. Only a normalization failure is returned
// to the caller. Every later stage is best effort: its result is recorded in
// the Outcome and logged, and the remaining stages still run.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Misakaka10086/IoT-Platform/common/database"
	"github.com/Misakaka10086/IoT-Platform/common/logging"
	"github.com/Misakaka10086/IoT-Platform/common/messaging"
	"github.com/Misakaka10086/IoT-Platform/internal/identity"
	"github.com/Misakaka10086/IoT-Platform/internal/metrics"
	"github.com/Misakaka10086/IoT-Platform/internal/models"
	"github.com/Misakaka10086/IoT-Platform/internal/normalizer"
	"github.com/Misakaka10086/IoT-Platform/internal/notify"
	"github.com/Misakaka10086/IoT-Platform/internal/ota"
	"github.com/Misakaka10086/IoT-Platform/internal/status"
)

const (
	EndpointConnection = "connection"
	EndpointOTA        = "ota"

	// MessageOTAReceived acknowledges every well-formed publish event.
	MessageOTAReceived = "OTA event received"

	notifyTimeout = 5 * time.Second
)

// StatusStore is the part of the repository the pipeline writes to.
type StatusStore interface {
	UpsertStatus(ctx context.Context, rec models.DeviceStatusRecord) error
}

// PresenceStore caches the live view. It is optional.
type PresenceStore interface {
	Set(ctx context.Context, p models.Presence) error
	MarkOffline(ctx context.Context, deviceID, reason string, at time.Time) error
}

// Controller wires the pipeline stages to their long-lived handles.
type Controller struct {
	store    StatusStore
	presence PresenceStore
	fanout   *notify.Fanout
	timeouts database.Timeouts
	logger   *logging.Logger
	now      func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithPresence enables the presence cache stage.
func WithPresence(p PresenceStore) Option {
	return func(c *Controller) { c.presence = p }
}

// WithTimeouts overrides the store timeouts.
func WithTimeouts(t database.Timeouts) Option {
	return func(c *Controller) { c.timeouts = t }
}

// WithLogger sets the logger; the default discards.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController builds a Controller around store and fanout.
func NewController(store StatusStore, fanout *notify.Fanout, opts ...Option) *Controller {
	c := &Controller{
		store:  store,
		fanout: fanout,
		logger: logging.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HandleConnection processes a client.connected or client.disconnected body.
// The error is non-nil only for bodies the normalizer rejects.
func (c *Controller) HandleConnection(ctx context.Context, body []byte) (*Outcome, error) {
	ev, err := normalizer.NormalizeConnection(body)
	if err != nil {
		c.rejected(ctx, EndpointConnection, err)
		return nil, err
	}
	return c.ProcessConnection(ctx, ev), nil
}

// ProcessConnection runs the pipeline for an already normalized event.
func (c *Controller) ProcessConnection(ctx context.Context, ev models.ConnectionEvent) *Outcome {
	// Stages run to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	out := &Outcome{Kind: ev.Kind()}

	id := identity.Filter(ev.Base().ClientID, ev.DisconnectReason())
	if !id.Applicable {
		out.Filtered = true
		out.Message = id.Message
		out.add(StageResult{Stage: StageFilter, Skipped: true})
		metrics.EventsTotal.WithLabelValues(EndpointConnection, "filtered").Inc()
		c.logger.DebugContext(ctx, "connection event filtered",
			logging.ClientID(ev.Base().ClientID),
			logging.Event(string(ev.Kind())),
			slog.String("reason", id.Message))
		return out
	}
	out.add(StageResult{Stage: StageFilter})

	res := status.Resolve(ev, id.DeviceID, c.now())
	out.DeviceID = res.DeviceID
	out.Status = res.Status
	out.add(StageResult{Stage: StageResolve})

	out.add(c.persist(ctx, res.Record()))
	out.add(c.cachePresence(ctx, res.Presence()))

	timestamp, _ := res.Metadata["timestamp"].(string)
	switch ev.(type) {
	case *models.ClientConnected:
		out.add(c.notify(ctx, messaging.ChannelDeviceEvents, func(ctx context.Context) error {
			return c.fanout.DeviceConnected(ctx, res.DeviceID, timestamp, res.Metadata)
		}))
	case *models.ClientDisconnected:
		out.add(c.notify(ctx, messaging.ChannelDeviceEvents, func(ctx context.Context) error {
			return c.fanout.DeviceDisconnected(ctx, res.DeviceID, res.Reason, timestamp, res.Metadata)
		}))
	}
	out.add(c.notify(ctx, messaging.ChannelDeviceStatus, func(ctx context.Context) error {
		return c.fanout.StatusUpdate(ctx, res.DeviceID, res.Status, timestamp, res.Metadata)
	}))

	c.finish(ctx, EndpointConnection, out)
	return out
}

// HandleOTA processes a message.publish body carrying an OTA report.
// The error is non-nil only for bodies the normalizer rejects; an invalid
// report inside a valid envelope is logged and acknowledged.
func (c *Controller) HandleOTA(ctx context.Context, body []byte) (*Outcome, error) {
	pub, err := normalizer.NormalizePublish(body)
	if err != nil {
		c.rejected(ctx, EndpointOTA, err)
		return nil, err
	}
	return c.ProcessPublish(ctx, pub), nil
}

// ProcessPublish interprets the OTA report in pub and fires its one notification.
func (c *Controller) ProcessPublish(ctx context.Context, pub *models.PublishEvent) *Outcome {
	ctx = context.WithoutCancel(ctx)
	out := &Outcome{Kind: pub.Kind(), Message: MessageOTAReceived}

	intent, err := ota.Interpret(pub.Payload)
	if err != nil {
		out.add(StageResult{Stage: StageInterpret, Err: err})
		metrics.OTAReports.WithLabelValues(otaErrorLabel(err)).Inc()
		c.finish(ctx, EndpointOTA, out)
		return out
	}
	out.add(StageResult{Stage: StageInterpret})
	out.DeviceID = intent.DeviceID
	metrics.OTAReports.WithLabelValues(intent.Kind.String()).Inc()

	var result StageResult
	switch intent.Kind {
	case ota.IntentProgress:
		result = c.notify(ctx, messaging.ChannelDeviceOTAStatus, func(ctx context.Context) error {
			return c.fanout.OTAProgress(ctx, intent.DeviceID, intent.Progress)
		})
	case ota.IntentSuccess:
		result = c.notify(ctx, messaging.ChannelDeviceOTAEvents, func(ctx context.Context) error {
			return c.fanout.OTASuccess(ctx, intent.DeviceID)
		})
	case ota.IntentError:
		reason := ""
		if intent.Report.ErrorReason != nil {
			reason = *intent.Report.ErrorReason
		}
		result = c.notify(ctx, messaging.ChannelDeviceOTAEvents, func(ctx context.Context) error {
			return c.fanout.OTAError(ctx, intent.DeviceID, reason)
		})
	}
	out.add(result)

	c.finish(ctx, EndpointOTA, out)
	return out
}

// SetStatus applies a manual override: persist, cache and status-update.
// extra is carried into the status payload; source and timestamp are
// always set by the controller.
func (c *Controller) SetStatus(ctx context.Context, deviceID string, st models.Status, extra map[string]any) *Outcome {
	ctx = context.WithoutCancel(ctx)
	now := c.now()
	out := &Outcome{DeviceID: deviceID, Status: st}

	timestamp := now.UTC().Format(time.RFC3339)
	data := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		data[k] = v
	}
	data["source"] = "manual"
	data["timestamp"] = timestamp

	out.add(c.persist(ctx, models.DeviceStatusRecord{DeviceID: deviceID, Online: st.Online(), LastSeen: now}))
	out.add(c.cachePresence(ctx, models.Presence{DeviceID: deviceID, Status: st, Metadata: data, UpdatedAt: now}))
	out.add(c.notify(ctx, messaging.ChannelDeviceStatus, func(ctx context.Context) error {
		return c.fanout.StatusUpdate(ctx, deviceID, st, timestamp, data)
	}))

	c.finish(ctx, "manual", out)
	return out
}

// AnnounceOffline reports a device the store has already marked offline.
// It updates the cache and publishes status-update without another write.
func (c *Controller) AnnounceOffline(ctx context.Context, deviceID, reason string) *Outcome {
	now := c.now()
	out := &Outcome{DeviceID: deviceID, Status: models.StatusOffline}
	timestamp := now.UTC().Format(time.RFC3339)

	if c.presence == nil {
		out.add(StageResult{Stage: StagePresence, Skipped: true})
	} else {
		start := time.Now()
		err := c.presence.MarkOffline(ctx, deviceID, reason, now)
		out.add(c.observe(StageResult{Stage: StagePresence, Err: err}, start))
	}
	out.add(c.notify(ctx, messaging.ChannelDeviceStatus, func(ctx context.Context) error {
		return c.fanout.StatusUpdate(ctx, deviceID, models.StatusOffline, timestamp, map[string]any{
			"reason":    reason,
			"timestamp": timestamp,
		})
	}))

	c.finish(ctx, "sweeper", out)
	return out
}

func (c *Controller) persist(ctx context.Context, rec models.DeviceStatusRecord) StageResult {
	start := time.Now()
	wctx, cancel := c.timeouts.WriteContext(ctx)
	defer cancel()

	err := c.store.UpsertStatus(wctx, rec)
	return c.observe(StageResult{Stage: StagePersist, Err: err}, start)
}

func (c *Controller) cachePresence(ctx context.Context, p models.Presence) StageResult {
	if c.presence == nil {
		return StageResult{Stage: StagePresence, Skipped: true}
	}
	start := time.Now()
	err := c.presence.Set(ctx, p)
	return c.observe(StageResult{Stage: StagePresence, Err: err}, start)
}

func (c *Controller) notify(ctx context.Context, channel string, publish func(context.Context) error) StageResult {
	start := time.Now()
	nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	err := publish(nctx)
	label := "ok"
	if err != nil {
		label = "error"
	}
	metrics.NotificationsTotal.WithLabelValues(channel, label).Inc()
	return c.observe(StageResult{Stage: StageNotify, Channel: channel, Err: err}, start)
}

func (c *Controller) observe(r StageResult, start time.Time) StageResult {
	r.Duration = time.Since(start)
	metrics.StageDuration.WithLabelValues(string(r.Stage)).Observe(r.Duration.Seconds())
	if r.Err != nil {
		metrics.StageFailures.WithLabelValues(string(r.Stage)).Inc()
	}
	return r
}

func (c *Controller) rejected(ctx context.Context, endpoint string, err error) {
	metrics.NormalizationErrors.Inc()
	metrics.EventsTotal.WithLabelValues(endpoint, "invalid").Inc()
	c.logger.WarnContext(ctx, "webhook body rejected",
		logging.Stage(string(StageNormalize)),
		logging.Error(err))
}

func (c *Controller) finish(ctx context.Context, endpoint string, out *Outcome) {
	failed := out.Failed()
	for _, s := range failed {
		attrs := []any{
			logging.Stage(string(s.Stage)),
			logging.DeviceID(out.DeviceID),
			logging.Error(s.Err),
		}
		if s.Channel != "" {
			attrs = append(attrs, logging.Channel(s.Channel))
		}
		c.logger.WarnContext(ctx, "stage failed", attrs...)
	}

	result := "accepted"
	if len(failed) > 0 {
		result = "degraded"
	}
	metrics.EventsTotal.WithLabelValues(endpoint, result).Inc()

	c.logger.InfoContext(ctx, "event processed",
		logging.Event(string(out.Kind)),
		logging.DeviceID(out.DeviceID),
		slog.Int("failed_stages", len(failed)))
}

func otaErrorLabel(err error) string {
	switch {
	case errors.Is(err, ota.ErrInvalidProgress):
		return "invalid_progress"
	case errors.Is(err, ota.ErrUnknownStage):
		return "unknown_stage"
	default:
		return "invalid_payload"
	}
}
