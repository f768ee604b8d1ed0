// Package scheduler runs the periodic stale device sweep.
package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Misakaka10086/IoT-Platform/common/database"
	"github.com/Misakaka10086/IoT-Platform/common/logging"
	"github.com/Misakaka10086/IoT-Platform/common/middleware"
	"github.com/Misakaka10086/IoT-Platform/internal/metrics"
	"github.com/Misakaka10086/IoT-Platform/internal/service"
)

// ReasonStale is the disconnect reason announced for swept devices.
const ReasonStale = "stale"

// StaleMarker flips devices unseen since cutoff to offline and returns their ids.
type StaleMarker interface {
	MarkStaleOffline(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Announcer publishes the offline status of a swept device.
type Announcer interface {
	AnnounceOffline(ctx context.Context, deviceID, reason string) *service.Outcome
}

// Sweeper marks devices offline whose last_seen is older than the threshold.
// It covers disconnect webhooks the broker never delivered.
type Sweeper struct {
	store     StaleMarker
	announcer Announcer
	interval  time.Duration
	threshold time.Duration
	logger    *logging.Logger
	now       func() time.Time
	stop      chan struct{}
	stopped   chan struct{}
}

func NewSweeper(store StaleMarker, announcer Announcer, interval, threshold time.Duration, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Sweeper{
		store:     store,
		announcer: announcer,
		interval:  interval,
		threshold: threshold,
		logger:    logger,
		now:       time.Now,
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Start runs the sweep immediately and then on every tick until Stop or ctx
// cancellation. Call it in a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	defer close(s.stopped)

	s.logger.Info("stale sweeper started", "interval", s.interval.String(), "threshold", s.threshold.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-s.stop:
			s.logger.Info("stale sweeper stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop signals the loop to exit and waits for it.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.stopped
}

// Sweep runs one pass and returns the devices it marked offline.
func (s *Sweeper) Sweep(ctx context.Context) []string {
	ctx = middleware.WithRequestID(ctx, "sweep-"+uuid.NewString())
	cutoff := s.now().Add(-s.threshold)

	writeCtx, cancel := database.BulkContext(ctx)
	ids, err := s.store.MarkStaleOffline(writeCtx, cutoff)
	cancel()
	if err != nil {
		s.logger.ErrorContext(ctx, "stale sweep failed", logging.Error(err))
		return nil
	}
	if len(ids) == 0 {
		return nil
	}

	metrics.StaleDevicesMarked.Add(float64(len(ids)))
	s.logger.InfoContext(ctx, "marked stale devices offline", "count", len(ids), "cutoff", cutoff.UTC().Format(time.RFC3339))

	for _, id := range ids {
		s.announcer.AnnounceOffline(ctx, id, ReasonStale)
	}
	return ids
}
