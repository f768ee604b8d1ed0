// Package database holds the timeout policy applied to store operations.
package database

import (
	"context"
	"time"
)

const (
	// DefaultQueryTimeout bounds reads such as device listings and summaries.
	DefaultQueryTimeout = 5 * time.Second

	// DefaultWriteTimeout bounds a single status upsert.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultBulkTimeout bounds migrations and the stale-device sweep.
	DefaultBulkTimeout = 30 * time.Second
)

// Timeouts lets callers override the defaults from configuration.
// Zero fields fall back to the package defaults.
type Timeouts struct {
	Query time.Duration
	Write time.Duration
	Bulk  time.Duration
}

func (t Timeouts) query() time.Duration { return orDefault(t.Query, DefaultQueryTimeout) }
func (t Timeouts) write() time.Duration { return orDefault(t.Write, DefaultWriteTimeout) }
func (t Timeouts) bulk() time.Duration  { return orDefault(t.Bulk, DefaultBulkTimeout) }

// QueryContext derives a read context from parent.
func (t Timeouts) QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, t.query())
}

// WriteContext derives a write context from parent.
func (t Timeouts) WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, t.write())
}

// BulkContext derives a context for long-running maintenance work.
func (t Timeouts) BulkContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, t.bulk())
}

// QueryContext creates a context with DefaultQueryTimeout.
func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return Timeouts{}.QueryContext(parent)
}

// WriteContext creates a context with DefaultWriteTimeout.
func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return Timeouts{}.WriteContext(parent)
}

// BulkContext creates a context with DefaultBulkTimeout.
func BulkContext(parent context.Context) (context.Context, context.CancelFunc) {
	return Timeouts{}.BulkContext(parent)
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
