// Package repository persists device status in PostgreSQL.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Misakaka10086/IoT-Platform/internal/models"
)

// ErrNotFound is returned when a device has no row.
var ErrNotFound = errors.New("device not found")

// Repository is the device status store.
type Repository interface {
	// UpsertStatus creates the row on first sighting and updates it afterwards.
	UpsertStatus(ctx context.Context, rec models.DeviceStatusRecord) error
	GetDevice(ctx context.Context, deviceID string) (*models.Device, error)
	ListDevices(ctx context.Context, limit, offset int) ([]*models.Device, error)
	Summary(ctx context.Context) (models.StatusSummary, error)
	// MarkStaleOffline flips devices still online but unseen since cutoff
	// and returns their ids.
	MarkStaleOffline(ctx context.Context, cutoff time.Time) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// PersistenceError wraps a store failure with the operation that hit it.
type PersistenceError struct {
	Op       string
	DeviceID string
	Err      error
}

func (e *PersistenceError) Error() string {
	if e.DeviceID != "" {
		return fmt.Sprintf("persistence: %s %s: %v", e.Op, e.DeviceID, e.Err)
	}
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op, deviceID string, err error) error {
	return &PersistenceError{Op: op, DeviceID: deviceID, Err: err}
}
