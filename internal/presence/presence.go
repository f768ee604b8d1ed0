// Package presence caches the latest status of every device in a Redis hash.
//
// The hash field is the device id and the value is the JSON-encoded
// models.Presence of the most recent status-update. The cache is a view for
// live dashboards; PostgreSQL stays the record of truth.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Misakaka10086/IoT-Platform/internal/models"
)

var ErrNotFound = errors.New("no presence for device")

// Cache reads and writes device presence.
type Cache struct {
	client *redis.Client
	key    string
}

// Connect parses url, dials Redis and verifies it answers PING.
func Connect(ctx context.Context, url string, poolSize int) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if poolSize > 0 {
		opt.PoolSize = poolSize
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// NewCache stores presence under the hash key.
func NewCache(client *redis.Client, key string) *Cache {
	return &Cache{client: client, key: key}
}

// Set replaces the cached presence of p.DeviceID.
func (c *Cache) Set(ctx context.Context, p models.Presence) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}
	if err := c.client.HSet(ctx, c.key, p.DeviceID, data).Err(); err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}
	return nil
}

// MarkOffline rewrites a cached entry as offline, keeping its metadata.
// Devices without an entry get a fresh one.
func (c *Cache) MarkOffline(ctx context.Context, deviceID, reason string, at time.Time) error {
	p, err := c.Get(ctx, deviceID)
	if errors.Is(err, ErrNotFound) {
		p = &models.Presence{DeviceID: deviceID}
	} else if err != nil {
		return err
	}
	p.Status = models.StatusOffline
	p.Reason = reason
	p.UpdatedAt = at
	return c.Set(ctx, *p)
}

// Get returns ErrNotFound when the device has no entry.
func (c *Cache) Get(ctx context.Context, deviceID string) (*models.Presence, error) {
	data, err := c.client.HGet(ctx, c.key, deviceID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}

	var p models.Presence
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presence: %w", err)
	}
	return &p, nil
}

// All returns every entry ordered by device id. Undecodable entries are skipped.
func (c *Cache) All(ctx context.Context) ([]models.Presence, error) {
	entries, err := c.client.HGetAll(ctx, c.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list presence: %w", err)
	}

	out := make([]models.Presence, 0, len(entries))
	for _, data := range entries {
		var p models.Presence
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
