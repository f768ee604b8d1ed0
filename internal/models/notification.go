package models

import "time"

// NotificationMessage is the envelope published on a channel.
type NotificationMessage struct {
	Channel     string         `json:"channel"`
	Event       string         `json:"event"`
	Data        map[string]any `json:"data"`
	PublishedAt time.Time      `json:"published_at"`
}
