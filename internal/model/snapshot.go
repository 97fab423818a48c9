package model

import "time"

type AgentSnapshot struct {
	WatchDir     string     `json:"watch_dir"`
	StartedAt    time.Time  `json:"started_at"`
	Workers      int        `json:"workers"`
	Received     int        `json:"received"`
	Dropped      int        `json:"dropped"`
	Synced       int        `json:"synced"`
	Failed       int        `json:"failed"`
	QueueLength  int        `json:"queue_length"`
	PendingScans int        `json:"pending_scans"`
	LastSync     *time.Time `json:"last_sync"`
}
