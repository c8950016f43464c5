package models

import "time"

// SessionStats is a periodic sample of capture-session health.
type SessionStats struct {
	Timestamp time.Time `json:"timestamp"`
	UptimeMs  float64   `json:"uptime_ms"`

	// Throughput
	TotalFrames     uint64  `json:"total_frames"`
	FramesPerSecond float64 `json:"frames_per_second"`

	// Identifier population
	UniqueIDs int `json:"unique_ids"` // ids seen since last rollover
	LiveIDs   int `json:"live_ids"`   // ids still in the latest-frame index

	// Buffers
	LogSize     int `json:"log_size"`
	PendingSize int `json:"pending_size"`

	// Fault counters
	Rollovers    uint64 `json:"rollovers"`
	DroppedLines uint64 `json:"dropped_lines"`
	InvalidIDs   uint64 `json:"invalid_ids"`

	State string `json:"state"`
}
