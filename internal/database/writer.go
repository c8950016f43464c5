package database

import "cantrace/internal/models"

// Writer is the common contract for database sinks fed by the engine's
// flush batches.
type Writer interface {
	WriteFrames(frames []models.Frame)
	Close() error
}
