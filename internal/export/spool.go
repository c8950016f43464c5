package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cantrace/internal/models"
)

// Spool writes each rolled-over log segment to a timestamped trace file
// in its directory. It is the default rollover sink of the capture
// binary.
type Spool struct {
	Dir          string
	SessionStart time.Time
	Logger       *slog.Logger
}

// ExportLog writes frames to a new trace file. All-or-nothing: a partial
// file is removed on failure.
func (s *Spool) ExportLog(frames []models.Frame) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create spool directory: %w", err)
	}

	path := filepath.Join(s.Dir, fmt.Sprintf("capture_%s.trc", time.Now().Format("20060102_150405.000")))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create trace file: %w", err)
	}

	if err := Trace(f, frames, s.SessionStart); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to close trace file: %w", err)
	}

	if s.Logger != nil {
		s.Logger.Info("spooled trace segment", "path", path, "frames", len(frames))
	}
	return nil
}
