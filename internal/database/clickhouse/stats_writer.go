package clickhouse

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"cantrace/internal/models"
)

// StatsWriter handles writing capture-session statistics to ClickHouse
type StatsWriter struct {
	conn       driver.Conn
	tableName  string
	batchSize  int
	batch      []models.SessionStats
	batchChan  chan models.SessionStats
	ctx        context.Context
	cancel     context.CancelFunc
	flushTimer *time.Ticker
	logger     *slog.Logger
}

// NewStatsWriter creates a new ClickHouse statistics writer
func NewStatsWriter(conn driver.Conn, tableName string, batchSize int, logger *slog.Logger) *StatsWriter {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &StatsWriter{
		conn:       conn,
		tableName:  tableName,
		batchSize:  batchSize,
		batch:      make([]models.SessionStats, 0, batchSize),
		batchChan:  make(chan models.SessionStats, batchSize*2),
		ctx:        ctx,
		cancel:     cancel,
		flushTimer: time.NewTicker(5 * time.Second), // Flush every 5 seconds
		logger:     logger,
	}
}

// CreateStatsTable creates the session statistics table in ClickHouse
func CreateStatsTable(conn driver.Conn, tableName string) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			timestamp DateTime64(3),
			uptime_ms Float64,
			total_frames UInt64,
			frames_per_second Float64,
			unique_ids UInt32,
			live_ids UInt32,
			log_size UInt32,
			pending_size UInt32,
			rollovers UInt64,
			dropped_lines UInt64,
			invalid_ids UInt64,
			state String
		) ENGINE = MergeTree()
		ORDER BY timestamp
		PARTITION BY toYYYYMMDD(timestamp)
		SETTINGS index_granularity = 8192
	`, tableName)

	return conn.Exec(context.Background(), query)
}

// Start begins processing and writing statistics
func (w *StatsWriter) Start() {
	go w.writeLoop()
}

// writeLoop processes statistics and writes them in batches
func (w *StatsWriter) writeLoop() {
	for {
		select {
		case <-w.ctx.Done():
			// Flush remaining statistics before exiting
			if len(w.batch) > 0 {
				w.flush()
			}
			return

		case stat := <-w.batchChan:
			w.batch = append(w.batch, stat)
			if len(w.batch) >= w.batchSize {
				w.flush()
			}

		case <-w.flushTimer.C:
			if len(w.batch) > 0 {
				w.flush()
			}
		}
	}
}

// flush writes the current batch to ClickHouse
func (w *StatsWriter) flush() error {
	if len(w.batch) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(w.ctx, fmt.Sprintf("INSERT INTO %s", w.tableName))
	if err != nil {
		return fmt.Errorf("failed to prepare stats batch: %w", err)
	}

	for _, stat := range w.batch {
		err = batch.Append(
			stat.Timestamp,
			stat.UptimeMs,
			stat.TotalFrames,
			stat.FramesPerSecond,
			uint32(stat.UniqueIDs),
			uint32(stat.LiveIDs),
			uint32(stat.LogSize),
			uint32(stat.PendingSize),
			stat.Rollovers,
			stat.DroppedLines,
			stat.InvalidIDs,
			stat.State,
		)

		if err != nil {
			return fmt.Errorf("failed to append to stats batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send stats batch: %w", err)
	}

	w.logger.Debug("flushed statistics to ClickHouse", "count", len(w.batch))
	w.batch = w.batch[:0]

	return nil
}

// Write queues a statistics sample for writing
func (w *StatsWriter) Write(stat models.SessionStats) {
	select {
	case w.batchChan <- stat:
	default:
		w.logger.Warn("stats channel full, dropping sample")
	}
}

// Close stops the statistics writer
func (w *StatsWriter) Close() error {
	w.cancel()
	w.flushTimer.Stop()
	return nil
}
