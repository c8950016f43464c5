package clickhouse

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"cantrace/internal/canid"
	"cantrace/internal/models"
)

// Writer handles writing captured frames to ClickHouse
type Writer struct {
	conn       driver.Conn
	config     Config
	batchSize  int
	batch      []models.Frame
	batchChan  chan models.Frame
	ctx        context.Context
	cancel     context.CancelFunc
	flushTimer *time.Ticker
	logger     *slog.Logger
}

// New creates a new ClickHouse writer
func New(config Config, batchSize int, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", config.Host, config.Port)},
		Auth: clickhouse.Auth{
			Database: config.Database,
			Username: config.Username,
			Password: config.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})

	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	// Create table if not exists
	if err := createTable(conn, config.Table); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	writer := &Writer{
		conn:       conn,
		config:     config,
		batchSize:  batchSize,
		batch:      make([]models.Frame, 0, batchSize),
		batchChan:  make(chan models.Frame, batchSize*2),
		ctx:        ctx,
		cancel:     cancel,
		flushTimer: time.NewTicker(1 * time.Second), // Flush every second
		logger:     logger,
	}

	return writer, nil
}

// createTable creates the captured-frames table in ClickHouse
func createTable(conn driver.Conn, tableName string) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			timestamp DateTime64(6),
			relative_ms Float64,
			can_id UInt64,
			can_id_hex String,
			dlc UInt8,
			data Array(UInt8),
			occurrence UInt64,
			period_ms Float64
		) ENGINE = MergeTree()
		ORDER BY (timestamp, can_id)
		PARTITION BY toYYYYMMDD(timestamp)
		TTL timestamp + INTERVAL 1 MONTH
		SETTINGS index_granularity = 8192
	`, tableName)

	return conn.Exec(context.Background(), query)
}

// Start begins processing and writing frames
func (w *Writer) Start() {
	go w.writeLoop()
}

// writeLoop processes frames and writes them in batches
func (w *Writer) writeLoop() {
	for {
		select {
		case <-w.ctx.Done():
			// Flush remaining frames before exiting
			if len(w.batch) > 0 {
				w.flush()
			}
			return

		case f := <-w.batchChan:
			w.batch = append(w.batch, f)
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
func (w *Writer) flush() error {
	if len(w.batch) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(w.ctx, fmt.Sprintf("INSERT INTO %s", w.config.Table))
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, f := range w.batch {
		err = batch.Append(
			f.AbsoluteTimestamp,
			f.RelativeTimestamp,
			canid.Value(f.ID),
			f.IDHex(),
			uint8(f.DataLength),
			f.Bytes,
			f.OccurrenceCount,
			f.PeriodMs,
		)

		if err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	w.logger.Debug("flushed frames to ClickHouse", "count", len(w.batch))
	w.batch = w.batch[:0] // Clear batch

	return nil
}

// WriteFrames queues a flushed engine batch for writing
func (w *Writer) WriteFrames(frames []models.Frame) {
	for _, f := range frames {
		select {
		case w.batchChan <- f:
		default:
			w.logger.Warn("batch channel full, dropping frame", "can_id", string(f.ID))
		}
	}
}

// Close closes the ClickHouse connection
func (w *Writer) Close() error {
	w.cancel()
	w.flushTimer.Stop()

	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// GetConn returns the underlying ClickHouse connection
func (w *Writer) GetConn() driver.Conn {
	return w.conn
}
