package influxdb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/InfluxCommunity/influxdb3-go/v2/influxdb3"

	"cantrace/internal/catalog"
	"cantrace/internal/models"
	"cantrace/internal/signal"
)

const measurement = "can_signals"

// Writer decodes captured frames against the catalog and writes the
// physical signal values to InfluxDB as time-series points. Frames
// without a catalog entry are skipped; undecodable signals are omitted
// from their point.
type Writer struct {
	client     *influxdb3.Client
	catalog    *catalog.Catalog
	batchSize  int
	batch      []*influxdb3.Point
	batchChan  chan models.Frame
	ctx        context.Context
	cancel     context.CancelFunc
	flushTimer *time.Ticker
	logger     *slog.Logger
}

// New creates a new InfluxDB signal writer
func New(config Config, cat *catalog.Catalog, batchSize int, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := influxdb3.New(influxdb3.ClientConfig{
		Host:     config.URL,
		Token:    config.Token,
		Database: config.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create InfluxDB client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	writer := &Writer{
		client:     client,
		catalog:    cat,
		batchSize:  batchSize,
		batch:      make([]*influxdb3.Point, 0, batchSize),
		batchChan:  make(chan models.Frame, batchSize*2),
		ctx:        ctx,
		cancel:     cancel,
		flushTimer: time.NewTicker(1 * time.Second), // Flush every second
		logger:     logger,
	}

	return writer, nil
}

// Start begins processing and writing points
func (w *Writer) Start() {
	go w.writeLoop()
}

// writeLoop decodes frames into points and writes them in batches
func (w *Writer) writeLoop() {
	for {
		select {
		case <-w.ctx.Done():
			// Flush remaining points before exiting
			if len(w.batch) > 0 {
				w.flush()
			}
			return

		case f := <-w.batchChan:
			if point := w.decode(f); point != nil {
				w.batch = append(w.batch, point)
			}
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

// decode builds one point carrying every decodable signal of the frame.
func (w *Writer) decode(f models.Frame) *influxdb3.Point {
	msg, ok := w.catalog.DefinitionFor(f.ID)
	if !ok {
		return nil
	}

	fields := make(map[string]any, len(msg.Signals))
	for name, d := range msg.Signals {
		v, err := signal.Decode(f.Bytes, d)
		if err != nil {
			continue
		}
		fields[name] = v.Physical
	}
	if len(fields) == 0 {
		return nil
	}

	return influxdb3.NewPoint(
		measurement,
		map[string]string{
			"message": msg.Name,
			"can_id":  string(f.ID),
		},
		fields,
		f.AbsoluteTimestamp,
	)
}

// flush writes the current batch to InfluxDB
func (w *Writer) flush() error {
	if len(w.batch) == 0 {
		return nil
	}

	if err := w.client.WritePoints(w.ctx, w.batch); err != nil {
		return fmt.Errorf("failed to write points: %w", err)
	}

	w.logger.Debug("flushed signal points to InfluxDB", "count", len(w.batch))
	w.batch = w.batch[:0]

	return nil
}

// WriteFrames queues a flushed engine batch for decoding and writing
func (w *Writer) WriteFrames(frames []models.Frame) {
	for _, f := range frames {
		select {
		case w.batchChan <- f:
		default:
			w.logger.Warn("batch channel full, dropping frame", "can_id", string(f.ID))
		}
	}
}

// SignalPoint is one sampled value of a decoded signal.
type SignalPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// QueryHistory retrieves the recorded history of one signal, newest first.
func (w *Writer) QueryHistory(ctx context.Context, signalName string, start, end time.Time, limit int) ([]SignalPoint, error) {
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(
		`SELECT time, %q FROM %q WHERE time >= '%s' AND time <= '%s' AND %q IS NOT NULL ORDER BY time DESC LIMIT %d`,
		signalName,
		measurement,
		start.UTC().Format("2006-01-02 15:04:05"),
		end.UTC().Format("2006-01-02 15:04:05"),
		signalName,
		limit,
	)

	it, err := w.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query signal history: %w", err)
	}

	points := []SignalPoint{}
	for it.Next() {
		row := it.Value()

		point := SignalPoint{}
		if ts, ok := row["time"].(time.Time); ok {
			point.Time = ts
		}
		switch v := row[signalName].(type) {
		case float64:
			point.Value = v
		case int64:
			point.Value = float64(v)
		default:
			continue
		}
		points = append(points, point)
	}

	return points, nil
}

// Close closes the InfluxDB connection
func (w *Writer) Close() error {
	w.cancel()
	w.flushTimer.Stop()

	if w.client != nil {
		w.client.Close()
	}
	return nil
}
