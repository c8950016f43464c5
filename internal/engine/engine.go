package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"cantrace/internal/canid"
	"cantrace/internal/models"
)

// State is the ingestion lifecycle phase of a capture session.
type State int32

const (
	StateIdle State = iota
	StateCapturing
	StateRollingOver
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateRollingOver:
		return "rolling-over"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Clock supplies time to the engine; injected so tests can drive it.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// RolloverSink receives the full frame log when it hits capacity, before
// the log is cleared. Invoked synchronously from the flush path; new
// frames keep landing in the pending buffer meanwhile.
type RolloverSink interface {
	ExportLog(frames []models.Frame) error
}

// FrameSink receives every flushed batch in arrival order.
type FrameSink interface {
	WriteFrames(frames []models.Frame)
}

// Options configures an engine. Zero values fall back to defaults.
type Options struct {
	FlushInterval    time.Duration // pending-buffer drain cadence
	SweepInterval    time.Duration // latest-index staleness sweep cadence
	StaleTimeout     time.Duration // latest-index entry lifetime
	RolloverCooldown time.Duration // suppresses back-to-back rollovers
	MaxFrames        int           // frame log capacity ceiling
	Clock            Clock
	Logger           *slog.Logger
}

const (
	defaultFlushInterval    = 60 * time.Millisecond
	defaultSweepInterval    = time.Second
	defaultStaleTimeout     = 5 * time.Second
	defaultRolloverCooldown = 5 * time.Second
	defaultMaxFrames        = 1_000_000
)

var ErrTransportActive = errors.New("engine: a transport is already attached")

type occurrence struct {
	count     uint64
	lastRelMs float64
}

// Engine is the stateful ingestion pipeline for one capture session. The
// transport read loop appends to the pending buffer; the flush ticker is
// the sole writer of the frame log and the latest-frame index. That
// single-writer split is the whole concurrency story.
type Engine struct {
	opts         Options
	clock        Clock
	logger       *slog.Logger
	sessionStart time.Time

	// Pending side: owned by Push (read loop), cleared by flush.
	pendingMu sync.Mutex
	pending   []models.Frame
	occ       map[canid.CanonicalID]*occurrence

	// Log side: owned by the flush/sweep timers.
	logMu        sync.Mutex
	log          []models.Frame
	latest       map[canid.CanonicalID]models.Frame
	lastRollover time.Time

	rollover   RolloverSink
	frameSinks []FrameSink

	state       atomic.Int32
	totalFrames atomic.Uint64
	rollovers   atomic.Uint64
	invalidIDs  atomic.Uint64

	transportMu     sync.Mutex
	transportActive bool
	parser          droppedCounter
}

type droppedCounter interface {
	Dropped() uint64
}

// New creates an engine for a fresh capture session.
func New(opts Options) *Engine {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = defaultSweepInterval
	}
	if opts.StaleTimeout <= 0 {
		opts.StaleTimeout = defaultStaleTimeout
	}
	if opts.RolloverCooldown <= 0 {
		opts.RolloverCooldown = defaultRolloverCooldown
	}
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = defaultMaxFrames
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	e := &Engine{
		opts:         opts,
		clock:        opts.Clock,
		logger:       opts.Logger,
		sessionStart: opts.Clock.Now(),
		occ:          make(map[canid.CanonicalID]*occurrence),
		latest:       make(map[canid.CanonicalID]models.Frame),
	}
	e.state.Store(int32(StateIdle))
	return e
}

// SetRolloverSink registers the export target invoked at capacity.
// Call before Start.
func (e *Engine) SetRolloverSink(s RolloverSink) {
	e.rollover = s
}

// AddFrameSink registers a consumer of flushed batches. Call before Start.
func (e *Engine) AddFrameSink(s FrameSink) {
	e.frameSinks = append(e.frameSinks, s)
}

// Start runs the flush and sweep timers until ctx ends.
func (e *Engine) Start(ctx context.Context) {
	go e.run(ctx)
}

func (e *Engine) run(ctx context.Context) {
	flush := time.NewTicker(e.opts.FlushInterval)
	defer flush.Stop()
	sweep := time.NewTicker(e.opts.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			// Drain whatever arrived since the last tick.
			e.FlushNow()
			return
		case <-flush.C:
			e.FlushNow()
		case <-sweep.C:
			e.sweepStale()
		}
	}
}

// Push records one frame into the pending buffer. Occurrence count and
// inter-arrival period are computed here, against the previous frame
// with the same canonical id, so batching the flush cannot disturb them.
func (e *Engine) Push(id canid.CanonicalID, dlc int, data []byte) models.Frame {
	now := e.clock.Now()
	rel := e.relMs(now)

	e.pendingMu.Lock()
	var count uint64 = 1
	var period float64
	if o, ok := e.occ[id]; ok {
		o.count++
		count = o.count
		period = rel - o.lastRelMs
		o.lastRelMs = rel
	} else {
		e.occ[id] = &occurrence{count: 1, lastRelMs: rel}
	}

	f := models.Frame{
		ID:                id,
		DataLength:        dlc,
		Bytes:             append([]byte(nil), data...),
		RelativeTimestamp: rel,
		AbsoluteTimestamp: now,
		Direction:         models.DirectionRx,
		OccurrenceCount:   count,
		PeriodMs:          period,
	}
	e.pending = append(e.pending, f)
	e.pendingMu.Unlock()

	e.totalFrames.Add(1)
	return f
}

// FlushNow drains the pending buffer into the frame log, updates the
// latest-frame index, and fans the batch out to the frame sinks. The
// flush timer calls this on its cadence; the offline decode path and
// tests call it directly.
func (e *Engine) FlushNow() {
	e.pendingMu.Lock()
	if len(e.pending) == 0 {
		e.pendingMu.Unlock()
		return
	}
	batch := e.pending
	e.pending = nil
	e.pendingMu.Unlock()

	e.logMu.Lock()
	for _, f := range batch {
		if len(e.log) >= e.opts.MaxFrames {
			e.maybeRolloverLocked()
		}
		e.log = append(e.log, f)
		e.latest[f.ID] = f
	}
	e.logMu.Unlock()

	for _, s := range e.frameSinks {
		s.WriteFrames(batch)
	}
}

// maybeRolloverLocked exports and clears the full log unless a rollover
// happened inside the cool-down window. Caller holds logMu.
func (e *Engine) maybeRolloverLocked() {
	now := e.clock.Now()
	if !e.lastRollover.IsZero() && now.Sub(e.lastRollover) < e.opts.RolloverCooldown {
		return
	}

	e.state.Store(int32(StateRollingOver))
	snapshot := e.log
	if e.rollover != nil {
		if err := e.rollover.ExportLog(snapshot); err != nil {
			e.logger.Error("rollover export failed", "frames", len(snapshot), "error", err)
		}
	}
	e.log = make([]models.Frame, 0, 1024)

	e.pendingMu.Lock()
	e.occ = make(map[canid.CanonicalID]*occurrence)
	e.pendingMu.Unlock()

	e.lastRollover = now
	e.rollovers.Add(1)
	e.state.Store(int32(StateCapturing))
	e.logger.Info("frame log rolled over", "exported", len(snapshot))
}

// sweepStale evicts latest-index entries older than the staleness
// timeout so consumers can tell live identifiers from cached ones. The
// frame log is never touched.
func (e *Engine) sweepStale() {
	cutoff := e.relMs(e.clock.Now()) - float64(e.opts.StaleTimeout.Milliseconds())

	e.logMu.Lock()
	for id, f := range e.latest {
		if f.RelativeTimestamp < cutoff {
			delete(e.latest, id)
		}
	}
	e.logMu.Unlock()
}

func (e *Engine) relMs(t time.Time) float64 {
	return float64(t.Sub(e.sessionStart)) / float64(time.Millisecond)
}

// State returns the current lifecycle phase.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// SessionStart returns the capture session's start instant.
func (e *Engine) SessionStart() time.Time {
	return e.sessionStart
}

// Log returns a copy of the frame log.
func (e *Engine) Log() []models.Frame {
	e.logMu.Lock()
	defer e.logMu.Unlock()
	out := make([]models.Frame, len(e.log))
	copy(out, e.log)
	return out
}

// LogLen returns the frame log length.
func (e *Engine) LogLen() int {
	e.logMu.Lock()
	defer e.logMu.Unlock()
	return len(e.log)
}

// LatestFrames returns the live latest-frame index as a slice in
// ascending identifier order.
func (e *Engine) LatestFrames() []models.Frame {
	e.logMu.Lock()
	out := make([]models.Frame, 0, len(e.latest))
	for _, f := range e.latest {
		out = append(out, f)
	}
	e.logMu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return canid.Value(out[i].ID) < canid.Value(out[j].ID)
	})
	return out
}

// PendingLen returns the current pending-buffer depth.
func (e *Engine) PendingLen() int {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	return len(e.pending)
}

// UniqueIDs returns the number of identifiers seen since the last rollover.
func (e *Engine) UniqueIDs() int {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	return len(e.occ)
}

// LiveIDs returns the latest-frame index size.
func (e *Engine) LiveIDs() int {
	e.logMu.Lock()
	defer e.logMu.Unlock()
	return len(e.latest)
}

// TotalFrames returns the number of frames pushed this session.
func (e *Engine) TotalFrames() uint64 {
	return e.totalFrames.Load()
}

// Rollovers returns the number of log rollovers this session.
func (e *Engine) Rollovers() uint64 {
	return e.rollovers.Load()
}

// InvalidIDs returns the number of frames dropped for malformed identifiers.
func (e *Engine) InvalidIDs() uint64 {
	return e.invalidIDs.Load()
}

// DroppedLines returns the number of non-record lines the active
// transport's parser has discarded.
func (e *Engine) DroppedLines() uint64 {
	e.transportMu.Lock()
	defer e.transportMu.Unlock()
	if e.parser == nil {
		return 0
	}
	return e.parser.Dropped()
}
