package engine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cantrace/internal/canid"
	"cantrace/internal/models"
	"cantrace/internal/transport"
)

// fakeClock is a hand-driven Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type captureSink struct {
	mu      sync.Mutex
	exports [][]models.Frame
}

func (s *captureSink) ExportLog(frames []models.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make([]models.Frame, len(frames))
	copy(snapshot, frames)
	s.exports = append(s.exports, snapshot)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.exports)
}

func TestPushOrderingAndOccurrence(t *testing.T) {
	clock := newFakeClock()
	e := New(Options{Clock: clock})

	a := canid.CanonicalID("2418544720")
	b := canid.CanonicalID("256")

	e.Push(a, 8, []byte{0x32, 0, 0, 0, 0, 0, 0, 0})
	clock.Advance(10 * time.Millisecond)
	e.Push(b, 4, []byte{1, 2, 3, 4})
	clock.Advance(15 * time.Millisecond)
	e.Push(a, 8, []byte{0x33, 0, 0, 0, 0, 0, 0, 0})

	e.FlushNow()

	log := e.Log()
	require.Len(t, log, 3)
	assert.Equal(t, a, log[0].ID)
	assert.Equal(t, b, log[1].ID)
	assert.Equal(t, a, log[2].ID)

	// First sighting of each id.
	assert.Equal(t, uint64(1), log[0].OccurrenceCount)
	assert.Zero(t, log[0].PeriodMs)
	assert.Equal(t, uint64(1), log[1].OccurrenceCount)

	// Second A: count 2, period is the gap back to the first A.
	assert.Equal(t, uint64(2), log[2].OccurrenceCount)
	assert.InDelta(t, 25.0, log[2].PeriodMs, 1e-6)

	assert.Equal(t, uint64(3), e.TotalFrames())
	assert.Equal(t, 2, e.UniqueIDs())
}

func TestPushCopiesData(t *testing.T) {
	e := New(Options{Clock: newFakeClock()})

	buf := []byte{0xAA, 0xBB}
	e.Push(canid.CanonicalID("7"), 2, buf)
	buf[0] = 0x00

	e.FlushNow()
	log := e.Log()
	require.Len(t, log, 1)
	assert.Equal(t, []byte{0xAA, 0xBB}, log[0].Bytes)
}

func TestLatestFramesSortedAndCurrent(t *testing.T) {
	clock := newFakeClock()
	e := New(Options{Clock: clock})

	e.Push(canid.CanonicalID("2418544720"), 1, []byte{0x01})
	e.Push(canid.CanonicalID("256"), 1, []byte{0x02})
	clock.Advance(5 * time.Millisecond)
	e.Push(canid.CanonicalID("256"), 1, []byte{0x03})
	e.FlushNow()

	latest := e.LatestFrames()
	require.Len(t, latest, 2)
	assert.Equal(t, canid.CanonicalID("256"), latest[0].ID)
	assert.Equal(t, []byte{0x03}, latest[0].Bytes)
	assert.Equal(t, canid.CanonicalID("2418544720"), latest[1].ID)
	assert.Equal(t, 2, e.LiveIDs())
}

func TestRolloverAtCapacity(t *testing.T) {
	clock := newFakeClock()
	sink := &captureSink{}
	e := New(Options{Clock: clock, MaxFrames: 5})
	e.SetRolloverSink(sink)

	id := canid.CanonicalID("256")
	for i := 0; i < 6; i++ {
		e.Push(id, 1, []byte{byte(i)})
	}
	e.FlushNow()

	require.Equal(t, 1, sink.count())
	assert.Len(t, sink.exports[0], 5)
	assert.Equal(t, 1, e.LogLen())
	assert.Equal(t, uint64(1), e.Rollovers())

	// Occurrence tracking restarts with the cleared log.
	assert.Equal(t, 0, e.UniqueIDs())
	f := e.Push(id, 1, []byte{0xFF})
	assert.Equal(t, uint64(1), f.OccurrenceCount)
}

func TestRolloverCooldownLetsLogExceedCeiling(t *testing.T) {
	clock := newFakeClock()
	sink := &captureSink{}
	e := New(Options{Clock: clock, MaxFrames: 2, RolloverCooldown: time.Minute})
	e.SetRolloverSink(sink)

	id := canid.CanonicalID("7")
	for i := 0; i < 3; i++ {
		e.Push(id, 1, []byte{byte(i)})
	}
	e.FlushNow()
	require.Equal(t, 1, sink.count())
	assert.Equal(t, 1, e.LogLen())

	// Still inside the cool-down window: capacity checks are suppressed
	// and the log grows past the ceiling instead of thrashing exports.
	clock.Advance(time.Second)
	for i := 0; i < 4; i++ {
		e.Push(id, 1, []byte{byte(i)})
	}
	e.FlushNow()
	assert.Equal(t, 1, sink.count())
	assert.Equal(t, 5, e.LogLen())

	// Past the window the next overflow exports again.
	clock.Advance(2 * time.Minute)
	e.Push(id, 1, []byte{0xEE})
	e.FlushNow()
	assert.Equal(t, 2, sink.count())
	assert.Len(t, sink.exports[1], 5)
	assert.Equal(t, 1, e.LogLen())
}

func TestSweepStaleEvictsOnlyLatestIndex(t *testing.T) {
	clock := newFakeClock()
	e := New(Options{Clock: clock, StaleTimeout: 5 * time.Second})

	e.Push(canid.CanonicalID("256"), 1, []byte{0x01})
	e.FlushNow()
	require.Equal(t, 1, e.LiveIDs())

	clock.Advance(2 * time.Second)
	e.sweepStale()
	assert.Equal(t, 1, e.LiveIDs(), "fresh entry survives the sweep")

	clock.Advance(10 * time.Second)
	e.sweepStale()
	assert.Equal(t, 0, e.LiveIDs())
	assert.Equal(t, 1, e.LogLen(), "the frame log is never swept")
}

type frameSinkRecorder struct {
	mu      sync.Mutex
	batches [][]models.Frame
}

func (r *frameSinkRecorder) WriteFrames(frames []models.Frame) {
	r.mu.Lock()
	r.batches = append(r.batches, frames)
	r.mu.Unlock()
}

func TestFlushFansOutToFrameSinks(t *testing.T) {
	e := New(Options{Clock: newFakeClock()})
	rec := &frameSinkRecorder{}
	e.AddFrameSink(rec)

	e.Push(canid.CanonicalID("7"), 1, []byte{0x01})
	e.Push(canid.CanonicalID("8"), 1, []byte{0x02})
	e.FlushNow()
	e.FlushNow() // empty flush delivers nothing

	require.Len(t, rec.batches, 1)
	assert.Len(t, rec.batches[0], 2)
}

// stubAdapter replays scripted chunks, then reports end of stream.
type stubAdapter struct {
	chunks chan []byte
}

func newStubAdapter(lines ...string) *stubAdapter {
	ch := make(chan []byte, len(lines))
	for _, l := range lines {
		ch <- []byte(l)
	}
	close(ch)
	return &stubAdapter{chunks: ch}
}

func (s *stubAdapter) Open() error { return nil }
func (s *stubAdapter) Close() error { return nil }

func (s *stubAdapter) Kind() transport.Kind { return transport.KindHostBridged }

func (s *stubAdapter) Write(p []byte) error { return nil }

func (s *stubAdapter) ReadChunk(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case chunk, ok := <-s.chunks:
		if !ok {
			return nil, io.EOF
		}
		return chunk, nil
	}
}

func TestAttachReadsUntilEOF(t *testing.T) {
	e := New(Options{Clock: newFakeClock()})
	adapter := newStubAdapter(
		"100#2#AA,", // split across chunks
		"BB\n200#1#CC\n",
		"bogus line\n",
		"zz#1#01\n", // identifier fails normalization
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, e.Attach(ctx, adapter, true))

	require.Eventually(t, func() bool {
		return e.State() == StateIdle
	}, time.Second, 5*time.Millisecond)

	e.FlushNow()
	assert.Equal(t, uint64(2), e.TotalFrames())
	assert.Equal(t, uint64(1), e.InvalidIDs())

	log := e.Log()
	require.Len(t, log, 2)
	assert.Equal(t, canid.CanonicalID("256"), log[0].ID, "hex source identifier 100")
	assert.Equal(t, []byte{0xAA, 0xBB}, log[0].Bytes)
	assert.Equal(t, canid.CanonicalID("512"), log[1].ID)
}

func TestAttachRejectsSecondTransport(t *testing.T) {
	e := New(Options{Clock: newFakeClock()})

	blocker := &stubAdapter{chunks: make(chan []byte)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, e.Attach(ctx, blocker, false))
	assert.ErrorIs(t, e.Attach(ctx, newStubAdapter(), false), ErrTransportActive)

	cancel()
	require.Eventually(t, func() bool {
		return e.Attach(context.Background(), newStubAdapter(), false) == nil
	}, time.Second, 5*time.Millisecond)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "capturing", StateCapturing.String())
	assert.Equal(t, "rolling-over", StateRollingOver.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
}

func TestStartFlushesOnCadence(t *testing.T) {
	e := New(Options{FlushInterval: 5 * time.Millisecond, SweepInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	for i := 0; i < 10; i++ {
		e.Push(canid.CanonicalID(fmt.Sprintf("%d", i)), 1, []byte{byte(i)})
	}

	require.Eventually(t, func() bool {
		return e.LogLen() == 10
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, e.PendingLen())
}
