package engine

import (
	"context"
	"errors"
	"io"

	"cantrace/internal/canid"
	"cantrace/internal/lineproto"
	"cantrace/internal/transport"
)

// Attach opens a transport and starts its read loop. Only one transport
// may be active per session; a second Attach fails until the previous
// loop has fully exited. sourceIsHex fixes the identifier base for every
// record the transport delivers.
func (e *Engine) Attach(ctx context.Context, t transport.Adapter, sourceIsHex bool) error {
	e.transportMu.Lock()
	if e.transportActive {
		e.transportMu.Unlock()
		return ErrTransportActive
	}
	parser := lineproto.NewParser(e.logger)
	e.transportActive = true
	e.parser = parser
	e.transportMu.Unlock()

	if err := t.Open(); err != nil {
		e.transportMu.Lock()
		e.transportActive = false
		e.transportMu.Unlock()
		return err
	}

	e.state.Store(int32(StateCapturing))
	e.logger.Info("transport attached", "kind", t.Kind().String())

	go e.readLoop(ctx, t, parser, sourceIsHex)
	return nil
}

// readLoop is the session's only blocking point: it suspends on
// ReadChunk and feeds every completed record through normalization into
// the pending buffer. The transport is closed on every exit path.
func (e *Engine) readLoop(ctx context.Context, t transport.Adapter, parser *lineproto.Parser, sourceIsHex bool) {
	defer func() {
		if err := t.Close(); err != nil {
			e.logger.Error("transport close failed", "error", err)
		}
		e.transportMu.Lock()
		e.transportActive = false
		e.transportMu.Unlock()
	}()

	for {
		chunk, err := t.ReadChunk(ctx)
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				e.state.Store(int32(StateIdle))
			case errors.Is(err, io.EOF):
				e.logger.Info("transport stream ended")
				e.state.Store(int32(StateIdle))
			default:
				e.logger.Error("transport fault", "error", err)
				e.state.Store(int32(StateDisconnected))
			}
			return
		}

		for _, rec := range parser.Feed(string(chunk)) {
			id, err := canid.Normalize(rec.RawID, sourceIsHex)
			if err != nil {
				e.invalidIDs.Add(1)
				e.logger.Debug("dropping frame", "raw_id", rec.RawID, "error", err)
				continue
			}
			e.Push(id, rec.DLC, rec.Data)
		}
	}
}
