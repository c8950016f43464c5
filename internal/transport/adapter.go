package transport

import (
	"context"
	"errors"
)

// Kind tags the physical medium behind an adapter.
type Kind int

const (
	KindSerial Kind = iota
	KindWireless
	KindHostBridged
)

func (k Kind) String() string {
	switch k {
	case KindSerial:
		return "serial"
	case KindWireless:
		return "wireless"
	case KindHostBridged:
		return "host-bridged"
	default:
		return "unknown"
	}
}

// Adapter is one physical link delivering line-protocol text. ReadChunk
// blocks until data arrives, the context ends, or the link fails; it is
// the ingestion engine's only suspension point. Implementations must
// release the underlying handle on Close regardless of how reads ended.
type Adapter interface {
	Open() error
	ReadChunk(ctx context.Context) ([]byte, error)
	Write(p []byte) error
	Close() error
	Kind() Kind
}

var ErrNotOpen = errors.New("transport: not open")
