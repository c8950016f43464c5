package transport

import (
	"context"
	"fmt"
	"net"
)

// HostBridge reads from a host process relaying bus traffic over a
// unix-domain socket.
type HostBridge struct {
	socketPath string
	conn       net.Conn
	buf        []byte
}

func NewHostBridge(socketPath string) *HostBridge {
	return &HostBridge{socketPath: socketPath, buf: make([]byte, 4096)}
}

func (h *HostBridge) Open() error {
	conn, err := net.Dial("unix", h.socketPath)
	if err != nil {
		return fmt.Errorf("hostbridge: failed to connect to %s: %w", h.socketPath, err)
	}
	h.conn = conn
	return nil
}

func (h *HostBridge) ReadChunk(ctx context.Context) ([]byte, error) {
	if h.conn == nil {
		return nil, ErrNotOpen
	}
	return readConn(ctx, h.conn, h.buf)
}

func (h *HostBridge) Write(p []byte) error {
	if h.conn == nil {
		return ErrNotOpen
	}
	_, err := h.conn.Write(p)
	return err
}

func (h *HostBridge) Close() error {
	if h.conn == nil {
		return nil
	}
	conn := h.conn
	h.conn = nil
	return conn.Close()
}

func (h *HostBridge) Kind() Kind {
	return KindHostBridged
}
