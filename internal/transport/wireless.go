package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Wireless connects to a radio bridge that relays bus traffic over TCP.
type Wireless struct {
	addr string
	conn net.Conn
	buf  []byte
}

func NewWireless(addr string) *Wireless {
	return &Wireless{addr: addr, buf: make([]byte, 4096)}
}

func (w *Wireless) Open() error {
	conn, err := net.DialTimeout("tcp", w.addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("wireless: failed to connect to %s: %w", w.addr, err)
	}
	w.conn = conn
	return nil
}

func (w *Wireless) ReadChunk(ctx context.Context) ([]byte, error) {
	if w.conn == nil {
		return nil, ErrNotOpen
	}
	return readConn(ctx, w.conn, w.buf)
}

func (w *Wireless) Write(p []byte) error {
	if w.conn == nil {
		return ErrNotOpen
	}
	_, err := w.conn.Write(p)
	return err
}

func (w *Wireless) Close() error {
	if w.conn == nil {
		return nil
	}
	conn := w.conn
	w.conn = nil
	return conn.Close()
}

func (w *Wireless) Kind() Kind {
	return KindWireless
}
