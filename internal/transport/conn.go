package transport

import (
	"context"
	"net"
	"time"
)

// readDeadline bounds each blocking read so cancellation is observed
// between chunks.
const readDeadline = 250 * time.Millisecond

// readConn reads one chunk from a stream connection, polling the context
// on deadline expiry. Shared by the wireless and host-bridged adapters.
func readConn(ctx context.Context, conn net.Conn, buf []byte) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// SetReadDeadline fails once the peer has closed on some conn
		// types; fall through so the read reports the terminal error
		// (io.EOF on a clean close).
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			return chunk, nil
		}
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return nil, err
		}
	}
}
