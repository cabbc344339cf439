package transport

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/danmuck/presencectl/internal/protocol"
)

// Dial opens the platform channel for ep. Failures carry the OS error and the
// attempted address as a ConnectionFailed error.
func Dial(ctx context.Context, ep Endpoint) (net.Conn, error) {
	c, err := dial(ctx, ep)
	if err != nil {
		return nil, protocol.ConnectionFailed(err, ep.Address)
	}
	return c, nil
}

// ReadFull reads exactly n bytes. Any failure, EOF included, means the channel
// is gone and is reported as SocketClosed.
func ReadFull(r io.Reader, n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeReadLength
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, protocol.SocketClosed(err)
	}
	return buf, nil
}

// WriteFull writes all of p or reports SocketClosed.
func WriteFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return protocol.SocketClosed(err)
		}
		p = p[n:]
	}
	return nil
}

// Deadline returns the ctx deadline, or the zero time which clears one.
func Deadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	return time.Time{}
}
