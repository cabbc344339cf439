// Package blocking is the synchronous transport backend. Calls block the
// calling goroutine until the I/O completes or the ctx deadline passes;
// cancellation without a deadline is not observed.
package blocking

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/danmuck/presencectl/internal/transport"
)

const Name = "blocking"

func init() {
	transport.Register(Name, func() transport.Transport { return New() })
}

type Transport struct{}

func New() *Transport {
	return &Transport{}
}

func (t *Transport) Open(ctx context.Context, ep transport.Endpoint) (transport.Conn, error) {
	dctx := context.Background()
	if dl, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		dctx, cancel = context.WithDeadline(dctx, dl)
		defer cancel()
	}
	c, err := transport.Dial(dctx, ep)
	if err != nil {
		return nil, err
	}
	return Wrap(c), nil
}

// Wrap adapts an already open connection.
func Wrap(c net.Conn) transport.Conn {
	return &conn{c: c}
}

type conn struct {
	c         net.Conn
	readDL    bool
	writeDL   bool
	closeOnce sync.Once
	closeErr  error
}

// ReadExact arms the read deadline only when ctx has one or a previous call
// left one set. A failure to arm it is not reported; the read that follows
// surfaces the channel's real state.
func (c *conn) ReadExact(ctx context.Context, n int) ([]byte, error) {
	arm(ctx, &c.readDL, c.c.SetReadDeadline)
	return transport.ReadFull(c.c, n)
}

func (c *conn) WriteAll(ctx context.Context, p []byte) error {
	arm(ctx, &c.writeDL, c.c.SetWriteDeadline)
	return transport.WriteFull(c.c, p)
}

func arm(ctx context.Context, armed *bool, set func(time.Time) error) {
	dl := transport.Deadline(ctx)
	if dl.IsZero() && !*armed {
		return
	}
	if set(dl) == nil {
		*armed = !dl.IsZero()
	}
}

func (c *conn) Shutdown() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.c.Close()
	})
	return c.closeErr
}
